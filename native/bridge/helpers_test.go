package bridge

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	corestate "creditbridge/core/state"
	"creditbridge/core/types"
	"creditbridge/crypto"
	"creditbridge/native/bank"
	"creditbridge/storage"
)

const (
	testChainID       = "shido-testnet-1"
	testDenom         = "ushido"
	testBlockTime     = uint64(1_571_797_419)
	testFundedBalance = uint64(100_000_000)
)

func testAddr(seed byte) string {
	return crypto.NewAddress(crypto.DefaultPrefix, bytes.Repeat([]byte{seed}, 20)).String()
}

var (
	ownerAddr    = testAddr(0x01)
	oracleAddr   = testAddr(0x02)
	treasuryAddr = testAddr(0x03)
	contractAddr = testAddr(0x04)
	playerAddr   = testAddr(0x05)
	player2Addr  = testAddr(0x06)
	strangerAddr = testAddr(0x07)
)

func testKey(t *testing.T, seed byte) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ethcrypto.ToECDSA(bytes.Repeat([]byte{seed}, 32))
	if err != nil {
		t.Fatalf("derive key: %v", err)
	}
	return key
}

type harness struct {
	t         *testing.T
	state     *corestate.Manager
	ledger    *bank.Ledger
	oracleKey *ecdsa.PrivateKey
	now       uint64
}

func amt(v uint64) Amount { return types.NewAmount(v) }

func defaultInstantiate(pub []byte) InstantiateMsg {
	return InstantiateMsg{
		Owner:            ownerAddr,
		Oracle:           oracleAddr,
		OraclePubKey:     pub,
		Denom:            testDenom,
		RateCredits:      amt(10_000),
		RateTokens:       amt(1_000_000),
		FeeBps:           50,
		Treasury:         treasuryAddr,
		MinDeposit:       amt(100_000),
		PlayerDailyLimit: amt(100_000),
		GlobalDailyLimit: amt(10_000_000),
		CooldownSeconds:  3600,
		MinReserve:       amt(1_000_000),
		ChainID:          testChainID,
	}
}

// newHarness instantiates the bridge without funding the contract.
func newHarness(t *testing.T) *harness {
	t.Helper()
	mgr := corestate.NewManager(storage.NewMemDB())
	h := &harness{
		t:         t,
		state:     mgr,
		ledger:    bank.NewLedger(mgr),
		oracleKey: testKey(t, 0x42),
		now:       testBlockTime,
	}
	pub := ethcrypto.CompressPubkey(&h.oracleKey.PublicKey)
	if _, err := h.engine().Instantiate(h.env(), Info{Sender: ownerAddr}, defaultInstantiate(pub)); err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	return h
}

// freshEngine runs against empty state.
func freshEngine() *Engine {
	mgr := corestate.NewManager(storage.NewMemDB())
	return NewEngine(mgr, bank.NewLedger(mgr))
}

// newFundedHarness also credits the contract with the treasury float.
func newFundedHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t)
	h.fundContract(testFundedBalance)
	return h
}

func (h *harness) engine() *Engine { return NewEngine(h.state, h.ledger) }

func (h *harness) env() Env { return Env{BlockTime: h.now, Contract: contractAddr} }

func (h *harness) fundContract(v uint64) {
	h.t.Helper()
	if err := h.ledger.Credit(contractAddr, types.NewCoin(testDenom, v)); err != nil {
		h.t.Fatalf("fund contract: %v", err)
	}
}

func (h *harness) contractBalance() Amount {
	h.t.Helper()
	bal, err := h.ledger.Balance(contractAddr, testDenom)
	if err != nil {
		h.t.Fatalf("balance: %v", err)
	}
	return bal
}

func (h *harness) config() *Config {
	h.t.Helper()
	cfg, err := h.engine().Config()
	if err != nil {
		h.t.Fatalf("config: %v", err)
	}
	return cfg
}

func (h *harness) nonce(label string) string {
	return fmt.Sprintf("%d:%s", h.now, label)
}

func (h *harness) sign(key *ecdsa.PrivateKey, nonce, player string, credits, tokens uint64) []byte {
	h.t.Helper()
	digest := WithdrawalDigest(testChainID, contractAddr, nonce, player, amt(credits), amt(tokens))
	sig, err := SignWithdrawal(digest, key)
	if err != nil {
		h.t.Fatalf("sign: %v", err)
	}
	return sig
}

// withdrawMsg builds a correctly priced and signed claim for credits.
func (h *harness) withdrawMsg(label, player string, credits uint64) WithdrawMsg {
	h.t.Helper()
	quote, err := QuoteWithdrawal(amt(credits), h.config())
	if err != nil {
		h.t.Fatalf("quote: %v", err)
	}
	nonce := h.nonce(label)
	return WithdrawMsg{
		Nonce:        nonce,
		CreditAmount: amt(credits),
		TokenAmount:  quote.Net,
		Signature:    h.sign(h.oracleKey, nonce, player, credits, quote.Net.Uint64()),
	}
}

// withdraw executes a claim and, like the host, applies the payouts.
func (h *harness) withdraw(player string, msg WithdrawMsg) (*Response, error) {
	resp, err := h.engine().Withdraw(h.env(), Info{Sender: player}, msg)
	if err != nil {
		return nil, err
	}
	h.applySends(resp)
	return resp, nil
}

func (h *harness) applySends(resp *Response) {
	h.t.Helper()
	for _, send := range resp.Messages {
		if err := h.ledger.Apply(contractAddr, send); err != nil {
			h.t.Fatalf("apply send: %v", err)
		}
	}
}

func requireErr(t *testing.T, err error, sentinel error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v, got nil", sentinel)
	}
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected %v, got %v", sentinel, err)
	}
}
