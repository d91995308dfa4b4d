package runtime

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"creditbridge/core/events"
	"creditbridge/core/types"
	"creditbridge/crypto"
	"creditbridge/native/bank"
	"creditbridge/native/bridge"
	"creditbridge/storage"
)

const (
	testChainID = "shido-testnet-1"
	testDenom   = "ushido"
	testStart   = int64(1_571_797_419)
)

func seededAddr(seed byte) string {
	return crypto.NewAddress(crypto.DefaultPrefix, bytes.Repeat([]byte{seed}, 20)).String()
}

var (
	ownerAddr    = seededAddr(0x01)
	oracleAddr   = seededAddr(0x02)
	treasuryAddr = seededAddr(0x03)
	contractAddr = seededAddr(0x04)
)

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(ev events.Event) { r.events = append(r.events, ev) }

type fixture struct {
	t         *testing.T
	db        storage.Database
	rt        *Runtime
	now       int64
	emitter   *recordingEmitter
	oracleKey *ecdsa.PrivateKey
	playerKey *ecdsa.PrivateKey
	player    string
}

func mustKey(t *testing.T, seed byte) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ethcrypto.ToECDSA(bytes.Repeat([]byte{seed}, 32))
	require.NoError(t, err)
	return key
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:         t,
		db:        storage.NewMemDB(),
		now:       testStart,
		emitter:   &recordingEmitter{},
		oracleKey: mustKey(t, 0x42),
		playerKey: mustKey(t, 0x43),
	}
	f.player = crypto.NewAddress(crypto.DefaultPrefix, ethcrypto.PubkeyToAddress(f.playerKey.PublicKey).Bytes()).String()
	f.rt = f.open()

	ctx := context.Background()
	_, err := f.rt.Instantiate(ctx, ownerAddr, bridge.InstantiateMsg{
		Owner:            ownerAddr,
		Oracle:           oracleAddr,
		OraclePubKey:     ethcrypto.CompressPubkey(&f.oracleKey.PublicKey),
		Denom:            testDenom,
		RateCredits:      types.NewAmount(10_000),
		RateTokens:       types.NewAmount(1_000_000),
		FeeBps:           50,
		Treasury:         treasuryAddr,
		MinDeposit:       types.NewAmount(100_000),
		PlayerDailyLimit: types.NewAmount(100_000),
		GlobalDailyLimit: types.NewAmount(10_000_000),
		CooldownSeconds:  3600,
		MinReserve:       types.NewAmount(1_000_000),
		ChainID:          testChainID,
	})
	require.NoError(t, err)
	require.NoError(t, f.rt.Fund(ctx, contractAddr, []types.Coin{types.NewCoin(testDenom, 100_000_000)}))
	require.NoError(t, f.rt.Fund(ctx, f.player, []types.Coin{types.NewCoin(testDenom, 1_000_000)}))
	f.emitter.events = nil
	return f
}

func (f *fixture) open() *Runtime {
	f.t.Helper()
	rt, err := New(f.db, Config{ChainID: testChainID, Contract: contractAddr},
		WithClock(func() time.Time { return time.Unix(f.now, 0) }),
		WithEmitter(f.emitter),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(nil),
	)
	require.NoError(f.t, err)
	return rt
}

func (f *fixture) balance(addr string) uint64 {
	f.t.Helper()
	bal, err := f.rt.Balance(addr, testDenom)
	require.NoError(f.t, err)
	return bal.Uint64()
}

func (f *fixture) claim(label string, credits, tokens uint64) *bridge.WithdrawMsg {
	f.t.Helper()
	nonce := fmt.Sprintf("%d:%s", f.now, label)
	digest := bridge.WithdrawalDigest(testChainID, contractAddr, nonce, f.player, types.NewAmount(credits), types.NewAmount(tokens))
	sig, err := bridge.SignWithdrawal(digest, f.oracleKey)
	require.NoError(f.t, err)
	return &bridge.WithdrawMsg{
		Nonce:        nonce,
		CreditAmount: types.NewAmount(credits),
		TokenAmount:  types.NewAmount(tokens),
		Signature:    sig,
	}
}

func (f *fixture) envelope(seq uint64, msg *bridge.ExecuteMsg, funds []types.Coin) *types.Envelope {
	f.t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(f.t, err)
	env := &types.Envelope{ChainID: testChainID, Contract: contractAddr, Sequence: seq, Msg: raw, Funds: funds}
	require.NoError(f.t, env.Sign(f.playerKey))
	return env
}

func TestDepositEscrowsFundsAndEmitsEvent(t *testing.T) {
	f := newFixture(t)
	receipt, err := f.rt.Execute(context.Background(), f.player,
		[]types.Coin{types.NewCoin(testDenom, 500_000)}, &bridge.ExecuteMsg{Deposit: &bridge.Empty{}})
	require.NoError(t, err)

	credits, ok := receipt.Response.Attribute("credit_amount")
	require.True(t, ok)
	require.Equal(t, "5000", credits)
	require.Equal(t, uint64(testStart), receipt.BlockTime)
	require.Equal(t, uint64(500_000), f.balance(f.player))
	require.Equal(t, uint64(100_500_000), f.balance(contractAddr))

	require.Len(t, f.emitter.events, 1)
	require.Equal(t, events.TypeBridgeDeposit, f.emitter.events[0].EventType())
}

func TestRejectedInvocationLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	_, err := f.rt.Execute(context.Background(), f.player,
		[]types.Coin{types.NewCoin(testDenom, 50_000)}, &bridge.ExecuteMsg{Deposit: &bridge.Empty{}})
	require.ErrorIs(t, err, bridge.ErrDepositBelowMinimum)
	require.Equal(t, "DEPOSIT_BELOW_MINIMUM", bridge.Code(err))

	require.Equal(t, uint64(1_000_000), f.balance(f.player))
	require.Equal(t, uint64(100_000_000), f.balance(contractAddr))
	require.Empty(t, f.emitter.events)
}

func TestEscrowRequiresBalance(t *testing.T) {
	f := newFixture(t)
	_, err := f.rt.Execute(context.Background(), f.player,
		[]types.Coin{types.NewCoin(testDenom, 5_000_000)}, &bridge.ExecuteMsg{Deposit: &bridge.Empty{}})
	require.ErrorIs(t, err, bank.ErrInsufficientFunds)
	require.Equal(t, uint64(100_000_000), f.balance(contractAddr))
}

func TestSubmitWithdrawalPaysOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env := f.envelope(0, &bridge.ExecuteMsg{Withdraw: f.claim("a", 10_000, 995_000)}, nil)

	receipt, err := f.rt.Submit(ctx, env)
	require.NoError(t, err)
	require.Equal(t, f.player, receipt.Sender)
	require.NotNil(t, receipt.Sequence)
	require.Equal(t, uint64(0), *receipt.Sequence)
	require.Len(t, receipt.Response.Messages, 2)

	require.Equal(t, uint64(1_995_000), f.balance(f.player))
	require.Equal(t, uint64(5_000), f.balance(treasuryAddr))
	require.Equal(t, uint64(99_000_000), f.balance(contractAddr))
	require.Len(t, f.emitter.events, 1)
	require.Equal(t, events.TypeBridgeWithdrawal, f.emitter.events[0].EventType())

	seq, err := f.rt.Sequence(f.player)
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq)
}

func TestSubmitRejectsReplayedEnvelope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env := f.envelope(0, &bridge.ExecuteMsg{Withdraw: f.claim("a", 10_000, 995_000)}, nil)
	_, err := f.rt.Submit(ctx, env)
	require.NoError(t, err)

	_, err = f.rt.Submit(ctx, env)
	require.ErrorIs(t, err, bank.ErrSequenceMismatch)
	require.Equal(t, uint64(1_995_000), f.balance(f.player))
}

func TestSubmitConsumesSequenceOnRejection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bad := f.claim("a", 10_000, 990_000)
	_, err := f.rt.Submit(ctx, f.envelope(0, &bridge.ExecuteMsg{Withdraw: bad}, nil))
	require.ErrorIs(t, err, bridge.ErrAmountMismatch)

	seq, err := f.rt.Sequence(f.player)
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq)
	require.Equal(t, uint64(1_000_000), f.balance(f.player))

	used, err := f.rt.Query(ctx, []byte(fmt.Sprintf(`{"nonce_used":{"nonce":%q}}`, bad.Nonce)))
	require.NoError(t, err)
	require.JSONEq(t, `{"used":false}`, string(used))
}

func TestSubmitEscrowsEnvelopeFunds(t *testing.T) {
	f := newFixture(t)
	funds := []types.Coin{types.NewCoin(testDenom, 200_000)}
	_, err := f.rt.Submit(context.Background(), f.envelope(0, &bridge.ExecuteMsg{Deposit: &bridge.Empty{}}, funds))
	require.NoError(t, err)
	require.Equal(t, uint64(800_000), f.balance(f.player))
}

func TestSubmitChecksChainAndContract(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	env := f.envelope(0, &bridge.ExecuteMsg{Deposit: &bridge.Empty{}}, nil)
	env.ChainID = "other-chain"
	_, err := f.rt.Submit(ctx, env)
	require.ErrorIs(t, err, ErrChainMismatch)

	env = f.envelope(0, &bridge.ExecuteMsg{Deposit: &bridge.Empty{}}, nil)
	env.Contract = ownerAddr
	_, err = f.rt.Submit(ctx, env)
	require.ErrorIs(t, err, ErrContractMismatch)

	unsigned := &types.Envelope{ChainID: testChainID, Contract: contractAddr, Msg: json.RawMessage(`{"deposit":{}}`)}
	_, err = f.rt.Submit(ctx, unsigned)
	require.ErrorIs(t, err, types.ErrEnvelopeUnsigned)

	seq, err := f.rt.Sequence(f.player)
	require.NoError(t, err)
	require.Zero(t, seq)
}

func TestBlockTimeNeverRunsBackwards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.now = testStart - 600
	receipt, err := f.rt.Execute(ctx, ownerAddr, nil, &bridge.ExecuteMsg{Pause: &bridge.Empty{}})
	require.NoError(t, err)
	require.Equal(t, uint64(testStart), receipt.BlockTime)

	f.now = testStart + 60
	receipt, err = f.rt.Execute(ctx, ownerAddr, nil, &bridge.ExecuteMsg{Unpause: &bridge.Empty{}})
	require.NoError(t, err)
	require.Equal(t, uint64(testStart+60), receipt.BlockTime)
	require.Equal(t, uint64(testStart+60), f.rt.LastBlockTime())
}

func TestBlockTimeSurvivesRestart(t *testing.T) {
	f := newFixture(t)
	f.now = testStart + 120
	_, err := f.rt.Execute(context.Background(), ownerAddr, nil, &bridge.ExecuteMsg{Pause: &bridge.Empty{}})
	require.NoError(t, err)

	f.now = testStart
	reopened := f.open()
	require.Equal(t, uint64(testStart+120), reopened.LastBlockTime())
	ok, err := reopened.Instantiated()
	require.NoError(t, err)
	require.True(t, ok)
}

func TestQueryAndMigrate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raw, err := f.rt.Query(ctx, []byte(`{"config":{}}`))
	require.NoError(t, err)
	var cfg bridge.Config
	require.NoError(t, json.Unmarshal(raw, &cfg))
	require.Equal(t, ownerAddr, cfg.Owner)

	_, err = f.rt.Query(ctx, []byte(`{"config":{},"pending_owner":{}}`))
	require.ErrorIs(t, err, bridge.ErrInvalidMessage)

	receipt, err := f.rt.Migrate(ctx)
	require.NoError(t, err)
	version, ok := receipt.Response.Attribute("version")
	require.True(t, ok)
	require.Equal(t, bridge.ContractVersion, version)
}

func TestInstantiatedBeforeSetup(t *testing.T) {
	rt, err := New(storage.NewMemDB(), Config{ChainID: testChainID, Contract: contractAddr}, WithMetrics(nil))
	require.NoError(t, err)
	ok, err := rt.Instantiated()
	require.NoError(t, err)
	require.False(t, ok)

	_, err = New(storage.NewMemDB(), Config{ChainID: testChainID, Contract: "not-an-address"})
	require.Error(t, err)
	_, err = New(storage.NewMemDB(), Config{Contract: contractAddr})
	require.Error(t, err)
}
