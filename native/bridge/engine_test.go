package bridge

import (
	"bytes"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"creditbridge/core/events"
	"creditbridge/core/types"
)

func TestInstantiateStoresConfig(t *testing.T) {
	h := newHarness(t)
	cfg := h.config()
	if cfg.Owner != ownerAddr || cfg.Oracle != oracleAddr || cfg.Treasury != treasuryAddr {
		t.Fatalf("unexpected roles %+v", cfg)
	}
	if cfg.Paused {
		t.Fatalf("new bridge must not be paused")
	}
	if cfg.Denom != testDenom || cfg.FeeBps != 50 || cfg.RateCredits.Uint64() != 10_000 {
		t.Fatalf("unexpected economics %+v", cfg)
	}
	info, err := h.engine().ContractInfo()
	if err != nil || info == nil || info.Version != ContractVersion {
		t.Fatalf("unexpected contract info %+v err=%v", info, err)
	}
	_, err = h.engine().Instantiate(h.env(), Info{Sender: ownerAddr}, defaultInstantiate(cfg.OraclePubKey))
	requireErr(t, err, ErrAlreadyInitialised)
}

func TestInstantiateValidation(t *testing.T) {
	pub := ethcrypto.CompressPubkey(&testKey(t, 0x42).PublicKey)
	cases := []struct {
		name   string
		mutate func(*InstantiateMsg)
		want   error
	}{
		{"zero rate credits", func(m *InstantiateMsg) { m.RateCredits = amt(0) }, ErrZeroAmount},
		{"zero rate tokens", func(m *InstantiateMsg) { m.RateTokens = amt(0) }, ErrZeroAmount},
		{"fee above 100%", func(m *InstantiateMsg) { m.FeeBps = 10_001 }, ErrOverflow},
		{"short pubkey", func(m *InstantiateMsg) { m.OraclePubKey = make([]byte, 32) }, ErrInvalidPubkeyLength},
		{"bad owner", func(m *InstantiateMsg) { m.Owner = "owner" }, ErrInvalidAddress},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := defaultInstantiate(pub)
			tc.mutate(&msg)
			_, err := freshEngine().Instantiate(Env{BlockTime: testBlockTime, Contract: contractAddr}, Info{Sender: ownerAddr}, msg)
			requireErr(t, err, tc.want)
		})
	}
	msg := defaultInstantiate(pub)
	msg.FeeBps = 10_000
	if _, err := freshEngine().Instantiate(Env{}, Info{}, msg); err != nil {
		t.Fatalf("fee of exactly 10000 bps must be accepted: %v", err)
	}
}

func TestDeposit(t *testing.T) {
	h := newHarness(t)
	// The host escrows attached funds before the contract runs.
	h.fundContract(1_000_000)
	resp, err := h.engine().Deposit(h.env(), Info{Sender: playerAddr, Funds: []types.Coin{types.NewCoin(testDenom, 1_000_000)}})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	want := []Attribute{
		{"action", "deposit"},
		{"sender", playerAddr},
		{"token_amount", "1000000"},
		{"credit_amount", "10000"},
	}
	if len(resp.Attributes) != len(want) {
		t.Fatalf("unexpected attributes %v", resp.Attributes)
	}
	for i, attr := range want {
		if resp.Attributes[i] != attr {
			t.Fatalf("attribute %d: want %v got %v", i, attr, resp.Attributes[i])
		}
	}
	if len(resp.Messages) != 0 {
		t.Fatalf("deposit must not send funds")
	}
	if len(resp.Events) != 1 || resp.Events[0].EventType() != events.TypeBridgeDeposit {
		t.Fatalf("expected deposit event, got %v", resp.Events)
	}
	info, err := h.engine().TreasuryInfo(h.env())
	if err != nil {
		t.Fatalf("treasury info: %v", err)
	}
	if info.PeakBalance.Uint64() != 1_000_000 {
		t.Fatalf("expected peak to ratchet to 1000000, got %s", info.PeakBalance)
	}
}

func TestDepositRejections(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		name  string
		funds []types.Coin
		want  error
	}{
		{"no funds", nil, ErrNoFundsSent},
		{"two denoms", []types.Coin{types.NewCoin(testDenom, 1_000_000), types.NewCoin("uatom", 1)}, ErrMultipleDenomsSent},
		{"wrong denom", []types.Coin{types.NewCoin("uatom", 1_000_000)}, ErrWrongDenom},
		{"below minimum", []types.Coin{types.NewCoin(testDenom, 99_999)}, ErrDepositBelowMinimum},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.engine().Deposit(h.env(), Info{Sender: playerAddr, Funds: tc.funds})
			requireErr(t, err, tc.want)
		})
	}
	if _, err := h.engine().Deposit(h.env(), Info{Sender: playerAddr, Funds: []types.Coin{types.NewCoin(testDenom, 100_000)}}); err != nil {
		t.Fatalf("deposit at exactly the minimum must pass: %v", err)
	}
}

func TestWithdrawValid(t *testing.T) {
	h := newFundedHarness(t)
	msg := h.withdrawMsg("valid", playerAddr, 10_000)
	resp, err := h.withdraw(playerAddr, msg)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got, _ := resp.Attribute("credit_amount"); got != "10000" {
		t.Fatalf("credit_amount=%s", got)
	}
	if got, _ := resp.Attribute("token_amount"); got != "995000" {
		t.Fatalf("token_amount=%s", got)
	}
	if got, _ := resp.Attribute("fee_amount"); got != "5000" {
		t.Fatalf("fee_amount=%s", got)
	}
	if resp.Attributes[3].Key != "credit_amount" || resp.Attributes[5].Key != "fee_amount" {
		t.Fatalf("unexpected attribute order %v", resp.Attributes)
	}
	if len(resp.Messages) != 2 {
		t.Fatalf("expected payout and fee messages, got %d", len(resp.Messages))
	}
	if resp.Messages[0].ToAddress != playerAddr || resp.Messages[0].Amount[0].Amount.Uint64() != 995_000 {
		t.Fatalf("unexpected payout %+v", resp.Messages[0])
	}
	if resp.Messages[1].ToAddress != treasuryAddr || resp.Messages[1].Amount[0].Amount.Uint64() != 5_000 {
		t.Fatalf("unexpected fee send %+v", resp.Messages[1])
	}
	if bal := h.contractBalance(); bal.Uint64() != testFundedBalance-1_000_000 {
		t.Fatalf("unexpected contract balance %s", bal)
	}
	status, err := h.engine().NonceUsed(msg.Nonce)
	if err != nil || !status.Used {
		t.Fatalf("nonce must be recorded: %+v %v", status, err)
	}
	info, err := h.engine().PlayerInfo(h.env(), playerAddr)
	if err != nil {
		t.Fatalf("player info: %v", err)
	}
	if info.Withdrawals24h.Uint64() != 10_000 || info.RemainingLimit.Uint64() != 90_000 {
		t.Fatalf("unexpected player info %+v", info)
	}
	if info.CooldownUntil == nil || *info.CooldownUntil != testBlockTime+3600 {
		t.Fatalf("unexpected cooldown %v", info.CooldownUntil)
	}
}

func TestWithdrawNonceReplay(t *testing.T) {
	h := newFundedHarness(t)
	msg := h.withdrawMsg("replay", playerAddr, 10_000)
	if _, err := h.withdraw(playerAddr, msg); err != nil {
		t.Fatalf("first withdraw: %v", err)
	}
	// Past both the cooldown and the rolling window, so only the nonce
	// ledger can reject the claim.
	h.now += RollingWindowSeconds + h.config().CooldownSeconds + 1
	_, err := h.withdraw(playerAddr, msg)
	requireErr(t, err, ErrNonceAlreadyUsed)

	if _, err := h.withdraw(playerAddr, h.withdrawMsg("after-reset", playerAddr, 10_000)); err != nil {
		t.Fatalf("fresh claim after windows reset: %v", err)
	}
}

func TestWithdrawSignatureFailures(t *testing.T) {
	h := newFundedHarness(t)
	msg := h.withdrawMsg("sig", playerAddr, 10_000)

	forged := msg
	forged.Signature = h.sign(testKey(t, 0x99), msg.Nonce, playerAddr, 10_000, 995_000)
	_, err := h.withdraw(playerAddr, forged)
	requireErr(t, err, ErrInvalidSignature)

	// A claim signed for one player cannot be redeemed by another.
	_, err = h.withdraw(player2Addr, msg)
	requireErr(t, err, ErrInvalidSignature)

	malformed := msg
	malformed.Signature = []byte{1, 2, 3}
	_, err = h.withdraw(playerAddr, malformed)
	requireErr(t, err, ErrSignatureVerificationFailed)

	zeroR := msg
	zeroR.Signature = append(make([]byte, 32), msg.Signature[32:]...)
	_, err = h.withdraw(playerAddr, zeroR)
	requireErr(t, err, ErrSignatureVerificationFailed)

	if _, err := h.withdraw(playerAddr, msg); err != nil {
		t.Fatalf("rejected attempts must not consume the nonce: %v", err)
	}
}

func TestWithdrawAmountMismatchBeforeSignature(t *testing.T) {
	h := newFundedHarness(t)
	msg := WithdrawMsg{
		Nonce:        h.nonce("mismatch"),
		CreditAmount: amt(10_000),
		TokenAmount:  amt(1_000_000),
		Signature:    []byte("garbage"),
	}
	_, err := h.withdraw(playerAddr, msg)
	requireErr(t, err, ErrAmountMismatch)
	be, ok := AsError(err)
	if !ok || be.Details["expected_tokens"] != "995000" || be.Details["provided_tokens"] != "1000000" {
		t.Fatalf("unexpected mismatch details %+v", be)
	}
}

func TestWithdrawGates(t *testing.T) {
	h := newFundedHarness(t)
	good := h.withdrawMsg("gates", playerAddr, 10_000)

	_, err := h.engine().Withdraw(h.env(), Info{Sender: playerAddr, Funds: []types.Coin{types.NewCoin(testDenom, 1)}}, good)
	requireErr(t, err, ErrUnexpectedFunds)

	zero := good
	zero.CreditAmount = amt(0)
	_, err = h.withdraw(playerAddr, zero)
	requireErr(t, err, ErrZeroAmount)

	bad := good
	bad.Nonce = "no-timestamp"
	_, err = h.withdraw(playerAddr, bad)
	requireErr(t, err, ErrInvalidNonceFormat)

	expired := h.withdrawMsg("old", playerAddr, 10_000)
	h.now += NonceExpiryWindow + 1
	_, err = h.withdraw(playerAddr, expired)
	requireErr(t, err, ErrNonceExpired)
}

func TestWithdrawCooldown(t *testing.T) {
	h := newFundedHarness(t)
	if _, err := h.withdraw(playerAddr, h.withdrawMsg("cd-1", playerAddr, 10_000)); err != nil {
		t.Fatalf("first withdraw: %v", err)
	}
	start := h.now

	h.now = start + 1
	_, err := h.withdraw(playerAddr, h.withdrawMsg("cd-2", playerAddr, 10_000))
	requireErr(t, err, ErrCooldownActive)
	be, _ := AsError(err)
	if be.Details["available_at"] != "1571801019" {
		t.Fatalf("unexpected available_at %q", be.Details["available_at"])
	}

	h.now = start + 3600
	if _, err := h.withdraw(playerAddr, h.withdrawMsg("cd-3", playerAddr, 10_000)); err != nil {
		t.Fatalf("withdraw at cooldown boundary: %v", err)
	}

	// Other players are unaffected by this player's cooldown.
	if _, err := h.withdraw(player2Addr, h.withdrawMsg("cd-4", player2Addr, 10_000)); err != nil {
		t.Fatalf("second player withdraw: %v", err)
	}
}

func TestWithdrawPlayerDailyLimitSlidingWindow(t *testing.T) {
	h := newFundedHarness(t)
	start := h.now
	if _, err := h.withdraw(playerAddr, h.withdrawMsg("pl-1", playerAddr, 60_000)); err != nil {
		t.Fatalf("first withdraw: %v", err)
	}

	h.now = start + 3601
	_, err := h.withdraw(playerAddr, h.withdrawMsg("pl-2", playerAddr, 50_000))
	requireErr(t, err, ErrPlayerDailyLimitExceeded)

	if _, err := h.withdraw(playerAddr, h.withdrawMsg("pl-3", playerAddr, 40_000)); err != nil {
		t.Fatalf("withdraw up to the cap: %v", err)
	}

	// The first record sits exactly on the window edge and still counts.
	h.now = start + RollingWindowSeconds
	_, err = h.withdraw(playerAddr, h.withdrawMsg("pl-4", playerAddr, 1))
	requireErr(t, err, ErrPlayerDailyLimitExceeded)

	h.now = start + RollingWindowSeconds + 1
	if _, err := h.withdraw(playerAddr, h.withdrawMsg("pl-5", playerAddr, 60_000)); err != nil {
		t.Fatalf("withdraw after the first record expired: %v", err)
	}
}

func TestWithdrawGlobalDailyLimit(t *testing.T) {
	h := newFundedHarness(t)
	limit := amt(15_000)
	if _, err := h.engine().UpdateLimits(h.env(), Info{Sender: ownerAddr}, UpdateLimitsMsg{GlobalDailyLimit: &limit}); err != nil {
		t.Fatalf("update limits: %v", err)
	}
	if _, err := h.withdraw(playerAddr, h.withdrawMsg("gl-1", playerAddr, 10_000)); err != nil {
		t.Fatalf("first withdraw: %v", err)
	}
	_, err := h.withdraw(player2Addr, h.withdrawMsg("gl-2", player2Addr, 10_000))
	requireErr(t, err, ErrGlobalDailyLimitExceeded)
	be, _ := AsError(err)
	if be.Details["used"] != "10000" || be.Details["limit"] != "15000" {
		t.Fatalf("unexpected global details %+v", be.Details)
	}
	if _, err := h.withdraw(player2Addr, h.withdrawMsg("gl-3", player2Addr, 5_000)); err != nil {
		t.Fatalf("withdraw up to the global cap: %v", err)
	}
}

func TestWithdrawTreasuryReserveFloorInclusive(t *testing.T) {
	// 10000 credits pay out 995000 + 5000 fee; 2000000 leaves exactly the
	// 1000000 reserve.
	h := newHarness(t)
	h.fundContract(1_999_999)
	_, err := h.withdraw(playerAddr, h.withdrawMsg("floor-1", playerAddr, 10_000))
	requireErr(t, err, ErrInsufficientTreasury)

	h.fundContract(1)
	if _, err := h.withdraw(playerAddr, h.withdrawMsg("floor-2", playerAddr, 10_000)); err != nil {
		t.Fatalf("withdraw down to the reserve: %v", err)
	}
	if bal := h.contractBalance(); bal.Uint64() != 1_000_000 {
		t.Fatalf("expected balance at reserve, got %s", bal)
	}

	h.now += 3601
	_, err = h.withdraw(playerAddr, h.withdrawMsg("floor-3", playerAddr, 1))
	requireErr(t, err, ErrInsufficientTreasury)
}

func TestWithdrawInsufficientTreasuryUnderflow(t *testing.T) {
	h := newHarness(t)
	h.fundContract(500_000)
	_, err := h.withdraw(playerAddr, h.withdrawMsg("under", playerAddr, 10_000))
	requireErr(t, err, ErrInsufficientTreasury)
	be, _ := AsError(err)
	if be.Details["needed"] != "1000000" || be.Details["available"] != "500000" {
		t.Fatalf("unexpected details %+v", be.Details)
	}
}

func TestWithdrawZeroFeeSkipsTreasurySend(t *testing.T) {
	h := newFundedHarness(t)
	// 1 credit is 100 tokens; 0.5% of 100 rounds down to zero.
	resp, err := h.withdraw(playerAddr, h.withdrawMsg("tiny", playerAddr, 1))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if len(resp.Messages) != 1 {
		t.Fatalf("expected only the player payout, got %d messages", len(resp.Messages))
	}
	if got, _ := resp.Attribute("fee_amount"); got != "0" {
		t.Fatalf("fee_amount=%s", got)
	}
}

func TestWithdrawPaused(t *testing.T) {
	h := newFundedHarness(t)
	if _, err := h.engine().Pause(h.env(), Info{Sender: ownerAddr}); err != nil {
		t.Fatalf("pause: %v", err)
	}
	_, err := h.withdraw(playerAddr, h.withdrawMsg("paused", playerAddr, 10_000))
	requireErr(t, err, ErrPaused)
	_, err = h.engine().Deposit(h.env(), Info{Sender: playerAddr, Funds: []types.Coin{types.NewCoin(testDenom, 1_000_000)}})
	requireErr(t, err, ErrPaused)

	if _, err := h.engine().Unpause(h.env(), Info{Sender: ownerAddr}); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if _, err := h.withdraw(playerAddr, h.withdrawMsg("unpaused", playerAddr, 10_000)); err != nil {
		t.Fatalf("withdraw after unpause: %v", err)
	}
}

func TestWithdrawUsesUncompressedOracleKey(t *testing.T) {
	h := newFundedHarness(t)
	newKey := testKey(t, 0x43)
	uncompressed := ethcrypto.FromECDSAPub(&newKey.PublicKey)
	if _, err := h.engine().ProposeOracle(h.env(), Info{Sender: ownerAddr}, ProposeOracleMsg{NewOracle: strangerAddr, NewPubKey: uncompressed}); err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := h.engine().AcceptOracle(h.env(), Info{Sender: strangerAddr}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	h.oracleKey = newKey
	if _, err := h.withdraw(playerAddr, h.withdrawMsg("uncompressed", playerAddr, 10_000)); err != nil {
		t.Fatalf("withdraw under rotated key: %v", err)
	}
	if !bytes.Equal(h.config().OraclePubKey, uncompressed) {
		t.Fatalf("oracle key not rotated")
	}
}
