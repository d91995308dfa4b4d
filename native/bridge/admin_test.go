package bridge

import (
	"bytes"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"creditbridge/core/events"
	"creditbridge/core/types"
)

func TestAdminOperationsRequireOwner(t *testing.T) {
	h := newFundedHarness(t)
	e := h.engine()
	who := Info{Sender: strangerAddr}
	limit := amt(1)
	pub := ethcrypto.CompressPubkey(&testKey(t, 0x50).PublicKey)
	ops := map[string]func() (*Response, error){
		"withdraw_treasury": func() (*Response, error) {
			return e.WithdrawTreasury(h.env(), who, WithdrawTreasuryMsg{Amount: amt(1)})
		},
		"fund_treasury": func() (*Response, error) {
			return e.FundTreasury(h.env(), Info{Sender: strangerAddr, Funds: []types.Coin{types.NewCoin(testDenom, 1)}})
		},
		"propose_oracle": func() (*Response, error) {
			return e.ProposeOracle(h.env(), who, ProposeOracleMsg{NewOracle: strangerAddr, NewPubKey: pub})
		},
		"cancel_oracle_transfer": func() (*Response, error) { return e.CancelOracleTransfer(h.env(), who) },
		"update_rate": func() (*Response, error) {
			return e.UpdateRate(h.env(), who, UpdateRateMsg{RateCredits: amt(1), RateTokens: amt(1)})
		},
		"update_fee":    func() (*Response, error) { return e.UpdateFee(h.env(), who, UpdateFeeMsg{FeeBps: 1}) },
		"update_limits": func() (*Response, error) { return e.UpdateLimits(h.env(), who, UpdateLimitsMsg{MinReserve: &limit}) },
		"pause":         func() (*Response, error) { return e.Pause(h.env(), who) },
		"unpause":       func() (*Response, error) { return e.Unpause(h.env(), who) },
		"propose_owner": func() (*Response, error) {
			return e.ProposeOwner(h.env(), who, ProposeOwnerMsg{NewOwner: strangerAddr})
		},
		"cancel_owner_transfer": func() (*Response, error) { return e.CancelOwnerTransfer(h.env(), who) },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			_, err := op()
			requireErr(t, err, ErrUnauthorized)
		})
	}
	if cfg := h.config(); cfg.Paused || cfg.FeeBps != 50 || cfg.Owner != ownerAddr {
		t.Fatalf("rejected admin calls must not change config: %+v", cfg)
	}
}

func TestNonPayableAdminRejectsFunds(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine().Pause(h.env(), Info{Sender: ownerAddr, Funds: []types.Coin{types.NewCoin(testDenom, 1)}})
	requireErr(t, err, ErrUnexpectedFunds)
}

func TestOracleRotation(t *testing.T) {
	h := newFundedHarness(t)
	e := h.engine()
	owner := Info{Sender: ownerAddr}
	newKey := testKey(t, 0x51)
	newPub := ethcrypto.CompressPubkey(&newKey.PublicKey)

	_, err := e.AcceptOracle(h.env(), Info{Sender: strangerAddr})
	requireErr(t, err, ErrNoOracleTransferPending)
	_, err = e.CancelOracleTransfer(h.env(), owner)
	requireErr(t, err, ErrNoOracleTransferPending)

	_, err = e.ProposeOracle(h.env(), owner, ProposeOracleMsg{NewOracle: strangerAddr, NewPubKey: newPub[:20]})
	requireErr(t, err, ErrInvalidPubkeyLength)

	resp, err := e.ProposeOracle(h.env(), owner, ProposeOracleMsg{NewOracle: strangerAddr, NewPubKey: newPub})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if got, _ := resp.Attribute("proposed_oracle"); got != strangerAddr {
		t.Fatalf("proposed_oracle=%s", got)
	}
	pending, err := e.PendingOracle()
	if err != nil || pending == nil || pending.ProposedOracle != strangerAddr {
		t.Fatalf("unexpected pending oracle %+v err=%v", pending, err)
	}
	_, err = e.ProposeOracle(h.env(), owner, ProposeOracleMsg{NewOracle: player2Addr, NewPubKey: newPub})
	requireErr(t, err, ErrOracleTransferAlreadyPending)

	// Until acceptance the old key still authorises withdrawals.
	if _, err := h.withdraw(playerAddr, h.withdrawMsg("before", playerAddr, 10_000)); err != nil {
		t.Fatalf("withdraw with old key: %v", err)
	}

	_, err = e.AcceptOracle(h.env(), Info{Sender: player2Addr})
	requireErr(t, err, ErrNotPendingOracle)

	resp, err = e.AcceptOracle(h.env(), Info{Sender: strangerAddr})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if len(resp.Events) != 1 {
		t.Fatalf("expected role transfer event")
	}
	ev, ok := resp.Events[0].(events.BridgeRoleTransfer)
	if !ok || ev.Role != "oracle" || ev.Stage != "accepted" || ev.Account != strangerAddr {
		t.Fatalf("unexpected event %+v", resp.Events[0])
	}
	cfg := h.config()
	if cfg.Oracle != strangerAddr || !bytes.Equal(cfg.OraclePubKey, newPub) {
		t.Fatalf("oracle not rotated: %+v", cfg)
	}
	if pending, _ := e.PendingOracle(); pending != nil {
		t.Fatalf("pending oracle must be cleared")
	}

	h.now += 3601
	_, err = h.withdraw(playerAddr, h.withdrawMsg("old-key", playerAddr, 10_000))
	requireErr(t, err, ErrInvalidSignature)
	h.oracleKey = newKey
	if _, err := h.withdraw(playerAddr, h.withdrawMsg("new-key", playerAddr, 10_000)); err != nil {
		t.Fatalf("withdraw with new key: %v", err)
	}
}

func TestOracleRotationCancel(t *testing.T) {
	h := newHarness(t)
	e := h.engine()
	owner := Info{Sender: ownerAddr}
	pub := ethcrypto.CompressPubkey(&testKey(t, 0x52).PublicKey)
	if _, err := e.ProposeOracle(h.env(), owner, ProposeOracleMsg{NewOracle: strangerAddr, NewPubKey: pub}); err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := e.CancelOracleTransfer(h.env(), owner); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err := e.AcceptOracle(h.env(), Info{Sender: strangerAddr})
	requireErr(t, err, ErrNoOracleTransferPending)
	if cfg := h.config(); cfg.Oracle != oracleAddr {
		t.Fatalf("cancelled rotation must not change oracle")
	}
}

func TestOwnerHandover(t *testing.T) {
	h := newHarness(t)
	e := h.engine()
	_, err := e.ProposeOwner(h.env(), Info{Sender: ownerAddr}, ProposeOwnerMsg{NewOwner: "not-an-address"})
	requireErr(t, err, ErrInvalidAddress)

	if _, err := e.ProposeOwner(h.env(), Info{Sender: ownerAddr}, ProposeOwnerMsg{NewOwner: strangerAddr}); err != nil {
		t.Fatalf("propose: %v", err)
	}
	_, err = e.ProposeOwner(h.env(), Info{Sender: ownerAddr}, ProposeOwnerMsg{NewOwner: player2Addr})
	requireErr(t, err, ErrOwnerTransferAlreadyPending)
	pending, err := e.PendingOwner()
	if err != nil || pending == nil || pending.ProposedOwner != strangerAddr {
		t.Fatalf("unexpected pending owner %+v err=%v", pending, err)
	}

	// The current owner keeps its powers until acceptance.
	if _, err := e.Pause(h.env(), Info{Sender: ownerAddr}); err != nil {
		t.Fatalf("pause by current owner: %v", err)
	}

	_, err = e.AcceptOwner(h.env(), Info{Sender: playerAddr})
	requireErr(t, err, ErrNotPendingOwner)
	if _, err := e.AcceptOwner(h.env(), Info{Sender: strangerAddr}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if cfg := h.config(); cfg.Owner != strangerAddr {
		t.Fatalf("owner not transferred")
	}
	_, err = e.Unpause(h.env(), Info{Sender: ownerAddr})
	requireErr(t, err, ErrUnauthorized)
	if _, err := e.Unpause(h.env(), Info{Sender: strangerAddr}); err != nil {
		t.Fatalf("unpause by new owner: %v", err)
	}
	_, err = e.AcceptOwner(h.env(), Info{Sender: strangerAddr})
	requireErr(t, err, ErrNoOwnerTransferPending)
}

func TestOwnerHandoverCancel(t *testing.T) {
	h := newHarness(t)
	e := h.engine()
	owner := Info{Sender: ownerAddr}
	_, err := e.CancelOwnerTransfer(h.env(), owner)
	requireErr(t, err, ErrNoOwnerTransferPending)
	if _, err := e.ProposeOwner(h.env(), owner, ProposeOwnerMsg{NewOwner: strangerAddr}); err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := e.CancelOwnerTransfer(h.env(), owner); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if pending, _ := e.PendingOwner(); pending != nil {
		t.Fatalf("pending owner must be cleared")
	}
}

func TestProposedPartyCanCancelHandover(t *testing.T) {
	h := newHarness(t)
	e := h.engine()
	owner := Info{Sender: ownerAddr}
	pub := ethcrypto.CompressPubkey(&testKey(t, 0x53).PublicKey)

	if _, err := e.ProposeOracle(h.env(), owner, ProposeOracleMsg{NewOracle: strangerAddr, NewPubKey: pub}); err != nil {
		t.Fatalf("propose oracle: %v", err)
	}
	_, err := e.CancelOracleTransfer(h.env(), Info{Sender: playerAddr})
	requireErr(t, err, ErrUnauthorized)
	_, err = e.CancelOracleTransfer(h.env(), Info{Sender: strangerAddr, Funds: []types.Coin{types.NewCoin(testDenom, 1)}})
	requireErr(t, err, ErrUnexpectedFunds)
	resp, err := e.CancelOracleTransfer(h.env(), Info{Sender: strangerAddr})
	if err != nil {
		t.Fatalf("proposed oracle cancel: %v", err)
	}
	if len(resp.Events) != 1 {
		t.Fatalf("expected one cancel event, got %d", len(resp.Events))
	}
	ev, ok := resp.Events[0].(events.BridgeRoleTransfer)
	if !ok || ev.Stage != "cancelled" || ev.Account != strangerAddr {
		t.Fatalf("unexpected cancel event %+v", resp.Events)
	}
	if pending, _ := e.PendingOracle(); pending != nil {
		t.Fatalf("pending oracle must be cleared")
	}
	if cfg := h.config(); cfg.Oracle != oracleAddr {
		t.Fatalf("cancelled rotation must not change oracle")
	}

	if _, err := e.ProposeOwner(h.env(), owner, ProposeOwnerMsg{NewOwner: strangerAddr}); err != nil {
		t.Fatalf("propose owner: %v", err)
	}
	_, err = e.CancelOwnerTransfer(h.env(), Info{Sender: playerAddr})
	requireErr(t, err, ErrUnauthorized)
	if _, err := e.CancelOwnerTransfer(h.env(), Info{Sender: strangerAddr}); err != nil {
		t.Fatalf("proposed owner cancel: %v", err)
	}
	if pending, _ := e.PendingOwner(); pending != nil {
		t.Fatalf("pending owner must be cleared")
	}
	_, err = e.AcceptOwner(h.env(), Info{Sender: strangerAddr})
	requireErr(t, err, ErrNoOwnerTransferPending)
	if cfg := h.config(); cfg.Owner != ownerAddr {
		t.Fatalf("cancelled handover must not change owner")
	}
}

func TestPauseUnpause(t *testing.T) {
	h := newHarness(t)
	e := h.engine()
	owner := Info{Sender: ownerAddr}
	_, err := e.Unpause(h.env(), owner)
	requireErr(t, err, ErrNotPaused)
	for i := 0; i < 2; i++ {
		if _, err := e.Pause(h.env(), owner); err != nil {
			t.Fatalf("pause %d: %v", i, err)
		}
	}
	if !h.config().Paused {
		t.Fatalf("expected paused")
	}
	if _, err := e.Unpause(h.env(), owner); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if h.config().Paused {
		t.Fatalf("expected unpaused")
	}
}

func TestUpdateRateAndFee(t *testing.T) {
	h := newHarness(t)
	e := h.engine()
	owner := Info{Sender: ownerAddr}

	_, err := e.UpdateRate(h.env(), owner, UpdateRateMsg{RateCredits: amt(0), RateTokens: amt(1)})
	requireErr(t, err, ErrZeroAmount)
	if _, err := e.UpdateRate(h.env(), owner, UpdateRateMsg{RateCredits: amt(1), RateTokens: amt(200)}); err != nil {
		t.Fatalf("update rate: %v", err)
	}

	_, err = e.UpdateFee(h.env(), owner, UpdateFeeMsg{FeeBps: 10_001})
	requireErr(t, err, ErrOverflow)
	resp, err := e.UpdateFee(h.env(), owner, UpdateFeeMsg{FeeBps: 100})
	if err != nil {
		t.Fatalf("update fee: %v", err)
	}
	if got, _ := resp.Attribute("fee_bps"); got != "100" {
		t.Fatalf("fee_bps=%s", got)
	}

	conv, err := e.ConvertCreditsToTokens(amt(10))
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	// 10 credits at 200 tokens each is 2000 gross; 1% fee is 20.
	if conv.TokenAmount.Uint64() != 1_980 || conv.FeeAmount.Uint64() != 20 {
		t.Fatalf("unexpected conversion %+v", conv)
	}
}

func TestUpdateLimitsPartial(t *testing.T) {
	h := newHarness(t)
	cooldown := uint64(60)
	reserve := amt(5)
	resp, err := h.engine().UpdateLimits(h.env(), Info{Sender: ownerAddr}, UpdateLimitsMsg{CooldownSeconds: &cooldown, MinReserve: &reserve})
	if err != nil {
		t.Fatalf("update limits: %v", err)
	}
	cfg := h.config()
	if cfg.CooldownSeconds != 60 || cfg.MinReserve.Uint64() != 5 {
		t.Fatalf("limits not applied: %+v", cfg)
	}
	if cfg.PlayerDailyLimit.Uint64() != 100_000 || cfg.GlobalDailyLimit.Uint64() != 10_000_000 || cfg.MinDeposit.Uint64() != 100_000 {
		t.Fatalf("unset limits must keep their value: %+v", cfg)
	}
	ev := resp.Events[0].(events.BridgeConfigUpdated)
	if len(ev.Fields) != 2 || ev.Fields["cooldown_seconds"] != "60" {
		t.Fatalf("unexpected event fields %v", ev.Fields)
	}
}

func TestFundAndWithdrawTreasury(t *testing.T) {
	h := newHarness(t)
	e := h.engine()

	_, err := e.FundTreasury(h.env(), Info{Sender: ownerAddr})
	requireErr(t, err, ErrNoFundsSent)
	_, err = e.FundTreasury(h.env(), Info{Sender: ownerAddr, Funds: []types.Coin{types.NewCoin("uatom", 5)}})
	requireErr(t, err, ErrWrongDenom)

	h.fundContract(3_000_000)
	resp, err := e.FundTreasury(h.env(), Info{Sender: ownerAddr, Funds: []types.Coin{types.NewCoin(testDenom, 3_000_000)}})
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if got, _ := resp.Attribute("new_balance"); got != "3000000" {
		t.Fatalf("new_balance=%s", got)
	}

	_, err = e.WithdrawTreasury(h.env(), Info{Sender: ownerAddr}, WithdrawTreasuryMsg{Amount: amt(0)})
	requireErr(t, err, ErrZeroAmount)
	_, err = e.WithdrawTreasury(h.env(), Info{Sender: ownerAddr}, WithdrawTreasuryMsg{Amount: amt(2_000_001)})
	requireErr(t, err, ErrReserveBreached)
	_, err = e.WithdrawTreasury(h.env(), Info{Sender: ownerAddr}, WithdrawTreasuryMsg{Amount: amt(9_000_000)})
	requireErr(t, err, ErrReserveBreached)

	resp, err = e.WithdrawTreasury(h.env(), Info{Sender: ownerAddr}, WithdrawTreasuryMsg{Amount: amt(2_000_000)})
	if err != nil {
		t.Fatalf("withdraw treasury: %v", err)
	}
	if got, _ := resp.Attribute("remaining"); got != "1000000" {
		t.Fatalf("remaining=%s", got)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].ToAddress != ownerAddr {
		t.Fatalf("unexpected messages %+v", resp.Messages)
	}
	h.applySends(resp)

	info, err := e.TreasuryInfo(h.env())
	if err != nil {
		t.Fatalf("treasury info: %v", err)
	}
	if info.Balance.Uint64() != 1_000_000 || !info.AvailableForWithdrawal.IsZero() {
		t.Fatalf("unexpected treasury info %+v", info)
	}
	// The peak never falls with a drain.
	if info.PeakBalance.Uint64() != 3_000_000 {
		t.Fatalf("peak=%s", info.PeakBalance)
	}
}
