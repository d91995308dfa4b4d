package bridge

import (
	"fmt"
	"strconv"

	"creditbridge/core/events"
)

const (
	roleOracle = "oracle"
	roleOwner  = "owner"

	stageProposed  = "proposed"
	stageAccepted  = "accepted"
	stageCancelled = "cancelled"
)

// nonPayableConfig loads the config for an operation that takes no funds.
func (e *Engine) nonPayableConfig(info Info) (*Config, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := rejectFunds(info); err != nil {
		return nil, err
	}
	return loadConfig(e.store)
}

// ownerConfig loads the config for an owner-only, non-payable operation.
func (e *Engine) ownerConfig(info Info) (*Config, error) {
	cfg, err := e.nonPayableConfig(info)
	if err != nil {
		return nil, err
	}
	if err := assertOwner(cfg, info.Sender); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProposeOracleMsg starts an oracle rotation.
type ProposeOracleMsg struct {
	NewOracle string `json:"new_oracle"`
	NewPubKey []byte `json:"new_pubkey"`
}

// ProposeOracle records a pending oracle rotation. The new key is validated
// before anything is stored.
func (e *Engine) ProposeOracle(env Env, info Info, msg ProposeOracleMsg) (*Response, error) {
	if _, err := e.ownerConfig(info); err != nil {
		return nil, err
	}
	if err := ValidatePubKey(msg.NewPubKey); err != nil {
		return nil, err
	}
	pending, err := loadPendingOracle(e.store)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, fail(ErrOracleTransferAlreadyPending)
	}
	proposed, err := e.validateAddress("new_oracle", msg.NewOracle)
	if err != nil {
		return nil, err
	}
	record := PendingOracleTransfer{ProposedOracle: proposed, ProposedPubKey: append([]byte(nil), msg.NewPubKey...)}
	if err := e.store.KVPut(pendingOracleKey, record); err != nil {
		return nil, fmt.Errorf("bridge: save pending oracle: %w", err)
	}
	return newResponse("propose_oracle").
		attr("proposed_oracle", proposed).
		emit(events.BridgeRoleTransfer{Role: roleOracle, Stage: stageProposed, Account: proposed}), nil
}

// AcceptOracle completes a rotation. Only the proposed oracle may call it.
func (e *Engine) AcceptOracle(env Env, info Info) (*Response, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := rejectFunds(info); err != nil {
		return nil, err
	}
	pending, err := loadPendingOracle(e.store)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, fail(ErrNoOracleTransferPending)
	}
	if info.Sender != pending.ProposedOracle {
		return nil, fail(ErrNotPendingOracle)
	}
	cfg, err := loadConfig(e.store)
	if err != nil {
		return nil, err
	}
	cfg.Oracle = pending.ProposedOracle
	cfg.OraclePubKey = pending.ProposedPubKey
	if err := saveConfig(e.store, cfg); err != nil {
		return nil, err
	}
	if err := e.store.KVDelete(pendingOracleKey); err != nil {
		return nil, fmt.Errorf("bridge: clear pending oracle: %w", err)
	}
	return newResponse("accept_oracle").
		attr("new_oracle", pending.ProposedOracle).
		emit(events.BridgeRoleTransfer{Role: roleOracle, Stage: stageAccepted, Account: pending.ProposedOracle}), nil
}

// CancelOracleTransfer drops a pending rotation. Either the owner or the
// proposed oracle may cancel before acceptance.
func (e *Engine) CancelOracleTransfer(env Env, info Info) (*Response, error) {
	cfg, err := e.nonPayableConfig(info)
	if err != nil {
		return nil, err
	}
	pending, err := loadPendingOracle(e.store)
	if err != nil {
		return nil, err
	}
	proposed := pending != nil && info.Sender == pending.ProposedOracle
	if info.Sender != cfg.Owner && !proposed {
		return nil, errUnauthorized("owner or proposed oracle")
	}
	if pending == nil {
		return nil, fail(ErrNoOracleTransferPending)
	}
	if err := e.store.KVDelete(pendingOracleKey); err != nil {
		return nil, fmt.Errorf("bridge: clear pending oracle: %w", err)
	}
	return newResponse("cancel_oracle_transfer").
		emit(events.BridgeRoleTransfer{Role: roleOracle, Stage: stageCancelled, Account: pending.ProposedOracle}), nil
}

// UpdateRateMsg replaces the conversion ratio.
type UpdateRateMsg struct {
	RateCredits Amount `json:"rate_credits"`
	RateTokens  Amount `json:"rate_tokens"`
}

// UpdateRate replaces the credits:tokens ratio. Neither side may be zero.
func (e *Engine) UpdateRate(env Env, info Info, msg UpdateRateMsg) (*Response, error) {
	cfg, err := e.ownerConfig(info)
	if err != nil {
		return nil, err
	}
	if err := validateRate(msg.RateCredits, msg.RateTokens); err != nil {
		return nil, err
	}
	cfg.RateCredits = msg.RateCredits
	cfg.RateTokens = msg.RateTokens
	if err := saveConfig(e.store, cfg); err != nil {
		return nil, err
	}
	fields := map[string]string{
		"rate_credits": msg.RateCredits.String(),
		"rate_tokens":  msg.RateTokens.String(),
	}
	return newResponse("update_rate").
		attr("rate_credits", fields["rate_credits"]).
		attr("rate_tokens", fields["rate_tokens"]).
		emit(events.BridgeConfigUpdated{Action: "update_rate", Fields: fields}), nil
}

// UpdateFeeMsg replaces the withdrawal fee.
type UpdateFeeMsg struct {
	FeeBps uint16 `json:"fee_bps"`
}

// UpdateFee sets the withdrawal fee in basis points.
func (e *Engine) UpdateFee(env Env, info Info, msg UpdateFeeMsg) (*Response, error) {
	cfg, err := e.ownerConfig(info)
	if err != nil {
		return nil, err
	}
	if err := validateFeeBps(msg.FeeBps); err != nil {
		return nil, err
	}
	cfg.FeeBps = msg.FeeBps
	if err := saveConfig(e.store, cfg); err != nil {
		return nil, err
	}
	bps := strconv.FormatUint(uint64(msg.FeeBps), 10)
	return newResponse("update_fee").
		attr("fee_bps", bps).
		emit(events.BridgeConfigUpdated{Action: "update_fee", Fields: map[string]string{"fee_bps": bps}}), nil
}

// UpdateLimitsMsg overrides any subset of the risk limits; nil fields keep
// their current value.
type UpdateLimitsMsg struct {
	PlayerDailyLimit *Amount `json:"player_daily_limit,omitempty"`
	GlobalDailyLimit *Amount `json:"global_daily_limit,omitempty"`
	CooldownSeconds  *uint64 `json:"cooldown_seconds,omitempty"`
	MinDeposit       *Amount `json:"min_deposit,omitempty"`
	MinReserve       *Amount `json:"min_reserve,omitempty"`
}

// UpdateLimits applies the non-nil fields of msg to the risk limits.
func (e *Engine) UpdateLimits(env Env, info Info, msg UpdateLimitsMsg) (*Response, error) {
	cfg, err := e.ownerConfig(info)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]string)
	if msg.PlayerDailyLimit != nil {
		cfg.PlayerDailyLimit = *msg.PlayerDailyLimit
		fields["player_daily_limit"] = cfg.PlayerDailyLimit.String()
	}
	if msg.GlobalDailyLimit != nil {
		cfg.GlobalDailyLimit = *msg.GlobalDailyLimit
		fields["global_daily_limit"] = cfg.GlobalDailyLimit.String()
	}
	if msg.CooldownSeconds != nil {
		cfg.CooldownSeconds = *msg.CooldownSeconds
		fields["cooldown_seconds"] = strconv.FormatUint(cfg.CooldownSeconds, 10)
	}
	if msg.MinDeposit != nil {
		cfg.MinDeposit = *msg.MinDeposit
		fields["min_deposit"] = cfg.MinDeposit.String()
	}
	if msg.MinReserve != nil {
		cfg.MinReserve = *msg.MinReserve
		fields["min_reserve"] = cfg.MinReserve.String()
	}
	if err := saveConfig(e.store, cfg); err != nil {
		return nil, err
	}
	return newResponse("update_limits").
		emit(events.BridgeConfigUpdated{Action: "update_limits", Fields: fields}), nil
}

// Pause halts deposits and withdrawals. Pausing twice is allowed.
func (e *Engine) Pause(env Env, info Info) (*Response, error) {
	cfg, err := e.ownerConfig(info)
	if err != nil {
		return nil, err
	}
	cfg.Paused = true
	if err := saveConfig(e.store, cfg); err != nil {
		return nil, err
	}
	return newResponse("pause").
		emit(events.BridgeConfigUpdated{Action: "pause", Fields: map[string]string{"paused": "true"}}), nil
}

// Unpause resumes deposits and withdrawals. It fails if the bridge is not
// paused.
func (e *Engine) Unpause(env Env, info Info) (*Response, error) {
	cfg, err := e.ownerConfig(info)
	if err != nil {
		return nil, err
	}
	if !cfg.Paused {
		return nil, fail(ErrNotPaused)
	}
	cfg.Paused = false
	if err := saveConfig(e.store, cfg); err != nil {
		return nil, err
	}
	return newResponse("unpause").
		emit(events.BridgeConfigUpdated{Action: "unpause", Fields: map[string]string{"paused": "false"}}), nil
}

// ProposeOwnerMsg starts an ownership handover.
type ProposeOwnerMsg struct {
	NewOwner string `json:"new_owner"`
}

// ProposeOwner records a pending ownership handover.
func (e *Engine) ProposeOwner(env Env, info Info, msg ProposeOwnerMsg) (*Response, error) {
	if _, err := e.ownerConfig(info); err != nil {
		return nil, err
	}
	pending, err := loadPendingOwner(e.store)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, fail(ErrOwnerTransferAlreadyPending)
	}
	proposed, err := e.validateAddress("new_owner", msg.NewOwner)
	if err != nil {
		return nil, err
	}
	if err := e.store.KVPut(pendingOwnerKey, PendingOwnerTransfer{ProposedOwner: proposed}); err != nil {
		return nil, fmt.Errorf("bridge: save pending owner: %w", err)
	}
	return newResponse("propose_owner").
		attr("proposed_owner", proposed).
		emit(events.BridgeRoleTransfer{Role: roleOwner, Stage: stageProposed, Account: proposed}), nil
}

// AcceptOwner completes a handover. Only the proposed owner may call it.
func (e *Engine) AcceptOwner(env Env, info Info) (*Response, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := rejectFunds(info); err != nil {
		return nil, err
	}
	pending, err := loadPendingOwner(e.store)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, fail(ErrNoOwnerTransferPending)
	}
	if info.Sender != pending.ProposedOwner {
		return nil, fail(ErrNotPendingOwner)
	}
	cfg, err := loadConfig(e.store)
	if err != nil {
		return nil, err
	}
	cfg.Owner = pending.ProposedOwner
	if err := saveConfig(e.store, cfg); err != nil {
		return nil, err
	}
	if err := e.store.KVDelete(pendingOwnerKey); err != nil {
		return nil, fmt.Errorf("bridge: clear pending owner: %w", err)
	}
	return newResponse("accept_owner").
		attr("new_owner", pending.ProposedOwner).
		emit(events.BridgeRoleTransfer{Role: roleOwner, Stage: stageAccepted, Account: pending.ProposedOwner}), nil
}

// CancelOwnerTransfer drops a pending handover. Either the current owner or
// the proposed owner may cancel before acceptance.
func (e *Engine) CancelOwnerTransfer(env Env, info Info) (*Response, error) {
	cfg, err := e.nonPayableConfig(info)
	if err != nil {
		return nil, err
	}
	pending, err := loadPendingOwner(e.store)
	if err != nil {
		return nil, err
	}
	proposed := pending != nil && info.Sender == pending.ProposedOwner
	if info.Sender != cfg.Owner && !proposed {
		return nil, errUnauthorized("owner or proposed owner")
	}
	if pending == nil {
		return nil, fail(ErrNoOwnerTransferPending)
	}
	if err := e.store.KVDelete(pendingOwnerKey); err != nil {
		return nil, fmt.Errorf("bridge: clear pending owner: %w", err)
	}
	return newResponse("cancel_owner_transfer").
		emit(events.BridgeRoleTransfer{Role: roleOwner, Stage: stageCancelled, Account: pending.ProposedOwner}), nil
}
