package events

import (
	"strconv"
	"strings"

	"creditbridge/core/types"
)

const (
	// TypeBridgeDeposit is emitted when a player locks native tokens. The game
	// backend credits the player's off-chain balance when it observes it.
	TypeBridgeDeposit = "bridge.deposit"
	// TypeBridgeWithdrawal is emitted when an oracle-signed claim pays out.
	TypeBridgeWithdrawal = "bridge.withdrawal"
	// TypeBridgeTreasuryFunded is emitted when the owner tops up the treasury.
	TypeBridgeTreasuryFunded = "bridge.treasury_funded"
	// TypeBridgeTreasuryWithdrawn is emitted when the owner drains excess funds.
	TypeBridgeTreasuryWithdrawn = "bridge.treasury_withdrawn"
	// TypeBridgeRoleTransfer covers the propose/accept/cancel handover steps
	// for the oracle and owner roles.
	TypeBridgeRoleTransfer = "bridge.role_transfer"
	// TypeBridgeConfigUpdated is emitted for rate, fee, limit and pause changes.
	TypeBridgeConfigUpdated = "bridge.config_updated"
	// TypeBridgeMigrated is emitted after a state migration.
	TypeBridgeMigrated = "bridge.migrated"
)

// BridgeDeposit records a deposit and the credits it is worth.
type BridgeDeposit struct {
	Sender       string
	Denom        string
	TokenAmount  types.Amount
	CreditAmount types.Amount
}

func (BridgeDeposit) EventType() string { return TypeBridgeDeposit }

func (e BridgeDeposit) Event() *types.Event {
	return &types.Event{
		Type: TypeBridgeDeposit,
		Attributes: map[string]string{
			"sender":       strings.TrimSpace(e.Sender),
			"denom":        strings.TrimSpace(e.Denom),
			"tokenAmount":  e.TokenAmount.String(),
			"creditAmount": e.CreditAmount.String(),
		},
	}
}

// BridgeWithdrawal records an authorised payout.
type BridgeWithdrawal struct {
	Player       string
	Nonce        string
	CreditAmount types.Amount
	TokenAmount  types.Amount
	FeeAmount    types.Amount
	Timestamp    uint64
}

func (BridgeWithdrawal) EventType() string { return TypeBridgeWithdrawal }

func (e BridgeWithdrawal) Event() *types.Event {
	return &types.Event{
		Type: TypeBridgeWithdrawal,
		Attributes: map[string]string{
			"player":       strings.TrimSpace(e.Player),
			"nonce":        e.Nonce,
			"creditAmount": e.CreditAmount.String(),
			"tokenAmount":  e.TokenAmount.String(),
			"feeAmount":    e.FeeAmount.String(),
			"timestamp":    strconv.FormatUint(e.Timestamp, 10),
		},
	}
}

// BridgeTreasuryFunded tracks owner top-ups.
type BridgeTreasuryFunded struct {
	Amount     types.Amount
	NewBalance types.Amount
}

func (BridgeTreasuryFunded) EventType() string { return TypeBridgeTreasuryFunded }

func (e BridgeTreasuryFunded) Event() *types.Event {
	return &types.Event{
		Type: TypeBridgeTreasuryFunded,
		Attributes: map[string]string{
			"amount":     e.Amount.String(),
			"newBalance": e.NewBalance.String(),
		},
	}
}

// BridgeTreasuryWithdrawn tracks owner withdrawals of excess reserve.
type BridgeTreasuryWithdrawn struct {
	Recipient string
	Amount    types.Amount
	Remaining types.Amount
}

func (BridgeTreasuryWithdrawn) EventType() string { return TypeBridgeTreasuryWithdrawn }

func (e BridgeTreasuryWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeBridgeTreasuryWithdrawn,
		Attributes: map[string]string{
			"recipient": strings.TrimSpace(e.Recipient),
			"amount":    e.Amount.String(),
			"remaining": e.Remaining.String(),
		},
	}
}

// BridgeRoleTransfer reports a step in a two-step role handover.
type BridgeRoleTransfer struct {
	Role    string
	Stage   string
	Account string
}

func (BridgeRoleTransfer) EventType() string { return TypeBridgeRoleTransfer }

func (e BridgeRoleTransfer) Event() *types.Event {
	attrs := map[string]string{
		"role":  e.Role,
		"stage": e.Stage,
	}
	if account := strings.TrimSpace(e.Account); account != "" {
		attrs["account"] = account
	}
	return &types.Event{Type: TypeBridgeRoleTransfer, Attributes: attrs}
}

// BridgeConfigUpdated lists the configuration fields an admin call changed.
type BridgeConfigUpdated struct {
	Action string
	Fields map[string]string
}

func (BridgeConfigUpdated) EventType() string { return TypeBridgeConfigUpdated }

func (e BridgeConfigUpdated) Event() *types.Event {
	attrs := make(map[string]string, len(e.Fields)+1)
	for k, v := range e.Fields {
		attrs[k] = v
	}
	attrs["action"] = e.Action
	return &types.Event{Type: TypeBridgeConfigUpdated, Attributes: attrs}
}

// BridgeMigrated reports the version written by a migration and how many
// legacy global records were converted.
type BridgeMigrated struct {
	Version         string
	LegacyConverted uint64
}

func (BridgeMigrated) EventType() string { return TypeBridgeMigrated }

func (e BridgeMigrated) Event() *types.Event {
	return &types.Event{
		Type: TypeBridgeMigrated,
		Attributes: map[string]string{
			"version":         e.Version,
			"legacyConverted": strconv.FormatUint(e.LegacyConverted, 10),
		},
	}
}
