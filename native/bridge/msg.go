package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Empty is the body of operations that take no arguments.
type Empty struct{}

// ExecuteMsg selects one mutating operation. Exactly one field must be set;
// the JSON form is {"<operation>": {...}}.
type ExecuteMsg struct {
	Deposit              *Empty               `json:"deposit,omitempty"`
	Withdraw             *WithdrawMsg         `json:"withdraw,omitempty"`
	FundTreasury         *Empty               `json:"fund_treasury,omitempty"`
	WithdrawTreasury     *WithdrawTreasuryMsg `json:"withdraw_treasury,omitempty"`
	ProposeOracle        *ProposeOracleMsg    `json:"propose_oracle,omitempty"`
	AcceptOracle         *Empty               `json:"accept_oracle,omitempty"`
	CancelOracleTransfer *Empty               `json:"cancel_oracle_transfer,omitempty"`
	UpdateRate           *UpdateRateMsg       `json:"update_rate,omitempty"`
	UpdateFee            *UpdateFeeMsg        `json:"update_fee,omitempty"`
	UpdateLimits         *UpdateLimitsMsg     `json:"update_limits,omitempty"`
	Pause                *Empty               `json:"pause,omitempty"`
	Unpause              *Empty               `json:"unpause,omitempty"`
	ProposeOwner         *ProposeOwnerMsg     `json:"propose_owner,omitempty"`
	AcceptOwner          *Empty               `json:"accept_owner,omitempty"`
	CancelOwnerTransfer  *Empty               `json:"cancel_owner_transfer,omitempty"`
}

// QueryMsg selects one read-only operation.
type QueryMsg struct {
	Config                 *Empty                `json:"config,omitempty"`
	TreasuryInfo           *Empty                `json:"treasury_info,omitempty"`
	PlayerInfo             *PlayerInfoQuery      `json:"player_info,omitempty"`
	NonceUsed              *NonceUsedQuery       `json:"nonce_used,omitempty"`
	ConvertCreditsToTokens *CreditsToTokensQuery `json:"convert_credits_to_tokens,omitempty"`
	ConvertTokensToCredits *TokensToCreditsQuery `json:"convert_tokens_to_credits,omitempty"`
	PendingOracle          *Empty                `json:"pending_oracle,omitempty"`
	PendingOwner           *Empty                `json:"pending_owner,omitempty"`
	ContractInfo           *Empty                `json:"contract_info,omitempty"`
}

type PlayerInfoQuery struct {
	Address string `json:"address"`
}

type NonceUsedQuery struct {
	Nonce string `json:"nonce"`
}

type CreditsToTokensQuery struct {
	CreditAmount Amount `json:"credit_amount"`
}

type TokensToCreditsQuery struct {
	TokenAmount Amount `json:"token_amount"`
}

// MigrateMsg carries no options.
type MigrateMsg struct{}

// selected returns the json name of the single non-nil field of a message
// struct.
func selected(msg interface{}) (string, error) {
	v := reflect.ValueOf(msg)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	t := v.Type()
	name := ""
	for i := 0; i < v.NumField(); i++ {
		if v.Field(i).IsNil() {
			continue
		}
		if name != "" {
			return "", newError(ErrInvalidMessage, "message must select exactly one operation")
		}
		name, _, _ = strings.Cut(t.Field(i).Tag.Get("json"), ",")
	}
	if name == "" {
		return "", newError(ErrInvalidMessage, "message selects no operation")
	}
	return name, nil
}

// Action returns the operation name selected by msg.
func (m *ExecuteMsg) Action() (string, error) { return selected(m) }

// Action returns the query name selected by msg.
func (m *QueryMsg) Action() (string, error) { return selected(m) }

func decodeStrict(raw []byte, out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return newError(ErrInvalidMessage, fmt.Sprintf("decode message: %v", err))
	}
	return nil
}

// ParseExecuteMsg decodes and validates an execute message.
func ParseExecuteMsg(raw []byte) (*ExecuteMsg, error) {
	var msg ExecuteMsg
	if err := decodeStrict(raw, &msg); err != nil {
		return nil, err
	}
	if _, err := msg.Action(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ParseQueryMsg decodes and validates a query message.
func ParseQueryMsg(raw []byte) (*QueryMsg, error) {
	var msg QueryMsg
	if err := decodeStrict(raw, &msg); err != nil {
		return nil, err
	}
	if _, err := msg.Action(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Execute dispatches msg to the matching operation.
func (e *Engine) Execute(env Env, info Info, msg *ExecuteMsg) (*Response, error) {
	if msg == nil {
		return nil, newError(ErrInvalidMessage, "message required")
	}
	if _, err := msg.Action(); err != nil {
		return nil, err
	}
	switch {
	case msg.Deposit != nil:
		return e.Deposit(env, info)
	case msg.Withdraw != nil:
		return e.Withdraw(env, info, *msg.Withdraw)
	case msg.FundTreasury != nil:
		return e.FundTreasury(env, info)
	case msg.WithdrawTreasury != nil:
		return e.WithdrawTreasury(env, info, *msg.WithdrawTreasury)
	case msg.ProposeOracle != nil:
		return e.ProposeOracle(env, info, *msg.ProposeOracle)
	case msg.AcceptOracle != nil:
		return e.AcceptOracle(env, info)
	case msg.CancelOracleTransfer != nil:
		return e.CancelOracleTransfer(env, info)
	case msg.UpdateRate != nil:
		return e.UpdateRate(env, info, *msg.UpdateRate)
	case msg.UpdateFee != nil:
		return e.UpdateFee(env, info, *msg.UpdateFee)
	case msg.UpdateLimits != nil:
		return e.UpdateLimits(env, info, *msg.UpdateLimits)
	case msg.Pause != nil:
		return e.Pause(env, info)
	case msg.Unpause != nil:
		return e.Unpause(env, info)
	case msg.ProposeOwner != nil:
		return e.ProposeOwner(env, info, *msg.ProposeOwner)
	case msg.AcceptOwner != nil:
		return e.AcceptOwner(env, info)
	case msg.CancelOwnerTransfer != nil:
		return e.CancelOwnerTransfer(env, info)
	}
	return nil, newError(ErrInvalidMessage, "unknown operation")
}

// Query dispatches msg and returns the JSON-encodable result.
func (e *Engine) Query(env Env, msg *QueryMsg) (interface{}, error) {
	if msg == nil {
		return nil, newError(ErrInvalidMessage, "query required")
	}
	if _, err := msg.Action(); err != nil {
		return nil, err
	}
	switch {
	case msg.Config != nil:
		return e.Config()
	case msg.TreasuryInfo != nil:
		return e.TreasuryInfo(env)
	case msg.PlayerInfo != nil:
		return e.PlayerInfo(env, msg.PlayerInfo.Address)
	case msg.NonceUsed != nil:
		return e.NonceUsed(msg.NonceUsed.Nonce)
	case msg.ConvertCreditsToTokens != nil:
		return e.ConvertCreditsToTokens(msg.ConvertCreditsToTokens.CreditAmount)
	case msg.ConvertTokensToCredits != nil:
		return e.ConvertTokensToCredits(msg.ConvertTokensToCredits.TokenAmount)
	case msg.PendingOracle != nil:
		return e.PendingOracle()
	case msg.PendingOwner != nil:
		return e.PendingOwner()
	case msg.ContractInfo != nil:
		return e.ContractInfo()
	}
	return nil, newError(ErrInvalidMessage, "unknown query")
}

// QueryJSON runs a raw JSON query and returns the JSON encoded result.
func (e *Engine) QueryJSON(env Env, raw []byte) (json.RawMessage, error) {
	msg, err := ParseQueryMsg(raw)
	if err != nil {
		return nil, err
	}
	result, err := e.Query(env, msg)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("bridge: encode query result: %w", err)
	}
	return encoded, nil
}
