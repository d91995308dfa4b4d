package bridge

import (
	"creditbridge/core/events"
	"creditbridge/core/types"
)

// Amount is the unsigned 128-bit quantity used for credits and tokens.
type Amount = types.Amount

// Config is the bridge configuration singleton. Handlers load it explicitly
// at the start of every invocation and save it back when they change it.
type Config struct {
	Owner            string `json:"owner"`
	Oracle           string `json:"oracle"`
	OraclePubKey     []byte `json:"oracle_pubkey"`
	Paused           bool   `json:"paused"`
	Denom            string `json:"denom"`
	RateCredits      Amount `json:"rate_credits"`
	RateTokens       Amount `json:"rate_tokens"`
	FeeBps           uint16 `json:"fee_bps"`
	Treasury         string `json:"treasury"`
	MinDeposit       Amount `json:"min_deposit"`
	PlayerDailyLimit Amount `json:"player_daily_limit"`
	GlobalDailyLimit Amount `json:"global_daily_limit"`
	CooldownSeconds  uint64 `json:"cooldown_seconds"`
	MinReserve       Amount `json:"min_reserve"`
	ChainID          string `json:"chain_id"`
}

// WithdrawalRecord is a committed withdrawal used by the rolling windows.
type WithdrawalRecord struct {
	AmountCredits Amount `json:"amount_credits"`
	Timestamp     uint64 `json:"timestamp"`
}

// PendingOracleTransfer is the proposed oracle rotation awaiting acceptance.
type PendingOracleTransfer struct {
	ProposedOracle string `json:"proposed_oracle"`
	ProposedPubKey []byte `json:"proposed_pubkey"`
}

// PendingOwnerTransfer is the proposed ownership handover.
type PendingOwnerTransfer struct {
	ProposedOwner string `json:"proposed_owner"`
}

// ContractInfo identifies the code version that last wrote the state.
type ContractInfo struct {
	Contract string `json:"contract"`
	Version  string `json:"version"`
}

// Env describes the block the invocation runs in.
type Env struct {
	// BlockTime is unix seconds. It never decreases between invocations.
	BlockTime uint64
	// Contract is the bridge account address; it holds the treasury funds
	// and is bound into every withdrawal signature.
	Contract string
}

// Info describes the caller of an invocation.
type Info struct {
	Sender string
	Funds  []types.Coin
}

// Attribute is an ordered key/value pair reported back to the caller.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Response is the outcome of a successful mutating invocation. Messages are
// transfer instructions the host applies after the state writes are in place.
type Response struct {
	Attributes []Attribute      `json:"attributes"`
	Messages   []types.BankSend `json:"messages,omitempty"`
	Events     []events.Event   `json:"-"`
}

func newResponse(action string) *Response {
	return &Response{Attributes: []Attribute{{Key: "action", Value: action}}}
}

func (r *Response) attr(key, value string) *Response {
	r.Attributes = append(r.Attributes, Attribute{Key: key, Value: value})
	return r
}

func (r *Response) send(to, denom string, amount Amount) *Response {
	r.Messages = append(r.Messages, types.BankSend{
		ToAddress: to,
		Amount:    []types.Coin{{Denom: denom, Amount: amount}},
	})
	return r
}

func (r *Response) emit(ev events.Event) *Response {
	r.Events = append(r.Events, ev)
	return r
}

// Attribute returns the first value stored under key.
func (r *Response) Attribute(key string) (string, bool) {
	for _, a := range r.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// TreasuryInfo reports the contract's native balance and reserve state.
type TreasuryInfo struct {
	Balance                Amount `json:"balance"`
	MinReserve             Amount `json:"min_reserve"`
	PeakBalance            Amount `json:"peak_balance"`
	AvailableForWithdrawal Amount `json:"available_for_withdrawal"`
}

// PlayerInfo reports a player's rolling-window usage.
type PlayerInfo struct {
	Withdrawals24h Amount  `json:"withdrawals_24h"`
	DailyLimit     Amount  `json:"daily_limit"`
	RemainingLimit Amount  `json:"remaining_limit"`
	CooldownUntil  *uint64 `json:"cooldown_until"`
}

// NonceStatus reports whether a nonce has been consumed.
type NonceStatus struct {
	Used bool `json:"used"`
}

// Conversion previews a rate conversion.
type Conversion struct {
	CreditAmount Amount `json:"credit_amount"`
	TokenAmount  Amount `json:"token_amount"`
	FeeAmount    Amount `json:"fee_amount"`
}
