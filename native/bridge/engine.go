package bridge

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"creditbridge/core/events"
	"creditbridge/core/types"
	"creditbridge/crypto"
)

const (
	// ContractName is recorded in contract info on instantiate and migrate.
	ContractName = "creditbridge/bridge"
	// ContractVersion is the state layout version written by this code.
	ContractVersion = "0.2.0"
)

var errNilStore = errors.New("bridge engine: storage not configured")

// Engine executes bridge operations against a single invocation's state.
// It holds no state of its own beyond the outflows queued during the
// invocation, so a fresh engine is created for every call.
type Engine struct {
	store  Storage
	ledger Ledger
	prefix crypto.AddressPrefix
}

// NewEngine binds the engine to the invocation's storage and balance view.
func NewEngine(store Storage, ledger Ledger) *Engine {
	return &Engine{store: store, ledger: ledger, prefix: crypto.DefaultPrefix}
}

// SetAddressPrefix overrides the bech32 prefix enforced on addresses.
func (e *Engine) SetAddressPrefix(prefix crypto.AddressPrefix) {
	if prefix == "" {
		prefix = crypto.DefaultPrefix
	}
	e.prefix = prefix
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil {
		return errNilStore
	}
	return nil
}

func (e *Engine) validateAddress(field, addr string) (string, error) {
	parsed, err := crypto.ValidateAddress(strings.TrimSpace(addr), e.prefix)
	if err != nil {
		return "", errInvalidAddress(field, addr, err)
	}
	return parsed.String(), nil
}

func (e *Engine) treasury(env Env, cfg *Config) *Treasury {
	return NewTreasury(e.store, e.ledger, env.Contract, cfg.Denom)
}

// InstantiateMsg carries the initial configuration.
type InstantiateMsg struct {
	Owner            string `json:"owner"`
	Oracle           string `json:"oracle"`
	OraclePubKey     []byte `json:"oracle_pubkey"`
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

// Instantiate validates msg and writes the initial state. It fails if the
// contract already has a configuration.
func (e *Engine) Instantiate(env Env, info Info, msg InstantiateMsg) (*Response, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if ok, err := e.store.KVGet(configKey, nil); err != nil {
		return nil, fmt.Errorf("bridge: load config: %w", err)
	} else if ok {
		return nil, fail(ErrAlreadyInitialised)
	}
	if err := validateRate(msg.RateCredits, msg.RateTokens); err != nil {
		return nil, err
	}
	if err := validateFeeBps(msg.FeeBps); err != nil {
		return nil, err
	}
	if err := ValidatePubKey(msg.OraclePubKey); err != nil {
		return nil, err
	}
	owner, err := e.validateAddress("owner", msg.Owner)
	if err != nil {
		return nil, err
	}
	oracle, err := e.validateAddress("oracle", msg.Oracle)
	if err != nil {
		return nil, err
	}
	treasuryAddr, err := e.validateAddress("treasury", msg.Treasury)
	if err != nil {
		return nil, err
	}
	denom := strings.TrimSpace(msg.Denom)
	if denom == "" {
		return nil, newError(ErrInvalidMessage, "denom required")
	}

	cfg := &Config{
		Owner:            owner,
		Oracle:           oracle,
		OraclePubKey:     append([]byte(nil), msg.OraclePubKey...),
		Denom:            denom,
		RateCredits:      msg.RateCredits,
		RateTokens:       msg.RateTokens,
		FeeBps:           msg.FeeBps,
		Treasury:         treasuryAddr,
		MinDeposit:       msg.MinDeposit,
		PlayerDailyLimit: msg.PlayerDailyLimit,
		GlobalDailyLimit: msg.GlobalDailyLimit,
		CooldownSeconds:  msg.CooldownSeconds,
		MinReserve:       msg.MinReserve,
		ChainID:          msg.ChainID,
	}
	if err := e.store.KVPut(contractInfoKey, ContractInfo{Contract: ContractName, Version: ContractVersion}); err != nil {
		return nil, fmt.Errorf("bridge: save contract info: %w", err)
	}
	if err := saveConfig(e.store, cfg); err != nil {
		return nil, err
	}
	if err := e.store.KVPut(peakBalanceKey, Amount{}); err != nil {
		return nil, fmt.Errorf("bridge: save peak balance: %w", err)
	}
	if err := saveUint64(e.store, globalCounterKey, 0); err != nil {
		return nil, err
	}
	if err := saveUint64(e.store, globalOldestKey, 0); err != nil {
		return nil, err
	}
	return newResponse("instantiate").attr("contract", ContractName), nil
}

func rejectFunds(info Info) error {
	if len(info.Funds) > 0 {
		return fail(ErrUnexpectedFunds)
	}
	return nil
}

func assertOwner(cfg *Config, sender string) error {
	if sender != cfg.Owner {
		return errUnauthorized("owner")
	}
	return nil
}

// singleCoin checks that exactly one coin of the bridge denom was attached.
func singleCoin(info Info, cfg *Config) (types.Coin, error) {
	switch len(info.Funds) {
	case 0:
		return types.Coin{}, fail(ErrNoFundsSent)
	case 1:
	default:
		return types.Coin{}, fail(ErrMultipleDenomsSent)
	}
	sent := info.Funds[0]
	if sent.Denom != cfg.Denom {
		return types.Coin{}, errWrongDenom(cfg.Denom, sent.Denom)
	}
	return sent, nil
}

// Deposit accepts native tokens in exchange for off-chain credits. The
// credit amount is reported for the backend; nothing is minted on-chain.
func (e *Engine) Deposit(env Env, info Info) (*Response, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	cfg, err := loadConfig(e.store)
	if err != nil {
		return nil, err
	}
	if cfg.Paused {
		return nil, fail(ErrPaused)
	}
	sent, err := singleCoin(info, cfg)
	if err != nil {
		return nil, err
	}
	if sent.Amount.Lt(cfg.MinDeposit) {
		return nil, errDepositBelowMinimum(cfg.MinDeposit.String(), cfg.Denom)
	}
	credits, err := TokensToCredits(sent.Amount, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := e.treasury(env, cfg).RatchetPeak(); err != nil {
		return nil, err
	}

	resp := newResponse("deposit").
		attr("sender", info.Sender).
		attr("token_amount", sent.Amount.String()).
		attr("credit_amount", credits.String())
	resp.emit(events.BridgeDeposit{
		Sender:       info.Sender,
		Denom:        cfg.Denom,
		TokenAmount:  sent.Amount,
		CreditAmount: credits,
	})
	return resp, nil
}

// WithdrawMsg is an oracle-authorised credit redemption.
type WithdrawMsg struct {
	Nonce        string `json:"nonce"`
	CreditAmount Amount `json:"credit_amount"`
	TokenAmount  Amount `json:"token_amount"`
	Signature    []byte `json:"signature"`
}

// Withdraw redeems credits for native tokens. Every check runs before any
// write; once the writes are done the payout and fee are queued as transfer
// instructions.
func (e *Engine) Withdraw(env Env, info Info, msg WithdrawMsg) (*Response, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := rejectFunds(info); err != nil {
		return nil, err
	}
	cfg, err := loadConfig(e.store)
	if err != nil {
		return nil, err
	}
	if cfg.Paused {
		return nil, fail(ErrPaused)
	}
	if msg.CreditAmount.IsZero() || msg.TokenAmount.IsZero() {
		return nil, fail(ErrZeroAmount)
	}
	player := info.Sender
	now := env.BlockTime

	if err := CheckNonceFresh(msg.Nonce, now); err != nil {
		return nil, err
	}
	nonces := NewNonceLedger(e.store)
	used, err := nonces.Used(msg.Nonce)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, errNonceAlreadyUsed(msg.Nonce)
	}

	quote, err := QuoteWithdrawal(msg.CreditAmount, cfg)
	if err != nil {
		return nil, err
	}
	if msg.TokenAmount.Cmp(quote.Net) != 0 {
		return nil, errAmountMismatch(msg.CreditAmount.String(), quote.Net.String(), msg.TokenAmount.String())
	}

	digest := WithdrawalDigest(cfg.ChainID, env.Contract, msg.Nonce, player, msg.CreditAmount, msg.TokenAmount)
	if err := VerifyWithdrawal(cfg.OraclePubKey, digest, msg.Signature); err != nil {
		return nil, err
	}

	limiter := NewLimiter(e.store)
	if err := limiter.CheckPlayer(player, msg.CreditAmount, now, cfg); err != nil {
		return nil, err
	}
	if err := limiter.CheckGlobal(msg.CreditAmount, now, cfg); err != nil {
		return nil, err
	}

	outgoing, ok := msg.TokenAmount.CheckedAdd(quote.Fee)
	if !ok {
		return nil, fail(ErrOverflow)
	}
	treasury := e.treasury(env, cfg)
	if err := treasury.CheckPayout(outgoing, cfg.MinReserve); err != nil {
		return nil, err
	}

	if err := nonces.Consume(msg.Nonce); err != nil {
		return nil, err
	}
	pruned, err := limiter.Record(player, WithdrawalRecord{AmountCredits: msg.CreditAmount, Timestamp: now})
	if err != nil {
		return nil, err
	}

	resp := newResponse("withdraw")
	if err := treasury.Queue(outgoing); err != nil {
		return nil, err
	}
	resp.send(player, cfg.Denom, msg.TokenAmount)
	if !quote.Fee.IsZero() {
		resp.send(cfg.Treasury, cfg.Denom, quote.Fee)
	}
	resp.attr("player", player).
		attr("nonce", msg.Nonce).
		attr("credit_amount", msg.CreditAmount.String()).
		attr("token_amount", msg.TokenAmount.String()).
		attr("fee_amount", quote.Fee.String())
	if pruned > 0 {
		resp.attr("pruned_records", strconv.Itoa(pruned))
	}
	resp.emit(events.BridgeWithdrawal{
		Player:       player,
		Nonce:        msg.Nonce,
		CreditAmount: msg.CreditAmount,
		TokenAmount:  msg.TokenAmount,
		FeeAmount:    quote.Fee,
		Timestamp:    now,
	})
	return resp, nil
}

// FundTreasury lets the owner top up the payout reserve.
func (e *Engine) FundTreasury(env Env, info Info) (*Response, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	cfg, err := loadConfig(e.store)
	if err != nil {
		return nil, err
	}
	if err := assertOwner(cfg, info.Sender); err != nil {
		return nil, err
	}
	sent, err := singleCoin(info, cfg)
	if err != nil {
		return nil, err
	}
	treasury := e.treasury(env, cfg)
	if _, err := treasury.RatchetPeak(); err != nil {
		return nil, err
	}
	balance, err := treasury.Balance()
	if err != nil {
		return nil, err
	}
	resp := newResponse("fund_treasury").
		attr("amount", sent.Amount.String()).
		attr("new_balance", balance.String())
	resp.emit(events.BridgeTreasuryFunded{Amount: sent.Amount, NewBalance: balance})
	return resp, nil
}

// WithdrawTreasuryMsg drains excess treasury funds to the owner.
type WithdrawTreasuryMsg struct {
	Amount Amount `json:"amount"`
}

// WithdrawTreasury pays amount to the owner provided the reserve floor holds.
func (e *Engine) WithdrawTreasury(env Env, info Info, msg WithdrawTreasuryMsg) (*Response, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := rejectFunds(info); err != nil {
		return nil, err
	}
	cfg, err := loadConfig(e.store)
	if err != nil {
		return nil, err
	}
	if err := assertOwner(cfg, info.Sender); err != nil {
		return nil, err
	}
	if msg.Amount.IsZero() {
		return nil, fail(ErrZeroAmount)
	}
	treasury := e.treasury(env, cfg)
	remaining, err := treasury.CheckDrain(msg.Amount, cfg.MinReserve)
	if err != nil {
		return nil, err
	}
	if err := treasury.Queue(msg.Amount); err != nil {
		return nil, err
	}
	resp := newResponse("withdraw_treasury").
		send(info.Sender, cfg.Denom, msg.Amount).
		attr("amount", msg.Amount.String()).
		attr("remaining", remaining.String())
	resp.emit(events.BridgeTreasuryWithdrawn{Recipient: info.Sender, Amount: msg.Amount, Remaining: remaining})
	return resp, nil
}
