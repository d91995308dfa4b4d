package bridge

// Config returns the current configuration.
func (e *Engine) Config() (*Config, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return loadConfig(e.store)
}

// TreasuryInfo reports the contract balance, the reserve floor, the peak
// and what the owner could withdraw right now.
func (e *Engine) TreasuryInfo(env Env) (*TreasuryInfo, error) {
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	treasury := e.treasury(env, cfg)
	balance, err := treasury.Balance()
	if err != nil {
		return nil, err
	}
	peak, err := treasury.Peak()
	if err != nil {
		return nil, err
	}
	return &TreasuryInfo{
		Balance:                balance,
		MinReserve:             cfg.MinReserve,
		PeakBalance:            peak,
		AvailableForWithdrawal: balance.SaturatingSub(cfg.MinReserve),
	}, nil
}

// PlayerInfo reports the player's window usage and cooldown.
func (e *Engine) PlayerInfo(env Env, address string) (*PlayerInfo, error) {
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	player, err := e.validateAddress("address", address)
	if err != nil {
		return nil, err
	}
	limiter := NewLimiter(e.store)
	used, err := limiter.PlayerUsage(player, env.BlockTime)
	if err != nil {
		return nil, err
	}
	info := &PlayerInfo{
		Withdrawals24h: used,
		DailyLimit:     cfg.PlayerDailyLimit,
		RemainingLimit: cfg.PlayerDailyLimit.SaturatingSub(used),
	}
	last, ok, err := limiter.LastWithdrawal(player)
	if err != nil {
		return nil, err
	}
	if ok {
		until := saturatingAdd(last, cfg.CooldownSeconds)
		info.CooldownUntil = &until
	}
	return info, nil
}

// NonceUsed reports whether nonce has been redeemed.
func (e *Engine) NonceUsed(nonce string) (*NonceStatus, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	used, err := NewNonceLedger(e.store).Used(nonce)
	if err != nil {
		return nil, err
	}
	return &NonceStatus{Used: used}, nil
}

// ConvertCreditsToTokens previews the net payout and fee for credits.
func (e *Engine) ConvertCreditsToTokens(credits Amount) (*Conversion, error) {
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	quote, err := QuoteWithdrawal(credits, cfg)
	if err != nil {
		return nil, err
	}
	return &Conversion{CreditAmount: credits, TokenAmount: quote.Net, FeeAmount: quote.Fee}, nil
}

// ConvertTokensToCredits previews the credits a deposit of tokens yields.
// Deposits carry no fee.
func (e *Engine) ConvertTokensToCredits(tokens Amount) (*Conversion, error) {
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	credits, err := TokensToCredits(tokens, cfg)
	if err != nil {
		return nil, err
	}
	return &Conversion{CreditAmount: credits, TokenAmount: tokens}, nil
}

// PendingOracle returns the proposed oracle rotation, or nil.
func (e *Engine) PendingOracle() (*PendingOracleTransfer, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return loadPendingOracle(e.store)
}

// PendingOwner returns the proposed ownership handover, or nil.
func (e *Engine) PendingOwner() (*PendingOwnerTransfer, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return loadPendingOwner(e.store)
}

// ContractInfo returns the stored name and version, or nil before
// instantiation.
func (e *Engine) ContractInfo() (*ContractInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return loadContractInfo(e.store)
}
