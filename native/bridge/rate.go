package bridge

import "creditbridge/core/types"

// BasisPointsDenominator is the fee scale; 10000 bps is 100 percent.
const BasisPointsDenominator = 10_000

var bpsDenominator = types.NewAmount(BasisPointsDenominator)

// CreditsToTokens converts credits to the gross token amount at the
// configured rate, rounding down.
func CreditsToTokens(credits Amount, cfg *Config) (Amount, error) {
	tokens, ok := types.MulDiv(credits, cfg.RateTokens, cfg.RateCredits)
	if !ok {
		return Amount{}, fail(ErrOverflow)
	}
	return tokens, nil
}

// TokensToCredits converts tokens to credits at the configured rate, rounding
// down.
func TokensToCredits(tokens Amount, cfg *Config) (Amount, error) {
	credits, ok := types.MulDiv(tokens, cfg.RateCredits, cfg.RateTokens)
	if !ok {
		return Amount{}, fail(ErrOverflow)
	}
	return credits, nil
}

// Fee returns floor(gross * bps / 10000). Small withdrawals can round to a
// zero fee.
func Fee(gross Amount, bps uint16) (Amount, error) {
	fee, ok := types.MulDiv(gross, types.NewAmount(uint64(bps)), bpsDenominator)
	if !ok {
		return Amount{}, fail(ErrOverflow)
	}
	return fee, nil
}

// Quote is the full breakdown of a credit redemption.
type Quote struct {
	Credits Amount
	Gross   Amount
	Fee     Amount
	Net     Amount
}

// QuoteWithdrawal computes what a player receives for credits under cfg.
func QuoteWithdrawal(credits Amount, cfg *Config) (Quote, error) {
	gross, err := CreditsToTokens(credits, cfg)
	if err != nil {
		return Quote{}, err
	}
	fee, err := Fee(gross, cfg.FeeBps)
	if err != nil {
		return Quote{}, err
	}
	net, ok := gross.CheckedSub(fee)
	if !ok {
		return Quote{}, fail(ErrOverflow)
	}
	return Quote{Credits: credits, Gross: gross, Fee: fee, Net: net}, nil
}

func validateRate(credits, tokens Amount) error {
	if credits.IsZero() || tokens.IsZero() {
		return fail(ErrZeroAmount)
	}
	return nil
}

func validateFeeBps(bps uint16) error {
	if bps > BasisPointsDenominator {
		return newError(ErrOverflow, "fee basis points exceed 10000", kv("fee_bps", bps))
	}
	return nil
}
