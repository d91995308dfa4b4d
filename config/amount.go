package config

import (
	"fmt"
	"strconv"
	"strings"

	"creditbridge/core/types"
)

// parseAmount accepts plain decimals plus the operator friendly forms
// "1_000_000" and "1e6". Fractional results are rejected.
func parseAmount(raw string) (types.Amount, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), "_", "")
	if s == "" {
		return types.Amount{}, fmt.Errorf("empty amount")
	}
	mantissa, exp, hasExp := strings.Cut(strings.ToLower(s), "e")
	if !hasExp {
		return types.ParseAmount(s)
	}
	e, err := strconv.Atoi(exp)
	if err != nil || e < 0 {
		return types.Amount{}, fmt.Errorf("invalid exponent in %q", raw)
	}
	whole, frac, _ := strings.Cut(mantissa, ".")
	if len(frac) > e {
		if strings.Trim(frac[e:], "0") != "" {
			return types.Amount{}, fmt.Errorf("amount %q is not an integer", raw)
		}
		frac = frac[:e]
	}
	digits := whole + frac + strings.Repeat("0", e-len(frac))
	return types.ParseAmount(digits)
}
