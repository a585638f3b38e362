package fixedpoint

import (
	"strings"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"

	"github.com/forgelabs/crucible/internal/types"
)

// ParseAmount turns a human decimal string ("12.5") into a scaled integer.
// Digits past the ninth decimal are truncated. Empty, non-numeric and negative input is a parse error.
func ParseAmount(s string) (math.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.Int{}, errorsmod.Wrap(types.ErrParse, "empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return math.Int{}, errorsmod.Wrapf(types.ErrParse, "negative amount %q", s)
	}
	s = strings.TrimPrefix(s, "+")

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return math.Int{}, errorsmod.Wrapf(types.ErrParse, "no digits in %q", s)
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > types.AmountDecimals {
		frac = frac[:types.AmountDecimals]
	}
	if !allDigits(whole) || !allDigits(frac) {
		return math.Int{}, errorsmod.Wrapf(types.ErrParse, "not a decimal number: %q", s)
	}
	frac += strings.Repeat("0", types.AmountDecimals-len(frac))

	out, ok := math.NewIntFromString(whole + frac)
	if !ok {
		return math.Int{}, errorsmod.Wrapf(types.ErrParse, "amount out of range: %q", s)
	}
	return out, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatAmount renders a scaled integer with trailing zeros trimmed, e.g. "985" or "94.2381317".
func FormatAmount(i math.Int) string {
	return types.ToDecimal(i).String()
}
