// Package fees applies the protocol's named fee rates to gross amounts.
package fees

import (
	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"

	"github.com/forgelabs/crucible/internal/fixedpoint"
	"github.com/forgelabs/crucible/internal/types"
)

// Schedule is the process-wide set of fee rates. Every rate is a fraction in [0, 1).
type Schedule struct {
	Wrap            math.LegacyDec `json:"wrap"`
	Unwrap          math.LegacyDec `json:"unwrap"`
	LeveragedOpen   math.LegacyDec `json:"leveraged_open"`
	LeveragedClose  math.LegacyDec `json:"leveraged_close"`
	YieldOnInterest math.LegacyDec `json:"yield_on_interest"`
	Liquidation     math.LegacyDec `json:"liquidation"`
	// YieldShare is the fraction of each collected fee that grows the exchange rate.
	YieldShare math.LegacyDec `json:"yield_share"`
}

// Validate rejects any rate outside [0, 1).
func (s Schedule) Validate() error {
	named := []struct {
		name string
		rate math.LegacyDec
	}{
		{"wrap", s.Wrap},
		{"unwrap", s.Unwrap},
		{"leveraged_open", s.LeveragedOpen},
		{"leveraged_close", s.LeveragedClose},
		{"yield_on_interest", s.YieldOnInterest},
		{"liquidation", s.Liquidation},
		{"yield_share", s.YieldShare},
	}
	for _, n := range named {
		if err := ValidateRate(n.rate); err != nil {
			return errorsmod.Wrapf(err, "%s fee", n.name)
		}
	}
	return nil
}

// ValidateRate checks that r is a usable fee fraction.
func ValidateRate(r math.LegacyDec) error {
	if r.IsNil() {
		return errorsmod.Wrap(types.ErrInvalidRate, "rate not set")
	}
	if r.IsNegative() || r.GTE(math.LegacyOneDec()) {
		return errorsmod.Wrapf(types.ErrInvalidRate, "%s", r)
	}
	return nil
}

// ApplyFee splits gross into net and fee, fee = floor(gross * rate).
func ApplyFee(gross math.Int, rate math.LegacyDec) (net, fee math.Int, err error) {
	if err := ValidateRate(rate); err != nil {
		return math.Int{}, math.Int{}, err
	}
	fee, err = fixedpoint.MulDec(gross, rate)
	if err != nil {
		return math.Int{}, math.Int{}, err
	}
	net, err = fixedpoint.Sub(gross, fee)
	if err != nil {
		return math.Int{}, math.Int{}, err
	}
	return net, fee, nil
}

// SplitFeeForYield divides a collected fee. Rounding dust lands in toProtocol so
// toYield + toProtocol == fee exactly.
func SplitFeeForYield(fee math.Int, yieldShare math.LegacyDec) (toYield, toProtocol math.Int, err error) {
	if err := ValidateRate(yieldShare); err != nil {
		return math.Int{}, math.Int{}, err
	}
	toYield, err = fixedpoint.MulDec(fee, yieldShare)
	if err != nil {
		return math.Int{}, math.Int{}, err
	}
	toProtocol, err = fixedpoint.Sub(fee, toYield)
	if err != nil {
		return math.Int{}, math.Int{}, err
	}
	return toYield, toProtocol, nil
}
