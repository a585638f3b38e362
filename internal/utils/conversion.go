/*
This file contains conversions from exact amounts to float64 for places that can only hold a
float, such as Prometheus gauges. Nothing in the engine computes with these floats.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"

	"github.com/forgelabs/crucible/internal/types"
)

var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrNotFinite        = errors.New("value is not finite")
)

// SDKIntToFloat64 converts a scaled SDK Int carrying precision decimals to float64.
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if precision < 0 || precision > sdkmath.LegacyPrecision {
		return 0, fmt.Errorf("%w: %d (must be between 0 and %d)", ErrInvalidPrecision, precision, sdkmath.LegacyPrecision)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	f, err := sdkmath.LegacyNewDecFromIntWithPrec(amount, int64(precision)).Float64()
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, f)
	}
	return f, nil
}

// ScaledToFloat64 converts an engine amount (AmountDecimals places) to whole tokens.
func ScaledToFloat64(amount sdkmath.Int) (float64, error) {
	return SDKIntToFloat64(amount, types.AmountDecimals)
}

// LegacyDecToFloat64 converts a rate such as a fee or APR.
func LegacyDecToFloat64(d sdkmath.LegacyDec) (float64, error) {
	if d.IsNil() {
		return 0, ErrAmountNil
	}
	return d.Float64()
}

// DecimalToFloat64 converts a USD value.
func DecimalToFloat64(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
