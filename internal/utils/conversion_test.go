package utils

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestScaledToFloat64(t *testing.T) {
	f, err := ScaledToFloat64(sdkmath.NewInt(1_044_800_000))
	require.NoError(t, err)
	require.InDelta(t, 1.0448, f, 1e-12)

	_, err = ScaledToFloat64(sdkmath.Int{})
	require.ErrorIs(t, err, ErrAmountNil)

	_, err = SDKIntToFloat64(sdkmath.OneInt(), 19)
	require.ErrorIs(t, err, ErrInvalidPrecision)
}

func TestRateConversions(t *testing.T) {
	f, err := LegacyDecToFloat64(sdkmath.LegacyMustNewDecFromStr("0.015"))
	require.NoError(t, err)
	require.InDelta(t, 0.015, f, 1e-12)

	_, err = LegacyDecToFloat64(sdkmath.LegacyDec{})
	require.ErrorIs(t, err, ErrAmountNil)

	require.InDelta(t, 3225500.0, DecimalToFloat64(decimal.RequireFromString("3225500")), 1e-9)
}
