package fees

import (
	"testing"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/forgelabs/crucible/internal/types"
)

func dec(s string) math.LegacyDec { return math.LegacyMustNewDecFromStr(s) }

func TestApplyFee(t *testing.T) {
	cases := []struct {
		name  string
		gross math.Int
		rate  string
		net   math.Int
		fee   math.Int
	}{
		{"wrap 1.5% of 1000", types.WholeTokens(1000), "0.015", types.WholeTokens(985), types.WholeTokens(15)},
		{"zero rate", types.WholeTokens(10), "0", types.WholeTokens(10), math.ZeroInt()},
		{"fee floors", math.NewInt(133), "0.015", math.NewInt(132), math.NewInt(1)},
		{"dust below one unit", math.NewInt(66), "0.015", math.NewInt(66), math.ZeroInt()},
		{"zero gross", math.ZeroInt(), "0.02", math.ZeroInt(), math.ZeroInt()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			net, fee, err := ApplyFee(tc.gross, dec(tc.rate))
			require.NoError(t, err)
			require.Equal(t, tc.net.String(), net.String())
			require.Equal(t, tc.fee.String(), fee.String())
			require.Equal(t, tc.gross.String(), net.Add(fee).String())
		})
	}
}

func TestApplyFeeRejectsInvalidRate(t *testing.T) {
	for _, r := range []string{"1", "1.5", "-0.01"} {
		_, _, err := ApplyFee(types.WholeTokens(1), dec(r))
		require.ErrorIs(t, err, types.ErrInvalidRate, r)
		require.True(t, types.IsConfigError(err))
	}
	_, _, err := ApplyFee(types.WholeTokens(1), math.LegacyDec{})
	require.ErrorIs(t, err, types.ErrInvalidRate)
}

func TestSplitFeeForYield(t *testing.T) {
	toYield, toProtocol, err := SplitFeeForYield(types.WholeTokens(15), dec("0.33"))
	require.NoError(t, err)
	require.Equal(t, math.NewInt(4_950_000_000).String(), toYield.String())
	require.Equal(t, math.NewInt(10_050_000_000).String(), toProtocol.String())

	// Remainder goes to protocol.
	toYield, toProtocol, err = SplitFeeForYield(math.NewInt(10), dec("0.33"))
	require.NoError(t, err)
	require.Equal(t, "3", toYield.String())
	require.Equal(t, "7", toProtocol.String())

	for i := int64(0); i < 200; i++ {
		fee := math.NewInt(i * 7)
		y, p, err := SplitFeeForYield(fee, dec("0.333333333333333333"))
		require.NoError(t, err)
		require.Equal(t, fee.String(), y.Add(p).String())
	}
}

func TestScheduleValidate(t *testing.T) {
	s := Schedule{
		Wrap:            dec("0.015"),
		Unwrap:          dec("0.015"),
		LeveragedOpen:   dec("0.015"),
		LeveragedClose:  dec("0.02"),
		YieldOnInterest: dec("0.1"),
		Liquidation:     dec("0.1"),
		YieldShare:      dec("0.33"),
	}
	require.NoError(t, s.Validate())

	s.Unwrap = dec("1")
	err := s.Validate()
	require.ErrorIs(t, err, types.ErrInvalidRate)
	require.Contains(t, err.Error(), "unwrap")
}
