/*

This file contains the default parameters for the crucible engine.

They are used whenever no crucible file is configured and no active fee schedule has been
persisted yet.

*/

package config

import (
	"cosmossdk.io/math"

	"github.com/forgelabs/crucible/internal/fees"
	"github.com/forgelabs/crucible/internal/lending"
	"github.com/forgelabs/crucible/internal/types"
)

// DefaultTargetRate is the exchange rate every default crucible grows toward.
var DefaultTargetRate = math.LegacyMustNewDecFromStr("1.0448")

// DefaultFeeSchedule provides the baseline fee rates.
var DefaultFeeSchedule = fees.Schedule{
	Wrap: math.LegacyMustNewDecFromStr("0.015"), // 1.5% on deposits.
	// Rationale: a third of every wrap fee grows the exchange rate, so wrap volume is what
	// carries holders toward the target rate.

	Unwrap: math.LegacyMustNewDecFromStr("0.015"), // 1.5% taken from unwrap proceeds.

	LeveragedOpen: math.LegacyMustNewDecFromStr("0.015"), // Same as a wrap; the base leg is a wrap.

	LeveragedClose: math.LegacyMustNewDecFromStr("0.02"), // 2%, exposed but not charged on close.

	YieldOnInterest: math.LegacyMustNewDecFromStr("0.1"),
	Liquidation:     math.LegacyMustNewDecFromStr("0.1"),

	YieldShare: math.LegacyMustNewDecFromStr("0.33"), // Share of each fee credited to holders.
	// Rationale: the remaining two thirds stay with the protocol as FeesCollected.
}

// DefaultCrucibles are the two seeded markets.
var DefaultCrucibles = []types.CrucibleConfig{
	{
		ID:            "fogo-crucible",
		BaseToken:     types.Token{Symbol: "FOGO", Name: "Fogo"},
		WrappedToken:  types.Token{Symbol: "cFOGO", Name: "Fogo Crucible"},
		TargetRate:    DefaultTargetRate,
		APR:           math.LegacyMustNewDecFromStr("0.18"),
		InitialSupply: types.WholeTokens(6_450_000), // $3.225M at $0.50
	},
	{
		ID:            "forge-crucible",
		BaseToken:     types.Token{Symbol: "FORGE", Name: "Forge"},
		WrappedToken:  types.Token{Symbol: "cFORGE", Name: "Forge Crucible"},
		TargetRate:    DefaultTargetRate,
		APR:           math.LegacyMustNewDecFromStr("0.32"),
		InitialSupply: types.WholeTokens(537_500_000), // $1.075M at $0.002
	},
}

// DefaultLendingPool funds leveraged positions.
var DefaultLendingPool = lending.Config{
	QuoteSymbol:        "USDC",
	InitialLiquidity:   types.WholeTokens(1_000_000),
	InterestRateAnnual: math.LegacyMustNewDecFromStr("0.05"),
}
