/*

Crucible pool state. A crucible is one base-asset/wrapped-asset market with its own exchange
rate, custody, and APR. Pool is a plain value: the exchange engine plans against a copy and the
registry swaps the copy in on commit.

*/

package types

import (
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/shopspring/decimal"
)

type CrucibleID string

// CrucibleConfig is the static description a crucible is created from.
type CrucibleConfig struct {
	ID            CrucibleID     `json:"id"`
	BaseToken     Token          `json:"base_token"`
	WrappedToken  Token          `json:"wrapped_token"`
	TargetRate    math.LegacyDec `json:"target_rate"`
	APR           math.LegacyDec `json:"apr"`
	InitialSupply math.Int       `json:"initial_supply"` // base units, seeded at 1:1
}

type Pool struct {
	ID               CrucibleID     `json:"id"`
	BaseSymbol       string         `json:"base_symbol"`    // e.g. "FOGO"
	WrappedSymbol    string         `json:"wrapped_symbol"` // e.g. "cFOGO"
	Rate             ExchangeRate   `json:"exchange_rate"`
	TargetRate       ExchangeRate   `json:"target_rate"`
	TotalWrapped     WrappedAmount  `json:"total_wrapped"` // outstanding wrapped supply
	BaseCustody      BaseAmount     `json:"base_custody"`  // base held against the wrapped supply
	FeeRateWrap      math.LegacyDec `json:"fee_rate_wrap"`
	FeeRateUnwrap    math.LegacyDec `json:"fee_rate_unwrap"`
	APR              math.LegacyDec `json:"apr"` // static, never derived from realized yield
	FeesCollected    BaseAmount     `json:"fees_collected"`
	YieldDistributed BaseAmount     `json:"yield_distributed"`

	TotalValueLocked UsdAmount `json:"total_value_locked_usd"` // BaseCustody at the last observed price
}

// CurrentAPY is the display APY in percent.
func (p Pool) CurrentAPY() decimal.Decimal {
	return decimal.RequireFromString(p.APR.String()).Mul(decimal.NewFromInt(100))
}

// PoolSnapshot is the read model handed to callers outside the engine.
type PoolSnapshot struct {
	ID               CrucibleID      `json:"id"`
	BaseSymbol       string          `json:"base_symbol"`
	WrappedSymbol    string          `json:"wrapped_symbol"`
	ExchangeRate     float64         `json:"exchange_rate"`
	RateScaled       ExchangeRate    `json:"exchange_rate_scaled"`
	TargetRate       float64         `json:"target_rate"`
	TotalWrapped     sdk.Coin        `json:"total_wrapped"`
	BaseCustody      sdk.Coin        `json:"base_custody"`
	TotalValueLocked decimal.Decimal `json:"total_value_locked_usd"`
	BasePriceUSD     decimal.Decimal `json:"base_price_usd"`
	WrappedPriceUSD  decimal.Decimal `json:"wrapped_price_usd"`
	APR              decimal.Decimal `json:"apr"`
	CurrentAPY       decimal.Decimal `json:"current_apy"`
	FeesCollected    decimal.Decimal `json:"fees_collected"`
	YieldDistributed decimal.Decimal `json:"yield_distributed"`
	FeeRateWrap      math.LegacyDec  `json:"fee_rate_wrap"`
	FeeRateUnwrap    math.LegacyDec  `json:"fee_rate_unwrap"`
}

// UserBalance is one owner's standing in one crucible.
type UserBalance struct {
	Owner              string        `json:"owner"`
	CrucibleID         CrucibleID    `json:"crucible_id"`
	WrappedBalance     WrappedAmount `json:"wrapped_balance"`
	BaseDeposited      BaseAmount    `json:"base_deposited"`
	EstimatedBaseValue BaseAmount    `json:"estimated_base_value"` // WrappedBalance at the current rate
	CumulativeYieldUSD UsdAmount     `json:"cumulative_yield_usd"` // append-only
}
