/*

Scaled integer amounts used across the crucible engine.

Every token quantity is an integer at AmountScale (9 decimals). Exchange rates are
base-per-wrapped at RateScale. Each unit gets its own type so a base amount can never be
handed to something expecting a wrapped amount without an explicit conversion.

*/

package types

import (
	"cosmossdk.io/math"
	"github.com/shopspring/decimal"
)

const (
	// RateScale is the fixed-point scale of an ExchangeRate. A rate of RateScale is 1:1.
	RateScale int64 = 1_000_000_000
	// AmountScale is the fixed-point scale of every token quantity.
	AmountScale int64 = 1_000_000_000
	// AmountDecimals is log10(AmountScale).
	AmountDecimals = 9
)

// BaseAmount is a quantity of a crucible's base token (FOGO, FORGE).
type BaseAmount struct{ math.Int }

// WrappedAmount is a quantity of a crucible's yield-bearing token (cFOGO, cFORGE).
type WrappedAmount struct{ math.Int }

// QuoteAmount is a quantity of the lending pool's quote asset (USDC).
type QuoteAmount struct{ math.Int }

// ExchangeRate is base tokens per wrapped token, scaled by RateScale.
type ExchangeRate struct{ math.Int }

// UsdAmount is a dollar value. It is never mixed with token quantities without a price lookup.
type UsdAmount struct{ decimal.Decimal }

func orZero(i math.Int) math.Int {
	if i.IsNil() {
		return math.ZeroInt()
	}
	return i
}

func NewBaseAmount(i math.Int) BaseAmount       { return BaseAmount{orZero(i)} }
func NewWrappedAmount(i math.Int) WrappedAmount { return WrappedAmount{orZero(i)} }
func NewQuoteAmount(i math.Int) QuoteAmount     { return QuoteAmount{orZero(i)} }
func NewExchangeRate(i math.Int) ExchangeRate   { return ExchangeRate{orZero(i)} }
func NewUsdAmount(d decimal.Decimal) UsdAmount  { return UsdAmount{d} }

func ZeroBase() BaseAmount       { return NewBaseAmount(math.ZeroInt()) }
func ZeroWrapped() WrappedAmount { return NewWrappedAmount(math.ZeroInt()) }
func ZeroQuote() QuoteAmount     { return NewQuoteAmount(math.ZeroInt()) }
func ZeroUsd() UsdAmount         { return UsdAmount{decimal.Zero} }

// InitialRate is the 1:1 rate every crucible starts at.
func InitialRate() ExchangeRate { return NewExchangeRate(math.NewInt(RateScale)) }

// RateFromDec converts a human rate such as 1.0448 into a scaled ExchangeRate, truncating.
func RateFromDec(d math.LegacyDec) ExchangeRate {
	return NewExchangeRate(d.MulInt64(RateScale).TruncateInt())
}

// WholeTokens returns n whole tokens at AmountScale.
func WholeTokens(n int64) math.Int {
	return math.NewInt(n).MulRaw(AmountScale)
}

// ToDecimal renders a scaled integer as a human decimal (9 places).
func ToDecimal(i math.Int) decimal.Decimal {
	if i.IsNil() {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(i.BigInt(), -AmountDecimals)
}

// Float renders the rate as a plain number, e.g. 1.0448.
func (r ExchangeRate) Float() float64 {
	return ToDecimal(r.Int).InexactFloat64()
}

// Value prices a scaled token quantity in USD.
func Value(amount math.Int, price decimal.Decimal) UsdAmount {
	return NewUsdAmount(ToDecimal(amount).Mul(price))
}
