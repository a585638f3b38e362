/*

LP and leveraged positions. A position's terms are a closed set of variants, so the fields
that only make sense for a leveraged position (leverage factor, borrowed quote) cannot be read
off an LP position by accident.

*/

package types

import (
	"encoding/json"
	"fmt"
	"time"

	errorsmod "cosmossdk.io/errors"
)

type PositionKind string

const (
	PositionKindLP        PositionKind = "LP"
	PositionKindLeveraged PositionKind = "LEVERAGED"
)

// Leverage is a leverage factor in tenths: 15 is 1.5x.
type Leverage uint8

const (
	Leverage1x  Leverage = 10
	Leverage15x Leverage = 15
	Leverage2x  Leverage = 20
)

// ParseLeverage maps a numeric factor onto a supported tier.
func ParseLeverage(f float64) (Leverage, error) {
	switch f {
	case 1.5:
		return Leverage15x, nil
	case 2:
		return Leverage2x, nil
	}
	return 0, errorsmod.Wrapf(ErrUnsupportedLeverage, "%v (supported: 1.5, 2)", f)
}

func (l Leverage) Float() float64 { return float64(l) / 10 }

func (l Leverage) String() string { return fmt.Sprintf("%gx", l.Float()) }

func (l Leverage) MarshalJSON() ([]byte, error) { return json.Marshal(l.Float()) }

// PositionTerms is LPTerms or LeveragedTerms.
type PositionTerms interface {
	Kind() PositionKind
	isPositionTerms()
}

// LPTerms: no borrowing, the caller reserved the whole quote side.
type LPTerms struct {
	QuoteDeposited QuoteAmount `json:"quote_deposited"`
}

// LeveragedTerms: part or all of the quote side was borrowed from the lending pool.
type LeveragedTerms struct {
	Factor    Leverage    `json:"leverage_factor"`
	Borrowed  QuoteAmount `json:"borrowed_quote"`
	Deposited QuoteAmount `json:"deposited_quote"`
}

func (LPTerms) Kind() PositionKind        { return PositionKindLP }
func (LeveragedTerms) Kind() PositionKind { return PositionKindLeveraged }
func (LPTerms) isPositionTerms()          {}
func (LeveragedTerms) isPositionTerms()   {}

type Position struct {
	ID           string        `json:"id"`
	Owner        string        `json:"owner"`
	CrucibleID   CrucibleID    `json:"crucible_id"`
	Terms        PositionTerms `json:"-"`
	Collateral   BaseAmount    `json:"collateral_base"` // gross base committed at open
	OpenFee      BaseAmount    `json:"open_fee"`
	WrappedClaim WrappedAmount `json:"wrapped_claim"` // wrapped tokens minted for the position
	EntryRate    ExchangeRate  `json:"entry_rate"`
	IsOpen       bool          `json:"is_open"`
	OpenedAt     time.Time     `json:"opened_at"`
	ClosedAt     *time.Time    `json:"closed_at,omitempty"`
	CloseResult  *CloseResult  `json:"close_result,omitempty"`
}

func (p Position) Kind() PositionKind { return p.Terms.Kind() }

// LeverageFactor is 1x for LP positions.
func (p Position) LeverageFactor() Leverage {
	if t, ok := p.Terms.(LeveragedTerms); ok {
		return t.Factor
	}
	return Leverage1x
}

// Borrowed is the quote owed to the lending pool, zero for LP positions.
func (p Position) Borrowed() QuoteAmount {
	if t, ok := p.Terms.(LeveragedTerms); ok {
		return t.Borrowed
	}
	return ZeroQuote()
}

// QuoteDeposited is the quote the owner reserved themselves.
func (p Position) QuoteDeposited() QuoteAmount {
	switch t := p.Terms.(type) {
	case LPTerms:
		return t.QuoteDeposited
	case LeveragedTerms:
		return t.Deposited
	}
	return ZeroQuote()
}

func (p Position) MarshalJSON() ([]byte, error) {
	type alias Position
	out := struct {
		alias
		Kind           PositionKind    `json:"kind"`
		LeverageFactor Leverage        `json:"leverage_factor"`
		LP             *LPTerms        `json:"lp,omitempty"`
		Leveraged      *LeveragedTerms `json:"leveraged,omitempty"`
	}{alias: alias(p), Kind: p.Kind(), LeverageFactor: p.LeverageFactor()}

	switch t := p.Terms.(type) {
	case LPTerms:
		out.LP = &t
	case LeveragedTerms:
		out.Leveraged = &t
	}
	return json.Marshal(out)
}

type CloseResult struct {
	WrappedBurned   WrappedAmount `json:"wrapped_burned"`
	BaseGross       BaseAmount    `json:"base_gross"`
	FeeCharged      BaseAmount    `json:"fee_charged"`
	BaseReturned    BaseAmount    `json:"base_returned"`
	QuoteRepaid     QuoteAmount   `json:"quote_repaid"`
	QuoteReturned   QuoteAmount   `json:"quote_returned"`
	YieldEarnedBase BaseAmount    `json:"yield_earned_base"`
	CloseRate       ExchangeRate  `json:"close_rate"`
}
