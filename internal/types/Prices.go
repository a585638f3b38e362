package types

import "github.com/shopspring/decimal"

// PriceSource returns the USD price of one whole token. The engine asks on every call and
// never keeps the answer.
type PriceSource interface {
	Price(symbol string) (decimal.Decimal, error)
}
