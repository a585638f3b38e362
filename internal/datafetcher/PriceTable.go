/*
Prices for the crucible engine come from a static table seeded by configuration.

The engine asks for a price on every operation that needs one, so updating the table takes
effect on the next call. There is no oracle behind it.
*/

package datafetcher

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/forgelabs/crucible/internal/logger"
)

// PriceTable is a concurrency-safe symbol -> USD price map.
type PriceTable struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
	logger zerolog.Logger
}

func NewPriceTable(prices map[string]decimal.Decimal) *PriceTable {
	t := &PriceTable{
		prices: make(map[string]decimal.Decimal, len(prices)),
		logger: logger.GetForComponent("price_table"),
	}
	for symbol, p := range prices {
		t.prices[symbol] = p
	}
	return t
}

// Price returns the USD price of one whole token.
func (t *PriceTable) Price(symbol string) (decimal.Decimal, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.prices[symbol]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("no price for %s", symbol)
	}
	return p, nil
}

// Set replaces one price. Prices must be positive.
func (t *PriceTable) Set(symbol string, price decimal.Decimal) error {
	if symbol == "" {
		return fmt.Errorf("empty symbol")
	}
	if !price.IsPositive() {
		return fmt.Errorf("price for %s must be positive, got %s", symbol, price)
	}
	t.mu.Lock()
	old, had := t.prices[symbol]
	t.prices[symbol] = price
	t.mu.Unlock()

	ev := t.logger.Info().Str("symbol", symbol).Str("price", price.String())
	if had {
		ev = ev.Str("previous", old.String())
	}
	ev.Msg("Price updated")
	return nil
}

// SymbolPrice is one row of All.
type SymbolPrice struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price_usd"`
}

// All lists every price, sorted by symbol.
func (t *PriceTable) All() []SymbolPrice {
	t.mu.RLock()
	out := make([]SymbolPrice, 0, len(t.prices))
	for s, p := range t.prices {
		out = append(out, SymbolPrice{Symbol: s, Price: p})
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
