package config

import (
	"errors"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const priceEnvPrefix = "PRICE_"

// DefaultPrices are the USD prices used when no PRICE_<SYMBOL> override is set.
var DefaultPrices = map[string]string{
	"FOGO":  "0.50",
	"FORGE": "0.002",
	"USDC":  "1.00",
}

// LoadPrices merges PRICE_<SYMBOL> environment overrides over DefaultPrices. The symbol part of
// the variable is matched case-insensitively against known symbols; unknown symbols are added
// as written.
func LoadPrices() (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(DefaultPrices))
	canonical := make(map[string]string, len(DefaultPrices))
	for symbol, raw := range DefaultPrices {
		out[symbol] = decimal.RequireFromString(raw)
		canonical[strings.ToUpper(symbol)] = symbol
	}

	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, priceEnvPrefix) {
			continue
		}
		symbol := strings.TrimPrefix(key, priceEnvPrefix)
		if symbol == "" {
			continue
		}
		if known, ok := canonical[strings.ToUpper(symbol)]; ok {
			symbol = known
		}
		price, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil || !price.IsPositive() {
			return nil, errors.New("environment variable " + key + " must be a positive decimal, got: " + value)
		}
		out[symbol] = price
		log.Debug().Str("symbol", symbol).Str("price", price.String()).Msg("Price override from environment")
	}
	return out, nil
}
