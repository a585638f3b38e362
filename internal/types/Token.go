/*

Tokens handled by the crucibles. Quantities of every token share AmountDecimals.

*/

package types

import (
	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

type Token struct {
	Symbol string `json:"symbol" toml:"symbol"` // e.g. "FOGO", also used as the coin denom
	Name   string `json:"name" toml:"name"`     // e.g. "Fogo"
}

// Validate checks that the symbol is usable as a coin denom.
func (t Token) Validate() error {
	if err := sdk.ValidateDenom(t.Symbol); err != nil {
		return errorsmod.Wrapf(ErrInvalidConfig, "token %q: %v", t.Symbol, err)
	}
	return nil
}

// Coin expresses a scaled amount of this token as an sdk.Coin. Negative amounts clamp to zero.
func (t Token) Coin(amount math.Int) sdk.Coin {
	if amount.IsNil() || amount.IsNegative() {
		amount = math.ZeroInt()
	}
	return sdk.Coin{Denom: t.Symbol, Amount: amount}
}
