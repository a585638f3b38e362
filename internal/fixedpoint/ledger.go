/*
Package fixedpoint holds the scaled-integer primitives every other engine package builds on.

All products are computed in 256-bit unsigned space so an overflow is reported as an error
instead of a panic deep inside math.Int. Division always truncates, which favors the pool.
*/
package fixedpoint

import (
	"math/big"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	"github.com/holiman/uint256"

	"github.com/forgelabs/crucible/internal/types"
)

var rateScale = math.NewInt(types.RateScale)

func toU256(i math.Int) (*uint256.Int, error) {
	if i.IsNil() {
		return new(uint256.Int), nil
	}
	if i.IsNegative() {
		return nil, errorsmod.Wrapf(types.ErrNegativeOperand, "%s", i)
	}
	u, overflow := uint256.FromBig(i.BigInt())
	if overflow {
		return nil, errorsmod.Wrapf(types.ErrOverflow, "%s exceeds 256 bits", i)
	}
	return u, nil
}

func fromU256(u *uint256.Int) (math.Int, error) {
	b := u.ToBig()
	// math.Int rejects anything wider than 256 bits including sign.
	if b.BitLen() > math.MaxBitLen {
		return math.Int{}, errorsmod.Wrapf(types.ErrOverflow, "result has %d bits", b.BitLen())
	}
	return math.NewIntFromBigInt(b), nil
}

// MulDiv returns a*b/d truncated toward zero.
func MulDiv(a, b, d math.Int) (math.Int, error) {
	ua, err := toU256(a)
	if err != nil {
		return math.Int{}, err
	}
	ub, err := toU256(b)
	if err != nil {
		return math.Int{}, err
	}
	ud, err := toU256(d)
	if err != nil {
		return math.Int{}, err
	}
	if ud.IsZero() {
		return math.Int{}, types.ErrDivideByZero
	}
	product, overflow := new(uint256.Int).MulOverflow(ua, ub)
	if overflow {
		return math.Int{}, errorsmod.Wrapf(types.ErrOverflow, "%s * %s", a, b)
	}
	return fromU256(new(uint256.Int).Div(product, ud))
}

// Add returns a+b, failing instead of wrapping past 256 bits.
func Add(a, b math.Int) (math.Int, error) {
	ua, err := toU256(a)
	if err != nil {
		return math.Int{}, err
	}
	ub, err := toU256(b)
	if err != nil {
		return math.Int{}, err
	}
	sum, overflow := new(uint256.Int).AddOverflow(ua, ub)
	if overflow {
		return math.Int{}, errorsmod.Wrapf(types.ErrOverflow, "%s + %s", a, b)
	}
	return fromU256(sum)
}

// Sub returns a-b. Underflow is an arithmetic error; callers check balances first.
func Sub(a, b math.Int) (math.Int, error) {
	ua, err := toU256(a)
	if err != nil {
		return math.Int{}, err
	}
	ub, err := toU256(b)
	if err != nil {
		return math.Int{}, err
	}
	diff, underflow := new(uint256.Int).SubOverflow(ua, ub)
	if underflow {
		return math.Int{}, errorsmod.Wrapf(types.ErrOverflow, "%s - %s underflows", a, b)
	}
	return fromU256(diff)
}

// MintAmount converts base into wrapped at rate: baseIn * RATE_SCALE / rate.
func MintAmount(baseIn types.BaseAmount, rate types.ExchangeRate) (types.WrappedAmount, error) {
	if rate.IsNil() || rate.IsZero() {
		return types.WrappedAmount{}, errorsmod.Wrap(types.ErrDivideByZero, "exchange rate is zero")
	}
	out, err := MulDiv(baseIn.Int, rateScale, rate.Int)
	if err != nil {
		return types.WrappedAmount{}, err
	}
	return types.NewWrappedAmount(out), nil
}

// BurnAmount converts wrapped into base at rate: wrappedIn * rate / RATE_SCALE.
func BurnAmount(wrappedIn types.WrappedAmount, rate types.ExchangeRate) (types.BaseAmount, error) {
	if rate.IsNil() || rate.IsZero() {
		return types.BaseAmount{}, errorsmod.Wrap(types.ErrDivideByZero, "exchange rate is zero")
	}
	out, err := MulDiv(wrappedIn.Int, rate.Int, rateScale)
	if err != nil {
		return types.BaseAmount{}, err
	}
	return types.NewBaseAmount(out), nil
}

// MulDec returns floor(amount * d) for a non-negative decimal fraction.
func MulDec(amount math.Int, d math.LegacyDec) (math.Int, error) {
	if d.IsNil() || d.IsNegative() {
		return math.Int{}, errorsmod.Wrapf(types.ErrNegativeOperand, "fraction %s", d)
	}
	return MulDiv(amount, math.NewIntFromBigInt(d.BigInt()), decPrecision)
}

var decPrecision = math.NewIntFromBigInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(math.LegacyPrecision), nil))
