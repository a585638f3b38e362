/*
Package exchange owns the base<->wrapped conversion of a crucible and evolves its exchange rate.

Every mutation is built on a pure plan: Plan* takes a Pool value and returns the result plus the
next Pool value without touching the input. Previews and commits share the same plan, so a
preview taken immediately before a commit is identical to it.

Rate growth happens only when a deposit charges a fee. The yield share of that fee is spread
over the whole wrapped supply by raising the rate, capped at the pool's target rate. The new
rate is derived from the claimable base value so that
totalWrapped * rate / RATE_SCALE never exceeds base custody.
*/
package exchange

import (
	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"

	"github.com/forgelabs/crucible/internal/fees"
	"github.com/forgelabs/crucible/internal/fixedpoint"
	"github.com/forgelabs/crucible/internal/types"
)

var rateScale = math.NewInt(types.RateScale)

type WrapResult struct {
	BaseIn        types.BaseAmount    `json:"base_in"`
	FeeCharged    types.BaseAmount    `json:"fee_charged"`
	NetDeposited  types.BaseAmount    `json:"net_deposited"`
	WrappedMinted types.WrappedAmount `json:"wrapped_minted"`
	ToYield       types.BaseAmount    `json:"to_yield"`
	ToProtocol    types.BaseAmount    `json:"to_protocol"`
	YieldApplied  types.BaseAmount    `json:"yield_applied"` // claimable value added to existing holders
	RateBefore    types.ExchangeRate  `json:"rate_before"`
	NewRate       types.ExchangeRate  `json:"new_rate"`
}

type UnwrapResult struct {
	WrappedBurned types.WrappedAmount `json:"wrapped_burned"`
	BaseGross     types.BaseAmount    `json:"base_gross"`
	FeeCharged    types.BaseAmount    `json:"fee_charged"`
	BaseReturned  types.BaseAmount    `json:"base_returned"`
	Rate          types.ExchangeRate  `json:"rate"`
}

// Engine applies one fee schedule to any number of pools. It keeps no pool state itself.
type Engine struct {
	schedule fees.Schedule
}

func NewEngine(schedule fees.Schedule) (*Engine, error) {
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	return &Engine{schedule: schedule}, nil
}

func (e *Engine) Schedule() fees.Schedule { return e.schedule }

// NewPool builds the initial state of a crucible: rate 1:1, seeded with InitialSupply
// base in custody against the same amount of wrapped supply.
func NewPool(cfg types.CrucibleConfig, schedule fees.Schedule) (types.Pool, error) {
	if cfg.ID == "" {
		return types.Pool{}, errorsmod.Wrap(types.ErrInvalidConfig, "crucible id is empty")
	}
	if err := cfg.BaseToken.Validate(); err != nil {
		return types.Pool{}, errorsmod.Wrapf(types.ErrInvalidConfig, "%s: %s", cfg.ID, err)
	}
	if err := cfg.WrappedToken.Validate(); err != nil {
		return types.Pool{}, errorsmod.Wrapf(types.ErrInvalidConfig, "%s: %s", cfg.ID, err)
	}
	if cfg.TargetRate.IsNil() || cfg.TargetRate.LT(math.LegacyOneDec()) {
		return types.Pool{}, errorsmod.Wrapf(types.ErrInvalidConfig, "%s: target rate must be >= 1", cfg.ID)
	}
	if cfg.APR.IsNil() || cfg.APR.IsNegative() {
		return types.Pool{}, errorsmod.Wrapf(types.ErrInvalidConfig, "%s: apr must be >= 0", cfg.ID)
	}
	supply := cfg.InitialSupply
	if supply.IsNil() {
		supply = math.ZeroInt()
	}
	if supply.IsNegative() {
		return types.Pool{}, errorsmod.Wrapf(types.ErrInvalidConfig, "%s: negative initial supply", cfg.ID)
	}
	if err := fees.ValidateRate(schedule.Wrap); err != nil {
		return types.Pool{}, err
	}
	if err := fees.ValidateRate(schedule.Unwrap); err != nil {
		return types.Pool{}, err
	}

	return types.Pool{
		ID:               cfg.ID,
		BaseSymbol:       cfg.BaseToken.Symbol,
		WrappedSymbol:    cfg.WrappedToken.Symbol,
		Rate:             types.InitialRate(),
		TargetRate:       types.RateFromDec(cfg.TargetRate),
		TotalWrapped:     types.NewWrappedAmount(supply),
		BaseCustody:      types.NewBaseAmount(supply),
		FeeRateWrap:      schedule.Wrap,
		FeeRateUnwrap:    schedule.Unwrap,
		APR:              cfg.APR,
		FeesCollected:    types.ZeroBase(),
		YieldDistributed: types.ZeroBase(),
		TotalValueLocked: types.ZeroUsd(),
	}, nil
}

// PlanWrap plans a plain wrap at the pool's wrap fee.
func (e *Engine) PlanWrap(pool types.Pool, baseIn types.BaseAmount) (WrapResult, types.Pool, error) {
	return e.PlanDeposit(pool, baseIn, pool.FeeRateWrap)
}

// PlanDeposit plans minting wrapped tokens for gross base at feeRate. Wraps, leveraged opens
// and LP opens differ only in the fee they charge.
func (e *Engine) PlanDeposit(pool types.Pool, gross types.BaseAmount, feeRate math.LegacyDec) (WrapResult, types.Pool, error) {
	if gross.IsNil() || !gross.IsPositive() {
		return WrapResult{}, pool, errorsmod.Wrapf(types.ErrInvalidAmount, "deposit %s", gross)
	}

	net, fee, err := fees.ApplyFee(gross.Int, feeRate)
	if err != nil {
		return WrapResult{}, pool, err
	}
	minted, err := fixedpoint.MintAmount(types.NewBaseAmount(net), pool.Rate)
	if err != nil {
		return WrapResult{}, pool, err
	}
	if minted.IsZero() {
		return WrapResult{}, pool, errorsmod.Wrapf(types.ErrInvalidAmount, "deposit %s mints no %s", gross, pool.WrappedSymbol)
	}
	toYield, toProtocol, err := fees.SplitFeeForYield(fee, e.schedule.YieldShare)
	if err != nil {
		return WrapResult{}, pool, err
	}

	next := pool
	totalWrapped, err := fixedpoint.Add(pool.TotalWrapped.Int, minted.Int)
	if err != nil {
		return WrapResult{}, pool, err
	}
	custody, err := fixedpoint.Add(pool.BaseCustody.Int, gross.Int)
	if err != nil {
		return WrapResult{}, pool, err
	}
	next.TotalWrapped = types.NewWrappedAmount(totalWrapped)
	next.BaseCustody = types.NewBaseAmount(custody)

	newRate, applied, err := grownRate(pool.Rate, pool.TargetRate, next.TotalWrapped, types.NewBaseAmount(toYield))
	if err != nil {
		return WrapResult{}, pool, err
	}
	next.Rate = newRate

	if next.FeesCollected.Int, err = fixedpoint.Add(pool.FeesCollected.Int, fee); err != nil {
		return WrapResult{}, pool, err
	}
	if next.YieldDistributed.Int, err = fixedpoint.Add(pool.YieldDistributed.Int, applied.Int); err != nil {
		return WrapResult{}, pool, err
	}

	return WrapResult{
		BaseIn:        gross,
		FeeCharged:    types.NewBaseAmount(fee),
		NetDeposited:  types.NewBaseAmount(net),
		WrappedMinted: minted,
		ToYield:       types.NewBaseAmount(toYield),
		ToProtocol:    types.NewBaseAmount(toProtocol),
		YieldApplied:  applied,
		RateBefore:    pool.Rate,
		NewRate:       newRate,
	}, next, nil
}

// grownRate spreads toYield over supply. The result never decreases and never passes target.
func grownRate(rate, target types.ExchangeRate, supply types.WrappedAmount, toYield types.BaseAmount) (types.ExchangeRate, types.BaseAmount, error) {
	if rate.GTE(target.Int) || toYield.IsZero() || supply.IsZero() {
		return rate, types.ZeroBase(), nil
	}
	claimable, err := fixedpoint.BurnAmount(supply, rate)
	if err != nil {
		return rate, types.BaseAmount{}, err
	}
	grown, err := fixedpoint.Add(claimable.Int, toYield.Int)
	if err != nil {
		return rate, types.BaseAmount{}, err
	}
	candidate, err := fixedpoint.MulDiv(grown, rateScale, supply.Int)
	if err != nil {
		return rate, types.BaseAmount{}, err
	}
	next := math.MinInt(math.MaxInt(candidate, rate.Int), target.Int)

	after, err := fixedpoint.BurnAmount(supply, types.NewExchangeRate(next))
	if err != nil {
		return rate, types.BaseAmount{}, err
	}
	return types.NewExchangeRate(next), types.NewBaseAmount(after.Sub(claimable.Int)), nil
}

// PlanUnwrap plans burning wrapped tokens at the current rate. The unwrap fee comes out of the
// caller's proceeds; custody drops by the gross amount. The engine does not check the caller's
// balance, only that the pool's supply covers the burn.
func (e *Engine) PlanUnwrap(pool types.Pool, wrappedIn types.WrappedAmount) (UnwrapResult, types.Pool, error) {
	if wrappedIn.IsNil() || !wrappedIn.IsPositive() {
		return UnwrapResult{}, pool, errorsmod.Wrapf(types.ErrInvalidAmount, "unwrap %s", wrappedIn)
	}
	if wrappedIn.GT(pool.TotalWrapped.Int) {
		return UnwrapResult{}, pool, errorsmod.Wrapf(types.ErrInsufficientWrappedBalance,
			"burn %s exceeds %s supply %s", wrappedIn, pool.WrappedSymbol, pool.TotalWrapped)
	}

	gross, err := fixedpoint.BurnAmount(wrappedIn, pool.Rate)
	if err != nil {
		return UnwrapResult{}, pool, err
	}
	returned, fee, err := fees.ApplyFee(gross.Int, pool.FeeRateUnwrap)
	if err != nil {
		return UnwrapResult{}, pool, err
	}

	next := pool
	totalWrapped, err := fixedpoint.Sub(pool.TotalWrapped.Int, wrappedIn.Int)
	if err != nil {
		return UnwrapResult{}, pool, err
	}
	custody, err := fixedpoint.Sub(pool.BaseCustody.Int, gross.Int)
	if err != nil {
		return UnwrapResult{}, pool, err
	}
	next.TotalWrapped = types.NewWrappedAmount(totalWrapped)
	next.BaseCustody = types.NewBaseAmount(custody)
	if next.FeesCollected.Int, err = fixedpoint.Add(pool.FeesCollected.Int, fee); err != nil {
		return UnwrapResult{}, pool, err
	}

	return UnwrapResult{
		WrappedBurned: wrappedIn,
		BaseGross:     gross,
		FeeCharged:    types.NewBaseAmount(fee),
		BaseReturned:  types.NewBaseAmount(returned),
		Rate:          pool.Rate,
	}, next, nil
}

// Wrap commits PlanWrap onto pool.
func (e *Engine) Wrap(pool *types.Pool, baseIn types.BaseAmount) (WrapResult, error) {
	res, next, err := e.PlanWrap(*pool, baseIn)
	if err != nil {
		return WrapResult{}, err
	}
	*pool = next
	return res, nil
}

// Unwrap commits PlanUnwrap onto pool.
func (e *Engine) Unwrap(pool *types.Pool, wrappedIn types.WrappedAmount) (UnwrapResult, error) {
	res, next, err := e.PlanUnwrap(*pool, wrappedIn)
	if err != nil {
		return UnwrapResult{}, err
	}
	*pool = next
	return res, nil
}

// Claimable is the base value of the whole wrapped supply at the current rate.
func Claimable(pool types.Pool) (types.BaseAmount, error) {
	return fixedpoint.BurnAmount(pool.TotalWrapped, pool.Rate)
}
