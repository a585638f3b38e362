/*
Package crucible is the top-level orchestration of the engine: the set of crucibles, each
owner's balances, and the position ledger and lending pool they share.

A Registry is built once by the composing application and passed around explicitly. Each
crucible has its own lock. Operations that touch positions take the crucible lock first, then
the ledger's, then the lending pool's.
*/
package crucible

import (
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/forgelabs/crucible/internal/exchange"
	"github.com/forgelabs/crucible/internal/fees"
	"github.com/forgelabs/crucible/internal/fixedpoint"
	"github.com/forgelabs/crucible/internal/lending"
	"github.com/forgelabs/crucible/internal/logger"
	"github.com/forgelabs/crucible/internal/positions"
	"github.com/forgelabs/crucible/internal/types"
)

// Journal receives every committed transaction after all locks are released.
type Journal interface {
	Record(tx types.Transaction)
}

// Config holds everything a Registry is built from
type Config struct {
	Crucibles []types.CrucibleConfig
	Fees      fees.Schedule
	Lending   lending.Config
	Prices    types.PriceSource
	Journal   Journal // optional
}

type holding struct {
	wrapped       math.Int
	baseDeposited math.Int
	yieldUSD      decimal.Decimal
}

type crucible struct {
	mu       sync.Mutex
	pool     types.Pool
	base     types.Token
	wrapped  types.Token
	holdings map[string]*holding
}

type Registry struct {
	logger  zerolog.Logger
	engine  *exchange.Engine
	lending *lending.Pool
	ledger  *positions.Ledger
	prices  types.PriceSource
	journal Journal

	crucibles map[types.CrucibleID]*crucible
	order     []types.CrucibleID

	txMu         sync.Mutex
	transactions map[string][]types.Transaction

	now func() time.Time
}

// NewRegistry validates the configuration and creates every crucible. Any invalid fee rate or
// crucible definition prevents construction.
func NewRegistry(cfg Config) (*Registry, error) {
	if err := validateRegistryConfig(cfg); err != nil {
		return nil, err
	}
	engine, err := exchange.NewEngine(cfg.Fees)
	if err != nil {
		return nil, err
	}
	lendingPool, err := lending.NewPool(cfg.Lending)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		logger:       logger.GetForComponent("crucible_registry"),
		engine:       engine,
		lending:      lendingPool,
		ledger:       positions.NewLedger(engine, lendingPool, cfg.Prices),
		prices:       cfg.Prices,
		journal:      cfg.Journal,
		crucibles:    make(map[types.CrucibleID]*crucible, len(cfg.Crucibles)),
		transactions: make(map[string][]types.Transaction),
		now:          time.Now,
	}

	for _, cc := range cfg.Crucibles {
		if _, dup := r.crucibles[cc.ID]; dup {
			return nil, errorsmod.Wrapf(types.ErrInvalidConfig, "duplicate crucible %s", cc.ID)
		}
		pool, err := exchange.NewPool(cc, cfg.Fees)
		if err != nil {
			return nil, err
		}
		c := &crucible{pool: pool, base: cc.BaseToken, wrapped: cc.WrappedToken, holdings: make(map[string]*holding)}
		if price, err := r.prices.Price(pool.BaseSymbol); err == nil {
			c.pool.TotalValueLocked = types.Value(pool.BaseCustody.Int, price)
		}
		r.crucibles[cc.ID] = c
		r.order = append(r.order, cc.ID)

		r.logger.Info().
			Str("crucible", string(cc.ID)).
			Str("base", cc.BaseToken.Symbol).
			Str("wrapped", cc.WrappedToken.Symbol).
			Str("initial_supply", fixedpoint.FormatAmount(pool.BaseCustody.Int)).
			Msg("Crucible created")
	}
	return r, nil
}

func validateRegistryConfig(cfg Config) error {
	if len(cfg.Crucibles) == 0 {
		return errorsmod.Wrap(types.ErrInvalidConfig, "no crucibles configured")
	}
	if cfg.Prices == nil {
		return errorsmod.Wrap(types.ErrInvalidConfig, "price source cannot be nil")
	}
	return cfg.Fees.Validate()
}

func (r *Registry) get(id types.CrucibleID) (*crucible, error) {
	c, ok := r.crucibles[id]
	if !ok {
		return nil, errorsmod.Wrapf(types.ErrUnknownCrucible, "%s", id)
	}
	return c, nil
}

func (c *crucible) holding(owner string) *holding {
	h, ok := c.holdings[owner]
	if !ok {
		h = &holding{wrapped: math.ZeroInt(), baseDeposited: math.ZeroInt(), yieldUSD: decimal.Zero}
		c.holdings[owner] = h
	}
	return h
}

func (r *Registry) basePrice(pool types.Pool) (decimal.Decimal, error) {
	price, err := r.prices.Price(pool.BaseSymbol)
	if err != nil {
		return decimal.Decimal{}, errorsmod.Wrapf(types.ErrPriceUnavailable, "%s: %s", pool.BaseSymbol, err)
	}
	return price, nil
}

func (r *Registry) meta(owner string, id types.CrucibleID) types.TxMeta {
	return types.TxMeta{ID: uuid.NewString(), Owner: owner, CrucibleID: id, Timestamp: r.now().UTC()}
}

// record appends to the owner's history and hands the transaction to the journal.
// Must be called without any crucible lock held.
func (r *Registry) record(tx types.Transaction) {
	r.txMu.Lock()
	owner := tx.Meta().Owner
	r.transactions[owner] = append(r.transactions[owner], tx)
	r.txMu.Unlock()

	if r.journal != nil {
		r.journal.Record(tx)
	}
}

// WrapTokens deposits base for owner and credits the minted wrapped tokens.
func (r *Registry) WrapTokens(owner string, id types.CrucibleID, baseAmount string) (exchange.WrapResult, error) {
	amount, err := fixedpoint.ParseAmount(baseAmount)
	if err != nil {
		return exchange.WrapResult{}, err
	}
	c, err := r.get(id)
	if err != nil {
		return exchange.WrapResult{}, err
	}

	c.mu.Lock()
	res, next, err := r.engine.PlanWrap(c.pool, types.NewBaseAmount(amount))
	if err != nil {
		c.mu.Unlock()
		r.logger.Warn().Err(err).Str("crucible", string(id)).Str("owner", owner).Msg("Wrap rejected")
		return exchange.WrapResult{}, err
	}
	price, err := r.basePrice(next)
	if err != nil {
		c.mu.Unlock()
		return exchange.WrapResult{}, err
	}

	h := c.holding(owner)
	h.wrapped = h.wrapped.Add(res.WrappedMinted.Int)
	h.baseDeposited = h.baseDeposited.Add(res.BaseIn.Int)
	next.TotalValueLocked = types.Value(next.BaseCustody.Int, price)
	c.pool = next
	c.mu.Unlock()

	r.logger.Debug().
		Str("crucible", string(id)).
		Str("owner", owner).
		Str("base_in", fixedpoint.FormatAmount(res.BaseIn.Int)).
		Str("minted", fixedpoint.FormatAmount(res.WrappedMinted.Int)).
		Float64("rate", res.NewRate.Float()).
		Msg("Wrapped tokens")

	r.record(types.Deposit{
		TxMeta:        r.meta(owner, id),
		BaseIn:        res.BaseIn,
		Fee:           res.FeeCharged,
		WrappedMinted: res.WrappedMinted,
		Rate:          res.NewRate,
	})
	return res, nil
}

// UnwrapTokens burns wrapped tokens from owner's balance and pays out base less the unwrap fee.
func (r *Registry) UnwrapTokens(owner string, id types.CrucibleID, wrappedAmount string) (exchange.UnwrapResult, error) {
	amount, err := fixedpoint.ParseAmount(wrappedAmount)
	if err != nil {
		return exchange.UnwrapResult{}, err
	}
	c, err := r.get(id)
	if err != nil {
		return exchange.UnwrapResult{}, err
	}

	c.mu.Lock()
	h, ok := c.holdings[owner]
	if !ok || amount.GT(h.wrapped) {
		held := math.ZeroInt()
		if ok {
			held = h.wrapped
		}
		c.mu.Unlock()
		r.logger.Warn().Str("crucible", string(id)).Str("owner", owner).Msg("Unwrap rejected: insufficient wrapped balance")
		return exchange.UnwrapResult{}, errorsmod.Wrapf(types.ErrInsufficientWrappedBalance,
			"requested %s, held %s", fixedpoint.FormatAmount(amount), fixedpoint.FormatAmount(held))
	}
	res, next, err := r.engine.PlanUnwrap(c.pool, types.NewWrappedAmount(amount))
	if err != nil {
		c.mu.Unlock()
		return exchange.UnwrapResult{}, err
	}
	price, err := r.basePrice(next)
	if err != nil {
		c.mu.Unlock()
		return exchange.UnwrapResult{}, err
	}
	// Cost basis leaves in proportion to the wrapped tokens burned.
	basisOut, err := fixedpoint.MulDiv(h.baseDeposited, amount, h.wrapped)
	if err != nil {
		c.mu.Unlock()
		return exchange.UnwrapResult{}, err
	}
	gain := math.ZeroInt()
	if res.BaseGross.GT(basisOut) {
		gain = res.BaseGross.Sub(basisOut)
	}
	yieldUSD := types.Value(gain, price)

	h.wrapped = h.wrapped.Sub(amount)
	h.baseDeposited = h.baseDeposited.Sub(basisOut)
	if h.wrapped.IsZero() {
		h.baseDeposited = math.ZeroInt()
	}
	h.yieldUSD = h.yieldUSD.Add(yieldUSD.Decimal)
	next.TotalValueLocked = types.Value(next.BaseCustody.Int, price)
	c.pool = next
	c.mu.Unlock()

	r.logger.Debug().
		Str("crucible", string(id)).
		Str("owner", owner).
		Str("burned", fixedpoint.FormatAmount(amount)).
		Str("base_returned", fixedpoint.FormatAmount(res.BaseReturned.Int)).
		Msg("Unwrapped tokens")

	r.record(types.Withdraw{
		TxMeta:        r.meta(owner, id),
		WrappedBurned: res.WrappedBurned,
		BaseGross:     res.BaseGross,
		Fee:           res.FeeCharged,
		BaseReturned:  res.BaseReturned,
		YieldUSD:      yieldUSD,
		Rate:          res.Rate,
	})
	return res, nil
}

// PreviewWrap computes what WrapTokens would return right now without changing anything.
func (r *Registry) PreviewWrap(id types.CrucibleID, baseAmount string) (exchange.WrapResult, error) {
	amount, err := fixedpoint.ParseAmount(baseAmount)
	if err != nil {
		return exchange.WrapResult{}, err
	}
	c, err := r.get(id)
	if err != nil {
		return exchange.WrapResult{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	res, _, err := r.engine.PlanWrap(c.pool, types.NewBaseAmount(amount))
	return res, err
}

// PreviewUnwrap computes what UnwrapTokens would return right now without changing anything.
func (r *Registry) PreviewUnwrap(id types.CrucibleID, wrappedAmount string) (exchange.UnwrapResult, error) {
	amount, err := fixedpoint.ParseAmount(wrappedAmount)
	if err != nil {
		return exchange.UnwrapResult{}, err
	}
	c, err := r.get(id)
	if err != nil {
		return exchange.UnwrapResult{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	res, _, err := r.engine.PlanUnwrap(c.pool, types.NewWrappedAmount(amount))
	return res, err
}

// ProjectRewards estimates base earned on principal over days at the crucible's static APR.
func (r *Registry) ProjectRewards(id types.CrucibleID, principal string, days int) (types.BaseAmount, error) {
	amount, err := fixedpoint.ParseAmount(principal)
	if err != nil {
		return types.BaseAmount{}, err
	}
	if days < 0 {
		return types.BaseAmount{}, errorsmod.Wrapf(types.ErrInvalidAmount, "days %d", days)
	}
	c, err := r.get(id)
	if err != nil {
		return types.BaseAmount{}, err
	}
	c.mu.Lock()
	apr := c.pool.APR
	c.mu.Unlock()

	yearly, err := fixedpoint.MulDec(amount, apr)
	if err != nil {
		return types.BaseAmount{}, err
	}
	out, err := fixedpoint.MulDiv(yearly, math.NewInt(int64(days)), math.NewInt(365))
	if err != nil {
		return types.BaseAmount{}, err
	}
	return types.NewBaseAmount(out), nil
}

// ProjectLendingInterest projects simple interest on principal supplied to the lending pool
// and charges the yield-on-interest fee against it.
func (r *Registry) ProjectLendingInterest(principal string, days int) (lending.InterestProjection, error) {
	amount, err := fixedpoint.ParseAmount(principal)
	if err != nil {
		return lending.InterestProjection{}, err
	}
	gross, err := r.lending.ProjectInterest(types.NewQuoteAmount(amount), days)
	if err != nil {
		return lending.InterestProjection{}, err
	}
	feeRate := r.engine.Schedule().YieldOnInterest
	net, fee, err := fees.ApplyFee(gross.Int, feeRate)
	if err != nil {
		return lending.InterestProjection{}, err
	}
	rate := r.lending.BorrowRateAnnual()
	return lending.InterestProjection{
		Principal:           types.NewQuoteAmount(amount),
		Days:                days,
		RateAnnual:          rate,
		EffectiveRateAnnual: rate.Mul(math.LegacyOneDec().Sub(feeRate)),
		Gross:               gross,
		Fee:                 types.NewQuoteAmount(fee),
		Net:                 types.NewQuoteAmount(net),
	}, nil
}
