package crucible

import (
	"github.com/shopspring/decimal"

	"github.com/forgelabs/crucible/internal/fees"
	"github.com/forgelabs/crucible/internal/fixedpoint"
	"github.com/forgelabs/crucible/internal/lending"
	"github.com/forgelabs/crucible/internal/types"
)

// CrucibleIDs lists crucibles in configuration order.
func (r *Registry) CrucibleIDs() []types.CrucibleID {
	out := make([]types.CrucibleID, len(r.order))
	copy(out, r.order)
	return out
}

// Snapshot prices the crucible at the current base price.
func (r *Registry) Snapshot(id types.CrucibleID) (types.PoolSnapshot, error) {
	c, err := r.get(id)
	if err != nil {
		return types.PoolSnapshot{}, err
	}
	c.mu.Lock()
	pool := c.pool
	c.mu.Unlock()

	price, err := r.basePrice(pool)
	if err != nil {
		return types.PoolSnapshot{}, err
	}
	rate := types.ToDecimal(pool.Rate.Int)
	apr := decimal.RequireFromString(pool.APR.String())

	return types.PoolSnapshot{
		ID:               pool.ID,
		BaseSymbol:       pool.BaseSymbol,
		WrappedSymbol:    pool.WrappedSymbol,
		ExchangeRate:     pool.Rate.Float(),
		RateScaled:       pool.Rate,
		TargetRate:       pool.TargetRate.Float(),
		TotalWrapped:     c.wrapped.Coin(pool.TotalWrapped.Int),
		BaseCustody:      c.base.Coin(pool.BaseCustody.Int),
		TotalValueLocked: types.Value(pool.BaseCustody.Int, price).Decimal,
		BasePriceUSD:     price,
		WrappedPriceUSD:  price.Mul(rate),
		APR:              apr,
		CurrentAPY:       pool.CurrentAPY(),
		FeesCollected:    types.ToDecimal(pool.FeesCollected.Int),
		YieldDistributed: types.ToDecimal(pool.YieldDistributed.Int),
		FeeRateWrap:      pool.FeeRateWrap,
		FeeRateUnwrap:    pool.FeeRateUnwrap,
	}, nil
}

// Snapshots returns every crucible that could be priced. The first pricing error is returned
// alongside whatever succeeded.
func (r *Registry) Snapshots() ([]types.PoolSnapshot, error) {
	out := make([]types.PoolSnapshot, 0, len(r.order))
	var firstErr error
	for _, id := range r.order {
		s, err := r.Snapshot(id)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, s)
	}
	return out, firstErr
}

// Balance is owner's standing in one crucible. Owners who never deposited get zero balances.
func (r *Registry) Balance(owner string, id types.CrucibleID) (types.UserBalance, error) {
	c, err := r.get(id)
	if err != nil {
		return types.UserBalance{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return r.balanceLocked(owner, c)
}

func (r *Registry) balanceLocked(owner string, c *crucible) (types.UserBalance, error) {
	b := types.UserBalance{
		Owner:              owner,
		CrucibleID:         c.pool.ID,
		WrappedBalance:     types.ZeroWrapped(),
		BaseDeposited:      types.ZeroBase(),
		EstimatedBaseValue: types.ZeroBase(),
		CumulativeYieldUSD: types.ZeroUsd(),
	}
	h, ok := c.holdings[owner]
	if !ok {
		return b, nil
	}
	estimated, err := fixedpoint.BurnAmount(types.NewWrappedAmount(h.wrapped), c.pool.Rate)
	if err != nil {
		return types.UserBalance{}, err
	}
	b.WrappedBalance = types.NewWrappedAmount(h.wrapped)
	b.BaseDeposited = types.NewBaseAmount(h.baseDeposited)
	b.EstimatedBaseValue = estimated
	b.CumulativeYieldUSD = types.NewUsdAmount(h.yieldUSD)
	return b, nil
}

// Balances lists owner's balance in every crucible they have touched.
func (r *Registry) Balances(owner string) ([]types.UserBalance, error) {
	out := make([]types.UserBalance, 0)
	for _, id := range r.order {
		c := r.crucibles[id]
		c.mu.Lock()
		if _, ok := c.holdings[owner]; !ok {
			c.mu.Unlock()
			continue
		}
		b, err := r.balanceLocked(owner, c)
		c.mu.Unlock()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (r *Registry) Positions(owner string) []types.Position {
	return r.ledger.ByOwner(owner)
}

func (r *Registry) OpenPositions() []types.Position {
	return r.ledger.Open()
}

func (r *Registry) Position(positionID string) (types.Position, error) {
	return r.ledger.Get(positionID)
}

func (r *Registry) LendingState() lending.State {
	return r.lending.State()
}

func (r *Registry) Fees() fees.Schedule {
	return r.engine.Schedule()
}

// Transactions returns owner's history, oldest first.
func (r *Registry) Transactions(owner string) []types.Transaction {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	out := make([]types.Transaction, len(r.transactions[owner]))
	copy(out, r.transactions[owner])
	return out
}
