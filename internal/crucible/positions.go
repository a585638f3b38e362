package crucible

import (
	errorsmod "cosmossdk.io/errors"

	"github.com/forgelabs/crucible/internal/exchange"
	"github.com/forgelabs/crucible/internal/fixedpoint"
	"github.com/forgelabs/crucible/internal/positions"
	"github.com/forgelabs/crucible/internal/types"
)

// OpenLPPosition opens a leverage-1 position with quoteAmount reserved by the owner.
func (r *Registry) OpenLPPosition(owner string, id types.CrucibleID, baseAmount, quoteAmount string) (types.Position, error) {
	base, err := fixedpoint.ParseAmount(baseAmount)
	if err != nil {
		return types.Position{}, err
	}
	quote, err := fixedpoint.ParseAmount(quoteAmount)
	if err != nil {
		return types.Position{}, err
	}
	c, err := r.get(id)
	if err != nil {
		return types.Position{}, err
	}

	c.mu.Lock()
	pool := c.pool
	price, err := r.basePrice(pool)
	if err != nil {
		c.mu.Unlock()
		return types.Position{}, err
	}
	pos, _, err := r.ledger.OpenLP(owner, &pool, types.NewBaseAmount(base), types.NewQuoteAmount(quote))
	if err != nil {
		c.mu.Unlock()
		return types.Position{}, err
	}
	pool.TotalValueLocked = types.Value(pool.BaseCustody.Int, price)
	c.pool = pool
	c.mu.Unlock()

	r.record(types.PositionOpened{TxMeta: r.meta(owner, id), Position: pos})
	return pos, nil
}

// OpenLeveragedPosition opens a 1.5x or 2x position, borrowing from the lending pool.
func (r *Registry) OpenLeveragedPosition(owner string, id types.CrucibleID, baseAmount string, leverage float64) (types.Position, error) {
	factor, err := types.ParseLeverage(leverage)
	if err != nil {
		return types.Position{}, err
	}
	base, err := fixedpoint.ParseAmount(baseAmount)
	if err != nil {
		return types.Position{}, err
	}
	c, err := r.get(id)
	if err != nil {
		return types.Position{}, err
	}

	c.mu.Lock()
	pool := c.pool
	price, err := r.basePrice(pool)
	if err != nil {
		c.mu.Unlock()
		return types.Position{}, err
	}
	pos, _, err := r.ledger.OpenLeveraged(owner, &pool, types.NewBaseAmount(base), factor)
	if err != nil {
		c.mu.Unlock()
		r.logger.Warn().Err(err).Str("crucible", string(id)).Str("owner", owner).Msg("Leveraged position rejected")
		return types.Position{}, err
	}
	pool.TotalValueLocked = types.Value(pool.BaseCustody.Int, price)
	c.pool = pool
	c.mu.Unlock()

	r.record(types.PositionOpened{TxMeta: r.meta(owner, id), Position: pos})
	return pos, nil
}

// PreviewLeveragedPosition shows the funding split and deposit a leveraged open would make.
func (r *Registry) PreviewLeveragedPosition(id types.CrucibleID, baseAmount string, leverage float64) (positions.LeveragePlan, exchange.WrapResult, error) {
	factor, err := types.ParseLeverage(leverage)
	if err != nil {
		return positions.LeveragePlan{}, exchange.WrapResult{}, err
	}
	base, err := fixedpoint.ParseAmount(baseAmount)
	if err != nil {
		return positions.LeveragePlan{}, exchange.WrapResult{}, err
	}
	c, err := r.get(id)
	if err != nil {
		return positions.LeveragePlan{}, exchange.WrapResult{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	plan, err := r.ledger.PlanLeverage(c.pool, types.NewBaseAmount(base), factor)
	if err != nil {
		return positions.LeveragePlan{}, exchange.WrapResult{}, err
	}
	res, _, err := r.engine.PlanDeposit(c.pool, types.NewBaseAmount(base), r.engine.Schedule().LeveragedOpen)
	if err != nil {
		return positions.LeveragePlan{}, exchange.WrapResult{}, err
	}
	return plan, res, nil
}

// ClosePosition settles one of owner's positions. Closing twice is an error.
func (r *Registry) ClosePosition(owner, positionID string) (types.Position, types.CloseResult, error) {
	existing, err := r.ledger.Get(positionID)
	if err != nil {
		return types.Position{}, types.CloseResult{}, err
	}
	c, err := r.get(existing.CrucibleID)
	if err != nil {
		return types.Position{}, types.CloseResult{}, errorsmod.Wrapf(err, "position %s", positionID)
	}

	c.mu.Lock()
	pool := c.pool
	price, err := r.basePrice(pool)
	if err != nil {
		c.mu.Unlock()
		return types.Position{}, types.CloseResult{}, err
	}
	pos, result, err := r.ledger.Close(owner, positionID, &pool)
	if err != nil {
		c.mu.Unlock()
		r.logger.Warn().Err(err).Str("position_id", positionID).Str("owner", owner).Msg("Close rejected")
		return types.Position{}, types.CloseResult{}, err
	}
	pool.TotalValueLocked = types.Value(pool.BaseCustody.Int, price)
	c.pool = pool
	c.mu.Unlock()

	r.record(types.PositionClosed{TxMeta: r.meta(owner, pos.CrucibleID), PositionID: positionID, Result: result})
	return pos, result, nil
}
