/*
Package positions records LP and leveraged positions against a crucible and settles them on close.

The caller owns the crucible and passes it in locked; the ledger takes its own lock next and the
lending pool's last. A leveraged open plans the deposit, borrows, and only then commits both the
pool change and the position, so a failed borrow leaves nothing behind. A close repays the
lending pool before any base is released.
*/
package positions

import (
	"sort"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/forgelabs/crucible/internal/exchange"
	"github.com/forgelabs/crucible/internal/fixedpoint"
	"github.com/forgelabs/crucible/internal/lending"
	"github.com/forgelabs/crucible/internal/logger"
	"github.com/forgelabs/crucible/internal/types"
)

// LeveragePlan is how the quote side of a leveraged position is funded.
type LeveragePlan struct {
	Leverage         types.Leverage    `json:"leverage"`
	QuoteRequirement types.QuoteAmount `json:"quote_requirement"`
	Borrow           types.QuoteAmount `json:"borrow"`
	Deposit          types.QuoteAmount `json:"deposit"`
	BasePriceUSD     decimal.Decimal   `json:"base_price_usd"`
	QuotePriceUSD    decimal.Decimal   `json:"quote_price_usd"`
}

type Ledger struct {
	mu sync.Mutex

	logger    zerolog.Logger
	engine    *exchange.Engine
	lending   *lending.Pool
	prices    types.PriceSource
	positions map[string]*types.Position
	now       func() time.Time
}

func NewLedger(engine *exchange.Engine, lendingPool *lending.Pool, prices types.PriceSource) *Ledger {
	return &Ledger{
		logger:    logger.GetForComponent("position_ledger"),
		engine:    engine,
		lending:   lendingPool,
		prices:    prices,
		positions: make(map[string]*types.Position),
		now:       time.Now,
	}
}

// PlanLeverage works out the quote requirement of base at the current prices and splits it
// between the owner's deposit and the lending pool.
func (l *Ledger) PlanLeverage(pool types.Pool, base types.BaseAmount, leverage types.Leverage) (LeveragePlan, error) {
	if leverage != types.Leverage15x && leverage != types.Leverage2x {
		return LeveragePlan{}, errorsmod.Wrapf(types.ErrUnsupportedLeverage, "%s", leverage)
	}
	if base.IsNil() || !base.IsPositive() {
		return LeveragePlan{}, errorsmod.Wrapf(types.ErrInvalidAmount, "collateral %s", base)
	}

	basePrice, err := l.price(pool.BaseSymbol)
	if err != nil {
		return LeveragePlan{}, err
	}
	quotePrice, err := l.price(l.lending.QuoteSymbol())
	if err != nil {
		return LeveragePlan{}, err
	}

	// Both sides share AmountScale, so the scaled integers convert directly.
	required := decimal.NewFromBigInt(base.BigInt(), 0).Mul(basePrice).Div(quotePrice).Truncate(0)
	quote := math.NewIntFromBigInt(required.BigInt())
	if !quote.IsPositive() {
		return LeveragePlan{}, errorsmod.Wrapf(types.ErrInvalidAmount, "collateral %s requires no %s", base, l.lending.QuoteSymbol())
	}

	borrow := quote
	if leverage == types.Leverage15x {
		borrow = quote.QuoRaw(2)
	}
	return LeveragePlan{
		Leverage:         leverage,
		QuoteRequirement: types.NewQuoteAmount(quote),
		Borrow:           types.NewQuoteAmount(borrow),
		Deposit:          types.NewQuoteAmount(quote.Sub(borrow)),
		BasePriceUSD:     basePrice,
		QuotePriceUSD:    quotePrice,
	}, nil
}

func (l *Ledger) price(symbol string) (decimal.Decimal, error) {
	p, err := l.prices.Price(symbol)
	if err != nil {
		return decimal.Decimal{}, errorsmod.Wrapf(types.ErrPriceUnavailable, "%s: %s", symbol, err)
	}
	if !p.IsPositive() {
		return decimal.Decimal{}, errorsmod.Wrapf(types.ErrPriceUnavailable, "%s price %s", symbol, p)
	}
	return p, nil
}

// OpenLP records a leverage-1 position. The owner has already reserved quoteDeposit; nothing
// is borrowed and no fee is charged.
func (l *Ledger) OpenLP(owner string, pool *types.Pool, base types.BaseAmount, quoteDeposit types.QuoteAmount) (types.Position, exchange.WrapResult, error) {
	if quoteDeposit.IsNil() || !quoteDeposit.IsPositive() {
		return types.Position{}, exchange.WrapResult{}, errorsmod.Wrapf(types.ErrInvalidAmount, "quote deposit %s", quoteDeposit)
	}
	res, next, err := l.engine.PlanDeposit(*pool, base, math.LegacyZeroDec())
	if err != nil {
		return types.Position{}, exchange.WrapResult{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos := l.newPosition(owner, *pool, res, types.LPTerms{QuoteDeposited: quoteDeposit})
	*pool = next
	l.positions[pos.ID] = &pos

	l.logger.Info().
		Str("position_id", pos.ID).
		Str("owner", owner).
		Str("crucible", string(pool.ID)).
		Str("collateral", fixedpoint.FormatAmount(base.Int)).
		Msg("Opened LP position")
	return pos, res, nil
}

// OpenLeveraged records a 1.5x or 2x position, borrowing the financed part of the quote side.
// The leveraged-open fee is charged on base.
func (l *Ledger) OpenLeveraged(owner string, pool *types.Pool, base types.BaseAmount, leverage types.Leverage) (types.Position, exchange.WrapResult, error) {
	plan, err := l.PlanLeverage(*pool, base, leverage)
	if err != nil {
		return types.Position{}, exchange.WrapResult{}, err
	}
	res, next, err := l.engine.PlanDeposit(*pool, base, l.engine.Schedule().LeveragedOpen)
	if err != nil {
		return types.Position{}, exchange.WrapResult{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.lending.Borrow(plan.Borrow); err != nil {
		l.logger.Warn().Err(err).
			Str("owner", owner).
			Str("crucible", string(pool.ID)).
			Str("leverage", leverage.String()).
			Msg("Leveraged open aborted")
		return types.Position{}, exchange.WrapResult{}, err
	}

	pos := l.newPosition(owner, *pool, res, types.LeveragedTerms{
		Factor:    leverage,
		Borrowed:  plan.Borrow,
		Deposited: plan.Deposit,
	})
	*pool = next
	l.positions[pos.ID] = &pos

	l.logger.Info().
		Str("position_id", pos.ID).
		Str("owner", owner).
		Str("crucible", string(pool.ID)).
		Str("leverage", leverage.String()).
		Str("borrowed", fixedpoint.FormatAmount(plan.Borrow.Int)).
		Msg("Opened leveraged position")
	return pos, res, nil
}

func (l *Ledger) newPosition(owner string, pool types.Pool, res exchange.WrapResult, terms types.PositionTerms) types.Position {
	return types.Position{
		ID:           uuid.NewString(),
		Owner:        owner,
		CrucibleID:   pool.ID,
		Terms:        terms,
		Collateral:   res.BaseIn,
		OpenFee:      res.FeeCharged,
		WrappedClaim: res.WrappedMinted,
		EntryRate:    res.RateBefore,
		IsOpen:       true,
		OpenedAt:     l.now().UTC(),
	}
}

// Close unwraps the position's claim, repays any borrowed quote, and marks it closed for good.
func (l *Ledger) Close(owner, positionID string, pool *types.Pool) (types.Position, types.CloseResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored, ok := l.positions[positionID]
	if !ok {
		return types.Position{}, types.CloseResult{}, errorsmod.Wrapf(types.ErrPositionNotFound, "%s", positionID)
	}
	if stored.Owner != owner {
		return types.Position{}, types.CloseResult{}, errorsmod.Wrapf(types.ErrNotPositionOwner, "%s", positionID)
	}
	if !stored.IsOpen {
		return types.Position{}, types.CloseResult{}, errorsmod.Wrapf(types.ErrPositionAlreadyClosed, "%s", positionID)
	}
	if stored.CrucibleID != pool.ID {
		return types.Position{}, types.CloseResult{}, errorsmod.Wrapf(types.ErrPositionNotFound, "%s in %s", positionID, pool.ID)
	}

	unwrap, next, err := l.engine.PlanUnwrap(*pool, stored.WrappedClaim)
	if err != nil {
		return types.Position{}, types.CloseResult{}, err
	}
	atEntry, err := fixedpoint.BurnAmount(stored.WrappedClaim, stored.EntryRate)
	if err != nil {
		return types.Position{}, types.CloseResult{}, err
	}
	yield, err := fixedpoint.Sub(unwrap.BaseGross.Int, atEntry.Int)
	if err != nil {
		return types.Position{}, types.CloseResult{}, err
	}

	borrowed := stored.Borrowed()
	if borrowed.IsPositive() {
		if err := l.lending.Repay(borrowed); err != nil {
			return types.Position{}, types.CloseResult{}, err
		}
	}

	result := types.CloseResult{
		WrappedBurned:   unwrap.WrappedBurned,
		BaseGross:       unwrap.BaseGross,
		FeeCharged:      unwrap.FeeCharged,
		BaseReturned:    unwrap.BaseReturned,
		QuoteRepaid:     borrowed,
		QuoteReturned:   stored.QuoteDeposited(),
		YieldEarnedBase: types.NewBaseAmount(yield),
		CloseRate:       unwrap.Rate,
	}
	closedAt := l.now().UTC()
	*pool = next
	stored.IsOpen = false
	stored.ClosedAt = &closedAt
	stored.CloseResult = &result

	l.logger.Info().
		Str("position_id", positionID).
		Str("owner", owner).
		Str("base_returned", fixedpoint.FormatAmount(result.BaseReturned.Int)).
		Str("quote_repaid", fixedpoint.FormatAmount(result.QuoteRepaid.Int)).
		Str("yield", fixedpoint.FormatAmount(result.YieldEarnedBase.Int)).
		Msg("Closed position")
	return *stored, result, nil
}

// Get returns a copy of one position.
func (l *Ledger) Get(positionID string) (types.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[positionID]
	if !ok {
		return types.Position{}, errorsmod.Wrapf(types.ErrPositionNotFound, "%s", positionID)
	}
	return *pos, nil
}

// ByOwner lists an owner's positions, oldest first.
func (l *Ledger) ByOwner(owner string) []types.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]types.Position, 0)
	for _, pos := range l.positions {
		if pos.Owner == owner {
			out = append(out, *pos)
		}
	}
	sortPositions(out)
	return out
}

// Open lists every open position across owners, oldest first.
func (l *Ledger) Open() []types.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]types.Position, 0)
	for _, pos := range l.positions {
		if pos.IsOpen {
			out = append(out, *pos)
		}
	}
	sortPositions(out)
	return out
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.positions)
}

func sortPositions(ps []types.Position) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].OpenedAt.Equal(ps[j].OpenedAt) {
			return ps[i].ID < ps[j].ID
		}
		return ps[i].OpenedAt.Before(ps[j].OpenedAt)
	})
}
