package positions

import (
	"fmt"
	"testing"

	"cosmossdk.io/math"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/forgelabs/crucible/internal/exchange"
	"github.com/forgelabs/crucible/internal/fees"
	"github.com/forgelabs/crucible/internal/lending"
	"github.com/forgelabs/crucible/internal/types"
)

type staticPrices map[string]decimal.Decimal

func (s staticPrices) Price(symbol string) (decimal.Decimal, error) {
	p, ok := s[symbol]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("no price for %s", symbol)
	}
	return p, nil
}

func dec(s string) math.LegacyDec { return math.LegacyMustNewDecFromStr(s) }

type fixture struct {
	engine  *exchange.Engine
	lending *lending.Pool
	ledger  *Ledger
	pool    types.Pool
}

func newFixture(t *testing.T, liquidity int64) *fixture {
	t.Helper()
	schedule := fees.Schedule{
		Wrap:            dec("0.015"),
		Unwrap:          dec("0.015"),
		LeveragedOpen:   dec("0.015"),
		LeveragedClose:  dec("0.02"),
		YieldOnInterest: dec("0.1"),
		Liquidation:     dec("0.1"),
		YieldShare:      dec("0.33"),
	}
	engine, err := exchange.NewEngine(schedule)
	require.NoError(t, err)
	pool, err := exchange.NewPool(types.CrucibleConfig{
		ID:            "fogo-crucible",
		BaseToken:     types.Token{Symbol: "FOGO"},
		WrappedToken:  types.Token{Symbol: "cFOGO"},
		TargetRate:    dec("1.0448"),
		APR:           dec("0.18"),
		InitialSupply: types.WholeTokens(6_450_000),
	}, schedule)
	require.NoError(t, err)
	lp, err := lending.NewPool(lending.Config{
		QuoteSymbol:        "USDC",
		InitialLiquidity:   types.WholeTokens(liquidity),
		InterestRateAnnual: dec("0.05"),
	})
	require.NoError(t, err)
	prices := staticPrices{"FOGO": decimal.RequireFromString("0.5"), "USDC": decimal.NewFromInt(1)}
	return &fixture{engine: engine, lending: lp, ledger: NewLedger(engine, lp, prices), pool: pool}
}

func tokens(n int64) types.BaseAmount { return types.NewBaseAmount(types.WholeTokens(n)) }

func TestOpenTwoXBorrowsFullQuote(t *testing.T) {
	f := newFixture(t, 1_000_000)

	pos, res, err := f.ledger.OpenLeveraged("alice", &f.pool, tokens(100), types.Leverage2x)
	require.NoError(t, err)
	require.True(t, pos.IsOpen)
	require.Equal(t, types.PositionKindLeveraged, pos.Kind())
	require.Equal(t, types.Leverage2x, pos.LeverageFactor())
	require.Equal(t, types.WholeTokens(50).String(), pos.Borrowed().String())
	require.True(t, pos.QuoteDeposited().IsZero())
	require.Equal(t, types.WholeTokens(50).String(), f.lending.State().Borrowed.String())

	// 1.5% leveraged-open fee on the base side
	require.Equal(t, math.NewInt(1_500_000_000).String(), res.FeeCharged.String())
	require.Equal(t, res.WrappedMinted.String(), pos.WrappedClaim.String())

	closed, result, err := f.ledger.Close("alice", pos.ID, &f.pool)
	require.NoError(t, err)
	require.False(t, closed.IsOpen)
	require.NotNil(t, closed.ClosedAt)
	require.Equal(t, types.WholeTokens(50).String(), result.QuoteRepaid.String())
	require.True(t, f.lending.State().Borrowed.IsZero())
	require.Equal(t, types.WholeTokens(1_000_000).String(), f.lending.AvailableLiquidity().String())
}

func TestOpenOneAndAHalfXSplitsQuote(t *testing.T) {
	f := newFixture(t, 1_000_000)

	plan, err := f.ledger.PlanLeverage(f.pool, tokens(101), types.Leverage15x)
	require.NoError(t, err)
	require.Equal(t, math.NewInt(50_500_000_000).String(), plan.QuoteRequirement.String())
	require.Equal(t, math.NewInt(25_250_000_000).String(), plan.Borrow.String())
	require.Equal(t, math.NewInt(25_250_000_000).String(), plan.Deposit.String())

	pos, _, err := f.ledger.OpenLeveraged("bob", &f.pool, tokens(101), types.Leverage15x)
	require.NoError(t, err)
	require.Equal(t, plan.Borrow.String(), pos.Borrowed().String())
	require.Equal(t, plan.Deposit.String(), pos.QuoteDeposited().String())
}

func TestLeveragedOpenIsAtomicWhenBorrowFails(t *testing.T) {
	f := newFixture(t, 10)
	before := f.pool

	_, _, err := f.ledger.OpenLeveraged("alice", &f.pool, tokens(100), types.Leverage2x)
	require.ErrorIs(t, err, types.ErrInsufficientLiquidity)
	var liqErr *lending.InsufficientLiquidityError
	require.ErrorAs(t, err, &liqErr)
	require.Equal(t, types.WholeTokens(10).String(), liqErr.Available.String())

	require.Equal(t, 0, f.ledger.Len())
	require.Equal(t, before.TotalWrapped.String(), f.pool.TotalWrapped.String())
	require.Equal(t, before.BaseCustody.String(), f.pool.BaseCustody.String())
	require.Equal(t, before.Rate.String(), f.pool.Rate.String())
	require.True(t, f.lending.State().Borrowed.IsZero())
}

func TestCloseTwiceIsRejected(t *testing.T) {
	f := newFixture(t, 1_000_000)
	pos, _, err := f.ledger.OpenLeveraged("alice", &f.pool, tokens(100), types.Leverage2x)
	require.NoError(t, err)
	_, _, err = f.ledger.Close("alice", pos.ID, &f.pool)
	require.NoError(t, err)

	poolAfterFirst := f.pool
	lendingAfterFirst := f.lending.State()

	_, _, err = f.ledger.Close("alice", pos.ID, &f.pool)
	require.ErrorIs(t, err, types.ErrPositionAlreadyClosed)
	require.Equal(t, poolAfterFirst.BaseCustody.String(), f.pool.BaseCustody.String())
	require.Equal(t, poolAfterFirst.TotalWrapped.String(), f.pool.TotalWrapped.String())
	require.Equal(t, lendingAfterFirst.Borrowed.String(), f.lending.State().Borrowed.String())
}

func TestCloseChecksOwnerAndExistence(t *testing.T) {
	f := newFixture(t, 1_000_000)
	pos, _, err := f.ledger.OpenLP("alice", &f.pool, tokens(10), types.NewQuoteAmount(types.WholeTokens(5)))
	require.NoError(t, err)

	_, _, err = f.ledger.Close("mallory", pos.ID, &f.pool)
	require.ErrorIs(t, err, types.ErrNotPositionOwner)
	_, _, err = f.ledger.Close("alice", "missing", &f.pool)
	require.ErrorIs(t, err, types.ErrPositionNotFound)

	got, err := f.ledger.Get(pos.ID)
	require.NoError(t, err)
	require.True(t, got.IsOpen)
}

func TestLPPositionRoundTrip(t *testing.T) {
	f := newFixture(t, 1_000_000)

	pos, res, err := f.ledger.OpenLP("alice", &f.pool, tokens(10), types.NewQuoteAmount(types.WholeTokens(5)))
	require.NoError(t, err)
	require.Equal(t, types.PositionKindLP, pos.Kind())
	require.Equal(t, types.Leverage1x, pos.LeverageFactor())
	require.True(t, res.FeeCharged.IsZero())
	require.True(t, pos.Borrowed().IsZero())
	require.True(t, f.lending.State().Borrowed.IsZero())

	_, result, err := f.ledger.Close("alice", pos.ID, &f.pool)
	require.NoError(t, err)
	require.True(t, result.QuoteRepaid.IsZero())
	require.Equal(t, types.WholeTokens(5).String(), result.QuoteReturned.String())

	_, _, err = f.ledger.OpenLP("alice", &f.pool, tokens(10), types.ZeroQuote())
	require.ErrorIs(t, err, types.ErrInvalidAmount)
}

func TestCloseRealizesRateGrowth(t *testing.T) {
	f := newFixture(t, 1_000_000)
	pos, _, err := f.ledger.OpenLeveraged("alice", &f.pool, tokens(1000), types.Leverage2x)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := f.engine.Wrap(&f.pool, tokens(1_000_000))
		require.NoError(t, err)
	}
	require.True(t, f.pool.Rate.GT(pos.EntryRate.Int))

	_, result, err := f.ledger.Close("alice", pos.ID, &f.pool)
	require.NoError(t, err)
	require.True(t, result.YieldEarnedBase.IsPositive())
	require.True(t, result.BaseGross.GT(pos.Collateral.Sub(pos.OpenFee.Int)))
	require.Equal(t, result.BaseGross.Sub(result.FeeCharged.Int).String(), result.BaseReturned.String())
}

func TestPlanLeverageRejects(t *testing.T) {
	f := newFixture(t, 1_000_000)

	_, err := f.ledger.PlanLeverage(f.pool, tokens(1), types.Leverage1x)
	require.ErrorIs(t, err, types.ErrUnsupportedLeverage)
	_, err = f.ledger.PlanLeverage(f.pool, types.ZeroBase(), types.Leverage2x)
	require.ErrorIs(t, err, types.ErrInvalidAmount)

	f.pool.BaseSymbol = "NOPE"
	_, err = f.ledger.PlanLeverage(f.pool, tokens(1), types.Leverage2x)
	require.ErrorIs(t, err, types.ErrPriceUnavailable)
}

func TestByOwnerAndOpen(t *testing.T) {
	f := newFixture(t, 1_000_000)
	a, _, err := f.ledger.OpenLeveraged("alice", &f.pool, tokens(10), types.Leverage2x)
	require.NoError(t, err)
	_, _, err = f.ledger.OpenLeveraged("bob", &f.pool, tokens(10), types.Leverage15x)
	require.NoError(t, err)
	_, _, err = f.ledger.Close("alice", a.ID, &f.pool)
	require.NoError(t, err)

	require.Len(t, f.ledger.ByOwner("alice"), 1)
	require.Len(t, f.ledger.ByOwner("bob"), 1)
	require.Len(t, f.ledger.Open(), 1)
	require.Equal(t, "bob", f.ledger.Open()[0].Owner)
}
