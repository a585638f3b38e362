package exchange

import (
	"encoding/json"
	"math/rand"
	"testing"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/forgelabs/crucible/internal/fees"
	"github.com/forgelabs/crucible/internal/types"
)

func dec(s string) math.LegacyDec { return math.LegacyMustNewDecFromStr(s) }

func testSchedule() fees.Schedule {
	return fees.Schedule{
		Wrap:            dec("0.015"),
		Unwrap:          dec("0.015"),
		LeveragedOpen:   dec("0.015"),
		LeveragedClose:  dec("0.02"),
		YieldOnInterest: dec("0.1"),
		Liquidation:     dec("0.1"),
		YieldShare:      dec("0.33"),
	}
}

func newTestPool(t *testing.T, initialSupply int64) (*Engine, types.Pool) {
	t.Helper()
	engine, err := NewEngine(testSchedule())
	require.NoError(t, err)
	pool, err := NewPool(types.CrucibleConfig{
		ID:            "fogo-crucible",
		BaseToken:     types.Token{Symbol: "FOGO"},
		WrappedToken:  types.Token{Symbol: "cFOGO"},
		TargetRate:    dec("1.0448"),
		APR:           dec("0.18"),
		InitialSupply: types.WholeTokens(initialSupply),
	}, testSchedule())
	require.NoError(t, err)
	return engine, pool
}

func tokens(n int64) types.BaseAmount { return types.NewBaseAmount(types.WholeTokens(n)) }

func requireInvariants(t *testing.T, pool types.Pool) {
	t.Helper()
	claimable, err := Claimable(pool)
	require.NoError(t, err)
	require.True(t, claimable.LTE(pool.BaseCustody.Int), "claimable %s exceeds custody %s", claimable, pool.BaseCustody)
	require.True(t, pool.Rate.LTE(pool.TargetRate.Int), "rate %s passed target %s", pool.Rate, pool.TargetRate)
}

func requireSameJSON(t *testing.T, want, got interface{}) {
	t.Helper()
	w, err := json.Marshal(want)
	require.NoError(t, err)
	g, err := json.Marshal(got)
	require.NoError(t, err)
	require.JSONEq(t, string(w), string(g))
}

func TestWrapAtParMintsNet(t *testing.T) {
	engine, pool := newTestPool(t, 0)

	res, err := engine.Wrap(&pool, tokens(1000))
	require.NoError(t, err)
	require.Equal(t, types.WholeTokens(985).String(), res.WrappedMinted.String())
	require.Equal(t, types.WholeTokens(15).String(), res.FeeCharged.String())
	require.Equal(t, types.InitialRate().String(), res.RateBefore.String())
	require.True(t, res.NewRate.GT(res.RateBefore.Int), "fee yield should grow the rate")
	require.Equal(t, types.WholeTokens(1000).String(), pool.BaseCustody.String())
	require.Equal(t, res.ToYield.Add(res.ToProtocol.Int).String(), res.FeeCharged.String())
	requireInvariants(t, pool)
}

func TestWrapAfterReachingTargetRate(t *testing.T) {
	engine, pool := newTestPool(t, 0)

	// Deposit the current custody each round so the yield share keeps moving the rate.
	deposit := tokens(1000)
	for i := 0; i < 64 && pool.Rate.LT(pool.TargetRate.Int); i++ {
		before := pool.Rate
		_, err := engine.Wrap(&pool, deposit)
		require.NoError(t, err)
		require.True(t, pool.Rate.GTE(before.Int))
		requireInvariants(t, pool)
		deposit = types.NewBaseAmount(pool.BaseCustody.Int)
	}
	require.Equal(t, types.RateFromDec(dec("1.0448")).String(), pool.Rate.String())

	res, err := engine.Wrap(&pool, tokens(100))
	require.NoError(t, err)
	// 98.5 net / 1.0448, truncated
	require.Equal(t, "94276416539", res.WrappedMinted.String())
	require.Equal(t, pool.TargetRate.String(), res.NewRate.String())
	require.True(t, res.YieldApplied.IsZero())
}

func TestUnwrapAppliesFeeToProceeds(t *testing.T) {
	engine, pool := newTestPool(t, 1_000_000)
	custodyBefore := pool.BaseCustody

	res, err := engine.Unwrap(&pool, types.NewWrappedAmount(types.WholeTokens(200)))
	require.NoError(t, err)
	require.Equal(t, types.WholeTokens(200).String(), res.BaseGross.String())
	require.Equal(t, types.WholeTokens(3).String(), res.FeeCharged.String())
	require.Equal(t, types.WholeTokens(197).String(), res.BaseReturned.String())
	require.Equal(t, custodyBefore.Sub(types.WholeTokens(200)).String(), pool.BaseCustody.String())
	require.Equal(t, types.InitialRate().String(), pool.Rate.String())
	requireInvariants(t, pool)
}

func TestUnwrapRejectsMoreThanSupply(t *testing.T) {
	engine, pool := newTestPool(t, 10)
	before := pool

	_, err := engine.Unwrap(&pool, types.NewWrappedAmount(types.WholeTokens(11)))
	require.ErrorIs(t, err, types.ErrInsufficientWrappedBalance)
	requireSameJSON(t, before, pool)

	_, err = engine.Unwrap(&pool, types.ZeroWrapped())
	require.ErrorIs(t, err, types.ErrInvalidAmount)
}

func TestDepositRejectsDust(t *testing.T) {
	engine, pool := newTestPool(t, 0)

	_, err := engine.Wrap(&pool, types.ZeroBase())
	require.ErrorIs(t, err, types.ErrInvalidAmount)

	// Once the rate is above par a single unit mints nothing.
	_, err = engine.Wrap(&pool, tokens(1000))
	require.NoError(t, err)
	require.True(t, pool.Rate.GT(types.InitialRate().Int))
	_, _, err = engine.PlanDeposit(pool, types.NewBaseAmount(math.NewInt(1)), dec("0"))
	require.ErrorIs(t, err, types.ErrInvalidAmount)

	_, _, err = engine.PlanDeposit(pool, tokens(1), dec("1"))
	require.ErrorIs(t, err, types.ErrInvalidRate)
}

func TestPreviewMatchesCommit(t *testing.T) {
	engine, pool := newTestPool(t, 6_450_000)
	for i := 0; i < 5; i++ {
		_, err := engine.Wrap(&pool, tokens(50_000))
		require.NoError(t, err)
	}

	first, _, err := engine.PlanWrap(pool, tokens(1234))
	require.NoError(t, err)
	second, _, err := engine.PlanWrap(pool, tokens(1234))
	require.NoError(t, err)
	requireSameJSON(t, first, second)

	committed, err := engine.Wrap(&pool, tokens(1234))
	require.NoError(t, err)
	requireSameJSON(t, first, committed)

	preview, _, err := engine.PlanUnwrap(pool, committed.WrappedMinted)
	require.NoError(t, err)
	unwrapped, err := engine.Unwrap(&pool, committed.WrappedMinted)
	require.NoError(t, err)
	requireSameJSON(t, preview, unwrapped)
}

func TestRoundTripNeverGainsValue(t *testing.T) {
	engine, pool := newTestPool(t, 6_450_000)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		in := types.NewBaseAmount(math.NewInt(rng.Int63n(1_000_000_000_000) + 1_000))
		w, err := engine.Wrap(&pool, in)
		require.NoError(t, err)
		u, err := engine.Unwrap(&pool, w.WrappedMinted)
		require.NoError(t, err)
		require.True(t, u.BaseReturned.LTE(in.Int), "round trip %s -> %s", in, u.BaseReturned)
		requireInvariants(t, pool)
	}
}

func TestRateIsMonotonicAndBacked(t *testing.T) {
	engine, pool := newTestPool(t, 0)
	rng := rand.New(rand.NewSource(42))
	held := types.ZeroWrapped()

	for i := 0; i < 500; i++ {
		before := pool.Rate
		if rng.Intn(3) > 0 || held.IsZero() {
			res, err := engine.Wrap(&pool, types.NewBaseAmount(math.NewInt(rng.Int63n(5_000_000_000_000)+1_000_000)))
			require.NoError(t, err)
			held = types.NewWrappedAmount(held.Add(res.WrappedMinted.Int))
		} else {
			amount := types.NewWrappedAmount(math.NewInt(rng.Int63n(held.Int64()) + 1))
			_, err := engine.Unwrap(&pool, amount)
			require.NoError(t, err)
			held = types.NewWrappedAmount(held.Sub(amount.Int))
		}
		require.True(t, pool.Rate.GTE(before.Int), "rate fell at step %d", i)
		requireInvariants(t, pool)
	}
	require.Equal(t, held.String(), pool.TotalWrapped.String())
}

func TestNewPoolRejectsBadConfig(t *testing.T) {
	cfg := types.CrucibleConfig{
		ID:           "forge-crucible",
		BaseToken:    types.Token{Symbol: "FORGE"},
		WrappedToken: types.Token{Symbol: "cFORGE"},
		TargetRate:   dec("0.9"),
		APR:          dec("0.32"),
	}
	_, err := NewPool(cfg, testSchedule())
	require.ErrorIs(t, err, types.ErrInvalidConfig)

	cfg.TargetRate = dec("1.0448")
	bad := testSchedule()
	bad.Wrap = dec("1")
	_, err = NewPool(cfg, bad)
	require.ErrorIs(t, err, types.ErrInvalidRate)

	_, err = NewEngine(bad)
	require.True(t, types.IsConfigError(err))

	cfg.BaseToken.Symbol = "1!"
	_, err = NewPool(cfg, testSchedule())
	require.ErrorIs(t, err, types.ErrInvalidConfig)
}
