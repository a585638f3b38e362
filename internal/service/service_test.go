package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/forgelabs/crucible/internal/config"
	"github.com/forgelabs/crucible/internal/crucible"
	"github.com/forgelabs/crucible/internal/datafetcher"
	"github.com/forgelabs/crucible/internal/metrics"
	"github.com/forgelabs/crucible/internal/types"
)

type memoryStore struct {
	mu        sync.Mutex
	txs       []types.Transaction
	snapshots map[int][]types.PoolSnapshot
	cycle     int
	failSave  bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{snapshots: make(map[int][]types.PoolSnapshot)}
}

func (m *memoryStore) SaveTransaction(tx types.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errors.New("db down")
	}
	m.txs = append(m.txs, tx)
	return nil
}

func (m *memoryStore) SavePoolSnapshot(cycle int, _ string, _ time.Time, s types.PoolSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errors.New("db down")
	}
	m.snapshots[cycle] = append(m.snapshots[cycle], s)
	return nil
}

func (m *memoryStore) NextCycleNumber() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycle++
	return m.cycle + 100, nil
}

func engineConfig(prices *datafetcher.PriceTable) crucible.Config {
	cfg := config.DefaultEngineConfig()
	return crucible.Config{Crucibles: cfg.Crucibles, Fees: cfg.Fees, Lending: cfg.Lending, Prices: prices}
}

func defaultPrices() *datafetcher.PriceTable {
	return datafetcher.NewPriceTable(map[string]decimal.Decimal{
		"FOGO":  decimal.RequireFromString("0.5"),
		"FORGE": decimal.RequireFromString("0.002"),
		"USDC":  decimal.NewFromInt(1),
	})
}

func newService(t *testing.T, store Store) *Service {
	t.Helper()
	svc, err := NewService(Config{Engine: engineConfig(defaultPrices()), Metrics: metrics.NewMetrics("", nil), Store: store})
	require.NoError(t, err)
	return svc
}

func TestNewServiceValidates(t *testing.T) {
	_, err := NewService(Config{Engine: engineConfig(defaultPrices())})
	require.ErrorContains(t, err, "metrics")

	cfg := engineConfig(defaultPrices())
	cfg.Journal = &Service{}
	_, err = NewService(Config{Engine: cfg, Metrics: metrics.NewMetrics("", nil)})
	require.ErrorContains(t, err, "journal")

	cfg = engineConfig(defaultPrices())
	cfg.Fees.Wrap = math.LegacyOneDec()
	_, err = NewService(Config{Engine: cfg, Metrics: metrics.NewMetrics("", nil)})
	require.ErrorIs(t, err, types.ErrInvalidRate)
}

func TestCommittedTransactionsReachMetricsAndStore(t *testing.T) {
	store := newMemoryStore()
	svc := newService(t, store)
	reg := svc.Registry()

	_, err := reg.WrapTokens("alice", "fogo-crucible", "1000")
	require.NoError(t, err)
	_, err = reg.UnwrapTokens("alice", "fogo-crucible", "100")
	require.NoError(t, err)
	_, err = reg.UnwrapTokens("alice", "fogo-crucible", "1000000")
	require.ErrorIs(t, err, types.ErrInsufficientWrappedBalance)

	require.Len(t, store.txs, 2)
	require.Equal(t, types.TxDeposit, store.txs[0].Kind())
	require.Equal(t, types.TxWithdraw, store.txs[1].Kind())

	m := svc.Metrics()
	require.Equal(t, 1.0, testutil.ToFloat64(m.TransactionsTotal.WithLabelValues("fogo-crucible", "DEPOSIT")))
	require.Equal(t, 1000.0, testutil.ToFloat64(m.BaseVolumeTotal.WithLabelValues("fogo-crucible", "in")))
}

func TestStoreFailureDoesNotUndoCommit(t *testing.T) {
	store := newMemoryStore()
	store.failSave = true
	svc := newService(t, store)

	_, err := svc.Registry().WrapTokens("alice", "fogo-crucible", "10")
	require.NoError(t, err)
	b, err := svc.Registry().Balance("alice", "fogo-crucible")
	require.NoError(t, err)
	require.True(t, b.WrappedBalance.IsPositive())

	require.Error(t, svc.RunCycle(context.Background()))
	status, ok := svc.LastCycle()
	require.True(t, ok)
	require.Equal(t, "db down", status.Error)
}

func TestRunCycleSnapshotsEveryCrucible(t *testing.T) {
	store := newMemoryStore()
	svc := newService(t, store)

	_, err := svc.Registry().OpenLeveragedPosition("bob", "fogo-crucible", "100", 2)
	require.NoError(t, err)

	require.NoError(t, svc.RunCycle(context.Background()))
	status, ok := svc.LastCycle()
	require.True(t, ok)
	require.Equal(t, 101, status.CycleNumber)
	require.Equal(t, 2, status.Crucibles)
	require.Len(t, store.snapshots[101], 2)

	m := svc.Metrics()
	require.Equal(t, 1.0, testutil.ToFloat64(m.ExchangeRate.WithLabelValues("forge-crucible")))
	require.Equal(t, 50.0, testutil.ToFloat64(m.LendingBorrowed))
	require.Equal(t, 1.0, testutil.ToFloat64(m.OpenPositions))
	require.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotCycles.WithLabelValues("ok")))
}

func TestRunCycleWithoutStoreCountsLocally(t *testing.T) {
	svc := newService(t, nil)
	require.NoError(t, svc.RunCycle(context.Background()))
	require.NoError(t, svc.RunCycle(context.Background()))
	status, _ := svc.LastCycle()
	require.Equal(t, 2, status.CycleNumber)
}

func TestRunCycleReportsUnpricedCrucible(t *testing.T) {
	prices := datafetcher.NewPriceTable(map[string]decimal.Decimal{"FOGO": decimal.RequireFromString("0.5")})
	svc, err := NewService(Config{Engine: engineConfig(prices), Metrics: metrics.NewMetrics("", nil)})
	require.NoError(t, err)

	err = svc.RunCycle(context.Background())
	require.ErrorIs(t, err, types.ErrPriceUnavailable)
	status, _ := svc.LastCycle()
	require.Equal(t, 1, status.Crucibles)
	require.Equal(t, 1.0, testutil.ToFloat64(svc.Metrics().SnapshotCycles.WithLabelValues("error")))
}

func TestRunLoopStopsOnCancel(t *testing.T) {
	svc := newService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		svc.RunLoop(ctx, time.Hour)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, ok := svc.LastCycle()
		return ok
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunLoop did not return after cancel")
	}
}
