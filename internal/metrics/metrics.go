// Package metrics exposes the crucible engine's Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forgelabs/crucible/internal/lending"
	"github.com/forgelabs/crucible/internal/types"
	"github.com/forgelabs/crucible/internal/utils"
)

const defaultNamespace = "crucible"

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	gatherer prometheus.Gatherer

	// Transaction metrics
	TransactionsTotal *prometheus.CounterVec
	BaseVolumeTotal   *prometheus.CounterVec
	FeesChargedTotal  *prometheus.CounterVec
	RejectionsTotal   *prometheus.CounterVec

	// Pool metrics
	ExchangeRate     *prometheus.GaugeVec
	TotalWrapped     *prometheus.GaugeVec
	BaseCustody      *prometheus.GaugeVec
	TotalValueLocked *prometheus.GaugeVec
	FeesCollected    *prometheus.GaugeVec
	YieldDistributed *prometheus.GaugeVec

	// Lending metrics
	LendingBorrowed    prometheus.Gauge
	LendingAvailable   prometheus.Gauge
	LendingUtilization prometheus.Gauge
	LendingRate        prometheus.Gauge
	OpenPositions      prometheus.Gauge

	// Snapshot loop
	SnapshotCycles   *prometheus.CounterVec
	SnapshotDuration prometheus.Histogram
}

// NewMetrics registers every metric on reg. A nil reg uses a fresh registry, which is what
// tests want.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		TransactionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "transactions_total",
			Help:      "Committed transactions by crucible and kind",
		}, []string{"crucible", "kind"}),
		BaseVolumeTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "base_volume_total",
			Help:      "Whole base tokens moved into or out of custody",
		}, []string{"crucible", "direction"}),
		FeesChargedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "fees_charged_total",
			Help:      "Whole base tokens charged as fees",
		}, []string{"crucible"}),
		RejectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "rejections_total",
			Help:      "Rejected operations by operation and error code",
		}, []string{"operation", "code"}),

		ExchangeRate: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "exchange_rate",
			Help:      "Base tokens per wrapped token",
		}, []string{"crucible"}),
		TotalWrapped: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "total_wrapped",
			Help:      "Outstanding wrapped supply",
		}, []string{"crucible"}),
		BaseCustody: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "base_custody",
			Help:      "Base tokens held against the wrapped supply",
		}, []string{"crucible"}),
		TotalValueLocked: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "tvl_usd",
			Help:      "Base custody at the current price",
		}, []string{"crucible"}),
		FeesCollected: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "fees_collected",
			Help:      "Protocol share of fees retained by the pool",
		}, []string{"crucible"}),
		YieldDistributed: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "yield_distributed",
			Help:      "Fee share credited to holders through rate growth",
		}, []string{"crucible"}),

		LendingBorrowed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lending",
			Name:      "borrowed",
			Help:      "Quote currently lent to leveraged positions",
		}),
		LendingAvailable: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lending",
			Name:      "available",
			Help:      "Quote available to borrow",
		}),
		LendingUtilization: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lending",
			Name:      "utilization_ratio",
			Help:      "Borrowed over total",
		}),
		LendingRate: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lending",
			Name:      "interest_rate_annual",
			Help:      "Annual simple interest charged on borrowed quote",
		}),
		OpenPositions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "open",
			Help:      "Open positions across all crucibles",
		}),

		SnapshotCycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "cycles_total",
			Help:      "Snapshot cycles by status",
		}, []string{"status"}),
		SnapshotDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "duration_seconds",
			Help:      "Time spent taking one round of snapshots",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func whole(i types.BaseAmount) float64 {
	f, err := utils.ScaledToFloat64(i.Int)
	if err != nil {
		return 0
	}
	return f
}

// ObserveTransaction counts a committed transaction.
func (m *Metrics) ObserveTransaction(tx types.Transaction) {
	id := string(tx.Meta().CrucibleID)
	m.TransactionsTotal.WithLabelValues(id, string(tx.Kind())).Inc()

	switch t := tx.(type) {
	case types.Deposit:
		m.BaseVolumeTotal.WithLabelValues(id, "in").Add(whole(t.BaseIn))
		m.FeesChargedTotal.WithLabelValues(id).Add(whole(t.Fee))
	case types.Withdraw:
		m.BaseVolumeTotal.WithLabelValues(id, "out").Add(whole(t.BaseReturned))
		m.FeesChargedTotal.WithLabelValues(id).Add(whole(t.Fee))
	case types.PositionOpened:
		m.BaseVolumeTotal.WithLabelValues(id, "in").Add(whole(t.Position.Collateral))
		m.FeesChargedTotal.WithLabelValues(id).Add(whole(t.Position.OpenFee))
	case types.PositionClosed:
		m.BaseVolumeTotal.WithLabelValues(id, "out").Add(whole(t.Result.BaseReturned))
		m.FeesChargedTotal.WithLabelValues(id).Add(whole(t.Result.FeeCharged))
	}
}

// ObserveRejection counts a failed operation under its registered error code.
func (m *Metrics) ObserveRejection(operation string, err error) {
	if err == nil {
		return
	}
	_, code, _ := errorsmod.ABCIInfo(err, false)
	m.RejectionsTotal.WithLabelValues(operation, strconv.FormatUint(uint64(code), 10)).Inc()
}

// ObservePool refreshes one crucible's gauges.
func (m *Metrics) ObservePool(s types.PoolSnapshot) {
	id := string(s.ID)
	m.ExchangeRate.WithLabelValues(id).Set(s.ExchangeRate)
	if f, err := utils.ScaledToFloat64(s.TotalWrapped.Amount); err == nil {
		m.TotalWrapped.WithLabelValues(id).Set(f)
	}
	if f, err := utils.ScaledToFloat64(s.BaseCustody.Amount); err == nil {
		m.BaseCustody.WithLabelValues(id).Set(f)
	}
	m.TotalValueLocked.WithLabelValues(id).Set(utils.DecimalToFloat64(s.TotalValueLocked))
	m.FeesCollected.WithLabelValues(id).Set(utils.DecimalToFloat64(s.FeesCollected))
	m.YieldDistributed.WithLabelValues(id).Set(utils.DecimalToFloat64(s.YieldDistributed))
}

// ObserveLending refreshes the lending pool gauges.
func (m *Metrics) ObserveLending(s lending.State) {
	if f, err := utils.ScaledToFloat64(s.Borrowed.Int); err == nil {
		m.LendingBorrowed.Set(f)
	}
	if f, err := utils.ScaledToFloat64(s.TotalLiquidity.Int); err == nil {
		m.LendingAvailable.Set(f)
	}
	m.LendingUtilization.Set(utils.DecimalToFloat64(s.Utilization))
	if f, err := utils.LegacyDecToFloat64(s.InterestRateAnnual); err == nil {
		m.LendingRate.Set(f)
	}
}

func (m *Metrics) SetOpenPositions(n int) {
	m.OpenPositions.Set(float64(n))
}

// ObserveSnapshotCycle records one run of the snapshot loop.
func (m *Metrics) ObserveSnapshotCycle(took time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SnapshotCycles.WithLabelValues(status).Inc()
	m.SnapshotDuration.Observe(took.Seconds())
}
