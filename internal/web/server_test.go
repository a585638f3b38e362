package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgelabs/crucible/internal/config"
	"github.com/forgelabs/crucible/internal/crucible"
	"github.com/forgelabs/crucible/internal/datafetcher"
	"github.com/forgelabs/crucible/internal/metrics"
	"github.com/forgelabs/crucible/internal/service"
	"github.com/forgelabs/crucible/internal/state"
	"github.com/forgelabs/crucible/internal/types"
)

func newTestServer(t *testing.T) (*WebServer, *service.Service) {
	t.Helper()
	prices := datafetcher.NewPriceTable(map[string]decimal.Decimal{
		"FOGO":  decimal.RequireFromString("0.5"),
		"FORGE": decimal.RequireFromString("0.002"),
		"USDC":  decimal.NewFromInt(1),
	})
	engine := config.DefaultEngineConfig()
	svc, err := service.NewService(service.Config{
		Engine:  crucible.Config{Crucibles: engine.Crucibles, Fees: engine.Fees, Lending: engine.Lending, Prices: prices},
		Metrics: metrics.NewMetrics("", nil),
	})
	require.NoError(t, err)
	return NewWebServer("", svc, prices, false), svc
}

func do(t *testing.T, ws *WebServer, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestWrapMatchesPreviewAndShowsInBalances(t *testing.T) {
	ws, _ := newTestServer(t)

	preview := do(t, ws, http.MethodGet, "/api/crucibles/fogo-crucible/preview/wrap?amount=1000", nil)
	require.Equal(t, http.StatusOK, preview.Code)

	wrap := do(t, ws, http.MethodPost, "/api/crucibles/fogo-crucible/wrap", amountRequest{Owner: "alice", Amount: "1000"})
	require.Equal(t, http.StatusOK, wrap.Code)
	require.JSONEq(t, preview.Body.String(), wrap.Body.String())

	balances := decode(t, do(t, ws, http.MethodGet, "/api/owners/alice/balances", nil))
	list := balances["balances"].([]interface{})
	require.Len(t, list, 1)
	require.Equal(t, "fogo-crucible", list[0].(map[string]interface{})["crucible_id"])

	txs := decode(t, do(t, ws, http.MethodGet, "/api/owners/alice/transactions", nil))
	require.EqualValues(t, 1, txs["count"])
	first := txs["transactions"].([]interface{})[0].(map[string]interface{})
	require.Equal(t, "DEPOSIT", first["kind"])
}

func TestEngineErrorsMapToStatus(t *testing.T) {
	ws, svc := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"unknown crucible", http.MethodPost, "/api/crucibles/nope/wrap", amountRequest{Owner: "alice", Amount: "1"}, http.StatusNotFound},
		{"malformed amount", http.MethodPost, "/api/crucibles/fogo-crucible/wrap", amountRequest{Owner: "alice", Amount: "1e3"}, http.StatusBadRequest},
		{"missing owner", http.MethodPost, "/api/crucibles/fogo-crucible/wrap", amountRequest{Amount: "1"}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/crucibles/fogo-crucible/wrap", map[string]string{"owner": "a", "amt": "1"}, http.StatusBadRequest},
		{"unwrap without balance", http.MethodPost, "/api/crucibles/fogo-crucible/unwrap", amountRequest{Owner: "alice", Amount: "5"}, http.StatusConflict},
		{"unsupported leverage", http.MethodPost, "/api/crucibles/fogo-crucible/positions",
			openPositionRequest{Owner: "bob", Kind: "leveraged", BaseAmount: "10", Leverage: 3}, http.StatusBadRequest},
		{"unknown position kind", http.MethodPost, "/api/crucibles/fogo-crucible/positions",
			openPositionRequest{Owner: "bob", Kind: "short", BaseAmount: "10"}, http.StatusBadRequest},
		{"missing position", http.MethodPost, "/api/positions/none/close", closePositionRequest{Owner: "bob"}, http.StatusNotFound},
		{"unknown crucible preview", http.MethodGet, "/api/crucibles/nope/preview/unwrap?amount=1", nil, http.StatusNotFound},
		{"negative days", http.MethodGet, "/api/crucibles/fogo-crucible/rewards?principal=10&days=-1", nil, http.StatusBadRequest},
		{"interest without digits", http.MethodGet, "/api/lending/interest?principal=.&days=30", nil, http.StatusBadRequest},
		{"interest without days", http.MethodGet, "/api/lending/interest?principal=10", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, ws, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Equal(t, true, decode(t, rec)["error"])
		})
	}

	rejections := svc.Metrics().RejectionsTotal
	require.Equal(t, 1.0, testutil.ToFloat64(rejections.WithLabelValues("wrap", "36")))
	require.Equal(t, 1.0, testutil.ToFloat64(rejections.WithLabelValues("unwrap", "30")))
	require.Equal(t, 1.0, testutil.ToFloat64(rejections.WithLabelValues("project_interest", "10")))
	require.Equal(t, 1.0, testutil.ToFloat64(rejections.WithLabelValues("open_position", "4")))
}

func TestLendingInterestSplitsYieldFee(t *testing.T) {
	ws, _ := newTestServer(t)

	rec := do(t, ws, http.MethodGet, "/api/lending/interest?principal=1000&days=365", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode(t, rec)
	require.Equal(t, "50000000000", got["gross"])
	require.Equal(t, "5000000000", got["fee"])
	require.Equal(t, "45000000000", got["net"])
	require.Equal(t, "0.045000000000000000", got["effective_rate_annual"])
	require.EqualValues(t, 365, got["days"])
}

func TestHealthReportsDatabaseWhenHistoryEnabled(t *testing.T) {
	_, svc := newTestServer(t)
	require.NoError(t, svc.RunCycle(context.Background()))
	ws := NewWebServer("", svc, nil, true)

	rec := do(t, ws, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	status := decode(t, rec)["crucible_status"].(map[string]interface{})
	require.Equal(t, false, status["database_healthy"])
	require.NotContains(t, status["cycle_info"], "persisted_cycle")
}

func TestLeveragedPositionOverHTTP(t *testing.T) {
	ws, _ := newTestServer(t)

	open := do(t, ws, http.MethodPost, "/api/crucibles/fogo-crucible/positions",
		openPositionRequest{Owner: "bob", Kind: "leveraged", BaseAmount: "100", Leverage: 2})
	require.Equal(t, http.StatusCreated, open.Code, open.Body.String())
	position := decode(t, open)
	id := position["id"].(string)
	require.Equal(t, "LEVERAGED", position["kind"])

	lending := decode(t, do(t, ws, http.MethodGet, "/api/lending", nil))
	require.Equal(t, "50000000000", lending["borrowed"])

	rec := do(t, ws, http.MethodPost, "/api/positions/"+id+"/close", closePositionRequest{Owner: "mallory"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, ws, http.MethodPost, "/api/positions/"+id+"/close", closePositionRequest{Owner: "bob"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	closed := decode(t, rec)["position"].(map[string]interface{})
	require.Equal(t, false, closed["is_open"])

	rec = do(t, ws, http.MethodPost, "/api/positions/"+id+"/close", closePositionRequest{Owner: "bob"})
	require.Equal(t, http.StatusConflict, rec.Code)

	got := decode(t, do(t, ws, http.MethodGet, "/api/positions/"+id, nil))
	require.Equal(t, id, got["id"])
}

func TestLPPositionNeedsQuote(t *testing.T) {
	ws, _ := newTestServer(t)

	rec := do(t, ws, http.MethodPost, "/api/crucibles/fogo-crucible/positions",
		openPositionRequest{Owner: "carol", Kind: "LP", BaseAmount: "10", QuoteAmount: "5"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "LP", decode(t, rec)["kind"])

	positions := decode(t, do(t, ws, http.MethodGet, "/api/owners/carol/positions", nil))
	require.EqualValues(t, 1, positions["count"])
}

func TestPriceUpdateReachesSnapshots(t *testing.T) {
	ws, _ := newTestServer(t)

	rec := do(t, ws, http.MethodPut, "/api/prices/fogo", setPriceRequest{PriceUSD: "0.75"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	snapshot := decode(t, do(t, ws, http.MethodGet, "/api/crucibles/fogo-crucible", nil))
	require.Equal(t, "0.75", snapshot["base_price_usd"])

	rec = do(t, ws, http.MethodPut, "/api/prices/fogo", setPriceRequest{PriceUSD: "-1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	prices := decode(t, do(t, ws, http.MethodGet, "/api/prices", nil))
	require.Len(t, prices["prices"], 3)
}

func TestHealthFollowsSnapshotCycle(t *testing.T) {
	ws, svc := newTestServer(t)

	rec := do(t, ws, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, svc.RunCycle(context.Background()))
	rec = do(t, ws, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", decode(t, rec)["status"])
}

func TestMetricsAndOptionalRoutes(t *testing.T) {
	ws, svc := newTestServer(t)
	require.NoError(t, svc.RunCycle(context.Background()))

	rec := do(t, ws, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "exchange_rate")

	require.Equal(t, http.StatusNotFound, do(t, ws, http.MethodGet, "/api/summary", nil).Code)
	require.Equal(t, http.StatusOK, do(t, ws, http.MethodGet, "/api/fees", nil).Code)
}

func TestStatusForError(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, statusForError(errorsmod.Wrap(types.ErrParse, "x")))
	require.Equal(t, http.StatusServiceUnavailable, statusForError(errorsmod.Wrap(types.ErrPriceUnavailable, "FOGO")))
	require.Equal(t, http.StatusConflict, statusForError(types.ErrInsufficientLiquidity))
	require.Equal(t, http.StatusConflict, statusForError(types.ErrPositionAlreadyClosed))
	require.Equal(t, http.StatusInternalServerError, statusForError(types.ErrOverflow))
	require.Equal(t, http.StatusInternalServerError, statusForError(errors.New("boom")))
}

func TestWritePerformance(t *testing.T) {
	ws, _ := newTestServer(t)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	rec := httptest.NewRecorder()
	ws.writePerformance(rec, "fogo-crucible", ratePoints([]state.SnapshotRecord{
		{Timestamp: now, Snapshot: types.PoolSnapshot{ExchangeRate: 1}},
	}))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	ws.writePerformance(rec, "fogo-crucible", ratePoints([]state.SnapshotRecord{
		{Timestamp: now.Add(365 * 24 * time.Hour), Snapshot: types.PoolSnapshot{ExchangeRate: 1.0448, BasePriceUSD: decimal.RequireFromString("0.5")}},
		{Timestamp: now, Snapshot: types.PoolSnapshot{ExchangeRate: 1, BasePriceUSD: decimal.RequireFromString("0.5")}},
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	perf := decode(t, rec)["performance"].(map[string]interface{})
	require.InDelta(t, 0.0448, perf["realized_apy"], 1e-9)
}
