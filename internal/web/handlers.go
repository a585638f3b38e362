package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/forgelabs/crucible/internal/analyzer"
	"github.com/forgelabs/crucible/internal/state"
	"github.com/forgelabs/crucible/internal/types"
)

type amountRequest struct {
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

type openPositionRequest struct {
	Owner       string  `json:"owner"`
	Kind        string  `json:"kind"` // "lp" or "leveraged"
	BaseAmount  string  `json:"base_amount"`
	QuoteAmount string  `json:"quote_amount,omitempty"`
	Leverage    float64 `json:"leverage,omitempty"`
}

type closePositionRequest struct {
	Owner string `json:"owner"`
}

type setPriceRequest struct {
	PriceUSD string `json:"price_usd"`
}

// transactionView tags a transaction with its kind so the variants can be told apart.
type transactionView struct {
	Kind        types.TransactionKind `json:"kind"`
	Transaction types.Transaction     `json:"transaction"`
}

func crucibleID(r *http.Request) types.CrucibleID {
	return types.CrucibleID(mux.Vars(r)["id"])
}

func (ws *WebServer) handleGetCrucibles(w http.ResponseWriter, r *http.Request) {
	snapshots, err := ws.service.Registry().Snapshots()
	if err != nil {
		webLogger.Warn().Err(err).Msg("Some crucibles could not be snapshotted")
	}

	response := map[string]interface{}{
		"crucibles": snapshots,
		"count":     len(snapshots),
	}
	if err != nil {
		response["warning"] = err.Error()
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) handleGetCrucible(w http.ResponseWriter, r *http.Request) {
	snapshot, err := ws.service.Registry().Snapshot(crucibleID(r))
	if err != nil {
		ws.writeEngineError(w, "snapshot", err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, snapshot)
}

func (ws *WebServer) handlePreviewWrap(w http.ResponseWriter, r *http.Request) {
	res, err := ws.service.Registry().PreviewWrap(crucibleID(r), r.URL.Query().Get("amount"))
	if err != nil {
		ws.writeEngineError(w, "preview_wrap", err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, res)
}

func (ws *WebServer) handlePreviewUnwrap(w http.ResponseWriter, r *http.Request) {
	res, err := ws.service.Registry().PreviewUnwrap(crucibleID(r), r.URL.Query().Get("amount"))
	if err != nil {
		ws.writeEngineError(w, "preview_unwrap", err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, res)
}

func (ws *WebServer) handlePreviewLeverage(w http.ResponseWriter, r *http.Request) {
	leverage, err := strconv.ParseFloat(r.URL.Query().Get("leverage"), 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid leverage")
		return
	}

	plan, wrap, err := ws.service.Registry().PreviewLeveragedPosition(crucibleID(r), r.URL.Query().Get("amount"), leverage)
	if err != nil {
		ws.writeEngineError(w, "preview_leverage", err)
		return
	}

	response := map[string]interface{}{
		"plan": plan,
		"wrap": wrap,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) handleProjectRewards(w http.ResponseWriter, r *http.Request) {
	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid days")
		return
	}

	principal := r.URL.Query().Get("principal")
	rewards, err := ws.service.Registry().ProjectRewards(crucibleID(r), principal, days)
	if err != nil {
		ws.writeEngineError(w, "project_rewards", err)
		return
	}

	response := map[string]interface{}{
		"principal": principal,
		"days":      days,
		"rewards":   rewards,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) handleWrap(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeBody(w, r, &req); err != nil || req.Owner == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Body must be {\"owner\", \"amount\"}")
		return
	}

	res, err := ws.service.Registry().WrapTokens(req.Owner, crucibleID(r), req.Amount)
	if err != nil {
		ws.writeEngineError(w, "wrap", err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, res)
}

func (ws *WebServer) handleUnwrap(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeBody(w, r, &req); err != nil || req.Owner == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Body must be {\"owner\", \"amount\"}")
		return
	}

	res, err := ws.service.Registry().UnwrapTokens(req.Owner, crucibleID(r), req.Amount)
	if err != nil {
		ws.writeEngineError(w, "unwrap", err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, res)
}

func (ws *WebServer) handleOpenPosition(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if err := decodeBody(w, r, &req); err != nil || req.Owner == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid position request")
		return
	}

	var (
		position types.Position
		err      error
	)
	switch strings.ToLower(req.Kind) {
	case "lp":
		position, err = ws.service.Registry().OpenLPPosition(req.Owner, crucibleID(r), req.BaseAmount, req.QuoteAmount)
	case "leveraged":
		position, err = ws.service.Registry().OpenLeveragedPosition(req.Owner, crucibleID(r), req.BaseAmount, req.Leverage)
	default:
		ws.writeErrorResponse(w, http.StatusBadRequest, "Position kind must be \"lp\" or \"leveraged\"")
		return
	}
	if err != nil {
		ws.writeEngineError(w, "open_position", err)
		return
	}

	ws.writeJSONResponse(w, http.StatusCreated, position)
}

func (ws *WebServer) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	position, err := ws.service.Registry().Position(mux.Vars(r)["id"])
	if err != nil {
		ws.writeEngineError(w, "get_position", err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, position)
}

func (ws *WebServer) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	var req closePositionRequest
	if err := decodeBody(w, r, &req); err != nil || req.Owner == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Body must be {\"owner\"}")
		return
	}

	position, result, err := ws.service.Registry().ClosePosition(req.Owner, mux.Vars(r)["id"])
	if err != nil {
		ws.writeEngineError(w, "close_position", err)
		return
	}

	response := map[string]interface{}{
		"position": position,
		"result":   result,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	balances, err := ws.service.Registry().Balances(owner)
	if err != nil {
		ws.writeEngineError(w, "balances", err)
		return
	}

	response := map[string]interface{}{
		"owner":    owner,
		"balances": balances,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) handleGetOwnerPositions(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	positions := ws.service.Registry().Positions(owner)

	response := map[string]interface{}{
		"owner":     owner,
		"positions": positions,
		"count":     len(positions),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) handleGetOwnerTransactions(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	txs := ws.service.Registry().Transactions(owner)

	views := make([]transactionView, 0, len(txs))
	for _, tx := range txs {
		views = append(views, transactionView{Kind: tx.Kind(), Transaction: tx})
	}

	response := map[string]interface{}{
		"owner":        owner,
		"transactions": views,
		"count":        len(views),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) handleGetLending(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, ws.service.Registry().LendingState())
}

func (ws *WebServer) handleProjectLendingInterest(w http.ResponseWriter, r *http.Request) {
	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid days")
		return
	}

	projection, err := ws.service.Registry().ProjectLendingInterest(r.URL.Query().Get("principal"), days)
	if err != nil {
		ws.writeEngineError(w, "project_interest", err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, projection)
}

func (ws *WebServer) handleGetFees(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"fees":      ws.service.Registry().Fees(),
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) handleGetPrices(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"prices":    ws.prices.All(),
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) handleSetPrice(w http.ResponseWriter, r *http.Request) {
	var req setPriceRequest
	if err := decodeBody(w, r, &req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Body must be {\"price_usd\"}")
		return
	}
	price, err := decimal.NewFromString(req.PriceUSD)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid price")
		return
	}

	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	if err := ws.prices.Set(symbol, price); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"symbol": symbol, "price_usd": price})
}

// handleGetOwnerHistory serves stored transactions; ?kind= may be repeated.
func (ws *WebServer) handleGetOwnerHistory(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	var kinds []types.TransactionKind
	for _, k := range r.URL.Query()["kind"] {
		kinds = append(kinds, types.TransactionKind(strings.ToUpper(k)))
	}
	limit := queryLimit(r, 50, 500)

	records, err := state.GetOwnerTransactions(owner, kinds, limit)
	if err != nil {
		webLogger.Error().Err(err).Str("owner", owner).Msg("Failed to get owner history")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve history")
		return
	}

	response := map[string]interface{}{
		"owner":        owner,
		"transactions": records,
		"count":        len(records),
		"limit":        limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) handleGetSnapshots(w http.ResponseWriter, r *http.Request) {
	id := crucibleID(r)
	limit := queryLimit(r, 20, 500)

	records, err := state.GetRecentSnapshots(id, limit)
	if err != nil {
		webLogger.Error().Err(err).Str("crucible", string(id)).Msg("Failed to get snapshots")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve snapshots")
		return
	}

	response := map[string]interface{}{
		"snapshots": records,
		"count":     len(records),
		"limit":     limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetPerformance analyzes the stored snapshots of one crucible.
func (ws *WebServer) handleGetPerformance(w http.ResponseWriter, r *http.Request) {
	id := crucibleID(r)
	limit := queryLimit(r, 500, 500)

	records, err := state.GetRecentSnapshots(id, limit)
	if err != nil {
		webLogger.Error().Err(err).Str("crucible", string(id)).Msg("Failed to get snapshots for performance")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve snapshots")
		return
	}

	ws.writePerformance(w, id, ratePoints(records))
}

func ratePoints(records []state.SnapshotRecord) []analyzer.RatePoint {
	points := make([]analyzer.RatePoint, 0, len(records))
	for _, rec := range records {
		points = append(points, analyzer.RatePoint{
			Timestamp: rec.Timestamp,
			Rate:      rec.Snapshot.ExchangeRate,
			PriceUSD:  rec.Snapshot.BasePriceUSD.InexactFloat64(),
		})
	}
	return points
}

func (ws *WebServer) writePerformance(w http.ResponseWriter, id types.CrucibleID, points []analyzer.RatePoint) {
	perf, err := analyzer.Analyze(points)
	if errors.Is(err, analyzer.ErrInsufficientData) {
		ws.writeErrorResponse(w, http.StatusUnprocessableEntity, "Not enough snapshots to analyze")
		return
	}
	if err != nil {
		webLogger.Error().Err(err).Str("crucible", string(id)).Msg("Failed to analyze performance")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to analyze performance")
		return
	}

	response := map[string]interface{}{
		"crucible_id": id,
		"performance": perf,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	summaries, err := state.GetCrucibleSummaries()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get crucible summaries")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve summary")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, summaries)
}
