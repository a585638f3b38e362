package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/forgelabs/crucible/internal/datafetcher"
	"github.com/forgelabs/crucible/internal/logger"
	"github.com/forgelabs/crucible/internal/service"
	"github.com/forgelabs/crucible/internal/state"
	"github.com/forgelabs/crucible/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

const maxBodyBytes = 1 << 16

// WebServer exposes the crucible engine over HTTP
type WebServer struct {
	router  *mux.Router
	port    string
	service *service.Service
	prices  *datafetcher.PriceTable
	history bool // stored history routes need the database
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, svc *service.Service, prices *datafetcher.PriceTable, history bool) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:  mux.NewRouter(),
		port:    port,
		service: svc,
		prices:  prices,
		history: history,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", ws.service.Metrics().Handler()).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// Crucibles
	api.HandleFunc("/crucibles", ws.handleGetCrucibles).Methods("GET")
	api.HandleFunc("/crucibles/{id}", ws.handleGetCrucible).Methods("GET")
	api.HandleFunc("/crucibles/{id}/preview/wrap", ws.handlePreviewWrap).Methods("GET")
	api.HandleFunc("/crucibles/{id}/preview/unwrap", ws.handlePreviewUnwrap).Methods("GET")
	api.HandleFunc("/crucibles/{id}/preview/leverage", ws.handlePreviewLeverage).Methods("GET")
	api.HandleFunc("/crucibles/{id}/rewards", ws.handleProjectRewards).Methods("GET")
	api.HandleFunc("/crucibles/{id}/wrap", ws.handleWrap).Methods("POST")
	api.HandleFunc("/crucibles/{id}/unwrap", ws.handleUnwrap).Methods("POST")
	api.HandleFunc("/crucibles/{id}/positions", ws.handleOpenPosition).Methods("POST")

	// Positions
	api.HandleFunc("/positions/{id}", ws.handleGetPosition).Methods("GET")
	api.HandleFunc("/positions/{id}/close", ws.handleClosePosition).Methods("POST")

	// Owners
	api.HandleFunc("/owners/{owner}/balances", ws.handleGetBalances).Methods("GET")
	api.HandleFunc("/owners/{owner}/positions", ws.handleGetOwnerPositions).Methods("GET")
	api.HandleFunc("/owners/{owner}/transactions", ws.handleGetOwnerTransactions).Methods("GET")

	// Shared state
	api.HandleFunc("/lending", ws.handleGetLending).Methods("GET")
	api.HandleFunc("/lending/interest", ws.handleProjectLendingInterest).Methods("GET")
	api.HandleFunc("/fees", ws.handleGetFees).Methods("GET")
	api.HandleFunc("/prices", ws.handleGetPrices).Methods("GET")
	api.HandleFunc("/prices/{symbol}", ws.handleSetPrice).Methods("PUT")

	if ws.history {
		api.HandleFunc("/owners/{owner}/history", ws.handleGetOwnerHistory).Methods("GET")
		api.HandleFunc("/crucibles/{id}/snapshots", ws.handleGetSnapshots).Methods("GET")
		api.HandleFunc("/crucibles/{id}/performance", ws.handleGetPerformance).Methods("GET")
		api.HandleFunc("/summary", ws.handleGetSummary).Methods("GET")
	}

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler returns the root router.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		webLogger.Info().Msg("Shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// handleHealth returns server health and the last snapshot cycle
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	var hasErrors bool
	var cycleInfo map[string]interface{}
	if last, ok := ws.service.LastCycle(); ok {
		status := "completed"
		if last.Error != "" {
			status = "failed"
			hasErrors = true
		}
		cycleInfo = map[string]interface{}{
			"current_cycle":     last.CycleNumber,
			"cycle_id":          last.CycleID,
			"last_cycle_time":   last.CompletedAt,
			"last_cycle_status": status,
			"last_cycle_error":  last.Error,
			"crucibles":         last.Crucibles,
		}
	} else {
		cycleInfo = map[string]interface{}{
			"current_cycle":     0,
			"last_cycle_time":   nil,
			"last_cycle_status": "unknown",
		}
		hasErrors = true // No cycle has run yet
	}

	crucibleStatus := map[string]interface{}{
		"crucibles":         len(ws.service.Registry().CrucibleIDs()),
		"open_positions":    len(ws.service.Registry().OpenPositions()),
		"has_recent_errors": hasErrors,
		"cycle_info":        cycleInfo,
	}
	if ws.history {
		dbHealthy := state.TestDBConnection() == nil
		if !dbHealthy {
			hasErrors = true
			crucibleStatus["has_recent_errors"] = true
		} else if persisted, err := state.GetCurrentCycleNumber(); err == nil {
			cycleInfo["persisted_cycle"] = persisted
		}
		crucibleStatus["database_healthy"] = dbHealthy
	}

	overallStatus := "OK"
	if hasErrors {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":            runtime.Version(),
			"goroutines_count":   runtime.NumGoroutine(),
			"total_alloc_bytes":  memStats.TotalAlloc,
			"heap_objects_count": memStats.HeapObjects,
			"alloc_bytes":        memStats.Alloc,
			"sys_bytes":          memStats.Sys,
			"gc_cycles":          memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "crucible-engine",
			"version": "1.0.0",
		},
		"crucible_status": crucibleStatus,
	}

	statusCode := http.StatusOK
	if hasErrors {
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// statusForError maps engine errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case types.IsParseError(err),
		errors.Is(err, types.ErrInvalidAmount),
		errors.Is(err, types.ErrUnsupportedLeverage):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrUnknownCrucible), errors.Is(err, types.ErrPositionNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrNotPositionOwner):
		return http.StatusForbidden
	case errors.Is(err, types.ErrPriceUnavailable):
		return http.StatusServiceUnavailable
	case types.IsDomainError(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeEngineError counts the rejection and answers with the mapped status.
func (ws *WebServer) writeEngineError(w http.ResponseWriter, operation string, err error) {
	ws.service.Metrics().ObserveRejection(operation, err)

	statusCode := statusForError(err)
	if statusCode == http.StatusInternalServerError {
		webLogger.Error().Err(err).Str("operation", operation).Msg("Engine operation failed")
		ws.writeErrorResponse(w, statusCode, "Internal error")
		return
	}
	ws.writeErrorResponse(w, statusCode, err.Error())
}

// decodeBody reads a JSON request body into dst, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// queryLimit parses ?limit=, falling back to def for anything invalid.
func queryLimit(r *http.Request, def, max int) int {
	limit := def
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= max {
			limit = parsedLimit
		}
	}
	return limit
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
