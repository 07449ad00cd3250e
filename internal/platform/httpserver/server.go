// Package httpserver composes the bidding engine's RPC surface behind one
// net/http.ServeMux: ServeMux composition, per-route handler methods, and
// decodeJSON/writeJSON/write*DomainError helpers.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	biddingengine "porterdispatch/contexts/dispatch/bidding-engine"
	domainerrors "porterdispatch/contexts/dispatch/bidding-engine/domain/errors"
	biddinghttp "porterdispatch/contexts/dispatch/bidding-engine/transport/http"
)

// Dependency is a liveness/readiness probe for one external dependency
// (database, ephemeral store, event log) wired in by the caller.
type Dependency struct {
	Name string
	Check func(ctx context.Context) error
}

type Server struct {
	mux *http.ServeMux
	logger *slog.Logger
	addr string
	httpServer *http.Server
	bidding biddingengine.Module
	deps []Dependency
	startedAt time.Time
}

func New(bidding biddingengine.Module, deps []Dependency, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}
	s := &Server{
		mux: http.NewServeMux(),
		logger: logger,
		addr: addr,
		bidding: bidding,
		deps: deps,
		startedAt: time.Now().UTC(),
	}
	s.registerRoutes()
	s.httpServer = &http.Server{Addr: s.addr, Handler: s.mux}
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	if s.httpServer == nil {
		s.httpServer = &http.Server{Addr: s.addr, Handler: s.mux}
	}
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.HandleFunc("GET /metrics", s.handleMetrics)

	s.mux.HandleFunc("POST /v1/bidding/windows", s.handleOpenWindow)
	s.mux.HandleFunc("GET /v1/bidding/windows/{window_id}", s.handleGetWindow)
	s.mux.HandleFunc("POST /v1/bidding/windows/{window_id}/close", s.handleCloseWindow)
	s.mux.HandleFunc("POST /v1/bidding/windows/{window_id}/bids", s.handlePlaceBid)
	s.mux.HandleFunc("POST /v1/bidding/windows/{window_id}/bids/{bid_id}/accept", s.handleAcceptBid)
	s.mux.HandleFunc("POST /v1/bidding/windows/{window_id}/preview", s.handlePreviewBidOutcome)
	s.mux.HandleFunc("POST /v1/bidding/bids/{bid_id}/cancel", s.handleCancelBid)
	s.mux.HandleFunc("GET /v1/bidding/orders/{order_id}/active-bids", s.handleGetActiveBidsForOrder)
	s.mux.HandleFunc("GET /v1/bidding/porters/{porter_id}/bids", s.handleGetMyBids)
	s.mux.HandleFunc("GET /v1/bidding/statistics", s.handleGetStatistics)
}

// --- decode/write helpers ---

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeBiddingError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeBiddingError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, biddinghttp.ErrorResponse{Code: code, Message: message})
}

func getUserID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-Id"))
}

func getRequestID(r *http.Request) string {
	if requestID := strings.TrimSpace(r.Header.Get("X-Request-Id")); requestID != "" {
		return requestID
	}
	return strings.TrimSpace(r.Header.Get("Idempotency-Key"))
}

func resolveClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	return r.RemoteAddr
}

func requireBiddingUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := getUserID(r)
	if userID == "" {
		writeBiddingError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return "", false
	}
	return userID, true
}

func requireBiddingIdempotencyKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		writeBiddingError(w, http.StatusBadRequest, "idempotency_key_required", "Idempotency-Key header is required")
		return "", false
	}
	return key, true
}

func queryIntDefault(r *http.Request, key string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeBiddingDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domainerrors.ErrWindowNotFound):
		writeBiddingError(w, http.StatusNotFound, "window_not_found", err.Error())
	case errors.Is(err, domainerrors.ErrBidNotFound):
		writeBiddingError(w, http.StatusNotFound, "bid_not_found", err.Error())
	case errors.Is(err, domainerrors.ErrStrategyNotFound):
		writeBiddingError(w, http.StatusNotFound, "strategy_not_found", err.Error())
	case errors.Is(err, domainerrors.ErrInvalidInput):
		writeBiddingError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domainerrors.ErrBidTooLow):
		writeBiddingError(w, http.StatusBadRequest, "bid_too_low", err.Error())
	case errors.Is(err, domainerrors.ErrWindowNotOpen):
		writeBiddingError(w, http.StatusConflict, "window_not_open", err.Error())
	case errors.Is(err, domainerrors.ErrWindowAlreadyOpen):
		writeBiddingError(w, http.StatusConflict, "window_already_open", err.Error())
	case errors.Is(err, domainerrors.ErrConcurrentAccept):
		writeBiddingError(w, http.StatusConflict, "concurrent_accept", err.Error())
	case errors.Is(err, domainerrors.ErrBidWrongWindow):
		writeBiddingError(w, http.StatusConflict, "bid_wrong_window", err.Error())
	case errors.Is(err, domainerrors.ErrBidNotPlaced):
		writeBiddingError(w, http.StatusConflict, "bid_not_placed", err.Error())
	case errors.Is(err, domainerrors.ErrBidTerminal):
		writeBiddingError(w, http.StatusConflict, "bid_terminal", err.Error())
	case errors.Is(err, domainerrors.ErrIdempotencyConflict):
		writeBiddingError(w, http.StatusConflict, "idempotency_conflict", err.Error())
	case errors.Is(err, domainerrors.ErrPorterLimit):
		writeBiddingError(w, http.StatusConflict, "porter_bid_limit_reached", err.Error())
	case errors.Is(err, domainerrors.ErrStrategyInactive):
		writeBiddingError(w, http.StatusConflict, "strategy_inactive", err.Error())
	case errors.Is(err, domainerrors.ErrPorterIneligible):
		writeBiddingError(w, http.StatusForbidden, "porter_ineligible", err.Error())
	case errors.Is(err, domainerrors.ErrNotBidOwner):
		writeBiddingError(w, http.StatusForbidden, "not_bid_owner", err.Error())
	case errors.Is(err, domainerrors.ErrWindowExpired):
		writeBiddingError(w, http.StatusGone, "window_expired", err.Error())
	default:
		writeBiddingError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// --- handlers ---

func (s *Server) handleOpenWindow(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r)
	userID, ok := requireBiddingUser(w, r)
	if !ok {
		return
	}
	idempotencyKey, ok := requireBiddingIdempotencyKey(w, r)
	if !ok {
		return
	}
	s.logger.Info("bidding open window request received",
		"event", "bidding_http_open_window_received",
		"module", "dispatch/bidding-engine",
		"layer", "platform",
		"request_id", requestID,
		"user_id", userID,
	)
	var req biddinghttp.OpenWindowRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.bidding.Handler.OpenWindowHandler(r.Context(), userID, idempotencyKey, req)
	if err != nil {
		writeBiddingDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleGetWindow(w http.ResponseWriter, r *http.Request) {
	windowID := r.PathValue("window_id")
	resp, err := s.bidding.Handler.GetBiddingWindowHandler(r.Context(), windowID)
	if err != nil {
		writeBiddingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCloseWindow(w http.ResponseWriter, r *http.Request) {
	windowID := r.PathValue("window_id")
	actor, ok := requireBiddingUser(w, r)
	if !ok {
		return
	}
	var req biddinghttp.CloseWindowRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.bidding.Handler.CloseWindowHandler(r.Context(), windowID, actor, req); err != nil {
		writeBiddingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (s *Server) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	windowID := r.PathValue("window_id")
	porterID, ok := requireBiddingUser(w, r)
	if !ok {
		return
	}
	idempotencyKey, ok := requireBiddingIdempotencyKey(w, r)
	if !ok {
		return
	}
	var req biddinghttp.PlaceBidRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.bidding.Handler.PlaceBidHandler(r.Context(), windowID, porterID, idempotencyKey, req)
	if err != nil {
		writeBiddingDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleAcceptBid(w http.ResponseWriter, r *http.Request) {
	windowID := r.PathValue("window_id")
	bidID := r.PathValue("bid_id")
	acceptedBy, ok := requireBiddingUser(w, r)
	if !ok {
		return
	}
	var req biddinghttp.AcceptBidRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.bidding.Handler.AcceptBidHandler(r.Context(), windowID, bidID, acceptedBy, req)
	if err != nil {
		writeBiddingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelBid(w http.ResponseWriter, r *http.Request) {
	bidID := r.PathValue("bid_id")
	porterID := getUserID(r)
	var req biddinghttp.CancelBidRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.bidding.Handler.CancelBidHandler(r.Context(), bidID, porterID, req); err != nil {
		writeBiddingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handlePreviewBidOutcome(w http.ResponseWriter, r *http.Request) {
	windowID := r.PathValue("window_id")
	porterID := getUserID(r)
	var req biddinghttp.PreviewBidOutcomeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.bidding.Handler.PreviewBidOutcomeHandler(r.Context(), windowID, porterID, req)
	if err != nil {
		writeBiddingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetActiveBidsForOrder(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("order_id")
	page := queryIntDefault(r, "page", 1)
	pageSize := queryIntDefault(r, "page_size", 20)
	resp, err := s.bidding.Handler.GetActiveBidsForOrderHandler(r.Context(), orderID, page, pageSize)
	if err != nil {
		writeBiddingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetMyBids(w http.ResponseWriter, r *http.Request) {
	porterID := r.PathValue("porter_id")
	page := queryIntDefault(r, "page", 1)
	pageSize := queryIntDefault(r, "page_size", 20)
	resp, err := s.bidding.Handler.GetMyBidsHandler(r.Context(), porterID, page, pageSize)
	if err != nil {
		writeBiddingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireBiddingUser(w, r); !ok {
		return
	}
	resp, err := s.bidding.Handler.GetStatisticsHandler(r.Context())
	if err != nil {
		writeBiddingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	failed := make(map[string]string)
	for _, dep := range s.deps {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := dep.Check(ctx)
		cancel()
		if err != nil {
			failed[dep.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		s.logger.Warn("readiness check failed",
			"event", "http_server_ready_failed",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"failed_dependencies", failed,
		)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleMetrics exports a minimal Prometheus text-format surface over the
// statistics the query service already aggregates; lock and fan-out counters belong to the gateway service.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.bidding.Handler.GetStatisticsHandler(r.Context())
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	var b strings.Builder
	b.WriteString("# HELP bidding_windows_total Bidding windows by status\n")
	b.WriteString("# TYPE bidding_windows_total gauge\n")
	for status, count := range stats.WindowsByStatus {
		b.WriteString("bidding_windows_total{status=\"" + status + "\"} " + strconv.Itoa(count) + "\n")
	}
	b.WriteString("# HELP bidding_bids_total Bids by status\n")
	b.WriteString("# TYPE bidding_bids_total gauge\n")
	for status, count := range stats.BidsByStatus {
		b.WriteString("bidding_bids_total{status=\"" + status + "\"} " + strconv.Itoa(count) + "\n")
	}
	b.WriteString("# HELP bidding_mean_time_to_first_bid_seconds Mean seconds from open to first bid\n")
	b.WriteString("# TYPE bidding_mean_time_to_first_bid_seconds gauge\n")
	b.WriteString("bidding_mean_time_to_first_bid_seconds " + strconv.FormatFloat(stats.MeanTimeToFirstBidSec, 'f', 3, 64) + "\n")
	b.WriteString("# HELP bidding_mean_open_to_accept_seconds Mean seconds from open to close\n")
	b.WriteString("# TYPE bidding_mean_open_to_accept_seconds gauge\n")
	b.WriteString("bidding_mean_open_to_accept_seconds " + strconv.FormatFloat(stats.MeanOpenToAcceptSec, 'f', 3, 64) + "\n")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(b.String()))
}
