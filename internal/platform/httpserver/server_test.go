package httpserver

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	biddingengine "porterdispatch/contexts/dispatch/bidding-engine"
	"porterdispatch/contexts/dispatch/bidding-engine/domain/entities"
)

func newTestServer() *Server {
	return New(biddingengine.NewInMemoryModule(slog.Default()), nil, slog.Default(), ":0")
}

func seedDefaultStrategy(server *Server) {
	server.bidding.Store.SeedStrategy(entities.BidStrategy{
		StrategyID: "default",
		Active:     true,
		Weights: entities.StrategyWeights{
			PriceWeight: 0.4, ETAWeight: 0.2, RatingWeight: 0.2, ReliabilityWeight: 0.1, DistanceWeight: 0.1,
		},
	})
}

func TestOpenWindowRequiresUser(t *testing.T) {
	server := newTestServer()
	body := []byte(`{"order_ids":["order-1"],"duration_sec":60,"strategy_id":"default"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/bidding/windows", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "idem-1")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestOpenWindowRequiresIdempotencyKey(t *testing.T) {
	server := newTestServer()
	body := []byte(`{"order_ids":["order-1"],"duration_sec":60,"strategy_id":"default"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/bidding/windows", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", "admin-1")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestOpenWindowSucceedsWithAuthAndIdempotencyKey(t *testing.T) {
	server := newTestServer()
	seedDefaultStrategy(server)

	body := []byte(`{"order_ids":["order-1"],"duration_sec":60,"strategy_id":"default","minimum_bid_cents":0}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/bidding/windows", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", "admin-1")
	req.Header.Set("Idempotency-Key", "idem-open-1")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestOpenWindowReplayIsIdempotent(t *testing.T) {
	server := newTestServer()
	seedDefaultStrategy(server)

	body := []byte(`{"order_ids":["order-1"],"duration_sec":60,"strategy_id":"default","minimum_bid_cents":0}`)
	for i, wantStatus := range []int{http.StatusCreated, http.StatusOK} {
		req := httptest.NewRequest(http.MethodPost, "/v1/bidding/windows", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-User-Id", "admin-1")
		req.Header.Set("Idempotency-Key", "idem-replay-1")

		rr := httptest.NewRecorder()
		server.mux.ServeHTTP(rr, req)
		if rr.Code != wantStatus {
			t.Fatalf("call %d: expected %d, got %d body=%s", i, wantStatus, rr.Code, rr.Body.String())
		}
	}
}

func TestGetWindowNotFound(t *testing.T) {
	server := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/v1/bidding/windows/bogus", nil)
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestHealthIsAlwaysOK(t *testing.T) {
	server := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestReadyReportsFailedDependency(t *testing.T) {
	server := New(biddingengine.NewInMemoryModule(slog.Default()), []Dependency{
		{Name: "postgres", Check: func(ctx context.Context) error { return errors.New("connection refused") }},
	}, slog.Default(), ":0")

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestReadyOKWithNoDependencies(t *testing.T) {
	server := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}
