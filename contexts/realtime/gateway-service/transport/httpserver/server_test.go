package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gatewayservice "porterdispatch/contexts/realtime/gateway-service"
	"porterdispatch/contexts/realtime/gateway-service/adapters/memory"
	"porterdispatch/contexts/realtime/gateway-service/ports"
)

func newTestServer() *Server {
	module := gatewayservice.NewModule(gatewayservice.Dependencies{
		Verifier:                memory.Verifier{Tokens: map[string]ports.TokenClaims{}},
		Sessions:                memory.NewSessions(),
		Subscriptions:           memory.NewSubscriptions(),
		Locations:               memory.NewLocations(),
		Offers:                  memory.NewOffers(),
		RateLimiter:             memory.NewRateLimiter(),
		Rooms:                   memory.NewRooms(),
		Publisher:               memory.NewPublisher(),
		Authorizer:              memory.Authorizer{Allow: true},
		Clock:                   memory.NewFixedClock(time.Now()),
		IDGen:                   &memory.SequentialIDGenerator{},
		Logger:                  slog.Default(),
		RateLimitLocationPoints: 100,
		RateLimitChatPoints:     100,
	})
	return New(module, nil, slog.Default(), ":0")
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

func TestReadyOKWithNoDependencies(t *testing.T) {
	server := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestReadyReportsFailedDependency(t *testing.T) {
	server := newTestServer()
	server.deps = []Dependency{
		{Name: "ephstore", Check: func(ctx context.Context) error { return errors.New("connection refused") }},
	}
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestClientUpgradeRejectsMissingToken(t *testing.T) {
	server := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/client", nil)
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a missing token, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestMetricsReportsZeroConnectionsWhenIdle(t *testing.T) {
	server := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "gateway_connections_total 0") {
		t.Fatalf("expected zero connections reported, got %s", rr.Body.String())
	}
}
