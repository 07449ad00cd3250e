package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"porterdispatch/contexts/realtime/gateway-service/adapters/memory"
	"porterdispatch/contexts/realtime/gateway-service/application/auth"
	"porterdispatch/contexts/realtime/gateway-service/domain/entities"
	domainerrors "porterdispatch/contexts/realtime/gateway-service/domain/errors"
	"porterdispatch/contexts/realtime/gateway-service/ports"
)

func newService(t *testing.T, claims map[string]ports.TokenClaims) (auth.Service, *memory.Sessions, *memory.FixedClock, *memory.Rooms) {
	t.Helper()
	sessions := memory.NewSessions()
	rooms := memory.NewRooms()
	clock := memory.NewFixedClock(time.Now())
	svc := auth.Service{
		Verifier:     memory.Verifier{Tokens: claims},
		Sessions:     sessions,
		Rooms:        rooms,
		Clock:        clock,
		IDGen:        &memory.SequentialIDGenerator{},
		ReconnectTTL: time.Minute,
	}
	return svc, sessions, clock, rooms
}

func TestAuthenticate_FirstPorterSocketGoesOnline(t *testing.T) {
	claims := map[string]ports.TokenClaims{
		"tok-1": {UserID: "porter-1", Role: entities.RolePorter},
	}
	svc, _, _, rooms := newService(t, claims)

	result, err := svc.Authenticate(context.Background(), "tok-1", "/v1", "sock-1")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !result.PorterWentOnline {
		t.Fatalf("expected first porter socket to report PorterWentOnline")
	}
	if len(rooms.Published) != 1 || rooms.Published[0].Room != auth.AdminRoom {
		t.Fatalf("expected one PORTER_ONLINE broadcast to %s, got %+v", auth.AdminRoom, rooms.Published)
	}
}

func TestAuthenticate_SecondSocketDoesNotRebroadcastOnline(t *testing.T) {
	claims := map[string]ports.TokenClaims{
		"tok-1": {UserID: "porter-1", Role: entities.RolePorter},
	}
	svc, _, _, rooms := newService(t, claims)

	if _, err := svc.Authenticate(context.Background(), "tok-1", "/v1", "sock-1"); err != nil {
		t.Fatalf("first Authenticate: %v", err)
	}
	result, err := svc.Authenticate(context.Background(), "tok-1", "/v1", "sock-2")
	if err != nil {
		t.Fatalf("second Authenticate: %v", err)
	}
	if result.PorterWentOnline {
		t.Fatalf("expected second socket not to report PorterWentOnline")
	}
	if len(rooms.Published) != 1 {
		t.Fatalf("expected exactly one presence broadcast, got %d", len(rooms.Published))
	}
}

func TestAuthenticate_UnknownTokenIsUnauthenticated(t *testing.T) {
	svc, _, _, _ := newService(t, map[string]ports.TokenClaims{})
	_, err := svc.Authenticate(context.Background(), "bogus", "/v1", "sock-1")
	if err == nil {
		t.Fatalf("expected an error for an unknown token")
	}
	if !errors.Is(err, domainerrors.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestDisconnect_LastSocketGoesOfflineAndMintsReconnectToken(t *testing.T) {
	claims := map[string]ports.TokenClaims{
		"tok-1": {UserID: "porter-1", Role: entities.RolePorter},
	}
	svc, _, _, rooms := newService(t, claims)
	if _, err := svc.Authenticate(context.Background(), "tok-1", "/v1", "sock-1"); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	result, err := svc.Disconnect(context.Background(), "sock-1", []string{"order-1"})
	if err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if !result.PorterWentOffline {
		t.Fatalf("expected last socket disconnect to report PorterWentOffline")
	}
	if result.ReconnectToken.Token == "" {
		t.Fatalf("expected a minted reconnect token")
	}
	if len(result.ReconnectToken.OrderIDs) != 1 || result.ReconnectToken.OrderIDs[0] != "order-1" {
		t.Fatalf("expected reconnect token to carry subscribed orders, got %+v", result.ReconnectToken.OrderIDs)
	}
	if len(rooms.Published) != 2 {
		t.Fatalf("expected PORTER_ONLINE then PORTER_OFFLINE broadcasts, got %d", len(rooms.Published))
	}
}

func TestReconnect_TokenIsSingleUse(t *testing.T) {
	svc, _, _, _ := newService(t, map[string]ports.TokenClaims{
		"tok-1": {UserID: "customer-1", Role: entities.RoleCustomer},
	})
	if _, err := svc.Authenticate(context.Background(), "tok-1", "/v1", "sock-1"); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	disc, err := svc.Disconnect(context.Background(), "sock-1", nil)
	if err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	tok, err := svc.Reconnect(context.Background(), disc.ReconnectToken.Token)
	if err != nil {
		t.Fatalf("first Reconnect: %v", err)
	}
	if tok.UserID != "customer-1" {
		t.Fatalf("expected reconnect token for customer-1, got %s", tok.UserID)
	}

	if _, err := svc.Reconnect(context.Background(), disc.ReconnectToken.Token); !errors.Is(err, domainerrors.ErrReconnectTokenUsed) {
		t.Fatalf("expected ErrReconnectTokenUsed on reuse, got %v", err)
	}
}

func TestReconnect_ExpiredTokenIsRejected(t *testing.T) {
	svc, _, clock, _ := newService(t, map[string]ports.TokenClaims{
		"tok-1": {UserID: "customer-1", Role: entities.RoleCustomer},
	})
	if _, err := svc.Authenticate(context.Background(), "tok-1", "/v1", "sock-1"); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	disc, err := svc.Disconnect(context.Background(), "sock-1", nil)
	if err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	clock.Advance(2 * time.Minute)
	if _, err := svc.Reconnect(context.Background(), disc.ReconnectToken.Token); !errors.Is(err, domainerrors.ErrReconnectTokenUsed) {
		t.Fatalf("expected ErrReconnectTokenUsed once expired, got %v", err)
	}
}

func TestHeartbeat_TouchesLastActivity(t *testing.T) {
	svc, sessions, _, _ := newService(t, map[string]ports.TokenClaims{
		"tok-1": {UserID: "customer-1", Role: entities.RoleCustomer},
	})
	if _, err := svc.Authenticate(context.Background(), "tok-1", "/v1", "sock-1"); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	at := time.Now().Add(time.Hour)
	if err := svc.Heartbeat(context.Background(), "sock-1", at); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	sockets, err := sessions.SocketsForUser(context.Background(), "customer-1")
	if err != nil || len(sockets) != 1 {
		t.Fatalf("expected one socket still registered, got %v (err=%v)", sockets, err)
	}
	sess, ok, err := sessions.RemoveSession(context.Background(), "sock-1")
	if err != nil || !ok {
		t.Fatalf("RemoveSession: ok=%v err=%v", ok, err)
	}
	if !sess.LastActivityAt.Equal(at) {
		t.Fatalf("expected LastActivityAt %v, got %v", at, sess.LastActivityAt)
	}
}
