// Package auth implements the socket auth & session registry: token
// verification on connect, reconnect-token issuance on disconnect, and the
// heartbeat liveness refresh.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"porterdispatch/contexts/realtime/gateway-service/application"
	"porterdispatch/contexts/realtime/gateway-service/domain/entities"
	domainerrors "porterdispatch/contexts/realtime/gateway-service/domain/errors"
	"porterdispatch/contexts/realtime/gateway-service/ports"
)

// AdminRoom is the broadcast room porter online/offline transitions fan
// into.
const AdminRoom = "admin"

type Service struct {
	Verifier ports.TokenVerifier
	Sessions ports.SessionRegistry
	Rooms ports.RoomBroadcaster
	Clock ports.Clock
	IDGen ports.IDGenerator
	Logger *slog.Logger
	ReconnectTTL time.Duration
}

func (s Service) logger() *slog.Logger { return application.ResolveLogger(s.Logger) }

// ConnectResult is returned on a successful handshake; the transport layer
// uses Session to address the caller. PorterWentOnline reports whether
// Authenticate broadcast PORTER_ONLINE to the admin room for this socket.
type ConnectResult struct {
	Session entities.SocketSession
	PorterWentOnline bool
}

// Authenticate verifies the connection's bearer token, registers the
// session, and reports whether this is a porter's first socket.
func (s Service) Authenticate(ctx context.Context, token, namespace, socketID string) (ConnectResult, error) {
	logger := s.logger()
	logger.Info("socket authenticate started",
		"event", "gateway_socket_authenticate_started",
		"module", "realtime/gateway-service",
		"layer", "application",
		"namespace", namespace,
	)

	claims, err := s.Verifier.Verify(token)
	if err != nil {
		logger.Warn("socket authenticate failed",
			"event", "gateway_socket_authenticate_failed",
			"module", "realtime/gateway-service",
			"layer", "application",
			"error", err.Error(),
		)
		return ConnectResult{}, fmt.Errorf("%w: %v", domainerrors.ErrUnauthenticated, err)
	}

	now := s.Clock.Now()
	sess := entities.SocketSession{
		SocketID: socketID,
		UserID: claims.UserID,
		Role: claims.Role,
		Namespace: namespace,
		ConnectedAt: now,
		LastActivityAt: now,
	}
	if err := s.Sessions.AddSession(ctx, sess); err != nil {
		return ConnectResult{}, fmt.Errorf("register session: %w", err)
	}

	result := ConnectResult{Session: sess}
	if claims.Role == entities.RolePorter {
		sockets, err := s.Sessions.SocketsForUser(ctx, claims.UserID)
		if err == nil && len(sockets) == 1 {
			result.PorterWentOnline = true
			s.broadcastPorterPresence(ctx, claims.UserID, "PORTER_ONLINE")
		}
	}

	logger.Info("socket authenticate completed",
		"event", "gateway_socket_authenticate_completed",
		"module", "realtime/gateway-service",
		"layer", "application",
		"user_id", claims.UserID,
		"role", string(claims.Role),
	)
	return result, nil
}

// DisconnectResult carries the reconnect token the transport layer must
// send as DISCONNECT_REASON, and whether a porter just went fully offline.
type DisconnectResult struct {
	ReconnectToken entities.ReconnectToken
	PorterWentOffline bool
}

// Disconnect removes a socket's registry entries and mints a one-use
// reconnect token for it.
func (s Service) Disconnect(ctx context.Context, socketID string, subscribedOrders []string) (DisconnectResult, error) {
	sess, ok, err := s.Sessions.RemoveSession(ctx, socketID)
	if err != nil {
		return DisconnectResult{}, fmt.Errorf("remove session: %w", err)
	}
	if !ok {
		return DisconnectResult{}, nil
	}

	tok := entities.ReconnectToken{
		Token: s.IDGen.NewID(),
		UserID: sess.UserID,
		Role: sess.Role,
		Namespace: sess.Namespace,
		OrderIDs: subscribedOrders,
		ExpiresAt: s.Clock.Now().Add(s.ReconnectTTL),
	}
	if err := s.Sessions.PutReconnectToken(ctx, tok); err != nil {
		return DisconnectResult{}, fmt.Errorf("put reconnect token: %w", err)
	}

	result := DisconnectResult{ReconnectToken: tok}
	if sess.Role == entities.RolePorter {
		remaining, err := s.Sessions.SocketsForUser(ctx, sess.UserID)
		if err == nil && len(remaining) == 0 {
			result.PorterWentOffline = true
			s.broadcastPorterPresence(ctx, sess.UserID, "PORTER_OFFLINE")
		}
	}

	s.logger().Info("socket disconnected",
		"event", "gateway_socket_disconnected",
		"module", "realtime/gateway-service",
		"layer", "application",
		"user_id", sess.UserID,
		"reconnect_token_minted", true,
	)
	return result, nil
}

// Reconnect redeems a reconnect token within its TTL. The
// event log provides no replay: callers must re-derive current order
// status from the persistent source rather than expect missed events.
func (s Service) Reconnect(ctx context.Context, token string) (entities.ReconnectToken, error) {
	tok, ok, err := s.Sessions.TakeReconnectToken(ctx, token)
	if err != nil {
		return entities.ReconnectToken{}, fmt.Errorf("take reconnect token: %w", err)
	}
	if !ok {
		return entities.ReconnectToken{}, domainerrors.ErrReconnectTokenUsed
	}
	if s.Clock.Now().After(tok.ExpiresAt) {
		return entities.ReconnectToken{}, domainerrors.ErrReconnectTokenUsed
	}
	return tok, nil
}

// Heartbeat refreshes lastActivityAt for a live socket.
func (s Service) Heartbeat(ctx context.Context, socketID string, at time.Time) error {
	return s.Sessions.Touch(ctx, socketID, at)
}

func (s Service) broadcastPorterPresence(ctx context.Context, porterID, eventType string) {
	payload, err := json.Marshal(ports.PorterPresenceMessage{Type: eventType, PorterID: porterID})
	if err != nil {
		return
	}
	if err := s.Rooms.Publish(ctx, AdminRoom, payload); err != nil {
		s.logger().Error("porter presence broadcast failed",
			"event", "gateway_porter_presence_broadcast_failed",
			"module", "realtime/gateway-service",
			"layer", "application",
			"porter_id", porterID,
			"error", err.Error(),
		)
	}
}
