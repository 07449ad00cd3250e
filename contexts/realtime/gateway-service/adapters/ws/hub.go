// Package ws is the gateway's WebSocket transport: a connection hub built
// on the familiar register/unregister/send-channel pattern, generalized
// from a single broadcast channel to per-room membership backed by the
// ephemeral store's cross-instance pub/sub (ports.RoomBroadcaster).
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"porterdispatch/contexts/realtime/gateway-service/application"
	"porterdispatch/contexts/realtime/gateway-service/application/auth"
	"porterdispatch/contexts/realtime/gateway-service/application/chat"
	"porterdispatch/contexts/realtime/gateway-service/application/location"
	"porterdispatch/contexts/realtime/gateway-service/application/offers"
	"porterdispatch/contexts/realtime/gateway-service/application/subscriptions"
	"porterdispatch/contexts/realtime/gateway-service/domain/entities"
	domainerrors "porterdispatch/contexts/realtime/gateway-service/domain/errors"
	"porterdispatch/contexts/realtime/gateway-service/ports"
	wsdto "porterdispatch/contexts/realtime/gateway-service/transport/ws"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one connected socket.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	socketID string
	userID string
	role entities.Role
	namespace string

	mu sync.Mutex
	rooms map[string]bool
}

// Hub owns every local connection and the per-room pub/sub subscriptions
// that fan ephemeral-store broadcasts into local sockets' send channels.
type Hub struct {
	Auth auth.Service
	Subscriptions subscriptions.Service
	Location location.Service
	Offers offers.Service
	Chat chat.Service
	Rooms ports.RoomBroadcaster
	IDGen ports.IDGenerator
	Clock ports.Clock
	Logger *slog.Logger

	mu sync.RWMutex
	clients map[string]*Client
	roomSubs map[string]roomSub
}

type roomSub struct {
	members map[string]*Client
	cancel context.CancelFunc
}

func NewHub(auth auth.Service, subs subscriptions.Service, loc location.Service, off offers.Service, chatSvc chat.Service, rooms ports.RoomBroadcaster, idGen ports.IDGenerator, clock ports.Clock, logger *slog.Logger) *Hub {
	return &Hub{
		Auth: auth,
		Subscriptions: subs,
		Location: loc,
		Offers: off,
		Chat: chatSvc,
		Rooms: rooms,
		IDGen: idGen,
		Clock: clock,
		Logger: application.ResolveLogger(logger),
		clients: make(map[string]*Client),
		roomSubs: make(map[string]roomSub),
	}
}

// ConnectionCount reports how many sockets are live on this instance.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomCount reports how many distinct rooms have at least one local
// subscriber on this instance.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.roomSubs)
}

// ServeWS upgrades a connection under one of the /client, /porter, /admin
// namespaces, authenticating the bearer token before the
// upgrade completes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, namespace string) {
	token := extractToken(r)
	socketID := h.IDGen.NewID()

	result, err := h.Auth.Authenticate(r.Context(), token, namespace, socketID)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Error("websocket upgrade failed",
			"event", "gateway_ws_upgrade_failed",
			"module", "realtime/gateway-service",
			"layer", "adapter",
			"error", err.Error(),
		)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		socketID: socketID,
		userID: result.Session.UserID,
		role: result.Session.Role,
		namespace: namespace,
		rooms: make(map[string]bool),
	}
	h.mu.Lock()
	h.clients[socketID] = client
	h.mu.Unlock()

	if client.role == entities.RolePorter {
		h.joinRoom(context.Background(), ports.UserRoom(client.userID), client)
	}

	go h.writePump(client)
	h.readPump(client)
}

func extractToken(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	authHeader := r.Header.Get("Authorization")
	if parts := strings.SplitN(authHeader, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

func (h *Hub) writePump(c *Client) {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (h *Hub) readPump(c *Client) {
	defer h.disconnect(c)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		h.handleFrame(c, raw)
	}
}

func (h *Hub) handleFrame(c *Client, raw []byte) {
	ctx := context.Background()
	var env wsdto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.sendError(c, "INVALID_PAYLOAD", "malformed frame")
		return
	}

	switch env.Type {
	case wsdto.TypeSubscribeOrder:
		var p wsdto.SubscribeOrderPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.sendError(c, "INVALID_PAYLOAD", err.Error())
			return
		}
		if err := h.Subscriptions.Subscribe(ctx, c.userID, c.role, p.OrderID); err != nil {
			h.sendDomainError(c, err)
			return
		}
		h.joinRoom(ctx, subscriptions.Room(p.OrderID), c)

	case wsdto.TypeUnsubscribeOrder:
		var p wsdto.UnsubscribeOrderPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.sendError(c, "INVALID_PAYLOAD", err.Error())
			return
		}
		_ = h.Subscriptions.Unsubscribe(ctx, c.userID, p.OrderID)
		h.leaveRoom(subscriptions.Room(p.OrderID), c)

	case wsdto.TypeLocationUpdate:
		var p wsdto.LocationUpdatePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.sendError(c, "INVALID_PAYLOAD", err.Error())
			return
		}
		loc := entities.PorterLocation{
			PorterID: c.userID,
			Lat: p.Lat,
			Lng: p.Lng,
			Accuracy: p.Accuracy,
			Timestamp: time.Unix(p.TimestampUnix, 0).UTC(),
			ActiveOrderID: p.ActiveOrderID,
		}
		if err := h.Location.Update(ctx, loc); err != nil {
			h.sendDomainError(c, err)
		}

	case wsdto.TypeJobOfferAccept:
		var p wsdto.JobOfferAcceptPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.sendError(c, "INVALID_PAYLOAD", err.Error())
			return
		}
		if _, err := h.Offers.Accept(ctx, p.OfferID, c.userID); err != nil {
			h.sendDomainError(c, err)
		}

	case wsdto.TypeJobOfferReject:
		var p wsdto.JobOfferRejectPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.sendError(c, "INVALID_PAYLOAD", err.Error())
			return
		}
		if _, err := h.Offers.Reject(ctx, p.OfferID, c.userID); err != nil {
			h.sendDomainError(c, err)
		}

	case wsdto.TypeChatMessageSend:
		var p wsdto.ChatMessageSendPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.sendError(c, "INVALID_PAYLOAD", err.Error())
			return
		}
		if _, err := h.Chat.SendMessage(ctx, p.OrderID, c.userID, c.role, p.Content, p.TempID); err != nil {
			h.sendDomainError(c, err)
		}

	case wsdto.TypeChatTypingStart, wsdto.TypeChatTypingStop:
		var p wsdto.ChatTypingPayload
		if err := json.Unmarshal(env.Payload, &p); err == nil {
			h.Chat.Typing(ctx, p.OrderID, c.userID, env.Type == wsdto.TypeChatTypingStart)
		}

	case wsdto.TypeHeartbeat:
		_ = h.Auth.Heartbeat(ctx, c.socketID, h.Clock.Now())

	case wsdto.TypeReconnect:
		var p wsdto.ReconnectPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.sendError(c, "INVALID_PAYLOAD", err.Error())
			return
		}
		tok, err := h.Auth.Reconnect(ctx, p.Token)
		if err != nil {
			h.sendDomainError(c, err)
			return
		}
		for _, orderID := range tok.OrderIDs {
			h.joinRoom(ctx, subscriptions.Room(orderID), c)
		}

	default:
		h.sendError(c, "UNKNOWN_EVENT_TYPE", fmt.Sprintf("unrecognized type %q", env.Type))
	}
}

func (h *Hub) disconnect(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.socketID)
	h.mu.Unlock()

	c.mu.Lock()
	rooms := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		rooms = append(rooms, r)
	}
	c.mu.Unlock()
	for _, r := range rooms {
		h.leaveRoom(r, c)
	}

	result, err := h.Auth.Disconnect(context.Background(), c.socketID, rooms)
	if err != nil {
		return
	}
	if result.ReconnectToken.Token != "" {
		h.deliverDisconnectReason(c, "connection closed", result.ReconnectToken.Token)
	}
	close(c.send)
}

func (h *Hub) deliverDisconnectReason(c *Client, reason, token string) {
	payload, err := json.Marshal(ports.DisconnectReasonMessage{
		Type: "DISCONNECT_REASON",
		Reason: reason,
		ReconnectToken: token,
	})
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func (h *Hub) sendError(c *Client, code, message string) {
	payload, err := json.Marshal(wsdto.ErrorMessage{Type: "ERROR", Code: code, Message: message})
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func (h *Hub) sendDomainError(c *Client, err error) {
	code := "INTERNAL"
	switch {
	case errors.Is(err, domainerrors.ErrForbidden):
		code = "FORBIDDEN"
	case errors.Is(err, domainerrors.ErrRateLimitExceeded):
		code = "RATE_LIMIT_EXCEEDED"
	case errors.Is(err, domainerrors.ErrOfferNotFound):
		code = "OFFER_NOT_FOUND"
	case errors.Is(err, domainerrors.ErrOfferAlreadyProcessed):
		code = "OFFER_ALREADY_PROCESSED"
	case errors.Is(err, domainerrors.ErrOfferExpired):
		code = "OFFER_EXPIRED"
	case errors.Is(err, domainerrors.ErrNotSubscribed):
		code = "NOT_SUBSCRIBED"
	case errors.Is(err, domainerrors.ErrInvalidPayload):
		code = "INVALID_PAYLOAD"
	}
	h.sendError(c, code, err.Error())
}

// joinRoom adds c to room's local membership, spinning up the shared
// ephemeral-store subscription for that room if c is its first local
// member on this instance.
func (h *Hub) joinRoom(ctx context.Context, room string, c *Client) {
	c.mu.Lock()
	c.rooms[room] = true
	c.mu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	sub, exists := h.roomSubs[room]
	if !exists {
		subCtx, cancel := context.WithCancel(context.Background())
		sub = roomSub{members: make(map[string]*Client), cancel: cancel}
		h.roomSubs[room] = sub
		go h.pumpRoom(subCtx, room)
	}
	sub.members[c.socketID] = c
}

func (h *Hub) leaveRoom(room string, c *Client) {
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	sub, exists := h.roomSubs[room]
	if !exists {
		return
	}
	delete(sub.members, c.socketID)
	if len(sub.members) == 0 {
		sub.cancel()
		delete(h.roomSubs, room)
	}
}

func (h *Hub) pumpRoom(ctx context.Context, room string) {
	subscription, err := h.Rooms.Subscribe(ctx, room)
	if err != nil {
		h.Logger.Error("room subscribe failed",
			"event", "gateway_room_subscribe_failed",
			"module", "realtime/gateway-service",
			"layer", "adapter",
			"room", room,
			"error", err.Error(),
		)
		return
	}
	defer subscription.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-subscription.Messages():
			if !ok {
				return
			}
			h.mu.RLock()
			sub, exists := h.roomSubs[room]
			var members []*Client
			if exists {
				members = make([]*Client, 0, len(sub.members))
				for _, c := range sub.members {
					members = append(members, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range members {
				select {
				case c.send <- msg:
				default:
				}
			}
		}
	}
}
