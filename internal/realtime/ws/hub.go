// Package ws exposes the realtime adapter over WebSocket at GET /v1/ws.
//
// Clients speak JSON frames:
//
//	{"op":"subscribe","room":"user:<id>","event":"notification.created"}
//	{"op":"unsubscribe","room":"...","event":"..."}
//	{"op":"emit","room":"study_room:<id>","event":"typing","payload":{...}}
//	{"op":"join","room_type":"study_room","room_id":"<id>"}
//	{"op":"leave","room_type":"study_room","room_id":"<id>"}
//
// and receive "event", "ack", "members" and "error" frames back.
package ws

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/studybuddy/internal/middleware"
	"github.com/lalith-99/studybuddy/internal/realtime"
	"go.uber.org/zap"
)

// Authorizer decides which rooms a user may read from and write to.
type Authorizer interface {
	CanAccess(ctx context.Context, userID uuid.UUID, room string) error
	CanEmit(ctx context.Context, userID uuid.UUID, room string) error
}

// Hub tracks live connections so they can be closed on shutdown.
type Hub struct {
	adapter  *realtime.Adapter
	authz    Authorizer
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

func NewHub(adapter *realtime.Adapter, authz Authorizer, logger *zap.Logger) *Hub {
	return &Hub{
		adapter: adapter,
		authz:   authz,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Any origin: connections authenticate with a bearer token.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Serve handles GET /v1/ws. It must run behind the auth middleware.
func (h *Hub) Serve(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	cl := &client{
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBuffer),
		logger: h.logger.With(zap.String("user_id", userID.String())),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]realtime.Subscription),
		joined: make(map[presenceRoom]struct{}),
	}
	if !h.register(cl) {
		cancel()
		_ = conn.Close()
		return
	}

	go cl.writePump()
	go cl.readPump()
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Debug("websocket client connected", zap.String("user_id", c.userID.String()))
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if ok {
		c.close()
		h.logger.Debug("websocket client disconnected", zap.String("user_id", c.userID.String()))
	}
}

// Clients reports how many connections are open.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
}
