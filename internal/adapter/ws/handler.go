// Package ws implements the WebSocket adapter for real-time client communication.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/steward-labs/steward/internal/middleware"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AuthFunc resolves the tenant for an incoming connection. Returning an
// error rejects the upgrade.
type AuthFunc func(r *http.Request) (tenantID string, err error)

// conn wraps a single WebSocket connection.
type conn struct {
	ws       *websocket.Conn
	cancel   context.CancelFunc
	tenantID string
}

// Hub manages all active WebSocket connections and broadcasts messages.
// Confirmation prompts are broadcast per tenant so one tenant's approval
// cards never reach another's UI.
type Hub struct {
	mu     sync.RWMutex
	conns  map[*conn]struct{}
	origin string
	auth   AuthFunc
}

// NewHub creates a new WebSocket hub. origin restricts accepted Origin
// headers when non-empty; auth resolves tenants, falling back to the request
// context when nil.
func NewHub(origin string, auth AuthFunc) *Hub {
	return &Hub{
		conns:  make(map[*conn]struct{}),
		origin: origin,
		auth:   auth,
	}
}

// HandleWS returns an http.HandlerFunc that upgrades connections to WebSocket.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	var tenantID string
	if h.auth != nil {
		tid, err := h.auth(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		tenantID = tid
	} else {
		tenantID = middleware.TenantIDFromContext(r.Context())
	}

	opts := &websocket.AcceptOptions{InsecureSkipVerify: true} // CORS handled by middleware
	if h.origin != "" {
		opts = &websocket.AcceptOptions{OriginPatterns: []string{h.origin}}
	}

	ws, err := websocket.Accept(w, r, opts)
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{ws: ws, cancel: cancel, tenantID: tenantID}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket connected", "remote", r.RemoteAddr, "tenant", tenantID)

	// Read loop (to detect disconnects and consume pings)
	go func() {
		defer func() {
			h.remove(c)
			_ = ws.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			_, _, err := ws.Read(ctx)
			if err != nil {
				return
			}
		}
	}()
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(ctx context.Context, msg Message) {
	h.send(ctx, msg, "")
}

// BroadcastToTenant sends a message to the tenant's connections only.
func (h *Hub) BroadcastToTenant(ctx context.Context, tenantID string, msg Message) {
	h.send(ctx, msg, tenantID)
}

func (h *Hub) send(ctx context.Context, msg Message, tenantID string) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns {
		if tenantID != "" && c.tenantID != tenantID {
			continue
		}
		if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("websocket write failed", "error", err)
			go h.remove(c)
		}
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		slog.Info("websocket disconnected")
	}
}
