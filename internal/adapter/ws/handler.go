// Package ws implements the WebSocket adapter streaming runtime events and
// thinking output to connected clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// Message is the envelope for all server-to-client frames. InstanceID is set
// for instance-scoped events so clients and the hub can filter on it.
type Message struct {
	Type       string          `json:"type"`
	InstanceID string          `json:"instance_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// subscribeRequest is the only client-to-server frame the hub understands.
// A client that never subscribes receives events for every instance.
type subscribeRequest struct {
	Type       string `json:"type"`
	InstanceID string `json:"instance_id"`
}

// conn wraps a single WebSocket connection and its subscription set.
type conn struct {
	ws     *websocket.Conn
	cancel context.CancelFunc

	mu        sync.Mutex
	instances map[string]struct{} // nil means all instances
}

func (c *conn) subscribe(instanceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.instances == nil {
		c.instances = make(map[string]struct{})
	}
	c.instances[instanceID] = struct{}{}
}

// wants reports whether this connection should receive a frame scoped to the
// given instance. Unscoped frames go to everyone.
func (c *conn) wants(instanceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.instances == nil || instanceID == "" {
		return true
	}
	_, ok := c.instances[instanceID]
	return ok
}

// Hub tracks active WebSocket connections and fans events out to them.
type Hub struct {
	mu    sync.RWMutex
	conns map[*conn]struct{}
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[*conn]struct{}),
	}
}

// HandleWS upgrades the request to a WebSocket connection and registers it
// with the hub. The read loop consumes subscribe frames and detects
// disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{ws: ws, cancel: cancel}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket connected", "remote", r.RemoteAddr)

	go func() {
		defer func() {
			h.remove(c)
			_ = ws.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			_, data, err := ws.Read(ctx)
			if err != nil {
				return
			}
			var req subscribeRequest
			if json.Unmarshal(data, &req) != nil {
				continue
			}
			if req.Type == "subscribe" && req.InstanceID != "" {
				c.subscribe(req.InstanceID)
			}
		}
	}()
}

// Broadcast sends a frame to every connection subscribed to its instance.
func (h *Hub) Broadcast(ctx context.Context, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns {
		if !c.wants(msg.InstanceID) {
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
