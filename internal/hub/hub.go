// Package hub implements the Event Hub of §4.C: an authenticated,
// persistent-connection pub/sub bus that also carries request/response
// RPCs over the same transport. Generalizes the teacher's
// internal/api/websocket.go hub (register/unregister/broadcast channels
// plus a single goroutine event loop) into a named client table with
// per-client kind tracking and fire-and-forget broadcast semantics.
package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"consultd/internal/logging"
)

// ClientKind is inferred from the handshake's ?kind= query parameter.
type ClientKind string

const (
	KindProxy   ClientKind = "proxy"
	KindWebUI   ClientKind = "webui"
	KindUnknown ClientKind = "unknown"
)

// Event is a fire-and-forget notification broadcast to every connected
// client. It is never queued per-subscriber across disconnects;
// reconnecting clients rehydrate state via REST.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// RPCHandler answers a named request/response operation addressed over
// the hub connection. It returns the payload for a successful ack, or an
// error whose message is surfaced as {success:false, error:string}.
type RPCHandler func(client *Client, params json.RawMessage) (any, error)

// Client is one connected subscriber.
type Client struct {
	ID          string
	Kind        ClientKind
	ConnectedAt time.Time

	conn *websocket.Conn
	send chan []byte
	mu   sync.Mutex
}

func (c *Client) writeJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
		// Slow subscriber: drop rather than block the broadcaster. The
		// transport's own overflow policy disconnects it; it resyncs via
		// REST on reconnect.
	}
}

// Hub tracks the client table and dispatches broadcasts and RPCs.
type Hub struct {
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[string]*Client

	handlersMu sync.RWMutex
	handlers   map[string]RPCHandler
}

func New(logger *logging.Logger) *Hub {
	return &Hub{
		logger:   logger,
		clients:  make(map[string]*Client),
		handlers: make(map[string]RPCHandler),
	}
}

// Handle registers an RPC operation by name. Called during boot wiring,
// before any client connects.
func (h *Hub) Handle(name string, fn RPCHandler) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.handlers[name] = fn
}

// Register admits a new client into the table and broadcasts the updated
// clients:count. ULIDs are used for connection ids (rather than uuid)
// because the table benefits from time-sortable ids for inspection.
func (h *Hub) Register(conn *websocket.Conn, kind ClientKind) *Client {
	id := ulid.Make().String()
	c := &Client{
		ID:          id,
		Kind:        kind,
		ConnectedAt: time.Now().UTC(),
		conn:        conn,
		send:        make(chan []byte, 256),
	}

	h.mu.Lock()
	h.clients[id] = c
	count := len(h.clients)
	h.mu.Unlock()

	go h.writePump(c)
	h.logger.Info("client registered: id=%s kind=%s total=%d", id, kind, count)
	h.BroadcastClientsCount()
	return c
}

// Unregister removes a client from the table and broadcasts the updated
// clients:count.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("client unregistered: id=%s total=%d", c.ID, count)
	h.BroadcastClientsCount()
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast fans an event out to every connected client. Ordering is
// per-emitter FIFO via the caller's serialized commit-then-broadcast
// sequencing; there is no cross-event global ordering.
func (h *Hub) Broadcast(eventType string, data any) {
	ev := Event{Type: eventType, Data: data}
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshaling broadcast event %s: %v", eventType, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- payload:
		default:
		}
	}
}

// BroadcastClientsCount emits the current connection count.
func (h *Hub) BroadcastClientsCount() {
	h.Broadcast("clients:count", h.ClientCount())
}

func (h *Hub) writePump(c *Client) {
	for msg := range c.send {
		c.mu.Lock()
		err := c.conn.WriteMessage(websocket.TextMessage, msg)
		c.mu.Unlock()
		if err != nil {
			h.logger.Debug("write to client %s failed: %v", c.ID, err)
			return
		}
	}
}

// rpcEnvelope is the inbound request shape: a named operation plus an
// opaque id the caller echoes back in its single ack.
type rpcEnvelope struct {
	ID     string          `json:"id"`
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcAck struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ReadLoop processes inbound frames for a client until it disconnects.
// Each frame is either a "ping" (answered with "pong") or an RPC
// envelope dispatched to a registered handler. The envelope's ack is
// written back over the same connection's send channel.
func (h *Hub) ReadLoop(c *Client) {
	defer h.Unregister(c)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		if _, isPing := raw["ping"]; isPing {
			c.writeJSON(map[string]string{"type": "pong"})
			continue
		}

		var env rpcEnvelope
		if err := json.Unmarshal(data, &env); err != nil || env.Op == "" {
			continue
		}

		h.handlersMu.RLock()
		handler, ok := h.handlers[env.Op]
		h.handlersMu.RUnlock()
		if !ok {
			c.writeJSON(rpcAck{ID: env.ID, Success: false, Error: "unknown operation: " + env.Op})
			continue
		}

		result, err := handler(c, env.Params)
		if err != nil {
			c.writeJSON(rpcAck{ID: env.ID, Success: false, Error: err.Error()})
			continue
		}
		c.writeJSON(rpcAck{ID: env.ID, Success: true, Result: result})
	}
}
