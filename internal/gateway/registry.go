package gateway

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ETC11111/app-serial-sub001/internal/auth"
	"github.com/ETC11111/app-serial-sub001/internal/infrastructure/logging"
	"github.com/ETC11111/app-serial-sub001/internal/metrics"
)

// Socket is the outbound side of one client connection.
type Socket interface {
	// Enqueue hands data to the connection's writer without blocking. It
	// reports false when the data was not accepted.
	Enqueue(data []byte) bool

	// Close tears the connection down. It must be safe to call more than once.
	Close() error
}

// Client is one connected WebSocket client.
type Client struct {
	id          string
	connectedAt time.Time
	socket      Socket

	mu      sync.RWMutex
	filters map[string]struct{}
	user    *auth.UserInfo
	closed  bool
}

// ID returns the client's identifier.
func (c *Client) ID() string { return c.id }

// ConnectedAt returns when the client registered.
func (c *Client) ConnectedAt() time.Time { return c.connectedAt }

// Filters returns the subscribed device IDs, sorted. Empty means all.
func (c *Client) Filters() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.filters))
	for id := range c.filters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// User returns the authenticated identity, if any.
func (c *Client) User() (auth.UserInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return auth.UserInfo{}, false
	}
	return *c.user, true
}

// Authenticated reports whether auth succeeded on this connection.
func (c *Client) Authenticated() bool {
	_, ok := c.User()
	return ok
}

// wants reports whether a message for deviceID passes the filter. Messages
// not tied to a device always pass.
func (c *Client) wants(deviceID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if deviceID == "" || len(c.filters) == 0 {
		return true
	}
	_, ok := c.filters[deviceID]
	return ok
}

// deliver enqueues data while the client is open. The second result is false
// once the client has been removed.
func (c *Client) deliver(data []byte) (accepted, open bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false, false
	}
	return c.socket.Enqueue(data), true
}

// ClientInfo is a point-in-time view of a client for status reporting.
type ClientInfo struct {
	ID            string    `json:"id"`
	ConnectedAt   time.Time `json:"connectedAt"`
	Filters       []string  `json:"deviceFilters"`
	Authenticated bool      `json:"authenticated"`
	UserID        string    `json:"userId,omitempty"`
}

// Registry tracks connected clients.
//
// All methods are safe for concurrent use. Configure with the setters before
// the first Register.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client

	logger      *logging.Logger
	metrics     *metrics.Metrics
	requireAuth bool
	now         func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Registry{
		clients: make(map[string]*Client),
		logger:  logger,
		now:     time.Now,
	}
}

// SetMetrics attaches Prometheus instrumentation.
func (r *Registry) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
}

// SetRequireAuth makes Broadcast skip unauthenticated clients.
func (r *Registry) SetRequireAuth(require bool) {
	r.requireAuth = require
}

// Register stores a new client for s and sends it the connection
// acknowledgement.
func (r *Registry) Register(s Socket) *Client {
	c := &Client{
		id:          uuid.NewString(),
		connectedAt: r.now().UTC(),
		socket:      s,
		filters:     make(map[string]struct{}),
	}

	// The ack is queued before the client is visible to Broadcast so it is
	// always the first message on the socket.
	ack, err := json.Marshal(ConnectionMessage{
		Type:      TypeConnection,
		Status:    "connected",
		ClientID:  c.id,
		Timestamp: formatTimestamp(r.now()),
	})
	if err == nil {
		r.deliver(c, ack)
	}

	r.mu.Lock()
	r.clients[c.id] = c
	total := len(r.clients)
	r.mu.Unlock()

	r.logger.Info("websocket client connected", "client_id", c.id, "clients", total)
	return c
}

// Unregister removes the client and closes its socket. Unknown IDs are
// ignored.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	c, ok := r.clients[id]
	delete(r.clients, id)
	total := len(r.clients)
	r.mu.Unlock()

	if !ok {
		return
	}

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	if err := c.socket.Close(); err != nil {
		r.logger.Debug("closing client socket", "client_id", id, "error", err)
	}
	r.logger.Info("websocket client disconnected", "client_id", id, "clients", total)
}

// Get returns the client with id.
func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// SetFilter replaces the client's device filter.
func (r *Registry) SetFilter(id string, deviceIDs []string) bool {
	c, ok := r.Get(id)
	if !ok {
		return false
	}

	filters := make(map[string]struct{}, len(deviceIDs))
	for _, d := range deviceIDs {
		filters[d] = struct{}{}
	}

	c.mu.Lock()
	c.filters = filters
	c.mu.Unlock()
	return true
}

// SetAuth records the client's identity.
func (r *Registry) SetAuth(id string, info auth.UserInfo) bool {
	c, ok := r.Get(id)
	if !ok {
		return false
	}

	c.mu.Lock()
	c.user = &info
	c.mu.Unlock()
	return true
}

// Send delivers msg to one client. Delivery problems are logged.
func (r *Registry) Send(id string, msg any) {
	c, ok := r.Get(id)
	if !ok {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshalling client message", "client_id", id, "error", err)
		return
	}
	r.deliver(c, data)
}

// Broadcast delivers msg to every client whose filter admits deviceID and
// returns how many accepted it.
func (r *Registry) Broadcast(msg any, deviceID string) int {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshalling broadcast message", "error", err)
		return 0
	}

	r.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		if !c.wants(deviceID) {
			continue
		}
		if r.requireAuth && !c.Authenticated() {
			continue
		}
		if r.deliver(c, data) {
			sent++
		}
	}
	return sent
}

// deliver enqueues data on c's socket and reports whether it was accepted.
// A full queue drops the message and counts the drop.
func (r *Registry) deliver(c *Client, data []byte) bool {
	accepted, open := c.deliver(data)
	switch {
	case !open:
		return false
	case !accepted:
		r.metrics.MessageDropped()
		r.logger.Warn("client send buffer full, dropping message", "client_id", c.id)
		return false
	default:
		r.metrics.MessageQueued()
		return true
	}
}

// Count returns the number of connected clients.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Snapshot describes every connected client, oldest first.
func (r *Registry) Snapshot() []ClientInfo {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	out := make([]ClientInfo, 0, len(clients))
	for _, c := range clients {
		info := ClientInfo{
			ID:          c.id,
			ConnectedAt: c.connectedAt,
			Filters:     c.Filters(),
		}
		if u, ok := c.User(); ok {
			info.Authenticated = true
			info.UserID = u.ID
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// CloseAll unregisters every client.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Unregister(id)
	}
}
