package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wesmun/nfc-core/internal/auth"
	"github.com/wesmun/nfc-core/internal/events"
	"github.com/wesmun/nfc-core/internal/infrastructure/config"
	"github.com/wesmun/nfc-core/internal/infrastructure/logging"
)

// Feed message types.
const (
	FeedSubscribe   = "subscribe"
	FeedUnsubscribe = "unsubscribe"
	FeedPing        = "ping"
	FeedPong        = "pong"
	FeedEvent       = "event"
	FeedReply       = "response"
	FeedError       = "error"

	feedQueueSize = 256
)

// Live feed channels. A channel is the family of the event type.
const (
	ChannelAudit = "audit"
	ChannelScan  = "scan"
)

// channelPermission returns the permission needed to subscribe to channel.
func channelPermission(channel string) (auth.Permission, bool) {
	switch channel {
	case ChannelAudit:
		return auth.PermViewAuditLogs, true
	case ChannelScan:
		return auth.PermViewAllUsers, true
	}
	return "", false
}

// FeedMessage is one frame on the live feed.
type FeedMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// FeedChannels is the payload of subscribe and unsubscribe requests.
type FeedChannels struct {
	Channels []string `json:"channels"`
}

type feedRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans bus events out to the staff dashboards connected over WebSocket.
type Hub struct {
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*feedClient]struct{}
	closed  bool
}

type feedClient struct {
	hub    *Hub
	conn   *websocket.Conn
	queue  chan []byte
	done   chan struct{}
	once   sync.Once
	userID string
	caps   auth.Capabilities

	mu       sync.RWMutex
	channels map[string]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are vetted by the CORS middleware.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// NewHub returns an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*feedClient]struct{}),
	}
}

func (h *Hub) add(c *feedClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Debug("feed client connected", "user_id", c.userID, "clients", len(h.clients))
	return true
}

func (h *Hub) remove(c *feedClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.stop()
	h.logger.Debug("feed client disconnected", "user_id", c.userID, "clients", n)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*feedClient]struct{})
	h.closed = true
	h.mu.Unlock()

	for c := range clients {
		c.stop()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Name implements events.Sink.
func (h *Hub) Name() string { return "websocket" }

// Deliver implements events.Sink. The event goes to clients subscribed to
// its family.
func (h *Hub) Deliver(_ context.Context, e events.Event) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	data, err := json.Marshal(FeedMessage{
		Type:      FeedEvent,
		EventType: e.Type,
		Timestamp: ts.UTC().Format(time.RFC3339),
		Payload:   e.Payload,
	})
	if err != nil {
		return err
	}

	channel := e.Family()
	h.mu.RLock()
	targets := make([]*feedClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if c.subscribed(channel) {
			c.enqueue(data)
		}
	}
	return nil
}

// handleWebSocket upgrades a ticket-bearing request to a live feed
// connection. Tickets come from POST /api/auth/ws-ticket and are single use.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	claims, err := auth.ParseTicket(ticket, s.authCfg.Ticket.Secret)
	if err != nil || !s.tickets.consume(claims.ID, claims.ExpiresAt.Time) {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &feedClient{
		hub:      s.hub,
		conn:     conn,
		queue:    make(chan []byte, feedQueueSize),
		done:     make(chan struct{}),
		userID:   claims.Subject,
		caps:     claims.Capabilities(),
		channels: make(map[string]struct{}),
	}
	if !s.hub.add(c) {
		conn.Close()
		return
	}

	go c.writeLoop(s.wsCfg)
	go c.readLoop(s.wsCfg)
}

// stop ends both loops; safe to call more than once.
func (c *feedClient) stop() {
	c.once.Do(func() { close(c.done) })
}

// enqueue drops data when the client is gone or too slow to keep up.
func (c *feedClient) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.queue <- data:
	default:
	}
}

func (c *feedClient) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[channel]
	return ok
}

func (c *feedClient) readLoop(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	wait := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(wait)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	extend() //nolint:errcheck // first deadline; read errors surface below
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "user_id", c.userID, "error", err)
			}
			return
		}
		// Browsers do not always answer protocol pings; any frame counts.
		extend() //nolint:errcheck // read errors surface on the next ReadMessage
		c.handle(data)
	}
}

func (c *feedClient) writeLoop(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write error covers it
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case <-c.done:
			write(websocket.CloseMessage, nil) //nolint:errcheck // connection is going away
			return
		case data := <-c.queue:
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *feedClient) handle(data []byte) {
	var req feedRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply("", FeedError, errorPayload("invalid JSON message"))
		return
	}

	switch req.Type {
	case FeedSubscribe, FeedUnsubscribe:
		c.updateChannels(req)
	case FeedPing:
		c.reply(req.ID, FeedPong, nil)
	default:
		c.reply(req.ID, FeedError, errorPayload("unknown message type: "+req.Type))
	}
}

// updateChannels applies a subscribe or unsubscribe request. A subscribe
// naming any channel the client may not read changes nothing.
func (c *feedClient) updateChannels(req feedRequest) {
	var body FeedChannels
	if len(req.Payload) == 0 || json.Unmarshal(req.Payload, &body) != nil {
		c.reply(req.ID, FeedError, errorPayload("invalid "+req.Type+" payload"))
		return
	}

	subscribe := req.Type == FeedSubscribe
	if subscribe {
		for _, ch := range body.Channels {
			perm, known := channelPermission(ch)
			if !known {
				c.reply(req.ID, FeedError, errorPayload("unknown channel: "+ch))
				return
			}
			if !c.caps.Has(perm) {
				c.reply(req.ID, FeedError, errorPayload("not permitted to subscribe to "+ch))
				return
			}
		}
	}

	c.mu.Lock()
	for _, ch := range body.Channels {
		if subscribe {
			c.channels[ch] = struct{}{}
		} else {
			delete(c.channels, ch)
		}
	}
	c.mu.Unlock()

	key := "unsubscribed"
	if subscribe {
		key = "subscribed"
		c.hub.logger.Info("feed client subscribed", "user_id", c.userID, "channels", body.Channels)
	}
	c.reply(req.ID, FeedReply, map[string]any{key: body.Channels})
}

func (c *feedClient) reply(id, kind string, payload any) {
	data, err := json.Marshal(FeedMessage{
		Type:      kind,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.enqueue(data)
}

func errorPayload(msg string) map[string]string {
	return map[string]string{"message": msg}
}
