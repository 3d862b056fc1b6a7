package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/couch-control/internal/auth"
	"github.com/nerrad567/couch-control/internal/bridge"
	"github.com/nerrad567/couch-control/internal/entity"
	"github.com/nerrad567/couch-control/internal/infrastructure/config"
	"github.com/nerrad567/couch-control/internal/infrastructure/logging"
	"github.com/nerrad567/couch-control/internal/integration"
	"github.com/nerrad567/couch-control/internal/schema"
)

// WebSocket message types.
const (
	wsTypeAuthRequired = "auth_required"
	wsTypeAuth         = "auth"
	wsTypeAuthOK       = "auth_ok"
	wsTypeAuthInvalid  = "auth_invalid"
	wsTypeResult       = "result"
	wsTypeEvent        = "event"
	wsTypePing         = "ping"
	wsTypePong         = "pong"

	wsTypeSubscribeFiltered = integration.Domain + "/subscribe_filtered"
	wsTypeGetEntities       = integration.Domain + "/get_entities"
	wsTypeUpdateEntities    = integration.Domain + "/update_entities"
	wsTypeUnsubscribe       = "unsubscribe_events"

	// defaultSendBuffer is the initial per-client queue capacity when unset.
	defaultSendBuffer = 256
)

// WebSocket error codes.
const (
	wsErrInvalidFormat = "invalid_format"
	wsErrUnknown       = "unknown_command"
	wsErrNotConfigured = "not_configured"
	wsErrNotFound      = "not_found"
	wsErrUnauthorized  = "unauthorized"
	wsErrIDReuse       = "id_reuse"
)

// wsCommand is an incoming message. Fields beyond id and type depend on
// the command.
type wsCommand struct {
	ID           int    `json:"id"`
	Type         string `json:"type"`
	AccessToken  string `json:"access_token"`
	EntryID      string `json:"entry_id"`
	Subscription int    `json:"subscription"`
}

// wsUpdateEntities is the couch_control/update_entities command.
type wsUpdateEntities struct {
	ID       int      `json:"id"`
	Type     string   `json:"type"`
	Entities []string `json:"entities"`
	EntryID  string   `json:"entry_id"`
}

type wsAuthMessage struct {
	Type    string `json:"type"`
	Version string `json:"version,omitempty"`
	Message string `json:"message,omitempty"`
}

type wsResultMessage struct {
	ID      int    `json:"id"`
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Result  any    `json:"result"`
}

type wsErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type wsErrorMessage struct {
	ID      int         `json:"id"`
	Type    string      `json:"type"`
	Success bool        `json:"success"`
	Error   wsErrorBody `json:"error"`
}

type wsEventMessage struct {
	ID    int          `json:"id"`
	Type  string       `json:"type"`
	Event bridge.Event `json:"event"`
}

type wsPongMessage struct {
	ID   int    `json:"id"`
	Type string `json:"type"`
}

// Hub tracks WebSocket connections so they can be closed on shutdown.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient represents a connected WebSocket client.
type WSClient struct {
	hub    *Hub
	server *Server
	conn   *websocket.Conn
	out    *outbox

	mu     sync.Mutex
	claims *auth.CustomClaims
	subs   map[int]*bridge.Subscription
	lastID int
}

// outbox is an unbounded FIFO of encoded messages for one client. Pushing
// never blocks and never drops.
type outbox struct {
	mu     sync.Mutex
	queue  [][]byte
	closed bool
	ready  chan struct{}
}

func newOutbox(capacity int) *outbox {
	return &outbox{
		queue: make([][]byte, 0, capacity),
		ready: make(chan struct{}, 1),
	}
}

// push appends data. It returns false once the outbox is closed.
func (o *outbox) push(data []byte) bool {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	o.queue = append(o.queue, data)
	o.mu.Unlock()
	o.signal()
	return true
}

// close stops accepting messages. Messages already queued are still
// drained. It is idempotent.
func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.signal()
}

// drain takes every queued message and reports whether the outbox is
// closed.
func (o *outbox) drain() ([][]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	msgs := o.queue
	o.queue = nil
	return msgs, o.closed
}

// len returns the number of queued messages.
func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

func (o *outbox) signal() {
	select {
	case o.ready <- struct{}{}:
	default:
	}
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", h.ClientCount())
}

// Unregister removes a client from the hub and closes its outbox, so
// writePump sends what is queued and then a close frame.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()

	client.out.close()
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll closes every client's outbox. Each writePump flushes its queue,
// sends a close frame and closes the connection.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.out.close()
		delete(h.clients, client)
	}
}

// handleWebSocket upgrades the connection. The client must authenticate
// with an "auth" message before any command is accepted.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	size := s.wsCfg.SendBuffer
	if size <= 0 {
		size = defaultSendBuffer
	}
	client := &WSClient{
		hub:    s.hub,
		server: s,
		conn:   conn,
		out:    newOutbox(size),
		subs:   make(map[int]*bridge.Subscription),
	}

	s.hub.Register(client)

	go client.writePump(s.wsCfg)
	client.sendJSON(wsAuthMessage{Type: wsTypeAuthRequired, Version: s.version})
	go client.readPump(s.wsCfg)
}

// readPump reads messages from the WebSocket connection.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	// Closing the outbox lets writePump flush queued replies, such as
	// auth_invalid, before it closes the connection.
	defer func() {
		c.disposeAll()
		c.hub.Unregister(c)
	}()

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	pingInterval, pongWait := wsTimings(cfg)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		if !c.handleMessage(message) {
			return
		}
	}
}

// writePump writes queued messages to the WebSocket connection in order.
// A failed write stops the pump; the read side then sees the closed
// connection and unregisters the client.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval, pongWait := wsTimings(cfg)
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.out.close()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.out.ready:
			messages, closed := c.out.drain()
			for _, message := range messages {
				//nolint:errcheck // Best-effort deadline; write error caught below
				c.conn.SetWriteDeadline(time.Now().Add(pongWait))
				if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
					c.hub.logger.Debug("websocket write failed", "error", err, "unsent", c.out.len())
					return
				}
			}
			if closed {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// wsTimings returns the ping interval and pong timeout, defaulting unset
// values to 30s and 10s.
func wsTimings(cfg config.WebSocketConfig) (ping, pong time.Duration) {
	ping, pong = 30*time.Second, 10*time.Second
	if cfg.PingInterval > 0 {
		ping = time.Duration(cfg.PingInterval) * time.Second
	}
	if cfg.PongTimeout > 0 {
		pong = time.Duration(cfg.PongTimeout) * time.Second
	}
	return ping, pong
}

// handleMessage processes one incoming message. It returns false when the
// connection must be closed.
func (c *WSClient) handleMessage(data []byte) bool {
	var cmd wsCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		if c.authenticated() {
			c.sendError(0, wsErrInvalidFormat, "Message incorrectly formatted.")
			return true
		}
		c.sendJSON(wsAuthMessage{Type: wsTypeAuthInvalid, Message: "Message incorrectly formatted."})
		return false
	}

	if !c.authenticated() {
		return c.handleAuth(cmd)
	}

	if cmd.ID <= 0 {
		c.sendError(cmd.ID, wsErrInvalidFormat, "Message incorrectly formatted.")
		return true
	}
	if !c.advanceID(cmd.ID) {
		c.sendError(cmd.ID, wsErrIDReuse, "Identifier values have to increase.")
		return true
	}

	switch cmd.Type {
	case wsTypeSubscribeFiltered:
		c.handleSubscribeFiltered(cmd)
	case wsTypeGetEntities:
		c.handleGetEntities(cmd)
	case wsTypeUpdateEntities:
		c.handleUpdateEntities(cmd, data)
	case wsTypeUnsubscribe:
		c.handleUnsubscribe(cmd)
	case wsTypePing:
		c.sendJSON(wsPongMessage{ID: cmd.ID, Type: wsTypePong})
	default:
		c.sendError(cmd.ID, wsErrUnknown, "Unknown command.")
	}
	return true
}

// handleAuth completes the auth phase. A bad token closes the connection.
func (c *WSClient) handleAuth(cmd wsCommand) bool {
	if cmd.Type != wsTypeAuth || cmd.AccessToken == "" {
		c.sendJSON(wsAuthMessage{Type: wsTypeAuthInvalid, Message: "Auth message incorrectly formatted."})
		return false
	}

	claims, err := auth.ParseToken(cmd.AccessToken, c.server.secCfg.JWT.Secret)
	if err != nil {
		c.hub.logger.Debug("websocket auth rejected", "error", err)
		c.sendJSON(wsAuthMessage{Type: wsTypeAuthInvalid, Message: "Invalid access token"})
		return false
	}

	c.mu.Lock()
	c.claims = claims
	c.mu.Unlock()

	c.hub.logger.Debug("websocket client authenticated", "subject", claims.Subject, "role", claims.Role)
	c.sendJSON(wsAuthMessage{Type: wsTypeAuthOK, Version: c.server.version})
	return true
}

// handleSubscribeFiltered sends the selected states and then streams their
// changes until unsubscribed or disconnected. The stream covers the union
// of every configured entry.
func (c *WSClient) handleSubscribeFiltered(cmd wsCommand) {
	if !c.permit(cmd.ID, auth.PermSelectionRead) {
		return
	}
	if !c.server.integration.Configured() {
		c.sendError(cmd.ID, wsErrNotConfigured, msgNotConfigured)
		return
	}

	id := cmd.ID
	sub := c.server.integration.Bridge().Subscribe(bridge.Funcs{
		OnInitial: func(states []entity.State) {
			c.sendResult(id, map[string]any{"states": states})
		},
		OnEvent: func(ev bridge.Event) {
			c.sendJSON(wsEventMessage{ID: id, Type: wsTypeEvent, Event: ev})
		},
	})

	c.mu.Lock()
	c.subs[id] = sub
	c.mu.Unlock()

	c.hub.logger.Info("client subscribed to filtered updates", "subscription", id,
		"entities", len(c.server.integration.Selector().Selection()),
		"native_scope", sub.Scope() != nil,
	)
}

// handleGetEntities returns the selection of one entry with live state and
// registry metadata.
func (c *WSClient) handleGetEntities(cmd wsCommand) {
	if !c.permit(cmd.ID, auth.PermSelectionRead) {
		return
	}
	inst, ok := c.lookup(cmd.ID, cmd.EntryID)
	if !ok {
		return
	}

	ids := inst.Selection()
	info := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		info = append(info, c.server.describeEntity(id, false))
	}
	c.sendResult(cmd.ID, map[string]any{"entities": info})
}

// handleUpdateEntities replaces the selection of one entry. filtered_count
// is the number of submitted ids rejected as unresolvable.
func (c *WSClient) handleUpdateEntities(cmd wsCommand, data []byte) {
	if !c.permit(cmd.ID, auth.PermSelectionWrite) {
		return
	}

	var req wsUpdateEntities
	if err := c.server.schema.Decode(schema.WSUpdateEntities, data, &req); err != nil {
		c.sendError(cmd.ID, wsErrInvalidFormat, requestErrorMessage(err))
		return
	}
	inst, ok := c.lookup(cmd.ID, req.EntryID)
	if !ok {
		return
	}

	res := inst.Mutator().Replace(req.Entities)
	for _, id := range res.Invalid {
		c.hub.logger.Warn("entity does not exist", "entity_id", id)
	}

	c.sendResult(cmd.ID, map[string]any{
		"success":        true,
		"entities":       res.Entities,
		"filtered_count": len(res.Invalid),
	})
	c.hub.logger.Info("selection updated via websocket", "entry_id", inst.EntryID(), "entities", len(res.Entities))
}

// handleUnsubscribe disposes the subscription created by an earlier
// subscribe_filtered command.
func (c *WSClient) handleUnsubscribe(cmd wsCommand) {
	c.mu.Lock()
	sub, ok := c.subs[cmd.Subscription]
	delete(c.subs, cmd.Subscription)
	c.mu.Unlock()

	if !ok {
		c.sendError(cmd.ID, wsErrNotFound, "Subscription not found.")
		return
	}
	sub.Dispose()
	c.sendResult(cmd.ID, nil)
}

// lookup resolves the target entry, answering with an error on failure.
func (c *WSClient) lookup(id int, entryID string) (*integration.Instance, bool) {
	inst, err := c.server.integration.Lookup(entryID)
	switch {
	case err == nil:
		return inst, true
	case errors.Is(err, integration.ErrNotConfigured):
		c.sendError(id, wsErrNotConfigured, msgNotConfigured)
	case errors.Is(err, integration.ErrEntryNotLoaded):
		c.sendError(id, wsErrNotFound, err.Error())
	default:
		c.sendError(id, "unknown_error", err.Error())
	}
	return nil, false
}

// permit checks the caller's role, answering with an error when denied.
func (c *WSClient) permit(id int, perm auth.Permission) bool {
	c.mu.Lock()
	claims := c.claims
	c.mu.Unlock()
	if claims != nil && auth.HasPermission(claims.Role, perm) {
		return true
	}
	c.sendError(id, wsErrUnauthorized, "Unauthorized.")
	return false
}

// advanceID records id as the connection's latest command id. It returns
// false when id does not exceed every id seen before.
func (c *WSClient) advanceID(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id <= c.lastID {
		return false
	}
	c.lastID = id
	return true
}

func (c *WSClient) authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.claims != nil
}

// disposeAll releases every subscription of the connection.
func (c *WSClient) disposeAll() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[int]*bridge.Subscription)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Dispose()
	}
	if len(subs) > 0 {
		c.hub.logger.Debug("websocket subscriptions disposed", "count", len(subs))
	}
}

// sendResult sends a successful command result.
func (c *WSClient) sendResult(id int, result any) {
	c.sendJSON(wsResultMessage{ID: id, Type: wsTypeResult, Success: true, Result: result})
}

// sendError sends a failed command result.
func (c *WSClient) sendError(id int, code, message string) {
	c.sendJSON(wsErrorMessage{
		ID:      id,
		Type:    wsTypeResult,
		Success: false,
		Error:   wsErrorBody{Code: code, Message: message},
	})
}

// sendJSON marshals v and queues it for the writer. Messages for a client
// that is already disconnecting are discarded.
func (c *WSClient) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.hub.logger.Error("failed to marshal websocket message", "error", err)
		return
	}
	c.out.push(data)
}
