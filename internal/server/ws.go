package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/feedmux/feedgate/internal/broadcast"
	"github.com/feedmux/feedgate/internal/model"
	"github.com/feedmux/feedgate/internal/subscription"
	"github.com/feedmux/feedgate/internal/tenant"
)

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// command is one inbound client message.
type command struct {
	Action   string `json:"action"` // "subscribe" or "unsubscribe"
	Kind     string `json:"kind"`
	Selector string `json:"selector"`
}

// outMessage is one outbound frame. Type is "subscribed", "unsubscribed",
// "update", or "error".
type outMessage struct {
	Type   string        `json:"type"`
	Key    *model.Key    `json:"key,omitempty"`
	Update *model.Update `json:"update,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// wsClient is one downstream connection bound to a single tenant.
type wsClient struct {
	srv    *Server
	conn   *websocket.Conn
	tenant string

	sendMu sync.Mutex
	send   chan outMessage
	closed bool

	subMu sync.Mutex
	subs  map[model.Key]uuid.UUID

	dropped int64
}

func (s *Server) handleWebSocket(c *gin.Context) {
	tenantID := c.Query("tenant")
	if err := s.tenants.CheckActive(tenantID); err != nil {
		code := http.StatusForbidden
		if errors.Is(err, tenant.ErrUnknown) {
			code = http.StatusNotFound
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		srv:    s,
		conn:   conn,
		tenant: tenantID,
		send:   make(chan outMessage, s.cfg.ListenerQueue),
		subs:   make(map[model.Key]uuid.UUID),
	}

	s.addConn(client)
	s.logger.Info("client connected", "tenant", tenantID, "remote", conn.RemoteAddr())

	go client.writePump()
	go client.readPump()
}

// close forces the connection shut; readPump's defer does the cleanup.
func (c *wsClient) close() {
	c.conn.Close()
}

// trySend enqueues a frame without blocking. Frames to a full queue are
// dropped so one stalled socket cannot back up a polling loop.
func (c *wsClient) trySend(msg outMessage) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.dropped++
	}
}

// closeSend stops further deliveries and lets writePump drain out.
func (c *wsClient) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.releaseSubscriptions()
		c.closeSend()
		c.srv.removeConn(c)
		c.conn.Close()
		c.srv.logger.Info("client disconnected", "tenant", c.tenant, "dropped_frames", c.dropped)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.srv.logger.Warn("websocket read failed", "tenant", c.tenant, "error", err)
			}
			return
		}
		c.handleCommand(message)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) handleCommand(raw []byte) {
	var cmd command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		c.trySend(outMessage{Type: "error", Error: "invalid command: " + err.Error()})
		return
	}

	key := model.Key{
		Tenant:   c.tenant,
		Kind:     model.ResourceKind(cmd.Kind),
		Selector: cmd.Selector,
	}

	switch cmd.Action {
	case "subscribe":
		c.subscribe(key)
	case "unsubscribe":
		c.unsubscribe(key)
	default:
		c.trySend(outMessage{Type: "error", Error: "unknown action: " + cmd.Action})
	}
}

func (c *wsClient) subscribe(key model.Key) {
	c.subMu.Lock()
	_, exists := c.subs[key]
	c.subMu.Unlock()
	if exists {
		c.trySend(outMessage{Type: "error", Key: &key, Error: "already subscribed"})
		return
	}

	listener := broadcast.ListenerFunc(func(u model.Update) {
		c.trySend(outMessage{Type: "update", Key: &u.Key, Update: &u})
	})

	id, err := c.srv.mgr.Subscribe(key, listener)
	if err != nil {
		c.trySend(outMessage{Type: "error", Key: &key, Error: subscribeErrorText(err)})
		return
	}

	c.subMu.Lock()
	c.subs[key] = id
	c.subMu.Unlock()

	c.trySend(outMessage{Type: "subscribed", Key: &key})

	// Serve the last accepted snapshot immediately when one exists, so a
	// fresh subscriber is not left waiting for the next change.
	if u, ok := c.srv.mgr.GetSnapshot(key); ok {
		c.trySend(outMessage{Type: "update", Key: &u.Key, Update: &u})
	}
}

func (c *wsClient) unsubscribe(key model.Key) {
	c.subMu.Lock()
	id, ok := c.subs[key]
	if ok {
		delete(c.subs, key)
	}
	c.subMu.Unlock()

	if !ok {
		c.trySend(outMessage{Type: "error", Key: &key, Error: "not subscribed"})
		return
	}

	c.srv.mgr.Unsubscribe(id)
	c.trySend(outMessage{Type: "unsubscribed", Key: &key})
}

// releaseSubscriptions drops every subscription this connection holds.
func (c *wsClient) releaseSubscriptions() {
	c.subMu.Lock()
	ids := make([]uuid.UUID, 0, len(c.subs))
	for _, id := range c.subs {
		ids = append(ids, id)
	}
	c.subs = make(map[model.Key]uuid.UUID)
	c.subMu.Unlock()

	for _, id := range ids {
		c.srv.mgr.Unsubscribe(id)
	}
}

func subscribeErrorText(err error) string {
	switch {
	case errors.Is(err, subscription.ErrInvalidKey):
		return "invalid key"
	case errors.Is(err, subscription.ErrUnknownTenant):
		return "unknown tenant"
	case errors.Is(err, subscription.ErrTenantSuspended):
		return "tenant suspended"
	default:
		return err.Error()
	}
}
