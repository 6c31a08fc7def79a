package hub

import (
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	pkglog "github.com/weiawesome/wes-canvas-live/pkg/log"
)

const defaultSendBuffer = 256

// DisconnectHandler runs once when the client's read loop ends, before
// the hub forgets the client.
type DisconnectHandler func(*Client)

// KeepAliveHandler runs on every pong the client answers.
type KeepAliveHandler func(*Client)

// Client is one websocket connection. Frames queued on Send are written
// by WritePump in order; a client whose queue overflows is dropped.
type Client struct {
	ID   string
	Send chan []byte

	hub  *Hub
	conn *websocket.Conn

	mu          sync.RWMutex
	closed      bool
	userID      string
	displayName string
	roomID      string
	// presence is the roster entry the client holds. It outlives hub
	// membership so a dropped client can still be released.
	presence string

	onDisconnect DisconnectHandler
	onKeepAlive  KeepAliveHandler
}

func NewClient(id string, h *Hub, conn *websocket.Conn) *Client {
	size := h.config.SendBuffer
	if size <= 0 {
		size = defaultSendBuffer
	}
	return &Client{ID: id, Send: make(chan []byte, size), hub: h, conn: conn}
}

func (c *Client) SetDisconnectHandler(handler DisconnectHandler) {
	c.onDisconnect = handler
}

func (c *Client) SetKeepAliveHandler(handler KeepAliveHandler) {
	c.onKeepAlive = handler
}

// SetIdentity records the user admitted by JoinRoom.
func (c *Client) SetIdentity(userID, displayName string) {
	c.mu.Lock()
	c.userID, c.displayName = userID, displayName
	c.mu.Unlock()
}

// Identity is empty until the client has joined a room.
func (c *Client) Identity() (userID, displayName string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID, c.displayName
}

func (c *Client) RoomID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID
}

// HoldPresence records that the client counts towards roomID's roster.
func (c *Client) HoldPresence(roomID string) {
	c.mu.Lock()
	c.presence = roomID
	c.mu.Unlock()
}

// PresenceRoom is the room whose roster the client counts towards.
func (c *Client) PresenceRoom() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.presence
}

// ReleasePresence clears the roster claim on roomID. Only the first
// caller for a claim gets true.
func (c *Client) ReleasePresence(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if roomID == "" || c.presence != roomID {
		return false
	}
	c.presence = ""
	return true
}

func (c *Client) setRoom(roomID string) {
	c.mu.Lock()
	c.roomID = roomID
	c.mu.Unlock()
}

// SendRaw queues an encoded frame without blocking. It is false when the
// client is closed or its queue is full.
func (c *Client) SendRaw(frame []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

func (c *Client) extendRead() {
	c.conn.SetReadDeadline(time.Now().Add(c.hub.config.PongWait))
}

// ReadPump hands every text frame to handle until the connection fails.
// Binary frames are discarded unread.
func (c *Client) ReadPump(handle func(*Client, []byte)) {
	defer func() {
		if c.onDisconnect != nil {
			c.onDisconnect(c)
		}
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.extendRead()
	c.conn.SetPongHandler(func(string) error {
		c.extendRead()
		if c.onKeepAlive != nil {
			c.onKeepAlive(c)
		}
		return nil
	})

	for {
		kind, r, err := c.conn.NextReader()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn().Err(err).Str(pkglog.FieldClientID, c.ID).Msg("connection lost")
			}
			return
		}
		c.extendRead()
		if kind != websocket.TextMessage {
			continue
		}
		frame, err := io.ReadAll(r)
		if err != nil {
			return
		}
		handle(c, frame)
	}
}

// WritePump drains Send and keeps the connection alive with pings. It
// sends a normal close frame once the hub closes Send.
func (c *Client) WritePump() {
	ping := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteWait))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case frame, ok := <-c.Send:
			if !ok {
				write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := write(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
