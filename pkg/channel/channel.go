// Package channel is the client side of the realtime transport: one
// reconnecting websocket session bound to a single room.
package channel

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	pkglog "github.com/weiawesome/wes-canvas-live/pkg/log"
	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

var (
	ErrNotConnected   = errors.New("channel not connected")
	ErrClosed         = errors.New("channel closed")
	ErrSendBufferFull = errors.New("channel send buffer full")
)

// State is the lifecycle state of a Channel.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config configures a Channel.
type Config struct {
	URL        string
	RoomID     string
	RoomKind   protocol.RoomKind
	Credential string

	Schedule backoff.BackOff
	Dialer   *websocket.Dialer
	Header   http.Header

	SendBuffer     int
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64

	Logger *zerolog.Logger
}

func (c *Config) setDefaults() {
	if c.Schedule == nil {
		c.Schedule = DefaultSchedule()
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 1 << 20
	}
	if c.RoomKind == "" {
		c.RoomKind = protocol.RoomKindBoard
	}
}

// Channel is a persistent, reconnecting session between one client and one
// room. Inbound frames are dispatched sequentially on the read goroutine.
type Channel struct {
	cfg Config
	log zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu            sync.RWMutex
	handlers      map[protocol.MessageType][]func(*protocol.Envelope)
	stateHandlers []func(State)
	state         State
	link          *link
	closed        bool
	connects      int
}

// link is one live websocket connection. The write pump is its only writer.
type link struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (l *link) shutdown() {
	l.closeOnce.Do(func() {
		close(l.done)
		l.conn.Close()
	})
}

// Dial starts the connect loop and returns immediately.
func Dial(ctx context.Context, cfg Config) *Channel {
	cfg.setDefaults()

	logger := pkglog.Component("channel")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	cctx, cancel := context.WithCancel(ctx)
	c := &Channel{
		cfg:      cfg,
		log:      logger.With().Str(pkglog.FieldRoomID, cfg.RoomID).Logger(),
		ctx:      cctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		handlers: make(map[protocol.MessageType][]func(*protocol.Envelope)),
		state:    StateConnecting,
	}

	go c.run()
	return c
}

// RoomID returns the room this channel is bound to.
func (c *Channel) RoomID() string {
	return c.cfg.RoomID
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Connects returns how many times the channel has connected.
func (c *Channel) Connects() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connects
}

// On registers a handler for an inbound message type.
func (c *Channel) On(t protocol.MessageType, h func(*protocol.Envelope)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.handlers[t] = append(c.handlers[t], h)
}

// OnStateChange registers a lifecycle observer.
func (c *Channel) OnStateChange(h func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.stateHandlers = append(c.stateHandlers, h)
}

// Invoke sends a room-scoped method. It never blocks; a nil error only
// means the frame was queued, not that it was delivered.
func (c *Channel) Invoke(method protocol.MessageType, data any) error {
	raw, err := protocol.Encode(method, c.cfg.RoomID, data)
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrClosed
	}
	if c.link == nil || c.state != StateConnected {
		return ErrNotConnected
	}

	select {
	case c.link.send <- raw:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close sends a best-effort LeaveRoom, stops reconnecting and detaches all
// handlers. No handler runs after Close returns. Close must not be called
// from inside a handler.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return
	}
	c.closed = true
	c.handlers = make(map[protocol.MessageType][]func(*protocol.Envelope))
	c.stateHandlers = nil
	l := c.link
	c.state = StateClosed
	c.mu.Unlock()

	if l != nil {
		if raw, err := protocol.Encode(protocol.MethodLeaveRoom, c.cfg.RoomID, protocol.LeaveRoom{RoomID: c.cfg.RoomID}); err == nil {
			select {
			case l.send <- raw:
			default:
			}
		}
		// No other sender remains once closed is set.
		close(l.send)

		select {
		case <-l.done:
		case <-time.After(c.cfg.WriteWait):
			l.shutdown()
		}
	}

	c.cancel()
	<-c.done
}

func (c *Channel) run() {
	defer close(c.done)

	for attempt := 1; ; attempt++ {
		if c.ctx.Err() != nil {
			return
		}

		conn, _, err := c.cfg.Dialer.DialContext(c.ctx, c.cfg.URL, c.cfg.Header)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.log.Debug().Err(err).Int(pkglog.FieldAttempt, attempt).Msg("dial failed")
		} else {
			c.cfg.Schedule.Reset()
			attempt = 0
			c.serve(conn)
			if c.ctx.Err() != nil {
				return
			}
			c.setState(StateReconnecting)
		}

		delay := c.cfg.Schedule.NextBackOff()
		if delay == backoff.Stop {
			c.setState(StateClosed)
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-c.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// serve runs one connection until it drops.
func (c *Channel) serve(conn *websocket.Conn) {
	l := &link{
		conn: conn,
		send: make(chan []byte, c.cfg.SendBuffer),
		done: make(chan struct{}),
	}

	join, err := protocol.Encode(protocol.MethodJoinRoom, c.cfg.RoomID, protocol.JoinRoom{
		RoomID:   c.cfg.RoomID,
		RoomKind: c.cfg.RoomKind,
		Token:    c.cfg.Credential,
	})
	if err != nil {
		c.log.Error().Err(err).Msg("failed to encode join")
		conn.Close()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.link = l
	c.state = StateConnected
	c.connects++
	// Join is queued behind the connected transition, never written inline
	// with the handshake.
	l.send <- join
	observers := append([]func(State){}, c.stateHandlers...)
	c.mu.Unlock()

	c.log.Info().Msg("channel connected")
	for _, h := range observers {
		h(StateConnected)
	}

	go c.writePump(l)
	c.readPump(l)

	c.mu.Lock()
	if c.link == l {
		c.link = nil
	}
	c.mu.Unlock()
	l.shutdown()
}

func (c *Channel) readPump(l *link) {
	conn := l.conn
	conn.SetReadLimit(c.cfg.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.cfg.WriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("channel dropped")
			}
			return
		}
		c.dispatch(raw)
	}
}

// writePump is the link's only writer. Each tick sends a websocket ping
// and a Ping method; the server refreshes the room roster on the latter.
func (c *Channel) writePump(l *link) {
	keepAlive, err := protocol.Encode(protocol.MethodPing, c.cfg.RoomID, nil)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to encode ping")
		l.shutdown()
		return
	}
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		l.shutdown()
	}()

	for {
		select {
		case raw, ok := <-l.send:
			l.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				l.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := l.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}

		case <-ticker.C:
			l.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			if err := l.conn.WriteMessage(websocket.TextMessage, keepAlive); err != nil {
				return
			}

		case <-l.done:
			return
		}
	}
}

func (c *Channel) dispatch(raw []byte) {
	env, _, err := protocol.Decode(raw)
	if err != nil {
		c.log.Debug().Err(err).Msg("dropping inbound frame")
		return
	}

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	handlers := append([]func(*protocol.Envelope){}, c.handlers[env.Type]...)
	c.mu.RUnlock()

	if len(handlers) == 0 {
		c.log.Debug().Str(pkglog.FieldEventType, string(env.Type)).Msg("no handler for frame")
		return
	}
	for _, h := range handlers {
		h(env)
	}
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	if c.closed || c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	observers := append([]func(State){}, c.stateHandlers...)
	c.mu.Unlock()

	for _, h := range observers {
		h(s)
	}
}
