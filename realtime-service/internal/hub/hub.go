package hub

import (
	"sync"

	"github.com/rs/zerolog"

	pkglog "github.com/weiawesome/wes-canvas-live/pkg/log"
	"github.com/weiawesome/wes-canvas-live/realtime-service/internal/config"
)

// Recorder observes frame delivery. Implemented by the metrics package.
type Recorder interface {
	FrameDelivered()
	FrameDropped()
}

type nopRecorder struct{}

func (nopRecorder) FrameDelivered() {}
func (nopRecorder) FrameDropped()   {}

type roomFrame struct {
	roomID  string
	frame   []byte
	exclude string
}

// Hub tracks this instance's connections and which room each is in.
// Registration and room broadcasts are serialised through Run.
type Hub struct {
	config   config.WebSocketConfig
	recorder Recorder
	logger   zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client

	register   chan *Client
	unregister chan *Client
	frames     chan roomFrame

	done     chan struct{}
	stopOnce sync.Once
}

type Option func(*Hub)

// WithRecorder reports frame delivery to r.
func WithRecorder(r Recorder) Option {
	return func(h *Hub) { h.recorder = r }
}

func NewHub(cfg config.WebSocketConfig, opts ...Option) *Hub {
	h := &Hub{
		config:     cfg,
		recorder:   nopRecorder{},
		logger:     pkglog.Component("hub"),
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		frames:     make(chan roomFrame, 256),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run owns the hub until Stop, then closes every client.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.shutdown()
			return
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case f := <-h.frames:
			h.deliver(f)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.logger.Debug().Str(pkglog.FieldClientID, c.ID).Msg("client registered")
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	if room := c.RoomID(); room != "" {
		h.leaveLocked(c, room)
	}
	delete(h.clients, c.ID)
	c.close()
	h.logger.Debug().Str(pkglog.FieldClientID, c.ID).Msg("client unregistered")
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		c.close()
	}
	h.clients = make(map[string]*Client)
	h.rooms = make(map[string]map[string]*Client)
}

// deliver fans f out to the room. A member whose queue is full is
// disconnected; it resynchronises on rejoin.
func (h *Hub) deliver(f roomFrame) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, c := range h.rooms[f.roomID] {
		if id == f.exclude {
			continue
		}
		if c.SendRaw(f.frame) {
			h.recorder.FrameDelivered()
			continue
		}
		h.recorder.FrameDropped()
		go h.Unregister(c)
	}
}

// Stop ends Run. It is safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Register hands c to the hub; after Stop it just closes c.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// JoinRoom moves c into roomID. A connection is in at most one room.
func (h *Hub) JoinRoom(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev := c.RoomID(); prev != "" && prev != roomID {
		h.leaveLocked(c, prev)
	}
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[roomID] = members
	}
	members[c.ID] = c
	c.setRoom(roomID)
	h.logger.Debug().Str(pkglog.FieldClientID, c.ID).Str(pkglog.FieldRoomID, roomID).Msg("client joined room")
}

func (h *Hub) LeaveRoom(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, roomID)
	h.logger.Debug().Str(pkglog.FieldClientID, c.ID).Str(pkglog.FieldRoomID, roomID).Msg("client left room")
}

func (h *Hub) leaveLocked(c *Client, roomID string) {
	if members, ok := h.rooms[roomID]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	if c.RoomID() == roomID {
		c.setRoom("")
	}
}

// BroadcastRaw queues frame for every local member of roomID except exclude.
func (h *Hub) BroadcastRaw(roomID string, frame []byte, exclude string) {
	select {
	case h.frames <- roomFrame{roomID: roomID, frame: frame, exclude: exclude}:
	case <-h.done:
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomCount counts rooms with at least one local member.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
