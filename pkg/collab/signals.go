package collab

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	pkglog "github.com/weiawesome/wes-canvas-live/pkg/log"
	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

// CaretInterval is the minimum spacing of caret updates per editor.
const CaretInterval = 80 * time.Millisecond

// Invoker sends a room-scoped method. *channel.Channel implements it.
type Invoker interface {
	Invoke(method protocol.MessageType, data any) error
}

type editorKey struct {
	itemType protocol.ItemType
	itemID   string
	field    string
}

// Broadcaster sends focus, cursor and caret signals. Every send is
// fire-and-forget: failures are logged at debug level and reported as false.
type Broadcaster struct {
	inv    Invoker
	roomID string
	sched  Scheduler
	every  time.Duration
	log    zerolog.Logger

	mu       sync.Mutex
	limiters map[editorKey]*rate.Limiter
}

// NewBroadcaster creates a broadcaster for roomID.
func NewBroadcaster(inv Invoker, roomID string, sched Scheduler, logger zerolog.Logger) *Broadcaster {
	if sched == nil {
		sched = RealScheduler()
	}
	return &Broadcaster{
		inv:      inv,
		roomID:   roomID,
		sched:    sched,
		every:    CaretInterval,
		log:      logger,
		limiters: make(map[editorKey]*rate.Limiter),
	}
}

// SendFocus claims focus on an item. An empty itemID clears the claim.
func (b *Broadcaster) SendFocus(itemType protocol.ItemType, itemID string) bool {
	claim := protocol.FocusClaim{ItemID: itemID}
	if itemID != "" {
		claim.ItemType = itemType
	}
	return b.send(protocol.SignalFocus, claim)
}

// SendCursor publishes the pointer position on the canvas.
func (b *Broadcaster) SendCursor(x, y float64) bool {
	return b.send(protocol.SignalCursor, protocol.CursorSample{X: x, Y: y})
}

// SendTextCursor publishes a caret position. Calls for the same editor
// closer than CaretInterval are dropped; the first one goes out.
func (b *Broadcaster) SendTextCursor(itemType protocol.ItemType, itemID, field string, offset int) bool {
	key := editorKey{itemType: itemType, itemID: itemID, field: field}

	b.mu.Lock()
	lim, ok := b.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(b.every), 1)
		b.limiters[key] = lim
	}
	allowed := lim.AllowN(b.sched.Now(), 1)
	b.mu.Unlock()

	if !allowed {
		return false
	}
	return b.send(protocol.SignalTextCursor, protocol.TextCursor{
		ItemType: itemType,
		ItemID:   itemID,
		Field:    field,
		Offset:   offset,
	})
}

// ReleaseItem drops the caret throttle state of every editor on itemID.
func (b *Broadcaster) ReleaseItem(itemID string) {
	b.mu.Lock()
	for k := range b.limiters {
		if k.itemID == itemID {
			delete(b.limiters, k)
		}
	}
	b.mu.Unlock()
}

func (b *Broadcaster) editors() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.limiters)
}

func (b *Broadcaster) send(method protocol.MessageType, data any) bool {
	if b.inv == nil || b.roomID == "" {
		return false
	}
	if err := b.inv.Invoke(method, data); err != nil {
		b.log.Debug().Err(err).Str(pkglog.FieldEventType, string(method)).Msg("signal dropped")
		return false
	}
	return true
}

// SignalMirror holds the latest signal per remote user. Each inbound signal
// overwrites the previous one; there is no ordering check.
type SignalMirror struct {
	mu      sync.RWMutex
	focus   map[string]protocol.FocusClaim
	cursors map[string]protocol.CursorSample
	carets  map[string]protocol.TextCursor
}

// NewSignalMirror returns an empty mirror.
func NewSignalMirror() *SignalMirror {
	return &SignalMirror{
		focus:   make(map[string]protocol.FocusClaim),
		cursors: make(map[string]protocol.CursorSample),
		carets:  make(map[string]protocol.TextCursor),
	}
}

// ApplyFocus records a focus claim. An empty ItemID clears it.
func (m *SignalMirror) ApplyFocus(c protocol.FocusClaim) {
	if c.UserID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ItemID == "" {
		delete(m.focus, c.UserID)
		return
	}
	m.focus[c.UserID] = c
}

// ApplyCursor records a pointer sample.
func (m *SignalMirror) ApplyCursor(c protocol.CursorSample) {
	if c.UserID == "" {
		return
	}
	m.mu.Lock()
	m.cursors[c.UserID] = c
	m.mu.Unlock()
}

// ApplyTextCursor records a caret sample.
func (m *SignalMirror) ApplyTextCursor(c protocol.TextCursor) {
	if c.UserID == "" {
		return
	}
	m.mu.Lock()
	m.carets[c.UserID] = c
	m.mu.Unlock()
}

// Purge forgets every signal of userID.
func (m *SignalMirror) Purge(userID string) {
	m.mu.Lock()
	delete(m.focus, userID)
	delete(m.cursors, userID)
	delete(m.carets, userID)
	m.mu.Unlock()
}

// Focus returns the focus claim of userID.
func (m *SignalMirror) Focus(userID string) (protocol.FocusClaim, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.focus[userID]
	return c, ok
}

// Cursor returns the pointer sample of userID.
func (m *SignalMirror) Cursor(userID string) (protocol.CursorSample, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cursors[userID]
	return c, ok
}

// TextCursor returns the caret sample of userID.
func (m *SignalMirror) TextCursor(userID string) (protocol.TextCursor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.carets[userID]
	return c, ok
}

// FocusedBy lists the users focusing itemID, sorted.
func (m *SignalMirror) FocusedBy(itemID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var users []string
	for uid, c := range m.focus {
		if c.ItemID == itemID {
			users = append(users, uid)
		}
	}
	sort.Strings(users)
	return users
}

// Cursors returns a copy of every pointer sample.
func (m *SignalMirror) Cursors() map[string]protocol.CursorSample {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]protocol.CursorSample, len(m.cursors))
	for k, v := range m.cursors {
		out[k] = v
	}
	return out
}
