package collab

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	pkglog "github.com/weiawesome/wes-canvas-live/pkg/log"
	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

const (
	// DebounceInterval coalesces local keystrokes into one push.
	DebounceInterval = 200 * time.Millisecond
	// EchoWindow is how long values this client produced are treated as
	// echoes when they come back over the relay.
	EchoWindow = 2 * time.Second
)

// ItemStore persists a full item. It is the durable path; the relay is not.
type ItemStore interface {
	SaveItem(ctx context.Context, item protocol.Item) (protocol.Item, error)
}

// EditState is the per-item editing state of this client.
type EditState int

const (
	StateIdle EditState = iota
	StateEditing
)

func (s EditState) String() string {
	if s == StateEditing {
		return "editing"
	}
	return "idle"
}

// TextField names an editable text field.
type TextField string

const (
	FieldTitle TextField = "title"
	FieldBody  TextField = "body"
)

// ReconcilerConfig configures a Reconciler. Relay and Store may be nil.
type ReconcilerConfig struct {
	Item      protocol.Item
	Relay     Invoker
	Store     ItemStore
	Scheduler Scheduler
	Positions *PositionCache

	Debounce    time.Duration
	EchoWindow  time.Duration
	SaveTimeout time.Duration

	OnChange func(protocol.ItemFields)
	OnError  func(error)
	Logger   *zerolog.Logger
}

type textValue struct {
	title, body string
}

func textOf(f protocol.ItemFields) textValue {
	return textValue{title: f.Title, body: f.Body}
}

// Reconciler owns the displayed state of one item on this client. It merges
// remote payloads without discarding in-progress local edits, coalesces
// local edits into debounced pushes and suppresses echoes of its own pushes.
type Reconciler struct {
	cfg   ReconcilerConfig
	sched Scheduler
	log   zerolog.Logger

	mu        sync.Mutex
	state     EditState
	base      protocol.Item
	shown     protocol.ItemFields
	dirty     map[TextField]bool
	debounce  Timer
	echoUntil time.Time
	echoes    []textValue
	gesture   bool
	closed    bool
}

// NewReconciler creates a reconciler in the Idle state showing cfg.Item.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	if cfg.Scheduler == nil {
		cfg.Scheduler = RealScheduler()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DebounceInterval
	}
	if cfg.EchoWindow <= 0 {
		cfg.EchoWindow = EchoWindow
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 10 * time.Second
	}

	logger := pkglog.Component("collab.reconciler")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	r := &Reconciler{
		cfg:   cfg,
		sched: cfg.Scheduler,
		log: logger.With().
			Str(pkglog.FieldItemType, string(cfg.Item.Type)).
			Str(pkglog.FieldItemID, cfg.Item.ID).
			Logger(),
		base:  cfg.Item,
		shown: cfg.Item.ItemFields,
		dirty: make(map[TextField]bool),
	}
	if cfg.Positions != nil {
		cfg.Positions.Set(cfg.Item.ID, RectOf(cfg.Item.ItemFields))
	}
	return r
}

// ID returns the item id.
func (r *Reconciler) ID() string {
	return r.cfg.Item.ID
}

// State returns the current editing state.
func (r *Reconciler) State() EditState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Fields returns the displayed fields.
func (r *Reconciler) Fields() protocol.ItemFields {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shown
}

// Item returns the item with its displayed fields.
func (r *Reconciler) Item() protocol.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current()
}

// Dirty reports whether local edits are waiting for the debounce edge.
func (r *Reconciler) Dirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dirty) > 0
}

// BeginEdit enters edit mode and opens the echo window.
func (r *Reconciler) BeginEdit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beginEditLocked()
}

func (r *Reconciler) beginEditLocked() {
	if r.closed || r.state == StateEditing {
		return
	}
	r.state = StateEditing
	r.openWindow(textOf(r.shown))
}

// Input records a local keystroke on field. It enters edit mode if needed
// and restarts the debounce.
func (r *Reconciler) Input(field TextField, value string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.beginEditLocked()

	switch field {
	case FieldTitle:
		r.shown.Title = value
	case FieldBody:
		r.shown.Body = value
	default:
		r.mu.Unlock()
		return
	}
	r.dirty[field] = true

	if r.debounce != nil {
		r.debounce.Stop()
	}
	r.debounce = r.sched.AfterFunc(r.cfg.Debounce, r.flushDebounced)
	shown := r.shown
	r.mu.Unlock()

	r.notify(shown)
}

// flushDebounced is the trailing edge of the debounce.
func (r *Reconciler) flushDebounced() {
	r.mu.Lock()
	r.debounce = nil
	if r.closed || len(r.dirty) == 0 {
		r.mu.Unlock()
		return
	}
	item := r.takeDirtyLocked()
	r.mu.Unlock()

	r.relay(protocol.TextDelta(item.ItemFields), item)
	r.persist(item)
}

// EndEdit leaves edit mode and saves the current content once.
func (r *Reconciler) EndEdit() {
	r.finishEdit(true)
}

// Escape saves the current content once without leaving edit mode.
func (r *Reconciler) Escape() {
	r.finishEdit(false)
}

func (r *Reconciler) finishEdit(leave bool) {
	r.mu.Lock()
	if r.closed || r.state != StateEditing {
		r.mu.Unlock()
		return
	}
	if r.debounce != nil {
		r.debounce.Stop()
		r.debounce = nil
	}
	wasDirty := len(r.dirty) > 0
	var item protocol.Item
	if wasDirty {
		item = r.takeDirtyLocked()
	} else {
		item = r.current()
	}
	if leave {
		r.state = StateIdle
	}
	r.mu.Unlock()

	if wasDirty {
		r.relay(protocol.TextDelta(item.ItemFields), item)
	}
	r.persist(item)
}

// takeDirtyLocked clears the dirty set, opens the echo window for the value
// being pushed and returns the item to push.
func (r *Reconciler) takeDirtyLocked() protocol.Item {
	r.dirty = make(map[TextField]bool)
	r.openWindow(textOf(r.shown))
	return r.current()
}

// ApplyRemote merges a live delta from another participant. Text is
// subject to the echo window; geometry is held back while a local gesture
// is in progress.
func (r *Reconciler) ApplyRemote(d protocol.ContentDelta) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}

	next := r.shown
	if d.HasText() {
		candidate := next
		protocol.ContentDelta{Title: d.Title, Body: d.Body}.ApplyTo(&candidate)
		if r.acceptText(textOf(candidate)) {
			next.Title, next.Body = candidate.Title, candidate.Body
		} else {
			r.log.Debug().Msg("remote text suppressed")
		}
	}
	if d.HasGeometry() && !r.gesture {
		protocol.ContentDelta{X: d.X, Y: d.Y, Width: d.Width, Height: d.Height, Rotation: d.Rotation}.ApplyTo(&next)
	}
	if d.Color != nil {
		next.Color = *d.Color
	}

	changed := next != r.shown
	r.shown = next
	r.mu.Unlock()

	if changed {
		r.updatePosition(next)
		r.notify(next)
	}
	return changed
}

// Merge applies a full remote item as a delta against the displayed state.
func (r *Reconciler) Merge(item protocol.Item) bool {
	return r.ApplyRemote(protocol.Diff(r.Fields(), item.ItemFields))
}

// ApplyProps installs authoritative values from the server. While idle they
// replace the displayed text and open the echo window; while editing the
// local text is kept and only the baseline moves.
func (r *Reconciler) ApplyProps(item protocol.Item) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}

	r.base = item
	next := r.shown
	if r.state == StateIdle {
		if textOf(next) != textOf(item.ItemFields) {
			next.Title, next.Body = item.Title, item.Body
			r.openWindow(textOf(item.ItemFields))
		}
	}
	if !r.gesture {
		next.X, next.Y = item.X, item.Y
		next.Width, next.Height = item.Width, item.Height
		next.Rotation = item.Rotation
	}
	next.Color = item.Color

	changed := next != r.shown
	r.shown = next
	r.mu.Unlock()

	if changed {
		r.updatePosition(next)
		r.notify(next)
	}
	return changed
}

// acceptText decides whether remote text may replace the displayed text.
// Must be called with r.mu held.
func (r *Reconciler) acceptText(v textValue) bool {
	if v == textOf(r.shown) {
		return true
	}
	if !r.sched.Now().Before(r.echoUntil) {
		return true
	}
	if r.state == StateIdle {
		return false
	}
	for _, e := range r.echoes {
		if e == v {
			return false
		}
	}
	return true
}

// openWindow opens or extends the echo window and remembers v as an echo.
// Must be called with r.mu held.
func (r *Reconciler) openWindow(v textValue) {
	now := r.sched.Now()
	if !now.Before(r.echoUntil) {
		r.echoes = r.echoes[:0]
	}
	r.echoUntil = now.Add(r.cfg.EchoWindow)
	r.echoes = append(r.echoes, v)
}

// BeginGesture starts a drag, resize or rotate. Remote geometry is held
// back until EndGesture.
func (r *Reconciler) BeginGesture() {
	r.mu.Lock()
	if !r.closed {
		r.gesture = true
	}
	r.mu.Unlock()
}

// MoveTo moves the item locally.
func (r *Reconciler) MoveTo(x, y float64) {
	r.applyGeometry(func(f *protocol.ItemFields) { f.X, f.Y = x, y })
}

// ResizeTo resizes the item locally.
func (r *Reconciler) ResizeTo(w, h float64) {
	r.applyGeometry(func(f *protocol.ItemFields) { f.Width, f.Height = w, h })
}

// RotateTo rotates the item locally.
func (r *Reconciler) RotateTo(deg float64) {
	r.applyGeometry(func(f *protocol.ItemFields) { f.Rotation = deg })
}

func (r *Reconciler) applyGeometry(mutate func(*protocol.ItemFields)) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	mutate(&r.shown)
	shown := r.shown
	r.mu.Unlock()

	r.updatePosition(shown)
	r.notify(shown)
}

// EndGesture pushes the final geometry once.
func (r *Reconciler) EndGesture() {
	r.mu.Lock()
	if r.closed || !r.gesture {
		r.mu.Unlock()
		return
	}
	r.gesture = false
	item := r.current()
	r.mu.Unlock()

	r.relay(protocol.GeometryDelta(item.ItemFields), item)
	r.persist(item)
}

// Close flushes pending edits and stops all timers.
func (r *Reconciler) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	if r.debounce != nil {
		r.debounce.Stop()
		r.debounce = nil
	}
	wasDirty := len(r.dirty) > 0
	r.dirty = make(map[TextField]bool)
	item := r.current()
	r.mu.Unlock()

	if wasDirty {
		r.relay(protocol.TextDelta(item.ItemFields), item)
		r.persist(item)
	}
}

// Discard stops all timers and drops pending edits. Used when the item was
// deleted remotely.
func (r *Reconciler) Discard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.debounce != nil {
		r.debounce.Stop()
		r.debounce = nil
	}
	r.dirty = make(map[TextField]bool)
	if r.cfg.Positions != nil {
		r.cfg.Positions.Delete(r.cfg.Item.ID)
	}
}

// current must be called with r.mu held.
func (r *Reconciler) current() protocol.Item {
	item := r.base
	item.ItemFields = r.shown
	return item
}

func (r *Reconciler) relay(d protocol.ContentDelta, item protocol.Item) {
	if r.cfg.Relay == nil {
		return
	}
	err := r.cfg.Relay.Invoke(protocol.StructuralType(item.Type, protocol.KindUpdated), protocol.StructuralEvent{
		ItemID: item.ID,
		Delta:  &d,
	})
	if err != nil {
		r.log.Debug().Err(err).Msg("relay dropped")
	}
}

func (r *Reconciler) persist(item protocol.Item) {
	if r.cfg.Store == nil {
		return
	}
	r.sched.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.SaveTimeout)
		defer cancel()

		saved, err := r.cfg.Store.SaveItem(ctx, item)
		if err != nil {
			r.log.Warn().Err(err).Msg("failed to save item")
			if r.cfg.OnError != nil {
				r.cfg.OnError(fmt.Errorf("save item %s: %w", item.ID, err))
			}
			return
		}

		r.mu.Lock()
		r.base.UpdatedAt = saved.UpdatedAt
		r.mu.Unlock()
	})
}

func (r *Reconciler) updatePosition(f protocol.ItemFields) {
	if r.cfg.Positions != nil {
		r.cfg.Positions.Set(r.cfg.Item.ID, RectOf(f))
	}
}

func (r *Reconciler) notify(f protocol.ItemFields) {
	if r.cfg.OnChange != nil {
		r.cfg.OnChange(f)
	}
}
