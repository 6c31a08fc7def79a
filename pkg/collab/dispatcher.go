package collab

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	pkglog "github.com/weiawesome/wes-canvas-live/pkg/log"
	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

// ItemLister fetches the authoritative item list of a board.
type ItemLister interface {
	ListItems(ctx context.Context, boardID string) ([]protocol.Item, error)
}

// Collection is the locally displayed item list, keyed by id.
type Collection struct {
	mu    sync.RWMutex
	items map[string]protocol.Item
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{items: make(map[string]protocol.Item)}
}

// Upsert inserts or replaces an item.
func (c *Collection) Upsert(item protocol.Item) {
	c.mu.Lock()
	c.items[item.ID] = item
	c.mu.Unlock()
}

// Patch applies a delta to an existing item. It reports false when the item
// is unknown.
func (c *Collection) Patch(id string, d protocol.ContentDelta) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[id]
	if !ok {
		return false
	}
	d.ApplyTo(&item.ItemFields)
	c.items[id] = item
	return true
}

// Remove deletes an item.
func (c *Collection) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[id]; !ok {
		return false
	}
	delete(c.items, id)
	return true
}

// Replace swaps the whole collection for a fresh list.
func (c *Collection) Replace(items []protocol.Item) {
	next := make(map[string]protocol.Item, len(items))
	for _, it := range items {
		next[it.ID] = it
	}
	c.mu.Lock()
	c.items = next
	c.mu.Unlock()
}

// Get returns an item by id.
func (c *Collection) Get(id string) (protocol.Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[id]
	return it, ok
}

// Items returns every item sorted by id.
func (c *Collection) Items() []protocol.Item {
	c.mu.RLock()
	out := make([]protocol.Item, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, it)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of items.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	BoardID   string
	Lister    ItemLister
	Scheduler Scheduler
	Positions *PositionCache
	Quiet     time.Duration
	Timeout   time.Duration

	// OnDocument is called for DocumentUpdated hints with the writer's id.
	OnDocument func(userID string)
	Logger     *zerolog.Logger
}

// Dispatcher applies structural events to the local collection. Events with
// a payload are merged directly; events without one trigger a coalesced
// refetch. Items with a live Reconciler receive their updates through it.
type Dispatcher struct {
	cfg       DispatcherConfig
	items     *Collection
	coalescer *RefetchCoalescer
	log       zerolog.Logger

	mu   sync.Mutex
	live map[string]*Reconciler
}

// NewDispatcher creates a dispatcher over an empty collection.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Scheduler == nil {
		cfg.Scheduler = RealScheduler()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	logger := pkglog.Component("collab.dispatcher")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	d := &Dispatcher{
		cfg:   cfg,
		items: NewCollection(),
		log:   logger.With().Str(pkglog.FieldRoomID, cfg.BoardID).Logger(),
		live:  make(map[string]*Reconciler),
	}
	d.coalescer = NewRefetchCoalescer(cfg.Scheduler, cfg.Quiet, d.refetch)
	return d
}

// Items returns the collection backing the dispatcher.
func (d *Dispatcher) Items() *Collection {
	return d.items
}

// Snapshot returns every item, with live items showing their reconciler's
// displayed fields.
func (d *Dispatcher) Snapshot() []protocol.Item {
	items := d.items.Items()
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, it := range items {
		if r, ok := d.live[it.ID]; ok {
			items[i] = r.Item()
		}
	}
	return items
}

// Refetches returns how many refetches have completed.
func (d *Dispatcher) Refetches() int {
	return d.coalescer.Runs()
}

// Hint requests a coalesced refetch.
func (d *Dispatcher) Hint() {
	d.coalescer.Hint()
}

// Track routes future updates of r's item to r.
func (d *Dispatcher) Track(r *Reconciler) {
	d.mu.Lock()
	d.live[r.ID()] = r
	d.mu.Unlock()
}

// Live returns the reconciler tracking id.
func (d *Dispatcher) Live(id string) (*Reconciler, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.live[id]
	return r, ok
}

// Untrack stops routing id to its reconciler and writes the reconciler's
// last displayed state back into the collection.
func (d *Dispatcher) Untrack(id string) {
	d.mu.Lock()
	r, ok := d.live[id]
	delete(d.live, id)
	d.mu.Unlock()

	if ok {
		if _, exists := d.items.Get(id); exists {
			d.items.Upsert(r.Item())
		}
	}
}

// Handle applies one structural frame. Unknown or malformed frames are
// dropped.
func (d *Dispatcher) Handle(env *protocol.Envelope) {
	itemType, kind, ok := protocol.ParseStructural(env.Type)
	if !ok {
		d.log.Debug().Str(pkglog.FieldEventType, string(env.Type)).Msg("not a structural event")
		return
	}

	var ev protocol.StructuralEvent
	if len(env.Data) > 0 {
		if err := env.Bind(&ev); err != nil {
			d.log.Debug().Err(err).Msg("dropping structural event")
			return
		}
	}

	switch itemType {
	case protocol.ItemDocument:
		if d.cfg.OnDocument != nil {
			d.cfg.OnDocument(ev.UserID)
		}
		return
	case protocol.ItemNote, protocol.ItemCard, protocol.ItemImage, protocol.ItemConnector:
	default:
		return
	}

	if !ev.HasPayload() {
		d.coalescer.Hint()
		return
	}

	id := ev.ItemID
	if id == "" && ev.Item != nil {
		id = ev.Item.ID
	}
	if id == "" {
		d.coalescer.Hint()
		return
	}

	switch kind {
	case protocol.KindAdded:
		// An add never overwrites an item this client already holds.
		if d.known(id) {
			return
		}
		d.applyUpsert(itemType, id, ev)
	case protocol.KindUpdated:
		d.applyUpsert(itemType, id, ev)
	case protocol.KindDeleted:
		d.applyDelete(id)
	}
}

func (d *Dispatcher) known(id string) bool {
	if _, live := d.Live(id); live {
		return true
	}
	_, ok := d.items.Get(id)
	return ok
}

func (d *Dispatcher) applyUpsert(itemType protocol.ItemType, id string, ev protocol.StructuralEvent) {
	r, live := d.Live(id)

	if ev.Item != nil {
		item := *ev.Item
		item.ID = id
		if item.Type == "" {
			item.Type = itemType
		}
		if live {
			r.Merge(item)
			return
		}
		d.items.Upsert(item)
		d.setPosition(item)
		return
	}

	if live {
		r.ApplyRemote(*ev.Delta)
		return
	}
	if !d.items.Patch(id, *ev.Delta) {
		d.coalescer.Hint()
		return
	}
	if item, ok := d.items.Get(id); ok {
		d.setPosition(item)
	}
}

func (d *Dispatcher) applyDelete(id string) {
	d.mu.Lock()
	r, live := d.live[id]
	delete(d.live, id)
	d.mu.Unlock()

	if live {
		r.Discard()
	}
	d.items.Remove(id)
	if d.cfg.Positions != nil {
		d.cfg.Positions.Delete(id)
	}
}

func (d *Dispatcher) setPosition(item protocol.Item) {
	if d.cfg.Positions != nil {
		d.cfg.Positions.Set(item.ID, RectOf(item.ItemFields))
	}
}

func (d *Dispatcher) refetch() {
	if d.cfg.Lister == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()

	items, err := d.cfg.Lister.ListItems(ctx, d.cfg.BoardID)
	if err != nil {
		d.log.Warn().Err(err).Msg("refetch failed")
		return
	}

	d.items.Replace(items)

	d.mu.Lock()
	live := make(map[string]*Reconciler, len(d.live))
	for id, r := range d.live {
		live[id] = r
	}
	d.mu.Unlock()

	for _, it := range items {
		if r, ok := live[it.ID]; ok {
			r.ApplyProps(it)
			continue
		}
		d.setPosition(it)
	}
	d.log.Debug().Int("items", len(items)).Msg("refetched board")
}

// Close stops refetching and closes every live reconciler, flushing their
// pending edits.
func (d *Dispatcher) Close() {
	d.coalescer.Close()

	d.mu.Lock()
	live := d.live
	d.live = make(map[string]*Reconciler)
	d.mu.Unlock()

	for _, r := range live {
		r.Close()
	}
}
