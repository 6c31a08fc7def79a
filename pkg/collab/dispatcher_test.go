package collab

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

func structural(t *testing.T, it protocol.ItemType, kind protocol.EventKind, ev *protocol.StructuralEvent) *protocol.Envelope {
	t.Helper()
	var data any
	if ev != nil {
		data = ev
	}
	env, err := protocol.NewEnvelope(protocol.StructuralType(it, kind), "board-1", data)
	require.NoError(t, err)
	return env
}

func newTestDispatcher(sched Scheduler, lister ItemLister) *Dispatcher {
	nop := zerolog.Nop()
	return NewDispatcher(DispatcherConfig{
		BoardID:   "board-1",
		Lister:    lister,
		Scheduler: sched,
		Positions: NewPositionCache(),
		Logger:    &nop,
	})
}

func TestBurstOfHintsRefetchesTwice(t *testing.T) {
	sched := NewManualScheduler(epoch)
	lister := &countingLister{}
	d := newTestDispatcher(sched, lister)

	for i := 0; i < 50; i++ {
		d.Handle(structural(t, protocol.ItemNote, protocol.KindDeleted, nil))
		sched.Advance(time.Millisecond)
	}
	assert.Equal(t, 1, lister.count())

	sched.Advance(RefetchQuiet)
	assert.Equal(t, 2, lister.count())

	sched.Advance(time.Second)
	assert.Equal(t, 2, lister.count())
	assert.Equal(t, 2, d.Refetches())

	// A hint after a quiet period goes out immediately.
	d.Hint()
	assert.Equal(t, 3, lister.count())
}

func TestCoalescerCloseCancelsTrailing(t *testing.T) {
	sched := NewManualScheduler(epoch)
	runs := 0
	c := NewRefetchCoalescer(sched, 0, func() { runs++ })

	c.Hint()
	c.Hint()
	assert.Equal(t, 1, sched.Pending())
	c.Close()
	assert.Zero(t, sched.Pending())

	sched.Advance(time.Second)
	c.Hint()
	assert.Equal(t, 1, runs)
}

func TestPayloadEventsMergeDirectly(t *testing.T) {
	sched := NewManualScheduler(epoch)
	lister := &countingLister{}
	d := newTestDispatcher(sched, lister)

	n := note("n1", "hello")
	d.Handle(structural(t, protocol.ItemNote, protocol.KindAdded, &protocol.StructuralEvent{ItemID: "n1", Item: &n}))
	got, ok := d.Items().Get("n1")
	require.True(t, ok)
	assert.Equal(t, "hello", got.Title)

	d.Handle(structural(t, protocol.ItemNote, protocol.KindUpdated, &protocol.StructuralEvent{
		ItemID: "n1",
		Delta:  &protocol.ContentDelta{X: protocol.Float(42)},
	}))
	got, _ = d.Items().Get("n1")
	assert.Equal(t, 42.0, got.X)
	rect, ok := d.cfg.Positions.Get("n1")
	require.True(t, ok)
	assert.Equal(t, 42.0, rect.X)

	d.Handle(structural(t, protocol.ItemNote, protocol.KindDeleted, &protocol.StructuralEvent{ItemID: "n1", Item: &n}))
	_, ok = d.Items().Get("n1")
	assert.False(t, ok)
	assert.Zero(t, lister.count())
}

func TestAddedNeverOverwritesKnownItem(t *testing.T) {
	sched := NewManualScheduler(epoch)
	lister := &countingLister{}
	d := newTestDispatcher(sched, lister)

	first := note("n1", "mine")
	d.Handle(structural(t, protocol.ItemNote, protocol.KindAdded, &protocol.StructuralEvent{ItemID: "n1", Item: &first}))

	replay := note("n1", "replayed")
	d.Handle(structural(t, protocol.ItemNote, protocol.KindAdded, &protocol.StructuralEvent{ItemID: "n1", Item: &replay}))
	got, ok := d.Items().Get("n1")
	require.True(t, ok)
	assert.Equal(t, "mine", got.Title)

	// Updated still replaces.
	d.Handle(structural(t, protocol.ItemNote, protocol.KindUpdated, &protocol.StructuralEvent{ItemID: "n1", Item: &replay}))
	got, _ = d.Items().Get("n1")
	assert.Equal(t, "replayed", got.Title)
	assert.Zero(t, lister.count())
}

func TestDeltaForUnknownItemRefetches(t *testing.T) {
	sched := NewManualScheduler(epoch)
	lister := &countingLister{items: []protocol.Item{note("n7", "fetched")}}
	d := newTestDispatcher(sched, lister)

	d.Handle(structural(t, protocol.ItemCard, protocol.KindUpdated, &protocol.StructuralEvent{
		ItemID: "n7",
		Delta:  &protocol.ContentDelta{Title: protocol.String("x")},
	}))

	assert.Equal(t, 1, lister.count())
	got, ok := d.Items().Get("n7")
	require.True(t, ok)
	assert.Equal(t, "fetched", got.Title)
}

func TestLiveItemsRouteToReconciler(t *testing.T) {
	sched := NewManualScheduler(epoch)
	lister := &countingLister{}
	d := newTestDispatcher(sched, lister)
	nop := zerolog.Nop()

	n := note("n1", "base")
	d.Items().Upsert(n)
	r := NewReconciler(ReconcilerConfig{Item: n, Scheduler: sched, Logger: &nop})
	d.Track(r)
	r.Input(FieldTitle, "local")

	remote := note("n1", "remote")
	remote.X = 5
	d.Handle(structural(t, protocol.ItemNote, protocol.KindUpdated, &protocol.StructuralEvent{ItemID: "n1", Item: &remote}))

	assert.Equal(t, "remote", r.Fields().Title)
	assert.Equal(t, 5.0, r.Fields().X)
	stored, _ := d.Items().Get("n1")
	assert.Equal(t, "base", stored.Title)
	assert.Equal(t, "remote", d.Snapshot()[0].Title)

	// Refetched props do not clobber an editing surface.
	lister.items = []protocol.Item{note("n1", "server")}
	d.Hint()
	assert.Equal(t, "remote", r.Fields().Title)

	d.Handle(structural(t, protocol.ItemNote, protocol.KindDeleted, &protocol.StructuralEvent{ItemID: "n1"}))
	_, live := d.Live("n1")
	assert.False(t, live)
	sched.Advance(time.Second)
	assert.Equal(t, "remote", r.Fields().Title)
}

func TestDocumentHintAndMalformedFrames(t *testing.T) {
	var writers []string
	nop := zerolog.Nop()
	lister := &countingLister{}
	d := NewDispatcher(DispatcherConfig{
		BoardID:    "doc-1",
		Lister:     lister,
		Scheduler:  NewManualScheduler(epoch),
		OnDocument: func(uid string) { writers = append(writers, uid) },
		Logger:     &nop,
	})

	d.Handle(structural(t, protocol.ItemDocument, protocol.KindUpdated, &protocol.StructuralEvent{UserID: "u2"}))
	assert.Equal(t, []string{"u2"}, writers)

	d.Handle(&protocol.Envelope{Type: protocol.StructuralType(protocol.ItemNote, protocol.KindAdded), Data: []byte(`{"item":`)})
	d.Handle(&protocol.Envelope{Type: "NoteExploded"})
	assert.Zero(t, lister.count())
	assert.Zero(t, d.Items().Len())
}

func TestRefetchFailureKeepsCollection(t *testing.T) {
	sched := NewManualScheduler(epoch)
	lister := &countingLister{err: errBoom}
	d := newTestDispatcher(sched, lister)
	d.Items().Upsert(note("n1", "kept"))

	d.Hint()
	assert.Equal(t, 1, lister.count())
	assert.Equal(t, 1, d.Items().Len())
}
