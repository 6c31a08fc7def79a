package collab

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-canvas-live/pkg/channel"
	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

type sessionFixture struct {
	sched *ManualScheduler
	tr    *fakeTransport
	store *memItemStore
	s     *Session
}

func openTestSession(t *testing.T, kind protocol.RoomKind) *sessionFixture {
	t.Helper()
	f := &sessionFixture{sched: NewManualScheduler(epoch), tr: newFakeTransport()}
	f.store = newMemItemStore(f.sched.Now)
	nop := zerolog.Nop()

	s, err := OpenSession(SessionConfig{
		RoomID:    "board-1",
		RoomKind:  kind,
		UserID:    "alice",
		Transport: f.tr,
		Items:     f.store,
		Store:     f.store,
		Documents: &guardedDocStore{clock: f.sched.Now, tolerance: time.Second},
		Scheduler: f.sched,
		Logger:    &nop,
	})
	require.NoError(t, err)
	f.s = s
	return f
}

func TestOpenSessionValidates(t *testing.T) {
	_, err := OpenSession(SessionConfig{Transport: newFakeTransport()})
	assert.Error(t, err)
	_, err = OpenSession(SessionConfig{RoomID: "r"})
	assert.Error(t, err)
}

func TestSessionPresenceAndSignalPurge(t *testing.T) {
	f := openTestSession(t, protocol.RoomKindBoard)
	defer f.s.Close()

	alice := protocol.Participant{UserID: "alice", DisplayName: "Alice"}
	bob := protocol.Participant{UserID: "bob", DisplayName: "Bob"}

	f.tr.setState(channel.StateConnected)
	f.tr.deliver(t, protocol.EventPresenceList, protocol.PresenceList{Users: []protocol.Participant{alice}})
	f.tr.deliver(t, protocol.EventUserJoined, protocol.UserJoined{User: bob})
	assert.Equal(t, []protocol.Participant{alice, bob}, f.s.Roster.Participants())

	f.tr.deliver(t, protocol.SignalCursor, protocol.CursorSample{UserID: "bob", X: 10, Y: 20})
	f.tr.deliver(t, protocol.SignalFocus, protocol.FocusClaim{UserID: "bob", ItemType: protocol.ItemNote, ItemID: "n1"})
	cur, ok := f.s.Signals.Cursor("bob")
	require.True(t, ok)
	assert.Equal(t, 20.0, cur.Y)
	assert.Equal(t, []string{"bob"}, f.s.Signals.FocusedBy("n1"))

	// Bob's connection drops.
	f.tr.deliver(t, protocol.EventUserLeft, protocol.UserLeft{UserID: "bob"})
	assert.Equal(t, []protocol.Participant{alice}, f.s.Roster.Participants())
	_, ok = f.s.Signals.Cursor("bob")
	assert.False(t, ok)
	assert.Empty(t, f.s.Signals.FocusedBy("n1"))

	assert.True(t, f.s.Broadcast.SendCursor(1, 2))
	assert.Len(t, f.tr.frames(protocol.SignalCursor), 1)
}

func TestSessionReconnectRefetches(t *testing.T) {
	f := openTestSession(t, protocol.RoomKindBoard)
	defer f.s.Close()

	f.store.items["n1"] = note("n1", "persisted")

	f.tr.setState(channel.StateConnected)
	assert.Zero(t, f.s.Dispatcher.Refetches())

	f.tr.setState(channel.StateReconnecting)
	f.tr.setState(channel.StateConnected)
	assert.Equal(t, 1, f.s.Dispatcher.Refetches())

	got, ok := f.s.Dispatcher.Items().Get("n1")
	require.True(t, ok)
	assert.Equal(t, "persisted", got.Title)
}

func TestSessionStructuralEventsReachDispatcher(t *testing.T) {
	f := openTestSession(t, protocol.RoomKindBoard)
	defer f.s.Close()

	card := protocol.Item{ID: "c1", BoardID: "board-1", Type: protocol.ItemCard}
	f.tr.deliver(t, protocol.StructuralType(protocol.ItemCard, protocol.KindAdded), protocol.StructuralEvent{ItemID: "c1", Item: &card})
	_, ok := f.s.Dispatcher.Items().Get("c1")
	assert.True(t, ok)

	r := f.s.Item(card)
	assert.Same(t, r, f.s.Item(card))
	_, ok = f.s.Positions.Get("c1")
	assert.True(t, ok)

	f.tr.deliver(t, protocol.StructuralType(protocol.ItemCard, protocol.KindUpdated), protocol.StructuralEvent{
		ItemID: "c1",
		Delta:  &protocol.ContentDelta{Color: protocol.String("blue")},
	})
	assert.Equal(t, "blue", r.Fields().Color)

	r.Input(FieldTitle, "edited")
	f.s.Release("c1")
	assert.Equal(t, "edited", f.store.get("c1").Title)
	got, _ := f.s.Dispatcher.Items().Get("c1")
	assert.Equal(t, "edited", got.Title)
}

func TestSessionDocumentHints(t *testing.T) {
	f := openTestSession(t, protocol.RoomKindDocument)
	defer f.s.Close()

	require.NotNil(t, f.s.Document)
	_, err := f.s.Document.Load(t.Context())
	require.NoError(t, err)

	f.tr.deliver(t, protocol.EventDocumentUpdated, protocol.StructuralEvent{UserID: "alice"})
	assert.False(t, f.s.Document.Stale())

	f.tr.deliver(t, protocol.EventDocumentUpdated, protocol.StructuralEvent{UserID: "bob"})
	assert.True(t, f.s.Document.Stale())
}

func TestSessionCloseFlushesThenDetaches(t *testing.T) {
	f := openTestSession(t, protocol.RoomKindBoard)

	r := f.s.Item(note("n1", ""))
	r.Input(FieldBody, "pending")
	f.s.Dispatcher.Hint()
	f.s.Dispatcher.Hint()
	require.Equal(t, 2, f.sched.Pending())

	f.s.Close()

	assert.Zero(t, f.sched.Pending())
	assert.Equal(t, "pending", f.store.get("n1").Body)
	assert.Len(t, f.tr.frames(protocol.StructuralType(protocol.ItemNote, protocol.KindUpdated)), 1)
	assert.True(t, f.tr.closed)

	f.tr.deliver(t, protocol.EventPresenceList, protocol.PresenceList{Users: []protocol.Participant{{UserID: "x"}}})
	assert.Zero(t, f.s.Roster.Len())
}

func TestSessionReleaseForgetsCaretThrottles(t *testing.T) {
	f := openTestSession(t, protocol.RoomKindBoard)

	f.s.Item(note("n1", ""))
	f.s.Item(note("n2", ""))
	assert.True(t, f.s.Broadcast.SendTextCursor(protocol.ItemNote, "n1", "body", 1))
	assert.True(t, f.s.Broadcast.SendTextCursor(protocol.ItemNote, "n1", "title", 1))
	assert.True(t, f.s.Broadcast.SendTextCursor(protocol.ItemNote, "n2", "body", 1))
	require.Equal(t, 3, f.s.Broadcast.editors())

	f.s.Release("n1")
	assert.Equal(t, 1, f.s.Broadcast.editors())
	_, live := f.s.Dispatcher.Live("n1")
	assert.False(t, live)

	// The released editor starts with a fresh budget.
	assert.True(t, f.s.Broadcast.SendTextCursor(protocol.ItemNote, "n1", "body", 2))
}
