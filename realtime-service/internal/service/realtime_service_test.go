package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-canvas-live/pkg/jwt"
	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
	"github.com/weiawesome/wes-canvas-live/pkg/pubsub"
	"github.com/weiawesome/wes-canvas-live/realtime-service/internal/config"
	"github.com/weiawesome/wes-canvas-live/realtime-service/internal/hub"
	"github.com/weiawesome/wes-canvas-live/realtime-service/internal/kafka"
	"github.com/weiawesome/wes-canvas-live/realtime-service/internal/store"
)

// loopback publishes straight into the local hub, standing in for the
// bus plus subscriber of a single instance.
type loopback struct {
	hub  *hub.Hub
	mu   sync.Mutex
	sent []*pubsub.Event
}

func (l *loopback) Publish(ctx context.Context, channel string, event *pubsub.Event) error {
	l.mu.Lock()
	l.sent = append(l.sent, event)
	l.mu.Unlock()
	l.hub.BroadcastRaw(event.RoomID, event.Payload, event.Exclude)
	return nil
}

type recordingObserver struct {
	mu      sync.Mutex
	joins   map[string]int
	relayed map[string]int
}

func (o *recordingObserver) JoinObserved(result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.joins[result]++
}

func (o *recordingObserver) FrameRelayed(category string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.relayed[category]++
}

func (o *recordingObserver) ContentEventObserved(string) {}

type fixture struct {
	hub      *hub.Hub
	svc      RealtimeService
	tokens   *jwt.Manager
	bus      *loopback
	observer *recordingObserver
	mr       *miniredis.Miniredis
}

func setup(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	roster := store.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { roster.Close() })

	h := hub.NewHub(config.WebSocketConfig{SendBuffer: 64})
	go h.Run()
	t.Cleanup(h.Stop)

	tokens, err := jwt.NewManager("test-secret", time.Hour, "test")
	require.NoError(t, err)

	f := &fixture{
		hub:      h,
		tokens:   tokens,
		bus:      &loopback{hub: h},
		observer: &recordingObserver{joins: map[string]int{}, relayed: map[string]int{}},
		mr:       mr,
	}
	f.svc = NewRealtimeService(h, roster, f.bus, tokens, Config{InstanceID: "inst-1", PresenceTTL: time.Minute},
		WithObserver(f.observer))
	return f
}

func (f *fixture) connect(t *testing.T, id string) *hub.Client {
	t.Helper()
	c := hub.NewClient(id, f.hub, nil)
	f.hub.Register(c)
	return c
}

func (f *fixture) join(t *testing.T, c *hub.Client, roomID, userID, name string) {
	t.Helper()
	token, _, err := f.tokens.Generate(userID, userID, name)
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleJoin(context.Background(), c, protocol.JoinRoom{
		RoomID: roomID, RoomKind: protocol.RoomKindBoard, Token: token,
	}))
}

func next(t *testing.T, c *hub.Client) *protocol.Envelope {
	t.Helper()
	select {
	case raw := <-c.Send:
		env, _, err := protocol.Decode(raw)
		require.NoError(t, err)
		return env
	case <-time.After(time.Second):
		t.Fatalf("client %s received nothing", c.ID)
		return nil
	}
}

func quiet(t *testing.T, c *hub.Client) {
	t.Helper()
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, c.Send, "client %s has unexpected frames", c.ID)
}

func envelope(t *testing.T, mt protocol.MessageType, data any) *protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(mt, "", data)
	require.NoError(t, err)
	return env
}

func TestJoinCursorAndDisconnect(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a := f.connect(t, "conn-a")
	f.join(t, a, "board-1", "alice", "Alice")

	env := next(t, a)
	require.Equal(t, protocol.EventPresenceList, env.Type)
	var list protocol.PresenceList
	require.NoError(t, env.Bind(&list))
	assert.Empty(t, list.Users, "a lone joiner sees nobody else")

	b := f.connect(t, "conn-b")
	f.join(t, b, "board-1", "bob", "Bob")

	env = next(t, b)
	require.Equal(t, protocol.EventPresenceList, env.Type)
	list = protocol.PresenceList{}
	require.NoError(t, env.Bind(&list))
	assert.Equal(t, []protocol.Participant{{UserID: "alice", DisplayName: "Alice"}}, list.Users)

	env = next(t, a)
	require.Equal(t, protocol.EventUserJoined, env.Type)
	var joined protocol.UserJoined
	require.NoError(t, env.Bind(&joined))
	assert.Equal(t, "bob", joined.User.UserID)
	quiet(t, b)

	// Bob moves his pointer; the sender identity is stamped by the server.
	require.NoError(t, f.svc.HandleSignal(ctx, b, envelope(t, protocol.SignalCursor, protocol.CursorSample{UserID: "mallory", X: 10, Y: 20})))
	env = next(t, a)
	require.Equal(t, protocol.SignalCursor, env.Type)
	assert.Equal(t, "board-1", env.RoomID)
	var cur protocol.CursorSample
	require.NoError(t, env.Bind(&cur))
	assert.Equal(t, protocol.CursorSample{UserID: "bob", X: 10, Y: 20}, cur)
	quiet(t, b)

	require.NoError(t, f.svc.HandleDisconnect(ctx, b))
	env = next(t, a)
	require.Equal(t, protocol.EventUserLeft, env.Type)
	var left protocol.UserLeft
	require.NoError(t, env.Bind(&left))
	assert.Equal(t, "bob", left.UserID)

	members, err := f.svc.GetPresence(ctx, "board-1")
	require.NoError(t, err)
	assert.Equal(t, []protocol.Participant{{UserID: "alice", DisplayName: "Alice"}}, members)

	assert.Equal(t, 2, f.observer.joins[JoinOK])
	assert.Equal(t, 1, f.observer.relayed["signal"])
}

func TestSecondTabIsInvisible(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	watcher := f.connect(t, "watcher")
	f.join(t, watcher, "board-1", "carol", "Carol")
	next(t, watcher)

	tab1 := f.connect(t, "tab-1")
	f.join(t, tab1, "board-1", "alice", "Alice")
	next(t, tab1)
	assert.Equal(t, protocol.EventUserJoined, next(t, watcher).Type)

	tab2 := f.connect(t, "tab-2")
	f.join(t, tab2, "board-1", "alice", "Alice")
	assert.Equal(t, protocol.EventPresenceList, next(t, tab2).Type)
	quiet(t, watcher)

	require.NoError(t, f.svc.HandleDisconnect(ctx, tab1))
	quiet(t, watcher)

	require.NoError(t, f.svc.HandleDisconnect(ctx, tab2))
	assert.Equal(t, protocol.EventUserLeft, next(t, watcher).Type)
}

func TestDroppedClientStillReleasesRoster(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a := f.connect(t, "conn-a")
	b := f.connect(t, "conn-b")
	f.join(t, a, "board-1", "alice", "Alice")
	next(t, a)
	f.join(t, b, "board-1", "bob", "Bob")
	assert.Equal(t, protocol.EventUserJoined, next(t, a).Type)

	// Bob never drains his queue, so the hub drops him.
	for i := 0; i < 80; i++ {
		require.NoError(t, f.svc.HandleSignal(ctx, a, envelope(t, protocol.SignalCursor, protocol.CursorSample{X: float64(i)})))
	}
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, b.RoomID())
	assert.Equal(t, "board-1", b.PresenceRoom())

	require.NoError(t, f.svc.HandleDisconnect(ctx, b))
	env := next(t, a)
	require.Equal(t, protocol.EventUserLeft, env.Type)
	var left protocol.UserLeft
	require.NoError(t, env.Bind(&left))
	assert.Equal(t, "bob", left.UserID)

	members, err := f.svc.GetPresence(ctx, "board-1")
	require.NoError(t, err)
	assert.Equal(t, []protocol.Participant{{UserID: "alice", DisplayName: "Alice"}}, members)

	// A second disconnect for the same socket is a no-op.
	require.NoError(t, f.svc.HandleDisconnect(ctx, b))
	quiet(t, a)
}

func TestKeepAliveRefreshesRoster(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a := f.connect(t, "a")
	f.join(t, a, "board-1", "alice", "Alice")
	next(t, a)

	for i := 0; i < 3; i++ {
		f.mr.FastForward(45 * time.Second)
		f.svc.HandleKeepAlive(ctx, a)
	}
	quiet(t, a)
	members, err := f.svc.GetPresence(ctx, "board-1")
	require.NoError(t, err)
	assert.Len(t, members, 1)

	// A client outside any room has nothing to refresh.
	f.svc.HandleKeepAlive(ctx, f.connect(t, "idle"))
}

func TestJoinErrors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.connect(t, "conn")

	require.NoError(t, f.svc.HandleJoin(ctx, c, protocol.JoinRoom{RoomID: "board-1", Token: "garbage"}))
	env := next(t, c)
	require.Equal(t, protocol.EventError, env.Type)
	var e protocol.ErrorMessage
	require.NoError(t, env.Bind(&e))
	assert.Equal(t, protocol.ErrCodeUnauthorized, e.Code)
	assert.Empty(t, c.RoomID())

	require.NoError(t, f.svc.HandleJoin(ctx, c, protocol.JoinRoom{Token: "x"}))
	require.NoError(t, next(t, c).Bind(&e))
	assert.Equal(t, protocol.ErrCodeBadRequest, e.Code)

	require.NoError(t, f.svc.HandleSignal(ctx, c, envelope(t, protocol.SignalCursor, protocol.CursorSample{})))
	require.NoError(t, next(t, c).Bind(&e))
	assert.Equal(t, protocol.ErrCodeNotJoined, e.Code)

	assert.Equal(t, 1, f.observer.joins[JoinUnauthorized])
	assert.Equal(t, 1, f.observer.joins[JoinRejected])
}

func TestRejoinSameRoomResendsRoster(t *testing.T) {
	f := setup(t)
	c := f.connect(t, "conn")
	f.join(t, c, "board-1", "alice", "Alice")
	next(t, c)

	f.join(t, c, "board-1", "alice", "Alice")
	assert.Equal(t, protocol.EventPresenceList, next(t, c).Type)

	n, err := f.svc.GetPresence(context.Background(), "board-1")
	require.NoError(t, err)
	assert.Len(t, n, 1)

	// Moving rooms leaves the first one.
	f.join(t, c, "board-2", "alice", "Alice")
	assert.Equal(t, protocol.EventPresenceList, next(t, c).Type)
	members, err := f.svc.GetPresence(context.Background(), "board-1")
	require.NoError(t, err)
	assert.Empty(t, members)
	assert.Equal(t, "board-2", c.RoomID())
}

func TestStructuralRelayAndPing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a := f.connect(t, "a")
	b := f.connect(t, "b")
	f.join(t, a, "board-1", "alice", "Alice")
	next(t, a)
	f.join(t, b, "board-1", "bob", "Bob")
	next(t, b)
	next(t, a)

	// A payload-less hint is relayed as-is.
	deleted := protocol.StructuralType(protocol.ItemCard, protocol.KindDeleted)
	require.NoError(t, f.svc.HandleStructural(ctx, a, &protocol.Envelope{Type: deleted}))
	env := next(t, b)
	assert.Equal(t, deleted, env.Type)
	var ev protocol.StructuralEvent
	require.NoError(t, env.Bind(&ev))
	assert.Equal(t, "alice", ev.UserID)
	assert.False(t, ev.HasPayload())
	quiet(t, a)

	f.mr.FastForward(50 * time.Second)
	require.NoError(t, f.svc.HandlePing(ctx, a))
	assert.Equal(t, protocol.EventPong, next(t, a).Type)
	f.mr.FastForward(50 * time.Second)
	members, err := f.svc.GetPresence(ctx, "board-1")
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestContentEventsReachEveryone(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a := f.connect(t, "a")
	f.join(t, a, "board-1", "alice", "Alice")
	next(t, a)

	item := &protocol.Item{ID: "n1", BoardID: "board-1", Type: protocol.ItemNote}
	item.Title = "saved"
	require.NoError(t, f.svc.HandleContentEvent(ctx, &kafka.ContentEvent{
		Type: kafka.EventItemUpdated, RoomID: "board-1", ItemType: protocol.ItemNote, ItemID: "n1", UserID: "alice", Item: item,
	}))
	env := next(t, a)
	assert.Equal(t, protocol.StructuralType(protocol.ItemNote, protocol.KindUpdated), env.Type)
	var ev protocol.StructuralEvent
	require.NoError(t, env.Bind(&ev))
	require.NotNil(t, ev.Item)
	assert.Equal(t, "saved", ev.Item.Title)

	require.NoError(t, f.svc.HandleContentEvent(ctx, &kafka.ContentEvent{
		Type: kafka.EventItemDeleted, RoomID: "board-1", ItemType: protocol.ItemNote, ItemID: "n1", Item: item,
	}))
	env = next(t, a)
	assert.Equal(t, protocol.StructuralType(protocol.ItemNote, protocol.KindDeleted), env.Type)
	require.NoError(t, env.Bind(&ev))
	assert.Nil(t, ev.Item)

	require.NoError(t, f.svc.HandleContentEvent(ctx, &kafka.ContentEvent{
		Type: kafka.EventDocumentSaved, RoomID: "board-1", UserID: "bob",
	}))
	assert.Equal(t, protocol.EventDocumentUpdated, next(t, a).Type)

	assert.Error(t, f.svc.HandleContentEvent(ctx, &kafka.ContentEvent{Type: "bogus", RoomID: "board-1"}))

	f.bus.mu.Lock()
	defer f.bus.mu.Unlock()
	for _, ev := range f.bus.sent {
		assert.Equal(t, "inst-1", ev.Origin)
		assert.Equal(t, pubsub.EventRoomFrame, ev.Type)
	}
}
