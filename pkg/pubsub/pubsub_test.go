package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan *Event) *Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestParseRoute(t *testing.T) {
	r, err := parseRoute(RoomFramesChannel("B42"))
	require.NoError(t, err)
	assert.Equal(t, route{topic: "canvas-frames", room: "B42"}, r)

	r, err = parseRoute(PatternRoomFrames)
	require.NoError(t, err)
	assert.Equal(t, route{topic: "canvas-frames"}, r)

	for _, bad := range []string{"canvas:frames", "canvas:room::frames", ":room:r:frames"} {
		_, err = parseRoute(bad)
		assert.Error(t, err, bad)
	}
}

func TestConsumerGroupIsPerInstance(t *testing.T) {
	cfg := KafkaConfig{GroupID: "realtime-service", InstanceID: "pod/7"}

	assert.Equal(t, "realtime-service-pod-7", consumerGroup(cfg, route{topic: "canvas-frames"}))
	assert.Equal(t, "realtime-service-pod-7-room-b1", consumerGroup(cfg, route{topic: "canvas-frames", room: "b1"}))
	assert.Equal(t, "canvas-pubsub", consumerGroup(KafkaConfig{}, route{}))
}

func TestMemoryPatternDelivery(t *testing.T) {
	bus := NewMemoryPubSub()
	defer bus.Close()
	ctx := context.Background()

	all, err := bus.SubscribePattern(ctx, PatternRoomFrames)
	require.NoError(t, err)
	one, err := bus.Subscribe(ctx, RoomFramesChannel("r1"))
	require.NoError(t, err)

	ev := NewFrameEvent("r2", "", "", []byte(`{"k":"v"}`))
	require.NoError(t, bus.Publish(ctx, RoomFramesChannel("r2"), ev))

	got := receive(t, all)
	assert.Equal(t, "r2", got.RoomID)
	assert.NotEmpty(t, got.ID)

	select {
	case <-one:
		t.Fatal("exact subscription received another room's event")
	default:
	}
}

func TestMemoryUnsubscribeClosesChannel(t *testing.T) {
	bus := NewMemoryPubSub()
	ctx := context.Background()

	ch, err := bus.Subscribe(ctx, "c")
	require.NoError(t, err)
	require.NoError(t, bus.Unsubscribe(ctx, "c"))

	_, ok := <-ch
	assert.False(t, ok)

	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(ctx, "c", NewFrameEvent("r", "", "", []byte("{}"))), ErrClosed)
}

func TestRedisPubSubRoundTrip(t *testing.T) {
	s := miniredis.RunT(t)
	bus := NewRedisPubSubFromClient(redis.NewClient(&redis.Options{Addr: s.Addr()}))
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.SubscribePattern(ctx, PatternRoomFrames)
	require.NoError(t, err)

	ev := NewFrameEvent("board-1", "instance-a", "c-1", []byte(`{"type":"UserLeft"}`))
	require.NoError(t, bus.Publish(ctx, RoomFramesChannel("board-1"), ev))

	got := receive(t, ch)
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, "instance-a", got.Origin)
	assert.JSONEq(t, `{"type":"UserLeft"}`, string(got.Payload))
	assert.Equal(t, "c-1", got.SkipFor("instance-a"))
	assert.Empty(t, got.SkipFor("instance-b"))
}

func TestNewPubSubDrivers(t *testing.T) {
	ps, err := NewPubSub(Config{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryPubSub{}, ps)
	require.NoError(t, ps.Close())

	_, err = NewPubSub(Config{Driver: "carrier-pigeon"})
	assert.Error(t, err)
}
