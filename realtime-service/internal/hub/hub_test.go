package hub

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-canvas-live/realtime-service/internal/config"
)

type countingRecorder struct {
	delivered atomic.Int64
	dropped   atomic.Int64
}

func (r *countingRecorder) FrameDelivered() { r.delivered.Add(1) }
func (r *countingRecorder) FrameDropped()   { r.dropped.Add(1) }

func startHub(t *testing.T, opts ...Option) *Hub {
	t.Helper()
	h := NewHub(config.WebSocketConfig{SendBuffer: 4}, opts...)
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func register(t *testing.T, h *Hub, id string) *Client {
	t.Helper()
	c := NewClient(id, h, nil)
	h.Register(c)
	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		_, ok := h.clients[id]
		return ok
	}, time.Second, time.Millisecond)
	return c
}

func recv(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg := <-c.Send:
		return msg
	case <-time.After(time.Second):
		t.Fatalf("client %s received nothing", c.ID)
		return nil
	}
}

func TestBroadcastSkipsExcludedClient(t *testing.T) {
	rec := &countingRecorder{}
	h := startHub(t, WithRecorder(rec))

	a := register(t, h, "a")
	b := register(t, h, "b")
	other := register(t, h, "other")
	h.JoinRoom(a, "room-1")
	h.JoinRoom(b, "room-1")
	h.JoinRoom(other, "room-2")

	h.BroadcastRaw("room-1", []byte("hello"), "a")

	assert.Equal(t, "hello", string(recv(t, b)))
	assert.Eventually(t, func() bool { return rec.delivered.Load() == 1 }, time.Second, time.Millisecond)
	assert.Empty(t, a.Send)
	assert.Empty(t, other.Send)
	assert.Equal(t, 2, h.RoomCount())
	assert.Equal(t, 2, h.RoomSize("room-1"))
}

func TestJoinRoomMovesClient(t *testing.T) {
	h := startHub(t)
	a := register(t, h, "a")

	h.JoinRoom(a, "room-1")
	h.JoinRoom(a, "room-2")

	assert.Equal(t, "room-2", a.RoomID())
	assert.Zero(t, h.RoomSize("room-1"))
	assert.Equal(t, 1, h.RoomCount())

	h.LeaveRoom(a, "room-2")
	assert.Empty(t, a.RoomID())
	assert.Zero(t, h.RoomCount())
}

func TestFullBufferDropsClient(t *testing.T) {
	rec := &countingRecorder{}
	h := startHub(t, WithRecorder(rec))
	slow := register(t, h, "slow")
	h.JoinRoom(slow, "room-1")

	for i := 0; i < 5; i++ {
		h.BroadcastRaw("room-1", []byte("x"), "")
	}

	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 4, rec.delivered.Load())
	assert.GreaterOrEqual(t, rec.dropped.Load(), int64(1))
	assert.False(t, slow.SendRaw([]byte("late")))
	assert.Zero(t, h.RoomCount())
}

func TestDroppedClientKeepsPresenceClaim(t *testing.T) {
	h := startHub(t)
	slow := register(t, h, "slow")
	slow.HoldPresence("room-1")
	h.JoinRoom(slow, "room-1")

	for i := 0; i < 5; i++ {
		h.BroadcastRaw("room-1", []byte("x"), "")
	}
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, time.Millisecond)

	assert.Empty(t, slow.RoomID())
	assert.Equal(t, "room-1", slow.PresenceRoom())
	assert.False(t, slow.ReleasePresence("room-2"))
	assert.True(t, slow.ReleasePresence("room-1"))
	assert.False(t, slow.ReleasePresence("room-1"))
	assert.Empty(t, slow.PresenceRoom())
}

func TestStopClosesClients(t *testing.T) {
	h := NewHub(config.WebSocketConfig{})
	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()
	c := register(t, h, "a")

	h.Stop()
	<-done

	_, ok := <-c.Send
	assert.False(t, ok)
	assert.False(t, c.SendRaw([]byte("x")))

	// Calls after Stop must not block.
	h.Register(NewClient("b", h, nil))
	h.Unregister(c)
	h.BroadcastRaw("room", nil, "")
	h.Stop()
}

func TestIdentity(t *testing.T) {
	c := NewClient("a", NewHub(config.WebSocketConfig{}), nil)
	uid, name := c.Identity()
	assert.Empty(t, uid)
	assert.Empty(t, name)

	c.SetIdentity("u1", "Alice")
	uid, name = c.Identity()
	assert.Equal(t, "u1", uid)
	assert.Equal(t, "Alice", name)
	assert.Equal(t, 256, cap(c.Send))
}
