package collab

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionCacheVersioning(t *testing.T) {
	c := NewPositionCache()

	c.Set("n1", Rect{X: 1, Y: 2, Width: 10, Height: 10})
	assert.Equal(t, uint64(1), c.Version())

	c.Set("n1", Rect{X: 1, Y: 2, Width: 10, Height: 10})
	assert.Equal(t, uint64(1), c.Version())

	c.Delete("missing")
	assert.Equal(t, uint64(1), c.Version())

	c.Set("n2", Rect{})
	c.Delete("n1")
	snap, v := c.Snapshot()
	assert.Equal(t, uint64(3), v)
	assert.Len(t, snap, 1)

	x, y := Rect{X: 10, Y: 20, Width: 4, Height: 6}.Center()
	assert.Equal(t, 12.0, x)
	assert.Equal(t, 23.0, y)
}

func TestRenderLoopDrawsOnlyOnChange(t *testing.T) {
	c := NewPositionCache()
	c.Set("n1", Rect{X: 1})

	var mu sync.Mutex
	frames := 0
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RenderLoop(ctx, c, 2*time.Millisecond, func(map[string]Rect) {
			mu.Lock()
			frames++
			mu.Unlock()
		})
	}()

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return frames
	}

	require.Eventually(t, func() bool { return count() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, count())

	c.Set("n1", Rect{X: 2})
	require.Eventually(t, func() bool { return count() == 2 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestManualSchedulerOrder(t *testing.T) {
	s := NewManualScheduler(epoch)
	var order []string

	s.AfterFunc(30*time.Millisecond, func() { order = append(order, "c") })
	s.AfterFunc(10*time.Millisecond, func() {
		order = append(order, "a")
		s.AfterFunc(5*time.Millisecond, func() { order = append(order, "b") })
	})
	stopped := s.AfterFunc(20*time.Millisecond, func() { order = append(order, "x") })
	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	s.Advance(25 * time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, epoch.Add(25*time.Millisecond), s.Now())

	s.Advance(time.Hour)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Zero(t, s.Pending())
}
