package collab

import (
	"context"
	"sync"
	"time"

	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

// Rect is the on-canvas geometry of an item.
type Rect struct {
	X, Y, Width, Height, Rotation float64
}

// RectOf extracts the geometry of an item.
func RectOf(f protocol.ItemFields) Rect {
	return Rect{X: f.X, Y: f.Y, Width: f.Width, Height: f.Height, Rotation: f.Rotation}
}

// Center returns the middle point of the rect, ignoring rotation.
func (r Rect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// PositionCache is the geometry snapshot read by the render loop. Writers
// bump a version so readers can skip unchanged frames.
type PositionCache struct {
	mu      sync.RWMutex
	rects   map[string]Rect
	version uint64
}

// NewPositionCache returns an empty cache.
func NewPositionCache() *PositionCache {
	return &PositionCache{rects: make(map[string]Rect)}
}

// Set stores the geometry of id.
func (c *PositionCache) Set(id string, r Rect) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.rects[id]; ok && old == r {
		return
	}
	c.rects[id] = r
	c.version++
}

// Delete forgets id.
func (c *PositionCache) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rects[id]; !ok {
		return
	}
	delete(c.rects, id)
	c.version++
}

// Get returns the geometry of id.
func (c *PositionCache) Get(id string) (Rect, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rects[id]
	return r, ok
}

// Version returns the current write counter.
func (c *PositionCache) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Snapshot copies the cache together with its version.
func (c *PositionCache) Snapshot() (map[string]Rect, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]Rect, len(c.rects))
	for k, v := range c.rects {
		out[k] = v
	}
	return out, c.version
}

// RenderLoop calls draw every interval while the cache has changed since the
// previous frame. It returns when ctx is done.
func RenderLoop(ctx context.Context, cache *PositionCache, interval time.Duration, draw func(map[string]Rect)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var drawn uint64
	first := true
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			snap, v := cache.Snapshot()
			if !first && v == drawn {
				continue
			}
			first = false
			drawn = v
			draw(snap)
		}
	}
}
