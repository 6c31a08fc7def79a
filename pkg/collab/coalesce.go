package collab

import (
	"sync"
	"time"
)

// RefetchQuiet is how long after a refetch further hints are folded into a
// single trailing refetch.
const RefetchQuiet = 180 * time.Millisecond

// RefetchCoalescer turns bursts of staleness hints into at most two
// refetches: one on the leading edge and one trailing.
type RefetchCoalescer struct {
	sched   Scheduler
	quiet   time.Duration
	refetch func()

	mu         sync.Mutex
	inFlight   bool
	pending    bool
	quietUntil time.Time
	timer      Timer
	closed     bool
	runs       int
}

// NewRefetchCoalescer creates a coalescer around refetch. A zero quiet uses
// RefetchQuiet.
func NewRefetchCoalescer(sched Scheduler, quiet time.Duration, refetch func()) *RefetchCoalescer {
	if sched == nil {
		sched = RealScheduler()
	}
	if quiet <= 0 {
		quiet = RefetchQuiet
	}
	return &RefetchCoalescer{sched: sched, quiet: quiet, refetch: refetch}
}

// Hint signals that the local list may be stale.
func (c *RefetchCoalescer) Hint() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.inFlight || c.timer != nil {
		c.pending = true
		c.mu.Unlock()
		return
	}
	now := c.sched.Now()
	if now.Before(c.quietUntil) {
		c.pending = true
		c.timer = c.sched.AfterFunc(c.quietUntil.Sub(now), c.fire)
		c.mu.Unlock()
		return
	}
	c.inFlight = true
	c.mu.Unlock()

	c.sched.Go(c.run)
}

// Runs returns how many refetches have completed.
func (c *RefetchCoalescer) Runs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs
}

// Close cancels a scheduled trailing refetch. Later hints are ignored.
func (c *RefetchCoalescer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.pending = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *RefetchCoalescer) fire() {
	c.mu.Lock()
	c.timer = nil
	if c.closed || !c.pending || c.inFlight {
		c.mu.Unlock()
		return
	}
	c.pending = false
	c.inFlight = true
	c.mu.Unlock()

	c.run()
}

func (c *RefetchCoalescer) run() {
	c.refetch()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	c.runs++
	c.quietUntil = c.sched.Now().Add(c.quiet)
	if c.pending && !c.closed && c.timer == nil {
		c.timer = c.sched.AfterFunc(c.quiet, c.fire)
	}
}
