package channel

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff"
)

// Schedule is a fixed reconnect schedule: each entry of delays is used once,
// then steady repeats until the channel is closed. It never returns
// backoff.Stop.
type Schedule struct {
	mu      sync.Mutex
	delays  []time.Duration
	steady  time.Duration
	attempt int
}

var _ backoff.BackOff = (*Schedule)(nil)

// NewSchedule builds a schedule from explicit delays.
func NewSchedule(delays []time.Duration, steady time.Duration) *Schedule {
	return &Schedule{delays: append([]time.Duration(nil), delays...), steady: steady}
}

// DefaultSchedule retries immediately, then after 2s and 10s, then every 30s.
func DefaultSchedule() *Schedule {
	return NewSchedule([]time.Duration{0, 2 * time.Second, 10 * time.Second}, 30*time.Second)
}

// NextBackOff returns the delay before the next attempt.
func (s *Schedule) NextBackOff() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.steady
	if s.attempt < len(s.delays) {
		d = s.delays[s.attempt]
	}
	s.attempt++
	return d
}

// Reset restarts the schedule after a successful connection.
func (s *Schedule) Reset() {
	s.mu.Lock()
	s.attempt = 0
	s.mu.Unlock()
}
