package pubsub

import (
	"context"
	"errors"
	"path"
	"sync"
)

var ErrClosed = errors.New("pubsub closed")

type memorySub struct {
	key     string
	pattern bool
	ch      chan *Event
	cancel  context.CancelFunc
}

// MemoryPubSub is an in-process PubSub for single-instance deployments.
// Pattern subscriptions use Redis-style globs.
type MemoryPubSub struct {
	mu     sync.RWMutex
	subs   map[string][]*memorySub
	closed bool
}

// NewMemoryPubSub creates an empty in-process bus.
func NewMemoryPubSub() *MemoryPubSub {
	return &MemoryPubSub{subs: make(map[string][]*memorySub)}
}

// Publish delivers the event to every matching subscriber without blocking.
func (m *MemoryPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}

	for _, list := range m.subs {
		for _, sub := range list {
			if !sub.matches(channel) {
				continue
			}
			select {
			case sub.ch <- event:
			default:
			}
		}
	}
	return nil
}

// Subscribe subscribes to an exact channel.
func (m *MemoryPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return m.add(ctx, channel, false)
}

// SubscribePattern subscribes to every channel matching pattern.
func (m *MemoryPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	return m.add(ctx, pattern, true)
}

func (m *MemoryPubSub) add(ctx context.Context, key string, pattern bool) (<-chan *Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &memorySub{key: key, pattern: pattern, ch: make(chan *Event, 100), cancel: cancel}
	m.subs[key] = append(m.subs[key], sub)

	go func() {
		<-subCtx.Done()
		m.remove(sub)
	}()

	return sub.ch, nil
}

func (m *MemoryPubSub) remove(sub *memorySub) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.subs[sub.key]
	for i, s := range list {
		if s == sub {
			m.subs[sub.key] = append(list[:i], list[i+1:]...)
			close(sub.ch)
			break
		}
	}
	if len(m.subs[sub.key]) == 0 {
		delete(m.subs, sub.key)
	}
}

// Unsubscribe drops every subscription registered under channel.
func (m *MemoryPubSub) Unsubscribe(ctx context.Context, channel string) error {
	m.mu.RLock()
	list := append([]*memorySub(nil), m.subs[channel]...)
	m.mu.RUnlock()

	for _, sub := range list {
		sub.cancel()
		m.remove(sub)
	}
	return nil
}

// Close drops all subscriptions.
func (m *MemoryPubSub) Close() error {
	m.mu.Lock()
	m.closed = true
	var all []*memorySub
	for _, list := range m.subs {
		all = append(all, list...)
	}
	m.mu.Unlock()

	for _, sub := range all {
		sub.cancel()
		m.remove(sub)
	}
	return nil
}

func (s *memorySub) matches(channel string) bool {
	if !s.pattern {
		return s.key == channel
	}
	ok, err := path.Match(s.key, channel)
	return err == nil && ok
}
