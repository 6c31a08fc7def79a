package collab

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-canvas-live/pkg/channel"
	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type sentFrame struct {
	method protocol.MessageType
	data   any
}

// fakeTransport records invocations and lets tests deliver frames.
type fakeTransport struct {
	mu       sync.Mutex
	handlers map[protocol.MessageType][]func(*protocol.Envelope)
	states   []func(channel.State)
	sent     []sentFrame
	closed   bool
	err      error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[protocol.MessageType][]func(*protocol.Envelope))}
}

func (f *fakeTransport) Invoke(method protocol.MessageType, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return channel.ErrClosed
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentFrame{method: method, data: data})
	return nil
}

func (f *fakeTransport) On(t protocol.MessageType, h func(*protocol.Envelope)) {
	f.mu.Lock()
	f.handlers[t] = append(f.handlers[t], h)
	f.mu.Unlock()
}

func (f *fakeTransport) OnStateChange(h func(channel.State)) {
	f.mu.Lock()
	f.states = append(f.states, h)
	f.mu.Unlock()
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeTransport) deliver(t *testing.T, mt protocol.MessageType, data any) {
	t.Helper()
	env, err := protocol.NewEnvelope(mt, "board-1", data)
	require.NoError(t, err)

	f.mu.Lock()
	hs := append([]func(*protocol.Envelope){}, f.handlers[mt]...)
	f.mu.Unlock()
	for _, h := range hs {
		h(env)
	}
}

func (f *fakeTransport) setState(s channel.State) {
	f.mu.Lock()
	hs := append([]func(channel.State){}, f.states...)
	f.mu.Unlock()
	for _, h := range hs {
		h(s)
	}
}

func (f *fakeTransport) frames(method protocol.MessageType) []sentFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentFrame
	for _, s := range f.sent {
		if s.method == method {
			out = append(out, s)
		}
	}
	return out
}

// memItemStore is a last-writer-wins item store.
type memItemStore struct {
	mu    sync.Mutex
	clock func() time.Time
	items map[string]protocol.Item
	saves []protocol.Item
	err   error
}

func newMemItemStore(clock func() time.Time) *memItemStore {
	return &memItemStore{clock: clock, items: make(map[string]protocol.Item)}
}

func (s *memItemStore) SaveItem(_ context.Context, item protocol.Item) (protocol.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return protocol.Item{}, s.err
	}
	item.UpdatedAt = s.clock()
	s.items[item.ID] = item
	s.saves = append(s.saves, item)
	return item, nil
}

func (s *memItemStore) ListItems(_ context.Context, boardID string) ([]protocol.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []protocol.Item
	for _, it := range s.items {
		if it.BoardID == boardID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *memItemStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

func (s *memItemStore) get(id string) protocol.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[id]
}

// countingLister counts refetches.
type countingLister struct {
	mu    sync.Mutex
	calls int
	items []protocol.Item
	err   error
}

func (l *countingLister) ListItems(context.Context, string) ([]protocol.Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return append([]protocol.Item(nil), l.items...), nil
}

func (l *countingLister) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// guardedDocStore applies the same tolerance rule as the content service.
type guardedDocStore struct {
	mu        sync.Mutex
	clock     func() time.Time
	tolerance time.Duration
	doc       protocol.Document
}

func (s *guardedDocStore) GetDocument(context.Context, string) (protocol.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc, nil
}

func (s *guardedDocStore) SaveDocument(_ context.Context, roomID, content string, known time.Time) (protocol.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.LastModified.Sub(known) > s.tolerance {
		return protocol.Document{}, ErrConflict
	}
	s.doc = protocol.Document{RoomID: roomID, Content: content, LastModified: s.clock()}
	return s.doc, nil
}

var errBoom = errors.New("boom")

func note(id, title string) protocol.Item {
	return protocol.Item{
		ID:         id,
		BoardID:    "board-1",
		Type:       protocol.ItemNote,
		ItemFields: protocol.ItemFields{Title: title, Width: 100, Height: 80},
	}
}
