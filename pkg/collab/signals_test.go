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

func TestCaretThrottle(t *testing.T) {
	sched := NewManualScheduler(epoch)
	tr := newFakeTransport()
	b := NewBroadcaster(tr, "board-1", sched, zerolog.Nop())

	sent := 0
	for i := 0; i < 10; i++ {
		if b.SendTextCursor(protocol.ItemNote, "n1", "body", i) {
			sent++
		}
		sched.Advance(7 * time.Millisecond)
	}
	assert.Equal(t, 1, sent)
	require.Len(t, tr.frames(protocol.SignalTextCursor), 1)
	first := tr.frames(protocol.SignalTextCursor)[0].data.(protocol.TextCursor)
	assert.Equal(t, 0, first.Offset)

	// Another editor has its own budget.
	assert.True(t, b.SendTextCursor(protocol.ItemNote, "n1", "title", 3))

	sched.Advance(100 * time.Millisecond)
	assert.True(t, b.SendTextCursor(protocol.ItemNote, "n1", "body", 42))
	assert.Len(t, tr.frames(protocol.SignalTextCursor), 3)
}

func TestFocusAndCursorAreNotThrottled(t *testing.T) {
	tr := newFakeTransport()
	b := NewBroadcaster(tr, "board-1", NewManualScheduler(epoch), zerolog.Nop())

	for i := 0; i < 5; i++ {
		assert.True(t, b.SendCursor(float64(i), 1))
	}
	assert.True(t, b.SendFocus(protocol.ItemCard, "c1"))
	assert.True(t, b.SendFocus(protocol.ItemCard, ""))

	assert.Len(t, tr.frames(protocol.SignalCursor), 5)
	focus := tr.frames(protocol.SignalFocus)
	require.Len(t, focus, 2)
	assert.Equal(t, protocol.FocusClaim{}, focus[1].data)
}

func TestBroadcasterSwallowsFailures(t *testing.T) {
	tr := newFakeTransport()
	tr.err = channel.ErrNotConnected
	b := NewBroadcaster(tr, "board-1", nil, zerolog.Nop())
	assert.False(t, b.SendCursor(1, 1))

	noRoom := NewBroadcaster(newFakeTransport(), "", nil, zerolog.Nop())
	assert.False(t, noRoom.SendFocus(protocol.ItemNote, "n1"))
}

func TestSignalMirrorOverwritesAndPurges(t *testing.T) {
	m := NewSignalMirror()

	m.ApplyCursor(protocol.CursorSample{UserID: "u2", X: 1, Y: 1})
	m.ApplyCursor(protocol.CursorSample{UserID: "u2", X: 5, Y: 6})
	c, ok := m.Cursor("u2")
	require.True(t, ok)
	assert.Equal(t, 5.0, c.X)

	m.ApplyFocus(protocol.FocusClaim{UserID: "u2", ItemType: protocol.ItemNote, ItemID: "n1"})
	m.ApplyFocus(protocol.FocusClaim{UserID: "u3", ItemType: protocol.ItemNote, ItemID: "n1"})
	assert.Equal(t, []string{"u2", "u3"}, m.FocusedBy("n1"))

	m.ApplyFocus(protocol.FocusClaim{UserID: "u3"})
	assert.Equal(t, []string{"u2"}, m.FocusedBy("n1"))

	m.ApplyTextCursor(protocol.TextCursor{UserID: "u2", ItemID: "n1", Field: "body", Offset: 4})
	m.Purge("u2")

	_, ok = m.Cursor("u2")
	assert.False(t, ok)
	_, ok = m.Focus("u2")
	assert.False(t, ok)
	_, ok = m.TextCursor("u2")
	assert.False(t, ok)
	assert.Empty(t, m.Cursors())
}
