package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

func setupStore(t *testing.T) (RosterStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreFromClient(client)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestConnectionsAreReferenceCounted(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	alice := protocol.Participant{UserID: "alice", DisplayName: "Alice"}

	first, err := s.AddConnection(ctx, "room-1", alice, time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	// Second tab.
	first, err = s.AddConnection(ctx, "room-1", alice, time.Minute)
	require.NoError(t, err)
	assert.False(t, first)

	n, err := s.Count(ctx, "room-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	last, err := s.RemoveConnection(ctx, "room-1", "alice")
	require.NoError(t, err)
	assert.False(t, last)

	last, err = s.RemoveConnection(ctx, "room-1", "alice")
	require.NoError(t, err)
	assert.True(t, last)

	members, err := s.Members(ctx, "room-1")
	require.NoError(t, err)
	assert.Empty(t, members)

	// Removing an absent user is not a leave.
	last, err = s.RemoveConnection(ctx, "room-1", "alice")
	require.NoError(t, err)
	assert.False(t, last)
}

func TestMembersInJoinOrder(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	for _, p := range []protocol.Participant{
		{UserID: "carol", DisplayName: "Carol"},
		{UserID: "alice", DisplayName: "Alice"},
	} {
		_, err := s.AddConnection(ctx, "room-1", p, time.Minute)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}
	_, err := s.AddConnection(ctx, "room-2", protocol.Participant{UserID: "bob"}, time.Minute)
	require.NoError(t, err)

	members, err := s.Members(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, []protocol.Participant{
		{UserID: "carol", DisplayName: "Carol"},
		{UserID: "alice", DisplayName: "Alice"},
	}, members)

	// A rejoin from another tab keeps the original position.
	_, err = s.AddConnection(ctx, "room-1", protocol.Participant{UserID: "carol", DisplayName: "Carol B"}, time.Minute)
	require.NoError(t, err)
	members, err = s.Members(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "carol", members[0].UserID)
	assert.Equal(t, "Carol B", members[0].DisplayName)
}

func TestRosterExpires(t *testing.T) {
	s, mr := setupStore(t)
	ctx := context.Background()

	_, err := s.AddConnection(ctx, "room-1", protocol.Participant{UserID: "alice"}, time.Minute)
	require.NoError(t, err)

	mr.FastForward(30 * time.Second)
	require.NoError(t, s.Refresh(ctx, "room-1", time.Minute))
	mr.FastForward(45 * time.Second)

	n, err := s.Count(ctx, "room-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	mr.FastForward(time.Minute)
	n, err = s.Count(ctx, "room-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}
