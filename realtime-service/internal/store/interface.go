package store

import (
	"context"
	"time"

	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

// RosterStore tracks who is connected to which room across every realtime
// instance. A user with several tabs open is counted once; connections are
// reference counted so only the first join and the last leave are visible.
type RosterStore interface {
	// AddConnection records one more connection for the user. first is true
	// when the user was not in the room before.
	AddConnection(ctx context.Context, roomID string, p protocol.Participant, ttl time.Duration) (first bool, err error)

	// RemoveConnection drops one connection. last is true when it was the
	// user's final connection to the room.
	RemoveConnection(ctx context.Context, roomID, userID string) (last bool, err error)

	// Members returns the roster in join order.
	Members(ctx context.Context, roomID string) ([]protocol.Participant, error)

	// Count returns the number of distinct users in the room.
	Count(ctx context.Context, roomID string) (int64, error)

	// Refresh extends the roster's expiry.
	Refresh(ctx context.Context, roomID string, ttl time.Duration) error

	Close() error
}
