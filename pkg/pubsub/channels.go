package pubsub

import "fmt"

// Channel naming conventions for realtime fan-out between instances.
const (
	// ChannelRoomFrames carries websocket frames destined for one room.
	ChannelRoomFrames = "canvas:room:%s:frames"

	// PatternRoomFrames matches every room's frame channel.
	PatternRoomFrames = "canvas:room:*:frames"
)

// Event types carried on room channels.
const (
	EventRoomFrame = "room_frame"
)

// RoomFramesChannel returns the channel name for a room's frames.
func RoomFramesChannel(roomID string) string {
	return fmt.Sprintf(ChannelRoomFrames, roomID)
}
