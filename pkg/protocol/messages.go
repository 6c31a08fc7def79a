package protocol

import "time"

// JoinRoom is sent by a client after every (re)connect.
type JoinRoom struct {
	RoomID   string   `json:"room_id"`
	RoomKind RoomKind `json:"room_kind,omitempty"`
	Token    string   `json:"token"`
}

// LeaveRoom is sent best-effort on teardown.
type LeaveRoom struct {
	RoomID string `json:"room_id"`
}

// Participant is one entry of a room roster.
type Participant struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// PresenceList is the full roster snapshot sent to a joiner.
type PresenceList struct {
	Users []Participant `json:"users"`
}

// UserJoined announces a new participant to the rest of the room.
type UserJoined struct {
	User Participant `json:"user"`
}

// UserLeft announces a participant's departure.
type UserLeft struct {
	UserID string `json:"user_id"`
}

// FocusClaim advertises which item a user is looking at. An empty ItemID
// clears the claim. It is never a lock.
type FocusClaim struct {
	UserID   string   `json:"user_id,omitempty"`
	ItemType ItemType `json:"item_type,omitempty"`
	ItemID   string   `json:"item_id,omitempty"`
}

// CursorSample is a spatial pointer position on the canvas.
type CursorSample struct {
	UserID string  `json:"user_id,omitempty"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// TextCursor is a caret position inside an item's text field.
type TextCursor struct {
	UserID   string   `json:"user_id,omitempty"`
	ItemType ItemType `json:"item_type"`
	ItemID   string   `json:"item_id"`
	Field    string   `json:"field"`
	Offset   int      `json:"offset"`
}

// ItemFields are the mutable fields of a canvas item.
type ItemFields struct {
	Title    string  `json:"title"`
	Body     string  `json:"body"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation float64 `json:"rotation"`
	Color    string  `json:"color"`
}

// Item is the persisted representation of a canvas entity.
type Item struct {
	ID      string   `json:"id"`
	BoardID string   `json:"board_id"`
	Type    ItemType `json:"type"`
	ItemFields
	UpdatedAt time.Time `json:"updated_at"`
}

// ContentDelta is a transient subset of an item's mutable fields.
// Nil fields are unchanged.
type ContentDelta struct {
	Title    *string  `json:"title,omitempty"`
	Body     *string  `json:"body,omitempty"`
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Width    *float64 `json:"width,omitempty"`
	Height   *float64 `json:"height,omitempty"`
	Rotation *float64 `json:"rotation,omitempty"`
	Color    *string  `json:"color,omitempty"`
}

// StructuralEvent is the payload of <Type>Added/Updated/Deleted frames.
// Item carries the full record, Delta a partial live update. Both nil
// means the receiver only knows something changed and must refetch.
type StructuralEvent struct {
	ItemID string        `json:"item_id"`
	UserID string        `json:"user_id,omitempty"`
	Item   *Item         `json:"item,omitempty"`
	Delta  *ContentDelta `json:"delta,omitempty"`
}

// HasPayload reports whether the event can be merged without a refetch.
func (e *StructuralEvent) HasPayload() bool {
	return e.Item != nil || e.Delta != nil
}

// Document is the authoritative snapshot of a single-document room.
type Document struct {
	RoomID       string    `json:"room_id"`
	Content      string    `json:"content"`
	LastModified time.Time `json:"last_modified"`
}

// ErrorMessage is sent when a request cannot be served.
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
