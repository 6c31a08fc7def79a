package protocol

import (
	"strings"
)

// MessageType is the "type" discriminator of every frame on the socket.
type MessageType string

// Client -> server methods.
const (
	MethodJoinRoom  MessageType = "JoinRoom"
	MethodLeaveRoom MessageType = "LeaveRoom"
	MethodPing      MessageType = "Ping"
)

// Presence events (server -> client).
const (
	EventPresenceList MessageType = "PresenceList"
	EventUserJoined   MessageType = "UserJoined"
	EventUserLeft     MessageType = "UserLeft"
)

// Ephemeral signals. The same names are used in both directions.
const (
	SignalFocus      MessageType = "UserFocusingItem"
	SignalCursor     MessageType = "CursorPosition"
	SignalTextCursor MessageType = "TextCursorPosition"
)

// Control events (server -> client).
const (
	EventError MessageType = "Error"
	EventPong  MessageType = "Pong"
)

// Category groups message types for dispatch.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryControl
	CategoryPresence
	CategorySignal
	CategoryStructural
)

func (c Category) String() string {
	switch c {
	case CategoryControl:
		return "control"
	case CategoryPresence:
		return "presence"
	case CategorySignal:
		return "signal"
	case CategoryStructural:
		return "structural"
	default:
		return "unknown"
	}
}

// Classify returns the category of t. Structural names are validated
// against the closed ItemType and EventKind sets.
func Classify(t MessageType) Category {
	switch t {
	case MethodJoinRoom, MethodLeaveRoom, MethodPing, EventError, EventPong:
		return CategoryControl
	case EventPresenceList, EventUserJoined, EventUserLeft:
		return CategoryPresence
	case SignalFocus, SignalCursor, SignalTextCursor:
		return CategorySignal
	}
	if _, _, ok := ParseStructural(t); ok {
		return CategoryStructural
	}
	return CategoryUnknown
}

// RoomKind distinguishes boards (many items) from single-document rooms.
type RoomKind string

const (
	RoomKindBoard    RoomKind = "board"
	RoomKindDocument RoomKind = "document"
)

// Valid reports whether k is a known room kind.
func (k RoomKind) Valid() bool {
	return k == RoomKindBoard || k == RoomKindDocument
}

// ItemType is the closed set of canvas entity types.
type ItemType string

const (
	ItemNote      ItemType = "Note"
	ItemCard      ItemType = "Card"
	ItemImage     ItemType = "Image"
	ItemConnector ItemType = "Connector"
	ItemDocument  ItemType = "Document"
)

// ItemTypes lists every item type in a stable order.
var ItemTypes = []ItemType{ItemNote, ItemCard, ItemImage, ItemConnector, ItemDocument}

// ParseItemType accepts the canonical name case-insensitively.
func ParseItemType(s string) (ItemType, bool) {
	for _, it := range ItemTypes {
		if strings.EqualFold(string(it), s) {
			return it, true
		}
	}
	return "", false
}

// EventKind is the structural change kind.
type EventKind string

const (
	KindAdded   EventKind = "Added"
	KindUpdated EventKind = "Updated"
	KindDeleted EventKind = "Deleted"
)

var eventKinds = []EventKind{KindAdded, KindUpdated, KindDeleted}

// StructuralType builds the wire name for a structural event, e.g. NoteAdded.
func StructuralType(it ItemType, kind EventKind) MessageType {
	return MessageType(string(it) + string(kind))
}

// ParseStructural splits a wire name such as CardDeleted into its parts.
func ParseStructural(t MessageType) (ItemType, EventKind, bool) {
	s := string(t)
	for _, kind := range eventKinds {
		prefix, found := strings.CutSuffix(s, string(kind))
		if !found {
			continue
		}
		for _, it := range ItemTypes {
			if prefix == string(it) {
				return it, kind, true
			}
		}
		return "", "", false
	}
	return "", "", false
}

// EventDocumentUpdated is the hint sent to document rooms after a save.
var EventDocumentUpdated = StructuralType(ItemDocument, KindUpdated)

// Error codes carried by EventError frames.
const (
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeNotJoined     = "NOT_JOINED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)
