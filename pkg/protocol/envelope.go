package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownType    = errors.New("unknown message type")
)

// Envelope wraps every frame exchanged over the realtime socket.
type Envelope struct {
	Type   MessageType     `json:"type"`
	RoomID string          `json:"room_id,omitempty"`
	ID     string          `json:"id,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into a new envelope. A nil data leaves Data empty.
func NewEnvelope(t MessageType, roomID string, data any) (*Envelope, error) {
	env := &Envelope{Type: t, RoomID: roomID}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		env.Data = raw
	}
	return env, nil
}

// Encode builds and serializes an envelope in one step.
func Encode(t MessageType, roomID string, data any) ([]byte, error) {
	env, err := NewEnvelope(t, roomID, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Decode parses a raw frame. Frames without a type or with a type outside
// the closed set are rejected.
func Decode(raw []byte) (*Envelope, Category, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, CategoryUnknown, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return nil, CategoryUnknown, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	cat := Classify(env.Type)
	if cat == CategoryUnknown {
		return &env, cat, fmt.Errorf("%w: %s", ErrUnknownType, env.Type)
	}
	return &env, cat, nil
}

// Bind unmarshals the envelope payload into v.
func (e *Envelope) Bind(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: %s has no payload", ErrMalformedFrame, e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedFrame, e.Type, err)
	}
	return nil
}

// Marshal serializes the envelope.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// NewError builds an Error frame.
func NewError(code, message string) *Envelope {
	env, _ := NewEnvelope(EventError, "", ErrorMessage{Code: code, Message: message})
	return env
}
