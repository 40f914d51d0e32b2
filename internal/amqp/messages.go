package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"ledgerlens/internal/core"
)

// EventMessage is the wire form of an engine event.
type EventMessage struct {
	ID        string     `json:"id"`
	Event     core.Event `json:"event"`
	Timestamp time.Time  `json:"timestamp"`
}

// NewEventMessage wraps ev with a fresh message ID.
func NewEventMessage(ev core.Event) *EventMessage {
	return &EventMessage{
		ID:        uuid.NewString(),
		Event:     ev,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *EventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EventMessageFromJSON creates a message from JSON bytes
func EventMessageFromJSON(data []byte) (*EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
