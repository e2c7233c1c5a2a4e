package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Well-known message headers.
const (
	HeaderID            = "id"
	HeaderTimestamp     = "timestamp"
	HeaderCorrelationID = "correlationId"
)

// Message is the unit exchanged with endpoints and held in correlation queues.
type Message struct {
	Headers map[string]any `json:"headers"`
	Payload any            `json:"payload,omitempty"`
}

// NewMessage creates a message with a fresh id and timestamp.
func NewMessage(payload any) *Message {
	return &Message{
		Headers: map[string]any{
			HeaderID:        uuid.NewString(),
			HeaderTimestamp: time.Now().UnixMilli(),
		},
		Payload: payload,
	}
}

// ID returns the message id header.
func (m *Message) ID() string {
	return m.HeaderString(HeaderID)
}

// Header returns a header value and whether it was present.
func (m *Message) Header(name string) (any, bool) {
	if m.Headers == nil {
		return nil, false
	}
	v, ok := m.Headers[name]
	return v, ok
}

// HeaderString returns the header formatted as a string, or "" when absent.
func (m *Message) HeaderString(name string) string {
	v, ok := m.Header(name)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// SetHeader sets a header and returns the message for chaining.
func (m *Message) SetHeader(name string, value any) *Message {
	if m.Headers == nil {
		m.Headers = make(map[string]any)
	}
	m.Headers[name] = value
	return m
}

// PayloadString renders the payload as text. Non-string payloads are JSON encoded.
func (m *Message) PayloadString() string {
	switch p := m.Payload.(type) {
	case nil:
		return ""
	case string:
		return p
	case []byte:
		return string(p)
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Sprint(p)
		}
		return string(b)
	}
}

// Copy returns a shallow copy with its own header map.
func (m *Message) Copy() *Message {
	if m == nil {
		return nil
	}
	return &Message{Headers: maps.Clone(m.Headers), Payload: m.Payload}
}
