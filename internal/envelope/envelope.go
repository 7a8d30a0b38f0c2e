// Package envelope defines the versioned wire format shared by every
// service on the bus: a typed envelope carrying one of a closed set of
// payload variants, validated at the boundary before any business logic
// runs.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType enumerates the envelope types understood by the system.
// The queue/topic name defaults to the type value.
type EventType string

const (
	TypeParEvent       EventType = "par-event"
	TypeAdEvent        EventType = "ad-event"
	TypeTtsEvent       EventType = "tts-event"
	TypeMovementUpdate EventType = "movement-update"
	TypeAnomalyAlert   EventType = "anomaly-alert"
)

// ErrInvalidPayload marks a terminal schema violation. Messages failing
// with this error are logged and dropped, never redelivered.
var ErrInvalidPayload = errors.New("invalid payload")

var knownTypes = map[EventType]struct{}{
	TypeParEvent:       {},
	TypeAdEvent:        {},
	TypeTtsEvent:       {},
	TypeMovementUpdate: {},
	TypeAnomalyAlert:   {},
}

// Envelope is the wire format for all cross-service events.
type Envelope struct {
	Type      EventType       `json:"type"`
	Version   int             `json:"version"`
	TsMs      int64           `json:"ts_ms"`
	CreatedBy string          `json:"created_by"`
	Payload   json.RawMessage `json:"payload"`
}

// NowMs returns the current wall clock in epoch milliseconds.
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// Pack builds an envelope of the given type around the payload, stamped
// with the current time and the producing service name.
func Pack(t EventType, payload any, createdBy string) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s payload: %w", t, err)
	}
	return &Envelope{
		Type:      t,
		Version:   1,
		TsMs:      NowMs(),
		CreatedBy: createdBy,
		Payload:   raw,
	}, nil
}

// Decode parses raw bytes into an envelope and verifies the type is one of
// the closed enumeration. The payload stays raw until a typed accessor is
// called.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed envelope: %v", ErrInvalidPayload, err)
	}
	if _, ok := knownTypes[env.Type]; !ok {
		return nil, fmt.Errorf("%w: unknown envelope type %q", ErrInvalidPayload, env.Type)
	}
	if len(env.Payload) == 0 {
		return nil, fmt.Errorf("%w: envelope of type %q has no payload", ErrInvalidPayload, env.Type)
	}
	return &env, nil
}

// Marshal serializes the envelope for publishing.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Topic returns the bus topic for this envelope (the type value).
func (e *Envelope) Topic() string {
	return string(e.Type)
}
