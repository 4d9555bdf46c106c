package streaming

import (
	"context"
	"time"
)

// StreamEvent is a real-time event emitted by a workspace session. Seq and
// Time are stamped by the hub on publish.
type StreamEvent struct {
	Seq       uint64    `json:"seq"`
	Time      time.Time `json:"time"`
	SessionID string    `json:"session_id"`
	NodeID    string    `json:"node_id,omitempty"`
	EventType string    `json:"event_type"`
	Payload   any       `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
// EventTypes entries ending in ".*" match every type with that prefix.
// Replay asks for the latest retained event of each matching type before
// live events, so a late subscriber starts from the current state.
type EventFilter struct {
	SessionID  string   `json:"session_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
	Replay     bool     `json:"replay,omitempty"`
}

// EventHub provides pub/sub for real-time session events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
