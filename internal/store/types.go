package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/lienzo/pkg/schema"
)

// Session is the persisted state of one workbench: the diagram source with
// its undo/redo stacks, the theme, the viewport and the pending references.
type Session struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name,omitempty"`
	Source     string                 `json:"source"`
	ThemeID    string                 `json:"theme_id"`
	Viewport   schema.ViewportState   `json:"viewport"`
	Past       []string               `json:"past,omitempty"`
	Future     []string               `json:"future,omitempty"`
	References []schema.NodeReference `json:"references,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// SessionSummary is a session row without its stacks and references.
type SessionSummary struct {
	ID         string    `json:"id"`
	Name       string    `json:"name,omitempty"`
	ThemeID    string    `json:"theme_id"`
	SourceSize int       `json:"source_size"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Event is an immutable entry in a session's activity log.
type Event struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}

// --- Filter types ---

// SessionFilter specifies criteria for listing sessions. Results are ordered
// by most recent update first.
type SessionFilter struct {
	Since  *time.Time `json:"since,omitempty"`
	Limit  int        `json:"limit,omitempty"`
	Offset int        `json:"offset,omitempty"`
}

// EventFilter specifies criteria for querying events by type.
type EventFilter struct {
	SessionID string     `json:"session_id,omitempty"`
	Since     *time.Time `json:"since,omitempty"`
	Limit     int        `json:"limit,omitempty"`
}
