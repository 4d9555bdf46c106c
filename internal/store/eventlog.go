package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/rendis/lienzo/internal/streaming"
	"github.com/rendis/lienzo/pkg/schema"
)

// RecordedEvents are the hub event types persisted by EventLog.Record.
// Pointer-driven viewport changes are too chatty to keep.
var RecordedEvents = []string{
	schema.EventRenderSucceeded,
	schema.EventRenderFailed,
	schema.EventThemeChanged,
	schema.EventReferencesChanged,
	schema.EventHistoryChanged,
	schema.EventSessionSaved,
	schema.EventAutoFitGaveUp,
}

// EventLog provides the session activity log on top of a LibSQLStore.
type EventLog struct {
	store *LibSQLStore
}

// NewEventLog wraps a LibSQLStore to provide activity log operations.
func NewEventLog(s *LibSQLStore) *EventLog {
	return &EventLog{store: s}
}

// AppendEvent appends an event with a monotonically increasing per-session
// sequence. The write lock is taken before the sequence is read.
func (el *EventLog) AppendEvent(ctx context.Context, event *Event) error {
	db := el.store.DB()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin immediate tx: %w", err)
	}
	defer tx.Rollback()

	// In WAL mode BeginTx may start a deferred transaction; a write forces
	// lock acquisition.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM session_events WHERE session_id = ?`, event.SessionID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO session_events (session_id, event_type, payload, timestamp, sequence) VALUES (?, ?, ?, ?, ?)`,
		event.SessionID, event.Type, nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// GetEvents returns events for a session with sequence > since, ordered by sequence ASC.
func (el *EventLog) GetEvents(ctx context.Context, sessionID string, since int64) ([]*Event, error) {
	return el.store.GetEvents(ctx, sessionID, since)
}

// GetEventsByType returns events of a specific type matching the filter.
func (el *EventLog) GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error) {
	return el.store.GetEventsByType(ctx, eventType, filter)
}

// Activity summarizes a session's recorded events.
type Activity struct {
	Events          int        `json:"events"`
	Renders         int        `json:"renders"`
	RenderFailures  int        `json:"render_failures"`
	LastFailure     string     `json:"last_failure,omitempty"`
	LastRenderAt    *time.Time `json:"last_render_at,omitempty"`
	ThemeChanges    int        `json:"theme_changes"`
	Edits           int        `json:"edits"`
	ReferenceEdits  int        `json:"reference_edits"`
	Saves           int        `json:"saves"`
	FitAbandonments int        `json:"fit_abandonments"`
}

// ReplaySession folds every event of a session into an Activity summary.
// Returns an error if sequence gaps are detected.
func (el *EventLog) ReplaySession(ctx context.Context, sessionID string) (*Activity, error) {
	events, err := el.store.GetEvents(ctx, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}

	a := &Activity{}
	for i, e := range events {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in session %s: expected %d, got %d", sessionID, expected, e.Sequence)
		}
		a.Events++

		switch e.Type {
		case schema.EventRenderSucceeded:
			a.Renders++
			ts := e.Timestamp
			a.LastRenderAt = &ts
		case schema.EventRenderFailed:
			a.Renders++
			a.RenderFailures++
			var p FailurePayload
			if json.Unmarshal(e.Payload, &p) == nil {
				a.LastFailure = p.Message
			}
		case schema.EventThemeChanged:
			a.ThemeChanges++
		case schema.EventHistoryChanged:
			a.Edits++
		case schema.EventReferencesChanged:
			a.ReferenceEdits++
		case schema.EventSessionSaved:
			a.Saves++
		case schema.EventAutoFitGaveUp:
			a.FitAbandonments++
		}
	}
	return a, nil
}

// FailurePayload is used to extract the message from render failure payloads.
type FailurePayload struct {
	Message string `json:"message"`
}

// Record subscribes to hub and appends every RecordedEvents event of
// sessionID until ctx is done. Append failures are logged and skipped.
func (el *EventLog) Record(ctx context.Context, hub streaming.EventHub, sessionID string, logger *slog.Logger) error {
	ch, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{SessionID: sessionID, EventTypes: RecordedEvents})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer cancel()
	if logger == nil {
		logger = slog.Default()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-ch:
			payload, err := json.Marshal(ev.Payload)
			if err != nil {
				logger.Warn("activity payload not serializable", "event", ev.EventType, "error", err)
				payload = nil
			}
			rec := &Event{SessionID: ev.SessionID, Type: ev.EventType, Payload: payload}
			// Appends outlive ctx so the last events before shutdown land.
			if err := el.AppendEvent(context.WithoutCancel(ctx), rec); err != nil {
				logger.Warn("activity append failed", "event", ev.EventType, "error", err)
			}
		}
	}
}
