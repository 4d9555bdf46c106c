package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/lienzo/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

var _ Store = (*LibSQLStore)(nil)

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage (e.g. event log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Sessions ---

func (s *LibSQLStore) CreateSession(ctx context.Context, sess *Session) error {
	viewport, err := json.Marshal(sess.Viewport)
	if err != nil {
		return fmt.Errorf("marshal viewport: %w", err)
	}
	now := time.Now().UTC()
	sess.CreatedAt = timeOr(sess.CreatedAt, now)
	sess.UpdatedAt = timeOr(sess.UpdatedAt, now)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, name, source, theme_id, viewport, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, nullStr(sess.Name), sess.Source, sess.ThemeID, string(viewport), sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return schema.NewErrorf(schema.ErrCodeStore, "session %q already exists", sess.ID).WithCause(err)
		}
		return err
	}
	if err := writeChildren(ctx, tx, sess); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *LibSQLStore) GetSession(ctx context.Context, id string) (*Session, error) {
	sess := &Session{}
	var name, viewport sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, source, theme_id, viewport, created_at, updated_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &name, &sess.Source, &sess.ThemeID, &viewport, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("session", id)
	}
	if err != nil {
		return nil, err
	}
	sess.Name = name.String
	if viewport.Valid && viewport.String != "" {
		if err := json.Unmarshal([]byte(viewport.String), &sess.Viewport); err != nil {
			return nil, fmt.Errorf("unmarshal viewport: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT stack, source FROM session_history WHERE session_id = ? ORDER BY stack, position`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var stack, src string
		if err := rows.Scan(&stack, &src); err != nil {
			rows.Close()
			return nil, err
		}
		if stack == "past" {
			sess.Past = append(sess.Past, src)
		} else {
			sess.Future = append(sess.Future, src)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT node_id, node_text, node_type FROM session_references WHERE session_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var ref schema.NodeReference
		var nodeType sql.NullString
		if err := rows.Scan(&ref.NodeID, &ref.NodeText, &nodeType); err != nil {
			return nil, err
		}
		ref.NodeType = schema.NodeType(nodeType.String)
		sess.References = append(sess.References, ref)
	}
	return sess, rows.Err()
}

func (s *LibSQLStore) SaveSession(ctx context.Context, sess *Session) error {
	viewport, err := json.Marshal(sess.Viewport)
	if err != nil {
		return fmt.Errorf("marshal viewport: %w", err)
	}
	now := time.Now().UTC()
	sess.CreatedAt = timeOr(sess.CreatedAt, now)
	sess.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, name, source, theme_id, viewport, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, source=excluded.source, theme_id=excluded.theme_id,
		   viewport=excluded.viewport, updated_at=excluded.updated_at`,
		sess.ID, nullStr(sess.Name), sess.Source, sess.ThemeID, string(viewport), sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_history WHERE session_id = ?`, sess.ID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_references WHERE session_id = ?`, sess.ID); err != nil {
		return fmt.Errorf("clear references: %w", err)
	}
	if err := writeChildren(ctx, tx, sess); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

// writeChildren inserts the history stacks and references of sess.
func writeChildren(ctx context.Context, tx *sql.Tx, sess *Session) error {
	for stack, entries := range map[string][]string{"past": sess.Past, "future": sess.Future} {
		for i, src := range entries {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO session_history (session_id, stack, position, source) VALUES (?, ?, ?, ?)`,
				sess.ID, stack, i, src,
			); err != nil {
				return fmt.Errorf("insert %s entry: %w", stack, err)
			}
		}
	}
	for i, ref := range sess.References {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_references (session_id, node_id, position, node_text, node_type) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(session_id, node_id) DO NOTHING`,
			sess.ID, ref.NodeID, i, ref.NodeText, nullStr(string(ref.NodeType)),
		); err != nil {
			return fmt.Errorf("insert reference: %w", err)
		}
	}
	return nil
}

func (s *LibSQLStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*SessionSummary, error) {
	var where []string
	var args []any

	if filter.Since != nil {
		where = append(where, "updated_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, name, theme_id, LENGTH(source), created_at, updated_at FROM sessions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SessionSummary
	for rows.Next() {
		sum := &SessionSummary{}
		var name sql.NullString
		if err := rows.Scan(&sum.ID, &name, &sum.ThemeID, &sum.SourceSize, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, err
		}
		sum.Name = name.String
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "session", id)
}

// --- Events ---

func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM session_events WHERE session_id = ?`, event.SessionID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq
	event.Timestamp = timeOr(event.Timestamp, time.Now().UTC())

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

func (s *LibSQLStore) GetEvents(ctx context.Context, sessionID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, event_type, payload, timestamp, sequence
		 FROM session_events WHERE session_id = ? AND sequence > ? ORDER BY sequence ASC`,
		sessionID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *LibSQLStore) GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error) {
	where := []string{"event_type = ?"}
	args := []any{eventType}

	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, session_id, event_type, payload, timestamp, sequence FROM session_events WHERE ` +
		strings.Join(where, " AND ") + " ORDER BY timestamp DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// PruneEvents deletes events recorded before the cutoff and returns how
// many were removed.
func (s *LibSQLStore) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM session_events WHERE timestamp < ?`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e := &Event{}
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.LienzoError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOr(t, def time.Time) time.Time {
	if t.IsZero() {
		return def
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}
