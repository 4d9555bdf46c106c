package workspace

import (
	"context"

	"github.com/rendis/lienzo/internal/history"
	"github.com/rendis/lienzo/internal/store"
	"github.com/rendis/lienzo/pkg/schema"
)

// Name returns the session's display name.
func (w *Workspace) Name() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.name
}

// SetName renames the session.
func (w *Workspace) SetName(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if name != w.name {
		w.name = name
		w.revision++
	}
}

// Snapshot copies the persistable state of the workspace.
func (w *Workspace) Snapshot() *store.Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, _ := w.snapshotLocked()
	return s
}

func (w *Workspace) snapshotLocked() (*store.Session, uint64) {
	h := w.history.Snapshot()
	return &store.Session{
		ID:         w.id,
		Name:       w.name,
		Source:     h.Current,
		ThemeID:    w.themeID,
		Viewport:   w.view.State(),
		Past:       h.Past,
		Future:     h.Future,
		References: w.selector.References(),
		CreatedAt:  w.createdAt,
	}, w.revision
}

// Dirty reports whether anything changed since the last save or restore.
func (w *Workspace) Dirty() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.revision != w.saved
}

// Save persists the workspace. It fails with STORE_ERROR when no store is
// configured.
func (w *Workspace) Save(ctx context.Context) error {
	if w.store == nil {
		return schema.NewError(schema.ErrCodeStore, "no session store configured")
	}
	w.mu.Lock()
	sess, rev := w.snapshotLocked()
	w.mu.Unlock()

	if err := w.store.SaveSession(ctx, sess); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if rev > w.saved {
		w.saved = rev
	}
	w.emitLocked(schema.EventSessionSaved, map[string]any{"revision": rev})
	w.logger.Debug("session saved", "revision", rev)
	return nil
}

// Autosave saves only when the workspace is dirty. It reports whether a
// save happened.
func (w *Workspace) Autosave(ctx context.Context) (bool, error) {
	if w.store == nil || !w.Dirty() {
		return false, nil
	}
	if err := w.Save(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Restore loads this workspace's session from the store, replacing the
// source, history, theme and references. The saved viewport is applied to
// the first scene instead of auto-fit.
func (w *Workspace) Restore(ctx context.Context) error {
	if w.store == nil {
		return schema.NewError(schema.ErrCodeStore, "no session store configured")
	}
	sess, err := w.store.GetSession(ctx, w.id)
	if err != nil {
		return err
	}
	if _, err := w.themes.Theme(sess.ThemeID); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.name = sess.Name
	w.themeID = sess.ThemeID
	w.createdAt = sess.CreatedAt
	w.history.Restore(history.State{Current: sess.Source, Past: sess.Past, Future: sess.Future})
	w.selector.Restore(sess.References)
	if sess.Viewport.Zoom > 0 {
		v := sess.Viewport
		w.pendingView = &v
	}
	w.saved = w.revision
	w.coord.RenderNow(sess.Source, sess.ThemeID)
	w.emitHistoryLocked()
	w.logger.Info("session restored", "references", len(sess.References), "past", len(sess.Past))
	return nil
}
