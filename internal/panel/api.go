package panel

import (
	"io"
	"net/http"

	"github.com/rendis/lienzo/internal/workspace"
	"github.com/rendis/lienzo/pkg/schema"
)

// maxSourceBytes bounds a PUT /api/source body.
const maxSourceBytes = 1 << 20

// handleSetSource replaces the diagram source. The body is either the raw
// source text or {"source": "...", "skip_history": bool} as JSON.
func (s *PanelServer) handleSetSource(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Source      string `json:"source"`
		SkipHistory bool   `json:"skip_history"`
	}
	if r.Header.Get("Content-Type") == "application/json" {
		if !decodeBody(w, r, &body) {
			return
		}
	} else {
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxSourceBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		body.Source = string(raw)
	}
	changed := s.deps.Workspace.SetSource(body.Source, body.SkipHistory)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"changed":  changed,
		"can_undo": s.deps.Workspace.CanUndo(),
		"can_redo": s.deps.Workspace.CanRedo(),
	})
}

func (s *PanelServer) handleUndo(w http.ResponseWriter, r *http.Request) {
	s.writeStep(w, s.deps.Workspace.Undo())
}

func (s *PanelServer) handleRedo(w http.ResponseWriter, r *http.Request) {
	s.writeStep(w, s.deps.Workspace.Redo())
}

func (s *PanelServer) writeStep(w http.ResponseWriter, changed bool) {
	writeJSON(w, http.StatusOK, map[string]any{
		"changed":  changed,
		"can_undo": s.deps.Workspace.CanUndo(),
		"can_redo": s.deps.Workspace.CanRedo(),
	})
}

func (s *PanelServer) handleSetTheme(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.deps.Workspace.SetTheme(body.ID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"theme_id": body.ID})
}

func (s *PanelServer) handlePointer(w http.ResponseWriter, r *http.Request) {
	var ev workspace.PointerEvent
	if !decodeBody(w, r, &ev) {
		return
	}
	res, err := s.deps.Workspace.Pointer(ev)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleViewport runs zoom-in, zoom-out or reset. Zooms accept an optional
// cursor as ?x=&y=.
func (s *PanelServer) handleViewport(w http.ResponseWriter, r *http.Request) {
	var cursor *schema.Point
	if q := r.URL.Query(); q.Has("x") && q.Has("y") {
		cursor = &schema.Point{X: queryFloat(r, "x", 0), Y: queryFloat(r, "y", 0)}
	}
	ws := s.deps.Workspace
	var st schema.ViewportState
	switch r.PathValue("action") {
	case "zoom-in":
		st = ws.ZoomIn(cursor)
	case "zoom-out":
		st = ws.ZoomOut(cursor)
	case "reset":
		st = ws.ResetView()
	default:
		writeError(w, http.StatusNotFound, "unknown viewport action "+r.PathValue("action"))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *PanelServer) handleViewSize(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Width <= 0 || body.Height <= 0 {
		writeError(w, http.StatusBadRequest, "width and height must be positive")
		return
	}
	s.deps.Workspace.SetViewSize(body.Width, body.Height)
	w.WriteHeader(http.StatusNoContent)
}

func (s *PanelServer) handleReferenceMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	s.deps.Workspace.SetReferenceMode(body.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": body.Enabled})
}

func (s *PanelServer) handleClearReferences(w http.ResponseWriter, r *http.Request) {
	s.deps.Workspace.ClearReferences()
	w.WriteHeader(http.StatusNoContent)
}

func (s *PanelServer) handleRemoveReference(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.deps.Workspace.RemoveReference(id) {
		writeErr(w, schema.NewErrorf(schema.ErrCodeNotFound, "reference %q not found", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *PanelServer) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Workspace.Save(r.Context()); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": s.deps.Workspace.ID()})
}

func (s *PanelServer) handleRunJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not configured")
		return
	}
	ran, err := s.deps.Scheduler.RunNow(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ran": ran})
}
