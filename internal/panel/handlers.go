package panel

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rendis/lienzo/internal/export"
	"github.com/rendis/lienzo/internal/store"
	"github.com/rendis/lienzo/pkg/schema"
)

// handleState returns the workspace status.
func (s *PanelServer) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Workspace.Status())
}

func (s *PanelServer) handleGetSource(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(s.deps.Workspace.Source()))
}

// handleSceneSVG serves the current scene with hover and selection markers
// applied to a copy. A failed or missing render is a 409 carrying the
// outcome message.
func (s *PanelServer) handleSceneSVG(w http.ResponseWriter, r *http.Request) {
	ws := s.deps.Workspace
	sc := ws.Decorated()
	if sc == nil {
		o := ws.Outcome()
		msg := "no scene rendered"
		if o.Failed() {
			msg = o.Message
		}
		writeJSON(w, http.StatusConflict, map[string]any{"error": msg, "code": schema.ErrCodeNoScene, "status": o.Status})
		return
	}
	doc, err := export.SVGDocument{}.Document(r.Context(), sc, export.Options{})
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", export.FormatSVG.MediaType())
	w.Header().Set("Cache-Control", "no-store")
	w.Write(doc)
}

func (s *PanelServer) handleThemes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"current": s.deps.Workspace.ThemeID(),
		"themes":  s.deps.Workspace.Themes(),
	})
}

func (s *PanelServer) handleNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Workspace.Nodes())
}

func (s *PanelServer) handleReferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Workspace.References())
}

// handleExport streams an export artifact: ?format=png|svg&scale=2&background=white.
func (s *PanelServer) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := q.Get("format")
	if name == "" {
		name = string(export.FormatPNG)
	}
	format, err := export.ParseFormat(name)
	if err != nil {
		writeErr(w, err)
		return
	}
	opts := export.Options{
		Scale:      queryFloat(r, "scale", export.DefaultScale),
		Background: q.Get("background"),
	}
	a, err := s.deps.Workspace.Export(r.Context(), format, opts)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", a.MediaType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+a.Filename()+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
	if a.FellBack {
		w.Header().Set("X-Lienzo-Fallback", "png")
	}
	w.Write(a.Data)
}

// handleSessions lists stored sessions: ?limit=&offset=&since=RFC3339.
func (s *PanelServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "session store not configured")
		return
	}
	filter := store.SessionFilter{
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		filter.Since = &t
	}
	sessions, err := s.deps.Store.ListSessions(r.Context(), filter)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// handleActivity summarizes the recorded activity of the current session,
// or returns raw events with ?since=<sequence>.
func (s *PanelServer) handleActivity(w http.ResponseWriter, r *http.Request) {
	if s.deps.Activity == nil {
		writeError(w, http.StatusServiceUnavailable, "activity log not configured")
		return
	}
	id := s.deps.Workspace.ID()
	if r.URL.Query().Has("since") {
		events, err := s.deps.Activity.GetEvents(r.Context(), id, int64(queryInt(r, "since", 0)))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
		return
	}
	a, err := s.deps.Activity.ReplaySession(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *PanelServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Scheduler.Jobs())
}
