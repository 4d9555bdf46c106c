// Package panel serves the workspace over HTTP: a JSON API, the decorated
// scene as SVG, exports and a Server-Sent Events stream of session events.
package panel

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/rendis/lienzo/internal/logging"
	"github.com/rendis/lienzo/internal/scheduler"
	"github.com/rendis/lienzo/internal/store"
	"github.com/rendis/lienzo/internal/streaming"
	"github.com/rendis/lienzo/internal/workspace"
)

//go:embed templates
var content embed.FS

// PanelDeps holds the dependencies for the panel server. Store, Activity
// and Scheduler are optional.
type PanelDeps struct {
	Workspace *workspace.Workspace
	Hub       streaming.EventHub
	Store     store.Store
	Activity  *store.EventLog
	Scheduler *scheduler.Scheduler
	Logger    *slog.Logger
}

// PanelServer serves the workspace panel.
type PanelServer struct {
	deps  PanelDeps
	index *template.Template
}

// NewPanelServer creates a new PanelServer.
func NewPanelServer(deps PanelDeps) *PanelServer {
	deps.Logger = logging.OrDefault(deps.Logger)
	funcMap := template.FuncMap{
		"json":    toJSON,
		"timeAgo": timeAgo,
		"badge":   statusBadge,
	}
	return &PanelServer{
		deps:  deps,
		index: template.Must(template.New("").Funcs(funcMap).ParseFS(content, "templates/index.html")),
	}
}

// Handler returns the HTTP handler for the panel routes.
func (s *PanelServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)

	// Reads.
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/source", s.handleGetSource)
	mux.HandleFunc("GET /api/scene.svg", s.handleSceneSVG)
	mux.HandleFunc("GET /api/themes", s.handleThemes)
	mux.HandleFunc("GET /api/nodes", s.handleNodes)
	mux.HandleFunc("GET /api/references", s.handleReferences)
	mux.HandleFunc("GET /api/export", s.handleExport)
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/activity", s.handleActivity)
	mux.HandleFunc("GET /api/jobs", s.handleJobs)

	// SSE stream of this session's events.
	mux.HandleFunc("GET /sse/events", s.handleSSE)

	// Mutations.
	mux.HandleFunc("PUT /api/source", s.handleSetSource)
	mux.HandleFunc("POST /api/undo", s.handleUndo)
	mux.HandleFunc("POST /api/redo", s.handleRedo)
	mux.HandleFunc("PUT /api/theme", s.handleSetTheme)
	mux.HandleFunc("POST /api/pointer", s.handlePointer)
	mux.HandleFunc("POST /api/viewport/{action}", s.handleViewport)
	mux.HandleFunc("PUT /api/viewport/size", s.handleViewSize)
	mux.HandleFunc("PUT /api/reference-mode", s.handleReferenceMode)
	mux.HandleFunc("DELETE /api/references", s.handleClearReferences)
	mux.HandleFunc("DELETE /api/references/{id}", s.handleRemoveReference)
	mux.HandleFunc("POST /api/save", s.handleSave)
	mux.HandleFunc("POST /api/jobs/{name}/run", s.handleRunJob)

	return mux
}

// handleIndex renders the single-page viewer.
func (s *PanelServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.index.ExecuteTemplate(w, "index", s.deps.Workspace.Status()); err != nil {
		s.deps.Logger.Error("template render error", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
