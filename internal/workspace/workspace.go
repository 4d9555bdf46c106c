// Package workspace is the explicit state container of one diagram session.
// It owns the render coordinator, viewport, reference selector and history,
// and routes source edits and pointer input between them.
package workspace

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/lienzo/internal/export"
	"github.com/rendis/lienzo/internal/history"
	"github.com/rendis/lienzo/internal/identity"
	"github.com/rendis/lienzo/internal/logging"
	"github.com/rendis/lienzo/internal/render"
	"github.com/rendis/lienzo/internal/scene"
	"github.com/rendis/lienzo/internal/selection"
	"github.com/rendis/lienzo/internal/store"
	"github.com/rendis/lienzo/internal/streaming"
	"github.com/rendis/lienzo/internal/theme"
	"github.com/rendis/lienzo/internal/viewport"
	"github.com/rendis/lienzo/pkg/schema"
)

const (
	DefaultViewWidth  = 1280.0
	DefaultViewHeight = 800.0
)

// Themes resolves and lists themes. *theme.Catalog satisfies it.
type Themes interface {
	Theme(id string) (schema.ThemeSpec, error)
	List() []schema.ThemeSpec
}

type config struct {
	sessionID    string
	source       string
	themeID      string
	width        float64
	height       float64
	hub          streaming.EventHub
	logger       *slog.Logger
	resolver     *identity.Resolver
	exporter     *export.Exporter
	store        store.Store
	delay        render.DelayFunc
	fitAttempts  int
	fitInterval  time.Duration
	historyLimit int
}

// Option configures a Workspace.
type Option func(*config)

// WithSessionID fixes the session id. A random one is generated otherwise.
func WithSessionID(id string) Option {
	return func(c *config) { c.sessionID = id }
}

// WithSource sets the initial diagram source.
func WithSource(source string) Option {
	return func(c *config) { c.source = source }
}

// WithTheme sets the initial theme id.
func WithTheme(id string) Option {
	return func(c *config) { c.themeID = id }
}

// WithViewSize sets the viewport's pixel size.
func WithViewSize(width, height float64) Option {
	return func(c *config) {
		if width > 0 && height > 0 {
			c.width, c.height = width, height
		}
	}
}

// WithHub publishes session events on hub.
func WithHub(hub streaming.EventHub) Option {
	return func(c *config) { c.hub = hub }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithResolver replaces the default identity resolver.
func WithResolver(r *identity.Resolver) Option {
	return func(c *config) { c.resolver = r }
}

// WithExporter replaces the default exporter.
func WithExporter(e *export.Exporter) Option {
	return func(c *config) { c.exporter = e }
}

// WithStore enables session persistence.
func WithStore(s store.Store) Option {
	return func(c *config) { c.store = s }
}

// WithDebounce replaces the render debounce policy.
func WithDebounce(fn render.DelayFunc) Option {
	return func(c *config) { c.delay = fn }
}

// WithFit tunes the auto-fit retry budget and measurement interval.
func WithFit(maxAttempts int, interval time.Duration) Option {
	return func(c *config) {
		c.fitAttempts = maxAttempts
		c.fitInterval = interval
	}
}

// WithHistoryLimit bounds the undo stack.
func WithHistoryLimit(n int) Option {
	return func(c *config) { c.historyLimit = n }
}

// Workspace serializes every mutation behind one mutex, standing in for a
// single UI event loop. Render outcomes arrive on the coordinator's
// goroutine and take the same lock.
type Workspace struct {
	id        string
	themes    Themes
	hub       streaming.EventHub
	logger    *slog.Logger
	store     store.Store
	exporter  *export.Exporter
	coord     *render.Coordinator
	createdAt time.Time

	fitAttempts int
	fitInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	name        string
	themeID     string
	history     *history.History
	view        *viewport.Viewport
	selector    *selection.Selector
	fitGen      uint64
	fitStatus   viewport.FitStatus
	fitCancel   context.CancelFunc
	pendingView *schema.ViewportState
	revision    uint64
	saved       uint64
	unsubscribe func()
	closed      bool
}

// New creates a workspace rendering through renderer. Nothing is rendered
// until Start.
func New(renderer render.Renderer, themes Themes, opts ...Option) (*Workspace, error) {
	cfg := config{
		themeID: theme.DefaultID,
		width:   DefaultViewWidth,
		height:  DefaultViewHeight,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.sessionID == "" {
		cfg.sessionID = uuid.NewString()
	}
	if _, err := themes.Theme(cfg.themeID); err != nil {
		return nil, err
	}
	logger := logging.OrDefault(cfg.logger).With("session_id", cfg.sessionID)
	if cfg.resolver == nil {
		cfg.resolver = identity.NewResolver()
	}
	if cfg.exporter == nil {
		cfg.exporter = export.New(nil, nil, logger)
	}

	ctx, cancel := context.WithCancel(logging.WithSessionID(context.Background(), cfg.sessionID))
	w := &Workspace{
		id:          cfg.sessionID,
		themes:      themes,
		hub:         cfg.hub,
		logger:      logger,
		store:       cfg.store,
		exporter:    cfg.exporter,
		createdAt:   time.Now().UTC(),
		fitAttempts: cfg.fitAttempts,
		fitInterval: cfg.fitInterval,
		ctx:         ctx,
		cancel:      cancel,
		themeID:     cfg.themeID,
		history:     history.NewWithLimit(cfg.source, cfg.historyLimit),
		view:        viewport.New(cfg.width, cfg.height),
		fitStatus:   viewport.FitPending,
	}
	w.selector = selection.NewSelector(cfg.resolver, w.view)

	copts := []render.Option{render.WithLogger(logger), render.WithDelay(cfg.delay)}
	if cfg.hub != nil {
		copts = append(copts, render.WithHub(cfg.hub, cfg.sessionID))
	}
	w.coord = render.New(renderer, themes, copts...)
	w.unsubscribe = w.coord.Subscribe(w.onOutcome)
	return w, nil
}

// ID returns the session id.
func (w *Workspace) ID() string { return w.id }

// Start renders the current source immediately.
func (w *Workspace) Start() {
	w.mu.Lock()
	src, th := w.history.Current(), w.themeID
	w.mu.Unlock()
	w.coord.RenderNow(src, th)
}

// Close stops rendering and any running auto-fit.
func (w *Workspace) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	if w.fitCancel != nil {
		w.fitCancel()
	}
	w.mu.Unlock()

	w.unsubscribe()
	w.coord.Close()
	w.cancel()
	w.wg.Wait()

	if f, ok := w.hub.(interface{ Forget(sessionID string) }); ok {
		f.Forget(w.id)
	}
}

// Settle waits until no render is scheduled or running and any auto-fit
// started by its outcome has finished.
func (w *Workspace) Settle(ctx context.Context) (schema.RenderOutcome, error) {
	o, err := w.coord.Settle(ctx)
	if err != nil {
		return o, err
	}
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return w.coord.Outcome(), nil
	case <-ctx.Done():
		return w.coord.Outcome(), ctx.Err()
	}
}

// --- Source, history and theme ---

// Source returns the current diagram source.
func (w *Workspace) Source() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.history.Current()
}

// SetSource replaces the source and schedules a debounced render. With
// skipHistory the undo stacks are left alone. It reports whether the
// source changed.
func (w *Workspace) SetSource(source string, skipHistory bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.history.Set(source, skipHistory) {
		return false
	}
	w.revision++
	w.coord.Request(source, w.themeID)
	w.emitHistoryLocked()
	return true
}

// Undo restores the previous source. It is a no-op on an empty past.
func (w *Workspace) Undo() bool {
	return w.step(w.history.Undo)
}

// Redo re-applies an undone source. It is a no-op on an empty future.
func (w *Workspace) Redo() bool {
	return w.step(w.history.Redo)
}

func (w *Workspace) step(move func() bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !move() {
		return false
	}
	w.revision++
	w.coord.Request(w.history.Current(), w.themeID)
	w.emitHistoryLocked()
	return true
}

// CanUndo reports whether Undo would change the source.
func (w *Workspace) CanUndo() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.history.CanUndo()
}

// CanRedo reports whether Redo would change the source.
func (w *Workspace) CanRedo() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.history.CanRedo()
}

// History returns a copy of the undo/redo state.
func (w *Workspace) History() history.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.history.Snapshot()
}

// ThemeID returns the active theme id.
func (w *Workspace) ThemeID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.themeID
}

// Themes lists the selectable themes.
func (w *Workspace) Themes() []schema.ThemeSpec {
	return w.themes.List()
}

// SetTheme switches the theme and re-renders immediately. Unknown ids fail
// with THEME_UNKNOWN and leave the theme unchanged.
func (w *Workspace) SetTheme(id string) error {
	if _, err := w.themes.Theme(id); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if id == w.themeID {
		return nil
	}
	w.themeID = id
	w.revision++
	w.coord.RenderNow(w.history.Current(), id)
	w.emitLocked(schema.EventThemeChanged, map[string]any{"theme_id": id})
	return nil
}

// Outcome returns the current render outcome.
func (w *Workspace) Outcome() schema.RenderOutcome {
	return w.coord.Outcome()
}

// Scene returns the current rendered scene without decorations, or nil.
func (w *Workspace) Scene() *scene.Scene {
	return render.SceneOf(w.coord.Outcome())
}

// Decorated returns a copy of the current scene with hover and selection
// markers applied, or nil when nothing is rendered.
func (w *Workspace) Decorated() *scene.Scene {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.selector.Scene() == nil {
		return nil
	}
	return w.selector.Decorated()
}

// Metrics returns the render coordinator counters.
func (w *Workspace) Metrics() render.Metrics {
	return w.coord.Metrics()
}

// --- Outcomes and auto-fit ---

// onOutcome runs on the render goroutine for every applied outcome.
func (w *Workspace) onOutcome(o schema.RenderOutcome) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.fitCancel != nil {
		w.fitCancel()
		w.fitCancel = nil
	}
	w.fitGen++

	if !o.Rendered() {
		// The error display replaces the scene; zoom and pan stay put.
		w.selector.SetScene(nil)
		w.fitStatus = viewport.FitPending
		return
	}

	sc := render.SceneOf(o)
	w.selector.SetScene(sc)
	if w.pendingView != nil {
		v := *w.pendingView
		w.pendingView = nil
		w.view.SetState(v)
		w.fitStatus = viewport.FitDone
		w.emitLocked(schema.EventViewportChanged, w.view.State())
		return
	}

	w.view.Reset()
	w.fitStatus = viewport.FitPending
	w.emitLocked(schema.EventViewportChanged, w.view.State())

	ctx, cancel := context.WithCancel(w.ctx)
	w.fitCancel = cancel
	gen := w.fitGen
	w.wg.Add(1)
	go w.autoFit(ctx, cancel, gen, sc)
}

func (w *Workspace) autoFit(ctx context.Context, cancel context.CancelFunc, gen uint64, sc *scene.Scene) {
	defer w.wg.Done()
	defer cancel()

	fit := viewport.NewAutoFit(w.fitAttempts)
	status := fit.Run(ctx, w.fitInterval, sc.Measure, func() (float64, float64) {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.view.Size()
	})

	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.fitGen || w.closed {
		return
	}
	w.fitStatus = status
	switch status {
	case viewport.FitDone:
		w.view.SetZoom(fit.Zoom())
		w.logger.Debug("auto-fit done", "zoom", fit.Zoom(), "attempts", fit.Attempts())
		w.emitLocked(schema.EventAutoFitDone, map[string]any{"zoom": fit.Zoom(), "attempts": fit.Attempts()})
		w.emitLocked(schema.EventViewportChanged, w.view.State())
	case viewport.FitGaveUp:
		w.logger.Debug("auto-fit gave up", "attempts", fit.Attempts())
		w.emitLocked(schema.EventAutoFitGaveUp, map[string]any{"attempts": fit.Attempts()})
	}
}

// FitStatus reports the auto-fit state for the current scene.
func (w *Workspace) FitStatus() viewport.FitStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fitStatus
}

// --- Viewport ---

// Viewport returns the current zoom and pan.
func (w *Workspace) Viewport() schema.ViewportState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.view.State()
}

// ViewSize returns the viewport's pixel size.
func (w *Workspace) ViewSize() (float64, float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.view.Size()
}

// SetViewSize records a resize of the display surface.
func (w *Workspace) SetViewSize(width, height float64) {
	if width <= 0 || height <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.view.SetSize(width, height)
}

// ZoomIn zooms in, anchored at cursor when non-nil.
func (w *Workspace) ZoomIn(cursor *schema.Point) schema.ViewportState {
	return w.viewOp(func(v *viewport.Viewport) { v.ZoomIn(cursor) })
}

// ZoomOut zooms out, anchored at cursor when non-nil.
func (w *Workspace) ZoomOut(cursor *schema.Point) schema.ViewportState {
	return w.viewOp(func(v *viewport.Viewport) { v.ZoomOut(cursor) })
}

// ResetView returns to zoom 1 without pan.
func (w *Workspace) ResetView() schema.ViewportState {
	return w.viewOp(func(v *viewport.Viewport) { v.Reset() })
}

func (w *Workspace) viewOp(fn func(*viewport.Viewport)) schema.ViewportState {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(w.view)
	st := w.view.State()
	w.emitLocked(schema.EventViewportChanged, st)
	return st
}

// --- References ---

// ReferenceMode reports whether reference mode is on.
func (w *Workspace) ReferenceMode() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selector.Mode()
}

// SetReferenceMode toggles reference mode. Turning it off keeps the
// accumulated references.
func (w *Workspace) SetReferenceMode(on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.selector.SetMode(on)
}

// References returns the pending references in insertion order.
func (w *Workspace) References() []schema.NodeReference {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selector.References()
}

// AddReferences appends references not already pending and returns those
// added.
func (w *Workspace) AddReferences(refs ...schema.NodeReference) []schema.NodeReference {
	w.mu.Lock()
	defer w.mu.Unlock()
	added := w.selector.Add(refs...)
	if len(added) > 0 {
		w.referencesChangedLocked("added", len(added))
	}
	return added
}

// RemoveReference drops one pending reference.
func (w *Workspace) RemoveReference(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.selector.Remove(id) {
		return false
	}
	w.referencesChangedLocked("removed", 1)
	return true
}

// ClearReferences drops every pending reference.
func (w *Workspace) ClearReferences() {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := len(w.selector.References())
	w.selector.Clear()
	if n > 0 {
		w.referencesChangedLocked("cleared", n)
	}
}

func (w *Workspace) referencesChangedLocked(change string, n int) {
	w.revision++
	w.emitLocked(schema.EventReferencesChanged, map[string]any{
		"change": change,
		"count":  n,
		"total":  len(w.selector.References()),
	})
}

// Node is a logical node of the current scene.
type Node struct {
	schema.NodeReference
	Bounds scene.Rect `json:"bounds"`
}

// Nodes lists the logical nodes of the current scene in document order.
func (w *Workspace) Nodes() []Node {
	w.mu.Lock()
	sc := w.selector.Scene()
	resolver := w.selector.Resolver()
	w.mu.Unlock()

	var out []Node
	for _, c := range selection.Candidates(sc, resolver) {
		out = append(out, Node{NodeReference: resolver.Reference(c.Classification), Bounds: c.Bounds})
	}
	return out
}

// --- Export ---

// Export produces an artifact of the current scene. Decorations are not
// part of it.
func (w *Workspace) Export(ctx context.Context, format export.Format, opts export.Options) (*export.Artifact, error) {
	ctx = logging.WithSessionID(ctx, w.id)
	return w.exporter.Export(ctx, w.Scene(), format, opts)
}

// --- Status ---

// Status is a point-in-time summary of the workspace.
type Status struct {
	SessionID     string               `json:"session_id"`
	Outcome       schema.RenderOutcome `json:"outcome"`
	ThemeID       string               `json:"theme_id"`
	Viewport      schema.ViewportState `json:"viewport"`
	ViewWidth     float64              `json:"view_width"`
	ViewHeight    float64              `json:"view_height"`
	Fit           string               `json:"fit"`
	CanUndo       bool                 `json:"can_undo"`
	CanRedo       bool                 `json:"can_redo"`
	ReferenceMode bool                 `json:"reference_mode"`
	References    int                  `json:"references"`
	Dirty         bool                 `json:"dirty"`
	Render        render.Metrics       `json:"render"`
}

// Status summarizes the workspace.
func (w *Workspace) Status() Status {
	outcome := w.coord.Outcome()
	metrics := w.coord.Metrics()
	w.mu.Lock()
	defer w.mu.Unlock()
	vw, vh := w.view.Size()
	return Status{
		SessionID:     w.id,
		Outcome:       outcome,
		ThemeID:       w.themeID,
		Viewport:      w.view.State(),
		ViewWidth:     vw,
		ViewHeight:    vh,
		Fit:           w.fitStatus.String(),
		CanUndo:       w.history.CanUndo(),
		CanRedo:       w.history.CanRedo(),
		ReferenceMode: w.selector.Mode(),
		References:    len(w.selector.References()),
		Dirty:         w.revision != w.saved,
		Render:        metrics,
	}
}

// --- Events ---

func (w *Workspace) emitHistoryLocked() {
	w.emitLocked(schema.EventHistoryChanged, map[string]any{
		"can_undo": w.history.CanUndo(),
		"can_redo": w.history.CanRedo(),
	})
}

func (w *Workspace) emitLocked(eventType string, payload any) {
	if err := streaming.Emit(w.ctx, w.hub, w.id, eventType, payload); err != nil {
		w.logger.Debug("event publish failed", "event", eventType, "error", err)
	}
}
