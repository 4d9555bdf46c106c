package workspace

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/lienzo/internal/export"
	"github.com/rendis/lienzo/internal/render"
	"github.com/rendis/lienzo/internal/scene"
	"github.com/rendis/lienzo/internal/store"
	"github.com/rendis/lienzo/internal/streaming"
	"github.com/rendis/lienzo/internal/theme"
	"github.com/rendis/lienzo/internal/viewport"
	"github.com/rendis/lienzo/pkg/schema"
)

const testSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 400 400">
  <g class="nodes">
    <g class="node" id="flowchart-A-0" transform="translate(10,10)">
      <rect width="20" height="20"/><text x="2" y="14">A</text>
    </g>
    <g class="node" id="flowchart-B-1" transform="translate(200,200)">
      <polygon points="10,0 20,10 10,20 0,10"/><text x="2" y="14">B</text>
    </g>
  </g>
</svg>`

// stubRenderer returns testSVG for any source without "bad" in it.
var stubRenderer = render.RendererFunc(func(_ context.Context, source, targetID string) (*scene.Scene, error) {
	if strings.Contains(render.StripDirectives(source), "bad") {
		return nil, errors.New("Parse error: bad token")
	}
	return scene.FromSVG(targetID, testSVG)
})

func fastDebounce(string) time.Duration { return time.Millisecond }

func newTestWorkspace(t *testing.T, opts ...Option) *Workspace {
	t.Helper()
	base := []Option{
		WithSource("flowchart TD\n  A --> B"),
		WithDebounce(fastDebounce),
		WithFit(viewport.DefaultMaxAttempts, time.Millisecond),
		WithViewSize(800, 600),
	}
	w, err := New(stubRenderer, theme.NewCatalog(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w
}

func settle(t *testing.T, w *Workspace) schema.RenderOutcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	o, err := w.Settle(ctx)
	require.NoError(t, err)
	return o
}

func TestNew_UnknownTheme(t *testing.T) {
	_, err := New(stubRenderer, theme.NewCatalog(), WithTheme("sepia"))
	assert.True(t, schema.HasCode(err, schema.ErrCodeTheme))
}

func TestStart_RendersAndAutoFits(t *testing.T) {
	w := newTestWorkspace(t)
	w.Start()
	o := settle(t, w)

	require.True(t, o.Rendered())
	assert.Equal(t, viewport.FitDone, w.FitStatus())
	// 400x400 in 800x600: min(760/400, 560/400) * 0.9
	assert.InDelta(t, 1.26, w.Viewport().Zoom, 1e-9)
	assert.Equal(t, schema.Point{}, w.Viewport().Pan)
	assert.Len(t, w.Nodes(), 2)
}

func TestSetSource_HistoryAndRender(t *testing.T) {
	w := newTestWorkspace(t)
	w.Start()
	settle(t, w)

	assert.False(t, w.SetSource("flowchart TD\n  A --> B", false), "unchanged source is a no-op")
	require.True(t, w.SetSource("flowchart TD\n  A --> C", false))
	assert.True(t, w.CanUndo())
	settle(t, w)
	assert.Equal(t, "flowchart TD\n  A --> C", w.Outcome().Source)

	require.True(t, w.Undo())
	assert.Equal(t, "flowchart TD\n  A --> B", w.Source())
	assert.True(t, w.CanRedo())
	settle(t, w)
	assert.Equal(t, "flowchart TD\n  A --> B", w.Outcome().Source)

	require.True(t, w.Redo())
	assert.False(t, w.Redo())
	assert.Equal(t, "flowchart TD\n  A --> C", w.Source())

	require.True(t, w.SetSource("streamed", true))
	h := w.History()
	assert.Equal(t, []string{"flowchart TD\n  A --> B"}, h.Past, "skipHistory leaves the stacks alone")
}

func TestFailure_KeepsViewport(t *testing.T) {
	w := newTestWorkspace(t)
	w.Start()
	settle(t, w)

	w.ZoomIn(&schema.Point{X: 100, Y: 100})
	before := w.Viewport()

	w.SetSource("flowchart TD\n  bad", false)
	o := settle(t, w)

	require.True(t, o.Failed())
	assert.Equal(t, "Parse error: bad token", o.Message)
	assert.Equal(t, before, w.Viewport())
	assert.Nil(t, w.Decorated())
	assert.Empty(t, w.Nodes())
}

func TestSetTheme(t *testing.T) {
	w := newTestWorkspace(t)
	w.Start()
	settle(t, w)

	err := w.SetTheme("sepia")
	assert.True(t, schema.HasCode(err, schema.ErrCodeTheme))
	assert.Equal(t, theme.DefaultID, w.ThemeID())

	require.NoError(t, w.SetTheme("dark"))
	o := settle(t, w)
	assert.Equal(t, "dark", w.ThemeID())
	assert.Equal(t, "dark", o.ThemeID)
}

func TestPointer_PanOutsideReferenceMode(t *testing.T) {
	w := newTestWorkspace(t)
	w.Start()
	settle(t, w)
	w.ResetView()

	_, err := w.Pointer(PointerEvent{Type: PointerDown, X: 50, Y: 50})
	require.NoError(t, err)
	res, err := w.Pointer(PointerEvent{Type: PointerMove, X: 60, Y: 45})
	require.NoError(t, err)
	assert.True(t, res.ViewportChanged)
	assert.Equal(t, schema.Point{X: 10, Y: -5}, res.Viewport.Pan)

	_, err = w.Pointer(PointerEvent{Type: PointerUp, X: 60, Y: 45})
	require.NoError(t, err)
	res, err = w.Pointer(PointerEvent{Type: PointerMove, X: 90, Y: 90})
	require.NoError(t, err)
	assert.False(t, res.ViewportChanged)

	res, err = w.Pointer(PointerEvent{Type: PointerClick, X: 25, Y: 20})
	require.NoError(t, err)
	assert.Nil(t, res.Click, "clicks do nothing outside reference mode")
}

func TestPointer_ReferenceMode(t *testing.T) {
	w := newTestWorkspace(t)
	w.Start()
	settle(t, w)
	w.ResetView()
	w.SetReferenceMode(true)

	res, err := w.Pointer(PointerEvent{Type: PointerClick, X: 15, Y: 15})
	require.NoError(t, err)
	require.NotNil(t, res.Click)
	assert.True(t, res.Click.Added)
	assert.Equal(t, "A", res.Click.Reference.NodeText)
	assert.Equal(t, 1, res.References)

	// Box over B only, starting on empty canvas.
	_, err = w.Pointer(PointerEvent{Type: PointerDown, X: 150, Y: 150})
	require.NoError(t, err)
	res, err = w.Pointer(PointerEvent{Type: PointerMove, X: 250, Y: 250})
	require.NoError(t, err)
	require.NotNil(t, res.Box)
	assert.Equal(t, schema.SelectionBox{StartX: 150, StartY: 150, EndX: 250, EndY: 250}, *res.Box)
	assert.False(t, res.ViewportChanged, "primary button selects in reference mode")

	res, err = w.Pointer(PointerEvent{Type: PointerUp, X: 250, Y: 250})
	require.NoError(t, err)
	require.Len(t, res.Added, 1)
	assert.Equal(t, "B", res.Added[0].NodeText)
	assert.Nil(t, res.Box)

	refs := w.References()
	require.Len(t, refs, 2)
	assert.Equal(t, "A", refs[0].NodeText)

	// Middle button still pans.
	_, err = w.Pointer(PointerEvent{Type: PointerDown, X: 0, Y: 0, Button: ButtonMiddle})
	require.NoError(t, err)
	res, err = w.Pointer(PointerEvent{Type: PointerMove, X: 5, Y: 5})
	require.NoError(t, err)
	assert.True(t, res.ViewportChanged)
	_, err = w.Pointer(PointerEvent{Type: PointerUp, X: 5, Y: 5})
	require.NoError(t, err)

	_, err = w.Pointer(PointerEvent{Type: PointerEscape})
	require.NoError(t, err)
	assert.False(t, w.ReferenceMode())
	assert.Len(t, w.References(), 2, "escape keeps references")

	assert.True(t, w.RemoveReference(refs[0].NodeID))
	assert.False(t, w.RemoveReference(refs[0].NodeID))
	w.ClearReferences()
	assert.Empty(t, w.References())
}

func TestPointer_Wheel(t *testing.T) {
	w := newTestWorkspace(t)
	w.Start()
	settle(t, w)
	w.ResetView()

	res, err := w.Pointer(PointerEvent{Type: PointerWheel, X: 100, Y: 100, DeltaY: -1})
	require.NoError(t, err)
	assert.True(t, res.ViewportChanged)
	assert.InDelta(t, 1.1, res.Viewport.Zoom, 1e-9)

	res, err = w.Pointer(PointerEvent{Type: PointerWheel, X: 100, Y: 100})
	require.NoError(t, err)
	assert.False(t, res.ViewportChanged)
}

func TestPointer_UnknownType(t *testing.T) {
	w := newTestWorkspace(t)
	_, err := w.Pointer(PointerEvent{Type: "hover"})
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

func TestReferences_SurviveRerender(t *testing.T) {
	w := newTestWorkspace(t)
	w.Start()
	settle(t, w)
	w.ResetView()
	w.SetReferenceMode(true)
	res, err := w.Pointer(PointerEvent{Type: PointerClick, X: 15, Y: 15})
	require.NoError(t, err)
	id := res.Click.Reference.NodeID

	w.SetSource("flowchart TD\n  A --> B\n  B --> C", false)
	settle(t, w)

	require.Len(t, w.References(), 1)
	var ids []string
	for _, n := range w.Nodes() {
		ids = append(ids, n.NodeID)
	}
	assert.Contains(t, ids, id, "stable id resolves against the new scene")
}

func TestAddReferences(t *testing.T) {
	w := newTestWorkspace(t)
	refs := []schema.NodeReference{{NodeID: "n1", NodeText: "A"}, {NodeID: "n1", NodeText: "A"}, {NodeID: "n2", NodeText: "B"}}
	added := w.AddReferences(refs...)
	assert.Len(t, added, 2)
	assert.Empty(t, w.AddReferences(refs[0]))
}

func TestEventsPublished(t *testing.T) {
	hub := streaming.NewMemoryHub()
	w := newTestWorkspace(t, WithHub(hub), WithSessionID("s-1"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, unsub, err := hub.Subscribe(ctx, streaming.EventFilter{SessionID: "s-1"})
	require.NoError(t, err)
	defer unsub()

	w.Start()
	settle(t, w)
	w.SetSource("flowchart LR\n  X --> Y", false)
	settle(t, w)

	seen := map[string]bool{}
	timeout := time.After(2 * time.Second)
	for !(seen[schema.EventRenderSucceeded] && seen[schema.EventAutoFitDone] && seen[schema.EventHistoryChanged]) {
		select {
		case ev := <-ch:
			seen[ev.EventType] = true
		case <-timeout:
			t.Fatalf("missing events, saw %v", seen)
		}
	}
}

func TestExport(t *testing.T) {
	w := newTestWorkspace(t)
	ctx := context.Background()

	_, err := w.Export(ctx, export.FormatPNG, export.Options{})
	assert.True(t, schema.HasCode(err, schema.ErrCodeNoScene))

	w.Start()
	settle(t, w)
	w.SetReferenceMode(true)
	_, err = w.Pointer(PointerEvent{Type: PointerClick, X: 15 * 1.26, Y: 15 * 1.26})
	require.NoError(t, err)

	a, err := w.Export(ctx, export.FormatSVG, export.Options{})
	require.NoError(t, err)
	assert.Equal(t, "image/svg+xml", a.MediaType)
	assert.NotContains(t, string(a.Data), "lienzo-selected", "exports carry no decorations")

	decorated := w.Decorated()
	require.NotNil(t, decorated)
	assert.Contains(t, decorated.Markup(), "lienzo-selected")
}

// --- Sessions ---

func newTestStore(t *testing.T) *store.LibSQLStore {
	t.Helper()
	s, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSave_WithoutStore(t *testing.T) {
	w := newTestWorkspace(t)
	err := w.Save(context.Background())
	assert.True(t, schema.HasCode(err, schema.ErrCodeStore))
	saved, err := w.Autosave(context.Background())
	require.NoError(t, err)
	assert.False(t, saved)
}

func TestSaveAndRestore(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	w := newTestWorkspace(t, WithStore(st), WithSessionID("s-1"))
	w.Start()
	settle(t, w)
	w.SetName("review")
	w.SetSource("flowchart TD\n  A --> B --> C", false)
	settle(t, w)
	require.NoError(t, w.SetTheme("forest"))
	settle(t, w)
	w.AddReferences(schema.NodeReference{NodeID: "n1", NodeText: "A"})
	w.ZoomOut(nil)
	view := w.Viewport()

	assert.True(t, w.Dirty())
	saved, err := w.Autosave(ctx)
	require.NoError(t, err)
	assert.True(t, saved)
	assert.False(t, w.Dirty())
	saved, err = w.Autosave(ctx)
	require.NoError(t, err)
	assert.False(t, saved, "clean workspace is not saved again")

	restored := newTestWorkspace(t, WithStore(st), WithSessionID("s-1"))
	require.NoError(t, restored.Restore(ctx))
	o := settle(t, restored)

	require.True(t, o.Rendered())
	assert.Equal(t, "review", restored.Name())
	assert.Equal(t, "flowchart TD\n  A --> B --> C", restored.Source())
	assert.Equal(t, "forest", restored.ThemeID())
	assert.True(t, restored.CanUndo())
	assert.Equal(t, []schema.NodeReference{{NodeID: "n1", NodeText: "A"}}, restored.References())
	assert.Equal(t, view, restored.Viewport(), "saved viewport replaces auto-fit")
	assert.False(t, restored.Dirty())
}

func TestRestore_NotFound(t *testing.T) {
	w := newTestWorkspace(t, WithStore(newTestStore(t)), WithSessionID("missing"))
	err := w.Restore(context.Background())
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestStatus(t *testing.T) {
	w := newTestWorkspace(t, WithSessionID("s-9"))
	w.Start()
	settle(t, w)
	w.SetSource("flowchart TD\n  A --> Z", false)
	settle(t, w)

	st := w.Status()
	assert.Equal(t, "s-9", st.SessionID)
	assert.Equal(t, schema.OutcomeRendered, st.Outcome.Status)
	assert.Equal(t, "done", st.Fit)
	assert.True(t, st.CanUndo)
	assert.True(t, st.Dirty)
	assert.Equal(t, 800.0, st.ViewWidth)
	assert.GreaterOrEqual(t, st.Render.Renders, uint64(2))
}
