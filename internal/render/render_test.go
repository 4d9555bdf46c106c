package render

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/lienzo/internal/scene"
	"github.com/rendis/lienzo/internal/streaming"
	"github.com/rendis/lienzo/pkg/schema"
)

type themeMap map[string]schema.ThemeSpec

func (m themeMap) Theme(id string) (schema.ThemeSpec, error) {
	t, ok := m[id]
	if !ok {
		return schema.ThemeSpec{}, schema.NewErrorf(schema.ErrCodeTheme, "unknown theme %q", id)
	}
	return t, nil
}

var testThemes = themeMap{
	"default": {ID: "default", Base: "default"},
	"dark":    {ID: "dark", Base: "dark", Variables: map[string]string{"primaryColor": "#000"}},
}

// recordingRenderer records every call and optionally blocks until released.
type recordingRenderer struct {
	mu      sync.Mutex
	calls   []string
	targets []string
	started chan string
	gate    chan struct{}
	fail    error
}

func newRecordingRenderer() *recordingRenderer {
	return &recordingRenderer{started: make(chan string, 16)}
}

func (r *recordingRenderer) Render(ctx context.Context, source, targetID string) (*scene.Scene, error) {
	r.mu.Lock()
	r.calls = append(r.calls, StripDirectives(source))
	r.targets = append(r.targets, targetID)
	gate := r.gate
	fail := r.fail
	r.mu.Unlock()

	r.started <- source
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil {
		return nil, fail
	}
	return scene.New("", scene.NewElement("svg")), nil
}

func (r *recordingRenderer) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func fixedDelay(d time.Duration) DelayFunc {
	return func(string) time.Duration { return d }
}

func settle(t *testing.T, c *Coordinator) schema.RenderOutcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := c.Settle(ctx)
	require.NoError(t, err)
	return out
}

func waitStarted(t *testing.T, r *recordingRenderer) string {
	t.Helper()
	select {
	case src := <-r.started:
		return src
	case <-time.After(5 * time.Second):
		t.Fatal("render did not start")
		return ""
	}
}

// --- Debounce ---

func TestDebounceDelayTiers(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   time.Duration
	}{
		{"small", "graph TD\nA-->B", 300 * time.Millisecond},
		{"20 lines", strings.Repeat("A-->B\n", 19), 350 * time.Millisecond},
		{"500 chars", strings.Repeat("x", 500), 350 * time.Millisecond},
		{"50 lines", strings.Repeat("A\n", 49), 500 * time.Millisecond},
		{"1000 chars", strings.Repeat("y", 1000), 500 * time.Millisecond},
		{"100 lines", strings.Repeat("A\n", 99), 800 * time.Millisecond},
		{"2000 chars", strings.Repeat("z", 2000), 800 * time.Millisecond},
		{"multibyte chars counted once", strings.Repeat("é", 499), 300 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DebounceDelay(tt.source))
		})
	}
}

func TestBurstRendersOnceWithLastValue(t *testing.T) {
	r := newRecordingRenderer()
	c := New(r, testThemes, WithDelay(fixedDelay(40*time.Millisecond)))
	defer c.Close()

	for _, v := range []string{"graph TD\nA", "graph TD\nA-", "graph TD\nA-->", "graph TD\nA-->B"} {
		c.Request(v, "default")
	}
	out := settle(t, c)

	assert.Equal(t, []string{"graph TD\nA-->B"}, r.Calls())
	require.True(t, out.Rendered())
	assert.Equal(t, "graph TD\nA-->B", out.Source)
	assert.Equal(t, uint64(1), out.Seq)
	assert.Equal(t, uint64(4), c.Metrics().Requests)
}

// --- Single-flight ---

func TestSingleFlightCoalescesToLatest(t *testing.T) {
	r := newRecordingRenderer()
	r.gate = make(chan struct{})
	c := New(r, testThemes)
	defer c.Close()

	c.RenderNow("v1", "default")
	waitStarted(t, r)

	for _, v := range []string{"v2", "v3", "v4", "v5"} {
		c.RenderNow(v, "default")
	}
	assert.Equal(t, []string{"v1"}, r.Calls(), "no second render while one is in flight")

	close(r.gate)
	out := settle(t, c)

	assert.Equal(t, []string{"v1", "v5"}, r.Calls())
	assert.Equal(t, "v5", out.Source)
	assert.Equal(t, uint64(2), out.Seq)
	assert.Equal(t, uint64(3), c.Metrics().Coalesced)
	assert.Equal(t, uint64(2), c.Metrics().Renders)
}

func TestPendingIdenticalToRenderedIsDropped(t *testing.T) {
	r := newRecordingRenderer()
	r.gate = make(chan struct{})
	c := New(r, testThemes)
	defer c.Close()

	c.RenderNow("same", "default")
	waitStarted(t, r)
	c.RenderNow("same", "default")
	close(r.gate)
	settle(t, c)

	assert.Equal(t, []string{"same"}, r.Calls())
}

func TestThemeChangeIsNotIdentical(t *testing.T) {
	r := newRecordingRenderer()
	r.gate = make(chan struct{})
	c := New(r, testThemes)
	defer c.Close()

	c.RenderNow("same", "default")
	waitStarted(t, r)
	c.RenderNow("same", "dark")
	close(r.gate)
	out := settle(t, c)

	assert.Len(t, r.Calls(), 2)
	assert.Equal(t, "dark", out.ThemeID)
}

func TestRequestWhileInFlightIsDebouncedThenCoalesced(t *testing.T) {
	r := newRecordingRenderer()
	r.gate = make(chan struct{})
	c := New(r, testThemes, WithDelay(fixedDelay(10*time.Millisecond)))
	defer c.Close()

	c.RenderNow("v1", "default")
	waitStarted(t, r)
	c.Request("v2", "default")
	// Let the debounce fire into the pending slot.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"v1"}, r.Calls())

	close(r.gate)
	out := settle(t, c)
	assert.Equal(t, []string{"v1", "v2"}, r.Calls())
	assert.Equal(t, "v2", out.Source)
}

// --- Outcomes ---

func TestFailureIsSurfacedVerbatim(t *testing.T) {
	r := newRecordingRenderer()
	r.fail = errors.New("Parse error: bad token")
	c := New(r, testThemes)
	defer c.Close()

	c.RenderNow("graph TD\nA-->", "default")
	out := settle(t, c)

	require.True(t, out.Failed())
	assert.Equal(t, "Parse error: bad token", out.Message)
	assert.Nil(t, SceneOf(out))
	assert.Equal(t, uint64(1), c.Metrics().Failures)
}

func TestFailureReplacesPreviousScene(t *testing.T) {
	r := newRecordingRenderer()
	c := New(r, testThemes)
	defer c.Close()

	c.RenderNow("ok", "default")
	require.True(t, settle(t, c).Rendered())

	r.mu.Lock()
	r.fail = errors.New("Parse error: bad token")
	r.mu.Unlock()
	c.RenderNow("broken", "default")
	out := settle(t, c)
	assert.True(t, out.Failed())
	assert.Equal(t, uint64(2), out.Seq)
}

func TestPanicBecomesFailure(t *testing.T) {
	c := New(RendererFunc(func(context.Context, string, string) (*scene.Scene, error) {
		panic("boom")
	}), testThemes)
	defer c.Close()

	c.RenderNow("graph TD", "default")
	out := settle(t, c)
	require.True(t, out.Failed())
	assert.Equal(t, "renderer panic: boom", out.Message)
}

func TestNilSceneBecomesFailure(t *testing.T) {
	c := New(RendererFunc(func(context.Context, string, string) (*scene.Scene, error) {
		return nil, nil
	}), testThemes)
	defer c.Close()

	c.RenderNow("graph TD", "default")
	assert.Equal(t, "renderer returned no scene", settle(t, c).Message)
}

func TestUnknownThemeFails(t *testing.T) {
	r := newRecordingRenderer()
	c := New(r, testThemes)
	defer c.Close()

	c.RenderNow("graph TD", "neon")
	out := settle(t, c)
	require.True(t, out.Failed())
	assert.Contains(t, out.Message, "THEME_UNKNOWN")
	assert.Empty(t, r.Calls())
}

func TestRendererReceivesThemedSourceAndTarget(t *testing.T) {
	r := newRecordingRenderer()
	c := New(r, testThemes)
	defer c.Close()

	c.RenderNow("%%{init: {\"theme\":\"forest\"}}%%\ngraph TD\nA-->B", "dark")
	out := settle(t, c)
	require.True(t, out.Rendered())

	src := waitStarted(t, r)
	lines := strings.Split(src, "\n")
	assert.Equal(t, `%%{init: {"theme":"dark","themeVariables":{"primaryColor":"#000"}}}%%`, lines[0])
	assert.Equal(t, 1, strings.Count(src, "%%{init"))
	assert.Equal(t, "graph TD", lines[1])
	assert.Equal(t, "diagram-1", SceneOf(out).TargetID)
}

func TestSubscribeReceivesOutcomesInOrder(t *testing.T) {
	r := newRecordingRenderer()
	c := New(r, testThemes)
	defer c.Close()

	var mu sync.Mutex
	var seqs []uint64
	unsubscribe := c.Subscribe(func(o schema.RenderOutcome) {
		mu.Lock()
		seqs = append(seqs, o.Seq)
		mu.Unlock()
	})

	c.RenderNow("a", "default")
	settle(t, c)
	c.RenderNow("b", "default")
	settle(t, c)
	unsubscribe()
	c.RenderNow("c", "default")
	settle(t, c)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1, 2}, seqs)
}

func TestStaleOutcomeNeverOverwritesNewer(t *testing.T) {
	c := New(newRecordingRenderer(), testThemes)
	defer c.Close()

	c.apply(schema.RenderOutcome{Status: schema.OutcomeRendered, Seq: 5, Source: "new"})
	c.apply(schema.RenderOutcome{Status: schema.OutcomeFailed, Seq: 3, Source: "old"})

	out := c.Outcome()
	assert.Equal(t, uint64(5), out.Seq)
	assert.Equal(t, "new", out.Source)
}

func TestInitialOutcomeIsNone(t *testing.T) {
	c := New(newRecordingRenderer(), testThemes)
	defer c.Close()
	assert.Equal(t, schema.OutcomeNone, c.Outcome().Status)
	assert.Equal(t, schema.OutcomeNone, settle(t, c).Status)
}

func TestPublishesRenderEvents(t *testing.T) {
	hub := streaming.NewMemoryHub()
	events, cancel, err := hub.Subscribe(context.Background(), streaming.EventFilter{EventTypes: []string{"render.*"}})
	require.NoError(t, err)
	defer cancel()

	c := New(newRecordingRenderer(), testThemes, WithHub(hub, "sess-1"))
	defer c.Close()
	c.RenderNow("graph TD", "default")
	settle(t, c)

	var got []string
	for len(got) < 2 {
		select {
		case e := <-events:
			assert.Equal(t, "sess-1", e.SessionID)
			got = append(got, e.EventType)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for render events")
		}
	}
	assert.Equal(t, []string{schema.EventRenderStarted, schema.EventRenderSucceeded}, got)
}

func TestCloseDropsScheduledRender(t *testing.T) {
	r := newRecordingRenderer()
	c := New(r, testThemes, WithDelay(fixedDelay(30*time.Millisecond)))
	c.Request("late", "default")
	c.Close()

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, r.Calls())
	c.Request("after close", "default")
	assert.Equal(t, uint64(1), c.Metrics().Requests)
}

func TestCloseCancelsInFlightRender(t *testing.T) {
	r := newRecordingRenderer()
	r.gate = make(chan struct{})
	c := New(r, testThemes)

	c.RenderNow("slow", "default")
	waitStarted(t, r)
	c.Close()

	out := c.Outcome()
	require.True(t, out.Failed())
	assert.Equal(t, context.Canceled.Error(), out.Message)
}
