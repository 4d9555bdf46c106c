// Package render coordinates diagram renders: it debounces source edits by
// complexity, keeps at most one render in flight, coalesces pending work and
// applies outcomes strictly in request order.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rendis/lienzo/internal/logging"
	"github.com/rendis/lienzo/internal/scene"
	"github.com/rendis/lienzo/internal/streaming"
	"github.com/rendis/lienzo/pkg/schema"
)

// Renderer is the external render capability. It receives source with the
// theme directive already applied and the id of the render target.
type Renderer interface {
	Render(ctx context.Context, source, targetID string) (*scene.Scene, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, source, targetID string) (*scene.Scene, error)

func (f RendererFunc) Render(ctx context.Context, source, targetID string) (*scene.Scene, error) {
	return f(ctx, source, targetID)
}

// ThemeLookup resolves a theme id.
type ThemeLookup interface {
	Theme(id string) (schema.ThemeSpec, error)
}

// Request is one source/theme pair to render.
type Request struct {
	Source  string
	ThemeID string
}

// Metrics counts coordinator activity.
type Metrics struct {
	Requests     uint64        `json:"requests"`
	Renders      uint64        `json:"renders"`
	Coalesced    uint64        `json:"coalesced"`
	Failures     uint64        `json:"failures"`
	LastDuration time.Duration `json:"last_duration_ns"`
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithDelay replaces DebounceDelay.
func WithDelay(fn DelayFunc) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.delay = fn
		}
	}
}

// WithHub publishes render events for sessionID on hub.
func WithHub(hub streaming.EventHub, sessionID string) Option {
	return func(c *Coordinator) {
		c.hub = hub
		c.sessionID = sessionID
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logging.OrDefault(logger) }
}

// Coordinator serializes render requests against a Renderer.
type Coordinator struct {
	renderer  Renderer
	themes    ThemeLookup
	delay     DelayFunc
	hub       streaming.EventHub
	sessionID string
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	timer    *time.Timer
	timerGen uint64
	armed    bool
	inFlight bool
	pending  *Request
	seq      uint64
	applied  uint64
	outcome  schema.RenderOutcome
	metrics  Metrics
	closed   bool

	subs    map[uint64]func(schema.RenderOutcome)
	nextSub uint64

	idle       chan struct{}
	idleClosed bool
}

// New creates a coordinator. The current outcome starts as OutcomeNone.
func New(renderer Renderer, themes ThemeLookup, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		renderer: renderer,
		themes:   themes,
		delay:    DebounceDelay,
		logger:   slog.Default(),
		ctx:      ctx,
		cancel:   cancel,
		outcome:  schema.RenderOutcome{Status: schema.OutcomeNone},
		subs:     make(map[uint64]func(schema.RenderOutcome)),
		idle:     make(chan struct{}),
	}
	close(c.idle)
	c.idleClosed = true
	for _, o := range opts {
		o(c)
	}
	return c
}

// Request schedules a render of source after the debounce delay. Each call
// cancels the previously scheduled one, so only the last request of a burst
// fires.
func (c *Coordinator) Request(source, themeID string) {
	req := Request{Source: source, ThemeID: themeID}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.metrics.Requests++
	c.disarmLocked()
	c.timerGen++
	gen := c.timerGen
	c.armed = true
	c.timer = time.AfterFunc(c.delay(source), func() { c.fire(gen, req) })
	c.updateIdleLocked()
}

// RenderNow dispatches a render immediately, superseding any scheduled one.
func (c *Coordinator) RenderNow(source, themeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.metrics.Requests++
	c.disarmLocked()
	c.dispatchLocked(Request{Source: source, ThemeID: themeID})
	c.updateIdleLocked()
}

// Outcome returns the current render outcome.
func (c *Coordinator) Outcome() schema.RenderOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

// Metrics returns a copy of the activity counters.
func (c *Coordinator) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// Subscribe registers fn for every applied outcome. Callbacks run on the
// render goroutine in sequence order and may call back into the
// coordinator. The returned function unsubscribes.
func (c *Coordinator) Subscribe(fn func(schema.RenderOutcome)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	id := c.nextSub
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Settle blocks until no render is scheduled, running or pending, then
// returns the current outcome.
func (c *Coordinator) Settle(ctx context.Context) (schema.RenderOutcome, error) {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()
	select {
	case <-idle:
		return c.Outcome(), nil
	case <-ctx.Done():
		return c.Outcome(), ctx.Err()
	}
}

// Close drops scheduled and pending work and waits for an in-flight render
// to return. The render context is cancelled.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.disarmLocked()
	c.pending = nil
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
	c.mu.Lock()
	c.updateIdleLocked()
	c.mu.Unlock()
}

func (c *Coordinator) disarmLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	// Invalidate a timer that already fired but has not taken the lock.
	c.timerGen++
	c.armed = false
}

func (c *Coordinator) fire(gen uint64, req Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.timerGen || c.closed {
		return
	}
	c.timer = nil
	c.armed = false
	c.dispatchLocked(req)
	c.updateIdleLocked()
}

// dispatchLocked starts req or, while a render is in flight, remembers it
// as the single pending request.
func (c *Coordinator) dispatchLocked(req Request) {
	if c.inFlight {
		if c.pending != nil {
			c.metrics.Coalesced++
		}
		c.pending = &req
		return
	}
	c.inFlight = true
	c.seq++
	c.wg.Add(1)
	go c.loop(req, c.seq)
}

// loop runs req and then any pending request that differs from the one
// just rendered, without debouncing.
func (c *Coordinator) loop(req Request, seq uint64) {
	defer c.wg.Done()
	for {
		outcome := c.execute(req, seq)
		c.apply(outcome)

		c.mu.Lock()
		next := c.pending
		c.pending = nil
		if next == nil || *next == req || c.closed {
			if next != nil {
				c.metrics.Coalesced++
			}
			c.inFlight = false
			c.updateIdleLocked()
			c.mu.Unlock()
			return
		}
		c.seq++
		seq = c.seq
		req = *next
		c.mu.Unlock()
	}
}

// apply makes outcome current unless a newer one was already applied, then
// notifies subscribers outside the lock.
func (c *Coordinator) apply(outcome schema.RenderOutcome) {
	c.mu.Lock()
	if outcome.Seq <= c.applied {
		c.mu.Unlock()
		c.logger.Debug("stale render outcome discarded", "seq", outcome.Seq)
		return
	}
	c.applied = outcome.Seq
	c.outcome = outcome
	subs := make([]func(schema.RenderOutcome), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(outcome)
	}
}

func (c *Coordinator) execute(req Request, seq uint64) schema.RenderOutcome {
	ctx := logging.WithRenderSeq(c.ctx, seq)
	if c.sessionID != "" {
		ctx = logging.WithSessionID(ctx, c.sessionID)
	}
	targetID := fmt.Sprintf("diagram-%d", seq)
	c.emit(ctx, schema.EventRenderStarted, map[string]any{"seq": seq, "target_id": targetID})
	c.logger.DebugContext(ctx, "render started", "target_id", targetID, "theme", req.ThemeID)

	start := time.Now()
	sc, err := c.renderSafely(ctx, req, targetID)
	elapsed := time.Since(start)

	outcome := schema.RenderOutcome{Seq: seq, Source: req.Source, ThemeID: req.ThemeID}
	c.mu.Lock()
	c.metrics.Renders++
	c.metrics.LastDuration = elapsed
	if err != nil {
		c.metrics.Failures++
	}
	c.mu.Unlock()

	if err != nil {
		outcome.Status = schema.OutcomeFailed
		outcome.Message = err.Error()
		c.logger.WarnContext(ctx, "render failed", "error", err, "duration", elapsed)
		c.emit(ctx, schema.EventRenderFailed, map[string]any{"seq": seq, "message": outcome.Message})
		return outcome
	}
	outcome.Status = schema.OutcomeRendered
	outcome.Scene = sc
	outcome.RenderedAt = time.Now()
	c.logger.InfoContext(ctx, "render succeeded", "target_id", targetID, "duration", elapsed)
	c.emit(ctx, schema.EventRenderSucceeded, map[string]any{"seq": seq, "target_id": targetID, "duration_ms": elapsed.Milliseconds()})
	return outcome
}

// renderSafely applies the theme and calls the renderer, converting panics
// into errors.
func (c *Coordinator) renderSafely(ctx context.Context, req Request, targetID string) (sc *scene.Scene, err error) {
	defer func() {
		if r := recover(); r != nil {
			sc, err = nil, fmt.Errorf("renderer panic: %v", r)
		}
	}()
	if c.themes == nil {
		return nil, errors.New("no theme catalog configured")
	}
	theme, err := c.themes.Theme(req.ThemeID)
	if err != nil {
		return nil, err
	}
	source, err := ApplyTheme(req.Source, theme)
	if err != nil {
		return nil, fmt.Errorf("apply theme %q: %w", req.ThemeID, err)
	}
	sc, err = c.renderer.Render(ctx, source, targetID)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		return nil, errors.New("renderer returned no scene")
	}
	if sc.TargetID == "" {
		sc.TargetID = targetID
	}
	return sc, nil
}

func (c *Coordinator) emit(ctx context.Context, eventType string, payload any) {
	if err := streaming.Emit(ctx, c.hub, c.sessionID, eventType, payload); err != nil {
		c.logger.DebugContext(ctx, "event publish failed", "event", eventType, "error", err)
	}
}

func (c *Coordinator) updateIdleLocked() {
	busy := c.armed || c.inFlight || c.pending != nil
	switch {
	case busy && c.idleClosed:
		c.idle = make(chan struct{})
		c.idleClosed = false
	case !busy && !c.idleClosed:
		close(c.idle)
		c.idleClosed = true
	}
}

// SceneOf returns the scene carried by a rendered outcome, or nil.
func SceneOf(o schema.RenderOutcome) *scene.Scene {
	sc, _ := o.Scene.(*scene.Scene)
	return sc
}
