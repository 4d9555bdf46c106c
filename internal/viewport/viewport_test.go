package viewport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/lienzo/internal/scene"
	"github.com/rendis/lienzo/pkg/schema"
)

func TestZoomAnchoring(t *testing.T) {
	zooms := []float64{0.1, 0.37, 1, 2.5, 9}
	pans := []schema.Point{{}, {X: -120, Y: 45}, {X: 300.5, Y: -80}}
	cursors := []schema.Point{{}, {X: 400, Y: 300}, {X: 13.7, Y: 911}}

	for _, z := range zooms {
		for _, pan := range pans {
			for _, c := range cursors {
				for _, op := range []func(v *Viewport, c *schema.Point){
					(*Viewport).ZoomIn,
					(*Viewport).ZoomOut,
				} {
					v := New(800, 600)
					v.SetZoom(z)
					v.pan = pan
					cursor := c
					before := v.ToWorld(cursor)

					op(v, &cursor)

					after := v.ToWorld(cursor)
					assert.InDelta(t, before.X, after.X, 1e-9)
					assert.InDelta(t, before.Y, after.Y, 1e-9)
				}
			}
		}
	}
}

func TestZoomWithoutCursorKeepsPan(t *testing.T) {
	v := New(800, 600)
	v.pan = schema.Point{X: 10, Y: 20}
	v.ZoomIn(nil)
	assert.InDelta(t, 1.25, v.State().Zoom, 1e-12)
	assert.Equal(t, schema.Point{X: 10, Y: 20}, v.State().Pan)

	v.ZoomOut(nil)
	assert.InDelta(t, 1.0, v.State().Zoom, 1e-12)
}

func TestZoomLowerClampNoUpperClamp(t *testing.T) {
	v := New(800, 600)
	for i := 0; i < 50; i++ {
		v.ZoomOut(nil)
	}
	assert.Equal(t, MinZoom, v.State().Zoom)

	v.Reset()
	for i := 0; i < 20; i++ {
		v.ZoomIn(nil)
	}
	assert.Greater(t, v.State().Zoom, 80.0)
}

func TestWheel(t *testing.T) {
	v := New(800, 600)
	cursor := schema.Point{X: 200, Y: 150}
	before := v.ToWorld(cursor)

	v.Wheel(-3, cursor)
	assert.InDelta(t, 1.1, v.State().Zoom, 1e-12)
	after := v.ToWorld(cursor)
	assert.InDelta(t, before.X, after.X, 1e-9)
	assert.InDelta(t, before.Y, after.Y, 1e-9)

	v.Wheel(5, cursor)
	assert.InDelta(t, 1.0, v.State().Zoom, 1e-12)

	v.Wheel(0, cursor)
	assert.InDelta(t, 1.0, v.State().Zoom, 1e-12)
}

func TestReset(t *testing.T) {
	v := New(800, 600)
	v.ZoomIn(&schema.Point{X: 100, Y: 100})
	v.BeginDrag(schema.Point{})
	v.Reset()
	assert.Equal(t, schema.ViewportState{Zoom: 1}, v.State())
	assert.False(t, v.Dragging())
}

func TestSetState(t *testing.T) {
	v := New(800, 600)
	v.BeginDrag(schema.Point{})
	v.SetState(schema.ViewportState{Zoom: 2.5, Pan: schema.Point{X: -30, Y: 12}})
	assert.Equal(t, schema.ViewportState{Zoom: 2.5, Pan: schema.Point{X: -30, Y: 12}}, v.State())
	assert.False(t, v.Dragging())

	v.SetState(schema.ViewportState{Zoom: 0})
	assert.Equal(t, MinZoom, v.State().Zoom)
}

func TestDragPan(t *testing.T) {
	v := New(800, 600)
	assert.False(t, v.DragTo(schema.Point{X: 5, Y: 5}), "no drag without BeginDrag")

	v.pan = schema.Point{X: 10, Y: 10}
	v.BeginDrag(schema.Point{X: 100, Y: 100})
	require.True(t, v.DragTo(schema.Point{X: 130, Y: 90}))
	assert.Equal(t, schema.Point{X: 40, Y: 0}, v.State().Pan)
	require.True(t, v.DragTo(schema.Point{X: 90, Y: 120}))
	assert.Equal(t, schema.Point{X: 0, Y: 30}, v.State().Pan)

	v.EndDrag()
	assert.False(t, v.DragTo(schema.Point{X: 0, Y: 0}))
	assert.Equal(t, schema.Point{X: 0, Y: 30}, v.State().Pan)
}

func TestScreenMapping(t *testing.T) {
	v := New(800, 600)
	v.SetZoom(2)
	v.pan = schema.Point{X: 10, Y: -5}

	assert.Equal(t, schema.Point{X: 30, Y: 35}, v.ToScreen(schema.Point{X: 10, Y: 20}))
	assert.Equal(t, schema.Point{X: 10, Y: 20}, v.ToWorld(schema.Point{X: 30, Y: 35}))
	assert.Equal(t, scene.Rect{X: 30, Y: 35, W: 40, H: 10}, v.ScreenRect(scene.Rect{X: 10, Y: 20, W: 20, H: 5}))
}

// --- Auto-fit ---

func TestComputeFit(t *testing.T) {
	tests := []struct {
		name string
		size scene.Size
		want float64
	}{
		{"larger than viewport", scene.Size{W: 1520, H: 560}, 0.425},
		{"smaller than viewport", scene.Size{W: 380, H: 280}, 1.8},
		{"tiny scene capped", scene.Size{W: 100, H: 100}, MaxFitZoom},
		{"huge scene floored", scene.Size{W: 100000, H: 100000}, MinZoom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ComputeFit(800, 600, tt.size), 1e-9)
		})
	}
}

func TestComputeFitBounds(t *testing.T) {
	for _, w := range []float64{1, 10, 333, 800, 5000, 1e6} {
		for _, h := range []float64{1, 7, 600, 2400, 1e7} {
			for _, view := range [][2]float64{{800, 600}, {30, 30}, {1920, 1080}} {
				z := ComputeFit(view[0], view[1], scene.Size{W: w, H: h})
				assert.GreaterOrEqual(t, z, MinZoom)
				assert.LessOrEqual(t, z, MaxFitZoom)
			}
		}
	}
}

func TestAutoFitSucceedsAfterRetries(t *testing.T) {
	calls := 0
	measure := func() (scene.Size, bool) {
		calls++
		if calls < 3 {
			return scene.Size{}, false
		}
		return scene.Size{W: 380, H: 280}, true
	}

	fit := NewAutoFit(0)
	assert.Equal(t, DefaultMaxAttempts, fit.MaxAttempts())
	assert.Equal(t, FitPending, fit.Step(measure, 800, 600))
	assert.Equal(t, FitPending, fit.Step(measure, 800, 600))
	assert.Equal(t, FitDone, fit.Step(measure, 800, 600))
	assert.Equal(t, 3, fit.Attempts())
	assert.InDelta(t, 1.8, fit.Zoom(), 1e-9)

	// Terminal states are sticky.
	assert.Equal(t, FitDone, fit.Step(measure, 800, 600))
	assert.Equal(t, 3, calls)
}

func TestAutoFitGivesUp(t *testing.T) {
	fit := NewAutoFit(DefaultMaxAttempts)
	never := func() (scene.Size, bool) { return scene.Size{}, false }
	for i := 0; i < DefaultMaxAttempts-1; i++ {
		require.Equal(t, FitPending, fit.Step(never, 800, 600))
	}
	assert.Equal(t, FitGaveUp, fit.Step(never, 800, 600))
	assert.Equal(t, DefaultMaxAttempts, fit.Attempts())
	assert.Equal(t, "gave_up", fit.Status().String())
}

func TestAutoFitRun(t *testing.T) {
	calls := 0
	measure := func() (scene.Size, bool) {
		calls++
		return scene.Size{W: 1520, H: 560}, calls >= 2
	}
	fit := NewAutoFit(5)
	status := fit.Run(context.Background(), time.Millisecond, measure, func() (float64, float64) { return 800, 600 })
	assert.Equal(t, FitDone, status)
	assert.InDelta(t, 0.425, fit.Zoom(), 1e-9)

	never := func() (scene.Size, bool) { return scene.Size{}, false }
	fit = NewAutoFit(3)
	assert.Equal(t, FitGaveUp, fit.Run(context.Background(), time.Millisecond, never, func() (float64, float64) { return 800, 600 }))
}

func TestAutoFitRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	never := func() (scene.Size, bool) { return scene.Size{}, false }
	fit := NewAutoFit(100)
	assert.Equal(t, FitPending, fit.Run(ctx, time.Hour, never, func() (float64, float64) { return 800, 600 }))
	assert.Equal(t, 1, fit.Attempts())
}
