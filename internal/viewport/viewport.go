// Package viewport owns the zoom factor and pan offset that map scene
// coordinates onto the screen.
package viewport

import (
	"math"

	"github.com/rendis/lienzo/internal/scene"
	"github.com/rendis/lienzo/pkg/schema"
)

const (
	ZoomInFactor  = 1.25
	ZoomOutFactor = 0.8
	WheelFactor   = 1.1
	MinZoom       = 0.1
)

// Viewport maps world coordinates to screen coordinates as
// screen = world*zoom + pan. It is not safe for concurrent use.
type Viewport struct {
	zoom   float64
	pan    schema.Point
	width  float64
	height float64

	dragging  bool
	dragStart schema.Point
	panStart  schema.Point
}

// New creates a viewport of the given pixel size at zoom 1.
func New(width, height float64) *Viewport {
	return &Viewport{zoom: 1, width: width, height: height}
}

// State returns the current zoom and pan.
func (v *Viewport) State() schema.ViewportState {
	return schema.ViewportState{Zoom: v.zoom, Pan: v.pan}
}

// Size returns the viewport's pixel size.
func (v *Viewport) Size() (width, height float64) {
	return v.width, v.height
}

// SetSize updates the viewport's pixel size.
func (v *Viewport) SetSize(width, height float64) {
	v.width, v.height = width, height
}

// ZoomIn zooms by ZoomInFactor, anchored at cursor when non-nil.
func (v *Viewport) ZoomIn(cursor *schema.Point) {
	v.zoomBy(ZoomInFactor, cursor)
}

// ZoomOut zooms by ZoomOutFactor, anchored at cursor when non-nil.
func (v *Viewport) ZoomOut(cursor *schema.Point) {
	v.zoomBy(ZoomOutFactor, cursor)
}

// Wheel applies one wheel tick at cursor. Negative deltaY zooms in,
// positive zooms out, zero does nothing.
func (v *Viewport) Wheel(deltaY float64, cursor schema.Point) {
	switch {
	case deltaY < 0:
		v.zoomBy(WheelFactor, &cursor)
	case deltaY > 0:
		v.zoomBy(1/WheelFactor, &cursor)
	}
}

// zoomBy keeps the world point under cursor fixed:
// pan' = cursor - (cursor - pan) * zoom'/zoom.
func (v *Viewport) zoomBy(factor float64, cursor *schema.Point) {
	next := math.Max(v.zoom*factor, MinZoom)
	if cursor != nil {
		ratio := next / v.zoom
		v.pan = schema.Point{
			X: cursor.X - (cursor.X-v.pan.X)*ratio,
			Y: cursor.Y - (cursor.Y-v.pan.Y)*ratio,
		}
	}
	v.zoom = next
}

// SetZoom sets the zoom without moving the pan offset. Values below
// MinZoom are clamped.
func (v *Viewport) SetZoom(zoom float64) {
	v.zoom = math.Max(zoom, MinZoom)
}

// SetState restores a saved zoom and pan and ends any drag.
func (v *Viewport) SetState(st schema.ViewportState) {
	v.zoom = math.Max(st.Zoom, MinZoom)
	v.pan = st.Pan
	v.dragging = false
}

// Reset returns to zoom 1 with no pan and ends any drag.
func (v *Viewport) Reset() {
	v.zoom = 1
	v.pan = schema.Point{}
	v.dragging = false
}

// BeginDrag starts a pan drag at screen point p.
func (v *Viewport) BeginDrag(p schema.Point) {
	v.dragging = true
	v.dragStart = p
	v.panStart = v.pan
}

// DragTo moves the pan offset by the pointer delta since BeginDrag. It
// reports false when no drag is active.
func (v *Viewport) DragTo(p schema.Point) bool {
	if !v.dragging {
		return false
	}
	v.pan = schema.Point{
		X: v.panStart.X + p.X - v.dragStart.X,
		Y: v.panStart.Y + p.Y - v.dragStart.Y,
	}
	return true
}

// EndDrag releases the pan drag.
func (v *Viewport) EndDrag() {
	v.dragging = false
}

// Dragging reports whether a pan drag is active.
func (v *Viewport) Dragging() bool {
	return v.dragging
}

// ToScreen maps a world point to the screen.
func (v *Viewport) ToScreen(p schema.Point) schema.Point {
	return schema.Point{X: p.X*v.zoom + v.pan.X, Y: p.Y*v.zoom + v.pan.Y}
}

// ToWorld maps a screen point into the scene.
func (v *Viewport) ToWorld(p schema.Point) schema.Point {
	return schema.Point{X: (p.X - v.pan.X) / v.zoom, Y: (p.Y - v.pan.Y) / v.zoom}
}

// ScreenRect maps a world rectangle to the screen.
func (v *Viewport) ScreenRect(r scene.Rect) scene.Rect {
	tl := v.ToScreen(schema.Point{X: r.X, Y: r.Y})
	return scene.Rect{X: tl.X, Y: tl.Y, W: r.W * v.zoom, H: r.H * v.zoom}
}
