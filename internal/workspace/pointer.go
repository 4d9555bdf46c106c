package workspace

import (
	"fmt"

	"github.com/rendis/lienzo/internal/selection"
	"github.com/rendis/lienzo/pkg/schema"
)

// PointerType names a pointer or keyboard input.
type PointerType string

const (
	PointerDown   PointerType = "down"
	PointerMove   PointerType = "move"
	PointerUp     PointerType = "up"
	PointerClick  PointerType = "click"
	PointerWheel  PointerType = "wheel"
	PointerEscape PointerType = "escape"
)

const (
	ButtonPrimary = 0
	ButtonMiddle  = 1
)

// PointerEvent is one input in viewport-local coordinates.
type PointerEvent struct {
	Type   PointerType `json:"type"`
	X      float64     `json:"x"`
	Y      float64     `json:"y"`
	Button int         `json:"button,omitempty"`
	DeltaY float64     `json:"delta_y,omitempty"`
}

func (e PointerEvent) point() schema.Point {
	return schema.Point{X: e.X, Y: e.Y}
}

// PointerResult reports what an input changed.
type PointerResult struct {
	Viewport        schema.ViewportState   `json:"viewport"`
	ViewportChanged bool                   `json:"viewport_changed"`
	HoverChanged    bool                   `json:"hover_changed"`
	Box             *schema.SelectionBox   `json:"box,omitempty"`
	Click           *selection.ClickResult `json:"click,omitempty"`
	Added           []schema.NodeReference `json:"added,omitempty"`
	References      int                    `json:"references"`
}

// Pointer routes one input. The middle button always pans; the primary
// button pans outside reference mode and drives selection inside it.
func (w *Workspace) Pointer(ev PointerEvent) (PointerResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	p := ev.point()
	var res PointerResult
	switch ev.Type {
	case PointerDown:
		if w.pansWith(ev.Button) {
			w.view.BeginDrag(p)
		} else if ev.Button == ButtonPrimary {
			w.selector.PointerDown(p)
		}
	case PointerMove:
		if w.view.Dragging() {
			res.ViewportChanged = w.view.DragTo(p)
		} else {
			res.HoverChanged = w.selector.PointerMove(p)
		}
	case PointerUp:
		if w.view.Dragging() {
			w.view.EndDrag()
		} else if added := w.selector.PointerUp(p); len(added) > 0 {
			res.Added = added
			w.referencesChangedLocked("added", len(added))
		}
	case PointerClick:
		if cr, ok := w.selector.Click(p); ok {
			res.Click = &cr
			change := "added"
			if cr.Removed {
				change = "removed"
			}
			w.referencesChangedLocked(change, 1)
		}
	case PointerWheel:
		before := w.view.State()
		w.view.Wheel(ev.DeltaY, p)
		res.ViewportChanged = w.view.State() != before
	case PointerEscape:
		w.view.EndDrag()
		w.selector.Escape()
	default:
		return res, schema.NewErrorf(schema.ErrCodeValidation, "unknown pointer event %q", ev.Type)
	}

	if box, ok := w.selector.Box(); ok {
		res.Box = &box
	}
	res.Viewport = w.view.State()
	res.References = len(w.selector.References())
	if res.ViewportChanged {
		w.emitLocked(schema.EventViewportChanged, res.Viewport)
	}
	if res.HoverChanged || res.Box != nil {
		w.emitLocked(schema.EventSelectionChanged, map[string]any{
			"hovered": w.selector.Overlay().Hovered(),
			"box":     res.Box,
		})
	}
	return res, nil
}

func (w *Workspace) pansWith(button int) bool {
	switch button {
	case ButtonMiddle:
		return true
	case ButtonPrimary:
		return !w.selector.Mode()
	default:
		return false
	}
}

// String renders an event for logs.
func (e PointerEvent) String() string {
	return fmt.Sprintf("%s(%g,%g)", e.Type, e.X, e.Y)
}
