package scene

import (
	"math"
	"sync"

	"github.com/rendis/lienzo/pkg/schema"
)

// Size is a measured width and height.
type Size struct {
	W, H float64
}

// Scene is a rendered diagram inserted into the display surface. It is
// treated as immutable once built; decorations operate on clones.
type Scene struct {
	// TargetID names the render target the scene was produced for.
	TargetID string
	Root     *Element

	once   sync.Once
	bounds map[*Element]Rect
	own    map[*Element]Rect
}

// New wraps a root element.
func New(targetID string, root *Element) *Scene {
	return &Scene{TargetID: targetID, Root: root}
}

// FromSVG parses markup into a scene.
func FromSVG(targetID, markup string) (*Scene, error) {
	root, err := ParseSVGString(markup)
	if err != nil {
		return nil, err
	}
	return New(targetID, root), nil
}

// index computes world bounds for every element once.
func (s *Scene) index() {
	s.once.Do(func() {
		s.bounds = make(map[*Element]Rect)
		s.own = make(map[*Element]Rect)
		if s.Root == nil {
			return
		}
		s.Root.Walk(func(e *Element) bool {
			if nonRendering[e.Tag] {
				return false
			}
			if e.IsText() {
				return true
			}
			world := e.WorldTransform()
			if r, ok := e.contentBounds(); ok {
				s.bounds[e] = world.ApplyRect(r)
			}
			if r, ok := e.OwnGeometry(); ok {
				s.own[e] = world.ApplyRect(r)
			}
			return true
		})
	})
}

// Bounds returns the world bounds of e within this scene.
func (s *Scene) Bounds(e *Element) (Rect, bool) {
	s.index()
	r, ok := s.bounds[e]
	return r, ok
}

// HitTest returns the topmost, deepest element whose drawn shape contains p
// (in world coordinates). Points that hit no shape return the root, matching
// a pointer over empty canvas. A nil scene root returns nil.
func (s *Scene) HitTest(p schema.Point) *Element {
	if s == nil || s.Root == nil {
		return nil
	}
	s.index()
	if hit := s.hit(s.Root, p); hit != nil {
		return hit
	}
	return s.Root
}

func (s *Scene) hit(e *Element, p schema.Point) *Element {
	if nonRendering[e.Tag] || e.IsText() {
		return nil
	}
	if r, ok := s.bounds[e]; !ok || !r.Contains(p) {
		return nil
	}
	if !leafGeometry[e.Tag] {
		// Later siblings paint over earlier ones.
		for i := len(e.Children) - 1; i >= 0; i-- {
			if h := s.hit(e.Children[i], p); h != nil {
				return h
			}
		}
	}
	if r, ok := s.own[e]; ok && r.Contains(p) && !isBackdrop(e) {
		return e
	}
	return nil
}

// isBackdrop reports whether e is a full-canvas background shape, which
// behaves as empty canvas for pointer purposes.
func isBackdrop(e *Element) bool {
	if e.Parent == nil {
		return false
	}
	if e.HasClass("background") {
		return true
	}
	// Graphviz paints the page as a polygon directly under the graph group.
	return e.Tag == "polygon" && e.Parent.HasClass("graph")
}

// Measure reports the natural size of the scene: the root's viewBox when
// declared, otherwise its computed bounds. It returns false while the scene
// has no measurable extent.
func (s *Scene) Measure() (Size, bool) {
	if s == nil || s.Root == nil {
		return Size{}, false
	}
	if vb, ok := s.Root.Attr("viewBox"); ok {
		if nums := numbers(vb); len(nums) == 4 && nums[2] > 0 && nums[3] > 0 {
			return Size{W: nums[2], H: nums[3]}, true
		}
	}
	r, ok := s.Bounds(s.Root)
	if !ok || r.W <= 0 || r.H <= 0 || math.IsNaN(r.W) || math.IsNaN(r.H) {
		return Size{}, false
	}
	return Size{W: r.W, H: r.H}, true
}

// Find returns every element for which match reports true, in document order.
func (s *Scene) Find(match func(*Element) bool) []*Element {
	if s == nil || s.Root == nil {
		return nil
	}
	var out []*Element
	s.Root.Walk(func(e *Element) bool {
		if !e.IsText() && match(e) {
			out = append(out, e)
		}
		return true
	})
	return out
}

// Clone deep-copies the scene. visit is called for every original/copy pair
// so callers can carry element-keyed state across.
func (s *Scene) Clone(visit func(orig, cp *Element)) *Scene {
	if s == nil || s.Root == nil {
		return &Scene{TargetID: s.targetID()}
	}
	return New(s.TargetID, s.Root.Clone(visit))
}

func (s *Scene) targetID() string {
	if s == nil {
		return ""
	}
	return s.TargetID
}

// Markup serializes the scene.
func (s *Scene) Markup() string {
	if s == nil || s.Root == nil {
		return ""
	}
	return s.Root.Markup()
}
