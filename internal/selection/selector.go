// Package selection implements reference mode: hover highlighting,
// click-to-toggle references and box selection over a rendered scene.
package selection

import (
	"github.com/rendis/lienzo/internal/identity"
	"github.com/rendis/lienzo/internal/scene"
	"github.com/rendis/lienzo/pkg/schema"
)

// Projector maps between screen (viewport-local) and scene coordinates.
// *viewport.Viewport satisfies it.
type Projector interface {
	ToWorld(p schema.Point) schema.Point
	ScreenRect(r scene.Rect) scene.Rect
}

// ClickResult describes what a click did to the reference list.
type ClickResult struct {
	Reference schema.NodeReference `json:"reference"`
	Added     bool                 `json:"added"`
	Removed   bool                 `json:"removed"`
}

// Changed reports whether the click altered the reference list.
func (r ClickResult) Changed() bool { return r.Added || r.Removed }

// Selector owns the pending references and the ephemeral hover/box state.
// Handlers run to completion; it is not safe for concurrent use.
type Selector struct {
	resolver *identity.Resolver
	proj     Projector
	refs     *schema.ReferenceSet
	overlay  *Overlay

	mode    bool
	scene   *scene.Scene
	hovered *scene.Element
	hoverID string

	box      *schema.SelectionBox
	boxHover map[string]bool
}

// NewSelector creates a selector. Reference mode starts disabled.
func NewSelector(resolver *identity.Resolver, proj Projector) *Selector {
	if resolver == nil {
		resolver = identity.NewResolver()
	}
	return &Selector{
		resolver: resolver,
		proj:     proj,
		refs:     schema.NewReferenceSet(),
		overlay:  NewOverlay(),
		boxHover: map[string]bool{},
	}
}

// SetScene replaces the scene pointer input is resolved against. All
// decorations and ephemeral state are discarded; references are kept.
func (s *Selector) SetScene(sc *scene.Scene) {
	s.scene = sc
	s.overlay.Reset()
	s.clearEphemeral()
}

// Scene returns the current scene, or nil.
func (s *Selector) Scene() *scene.Scene { return s.scene }

// Mode reports whether reference mode is enabled.
func (s *Selector) Mode() bool { return s.mode }

// SetMode enables or disables reference mode. Disabling clears hover, any
// in-progress box and the selected markers, but not the references.
func (s *Selector) SetMode(on bool) {
	s.mode = on
	if !on {
		s.clearEphemeral()
		s.overlay.ClearSelected()
	}
}

// Escape cancels reference mode, hover and any in-progress box.
func (s *Selector) Escape() {
	s.SetMode(false)
}

func (s *Selector) clearEphemeral() {
	s.hovered, s.hoverID = nil, ""
	s.box = nil
	s.boxHover = map[string]bool{}
	s.overlay.ClearHover()
}

func (s *Selector) active() bool {
	return s.mode && s.scene != nil && s.scene.Root != nil
}

// classifyAt resolves the logical element under a screen point.
func (s *Selector) classifyAt(p schema.Point) identity.Classification {
	target := s.scene.HitTest(s.proj.ToWorld(p))
	return s.resolver.Classify(target)
}

// Hover updates the hover marker for the element under p. It returns true
// when the hovered element changed.
func (s *Selector) Hover(p schema.Point) bool {
	if !s.active() || s.box != nil {
		return false
	}
	c := s.classifyAt(p)
	var el *scene.Element
	if c.Found() {
		el = c.Element
	}
	if el == s.hovered {
		return false
	}
	if s.hoverID != "" {
		s.overlay.SetHover(s.hoverID, false)
	}
	s.hovered, s.hoverID = el, ""
	if el != nil {
		s.hoverID = s.resolver.ID(el)
		s.overlay.SetHover(s.hoverID, true)
	}
	return true
}

// Click toggles the reference for the element under p. ok is false when
// reference mode is off or nothing resolvable is under p.
func (s *Selector) Click(p schema.Point) (res ClickResult, ok bool) {
	if !s.active() {
		return ClickResult{}, false
	}
	c := s.classifyAt(p)
	if !c.Found() {
		return ClickResult{}, false
	}
	ref := s.resolver.Reference(c)
	if s.refs.Remove(ref.NodeID) {
		s.overlay.Deselect(ref.NodeID)
		return ClickResult{Reference: ref, Removed: true}, true
	}
	s.refs.Add(ref)
	s.overlay.Select(ref.NodeID)
	return ClickResult{Reference: ref, Added: true}, true
}

// PointerDown starts a selection box when p is over empty canvas. It
// returns true when a box was started.
func (s *Selector) PointerDown(p schema.Point) bool {
	if !s.active() {
		return false
	}
	if s.classifyAt(p).Found() {
		return false
	}
	s.box = &schema.SelectionBox{StartX: p.X, StartY: p.Y, EndX: p.X, EndY: p.Y}
	s.boxHover = map[string]bool{}
	return true
}

// PointerMove updates the live box corner and highlights every intersecting
// node, or falls back to hover tracking when no box is active.
func (s *Selector) PointerMove(p schema.Point) bool {
	if s.box == nil {
		return s.Hover(p)
	}
	s.box.EndX, s.box.EndY = p.X, p.Y

	next := map[string]bool{}
	for _, c := range s.intersecting() {
		if !s.overlay.IsSelected(c.ID) {
			next[c.ID] = true
		}
	}
	for id := range s.boxHover {
		if !next[id] {
			s.overlay.SetHover(id, false)
		}
	}
	for id := range next {
		s.overlay.SetHover(id, true)
	}
	s.boxHover = next
	return true
}

// PointerUp finalizes the box: every intersecting node not yet referenced is
// appended and marked selected. It returns the references added.
func (s *Selector) PointerUp(p schema.Point) []schema.NodeReference {
	if s.box == nil {
		return nil
	}
	s.box.EndX, s.box.EndY = p.X, p.Y

	var added []schema.NodeReference
	for _, c := range s.intersecting() {
		s.overlay.Select(c.ID)
		if s.refs.Has(c.ID) {
			continue
		}
		ref := s.resolver.Reference(c.Classification)
		if s.refs.Add(ref) {
			added = append(added, ref)
		}
	}

	for id := range s.boxHover {
		s.overlay.SetHover(id, false)
	}
	s.boxHover = map[string]bool{}
	s.box = nil
	return added
}

// intersecting lists the nodes whose screen bounds overlap the box.
func (s *Selector) intersecting() []Candidate {
	if s.box == nil || s.scene == nil {
		return nil
	}
	box := scene.RectFromCorners(s.box.StartX, s.box.StartY, s.box.EndX, s.box.EndY)
	var out []Candidate
	for _, c := range Candidates(s.scene, s.resolver) {
		if c.HasBounds && box.Intersects(s.proj.ScreenRect(c.Bounds)) {
			out = append(out, c)
		}
	}
	return out
}

// Box returns the in-progress selection box.
func (s *Selector) Box() (schema.SelectionBox, bool) {
	if s.box == nil {
		return schema.SelectionBox{}, false
	}
	return *s.box, true
}

// References returns the pending references in insertion order.
func (s *Selector) References() []schema.NodeReference {
	return s.refs.List()
}

// Has reports whether id is referenced.
func (s *Selector) Has(id string) bool {
	return s.refs.Has(id)
}

// Remove drops the reference with id.
func (s *Selector) Remove(id string) bool {
	if !s.refs.Remove(id) {
		return false
	}
	s.overlay.Deselect(id)
	return true
}

// Add appends refs not already present and returns those added. Used for
// programmatic selection.
func (s *Selector) Add(refs ...schema.NodeReference) []schema.NodeReference {
	var added []schema.NodeReference
	for _, r := range refs {
		if s.refs.Add(r) {
			added = append(added, r)
			if s.mode {
				s.overlay.Select(r.NodeID)
			}
		}
	}
	return added
}

// Clear removes every reference and selected marker.
func (s *Selector) Clear() {
	s.refs.Clear()
	s.overlay.ClearSelected()
}

// Restore replaces the references, e.g. when a session is loaded.
func (s *Selector) Restore(refs []schema.NodeReference) {
	s.refs = schema.NewReferenceSet(refs...)
}

// Overlay returns the decoration layer.
func (s *Selector) Overlay() *Overlay { return s.overlay }

// Decorated returns a copy of the current scene with decorations applied.
func (s *Selector) Decorated() *scene.Scene {
	return s.overlay.Apply(s.scene, s.resolver)
}

// Resolver returns the identity resolver in use.
func (s *Selector) Resolver() *identity.Resolver { return s.resolver }
