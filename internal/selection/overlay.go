package selection

import (
	"sort"

	"github.com/rendis/lienzo/internal/identity"
	"github.com/rendis/lienzo/internal/scene"
)

// Decoration classes added to node elements when an overlay is applied.
const (
	HoverClass    = identity.DecorationPrefix + "hover"
	SelectedClass = identity.DecorationPrefix + "selected"
)

// Overlay is the decoration layer drawn on top of a scene, keyed by node id.
// The scene itself is never mutated; Apply decorates a copy.
type Overlay struct {
	hover    map[string]bool
	selected map[string]bool
}

// NewOverlay creates an empty overlay.
func NewOverlay() *Overlay {
	return &Overlay{hover: map[string]bool{}, selected: map[string]bool{}}
}

// SetHover toggles the hover marker for id.
func (o *Overlay) SetHover(id string, on bool) {
	if on {
		o.hover[id] = true
	} else {
		delete(o.hover, id)
	}
}

// ClearHover drops every hover marker.
func (o *Overlay) ClearHover() {
	o.hover = map[string]bool{}
}

// Select marks id as selected.
func (o *Overlay) Select(id string) {
	o.selected[id] = true
}

// Deselect removes the selected marker for id.
func (o *Overlay) Deselect(id string) {
	delete(o.selected, id)
}

// ClearSelected drops every selected marker.
func (o *Overlay) ClearSelected() {
	o.selected = map[string]bool{}
}

// Reset discards all decorations, as happens when a new scene replaces the
// previous one.
func (o *Overlay) Reset() {
	o.ClearHover()
	o.ClearSelected()
}

// IsHovered reports whether id carries the hover marker.
func (o *Overlay) IsHovered(id string) bool { return o.hover[id] }

// IsSelected reports whether id carries the selected marker.
func (o *Overlay) IsSelected(id string) bool { return o.selected[id] }

// Hovered returns the hovered ids, sorted.
func (o *Overlay) Hovered() []string { return sortedKeys(o.hover) }

// Selected returns the selected ids, sorted.
func (o *Overlay) Selected() []string { return sortedKeys(o.selected) }

// Empty reports whether the overlay has no decorations.
func (o *Overlay) Empty() bool {
	return len(o.hover) == 0 && len(o.selected) == 0
}

// Apply returns a copy of sc whose node elements carry the decoration
// classes. The resolver maps elements to their node ids.
func (o *Overlay) Apply(sc *scene.Scene, resolver *identity.Resolver) *scene.Scene {
	if sc == nil || sc.Root == nil {
		return sc
	}
	marks := make(map[*scene.Element][]string)
	if !o.Empty() {
		for _, c := range Candidates(sc, resolver) {
			if o.hover[c.ID] {
				marks[c.Element] = append(marks[c.Element], HoverClass)
			}
			if o.selected[c.ID] {
				marks[c.Element] = append(marks[c.Element], SelectedClass)
			}
		}
	}
	return sc.Clone(func(orig, cp *scene.Element) {
		for _, class := range marks[orig] {
			cp.AddClass(class)
		}
	})
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
