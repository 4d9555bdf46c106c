package selection

import (
	"github.com/rendis/lienzo/internal/identity"
	"github.com/rendis/lienzo/internal/scene"
)

// Candidate is a logical node in a scene with its stable id and world bounds.
type Candidate struct {
	Classification identity.Classification
	Element        *scene.Element
	ID             string
	Bounds         scene.Rect
	HasBounds      bool
}

// Candidates lists every logical node in sc in document order. Edge labels
// are not candidates.
func Candidates(sc *scene.Scene, resolver *identity.Resolver) []Candidate {
	if sc == nil || sc.Root == nil {
		return nil
	}
	seen := make(map[*scene.Element]bool)
	var out []Candidate
	sc.Root.Walk(func(e *scene.Element) bool {
		if e.IsText() {
			return true
		}
		c := resolver.Classify(e)
		if c.Kind != identity.KindNode {
			return true
		}
		// Descendants resolve to the same outermost node.
		if seen[c.Element] {
			return false
		}
		seen[c.Element] = true
		r, ok := sc.Bounds(c.Element)
		out = append(out, Candidate{
			Classification: c,
			Element:        c.Element,
			ID:             resolver.ID(c.Element),
			Bounds:         r,
			HasBounds:      ok,
		})
		return false
	})
	return out
}
