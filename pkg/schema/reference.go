package schema

// NodeType is the coarse shape classification of a diagram node.
type NodeType string

const (
	NodeTypeDecision NodeType = "decision"
	NodeTypeEvent    NodeType = "event"
	NodeTypeProcess  NodeType = "process"
)

// NodeReference is a user-selected diagram element. NodeID is stable across
// re-renders of unchanged source.
type NodeReference struct {
	NodeID   string   `json:"nodeId"`
	NodeText string   `json:"nodeText"`
	NodeType NodeType `json:"nodeType,omitempty"`
}

// ReferenceSet is an ordered list of references keyed by NodeID.
// The zero value is empty and ready to use.
type ReferenceSet struct {
	items []NodeReference
	index map[string]int
}

// NewReferenceSet builds a set from refs, dropping later duplicates.
func NewReferenceSet(refs ...NodeReference) *ReferenceSet {
	s := &ReferenceSet{}
	for _, r := range refs {
		s.Add(r)
	}
	return s
}

// Has reports whether a reference with nodeID is present.
func (s *ReferenceSet) Has(nodeID string) bool {
	_, ok := s.index[nodeID]
	return ok
}

// Add appends ref unless its NodeID is already present. Returns true when added.
func (s *ReferenceSet) Add(ref NodeReference) bool {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if _, ok := s.index[ref.NodeID]; ok {
		return false
	}
	s.index[ref.NodeID] = len(s.items)
	s.items = append(s.items, ref)
	return true
}

// Remove deletes the reference with nodeID. Returns true when something was removed.
func (s *ReferenceSet) Remove(nodeID string) bool {
	i, ok := s.index[nodeID]
	if !ok {
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	delete(s.index, nodeID)
	for j := i; j < len(s.items); j++ {
		s.index[s.items[j].NodeID] = j
	}
	return true
}

// Clear removes every reference.
func (s *ReferenceSet) Clear() {
	s.items = nil
	s.index = nil
}

// Len returns the number of references.
func (s *ReferenceSet) Len() int {
	return len(s.items)
}

// List returns a copy of the references in insertion order.
func (s *ReferenceSet) List() []NodeReference {
	out := make([]NodeReference, len(s.items))
	copy(out, s.items)
	return out
}
