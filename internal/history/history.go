// Package history keeps bounded undo/redo stacks of the diagram source.
package history

// DefaultLimit bounds the number of past entries.
const DefaultLimit = 50

// State is a copy of the history for persistence and inspection.
type State struct {
	Current string   `json:"current"`
	Past    []string `json:"past"`
	Future  []string `json:"future"`
}

// History is a state machine over past/future stacks. It is not safe for
// concurrent use; the owning workspace serializes access.
type History struct {
	current string
	past    []string
	future  []string
	limit   int

	canUndo bool
	canRedo bool
}

// New creates a history whose current value is initial.
func New(initial string) *History {
	return NewWithLimit(initial, DefaultLimit)
}

// NewWithLimit creates a history keeping at most limit past entries.
// Non-positive limits fall back to DefaultLimit.
func NewWithLimit(initial string, limit int) *History {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &History{current: initial, limit: limit}
}

// Current returns the current source.
func (h *History) Current() string { return h.current }

// CanUndo reports whether past is non-empty.
func (h *History) CanUndo() bool { return h.canUndo }

// CanRedo reports whether future is non-empty.
func (h *History) CanRedo() bool { return h.canRedo }

// Set replaces the current value and reports whether anything changed.
// An unchanged value is a no-op. With skipHistory the stacks are left
// untouched; otherwise the previous value is pushed onto past, the oldest
// entry is dropped past the limit, and future is cleared.
func (h *History) Set(value string, skipHistory bool) bool {
	if value == h.current {
		return false
	}
	if !skipHistory {
		h.past = append(h.past, h.current)
		if over := len(h.past) - h.limit; over > 0 {
			h.past = append([]string(nil), h.past[over:]...)
		}
		h.future = nil
	}
	h.current = value
	h.recompute()
	return true
}

// Undo moves the last past entry into current, pushing current onto the
// front of future. It reports false when past is empty.
func (h *History) Undo() bool {
	if len(h.past) == 0 {
		return false
	}
	prev := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	h.future = append([]string{h.current}, h.future...)
	h.current = prev
	h.recompute()
	return true
}

// Redo moves the first future entry into current, pushing current onto
// past. It reports false when future is empty.
func (h *History) Redo() bool {
	if len(h.future) == 0 {
		return false
	}
	next := h.future[0]
	h.future = h.future[1:]
	h.past = append(h.past, h.current)
	h.current = next
	h.recompute()
	return true
}

// Snapshot returns a deep copy of the history.
func (h *History) Snapshot() State {
	return State{
		Current: h.current,
		Past:    append([]string{}, h.past...),
		Future:  append([]string{}, h.future...),
	}
}

// Restore replaces the history with s, trimming past to the limit.
func (h *History) Restore(s State) {
	h.current = s.Current
	h.past = append([]string(nil), s.Past...)
	if over := len(h.past) - h.limit; over > 0 {
		h.past = h.past[over:]
	}
	h.future = append([]string(nil), s.Future...)
	h.recompute()
}

// Reset clears both stacks and sets current to initial.
func (h *History) Reset(initial string) {
	h.current = initial
	h.past = nil
	h.future = nil
	h.recompute()
}

func (h *History) recompute() {
	h.canUndo = len(h.past) > 0
	h.canRedo = len(h.future) > 0
}
