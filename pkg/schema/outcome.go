package schema

import "time"

// OutcomeStatus tags a RenderOutcome.
type OutcomeStatus string

const (
	OutcomeNone     OutcomeStatus = "none"
	OutcomeRendered OutcomeStatus = "rendered"
	OutcomeFailed   OutcomeStatus = "failed"
)

// RenderOutcome is the result of one render call: either a rendered scene or
// a failure message. Scene is opaque at this layer.
type RenderOutcome struct {
	Status     OutcomeStatus `json:"status"`
	Seq        uint64        `json:"seq"`
	Source     string        `json:"-"`
	ThemeID    string        `json:"theme_id,omitempty"`
	Message    string        `json:"message,omitempty"`
	Scene      any           `json:"-"`
	RenderedAt time.Time     `json:"rendered_at,omitzero"`
}

// Rendered reports whether the outcome carries a scene.
func (o RenderOutcome) Rendered() bool {
	return o.Status == OutcomeRendered
}

// Failed reports whether the outcome is a render failure.
func (o RenderOutcome) Failed() bool {
	return o.Status == OutcomeFailed
}
