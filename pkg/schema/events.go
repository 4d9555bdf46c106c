package schema

// Event type constants published on the event hub.
const (
	EventRenderStarted   = "render.started"
	EventRenderSucceeded = "render.succeeded"
	EventRenderFailed    = "render.failed"

	EventViewportChanged = "viewport.changed"
	EventAutoFitDone     = "autofit.done"
	EventAutoFitGaveUp   = "autofit.gave_up"

	EventReferencesChanged = "references.changed"
	EventSelectionChanged  = "selection.changed"
	EventHistoryChanged    = "history.changed"
	EventThemeChanged      = "theme.changed"
	EventSessionSaved      = "session.saved"
)
