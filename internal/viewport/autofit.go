package viewport

import (
	"context"
	"math"
	"time"

	"github.com/rendis/lienzo/internal/scene"
)

const (
	FitMargin          = 40.0
	MaxFitZoom         = 3.0
	DefaultMaxAttempts = 10
	// FrameInterval approximates one display frame between measurement
	// attempts.
	FrameInterval = 16 * time.Millisecond
)

// FitStatus is the state of an AutoFit.
type FitStatus int

const (
	FitPending FitStatus = iota
	FitDone
	FitGaveUp
)

func (s FitStatus) String() string {
	switch s {
	case FitDone:
		return "done"
	case FitGaveUp:
		return "gave_up"
	default:
		return "pending"
	}
}

// MeasureFunc reports a scene's size, or false while it is not measurable.
type MeasureFunc func() (scene.Size, bool)

// ComputeFit returns the zoom that fits a scene of the given size inside a
// viewport, leaving FitMargin pixels. Scenes larger than the viewport get a
// further 0.85 factor; smaller ones 0.9, capped at MaxFitZoom. The result
// is never below MinZoom.
func ComputeFit(viewWidth, viewHeight float64, size scene.Size) float64 {
	if size.W <= 0 || size.H <= 0 {
		return 1
	}
	raw := math.Min((viewWidth-FitMargin)/size.W, (viewHeight-FitMargin)/size.H)
	var zoom float64
	if raw < 1 {
		zoom = raw * 0.85
	} else {
		zoom = math.Min(raw*0.9, MaxFitZoom)
	}
	if math.IsNaN(zoom) {
		return MinZoom
	}
	return math.Min(math.Max(zoom, MinZoom), MaxFitZoom)
}

// AutoFit is a bounded-retry state machine: each Step measures the scene
// once; the first measurable size produces a zoom, and running out of
// attempts ends in FitGaveUp.
type AutoFit struct {
	attempts    int
	maxAttempts int
	status      FitStatus
	zoom        float64
}

// NewAutoFit creates a pending auto-fit. Non-positive budgets use
// DefaultMaxAttempts.
func NewAutoFit(maxAttempts int) *AutoFit {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &AutoFit{maxAttempts: maxAttempts}
}

func (a *AutoFit) Status() FitStatus { return a.status }
func (a *AutoFit) Attempts() int     { return a.attempts }
func (a *AutoFit) MaxAttempts() int  { return a.maxAttempts }

// Zoom returns the computed zoom; only meaningful once Status is FitDone.
func (a *AutoFit) Zoom() float64 { return a.zoom }

// Step performs one measurement attempt. Terminal states are sticky.
func (a *AutoFit) Step(measure MeasureFunc, viewWidth, viewHeight float64) FitStatus {
	if a.status != FitPending {
		return a.status
	}
	a.attempts++
	if size, ok := measure(); ok && size.W > 0 && size.H > 0 {
		a.zoom = ComputeFit(viewWidth, viewHeight, size)
		a.status = FitDone
		return a.status
	}
	if a.attempts >= a.maxAttempts {
		a.status = FitGaveUp
	}
	return a.status
}

// Run steps once immediately and then once per interval until a terminal
// state or ctx is done. viewSize is read on every step so resizes during
// the wait are honoured.
func (a *AutoFit) Run(ctx context.Context, interval time.Duration, measure MeasureFunc, viewSize func() (float64, float64)) FitStatus {
	if interval <= 0 {
		interval = FrameInterval
	}
	w, h := viewSize()
	if a.Step(measure, w, h) != FitPending {
		return a.status
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return a.status
		case <-ticker.C:
			w, h := viewSize()
			if a.Step(measure, w, h) != FitPending {
				return a.status
			}
		}
	}
}
