package schema

// Point is a 2D position in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ViewportState is the zoom factor and pan offset applied to the scene.
type ViewportState struct {
	Zoom float64 `json:"zoom"`
	Pan  Point   `json:"pan"`
}

// SelectionBox is a drag rectangle in viewport-local coordinates. The corners
// are not normalized; StartX may exceed EndX.
type SelectionBox struct {
	StartX float64 `json:"startX"`
	StartY float64 `json:"startY"`
	EndX   float64 `json:"endX"`
	EndY   float64 `json:"endY"`
}
