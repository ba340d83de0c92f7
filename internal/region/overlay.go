package region

import "github.com/manash/moodboard/pkg/models"

// HandleSize is the side of a corner handle in display pixels.
const HandleSize = 8.0

type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Outline is what gets drawn over the canvas for a region.
type Outline struct {
	Box     Rect    `json:"box"`
	Handles [4]Rect `json:"handles"` // top-left, bottom-right, bottom-left, top-right
}

// Overlay computes the outline for r in display coordinates. A nil region
// draws nothing.
func Overlay(r *models.Region, vp Viewport) *Outline {
	if r == nil {
		return nil
	}

	p1 := vp.ToCanvas(models.Point{X: r.X1, Y: r.Y1})
	p2 := vp.ToCanvas(models.Point{X: r.X2, Y: r.Y2})

	handle := func(x, y float64) Rect {
		return Rect{X: x - HandleSize/2, Y: y - HandleSize/2, Width: HandleSize, Height: HandleSize}
	}

	return &Outline{
		Box: Rect{X: p1.X, Y: p1.Y, Width: p2.X - p1.X, Height: p2.Y - p1.Y},
		Handles: [4]Rect{
			handle(p1.X, p1.Y),
			handle(p2.X, p2.Y),
			handle(p1.X, p2.Y),
			handle(p2.X, p1.Y),
		},
	}
}
