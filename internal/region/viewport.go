// Package region maps pointer gestures over a displayed image to regions in
// original-image pixel coordinates.
package region

import "github.com/manash/moodboard/pkg/models"

// Viewport relates an image's natural size to the size it is rendered at.
type Viewport struct {
	NaturalWidth  float64 `json:"natural_width"`
	NaturalHeight float64 `json:"natural_height"`
	CanvasWidth   float64 `json:"canvas_width"`
	CanvasHeight  float64 `json:"canvas_height"`
}

// Identity is a viewport where display and image pixels coincide.
func Identity(w, h float64) Viewport {
	return Viewport{NaturalWidth: w, NaturalHeight: h, CanvasWidth: w, CanvasHeight: h}
}

// Fit sizes the canvas to fill the container while keeping the image's
// aspect ratio: relatively taller images fit the height, others the width.
func Fit(naturalW, naturalH, containerW, containerH float64) Viewport {
	vp := Viewport{NaturalWidth: naturalW, NaturalHeight: naturalH}
	if naturalW <= 0 || naturalH <= 0 || containerW <= 0 || containerH <= 0 {
		vp.CanvasWidth, vp.CanvasHeight = containerW, containerH
		return vp
	}

	imgAspect := naturalH / naturalW
	containerAspect := containerH / containerW
	if imgAspect > containerAspect {
		vp.CanvasHeight = containerH
		vp.CanvasWidth = containerH / imgAspect
	} else {
		vp.CanvasWidth = containerW
		vp.CanvasHeight = containerW * imgAspect
	}
	return vp
}

func (v Viewport) scaleX() float64 {
	if v.NaturalWidth <= 0 || v.CanvasWidth <= 0 {
		return 1
	}
	return v.NaturalWidth / v.CanvasWidth
}

func (v Viewport) scaleY() float64 {
	if v.NaturalHeight <= 0 || v.CanvasHeight <= 0 {
		return 1
	}
	return v.NaturalHeight / v.CanvasHeight
}

// ToImage converts a display point to image pixels, each axis scaled independently.
func (v Viewport) ToImage(p models.Point) models.Point {
	return models.Point{X: p.X * v.scaleX(), Y: p.Y * v.scaleY()}
}

// ToCanvas is the inverse of ToImage.
func (v Viewport) ToCanvas(p models.Point) models.Point {
	return models.Point{X: p.X / v.scaleX(), Y: p.Y / v.scaleY()}
}
