package region

import (
	"math"

	"github.com/manash/moodboard/pkg/models"
)

// MinDragDistance is the display-pixel travel that turns a click into a drag.
const MinDragDistance = 5.0

// Selector tracks one press-drag-release gesture. It is not safe for
// concurrent use; pointer events arrive on a single goroutine.
type Selector struct {
	vp       Viewport
	current  *models.Region
	disabled bool

	drawing bool
	start   models.Point // display coordinates
	moved   bool
	last    *models.Region
}

func New(vp Viewport, current *models.Region) *Selector {
	return &Selector{vp: vp, current: current.Clone()}
}

func (s *Selector) SetViewport(vp Viewport) {
	s.vp = vp
}

func (s *Selector) Viewport() Viewport {
	return s.vp
}

// SetDisabled puts the selector in read-only mode and abandons any gesture in progress.
func (s *Selector) SetDisabled(disabled bool) {
	s.disabled = disabled
	if disabled {
		s.reset()
	}
}

func (s *Selector) Disabled() bool {
	return s.disabled
}

// Region is the last committed region, nil for the whole image.
func (s *Selector) Region() *models.Region {
	return s.current.Clone()
}

func (s *Selector) SetRegion(r *models.Region) {
	s.current = r.Clone()
}

func (s *Selector) Drawing() bool {
	return s.drawing
}

func (s *Selector) Press(p models.Point) {
	if s.disabled {
		return
	}
	s.drawing = true
	s.start = p
	s.moved = false
	s.last = nil
}

// Move reports the normalized image-space rectangle once the pointer has
// travelled at least MinDragDistance. Zero-area rectangles are not reported.
func (s *Selector) Move(p models.Point) (*models.Region, bool) {
	if s.disabled || !s.drawing {
		return nil, false
	}
	if math.Hypot(p.X-s.start.X, p.Y-s.start.Y) < MinDragDistance {
		return nil, false
	}
	s.moved = true

	r := models.NewRegion(s.vp.ToImage(s.start), s.vp.ToImage(p))
	if !r.Valid() {
		return nil, false
	}
	s.last = &r
	s.current = r.Clone()
	return r.Clone(), true
}

// Release ends the gesture. ok is false when no gesture was in progress.
// A click without a meaningful drag returns nil, clearing the selection.
// A drag that only ever produced zero-area rectangles keeps the current one.
func (s *Selector) Release() (r *models.Region, ok bool) {
	if s.disabled || !s.drawing {
		return nil, false
	}
	switch {
	case s.moved && s.last != nil:
		r = s.last.Clone()
	case s.moved:
		r = s.current.Clone()
	}
	s.current = r.Clone()
	s.reset()
	return r, true
}

// Leave is a release when the pointer exits the canvas.
func (s *Selector) Leave() (*models.Region, bool) {
	return s.Release()
}

// Drag runs a full press-move-release gesture between two display points.
func (s *Selector) Drag(from, to models.Point) (*models.Region, bool) {
	s.Press(from)
	s.Move(to)
	return s.Release()
}

func (s *Selector) reset() {
	s.drawing = false
	s.moved = false
	s.last = nil
}
