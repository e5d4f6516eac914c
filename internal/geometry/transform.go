package geometry

import "math"

// PointerEvent is a pointer position in client (display) coordinates.
type PointerEvent struct {
	ClientX float64 `json:"client_x"`
	ClientY float64 `json:"client_y"`
}

// SurfaceElement describes where the drawing surface is displayed and how
// large its backing store is.
//
// The displayed box may be scaled non-uniformly relative to the backing
// store, so each axis carries its own ratio.
type SurfaceElement struct {
	Left          float64 `json:"left"`
	Top           float64 `json:"top"`
	DisplayWidth  float64 `json:"display_width"`
	DisplayHeight float64 `json:"display_height"`
	BackingWidth  int     `json:"backing_width"`
	BackingHeight int     `json:"backing_height"`
}

// ToSurfaceCoordinates maps a pointer event into backing-store pixels.
//
// The offset from the element's top-left corner is divided by the
// display-to-backing ratio of each axis independently. An axis with a zero
// display or backing size is passed through unscaled.
func ToSurfaceCoordinates(ev PointerEvent, el SurfaceElement) Point {
	x := ev.ClientX - el.Left
	y := ev.ClientY - el.Top

	if el.DisplayWidth > 0 && el.BackingWidth > 0 {
		x /= el.DisplayWidth / float64(el.BackingWidth)
	}
	if el.DisplayHeight > 0 && el.BackingHeight > 0 {
		y /= el.DisplayHeight / float64(el.BackingHeight)
	}
	return Point{X: x, Y: y}
}

// PointInPolygon tests if a point is inside a ring using even-odd ray casting.
//
// Edges are visited as (i, i-1) pairs with the first vertex paired to the
// last, so the ring does not need to repeat its first point. Rings with fewer
// than three points never contain anything.
func PointInPolygon(p Point, ring []Point) bool {
	n := len(ring)
	if n < 3 {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := ring[i], ring[j]

		// Horizontal edges never satisfy the straddle test, so the division
		// below cannot be by zero.
		if (pi.Y > p.Y) != (pj.Y > p.Y) &&
			p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
	}
	return inside
}

// FitToContainer returns the scale that fits natural inside container without
// ever upscaling past the native resolution.
//
//	scale = min(containerWidth/imgWidth, containerHeight/imgHeight, 1.0)
//
// An empty natural size fits at 1.0; an empty container yields 0.
func FitToContainer(natural, container Size) float64 {
	if natural.Width <= 0 || natural.Height <= 0 {
		return 1.0
	}
	if container.Width <= 0 || container.Height <= 0 {
		return 0
	}
	return math.Min(math.Min(container.Width/natural.Width, container.Height/natural.Height), 1.0)
}
