package overlay

import (
	"math"

	"github.com/ironsheep/plansheet-mcp/internal/geometry"
)

// Edge is one side of a ring.
type Edge struct {
	From         int     `json:"from"`
	To           int     `json:"to"`
	LengthPixels float64 `json:"length_pixels"`
	AngleDegrees float64 `json:"angle_degrees"`
}

// Measurement describes a feature's ring in image pixels.
type Measurement struct {
	AreaPixels      float64        `json:"area_pixels"`
	PerimeterPixels float64        `json:"perimeter_pixels"`
	Bounds          geometry.Rect  `json:"bounds"`
	Centroid        geometry.Point `json:"centroid"`
	Edges           []Edge         `json:"edges"`
}

// Measure computes the area, perimeter and per-edge lengths of a ring,
// closing it implicitly. Angles are in degrees with 0 pointing right and 90
// pointing down, matching image coordinates.
func Measure(ring []geometry.Point) Measurement {
	m := Measurement{Edges: []Edge{}}
	if len(ring) == 0 {
		return m
	}
	m.Bounds = geometry.BoundingBox(ring)
	m.Centroid = geometry.Centroid(ring)
	if len(ring) < MinRingPoints {
		return m
	}

	for i := range ring {
		j := (i + 1) % len(ring)
		d := ring[j].Sub(ring[i])
		length := math.Hypot(d.X, d.Y)
		angle := math.Atan2(d.Y, d.X) * 180 / math.Pi

		m.PerimeterPixels += length
		m.Edges = append(m.Edges, Edge{
			From:         i,
			To:           j,
			LengthPixels: round2(length),
			AngleDegrees: math.Round(angle*10) / 10,
		})
	}
	m.PerimeterPixels = round2(m.PerimeterPixels)
	m.AreaPixels = round2(Area(ring))
	return m
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
