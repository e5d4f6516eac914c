package overlay

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/ironsheep/plansheet-mcp/internal/geometry"
)

// GeoJSON property keys used for feature metadata.
const (
	propType     = "type"
	propMaterial = "material"
	propLengthFt = "length_ft"
	propIncluded = "included"
)

// ToGeoJSON converts the collection into a strict GeoJSON FeatureCollection.
// Rings are closed on export since GeoJSON requires the first and last
// position to match. Features with an empty ring are exported as an empty
// Polygon.
func ToGeoJSON(fc FeatureCollection) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	for _, f := range fc.Features {
		g := orb.Polygon{}
		if len(f.Ring) > 0 {
			g = orb.Polygon{closedRing(f.Ring)}
		}
		gf := geojson.NewFeature(g)
		gf.ID = f.ID
		gf.Properties[propType] = f.Type
		gf.Properties[propIncluded] = f.Included
		if f.Material != "" {
			gf.Properties[propMaterial] = f.Material
		}
		if f.LengthFt != nil {
			gf.Properties[propLengthFt] = *f.LengthFt
		}
		out.Append(gf)
	}
	return out
}

// FromGeoJSON converts a GeoJSON FeatureCollection into a validated
// FeatureCollection. Only Polygon geometries are accepted; holes are dropped
// and the closing position is removed from the outer ring.
func FromGeoJSON(gfc *geojson.FeatureCollection) (FeatureCollection, error) {
	fc := FeatureCollection{Features: []Feature{}}
	if gfc == nil {
		return fc, nil
	}

	for i, gf := range gfc.Features {
		id, ok := gf.ID.(string)
		if !ok || id == "" {
			if s, ok := gf.Properties["id"].(string); ok {
				id = s
			}
		}
		if id == "" {
			return FeatureCollection{}, fmt.Errorf("%w: geojson feature %d has no string id", ErrInvalidGeometry, i)
		}

		f := Feature{
			ID:       id,
			Type:     gf.Properties.MustString(propType, ""),
			Material: gf.Properties.MustString(propMaterial, ""),
			Included: gf.Properties.MustBool(propIncluded, true),
		}
		if v, ok := gf.Properties[propLengthFt].(float64); ok {
			f.LengthFt = &v
		}

		switch g := gf.Geometry.(type) {
		case nil:
		case orb.Polygon:
			if len(g) > 0 {
				f.Ring = openRing(g[0])
			}
		default:
			return FeatureCollection{}, fmt.Errorf("%w: feature %q has %s geometry, want Polygon",
				ErrInvalidGeometry, id, gf.Geometry.GeoJSONType())
		}
		fc.Features = append(fc.Features, f)
	}

	if err := fc.Validate(); err != nil {
		return FeatureCollection{}, err
	}
	return fc, nil
}

// DecodeGeoJSON parses a GeoJSON FeatureCollection document.
func DecodeGeoJSON(data []byte) (FeatureCollection, error) {
	gfc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return FeatureCollection{}, fmt.Errorf("failed to decode geojson: %w", err)
	}
	return FromGeoJSON(gfc)
}

// Area returns the polygon area of a ring in square pixels.
func Area(ring []geometry.Point) float64 {
	if len(ring) < MinRingPoints {
		return 0
	}
	return math.Abs(planar.Area(orb.Polygon{closedRing(ring)}))
}

func closedRing(ring []geometry.Point) orb.Ring {
	out := make(orb.Ring, 0, len(ring)+1)
	for _, p := range ring {
		out = append(out, orb.Point{p.X, p.Y})
	}
	if len(out) > 0 && !out[0].Equal(out[len(out)-1]) {
		out = append(out, out[0])
	}
	return out
}

func openRing(r orb.Ring) []geometry.Point {
	n := len(r)
	if n > 1 && r[0].Equal(r[n-1]) {
		n--
	}
	out := make([]geometry.Point, n)
	for i := 0; i < n; i++ {
		out[i] = geometry.Pt(r[i][0], r[i][1])
	}
	return out
}
