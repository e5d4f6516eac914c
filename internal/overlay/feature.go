// Package overlay defines the vector annotation data model drawn over a plan
// sheet: polygon features and the ordered collection that undo/redo snapshots.
package overlay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ironsheep/plansheet-mcp/internal/geometry"
)

var (
	// ErrInvalidGeometry is returned for rings that cannot form a polygon.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrFeatureNotFound is returned when an operation names an unknown feature id.
	ErrFeatureNotFound = errors.New("feature not found")

	// ErrDuplicateID is returned when a collection repeats a feature id.
	ErrDuplicateID = errors.New("duplicate feature id")
)

// MinRingPoints is the smallest number of vertices a non-empty ring may have.
const MinRingPoints = 3

// Feature is a single polygon annotation with typed metadata.
//
// The ring is in image-pixel space. The first and last point need not be
// equal; renderers close the path themselves.
type Feature struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Material string           `json:"material,omitempty"`
	LengthFt *float64         `json:"length_ft,omitempty"`
	Included bool             `json:"included"`
	Ring     []geometry.Point `json:"ring"`
}

// Clone returns a deep copy of the feature.
func (f Feature) Clone() Feature {
	out := f
	if f.Ring != nil {
		out.Ring = make([]geometry.Point, len(f.Ring))
		copy(out.Ring, f.Ring)
	}
	if f.LengthFt != nil {
		v := *f.LengthFt
		out.LengthFt = &v
	}
	return out
}

// Validate checks the feature's identifier and ring.
func (f Feature) Validate() error {
	if strings.TrimSpace(f.ID) == "" {
		return fmt.Errorf("%w: feature id is empty", ErrInvalidGeometry)
	}
	return ValidateRing(f.Ring)
}

// ValidateRing checks that a ring is either empty or has at least three
// finite vertices.
func ValidateRing(ring []geometry.Point) error {
	if len(ring) == 0 {
		return nil
	}
	if len(ring) < MinRingPoints {
		return fmt.Errorf("%w: ring has %d points, need at least %d", ErrInvalidGeometry, len(ring), MinRingPoints)
	}
	for i, p := range ring {
		if !p.IsFinite() {
			return fmt.Errorf("%w: ring point %d is not finite", ErrInvalidGeometry, i)
		}
	}
	return nil
}

// UnmarshalJSON decodes a feature, defaulting Included to true when the field
// is absent. Payloads commonly omit the flag for features that have never
// been toggled.
func (f *Feature) UnmarshalJSON(data []byte) error {
	type plain Feature
	aux := struct {
		*plain
		Included *bool            `json:"included"`
		Ring     *json.RawMessage `json:"ring"`
	}{plain: (*plain)(f)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Ring == nil {
		return fmt.Errorf("%w: feature %q has no ring", ErrInvalidGeometry, f.ID)
	}
	var ring []geometry.Point
	if err := json.Unmarshal(*aux.Ring, &ring); err != nil {
		return fmt.Errorf("%w: feature %q: %v", ErrInvalidGeometry, f.ID, err)
	}
	f.Ring = ring
	f.Included = aux.Included == nil || *aux.Included
	return nil
}

// NewFeatureID returns an identifier for a freshly drawn feature that does
// not collide with any id already in fc.
func NewFeatureID(prefix string, fc FeatureCollection) string {
	if prefix == "" {
		prefix = "feature"
	}
	for {
		id := prefix + "_" + strings.SplitN(uuid.NewString(), "-", 2)[0]
		if fc.IndexOf(id) < 0 {
			return id
		}
	}
}
