package overlay

import (
	"encoding/json"
	"fmt"
)

// FeatureCollection is an ordered set of features.
//
// Order is insertion order and only drives iteration (hit-testing, drawing);
// it carries no other meaning. A collection is the unit of undo/redo and is
// always replaced wholesale, never merged.
type FeatureCollection struct {
	Features []Feature `json:"features"`
}

// Len returns the number of features.
func (fc FeatureCollection) Len() int {
	return len(fc.Features)
}

// Clone returns a deep copy; history snapshots must never share rings with
// the live collection.
func (fc FeatureCollection) Clone() FeatureCollection {
	out := FeatureCollection{Features: make([]Feature, len(fc.Features))}
	for i, f := range fc.Features {
		out.Features[i] = f.Clone()
	}
	return out
}

// IndexOf returns the position of the feature with the given id, or -1.
func (fc FeatureCollection) IndexOf(id string) int {
	for i := range fc.Features {
		if fc.Features[i].ID == id {
			return i
		}
	}
	return -1
}

// Get returns a copy of the feature with the given id.
func (fc FeatureCollection) Get(id string) (Feature, bool) {
	i := fc.IndexOf(id)
	if i < 0 {
		return Feature{}, false
	}
	return fc.Features[i].Clone(), true
}

// Validate checks every feature and the uniqueness of ids.
func (fc FeatureCollection) Validate() error {
	seen := make(map[string]bool, len(fc.Features))
	for i, f := range fc.Features {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("feature %d: %w", i, err)
		}
		if seen[f.ID] {
			return fmt.Errorf("%w: %q", ErrDuplicateID, f.ID)
		}
		seen[f.ID] = true
	}
	return nil
}

// Append returns a copy of the collection with f added at the end.
func (fc FeatureCollection) Append(f Feature) (FeatureCollection, error) {
	if err := f.Validate(); err != nil {
		return fc, err
	}
	if fc.IndexOf(f.ID) >= 0 {
		return fc, fmt.Errorf("%w: %q", ErrDuplicateID, f.ID)
	}
	out := fc.Clone()
	out.Features = append(out.Features, f.Clone())
	return out, nil
}

// Remove returns a copy of the collection without the feature id.
func (fc FeatureCollection) Remove(id string) (FeatureCollection, error) {
	i := fc.IndexOf(id)
	if i < 0 {
		return fc, fmt.Errorf("%w: %q", ErrFeatureNotFound, id)
	}
	out := fc.Clone()
	out.Features = append(out.Features[:i], out.Features[i+1:]...)
	return out, nil
}

// Update returns a copy of the collection with fn applied to feature id.
// The result is validated before it is returned.
func (fc FeatureCollection) Update(id string, fn func(*Feature)) (FeatureCollection, error) {
	i := fc.IndexOf(id)
	if i < 0 {
		return fc, fmt.Errorf("%w: %q", ErrFeatureNotFound, id)
	}
	out := fc.Clone()
	fn(&out.Features[i])
	if err := out.Features[i].Validate(); err != nil {
		return fc, err
	}
	return out, nil
}

// Equal reports deep equality of two collections.
func (fc FeatureCollection) Equal(other FeatureCollection) bool {
	if len(fc.Features) != len(other.Features) {
		return false
	}
	for i := range fc.Features {
		if !featuresEqual(fc.Features[i], other.Features[i]) {
			return false
		}
	}
	return true
}

func featuresEqual(a, b Feature) bool {
	if a.ID != b.ID || a.Type != b.Type || a.Material != b.Material || a.Included != b.Included {
		return false
	}
	if (a.LengthFt == nil) != (b.LengthFt == nil) {
		return false
	}
	if a.LengthFt != nil && *a.LengthFt != *b.LengthFt {
		return false
	}
	if len(a.Ring) != len(b.Ring) {
		return false
	}
	for i := range a.Ring {
		if a.Ring[i] != b.Ring[i] {
			return false
		}
	}
	return true
}

// Decode parses and validates a native FeatureCollection payload. A null or
// empty payload decodes to an empty collection.
func Decode(data []byte) (FeatureCollection, error) {
	fc := FeatureCollection{Features: []Feature{}}
	if len(data) == 0 || string(data) == "null" {
		return fc, nil
	}
	if err := json.Unmarshal(data, &fc); err != nil {
		return FeatureCollection{}, fmt.Errorf("failed to decode feature collection: %w", err)
	}
	if fc.Features == nil {
		fc.Features = []Feature{}
	}
	if err := fc.Validate(); err != nil {
		return FeatureCollection{}, err
	}
	return fc, nil
}
