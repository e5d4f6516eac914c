package imaging

import (
	"fmt"
	"strings"
)

// Tier is a resolution class of the same underlying raster.
type Tier string

const (
	TierThumbnail Tier = "thumbnail"
	TierPreview   Tier = "preview"
	TierFull      Tier = "full"

	// TierLegacy is reported when the legacy single-URL field was used.
	TierLegacy Tier = "legacy"
)

// ParseTier maps a tier name to a requestable Tier. Unknown or empty names
// yield TierPreview and false.
func ParseTier(name string) (Tier, bool) {
	switch Tier(strings.ToLower(strings.TrimSpace(name))) {
	case TierThumbnail:
		return TierThumbnail, true
	case TierPreview:
		return TierPreview, true
	case TierFull:
		return TierFull, true
	default:
		return TierPreview, false
	}
}

// ImageDescriptor lists the candidate URLs of a page image. Any field may be
// empty.
type ImageDescriptor struct {
	Thumbnail string `json:"thumbnail,omitempty"`
	Preview   string `json:"preview,omitempty"`
	Full      string `json:"full,omitempty"`
	Legacy    string `json:"legacy,omitempty"`
}

// IsEmpty reports whether the descriptor has no URL at all.
func (d ImageDescriptor) IsEmpty() bool {
	return d.Thumbnail == "" && d.Preview == "" && d.Full == "" && d.Legacy == ""
}

func (d ImageDescriptor) url(t Tier) string {
	switch t {
	case TierThumbnail:
		return d.Thumbnail
	case TierPreview:
		return d.Preview
	case TierFull:
		return d.Full
	case TierLegacy:
		return d.Legacy
	}
	return ""
}

// fallbackOrder lists, per requested tier, the slots tried in order.
var fallbackOrder = map[Tier][]Tier{
	TierThumbnail: {TierThumbnail, TierPreview, TierLegacy, TierFull},
	TierPreview:   {TierPreview, TierLegacy, TierFull, TierThumbnail},
	TierFull:      {TierFull, TierPreview, TierLegacy, TierThumbnail},
}

// Resolution is the URL chosen for a request and the tier it represents.
type Resolution struct {
	URL       string  `json:"url"`
	Tier      Tier    `json:"tier"`
	Requested Tier    `json:"requested"`
	Kind      URLKind `json:"kind"`
}

// Fallback reports whether the resolution came from a different slot than
// the one requested.
func (r Resolution) Fallback() bool {
	return r.Tier != r.Requested
}

// Resolve picks the best URL for the requested tier.
//
// Fallback order:
//
//	thumbnail: thumbnail, preview, legacy, full
//	preview:   preview, legacy, full, thumbnail
//	full:      full, preview, legacy, thumbnail
//
// A request for any other tier is treated as preview.
func Resolve(desc ImageDescriptor, requested Tier) (Resolution, error) {
	order, ok := fallbackOrder[requested]
	if !ok {
		requested = TierPreview
		order = fallbackOrder[TierPreview]
	}

	for _, t := range order {
		if u := strings.TrimSpace(desc.url(t)); u != "" {
			return Resolution{URL: u, Tier: t, Requested: requested, Kind: ClassifyURL(u)}, nil
		}
	}
	return Resolution{Requested: requested}, fmt.Errorf("%w for tier %s", ErrNoImageURL, requested)
}
