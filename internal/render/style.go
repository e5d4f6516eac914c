package render

import (
	"fmt"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Paint is a fill/stroke pair.
type Paint struct {
	Fill        string  `json:"fill"`
	FillAlpha   float64 `json:"fill_alpha"`
	Stroke      string  `json:"stroke"`
	StrokeWidth float64 `json:"stroke_width"`
}

// Style holds every color and size the pipeline uses. Colors are hex strings.
type Style struct {
	SelectedIncluded Paint `json:"selected_included"`
	Included         Paint `json:"included"`
	Excluded         Paint `json:"excluded"`

	// SelectedExcluded is used when the selected feature is excluded.
	SelectedExcluded Paint `json:"selected_excluded"`

	Label     string  `json:"label"`
	LabelSize float64 `json:"label_size"`

	HandleFill   string  `json:"handle_fill"`
	HandleStroke string  `json:"handle_stroke"`
	HandleRadius float64 `json:"handle_radius"`

	Draft      string  `json:"draft"`
	DraftWidth float64 `json:"draft_width"`

	Grid      string  `json:"grid"`
	GridAlpha float64 `json:"grid_alpha"`
}

// DefaultStyle returns the built-in palette.
func DefaultStyle() Style {
	return Style{
		SelectedIncluded: Paint{Fill: "#1e88e5", FillAlpha: 0.35, Stroke: "#0d47a1", StrokeWidth: 4},
		Included:         Paint{Fill: "#43a047", FillAlpha: 0.25, Stroke: "#1b5e20", StrokeWidth: 2},
		Excluded:         Paint{Fill: "#9e9e9e", FillAlpha: 0.15, Stroke: "#616161", StrokeWidth: 2},
		SelectedExcluded: Paint{Fill: "#9e9e9e", FillAlpha: 0.25, Stroke: "#0d47a1", StrokeWidth: 4},

		Label:     "#212121",
		LabelSize: 14,

		HandleFill:   "#ffffff",
		HandleStroke: "#0d47a1",
		HandleRadius: 5,

		Draft:      "#ff6f00",
		DraftWidth: 2,

		Grid:      "#e53935",
		GridAlpha: 0.5,
	}
}

// PaintFor picks the paint for a feature's (selected, included) state.
func (s Style) PaintFor(selected, included bool) Paint {
	switch {
	case selected && included:
		return s.SelectedIncluded
	case selected:
		return s.SelectedExcluded
	case included:
		return s.Included
	default:
		return s.Excluded
	}
}

// Validate checks that every color parses.
func (s Style) Validate() error {
	named := map[string]string{
		"selected_included.fill":   s.SelectedIncluded.Fill,
		"selected_included.stroke": s.SelectedIncluded.Stroke,
		"selected_excluded.fill":   s.SelectedExcluded.Fill,
		"selected_excluded.stroke": s.SelectedExcluded.Stroke,
		"included.fill":            s.Included.Fill,
		"included.stroke":          s.Included.Stroke,
		"excluded.fill":            s.Excluded.Fill,
		"excluded.stroke":          s.Excluded.Stroke,
		"label":                    s.Label,
		"handle_fill":              s.HandleFill,
		"handle_stroke":            s.HandleStroke,
		"draft":                    s.Draft,
		"grid":                     s.Grid,
	}
	for name, hex := range named {
		if _, err := colorful.Hex(hex); err != nil {
			return fmt.Errorf("invalid color %s %q: %w", name, hex, err)
		}
	}
	return nil
}

// rgba converts a hex color and alpha into the 0-1 components the drawing
// context takes.
func rgba(hex string, alpha float64) (r, g, b, a float64, err error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("invalid color %q: %w", hex, err)
	}
	c = c.Clamped()
	return c.R, c.G, c.B, alpha, nil
}
