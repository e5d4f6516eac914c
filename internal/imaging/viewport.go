package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/plansheet-mcp/internal/geometry"
)

// ViewportResult is a rendered frame scaled for display.
type ViewportResult struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Scale       float64 `json:"scale"`
	ImageBase64 string  `json:"image_base64"`
	MimeType    string  `json:"mime_type"`
}

// Viewport scales img by FitToContainer(natural, container) × zoom and
// encodes the result as PNG. A zero container means "natural size", so the
// frame is only scaled by zoom.
func Viewport(img image.Image, container geometry.Size, zoom float64) (*ViewportResult, error) {
	if img == nil {
		return nil, fmt.Errorf("no image to export")
	}
	if zoom <= 0 || math.IsNaN(zoom) || math.IsInf(zoom, 0) {
		return nil, fmt.Errorf("invalid zoom: %v", zoom)
	}

	b := img.Bounds()
	natural := geometry.Size{Width: float64(b.Dx()), Height: float64(b.Dy())}

	fit := 1.0
	if container.Width > 0 && container.Height > 0 {
		fit = geometry.FitToContainer(natural, container)
	}
	scale := fit * zoom

	out := img
	if scale != 1.0 {
		w := int(math.Round(natural.Width * scale))
		h := int(math.Round(natural.Height * scale))
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
		out = imaging.Resize(img, w, h, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("failed to encode viewport image: %w", err)
	}

	return &ViewportResult{
		Width:       out.Bounds().Dx(),
		Height:      out.Bounds().Dy(),
		Scale:       scale,
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}
