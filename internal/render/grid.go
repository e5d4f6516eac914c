package render

import "fmt"

const (
	gridLabelSize = 10

	// minLabeledSpacing keeps labels from overlapping on dense grids.
	minLabeledSpacing = 40
)

// drawGrid overlays a coordinate grid in image-pixel space so that positions
// on the sheet can be read off the frame.
func (p *Pipeline) drawGrid(w, h, spacing int, labels bool) error {
	dc := p.dc
	if err := p.setColor(p.style.Grid, p.style.GridAlpha); err != nil {
		return err
	}
	dc.SetLineWidth(1)

	dc.ClearPath()
	for x := spacing; x < w; x += spacing {
		dc.MoveTo(float64(x)+0.5, 0)
		dc.LineTo(float64(x)+0.5, float64(h))
	}
	for y := spacing; y < h; y += spacing {
		dc.MoveTo(0, float64(y)+0.5)
		dc.LineTo(float64(w), float64(y)+0.5)
	}
	if err := dc.Stroke(); err != nil {
		return fmt.Errorf("grid stroke: %w", err)
	}

	if !labels || spacing < minLabeledSpacing {
		return nil
	}
	if err := p.setColor(p.style.Grid, 1); err != nil {
		return err
	}
	dc.SetFont(p.gridFace)
	for y := spacing; y < h; y += spacing {
		for x := spacing; x < w; x += spacing {
			dc.DrawStringAnchored(fmt.Sprintf("%d,%d", x, y), float64(x)+2, float64(y)+2, 0, 1)
		}
	}
	return nil
}
