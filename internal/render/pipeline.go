// Package render draws plan sheet frames: the base raster, the polygon
// overlay, edit handles, and any polygon being drawn.
//
// The surface is an owned resource. Callers describe what to draw as a Scene
// and read the result back through the Drawer interface; nothing outside the
// package touches the drawing context.
package render

import (
	"errors"
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/effect"
	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"

	"github.com/ironsheep/plansheet-mcp/internal/geometry"
	"github.com/ironsheep/plansheet-mcp/internal/logging"
	"github.com/ironsheep/plansheet-mcp/internal/overlay"
)

// ErrNoRaster is returned when a scene has no base raster to size the
// surface from.
var ErrNoRaster = errors.New("no base raster to draw")

// Scene is everything a frame depends on.
type Scene struct {
	Base     image.Image
	Features overlay.FeatureCollection
	Selected string

	// ShowHandles draws vertex handles on the selected feature.
	ShowHandles bool

	// Draft is the open path of a polygon being drawn.
	Draft []geometry.Point

	Desaturate  bool
	GridSpacing int
	GridLabels  bool
}

// Frame reports what a Draw call did.
type Frame struct {
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	Features int      `json:"features"`
	Failed   []string `json:"failed,omitempty"`
	Handles  int      `json:"handles"`
	Draft    bool     `json:"draft"`
	Grid     bool     `json:"grid"`
}

// Drawer renders scenes onto a surface it owns.
type Drawer interface {
	Draw(s Scene) (Frame, error)
	Image() image.Image
}

// Pipeline is the Drawer backed by a software gg context. The backing store
// always matches the base raster's natural size, so ring coordinates in
// image-pixel space are drawn without further scaling.
type Pipeline struct {
	style     Style
	labelFace text.Face
	gridFace  text.Face

	dc *gg.Context
}

var _ Drawer = (*Pipeline)(nil)

// NewPipeline creates a pipeline with style.
func NewPipeline(style Style) (*Pipeline, error) {
	if err := style.Validate(); err != nil {
		return nil, err
	}
	labelFace, err := labelFont(style.LabelSize)
	if err != nil {
		return nil, err
	}
	gridFace, err := labelFont(gridLabelSize)
	if err != nil {
		return nil, err
	}
	return &Pipeline{style: style, labelFace: labelFace, gridFace: gridFace}, nil
}

// Image returns the last drawn frame, or nil before the first Draw.
func (p *Pipeline) Image() image.Image {
	if p.dc == nil {
		return nil
	}
	return p.dc.Image()
}

// Close releases the surface.
func (p *Pipeline) Close() error {
	if p.dc == nil {
		return nil
	}
	err := p.dc.Close()
	p.dc = nil
	return err
}

// Draw renders one frame. Failures in individual features are logged and
// reported in Frame.Failed; they never abort the pass.
func (p *Pipeline) Draw(s Scene) (Frame, error) {
	if s.Base == nil {
		return Frame{}, ErrNoRaster
	}
	b := s.Base.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return Frame{}, fmt.Errorf("%w: raster is %dx%d", ErrNoRaster, w, h)
	}
	if err := p.ensureSurface(w, h); err != nil {
		return Frame{}, err
	}

	frame := Frame{Width: w, Height: h}
	dc := p.dc

	dc.Clear()
	if err := p.drawBase(s.Base, s.Desaturate); err != nil {
		return frame, err
	}

	if s.GridSpacing > 0 {
		if err := guard(func() error { return p.drawGrid(w, h, s.GridSpacing, s.GridLabels) }); err != nil {
			logging.Logger().Warn("grid draw failed", "err", err)
		} else {
			frame.Grid = true
		}
	}

	for _, f := range s.Features.Features {
		if len(f.Ring) == 0 {
			continue
		}
		err := guard(func() error { return p.drawFeature(f, f.ID == s.Selected) })
		if err != nil {
			logging.Logger().Warn("feature draw failed", "feature", f.ID, "err", err)
			frame.Failed = append(frame.Failed, f.ID)
			continue
		}
		frame.Features++
	}

	if s.ShowHandles && s.Selected != "" {
		if f, ok := s.Features.Get(s.Selected); ok {
			n, err := p.drawHandles(f.Ring)
			if err != nil {
				logging.Logger().Warn("handle draw failed", "feature", f.ID, "err", err)
			}
			frame.Handles = n
		}
	}

	if len(s.Draft) > 0 {
		if err := guard(func() error { return p.drawDraft(s.Draft) }); err != nil {
			logging.Logger().Warn("draft draw failed", "err", err)
		} else {
			frame.Draft = true
		}
	}

	return frame, nil
}

func (p *Pipeline) ensureSurface(w, h int) error {
	if p.dc != nil && p.dc.Width() == w && p.dc.Height() == h {
		return nil
	}
	if p.dc != nil {
		if err := p.dc.Close(); err != nil {
			logging.Logger().Debug("closing previous surface", "err", err)
		}
	}
	p.dc = gg.NewContext(w, h)
	return nil
}

func (p *Pipeline) drawBase(base image.Image, desaturate bool) error {
	return guard(func() error {
		img := base
		if desaturate {
			img = effect.Grayscale(base)
		}
		p.dc.DrawImage(gg.ImageBufFromImage(img), 0, 0)
		return nil
	})
}

func (p *Pipeline) drawFeature(f overlay.Feature, selected bool) error {
	if err := overlay.ValidateRing(f.Ring); err != nil {
		return err
	}
	paint := p.style.PaintFor(selected, f.Included)
	dc := p.dc

	tracePath(dc, f.Ring, true)
	if err := p.setColor(paint.Fill, paint.FillAlpha); err != nil {
		return err
	}
	if err := dc.FillPreserve(); err != nil {
		return fmt.Errorf("fill: %w", err)
	}
	if err := p.setColor(paint.Stroke, 1); err != nil {
		return err
	}
	dc.SetLineWidth(paint.StrokeWidth)
	if err := dc.Stroke(); err != nil {
		return fmt.Errorf("stroke: %w", err)
	}

	c := geometry.Centroid(f.Ring)
	if err := p.setColor(p.style.Label, 1); err != nil {
		return err
	}
	dc.SetFont(p.labelFace)
	dc.DrawStringAnchored(f.ID, c.X, c.Y, 0.5, 0.5)
	return nil
}

func (p *Pipeline) drawHandles(ring []geometry.Point) (int, error) {
	drawn := 0
	for _, v := range ring {
		err := guard(func() error {
			dc := p.dc
			dc.ClearPath()
			dc.DrawCircle(v.X, v.Y, p.style.HandleRadius)
			if err := p.setColor(p.style.HandleFill, 1); err != nil {
				return err
			}
			if err := dc.FillPreserve(); err != nil {
				return err
			}
			if err := p.setColor(p.style.HandleStroke, 1); err != nil {
				return err
			}
			dc.SetLineWidth(1.5)
			return dc.Stroke()
		})
		if err != nil {
			return drawn, err
		}
		drawn++
	}
	return drawn, nil
}

func (p *Pipeline) drawDraft(path []geometry.Point) error {
	dc := p.dc
	if err := p.setColor(p.style.Draft, 1); err != nil {
		return err
	}
	if len(path) == 1 {
		dc.ClearPath()
		dc.DrawCircle(path[0].X, path[0].Y, p.style.DraftWidth*1.5)
		return dc.Fill()
	}
	tracePath(dc, path, false)
	dc.SetLineWidth(p.style.DraftWidth)
	return dc.Stroke()
}

func (p *Pipeline) setColor(hex string, alpha float64) error {
	r, g, b, a, err := rgba(hex, alpha)
	if err != nil {
		return err
	}
	p.dc.SetRGBA(r, g, b, a)
	return nil
}

// tracePath replaces the current path with pts, closing it if asked.
func tracePath(dc *gg.Context, pts []geometry.Point, closed bool) {
	dc.ClearPath()
	dc.MoveTo(pts[0].X, pts[0].Y)
	for _, pt := range pts[1:] {
		dc.LineTo(pt.X, pt.Y)
	}
	if closed {
		dc.ClosePath()
	}
}

// guard runs fn, turning a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
