package sheet

import (
	"context"
	"fmt"

	"github.com/ironsheep/plansheet-mcp/internal/annotate"
	"github.com/ironsheep/plansheet-mcp/internal/geometry"
	"github.com/ironsheep/plansheet-mcp/internal/imaging"
	"github.com/ironsheep/plansheet-mcp/internal/overlay"
	"github.com/ironsheep/plansheet-mcp/internal/render"
)

// SetTool switches the active tool.
func (s *Sheet) SetTool(t annotate.Tool) error {
	return s.do(context.Background(), func() error {
		s.machine.SetTool(t)
		return nil
	})
}

// Pointer dispatches one pointer event. The element's backing size is taken
// from the loaded raster when the caller leaves it zero.
func (s *Sheet) Pointer(ctx context.Context, phase annotate.Phase, ev geometry.PointerEvent, el geometry.SurfaceElement) (annotate.Result, error) {
	var res annotate.Result
	err := s.do(ctx, func() error {
		if el.BackingWidth == 0 && el.BackingHeight == 0 {
			el = s.pointerSurface(el)
		}
		res = s.dispatcher.Dispatch(phase, ev, el)
		return nil
	})
	return res, err
}

// FinishDrawing commits the polygon in progress.
func (s *Sheet) FinishDrawing(ctx context.Context) error {
	return s.do(ctx, s.machine.FinishDrawing)
}

// CancelDrawing drops the polygon in progress.
func (s *Sheet) CancelDrawing() error {
	return s.do(context.Background(), func() error {
		s.machine.CancelDrawing()
		return nil
	})
}

// Undo reverts the last commit. It reports false when there was nothing to
// undo.
func (s *Sheet) Undo(ctx context.Context) (bool, error) {
	var ok bool
	err := s.do(ctx, func() error {
		ok = s.machine.Undo()
		return nil
	})
	return ok, err
}

// Redo re-applies the last undone commit.
func (s *Sheet) Redo(ctx context.Context) (bool, error) {
	var ok bool
	err := s.do(ctx, func() error {
		ok = s.machine.Redo()
		return nil
	})
	return ok, err
}

// ZoomIn steps the view scale up and returns it.
func (s *Sheet) ZoomIn() (float64, error) {
	var scale float64
	err := s.do(context.Background(), func() error {
		scale = s.machine.ZoomIn()
		return nil
	})
	return scale, err
}

// ZoomOut steps the view scale down and returns it.
func (s *Sheet) ZoomOut() (float64, error) {
	var scale float64
	err := s.do(context.Background(), func() error {
		scale = s.machine.ZoomOut()
		return nil
	})
	return scale, err
}

// ResetView restores scale 1 and no pan.
func (s *Sheet) ResetView() error {
	return s.do(context.Background(), func() error {
		s.machine.ResetView()
		return nil
	})
}

// Select sets the selection; an empty id clears it. Programmatic selection
// does not fire the selection callback.
func (s *Sheet) Select(id string) error {
	return s.do(context.Background(), func() error { return s.machine.Select(id) })
}

// ToggleInclusion flips whether id counts toward the takeoff.
func (s *Sheet) ToggleInclusion(ctx context.Context, id string) error {
	return s.do(ctx, func() error { return s.machine.ToggleInclusion(id) })
}

// Delete removes id.
func (s *Sheet) Delete(ctx context.Context, id string) error {
	return s.do(ctx, func() error { return s.machine.Delete(id) })
}

// UpdateAttributes edits id's metadata.
func (s *Sheet) UpdateAttributes(ctx context.Context, id string, attrs annotate.Attributes) error {
	return s.do(ctx, func() error { return s.machine.UpdateAttributes(id, attrs) })
}

// FeatureInfo is a feature with its measurements.
type FeatureInfo struct {
	Feature     overlay.Feature     `json:"feature"`
	Selected    bool                `json:"selected"`
	Measurement overlay.Measurement `json:"measurement"`
}

// Info describes id, or the selected feature when id is empty.
func (s *Sheet) Info(id string) (FeatureInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return FeatureInfo{}, ErrClosed
	}
	if id == "" {
		id = s.machine.Selected()
	}
	if id == "" {
		return FeatureInfo{}, fmt.Errorf("%w: no feature selected", overlay.ErrFeatureNotFound)
	}
	fc := s.machine.Features()
	f, ok := fc.Get(id)
	if !ok {
		return FeatureInfo{}, fmt.Errorf("%w: %s", overlay.ErrFeatureNotFound, id)
	}
	return FeatureInfo{
		Feature:     f,
		Selected:    id == s.machine.Selected(),
		Measurement: overlay.Measure(f.Ring),
	}, nil
}

// RenderOptions control a rendered view.
type RenderOptions struct {
	// Container is the display box; zero means natural size.
	Container   geometry.Size
	Desaturate  bool
	GridSpacing int
	GridLabels  bool
}

// Rendered is a frame scaled for display.
type Rendered struct {
	Frame    render.Frame            `json:"frame"`
	Viewport *imaging.ViewportResult `json:"viewport"`
}

// Render draws the current state and scales it to the container at the
// current zoom.
func (s *Sheet) Render(opts RenderOptions) (*Rendered, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.raster == nil || !s.machine.RasterLoaded() {
		return nil, ErrNotLoaded
	}

	st := s.machine.State()
	scene := render.Scene{
		Base:        s.raster,
		Features:    s.machine.Features(),
		Selected:    st.Selected,
		ShowHandles: st.Tool == annotate.ToolEdit,
		Draft:       st.Path,
		Desaturate:  opts.Desaturate,
		GridSpacing: opts.GridSpacing,
		GridLabels:  opts.GridLabels,
	}
	frame, err := s.pipeline.Draw(scene)
	if err != nil {
		return nil, err
	}
	s.stale = false

	vp, err := imaging.Viewport(s.pipeline.Image(), opts.Container, st.Scale)
	if err != nil {
		return nil, err
	}
	return &Rendered{Frame: frame, Viewport: vp}, nil
}
