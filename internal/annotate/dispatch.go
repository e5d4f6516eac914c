package annotate

import (
	"github.com/ironsheep/plansheet-mcp/internal/geometry"
	"github.com/ironsheep/plansheet-mcp/internal/logging"
)

// Phase identifies a pointer event.
type Phase string

const (
	PhaseDown Phase = "down"
	PhaseMove Phase = "move"
	PhaseUp   Phase = "up"
)

// Dispatcher routes raw pointer events to exactly one Machine behavior for
// the active tool. Nothing is routed while the raster is not loaded.
type Dispatcher struct {
	m *Machine
}

// NewDispatcher creates a dispatcher over m.
func NewDispatcher(m *Machine) *Dispatcher {
	return &Dispatcher{m: m}
}

// Result describes what a dispatched event did.
type Result struct {
	Handled bool           `json:"handled"`
	Tool    Tool           `json:"tool"`
	Point   geometry.Point `json:"point"`
	Err     error          `json:"-"`
}

// Dispatch routes ev according to phase.
func (d *Dispatcher) Dispatch(phase Phase, ev geometry.PointerEvent, el geometry.SurfaceElement) Result {
	switch phase {
	case PhaseDown:
		return d.PointerDown(ev, el)
	case PhaseMove:
		return d.PointerMove(ev, el)
	case PhaseUp:
		return d.PointerUp(ev, el)
	}
	return Result{Tool: d.m.Tool()}
}

// PointerDown handles a press.
func (d *Dispatcher) PointerDown(ev geometry.PointerEvent, el geometry.SurfaceElement) Result {
	res, ok := d.begin(ev, el)
	if !ok {
		return res
	}
	p := res.Point

	switch res.Tool {
	case ToolSelect:
		d.m.SelectAt(p)
	case ToolPan:
		d.m.BeginPan(clientPoint(ev))
	case ToolPolygon:
		d.m.AddVertex(p)
	case ToolRectangle:
		d.m.BeginRectangle(p)
	case ToolEdit:
		if !d.m.GrabHandle(p) {
			d.m.SelectAt(p)
		}
	default:
		res.Handled = false
	}
	return res
}

// PointerMove handles motion. Only pan, rectangle and edit respond to it.
func (d *Dispatcher) PointerMove(ev geometry.PointerEvent, el geometry.SurfaceElement) Result {
	res, ok := d.begin(ev, el)
	if !ok {
		return res
	}

	switch res.Tool {
	case ToolPan:
		d.m.PanTo(clientPoint(ev))
	case ToolRectangle:
		d.m.UpdateRectangle(res.Point)
	case ToolEdit:
		d.m.DragHandle(res.Point)
	default:
		res.Handled = false
	}
	return res
}

// PointerUp handles a release.
func (d *Dispatcher) PointerUp(ev geometry.PointerEvent, el geometry.SurfaceElement) Result {
	res, ok := d.begin(ev, el)
	if !ok {
		return res
	}

	switch res.Tool {
	case ToolPan:
		d.m.EndPan()
	case ToolRectangle:
		res.Err = d.m.EndRectangle(res.Point)
	case ToolEdit:
		d.m.ReleaseHandle()
	default:
		res.Handled = false
	}
	return res
}

func (d *Dispatcher) begin(ev geometry.PointerEvent, el geometry.SurfaceElement) (Result, bool) {
	res := Result{Tool: d.m.Tool()}
	if !d.m.RasterLoaded() {
		logging.Logger().Debug("pointer event ignored", "reason", "raster not loaded")
		return res, false
	}
	res.Point = geometry.ToSurfaceCoordinates(ev, el)
	res.Handled = true
	return res, true
}

// Pan offsets live in client space, so drags are measured there too.
func clientPoint(ev geometry.PointerEvent) geometry.Point {
	return geometry.Pt(ev.ClientX, ev.ClientY)
}
