// Package annotate implements the interactive editing state of a plan sheet:
// the active tool, selection, view transform, in-progress drawing, and
// snapshot undo/redo over the feature collection.
//
// A Machine is not safe for concurrent use. The owner serializes access.
package annotate

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ironsheep/plansheet-mcp/internal/geometry"
	"github.com/ironsheep/plansheet-mcp/internal/logging"
	"github.com/ironsheep/plansheet-mcp/internal/overlay"
)

// Tool is the active interaction mode.
type Tool string

const (
	ToolSelect    Tool = "select"
	ToolPan       Tool = "pan"
	ToolRectangle Tool = "rectangle"
	ToolPolygon   Tool = "polygon"
	ToolEdit      Tool = "edit"
)

// Tools lists every tool in toolbar order.
var Tools = []Tool{ToolSelect, ToolPan, ToolRectangle, ToolPolygon, ToolEdit}

// ErrUnknownTool is returned by ParseTool.
var ErrUnknownTool = errors.New("unknown tool")

// ParseTool maps a tool name to a Tool.
func ParseTool(name string) (Tool, error) {
	t := Tool(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Tools {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
}

// View transform limits.
const (
	ZoomStep = 1.2
	MinScale = 0.1
	MaxScale = 3.0
)

// HandleRadius is the grab distance, in surface pixels, around an edit handle.
const HandleRadius = 10.0

// DefaultFeatureType is assigned to freshly drawn features.
const DefaultFeatureType = "area"

// ChangeKind says what part of the state a Change touched.
type ChangeKind string

const (
	ChangeCollection ChangeKind = "collection"
	ChangeSelection  ChangeKind = "selection"
	ChangeTool       ChangeKind = "tool"
	ChangeDraft      ChangeKind = "draft"
	ChangeView       ChangeKind = "view"
	ChangeRaster     ChangeKind = "raster"
)

// Change is delivered to OnChange observers. Every Change is a frame trigger.
type Change struct {
	Kind ChangeKind
}

// CanvasState is a read-only snapshot of the machine.
type CanvasState struct {
	Tool         Tool             `json:"tool"`
	Selected     string           `json:"selected,omitempty"`
	Scale        float64          `json:"scale"`
	Pan          geometry.Point   `json:"pan"`
	Dragging     bool             `json:"dragging"`
	Drawing      bool             `json:"drawing"`
	Path         []geometry.Point `json:"path,omitempty"`
	RasterLoaded bool             `json:"raster_loaded"`
	FeatureCount int              `json:"feature_count"`
	UndoDepth    int              `json:"undo_depth"`
	RedoDepth    int              `json:"redo_depth"`
}

// Attributes is a partial update of a feature's metadata. Nil fields are
// left alone.
type Attributes struct {
	Type     *string
	Material *string
	LengthFt *float64
	// ClearLength removes LengthFt.
	ClearLength bool
}

// Options configure a Machine.
type Options struct {
	IDPrefix     string
	FeatureType  string
	HistoryLimit int
}

// Machine is the annotation state machine for one sheet.
type Machine struct {
	opts Options

	features overlay.FeatureCollection
	selected string
	tool     Tool

	scale      float64
	pan        geometry.Point
	dragging   bool
	dragOrigin geometry.Point

	drawing bool
	path    []geometry.Point

	rectAnchor geometry.Point
	rectActive bool

	editIndex  int
	editBefore overlay.FeatureCollection
	editMoved  bool

	rasterLoaded bool

	history *History

	changeObservers []func(Change)
	commitObservers []func(overlay.FeatureCollection)
	selectObservers []func(string)
}

// NewMachine creates a machine in the select tool at scale 1 over fc.
func NewMachine(fc overlay.FeatureCollection, opts Options) *Machine {
	if opts.FeatureType == "" {
		opts.FeatureType = DefaultFeatureType
	}
	return &Machine{
		opts:      opts,
		features:  fc.Clone(),
		tool:      ToolSelect,
		scale:     1.0,
		editIndex: -1,
		history:   NewHistory(opts.HistoryLimit),
	}
}

// OnChange registers fn for every frame trigger.
func (m *Machine) OnChange(fn func(Change)) { m.changeObservers = append(m.changeObservers, fn) }

// OnCommit registers fn for every committed mutation, undo and redo included.
// fn receives a copy of the new collection.
func (m *Machine) OnCommit(fn func(overlay.FeatureCollection)) {
	m.commitObservers = append(m.commitObservers, fn)
}

// OnSelect registers fn for select-tool hits.
func (m *Machine) OnSelect(fn func(featureID string)) {
	m.selectObservers = append(m.selectObservers, fn)
}

// State returns a snapshot.
func (m *Machine) State() CanvasState {
	st := CanvasState{
		Tool:         m.tool,
		Selected:     m.selected,
		Scale:        m.scale,
		Pan:          m.pan,
		Dragging:     m.dragging,
		Drawing:      m.drawing,
		RasterLoaded: m.rasterLoaded,
		FeatureCount: m.features.Len(),
		UndoDepth:    m.history.UndoDepth(),
		RedoDepth:    m.history.RedoDepth(),
	}
	if len(m.path) > 0 {
		st.Path = append([]geometry.Point(nil), m.path...)
	}
	return st
}

// Features returns a copy of the current collection.
func (m *Machine) Features() overlay.FeatureCollection { return m.features.Clone() }

func (m *Machine) Tool() Tool { return m.tool }

func (m *Machine) Selected() string { return m.selected }

func (m *Machine) Scale() float64 { return m.scale }

func (m *Machine) Pan() geometry.Point { return m.pan }

func (m *Machine) Drawing() bool { return m.drawing }

func (m *Machine) RasterLoaded() bool { return m.rasterLoaded }

func (m *Machine) History() *History { return m.history }

// Path returns a copy of the in-progress drawing path.
func (m *Machine) Path() []geometry.Point {
	return append([]geometry.Point(nil), m.path...)
}

// LoadCollection replaces the collection wholesale, as when a page record
// arrives. History is cleared; this is not a commit.
func (m *Machine) LoadCollection(fc overlay.FeatureCollection) {
	m.features = fc.Clone()
	m.history.Reset()
	m.discardDraft()
	m.endEdit()
	if m.selected != "" && m.features.IndexOf(m.selected) < 0 {
		m.selected = ""
	}
	m.emit(ChangeCollection)
}

// SetRasterLoaded records whether the base raster is drawable.
func (m *Machine) SetRasterLoaded(loaded bool) {
	if m.rasterLoaded == loaded {
		return
	}
	m.rasterLoaded = loaded
	if !loaded {
		m.dragging = false
		m.ReleaseHandle()
	}
	m.emit(ChangeRaster)
}

// SetTool switches the active tool. Leaving a drawing tool discards the
// in-progress path; leaving pan ends any drag; leaving edit commits a moved
// handle.
func (m *Machine) SetTool(t Tool) {
	if t == m.tool {
		return
	}
	switch m.tool {
	case ToolPolygon, ToolRectangle:
		m.discardDraft()
	case ToolPan:
		m.dragging = false
	case ToolEdit:
		m.ReleaseHandle()
	}
	m.tool = t
	m.emit(ChangeTool)
}

// HitTest returns the first feature, in collection order, whose ring
// contains p.
func (m *Machine) HitTest(p geometry.Point) (string, bool) {
	for _, f := range m.features.Features {
		if geometry.PointInPolygon(p, f.Ring) {
			return f.ID, true
		}
	}
	return "", false
}

// SelectAt runs the select-tool behavior at p: a hit selects and notifies
// selection observers, a miss clears the selection.
func (m *Machine) SelectAt(p geometry.Point) {
	id, ok := m.HitTest(p)
	if !ok {
		m.setSelected("")
		return
	}
	m.setSelected(id)
	for _, fn := range m.selectObservers {
		fn(id)
	}
}

// Select sets the selection programmatically. An empty id clears it.
func (m *Machine) Select(id string) error {
	if id != "" && m.features.IndexOf(id) < 0 {
		return fmt.Errorf("%w: %s", overlay.ErrFeatureNotFound, id)
	}
	m.setSelected(id)
	return nil
}

func (m *Machine) setSelected(id string) {
	if m.selected == id {
		return
	}
	m.ReleaseHandle()
	m.selected = id
	m.emit(ChangeSelection)
}

// BeginPan starts a drag at origin, in client space.
func (m *Machine) BeginPan(origin geometry.Point) {
	m.dragging = true
	m.dragOrigin = origin
}

// PanTo moves the view by the delta from the last drag position.
func (m *Machine) PanTo(p geometry.Point) {
	if !m.dragging {
		return
	}
	m.pan = m.pan.Add(p.Sub(m.dragOrigin))
	m.dragOrigin = p
	m.emit(ChangeView)
}

// EndPan clears the drag.
func (m *Machine) EndPan() {
	m.dragging = false
}

// AddVertex starts a polygon path or appends to the one in progress.
func (m *Machine) AddVertex(p geometry.Point) {
	if !m.drawing {
		m.drawing = true
		m.path = m.path[:0]
	}
	m.path = append(m.path, p)
	m.emit(ChangeDraft)
}

// BeginRectangle anchors a rectangle at p.
func (m *Machine) BeginRectangle(p geometry.Point) {
	m.rectAnchor = p
	m.rectActive = true
	m.drawing = true
	m.path = geometry.RectangleRing(p, p)
	m.emit(ChangeDraft)
}

// UpdateRectangle previews the rectangle spanning the anchor and p.
func (m *Machine) UpdateRectangle(p geometry.Point) {
	if !m.rectActive {
		return
	}
	m.path = geometry.RectangleRing(m.rectAnchor, p)
	m.emit(ChangeDraft)
}

// EndRectangle commits the rectangle spanning the anchor and p.
func (m *Machine) EndRectangle(p geometry.Point) error {
	if !m.rectActive {
		return nil
	}
	m.path = geometry.RectangleRing(m.rectAnchor, p)
	return m.FinishDrawing()
}

// FinishDrawing commits the in-progress path as a new feature. A path with
// fewer than three vertices, or a rectangle with no area, is rejected with
// ErrInvalidGeometry and nothing is committed.
func (m *Machine) FinishDrawing() error {
	if !m.drawing {
		return fmt.Errorf("%w: nothing is being drawn", overlay.ErrInvalidGeometry)
	}

	ring := append([]geometry.Point(nil), m.path...)
	if m.rectActive {
		b := geometry.BoundingBox(ring)
		if b.Width <= 0 || b.Height <= 0 {
			m.discardDraft()
			logging.Logger().Debug("rectangle rejected", "reason", "zero area")
			return fmt.Errorf("%w: rectangle has no area", overlay.ErrInvalidGeometry)
		}
	}
	if len(ring) < overlay.MinRingPoints {
		logging.Logger().Debug("polygon rejected", "vertices", len(ring))
		return fmt.Errorf("%w: %d vertices, need at least %d", overlay.ErrInvalidGeometry, len(ring), overlay.MinRingPoints)
	}

	f := overlay.Feature{
		ID:       overlay.NewFeatureID(m.opts.IDPrefix, m.features),
		Type:     m.opts.FeatureType,
		Included: true,
		Ring:     ring,
	}
	next, err := m.features.Append(f)
	if err != nil {
		logging.Logger().Debug("polygon rejected", "err", err)
		return err
	}

	m.discardDraft()
	m.commit(next)
	return nil
}

// CancelDrawing drops the in-progress path.
func (m *Machine) CancelDrawing() {
	if !m.drawing {
		return
	}
	m.discardDraft()
	m.emit(ChangeDraft)
}

func (m *Machine) discardDraft() {
	m.drawing = false
	m.rectActive = false
	m.path = nil
}

// GrabHandle starts dragging the selected feature's vertex nearest to p if
// it lies within HandleRadius. It reports whether a handle was grabbed.
func (m *Machine) GrabHandle(p geometry.Point) bool {
	if m.selected == "" {
		return false
	}
	f, ok := m.features.Get(m.selected)
	if !ok {
		return false
	}

	best, bestDist := -1, math.Inf(1)
	for i, v := range f.Ring {
		if d := v.Distance(p); d <= HandleRadius && d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return false
	}

	m.editIndex = best
	m.editBefore = m.features.Clone()
	m.editMoved = false
	return true
}

// DragHandle moves the grabbed vertex to p in place.
func (m *Machine) DragHandle(p geometry.Point) {
	if m.editIndex < 0 {
		return
	}
	i := m.features.IndexOf(m.selected)
	if i < 0 || m.editIndex >= len(m.features.Features[i].Ring) {
		m.endEdit()
		return
	}
	ring := m.features.Features[i].Ring
	if ring[m.editIndex] == p {
		return
	}
	ring[m.editIndex] = p
	m.editMoved = true
	m.emit(ChangeCollection)
}

// ReleaseHandle ends a handle drag, committing it if the vertex moved.
func (m *Machine) ReleaseHandle() {
	if m.editIndex < 0 {
		return
	}
	moved, before := m.editMoved, m.editBefore
	m.endEdit()
	if !moved {
		return
	}
	m.history.Record(before)
	m.notifyCommit()
	m.emit(ChangeCollection)
}

func (m *Machine) endEdit() {
	m.editIndex = -1
	m.editMoved = false
	m.editBefore = overlay.FeatureCollection{}
}

// Editing reports whether a handle is grabbed.
func (m *Machine) Editing() bool { return m.editIndex >= 0 }

// ToggleInclusion flips the included flag of id as a committed mutation.
func (m *Machine) ToggleInclusion(id string) error {
	m.ReleaseHandle()
	next, err := m.features.Update(id, func(f *overlay.Feature) { f.Included = !f.Included })
	if err != nil {
		return err
	}
	m.commit(next)
	return nil
}

// Delete removes id as a committed mutation.
func (m *Machine) Delete(id string) error {
	m.ReleaseHandle()
	next, err := m.features.Remove(id)
	if err != nil {
		return err
	}
	if m.selected == id {
		m.endEdit()
		m.selected = ""
		m.emit(ChangeSelection)
	}
	m.commit(next)
	return nil
}

// UpdateAttributes edits the metadata of id as a committed mutation.
func (m *Machine) UpdateAttributes(id string, attrs Attributes) error {
	m.ReleaseHandle()
	next, err := m.features.Update(id, func(f *overlay.Feature) {
		if attrs.Type != nil {
			f.Type = *attrs.Type
		}
		if attrs.Material != nil {
			f.Material = *attrs.Material
		}
		if attrs.ClearLength {
			f.LengthFt = nil
		} else if attrs.LengthFt != nil {
			v := *attrs.LengthFt
			f.LengthFt = &v
		}
	})
	if err != nil {
		return err
	}
	m.commit(next)
	return nil
}

// Undo restores the previous snapshot. It reports false, changing nothing,
// when the undo stack is empty.
func (m *Machine) Undo() bool {
	m.ReleaseHandle()
	prev, ok := m.history.Undo(m.features)
	if !ok {
		return false
	}
	m.apply(prev)
	return true
}

// Redo re-applies the snapshot most recently undone.
func (m *Machine) Redo() bool {
	m.ReleaseHandle()
	next, ok := m.history.Redo(m.features)
	if !ok {
		return false
	}
	m.apply(next)
	return true
}

// ZoomIn multiplies the scale by ZoomStep, up to MaxScale.
func (m *Machine) ZoomIn() float64 { return m.setScale(m.scale * ZoomStep) }

// ZoomOut divides the scale by ZoomStep, down to MinScale.
func (m *Machine) ZoomOut() float64 { return m.setScale(m.scale / ZoomStep) }

// ResetView restores scale 1 and no pan.
func (m *Machine) ResetView() {
	m.scale = 1.0
	m.pan = geometry.Point{}
	m.emit(ChangeView)
}

func (m *Machine) setScale(s float64) float64 {
	m.scale = math.Min(MaxScale, math.Max(MinScale, s))
	m.emit(ChangeView)
	return m.scale
}

// commit records the current collection and replaces it with next.
func (m *Machine) commit(next overlay.FeatureCollection) {
	m.history.Record(m.features)
	m.features = next
	m.notifyCommit()
	m.emit(ChangeCollection)
}

// apply installs a snapshot from history.
func (m *Machine) apply(fc overlay.FeatureCollection) {
	m.features = fc
	m.discardDraft()
	if m.selected != "" && m.features.IndexOf(m.selected) < 0 {
		m.selected = ""
		m.emit(ChangeSelection)
	}
	m.notifyCommit()
	m.emit(ChangeCollection)
}

func (m *Machine) notifyCommit() {
	for _, fn := range m.commitObservers {
		fn(m.features.Clone())
	}
}

func (m *Machine) emit(kind ChangeKind) {
	for _, fn := range m.changeObservers {
		fn(Change{Kind: kind})
	}
}
