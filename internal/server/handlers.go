package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/ironsheep/plansheet-mcp/internal/annotate"
	"github.com/ironsheep/plansheet-mcp/internal/geometry"
	"github.com/ironsheep/plansheet-mcp/internal/imaging"
	"github.com/ironsheep/plansheet-mcp/internal/logging"
	"github.com/ironsheep/plansheet-mcp/internal/overlay"
	"github.com/ironsheep/plansheet-mcp/internal/sheet"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "sheet_open", "pointer_down").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// errPageNotOpen is returned for tools addressing a page that has no sheet.
var errPageNotOpen = errors.New("page is not open")

// contentResult is implemented by results that need more than a single
// JSON text item.
type contentResult interface {
	content() []map[string]interface{}
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// sheet_render adds an image item after the text. Tool execution errors
// return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		logging.Logger().Debug("tool failed", "tool", params.Name, "err", err)
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	content := []map[string]interface{}{
		{
			"type": "text",
			"text": mustMarshalJSON(result),
		},
	}
	if cr, ok := result.(contentResult); ok {
		content = cr.content()
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": content,
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Looks up the open sheet for page_id
//  3. Forwards the intent to the sheet
//  4. Returns the sheet's status plus the events the call emitted
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	switch name {
	// Sheet lifecycle
	case "sheet_open":
		return s.handleSheetOpen(args)
	case "sheet_close":
		return s.handleSheetClose(args)
	case "sheet_list":
		return s.handleSheetList(args)
	case "sheet_status":
		return s.handleSheetStatus(args)
	case "sheet_retry":
		return s.handleSheetRetry(args)
	case "sheet_set_tier":
		return s.handleSheetSetTier(args)

	// Toolbar
	case "tool_set":
		return s.handleToolSet(args)
	case "pointer_down":
		return s.handlePointer(annotate.PhaseDown, args)
	case "pointer_move":
		return s.handlePointer(annotate.PhaseMove, args)
	case "pointer_up":
		return s.handlePointer(annotate.PhaseUp, args)
	case "draw_finish":
		return s.handleDrawFinish(args)
	case "draw_cancel":
		return s.handleDrawCancel(args)
	case "history_undo":
		return s.handleHistory(args, false)
	case "history_redo":
		return s.handleHistory(args, true)
	case "zoom_in":
		return s.handleZoom(args, true)
	case "zoom_out":
		return s.handleZoom(args, false)
	case "view_reset":
		return s.handleViewReset(args)

	// Feature info
	case "feature_select":
		return s.handleFeatureSelect(args)
	case "feature_toggle":
		return s.handleFeatureToggle(args)
	case "feature_delete":
		return s.handleFeatureDelete(args)
	case "feature_update":
		return s.handleFeatureUpdate(args)
	case "feature_info":
		return s.handleFeatureInfo(args)

	// Output
	case "geometry_export":
		return s.handleGeometryExport(args)
	case "sheet_render":
		return s.handleSheetRender(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// sheetResult is the common reply to a sheet intent.
type sheetResult struct {
	Applied *bool            `json:"applied,omitempty"`
	Scale   float64          `json:"scale,omitempty"`
	Pointer *annotate.Result `json:"pointer,omitempty"`
	Warning string           `json:"warning,omitempty"`
	Status  sheet.Status     `json:"status"`
	Events  []sheet.Event    `json:"events,omitempty"`
}

// report fills in the sheet's status and drains its events.
func report(sh *sheet.Sheet, r sheetResult) sheetResult {
	r.Status = sh.Status()
	r.Events = sh.Drain()
	return r
}

type pageArgs struct {
	PageID string `json:"page_id"`
}

// lookup decodes args into dst and returns the sheet named by its page_id.
func (s *Server) lookup(args json.RawMessage, dst interface{}) (*sheet.Sheet, error) {
	if err := json.Unmarshal(args, dst); err != nil {
		return nil, err
	}
	var p pageArgs
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, err
	}
	id := strings.TrimSpace(p.PageID)
	if id == "" {
		return nil, fmt.Errorf("page_id is required")
	}
	sh, ok := s.sheets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errPageNotOpen, id)
	}
	return sh, nil
}

// === Sheet Lifecycle Handlers ===

type sheetOpenArgs struct {
	PageID          string                  `json:"page_id"`
	ImageURLs       imaging.ImageDescriptor `json:"image_urls"`
	Tier            string                  `json:"tier"`
	Geometry        json.RawMessage         `json:"geometry"`
	GeometryGeoJSON json.RawMessage         `json:"geometry_geojson"`
}

func (s *Server) handleSheetOpen(args json.RawMessage) (interface{}, error) {
	var a sheetOpenArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	id := strings.TrimSpace(a.PageID)
	if id == "" {
		return nil, fmt.Errorf("page_id is required")
	}

	geom, err := s.pageGeometry(id, a)
	if err != nil {
		return nil, err
	}

	tier := s.cfg.DefaultTier
	if a.Tier != "" {
		tier = imaging.Tier(strings.ToLower(strings.TrimSpace(a.Tier)))
	}

	loader := s.cfg.LoaderConfig()
	loader.Fetcher = s.fetcher
	loader.Refresher = s.refresher

	sh, err := sheet.Open(sheet.PageRecord{ID: id, ImageURLs: a.ImageURLs, Geometry: geom}, sheet.Config{
		Tier:      tier,
		Loader:    loader,
		Persister: s.store,
		OnSelect: func(pageID, featureID string) {
			logging.Logger().Debug("feature selected", "page", pageID, "feature", featureID)
		},
	})
	if err != nil {
		return nil, err
	}

	if prev, ok := s.sheets[id]; ok {
		prev.Close()
	}
	s.sheets[id] = sh
	return report(sh, sheetResult{}), nil
}

// pageGeometry picks the geometry for a page being opened: the native
// payload, then the GeoJSON payload, then whatever the store last saved.
func (s *Server) pageGeometry(pageID string, a sheetOpenArgs) (*overlay.FeatureCollection, error) {
	switch {
	case len(a.Geometry) > 0 && string(a.Geometry) != "null":
		fc, err := overlay.Decode(a.Geometry)
		if err != nil {
			return nil, err
		}
		return &fc, nil
	case len(a.GeometryGeoJSON) > 0 && string(a.GeometryGeoJSON) != "null":
		fc, err := overlay.DecodeGeoJSON(a.GeometryGeoJSON)
		if err != nil {
			return nil, err
		}
		return &fc, nil
	}

	fc, ok, err := s.store.LoadOverlay(s.ctx, pageID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &fc, nil
}

func (s *Server) handleSheetClose(args json.RawMessage) (interface{}, error) {
	var a pageArgs
	sh, err := s.lookup(args, &a)
	if err != nil {
		return nil, err
	}
	events := sh.Drain()
	sh.Close()
	delete(s.sheets, sh.ID())
	return map[string]interface{}{
		"page_id": sh.ID(),
		"closed":  true,
		"events":  events,
	}, nil
}

type sheetSummary struct {
	PageID   string        `json:"page_id"`
	State    imaging.State `json:"state"`
	Tier     imaging.Tier  `json:"tier,omitempty"`
	Features int           `json:"features"`
	Error    string        `json:"error,omitempty"`
}

func (s *Server) handleSheetList(args json.RawMessage) (interface{}, error) {
	out := make([]sheetSummary, 0, len(s.sheets))
	for _, id := range slices.Sorted(maps.Keys(s.sheets)) {
		st := s.sheets[id].Status()
		out = append(out, sheetSummary{
			PageID:   id,
			State:    st.Loader.State,
			Tier:     st.Tier,
			Features: st.Canvas.FeatureCount,
			Error:    st.Error,
		})
	}
	return map[string]interface{}{"sheets": out}, nil
}

func (s *Server) handleSheetStatus(args json.RawMessage) (interface{}, error) {
	var a pageArgs
	sh, err := s.lookup(args, &a)
	if err != nil {
		return nil, err
	}
	return report(sh, sheetResult{}), nil
}

func (s *Server) handleSheetRetry(args json.RawMessage) (interface{}, error) {
	var a pageArgs
	sh, err := s.lookup(args, &a)
	if err != nil {
		return nil, err
	}
	if err := sh.Retry(); err != nil {
		return nil, err
	}
	return report(sh, sheetResult{}), nil
}

type sheetSetTierArgs struct {
	PageID string `json:"page_id"`
	Tier   string `json:"tier"`
}

func (s *Server) handleSheetSetTier(args json.RawMessage) (interface{}, error) {
	var a sheetSetTierArgs
	sh, err := s.lookup(args, &a)
	if err != nil {
		return nil, err
	}
	tier, _ := imaging.ParseTier(a.Tier)
	if err := sh.SetTier(tier); err != nil {
		return nil, err
	}
	return report(sh, sheetResult{}), nil
}

// === Toolbar Handlers ===

type toolSetArgs struct {
	PageID string `json:"page_id"`
	Tool   string `json:"tool"`
}

func (s *Server) handleToolSet(args json.RawMessage) (interface{}, error) {
	var a toolSetArgs
	sh, err := s.lookup(args, &a)
	if err != nil {
		return nil, err
	}
	tool, err := annotate.ParseTool(a.Tool)
	if err != nil {
		return nil, err
	}
	if err := sh.SetTool(tool); err != nil {
		return nil, err
	}
	return report(sh, sheetResult{}), nil
}

type pointerArgs struct {
	PageID  string                  `json:"page_id"`
	ClientX float64                 `json:"client_x"`
	ClientY float64                 `json:"client_y"`
	Surface geometry.SurfaceElement `json:"surface"`
}

func (s *Server) handlePointer(phase annotate.Phase, args json.RawMessage) (interface{}, error) {
	var a pointerArgs
	sh, err := s.lookup(args, &a)
	if err != nil {
		return nil, err
	}
	ev := geometry.PointerEvent{ClientX: a.ClientX, ClientY: a.ClientY}
	res, err := sh.Pointer(s.ctx, phase, ev, a.Surface)
	if err != nil {
		return nil, err
	}
	r := sheetResult{Pointer: &res}
	if res.Err != nil {
		r.Warning = res.Err.Error()
	}
	return report(sh, r), nil
}

func (s *Server) handleDrawFinish(args json.RawMessage) (interface{}, error) {
	var a pageArgs
	sh, err := s.lookup(args, &a)
	if err != nil {
		return nil, err
	}
	r := sheetResult{}
	if err := sh.FinishDrawing(s.ctx); err != nil {
		if !errors.Is(err, overlay.ErrInvalidGeometry) {
			return nil, err
		}
		r.Warning = err.Error()
	}
	return report(sh, r), nil
}

func (s *Server) handleDrawCancel(args json.RawMessage) (interface{}, error) {
	var a pageArgs
	sh, err := s.lookup(args, &a)
	if err != nil {
		return nil, err
	}
	if err := sh.CancelDrawing(); err != nil {
		return nil, err
	}
	return report(sh, sheetResult{}), nil
}

func (s *Server) handleHistory(args json.RawMessage, redo bool) (interface{}, error) {
	var a pageArgs
	sh, err := s.lookup(args, &a)
	if err != nil {
		return nil, err
	}
	apply := sh.Undo
	if redo {
		apply = sh.Redo
	}
	applied, err := apply(s.ctx)
	if err != nil {
		return nil, err
	}
	return report(sh, sheetResult{Applied: &applied}), nil
}

func (s *Server) handleZoom(args json.RawMessage, in bool) (interface{}, error) {
	var a pageArgs
	sh, err := s.lookup(args, &a)
	if err != nil {
		return nil, err
	}
	zoom := sh.ZoomOut
	if in {
		zoom = sh.ZoomIn
	}
	scale, err := zoom()
	if err != nil {
		return nil, err
	}
	return report(sh, sheetResult{Scale: scale}), nil
}

func (s *Server) handleViewReset(args json.RawMessage) (interface{}, error) {
	var a pageArgs
	sh, err := s.lookup(args, &a)
	if err != nil {
		return nil, err
	}
	if err := sh.ResetView(); err != nil {
		return nil, err
	}
	return report(sh, sheetResult{}), nil
}

// === Feature Info Handlers ===

type featureArgs struct {
	PageID    string `json:"page_id"`
	FeatureID string `json:"feature_id"`
}

func (s *Server) handleFeatureSelect(args json.RawMessage) (interface{}, error) {
	var a featureArgs
	sh, err := s.lookup(args, &a)
	if err != nil {
		return nil, err
	}
	if err := sh.Select(a.FeatureID); err != nil {
		return nil, err
	}
	return report(sh, sheetResult{}), nil
}

func (s *Server) handleFeatureToggle(args json.RawMessage) (interface{}, error) {
	var a featureArgs
	sh, err := s.lookup(args, &a)
	if err != nil {
		return nil, err
	}
	if err := sh.ToggleInclusion(s.ctx, a.FeatureID); err != nil {
		return nil, err
	}
	return report(sh, sheetResult{}), nil
}

func (s *Server) handleFeatureDelete(args json.RawMessage) (interface{}, error) {
	var a featureArgs
	sh, err := s.lookup(args, &a)
	if err != nil {
		return nil, err
	}
	if err := sh.Delete(s.ctx, a.FeatureID); err != nil {
		return nil, err
	}
	return report(sh, sheetResult{}), nil
}

type featureUpdateArgs struct {
	PageID      string   `json:"page_id"`
	FeatureID   string   `json:"feature_id"`
	Type        *string  `json:"type"`
	Material    *string  `json:"material"`
	LengthFt    *float64 `json:"length_ft"`
	ClearLength bool     `json:"clear_length"`
}

func (s *Server) handleFeatureUpdate(args json.RawMessage) (interface{}, error) {
	var a featureUpdateArgs
	sh, err := s.lookup(args, &a)
	if err != nil {
		return nil, err
	}
	attrs := annotate.Attributes{
		Type:        a.Type,
		Material:    a.Material,
		LengthFt:    a.LengthFt,
		ClearLength: a.ClearLength,
	}
	if err := sh.UpdateAttributes(s.ctx, a.FeatureID, attrs); err != nil {
		return nil, err
	}
	return report(sh, sheetResult{}), nil
}

func (s *Server) handleFeatureInfo(args json.RawMessage) (interface{}, error) {
	var a featureArgs
	sh, err := s.lookup(args, &a)
	if err != nil {
		return nil, err
	}
	return sh.Info(a.FeatureID)
}

// === Output Handlers ===

type geometryExportArgs struct {
	PageID string `json:"page_id"`
	Format string `json:"format"`
}

func (s *Server) handleGeometryExport(args json.RawMessage) (interface{}, error) {
	var a geometryExportArgs
	sh, err := s.lookup(args, &a)
	if err != nil {
		return nil, err
	}
	fc := sh.Features()
	switch strings.ToLower(a.Format) {
	case "", "native":
		return fc, nil
	case "geojson":
		return overlay.ToGeoJSON(fc), nil
	default:
		return nil, fmt.Errorf("unknown export format: %s (use native or geojson)", a.Format)
	}
}

type sheetRenderArgs struct {
	PageID          string  `json:"page_id"`
	ContainerWidth  float64 `json:"container_width"`
	ContainerHeight float64 `json:"container_height"`
	Desaturate      bool    `json:"desaturate"`
	GridSpacing     int     `json:"grid_spacing"`
	GridLabels      bool    `json:"grid_labels"`
}

// renderResult carries the frame report as text and the PNG as an image
// item.
type renderResult struct {
	*sheet.Rendered
	Events []sheet.Event `json:"events,omitempty"`
}

func (r renderResult) content() []map[string]interface{} {
	meta := map[string]interface{}{
		"frame":  r.Frame,
		"width":  r.Viewport.Width,
		"height": r.Viewport.Height,
		"scale":  r.Viewport.Scale,
		"events": r.Events,
	}
	return []map[string]interface{}{
		{"type": "text", "text": mustMarshalJSON(meta)},
		{"type": "image", "data": r.Viewport.ImageBase64, "mimeType": r.Viewport.MimeType},
	}
}

func (s *Server) handleSheetRender(args json.RawMessage) (interface{}, error) {
	var a sheetRenderArgs
	sh, err := s.lookup(args, &a)
	if err != nil {
		return nil, err
	}
	if a.GridSpacing < 0 {
		return nil, fmt.Errorf("grid_spacing must be positive")
	}
	out, err := sh.Render(sheet.RenderOptions{
		Container:   geometry.Size{Width: a.ContainerWidth, Height: a.ContainerHeight},
		Desaturate:  a.Desaturate,
		GridSpacing: a.GridSpacing,
		GridLabels:  a.GridLabels,
	})
	if err != nil {
		return nil, err
	}
	return renderResult{Rendered: out, Events: sh.Drain()}, nil
}
