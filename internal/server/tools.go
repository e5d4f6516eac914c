package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

var pageIDProperty = map[string]interface{}{
	"type":        "string",
	"description": "Id of an open page (see sheet_open)",
}

var featureIDProperty = map[string]interface{}{
	"type":        "string",
	"description": "Id of a feature on the page",
}

// pageSchema builds an object schema whose first property is page_id.
// Extra properties are merged in; required lists the names besides page_id.
func pageSchema(props map[string]interface{}, required ...string) map[string]interface{} {
	all := map[string]interface{}{"page_id": pageIDProperty}
	for k, v := range props {
		all[k] = v
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": all,
		"required":   append([]string{"page_id"}, required...),
	}
}

func pointerTool(name, description string) Tool {
	return Tool{
		Name:        name,
		Description: description,
		InputSchema: pageSchema(map[string]interface{}{
			"client_x": map[string]interface{}{
				"type":        "number",
				"description": "Pointer X in display coordinates",
			},
			"client_y": map[string]interface{}{
				"type":        "number",
				"description": "Pointer Y in display coordinates",
			},
			"surface": map[string]interface{}{
				"type":        "object",
				"description": "Where the sheet is displayed. Omit to address image pixels directly.",
				"properties": map[string]interface{}{
					"left":           map[string]interface{}{"type": "number"},
					"top":            map[string]interface{}{"type": "number"},
					"display_width":  map[string]interface{}{"type": "number"},
					"display_height": map[string]interface{}{"type": "number"},
					"backing_width":  map[string]interface{}{"type": "integer"},
					"backing_height": map[string]interface{}{"type": "integer"},
				},
			},
		}, "client_x", "client_y"),
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Sheet lifecycle
		{
			Name:        "sheet_open",
			Description: "Mount a plan sheet page. Starts loading its image at the requested resolution tier in the background and loads its polygon overlay. Reopening an open page replaces it.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"page_id": map[string]interface{}{
						"type":        "string",
						"description": "Page id",
					},
					"image_urls": map[string]interface{}{
						"type":        "object",
						"description": "Candidate image URLs per tier. Any may be omitted.",
						"properties": map[string]interface{}{
							"thumbnail": map[string]interface{}{"type": "string"},
							"preview":   map[string]interface{}{"type": "string"},
							"full":      map[string]interface{}{"type": "string"},
							"legacy":    map[string]interface{}{"type": "string"},
						},
					},
					"tier": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"thumbnail", "preview", "full"},
						"description": "Requested resolution tier. Default preview",
					},
					"geometry": map[string]interface{}{
						"type":        "object",
						"description": "Overlay as {\"features\": [{id, type, material, length_ft, included, ring: [[x,y],...]}]}",
					},
					"geometry_geojson": map[string]interface{}{
						"type":        "object",
						"description": "Overlay as a GeoJSON FeatureCollection of polygons in image pixels",
					},
				},
				"required": []string{"page_id"},
			},
		},
		{
			Name:        "sheet_close",
			Description: "Unmount a page, cancelling any image load in flight.",
			InputSchema: pageSchema(nil),
		},
		{
			Name:        "sheet_list",
			Description: "List open pages with their load state and feature count.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "sheet_status",
			Description: "Report the image load state (url, tier, attempt, error) and the canvas state (tool, selection, zoom, pan, drawing path, history depth).",
			InputSchema: pageSchema(nil),
		},
		{
			Name:        "sheet_retry",
			Description: "Retry a failed image load with a fresh attempt budget.",
			InputSchema: pageSchema(nil),
		},
		{
			Name:        "sheet_set_tier",
			Description: "Switch the image resolution tier. When the resolved URL changes the page reloads and tool, zoom, selection and history start over.",
			InputSchema: pageSchema(map[string]interface{}{
				"tier": map[string]interface{}{
					"type": "string",
					"enum": []string{"thumbnail", "preview", "full"},
				},
			}, "tier"),
		},

		// Toolbar
		{
			Name:        "tool_set",
			Description: "Select the active tool. Leaving polygon or rectangle discards the shape in progress.",
			InputSchema: pageSchema(map[string]interface{}{
				"tool": map[string]interface{}{
					"type": "string",
					"enum": []string{"select", "pan", "rectangle", "polygon", "edit"},
				},
			}, "tool"),
		},
		pointerTool("pointer_down", "Press the pointer. select: hit-test; pan: start drag; polygon: add vertex; rectangle: anchor; edit: grab a vertex handle of the selected feature."),
		pointerTool("pointer_move", "Move the pointer. pan: drag the view; rectangle: preview; edit: move the grabbed vertex."),
		pointerTool("pointer_up", "Release the pointer. pan: end drag; rectangle: commit; edit: commit the vertex move."),
		{
			Name:        "draw_finish",
			Description: "Commit the polygon in progress as a new feature. Needs at least 3 vertices.",
			InputSchema: pageSchema(nil),
		},
		{
			Name:        "draw_cancel",
			Description: "Discard the polygon in progress.",
			InputSchema: pageSchema(nil),
		},
		{
			Name:        "history_undo",
			Description: "Undo the last committed change.",
			InputSchema: pageSchema(nil),
		},
		{
			Name:        "history_redo",
			Description: "Redo the last undone change.",
			InputSchema: pageSchema(nil),
		},
		{
			Name:        "zoom_in",
			Description: "Zoom in one step (x1.2, max 3.0).",
			InputSchema: pageSchema(nil),
		},
		{
			Name:        "zoom_out",
			Description: "Zoom out one step (/1.2, min 0.1).",
			InputSchema: pageSchema(nil),
		},
		{
			Name:        "view_reset",
			Description: "Reset zoom to 1 and clear the pan offset.",
			InputSchema: pageSchema(nil),
		},

		// Feature info
		{
			Name:        "feature_select",
			Description: "Select a feature by id. An empty id clears the selection.",
			InputSchema: pageSchema(map[string]interface{}{"feature_id": featureIDProperty}),
		},
		{
			Name:        "feature_toggle",
			Description: "Toggle whether a feature is included in the takeoff.",
			InputSchema: pageSchema(map[string]interface{}{"feature_id": featureIDProperty}, "feature_id"),
		},
		{
			Name:        "feature_delete",
			Description: "Delete a feature.",
			InputSchema: pageSchema(map[string]interface{}{"feature_id": featureIDProperty}, "feature_id"),
		},
		{
			Name:        "feature_update",
			Description: "Edit a feature's type, material or length. Omitted fields are left unchanged.",
			InputSchema: pageSchema(map[string]interface{}{
				"feature_id": featureIDProperty,
				"type":       map[string]interface{}{"type": "string"},
				"material":   map[string]interface{}{"type": "string"},
				"length_ft": map[string]interface{}{
					"type":        "number",
					"description": "Length in feet",
				},
				"clear_length": map[string]interface{}{
					"type":        "boolean",
					"description": "Remove the length",
				},
			}, "feature_id"),
		},
		{
			Name:        "feature_info",
			Description: "Describe a feature (default: the selected one) with its area, perimeter and edge lengths in image pixels.",
			InputSchema: pageSchema(map[string]interface{}{"feature_id": featureIDProperty}),
		},

		// Output
		{
			Name:        "geometry_export",
			Description: "Export the page overlay as the native feature collection or as GeoJSON.",
			InputSchema: pageSchema(map[string]interface{}{
				"format": map[string]interface{}{
					"type":    "string",
					"enum":    []string{"native", "geojson"},
					"default": "native",
				},
			}),
		},
		{
			Name:        "sheet_render",
			Description: "Render the page image with its overlay and return it as PNG, fitted to the container at the current zoom.",
			InputSchema: pageSchema(map[string]interface{}{
				"container_width": map[string]interface{}{
					"type":        "number",
					"description": "Display box width. Omit for natural size",
				},
				"container_height": map[string]interface{}{
					"type":        "number",
					"description": "Display box height. Omit for natural size",
				},
				"desaturate": map[string]interface{}{
					"type":        "boolean",
					"description": "Draw the base image in grayscale",
				},
				"grid_spacing": map[string]interface{}{
					"type":        "integer",
					"description": "Draw a pixel grid every N pixels. 0 disables it",
				},
				"grid_labels": map[string]interface{}{
					"type":        "boolean",
					"description": "Label grid intersections with coordinates",
				},
			}),
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
