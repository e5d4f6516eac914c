// Package server implements the MCP (Model Context Protocol) server for plan
// sheet annotation.
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Tools
//
// A client opens a page with sheet_open, which starts loading the page image
// in the background and mounts its polygon overlay. Every other tool
// addresses an open page by page_id and maps to one toolbar or feature-info
// intent:
//
// Sheet lifecycle:
//   - sheet_open, sheet_close, sheet_list, sheet_status
//   - sheet_retry: manual retry after a failed load
//   - sheet_set_tier: switch between thumbnail, preview and full
//
// Toolbar:
//   - tool_set, pointer_down, pointer_move, pointer_up
//   - draw_finish, draw_cancel
//   - history_undo, history_redo
//   - zoom_in, zoom_out, view_reset
//
// Feature info:
//   - feature_select, feature_toggle, feature_delete, feature_update
//   - feature_info: attributes plus area, perimeter and edge lengths
//
// Output:
//   - geometry_export: native or GeoJSON
//   - sheet_render: PNG of the image with its overlay
//
// Results report the sheet status together with the events (selection,
// commit, loaded, load_error, persist_error) emitted since the previous call.
//
// # Persistence
//
// Every committed edit is saved through an OverlayStore. FileOverlayStore
// writes <dir>/<page_id>.json when PLANSHEET_OVERLAY_DIR is set; otherwise
// overlays live in memory for the lifetime of the process. Opening a page
// without geometry restores the last saved overlay.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// Image load failures are not tool errors: they are reported in the sheet
// status and as load_error events.
package server
