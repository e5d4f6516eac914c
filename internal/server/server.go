package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"maps"
	"net/http"
	"os"
	"slices"

	"github.com/ironsheep/plansheet-mcp/internal/config"
	"github.com/ironsheep/plansheet-mcp/internal/imaging"
	"github.com/ironsheep/plansheet-mcp/internal/logging"
	"github.com/ironsheep/plansheet-mcp/internal/sheet"
)

// Server name and version reported during initialize.
const (
	ServerName    = "plansheet-mcp"
	ServerVersion = "0.1.0"
)

// Server handles MCP protocol communication. Requests are served one at a
// time; each open sheet serializes its own state.
type Server struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg       config.Config
	cache     *imaging.Cache
	fetcher   imaging.Fetcher
	refresher imaging.Refresher
	store     OverlayStore

	sheets map[string]*sheet.Sheet
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Option customizes a Server.
type Option func(*Server)

// WithFetcher replaces the raster fetcher. The server still caches decoded
// rasters in front of it.
func WithFetcher(f imaging.Fetcher) Option {
	return func(s *Server) { s.fetcher = f }
}

// WithRefresher replaces the signed-URL refresher.
func WithRefresher(r imaging.Refresher) Option {
	return func(s *Server) { s.refresher = r }
}

// WithStore replaces the overlay store.
func WithStore(store OverlayStore) Option {
	return func(s *Server) { s.store = store }
}

// New creates a new MCP server instance
func New(cfg config.Config, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		cache:   imaging.NewCache(),
		fetcher: imaging.NewMuxFetcher(http.DefaultClient),
		sheets:  make(map[string]*sheet.Sheet),
	}
	if cfg.RefreshURL != "" {
		s.refresher = imaging.HTTPRefresher{Endpoint: cfg.RefreshURL, Client: http.DefaultClient}
	}
	if cfg.OverlayDir != "" {
		s.store = FileOverlayStore{Dir: cfg.OverlayDir}
	} else {
		s.store = NewMemoryOverlayStore()
	}
	for _, opt := range opts {
		opt(s)
	}
	s.fetcher = imaging.CachingFetcher{Next: s.fetcher, Cache: s.cache}
	return s
}

// Run starts the MCP server, reading from stdin and writing to stdout
func (s *Server) Run() error {
	defer s.Close()
	return s.serve(os.Stdin, os.Stdout)
}

func (s *Server) serve(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	// Pointer streams are small, but sheet_open may carry a large geometry.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 16*1024*1024)

	encoder := json.NewEncoder(w)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			log.Printf("Failed to parse request: %v", err)
			continue
		}

		resp := s.handleRequest(&req)
		if resp != nil {
			if err := encoder.Encode(resp); err != nil {
				log.Printf("Failed to encode response: %v", err)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}

// Close closes every open sheet and cancels outstanding persistence.
func (s *Server) Close() {
	for _, id := range slices.Sorted(maps.Keys(s.sheets)) {
		s.sheets[id].Close()
		delete(s.sheets, id)
	}
	s.cache.Clear()
	s.cancel()
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		logging.Logger().Debug("unknown method", "method", req.Method)
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    ServerName,
				"version": ServerVersion,
			},
		},
	}
}
