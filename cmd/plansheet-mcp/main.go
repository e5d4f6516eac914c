package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/ironsheep/plansheet-mcp/internal/config"
	"github.com/ironsheep/plansheet-mcp/internal/logging"
	"github.com/ironsheep/plansheet-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("plansheet-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("plansheet-mcp - MCP server for annotating plan sheet images")
			fmt.Println()
			fmt.Println("Usage: plansheet-mcp [options]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Println("  PLANSHEET_MCP_LOG_LEVEL=warn       debug, info, warn or error")
			fmt.Println("  PLANSHEET_LOAD_TIMEOUT=30s         Image load timeout")
			fmt.Println("  PLANSHEET_RETRY_BASE=500ms         Backoff base for signed URL refresh")
			fmt.Println("  PLANSHEET_RETRY_ATTEMPTS=3         Refresh attempts before giving up")
			fmt.Println("  PLANSHEET_REFRESH_URL=             Signed URL refresh endpoint ({page} is replaced)")
			fmt.Println("  PLANSHEET_OVERLAY_DIR=             Directory for saved overlays (memory if unset)")
			fmt.Println("  PLANSHEET_DEFAULT_TIER=preview     thumbnail, preview or full")
			fmt.Println()
			fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
			fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
			return
		}
	}

	// Configure logging to stderr (stdout is for MCP protocol)
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	cfg, warnings := config.Load()
	for _, w := range warnings {
		log.Printf("config: %s", w)
	}

	logging.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	if cfg.LogLevel <= slog.LevelDebug {
		log.Printf("Plan Sheet MCP Server v%s (built %s, commit %s)", Version, BuildTime, GitCommit)
	}

	srv := server.New(cfg)
	if err := srv.Run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
