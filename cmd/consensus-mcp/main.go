package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/ironsheep/consensus-viewer-mcp/internal/config"
	"github.com/ironsheep/consensus-viewer-mcp/internal/imaging"
	"github.com/ironsheep/consensus-viewer-mcp/internal/inference"
	"github.com/ironsheep/consensus-viewer-mcp/internal/logging"
	"github.com/ironsheep/consensus-viewer-mcp/internal/render"
	"github.com/ironsheep/consensus-viewer-mcp/internal/server"
	"github.com/ironsheep/consensus-viewer-mcp/internal/viewer"
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
			fmt.Printf("consensus-viewer-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("consensus-viewer-mcp - MCP server comparing clinician annotations with AI findings")
			fmt.Println()
			fmt.Println("Usage: consensus-viewer-mcp [options]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Environment variables (also read from .env):")
			fmt.Println("  CONSENSUS_MCP_LOG_LEVEL=info       debug, info, warn or error")
			fmt.Println("  CONSENSUS_MCP_LOG_FORMAT=console   console or json")
			fmt.Println("  CONSENSUS_MCP_ENV_FILE=.env        Optional env file")
			fmt.Println("  INFERENCE_URL=http://localhost:5001")
			fmt.Println("  INFERENCE_TIMEOUT=0                Request timeout, 0 for none")
			fmt.Println("  VIEWPORT_WIDTH=1024, VIEWPORT_HEIGHT=1024")
			fmt.Println("  RADIUS_SCALE=min-dimension         min-dimension or width")
			fmt.Println("  MARKER_RADIUS=12                   Clinician marker radius in pixels")
			fmt.Println("  SETTLE_DELAY=50ms                  Delay before the first frame after load")
			fmt.Println()
			fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
			return
		}
	}

	cfg, err := config.Load()
	if err != nil {
		// Logging is not configured yet; stdout belongs to the protocol.
		fmt.Fprintf(os.Stderr, "consensus-viewer-mcp: %v\n", err)
		os.Exit(1)
	}

	logging.Init(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("inference_url", cfg.InferenceURL).
		Msg("starting consensus viewer MCP server")

	policy, err := imaging.ParseRadiusPolicy(cfg.RadiusScale)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid radius policy")
	}

	surface := imaging.NewSurface(
		imaging.Host{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight},
		imaging.NewLoader(nil),
		logging.Component("surface"),
	)
	renderer := render.New(render.Options{
		RadiusPolicy: policy,
		MarkerRadius: cfg.MarkerRadius,
	})
	client := inference.NewClient(cfg.InferenceURL, cfg.InferenceTimeout, logging.Component("inference"))

	v := viewer.New(viewer.Options{
		Surface:     surface,
		Renderer:    renderer,
		Analyzer:    client,
		Logger:      logging.Component("viewer"),
		SettleDelay: cfg.SettleDelay,
	})

	srv := server.New(server.Options{
		Viewer:    v,
		Inference: client,
		Logger:    logging.Component("server"),
		Version:   Version,
	})
	if err := srv.Run(); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
