package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ironsheep/consensus-viewer-mcp/internal/inference"
	"github.com/ironsheep/consensus-viewer-mcp/internal/viewer"
)

// InferenceService is the part of the inference client the server calls
// directly. Analysis itself goes through the viewer.
type InferenceService interface {
	Health(ctx context.Context) (*inference.Health, error)
	Models(ctx context.Context) (*inference.ModelsResponse, error)
}

// Options wires a Server to its collaborators.
type Options struct {
	Viewer    *viewer.Viewer
	Inference InferenceService
	Logger    zerolog.Logger
	Version   string
}

// Server handles MCP protocol communication
type Server struct {
	viewer    *viewer.Viewer
	inference InferenceService
	logger    zerolog.Logger
	version   string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	outMu   sync.Mutex
	encoder *json.Encoder
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

// MCPNotification represents an outgoing notification (no ID)
type MCPNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// New creates a new MCP server instance
func New(opts Options) *Server {
	if opts.Viewer == nil {
		opts.Viewer = viewer.New(viewer.Options{Logger: opts.Logger})
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		viewer:    opts.Viewer,
		inference: opts.Inference,
		logger:    opts.Logger,
		version:   opts.Version,
		ctx:       ctx,
		cancel:    cancel,
		encoder:   json.NewEncoder(io.Discard),
	}
}

// Run starts the MCP server, reading from stdin and writing to stdout
func (s *Server) Run() error {
	return s.Serve(os.Stdin, os.Stdout)
}

// Serve runs the request loop over the given streams until in is
// exhausted. Background analyses still running at that point are cancelled
// and waited for.
func (s *Server) Serve(in io.Reader, out io.Writer) error {
	s.outMu.Lock()
	s.encoder = json.NewEncoder(out)
	s.outMu.Unlock()

	defer func() {
		s.cancel()
		s.wg.Wait()
	}()

	scanner := bufio.NewScanner(in)
	// Data URI image locators can be large
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 64*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn().Err(err).Msg("failed to parse request")
			continue
		}

		resp := s.handleRequest(&req)
		if resp != nil {
			s.send(resp)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}

// send writes one message. Responses and notifications from background
// analyses share the stream, so writes are serialized.
func (s *Server) send(msg interface{}) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if err := s.encoder.Encode(msg); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode message")
	}
}

// notify emits a notifications/message log notification to the client.
func (s *Server) notify(level string, data interface{}) {
	s.send(&MCPNotification{
		JSONRPC: "2.0",
		Method:  "notifications/message",
		Params: map[string]interface{}{
			"level":  level,
			"logger": "consensus-viewer",
			"data":   data,
		},
	})
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
				"tools":   map[string]interface{}{},
				"logging": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "consensus-viewer-mcp",
				"version": s.version,
			},
		},
	}
}
