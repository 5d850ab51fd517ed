package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ironsheep/consensus-viewer-mcp/internal/annotation"
	vierrors "github.com/ironsheep/consensus-viewer-mcp/internal/errors"
	"github.com/ironsheep/consensus-viewer-mcp/internal/imaging"
	"github.com/ironsheep/consensus-viewer-mcp/internal/pathology"
	"github.com/ironsheep/consensus-viewer-mcp/internal/viewer"
)

var errNoInference = errors.New("no inference service configured")

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "viewer_load_image", "viewer_render").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
// Viewer errors carry their ToMap() payload as data.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		s.logger.Debug().Err(err).Str("tool", params.Name).Msg("tool failed")
		var ve *vierrors.ViewerError
		if vierrors.As(err, &ve) {
			return &MCPResponse{
				JSONRPC: "2.0",
				ID:      req.ID,
				Error: &MCPError{
					Code:    -32000,
					Message: ve.Message,
					Data:    ve.ToMap(),
				},
			}
		}
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Image
	case "viewer_load_image":
		return s.handleLoadImage(args)
	case "viewer_close_image":
		return s.handleCloseImage(args)
	case "viewer_status":
		return s.viewer.Snapshot(), nil

	// Annotation
	case "viewer_set_mode":
		return s.handleSetMode(args)
	case "viewer_click":
		return s.handleClick(args)
	case "viewer_confirm_annotation":
		return s.handleConfirmAnnotation(args)
	case "viewer_cancel_annotation":
		return map[string]interface{}{"cancelled": s.viewer.CancelAnnotation()}, nil
	case "viewer_remove_annotation":
		return s.handleRemoveAnnotation(args)
	case "viewer_edit_annotation":
		return s.handleEditAnnotation(args)

	// Analysis
	case "viewer_analyze":
		return s.handleAnalyze(args)
	case "viewer_set_consensus":
		return s.handleSetConsensus(args)
	case "viewer_pointer_move":
		return s.handlePointerMove(args)
	case "viewer_hover_finding":
		return s.handleHoverFinding(args)
	case "viewer_consensus":
		consensus := s.viewer.Consensus()
		return map[string]interface{}{"consensus": consensus, "count": len(consensus)}, nil
	case "viewer_findings":
		return map[string]interface{}{"findings": s.viewer.Findings()}, nil

	// Output
	case "viewer_render":
		return s.handleRender(args)
	case "viewer_crop_finding":
		return s.handleCropFinding(args)

	// Catalog
	case "pathology_list":
		return map[string]interface{}{"pathologies": pathology.Entries()}, nil
	case "pathology_synthesize":
		return s.handleSynthesize(args)

	// Inference service
	case "inference_health":
		return s.handleInferenceHealth(args)
	case "inference_models":
		return s.handleInferenceModels(args)

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

// decodeArgs unmarshals tool arguments. Tools without required arguments
// may be called with none.
func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return vierrors.NewInvalidInputError("invalid arguments: %v", err)
	}
	return nil
}

// === Image Handlers ===

type loadImageArgs struct {
	Locator string `json:"locator"`
}

func (s *Server) handleLoadImage(args json.RawMessage) (interface{}, error) {
	var a loadImageArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if strings.TrimSpace(a.Locator) == "" {
		return nil, vierrors.NewInvalidInputError("locator is required")
	}
	return s.viewer.LoadImage(s.ctx, a.Locator)
}

func (s *Server) handleCloseImage(args json.RawMessage) (interface{}, error) {
	s.viewer.CloseImage()
	return s.viewer.Snapshot().Surface, nil
}

// === Annotation Handlers ===

type setModeArgs struct {
	Mode string `json:"mode"`
}

func (s *Server) handleSetMode(args json.RawMessage) (interface{}, error) {
	var a setModeArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := s.viewer.SetMode(viewer.Mode(a.Mode)); err != nil {
		return nil, err
	}
	return map[string]interface{}{"mode": s.viewer.Mode()}, nil
}

type pointArgs struct {
	X      *float64 `json:"x"`
	Y      *float64 `json:"y"`
	Pixels bool     `json:"pixels"`
}

// point converts pointer arguments to normalized image coordinates. Pixel
// coordinates are relative to the host surface, so the image's letterbox
// offset is removed.
func (s *Server) point(a pointArgs) (annotation.Point, error) {
	if a.X == nil || a.Y == nil {
		return annotation.Point{}, vierrors.NewInvalidInputError("x and y are required")
	}
	if !a.Pixels {
		return annotation.Point{X: *a.X, Y: *a.Y}, nil
	}
	p, err := s.viewer.Surface().Rect().Normalize(*a.X, *a.Y)
	if err != nil {
		return annotation.Point{}, vierrors.NewNoImageError()
	}
	return p, nil
}

func (s *Server) handleClick(args json.RawMessage) (interface{}, error) {
	var a pointArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	p, err := s.point(a)
	if err != nil {
		return nil, err
	}
	return s.viewer.Click(p)
}

type confirmAnnotationArgs struct {
	Comment string `json:"comment"`
	Color   string `json:"color"`
}

func (s *Server) handleConfirmAnnotation(args json.RawMessage) (interface{}, error) {
	var a confirmAnnotationArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	ann, err := s.viewer.ConfirmAnnotation(a.Comment, a.Color)
	if err != nil {
		return nil, err
	}
	anns := s.viewer.Annotations()
	return map[string]interface{}{
		"annotation": ann,
		"number":     anns.IndexOf(ann.ID) + 1,
		"consensus":  len(s.viewer.Consensus()),
	}, nil
}

type annotationIDArgs struct {
	ID      string `json:"id"`
	Comment string `json:"comment"`
}

func (s *Server) handleRemoveAnnotation(args json.RawMessage) (interface{}, error) {
	var a annotationIDArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := s.viewer.RemoveAnnotation(a.ID); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"removed":     a.ID,
		"annotations": s.viewer.Annotations(),
	}, nil
}

func (s *Server) handleEditAnnotation(args json.RawMessage) (interface{}, error) {
	var a annotationIDArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	return s.viewer.EditAnnotation(a.ID, a.Comment)
}

// === Analysis Handlers ===

type analyzeArgs struct {
	ModelID      string `json:"model_id"`
	Pathology    string `json:"pathology"`
	FromFilename bool   `json:"from_filename"`
	Parallel     bool   `json:"parallel"`
	Async        bool   `json:"async"`
}

func (s *Server) handleAnalyze(args json.RawMessage) (interface{}, error) {
	var a analyzeArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	opts := viewer.AnalyzeOptions{
		ModelID:      a.ModelID,
		Pathology:    a.Pathology,
		FromFilename: a.FromFilename,
		Parallel:     a.Parallel,
	}

	if !a.Async {
		analysis, err := s.viewer.Analyze(s.ctx, opts)
		if err != nil {
			s.reportAnalysisError(err)
			return nil, err
		}
		return analysis, nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		analysis, err := s.viewer.Analyze(s.ctx, opts)
		if err != nil {
			s.reportAnalysisError(err)
			return
		}
		s.notify("info", map[string]interface{}{
			"event":    "analysis_complete",
			"analysis": analysis,
		})
	}()

	return map[string]interface{}{"started": true}, nil
}

// reportAnalysisError surfaces a failed analysis as a notification. Stale
// results are expected and only logged.
func (s *Server) reportAnalysisError(err error) {
	var ve *vierrors.ViewerError
	if !vierrors.As(err, &ve) {
		s.notify("error", map[string]interface{}{"event": "analysis_failed", "message": err.Error()})
		return
	}
	if ve.Code == vierrors.ErrorStaleResult {
		s.logger.Debug().Err(err).Msg("analysis result discarded")
		return
	}
	data := ve.ToMap()
	data["event"] = "analysis_failed"
	s.notify("error", data)
}

type setConsensusArgs struct {
	Show *bool `json:"show"`
}

func (s *Server) handleSetConsensus(args json.RawMessage) (interface{}, error) {
	var a setConsensusArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Show == nil {
		return nil, vierrors.NewInvalidInputError("show is required")
	}
	s.viewer.SetShowConsensus(*a.Show)
	return map[string]interface{}{"show_consensus": *a.Show}, nil
}

func (s *Server) handlePointerMove(args json.RawMessage) (interface{}, error) {
	var a pointArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	p, err := s.point(a)
	if err != nil {
		return nil, err
	}
	r, i, ok := s.viewer.PointerMove(p)
	result := map[string]interface{}{
		"hovered": ok,
		"index":   i,
	}
	if ok {
		result["region"] = r
	}
	return result, nil
}

type hoverFindingArgs struct {
	Index *int `json:"index"`
}

func (s *Server) handleHoverFinding(args json.RawMessage) (interface{}, error) {
	var a hoverFindingArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Index == nil {
		return nil, vierrors.NewInvalidInputError("index is required")
	}
	if err := s.viewer.HoverFinding(*a.Index); err != nil {
		return nil, err
	}
	return map[string]interface{}{"findings": s.viewer.Findings()}, nil
}

// === Output Handlers ===

type renderArgs struct {
	Composite bool `json:"composite"`
	Wait      bool `json:"wait"`
}

// RenderResult is a rendered overlay with a summary of what it shows.
type RenderResult struct {
	imaging.CropResult
	Revision  uint64 `json:"revision"`
	Composite bool   `json:"composite"`
	Regions   int    `json:"regions"`
	Halos     int    `json:"halos"`
	Markers   int    `json:"markers"`
}

func (s *Server) handleRender(args json.RawMessage) (interface{}, error) {
	var a renderArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	var (
		frame viewer.Frame
		err   error
	)
	if a.Wait {
		frame, err = s.viewer.WaitFrame(s.ctx)
	} else {
		frame, err = s.viewer.Frame()
	}
	if err != nil {
		return nil, err
	}

	img := frame.Overlay
	if a.Composite {
		img, frame, err = s.viewer.Composite()
		if err != nil {
			return nil, err
		}
	}

	encoded, err := imaging.EncodePNG(img)
	if err != nil {
		return nil, err
	}
	return &RenderResult{
		CropResult: *encoded,
		Revision:   frame.Revision,
		Composite:  a.Composite,
		Regions:    len(frame.Scene.Regions),
		Halos:      len(frame.Scene.Halos),
		Markers:    len(frame.Scene.Markers),
	}, nil
}

type cropFindingArgs struct {
	Index *int    `json:"index"`
	Scale float64 `json:"scale"`
}

func (s *Server) handleCropFinding(args json.RawMessage) (interface{}, error) {
	var a cropFindingArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Index == nil {
		return nil, vierrors.NewInvalidInputError("index is required")
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}
	return s.viewer.CropFinding(*a.Index, a.Scale)
}

// === Catalog Handlers ===

type synthesizeArgs struct {
	Score     *float64 `json:"score"`
	ModelID   string   `json:"model_id"`
	Pathology string   `json:"pathology"`
}

func (s *Server) handleSynthesize(args json.RawMessage) (interface{}, error) {
	var a synthesizeArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Score == nil || math.IsNaN(*a.Score) || math.IsInf(*a.Score, 0) {
		return nil, vierrors.NewInvalidInputError("score must be a finite number")
	}

	var regions []annotation.Region
	switch {
	case a.ModelID != "":
		regions = pathology.Synthesize(*a.Score, a.ModelID)
	case a.Pathology != "":
		regions = pathology.SynthesizeForKey(*a.Score, a.Pathology)
	default:
		return nil, vierrors.NewInvalidInputError("model_id or pathology is required")
	}
	return map[string]interface{}{"regions": regions}, nil
}

// === Inference Service Handlers ===

func (s *Server) handleInferenceHealth(args json.RawMessage) (interface{}, error) {
	if s.inference == nil {
		return nil, vierrors.NewAnalysisRequestError("", errNoInference)
	}
	return s.inference.Health(s.ctx)
}

func (s *Server) handleInferenceModels(args json.RawMessage) (interface{}, error) {
	if s.inference == nil {
		return nil, vierrors.NewAnalysisRequestError("", errNoInference)
	}
	return s.inference.Models(s.ctx)
}
