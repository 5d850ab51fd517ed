// Package inference is the HTTP client for the external chest-radiograph
// inference service.
//
// The service exposes three endpoints:
//   - POST /api/analyze  multipart upload, field "dicom", optional
//     "model_id" and "parallel"
//   - GET  /api/health
//   - GET  /api/models
//
// Transport failures map to ANALYSIS_REQUEST_FAILED; a decoded response
// with success=false maps to ANALYSIS_RESULT_FAILED carrying the service's
// message verbatim.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	vierrors "github.com/ironsheep/consensus-viewer-mcp/internal/errors"
)

const (
	analyzePath = "/api/analyze"
	healthPath  = "/api/health"
	modelsPath  = "/api/models"

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 4 << 20
)

// Client talks to the inference service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a client for baseURL. A zero timeout leaves requests
// unbounded apart from the caller's context.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request is one analysis upload.
type Request struct {
	Filename string
	Data     []byte
	// ModelID selects one model. Empty asks the service to try all models
	// and return the best scoring one.
	ModelID  string
	Parallel bool
}

// ScoreResult is the model output the viewer consumes.
type ScoreResult struct {
	Score float64 `json:"score"`
	Model string  `json:"model"`
}

// Results wraps the model response.
type Results struct {
	Response ScoreResult `json:"response"`
}

// Response is the analyze endpoint's reply. Fields other than the score
// and model identifier are passed through untouched.
type Response struct {
	Success   bool               `json:"success"`
	StudyID   string             `json:"study_id,omitempty"`
	ImageID   string             `json:"image_id,omitempty"`
	ModelID   string             `json:"model_id,omitempty"`
	Filename  string             `json:"filename,omitempty"`
	Results   Results            `json:"results"`
	AllScores map[string]float64 `json:"all_scores,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// Score returns results.response.score.
func (r *Response) Score() float64 {
	return r.Results.Response.Score
}

// ModelIdentifier prefers the top-level model_id and falls back to the
// model named in the results.
func (r *Response) ModelIdentifier() string {
	if r.ModelID != "" {
		return r.ModelID
	}
	return r.Results.Response.Model
}

// PathologyScore is one entry of all_scores.
type PathologyScore struct {
	Pathology string  `json:"pathology"`
	Score     float64 `json:"score"`
}

// TopScores returns all_scores ordered by score, highest first, with ties
// broken by name.
func (r *Response) TopScores() []PathologyScore {
	out := make([]PathologyScore, 0, len(r.AllScores))
	for k, v := range r.AllScores {
		out = append(out, PathologyScore{Pathology: k, Score: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Pathology < out[j].Pathology
	})
	return out
}

// Analyze uploads an image for analysis.
func (c *Client) Analyze(ctx context.Context, req Request) (*Response, error) {
	endpoint := c.baseURL + analyzePath
	if len(req.Data) == 0 {
		return nil, vierrors.NewInvalidInputError("image data is required")
	}
	filename := req.Filename
	if filename == "" {
		filename = "image"
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("dicom", filename)
	if err != nil {
		return nil, vierrors.NewAnalysisRequestError(endpoint, fmt.Errorf("failed to create form file part: %w", err))
	}
	if _, err := part.Write(req.Data); err != nil {
		return nil, vierrors.NewAnalysisRequestError(endpoint, fmt.Errorf("failed to write file data to form: %w", err))
	}
	if req.ModelID != "" {
		if err := writer.WriteField("model_id", req.ModelID); err != nil {
			return nil, vierrors.NewAnalysisRequestError(endpoint, fmt.Errorf("failed to write model_id field: %w", err))
		}
	}
	if req.Parallel {
		if err := writer.WriteField("parallel", strconv.FormatBool(true)); err != nil {
			return nil, vierrors.NewAnalysisRequestError(endpoint, fmt.Errorf("failed to write parallel field: %w", err))
		}
	}
	if err := writer.Close(); err != nil {
		return nil, vierrors.NewAnalysisRequestError(endpoint, fmt.Errorf("failed to close multipart writer: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, vierrors.NewAnalysisRequestError(endpoint, fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	c.logger.Debug().
		Str("filename", filename).
		Int("bytes", len(req.Data)).
		Str("model_id", req.ModelID).
		Bool("parallel", req.Parallel).
		Msg("sending analysis request")

	start := time.Now()
	var resp Response
	status, err := c.do(httpReq, &resp)
	if err != nil {
		return nil, vierrors.NewAnalysisRequestError(endpoint, err)
	}

	if !resp.Success {
		c.logger.Warn().Int("status", status).Str("error", resp.Error).Msg("analysis reported failure")
		return nil, vierrors.NewAnalysisResultError(resp.Error)
	}

	c.logger.Info().
		Str("model_id", resp.ModelIdentifier()).
		Float64("score", resp.Score()).
		Dur("elapsed", time.Since(start)).
		Msg("analysis complete")

	return &resp, nil
}

// Health is the health endpoint's reply.
type Health struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// Health checks that the service is reachable.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	endpoint := c.baseURL + healthPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, vierrors.NewAnalysisRequestError(endpoint, fmt.Errorf("failed to create health check request: %w", err))
	}

	var h Health
	status, err := c.do(req, &h)
	if err != nil {
		return nil, vierrors.NewAnalysisRequestError(endpoint, err)
	}
	if status != http.StatusOK {
		return nil, vierrors.NewAnalysisRequestError(endpoint, fmt.Errorf("health check returned status %d", status))
	}
	return &h, nil
}

// ModelsResponse is the models endpoint's reply. The model list shape is
// owned by the service and passed through as raw JSON.
type ModelsResponse struct {
	Success bool            `json:"success"`
	Models  json.RawMessage `json:"models,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Models lists the models the service exposes.
func (c *Client) Models(ctx context.Context) (*ModelsResponse, error) {
	endpoint := c.baseURL + modelsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, vierrors.NewAnalysisRequestError(endpoint, fmt.Errorf("failed to create models request: %w", err))
	}

	var m ModelsResponse
	if _, err := c.do(req, &m); err != nil {
		return nil, vierrors.NewAnalysisRequestError(endpoint, err)
	}
	if !m.Success {
		return nil, vierrors.NewAnalysisResultError(m.Error)
	}
	return &m, nil
}

// do sends req and decodes a JSON body into out whatever the status code,
// since the service reports failures as JSON with 4xx/5xx statuses. A body
// that is not JSON is an error.
func (c *Client) do(req *http.Request, out interface{}) (int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		snippet := string(data)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return resp.StatusCode, fmt.Errorf("status %d with undecodable body %q: %w", resp.StatusCode, snippet, err)
	}
	return resp.StatusCode, nil
}
