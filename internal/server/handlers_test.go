package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/consensus-viewer-mcp/internal/imaging"
	"github.com/ironsheep/consensus-viewer-mcp/internal/inference"
	"github.com/ironsheep/consensus-viewer-mcp/internal/render"
	"github.com/ironsheep/consensus-viewer-mcp/internal/viewer"
)

const pneumothoraxModel = "mc_chestradiography_pneumothorax:v1.20250828"

// createTestImageFile creates a test image file and returns its path
func createTestImageFile(t *testing.T, width, height int, c color.Color) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}

	path := filepath.Join(t.TempDir(), "handler-test.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))

	return path
}

// fakeService stands in for the inference service. Analyses score the
// requested model, or the pneumothorax model when none is given.
func fakeService(t *testing.T, score float64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/health":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "healthy", "service": "chest-xray-inference", "version": "1.0.0",
			})
		case "/api/models":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true,
				"models":  []map[string]string{{"id": pneumothoraxModel}},
			})
		case "/api/analyze":
			if err := r.ParseMultipartForm(32 << 20); !assert.NoError(t, err) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			model := r.FormValue("model_id")
			if model == "" {
				model = pneumothoraxModel
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success":  true,
				"study_id": "study-1",
				"image_id": "image-1",
				"model_id": model,
				"results": map[string]interface{}{
					"response": map[string]interface{}{"score": score, "model": model},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

type testServer struct {
	*Server
	out *bytes.Buffer
}

func newTestServer(t *testing.T, handler http.Handler) *testServer {
	t.Helper()

	var client *inference.Client
	var service InferenceService
	if handler != nil {
		ts := httptest.NewServer(handler)
		t.Cleanup(ts.Close)
		client = inference.NewClient(ts.URL, 0, zerolog.Nop())
		service = client
	}

	opts := viewer.Options{
		Surface:  imaging.NewSurface(imaging.Host{Width: 200, Height: 200}, imaging.NewLoader(nil), zerolog.Nop()),
		Renderer: render.New(render.Options{}),
		Logger:   zerolog.Nop(),
	}
	if client != nil {
		opts.Analyzer = client
	}

	s := New(Options{
		Viewer:    viewer.New(opts),
		Inference: service,
		Logger:    zerolog.Nop(),
	})
	out := &bytes.Buffer{}
	s.encoder = json.NewEncoder(out)
	return &testServer{Server: s, out: out}
}

func (ts *testServer) call(t *testing.T, name string, args interface{}) *MCPResponse {
	t.Helper()
	params := map[string]interface{}{"name": name}
	if args != nil {
		params["arguments"] = args
	}
	paramsJSON, err := json.Marshal(params)
	require.NoError(t, err)

	resp := ts.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: paramsJSON})
	require.NotNil(t, resp)
	return resp
}

// result calls a tool that must succeed and decodes its text content.
func (ts *testServer) result(t *testing.T, name string, args interface{}) map[string]interface{} {
	t.Helper()
	resp := ts.call(t, name, args)
	require.Nil(t, resp.Error, "unexpected error: %+v", resp.Error)

	content := resp.Result.(map[string]interface{})["content"].([]map[string]interface{})
	require.Len(t, content, 1)
	assert.Equal(t, "text", content[0]["type"])

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(content[0]["text"].(string)), &out))
	return out
}

func (ts *testServer) notifications(t *testing.T) []MCPNotification {
	t.Helper()
	var out []MCPNotification
	for _, line := range strings.Split(strings.TrimSpace(ts.out.String()), "\n") {
		if line == "" {
			continue
		}
		var n MCPNotification
		require.NoError(t, json.Unmarshal([]byte(line), &n))
		out = append(out, n)
	}
	return out
}

func errorData(t *testing.T, resp *MCPResponse) map[string]interface{} {
	t.Helper()
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32000, resp.Error.Code)
	data, ok := resp.Error.Data.(map[string]interface{})
	require.True(t, ok, "error data should be a map, got %T", resp.Error.Data)
	return data
}

func TestConsensusWorkflow(t *testing.T) {
	ts := newTestServer(t, fakeService(t, 0.85))
	imgPath := createTestImageFile(t, 100, 100, color.Gray{Y: 90})

	status := ts.result(t, "viewer_load_image", map[string]interface{}{"locator": imgPath})
	assert.Equal(t, "ready", status["state"])

	ts.result(t, "viewer_set_mode", map[string]interface{}{"mode": "annotate"})

	// The 100x100 image is centered in the 200x200 host at (50,50), so host
	// pixel (77,74) is the normalized point (0.27,0.24).
	click := ts.result(t, "viewer_click", map[string]interface{}{"x": 77, "y": 74, "pixels": true})
	pending := click["pending"].(map[string]interface{})
	assert.InDelta(t, 0.27, pending["x"], 1e-9)
	assert.InDelta(t, 0.24, pending["y"], 1e-9)

	confirmed := ts.result(t, "viewer_confirm_annotation", map[string]interface{}{"comment": "apical pleural line"})
	assert.Equal(t, float64(1), confirmed["number"])
	assert.Equal(t, float64(0), confirmed["consensus"])

	analysis := ts.result(t, "viewer_analyze", nil)
	assert.Equal(t, "pneumothorax", analysis["pathology_key"])
	assert.Equal(t, "Pneumothorax", analysis["display_name"])
	assert.Equal(t, float64(2), analysis["regions"])
	assert.Equal(t, float64(1), analysis["consensus"])
	assert.Equal(t, "study-1", analysis["study_id"])

	findings := ts.result(t, "viewer_findings", nil)["findings"].([]interface{})
	require.Len(t, findings, 2)
	first := findings[0].(map[string]interface{})
	assert.Equal(t, "Pneumothorax", first["region"].(map[string]interface{})["label"])
	assert.Equal(t, float64(1), first["agreements"])
	second := findings[1].(map[string]interface{})
	assert.Equal(t, "Secondary Finding", second["region"].(map[string]interface{})["label"])

	consensus := ts.result(t, "viewer_consensus", nil)
	assert.Equal(t, float64(1), consensus["count"])

	rendered := ts.result(t, "viewer_render", nil)
	assert.Equal(t, float64(100), rendered["width"])
	assert.Equal(t, float64(2), rendered["regions"])
	assert.Equal(t, float64(1), rendered["halos"])
	assert.Equal(t, float64(1), rendered["markers"])

	raw, err := base64.StdEncoding.DecodeString(rendered["image_base64"].(string))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 100), img.Bounds())

	// Hiding the layer removes halos but keeps the matches
	ts.result(t, "viewer_set_consensus", map[string]interface{}{"show": false})
	rendered = ts.result(t, "viewer_render", map[string]interface{}{"composite": true})
	assert.Equal(t, float64(0), rendered["halos"])
	assert.Equal(t, true, rendered["composite"])
	assert.Equal(t, float64(1), ts.result(t, "viewer_consensus", nil)["count"])
}

func TestAnalyze_FailureNotifies(t *testing.T) {
	ts := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"success": false, "error": "Empty filename"}`))
	}))
	ts.result(t, "viewer_load_image", map[string]interface{}{"locator": createTestImageFile(t, 20, 20, color.White)})

	resp := ts.call(t, "viewer_analyze", nil)
	data := errorData(t, resp)
	assert.Equal(t, "ANALYSIS_RESULT_FAILED", data["error_code"])
	assert.Equal(t, "Empty filename", resp.Error.Message)

	notes := ts.notifications(t)
	require.Len(t, notes, 1)
	assert.Equal(t, "notifications/message", notes[0].Method)
	params := notes[0].Params.(map[string]interface{})
	assert.Equal(t, "error", params["level"])
	assert.Equal(t, "analysis_failed", params["data"].(map[string]interface{})["event"])

	status := ts.result(t, "viewer_status", nil)
	assert.Equal(t, "ANALYSIS_RESULT_FAILED", status["last_error"].(map[string]interface{})["error_code"])
}

func TestAnalyze_Async(t *testing.T) {
	ts := newTestServer(t, fakeService(t, 0.5))
	ts.result(t, "viewer_load_image", map[string]interface{}{"locator": createTestImageFile(t, 20, 20, color.White)})

	started := ts.result(t, "viewer_analyze", map[string]interface{}{"async": true, "pathology": "cardiomegaly"})
	assert.Equal(t, true, started["started"])

	ts.wg.Wait()

	notes := ts.notifications(t)
	require.Len(t, notes, 1)
	params := notes[0].Params.(map[string]interface{})
	assert.Equal(t, "info", params["level"])
	data := params["data"].(map[string]interface{})
	assert.Equal(t, "analysis_complete", data["event"])
	assert.Equal(t, "cardiomegaly", data["analysis"].(map[string]interface{})["pathology_key"])

	findings := ts.result(t, "viewer_findings", nil)["findings"].([]interface{})
	assert.Len(t, findings, 1)
}

func TestAnalyze_NoService(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.result(t, "viewer_load_image", map[string]interface{}{"locator": createTestImageFile(t, 20, 20, color.White)})

	data := errorData(t, ts.call(t, "viewer_analyze", nil))
	assert.Equal(t, "ANALYSIS_REQUEST_FAILED", data["error_code"])

	data = errorData(t, ts.call(t, "inference_health", nil))
	assert.Equal(t, "ANALYSIS_REQUEST_FAILED", data["error_code"])
}

func TestLoadImage_Errors(t *testing.T) {
	ts := newTestServer(t, nil)

	data := errorData(t, ts.call(t, "viewer_load_image", map[string]interface{}{"locator": "/nonexistent/scan.png"}))
	assert.Equal(t, "IMAGE_LOAD_FAILED", data["error_code"])
	assert.Equal(t, "/nonexistent/scan.png", data["locator"])

	data = errorData(t, ts.call(t, "viewer_load_image", map[string]interface{}{"locator": " "}))
	assert.Equal(t, "INVALID_INPUT", data["error_code"])

	status := ts.result(t, "viewer_status", nil)
	assert.Equal(t, "error", status["surface"].(map[string]interface{})["state"])
}

func TestNoImageErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, tc := range []struct {
		tool string
		args interface{}
	}{
		{"viewer_click", map[string]interface{}{"x": 0.5, "y": 0.5}},
		{"viewer_click", map[string]interface{}{"x": 10, "y": 10, "pixels": true}},
		{"viewer_render", nil},
		{"viewer_crop_finding", map[string]interface{}{"index": 0}},
	} {
		t.Run(tc.tool, func(t *testing.T) {
			data := errorData(t, ts.call(t, tc.tool, tc.args))
			assert.Equal(t, "NO_IMAGE", data["error_code"])
		})
	}
}

func TestClick_RequiresCoordinates(t *testing.T) {
	ts := newTestServer(t, nil)
	data := errorData(t, ts.call(t, "viewer_click", map[string]interface{}{"x": 0.5}))
	assert.Equal(t, "INVALID_INPUT", data["error_code"])
}

func TestAnnotationTools(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.result(t, "viewer_load_image", map[string]interface{}{"locator": createTestImageFile(t, 50, 50, color.White)})
	ts.result(t, "viewer_set_mode", map[string]interface{}{"mode": "annotate"})

	ts.result(t, "viewer_click", map[string]interface{}{"x": 0.2, "y": 0.2})
	first := ts.result(t, "viewer_confirm_annotation", map[string]interface{}{"color": "#10b981"})
	ann := first["annotation"].(map[string]interface{})
	assert.Equal(t, "#10B981", ann["color"])
	id := ann["id"].(string)

	ts.result(t, "viewer_click", map[string]interface{}{"x": 0.7, "y": 0.7})
	cancelled := ts.result(t, "viewer_cancel_annotation", nil)
	assert.Equal(t, true, cancelled["cancelled"])

	data := errorData(t, ts.call(t, "viewer_confirm_annotation", nil))
	assert.Equal(t, "INVALID_INPUT", data["error_code"])

	edited := ts.result(t, "viewer_edit_annotation", map[string]interface{}{"id": id, "comment": "rib"})
	assert.Equal(t, "rib", edited["comment"])
	assert.Equal(t, id, edited["id"])

	removed := ts.result(t, "viewer_remove_annotation", map[string]interface{}{"id": id})
	assert.Equal(t, id, removed["removed"])
	assert.Empty(t, removed["annotations"])

	data = errorData(t, ts.call(t, "viewer_remove_annotation", map[string]interface{}{"id": id}))
	assert.Equal(t, "INVALID_INPUT", data["error_code"])

	data = errorData(t, ts.call(t, "viewer_set_mode", map[string]interface{}{"mode": "draw"}))
	assert.Equal(t, "INVALID_INPUT", data["error_code"])
}

func TestHoverTools(t *testing.T) {
	ts := newTestServer(t, fakeService(t, 0.85))
	ts.result(t, "viewer_load_image", map[string]interface{}{"locator": createTestImageFile(t, 100, 100, color.White)})
	ts.result(t, "viewer_analyze", nil)

	moved := ts.result(t, "viewer_pointer_move", map[string]interface{}{"x": 0.20, "y": 0.46})
	assert.Equal(t, true, moved["hovered"])
	assert.Equal(t, float64(1), moved["index"])

	status := ts.result(t, "viewer_status", nil)
	assert.Equal(t, "Secondary Finding", status["hovered"].(map[string]interface{})["label"])

	hovered := ts.result(t, "viewer_hover_finding", map[string]interface{}{"index": 0})
	findings := hovered["findings"].([]interface{})
	assert.Equal(t, true, findings[0].(map[string]interface{})["hovered"])
	assert.Equal(t, false, findings[1].(map[string]interface{})["hovered"])

	moved = ts.result(t, "viewer_pointer_move", map[string]interface{}{"x": 0.95, "y": 0.95})
	assert.Equal(t, false, moved["hovered"])
	assert.Equal(t, float64(-1), moved["index"])

	data := errorData(t, ts.call(t, "viewer_hover_finding", map[string]interface{}{"index": 5}))
	assert.Equal(t, "INVALID_INPUT", data["error_code"])

	crop := ts.result(t, "viewer_crop_finding", map[string]interface{}{"index": 0, "scale": 2})
	assert.Equal(t, "image/png", crop["mime_type"])
	assert.Equal(t, float64(48), crop["width"])
}

func TestRequiredArguments(t *testing.T) {
	ts := newTestServer(t, fakeService(t, 0.85))
	ts.result(t, "viewer_load_image", map[string]interface{}{"locator": createTestImageFile(t, 100, 100, color.White)})
	ts.result(t, "viewer_analyze", nil)
	ts.result(t, "viewer_set_consensus", map[string]interface{}{"show": true})

	for _, name := range []string{"viewer_hover_finding", "viewer_crop_finding", "viewer_set_consensus"} {
		t.Run(name, func(t *testing.T) {
			data := errorData(t, ts.call(t, name, map[string]interface{}{}))
			assert.Equal(t, "INVALID_INPUT", data["error_code"])
		})
	}

	status := ts.result(t, "viewer_status", nil)
	assert.Equal(t, true, status["show_consensus"], "a rejected call must not change the layer")
	assert.Nil(t, status["hovered"])
}

func TestCloseImage(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.result(t, "viewer_load_image", map[string]interface{}{"locator": createTestImageFile(t, 20, 20, color.White)})

	closed := ts.result(t, "viewer_close_image", nil)
	assert.Equal(t, "idle", closed["state"])
}

func TestPathologyTools(t *testing.T) {
	ts := newTestServer(t, nil)

	list := ts.result(t, "pathology_list", nil)
	assert.Len(t, list["pathologies"], 13)

	regions := ts.result(t, "pathology_synthesize", map[string]interface{}{"score": 0.85, "pathology": "Pneumothorax"})["regions"].([]interface{})
	require.Len(t, regions, 2)
	assert.Equal(t, "Secondary Finding", regions[1].(map[string]interface{})["label"])

	regions = ts.result(t, "pathology_synthesize", map[string]interface{}{"score": 0.9, "model_id": "mc_chestradiography_normal:v1.20250828"})["regions"].([]interface{})
	assert.Empty(t, regions)

	regions = ts.result(t, "pathology_synthesize", map[string]interface{}{"score": 0.29, "pathology": "pneumothorax"})["regions"].([]interface{})
	assert.Empty(t, regions)

	data := errorData(t, ts.call(t, "pathology_synthesize", map[string]interface{}{"pathology": "ild"}))
	assert.Equal(t, "INVALID_INPUT", data["error_code"])

	data = errorData(t, ts.call(t, "pathology_synthesize", map[string]interface{}{"score": 0.5}))
	assert.Equal(t, "INVALID_INPUT", data["error_code"])
}

func TestInferenceTools(t *testing.T) {
	ts := newTestServer(t, fakeService(t, 0.5))

	health := ts.result(t, "inference_health", nil)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "1.0.0", health["version"])

	models := ts.result(t, "inference_models", nil)
	assert.Equal(t, true, models["success"])
	assert.Len(t, models["models"], 1)
}

func TestHandleToolsCall_UnknownTool(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := ts.call(t, "image_ocr_full", nil)

	require.NotNil(t, resp.Error)
	assert.Equal(t, -32000, resp.Error.Code)
	assert.Equal(t, "Tool execution failed", resp.Error.Message)
	assert.Contains(t, resp.Error.Data, "unknown tool")
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := ts.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: json.RawMessage(`[1,2]`)})

	require.NotNil(t, resp.Error)
	assert.Equal(t, -32602, resp.Error.Code)
}

func TestHandleToolsCall_InvalidArguments(t *testing.T) {
	ts := newTestServer(t, nil)
	data := errorData(t, ts.call(t, "viewer_hover_finding", map[string]interface{}{"index": "first"}))
	assert.Equal(t, "INVALID_INPUT", data["error_code"])
}
