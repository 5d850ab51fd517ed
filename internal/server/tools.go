package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// pointProperties are shared by the tools that take a pointer position.
func pointProperties() map[string]interface{} {
	return map[string]interface{}{
		"x": map[string]interface{}{
			"type":        "number",
			"description": "X coordinate, normalized 0-1 across the image (or host pixels when pixels is true)",
		},
		"y": map[string]interface{}{
			"type":        "number",
			"description": "Y coordinate, normalized 0-1 down the image (or host pixels when pixels is true)",
		},
		"pixels": map[string]interface{}{
			"type":        "boolean",
			"description": "Interpret x and y as pixel coordinates on the host surface",
			"default":     false,
		},
	}
}

func noArgs() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Image
		{
			Name:        "viewer_load_image",
			Description: "Display an image in the viewer, replacing the current one. Clears all annotations, AI findings and hover state, and discards any analysis still in flight. Accepts a file path, file:// URL, http(s) URL or base64 data URI.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"locator": map[string]interface{}{
						"type":        "string",
						"description": "Image location: absolute path, file://, http(s):// or data: URI",
					},
				},
				"required": []string{"locator"},
			},
		},
		{
			Name:        "viewer_close_image",
			Description: "Remove the displayed image and clear all image-bound state.",
			InputSchema: noArgs(),
		},
		{
			Name:        "viewer_status",
			Description: "Return the full viewer state: surface status and displayed rectangle, mode, annotations, AI regions, consensus matches, hover, last analysis and last error.",
			InputSchema: noArgs(),
		},

		// Annotation
		{
			Name:        "viewer_set_mode",
			Description: "Switch between inspect mode (clicks pick AI findings) and annotate mode (clicks start a clinician annotation).",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"mode": map[string]interface{}{
						"type": "string",
						"enum": []string{"inspect", "annotate"},
					},
				},
				"required": []string{"mode"},
			},
		},
		{
			Name:        "viewer_click",
			Description: "Click on the image. In annotate mode this opens a pending annotation at the point, to be confirmed with viewer_confirm_annotation. In inspect mode it selects the first AI finding under the point.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": pointProperties(),
				"required":   []string{"x", "y"},
			},
		},
		{
			Name:        "viewer_confirm_annotation",
			Description: "Create the pending annotation with an optional comment and marker color.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"comment": map[string]interface{}{
						"type":        "string",
						"description": "Clinician comment",
					},
					"color": map[string]interface{}{
						"type":        "string",
						"description": "Marker color as #RRGGBB (default #3B82F6)",
					},
				},
			},
		},
		{
			Name:        "viewer_cancel_annotation",
			Description: "Discard the pending annotation.",
			InputSchema: noArgs(),
		},
		{
			Name:        "viewer_remove_annotation",
			Description: "Delete an annotation by id. Remaining markers are renumbered.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id": map[string]interface{}{"type": "string"},
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        "viewer_edit_annotation",
			Description: "Replace the comment of an existing annotation.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id":      map[string]interface{}{"type": "string"},
					"comment": map[string]interface{}{"type": "string"},
				},
				"required": []string{"id", "comment"},
			},
		},

		// Analysis
		{
			Name:        "viewer_analyze",
			Description: "Send the displayed image to the inference service and replace the AI findings with regions derived from the returned score. Results for an image that has since been replaced are discarded.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"model_id": map[string]interface{}{
						"type":        "string",
						"description": "Model identifier, e.g. mc_chestradiography_pneumothorax:v1.20250828",
					},
					"pathology": map[string]interface{}{
						"type":        "string",
						"description": "Pathology key or display name used to pick the model when model_id is omitted",
					},
					"from_filename": map[string]interface{}{
						"type":        "boolean",
						"description": "Guess the pathology from the image file name when neither model_id nor pathology is given",
						"default":     false,
					},
					"parallel": map[string]interface{}{
						"type":        "boolean",
						"description": "Ask the service to run models in parallel when no model is selected",
						"default":     false,
					},
					"async": map[string]interface{}{
						"type":        "boolean",
						"description": "Return immediately and report the outcome as a notifications/message",
						"default":     false,
					},
				},
			},
		},
		{
			Name:        "viewer_set_consensus",
			Description: "Show or hide the consensus highlight layer.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"show": map[string]interface{}{"type": "boolean"},
				},
				"required": []string{"show"},
			},
		},
		{
			Name:        "viewer_pointer_move",
			Description: "Move the pointer over the image, hovering the first AI finding under it or clearing the hover.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": pointProperties(),
				"required":   []string{"x", "y"},
			},
		},
		{
			Name:        "viewer_hover_finding",
			Description: "Hover an AI finding by its index in the findings list. A negative index clears the hover.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"index": map[string]interface{}{"type": "integer"},
				},
				"required": []string{"index"},
			},
		},
		{
			Name:        "viewer_consensus",
			Description: "List annotation/finding pairs where the clinician marker lies inside the AI region.",
			InputSchema: noArgs(),
		},
		{
			Name:        "viewer_findings",
			Description: "List the AI findings in order with hover state and the number of agreeing annotations.",
			InputSchema: noArgs(),
		},

		// Output
		{
			Name:        "viewer_render",
			Description: "Render the overlay (AI heatmap, consensus highlights, clinician markers) as a base64-encoded PNG, optionally composited over the image.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"composite": map[string]interface{}{
						"type":        "boolean",
						"description": "Draw the overlay over the displayed image instead of returning it alone",
						"default":     false,
					},
					"wait": map[string]interface{}{
						"type":        "boolean",
						"description": "Wait for a freshly loaded image to settle before rendering",
						"default":     false,
					},
				},
			},
		},
		{
			Name:        "viewer_crop_finding",
			Description: "Crop the displayed image to the bounding box of an AI finding and return it as base64-encoded PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"index": map[string]interface{}{"type": "integer"},
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Optional scale factor. Default 1.0",
						"default":     1.0,
					},
				},
				"required": []string{"index"},
			},
		},

		// Catalog
		{
			Name:        "pathology_list",
			Description: "List the pathology catalog: keys, display names, model identifiers, secondary findings and region templates.",
			InputSchema: noArgs(),
		},
		{
			Name:        "pathology_synthesize",
			Description: "Preview the AI regions a score would produce for a model or pathology without changing the viewer.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"score":     map[string]interface{}{"type": "number"},
					"model_id":  map[string]interface{}{"type": "string"},
					"pathology": map[string]interface{}{"type": "string"},
				},
				"required": []string{"score"},
			},
		},

		// Inference service
		{
			Name:        "inference_health",
			Description: "Check that the inference service is reachable.",
			InputSchema: noArgs(),
		},
		{
			Name:        "inference_models",
			Description: "List the models the inference service exposes.",
			InputSchema: noArgs(),
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
