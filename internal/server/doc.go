// Package server implements the MCP (Model Context Protocol) server for the
// consensus viewer.
//
// The server exposes one viewer through MCP tools. A client loads a medical
// image, places clinician annotations, requests an AI analysis and reads
// back the consensus between the two, either as data or as a rendered
// overlay.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses and notifications on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Image:
//   - viewer_load_image: Display an image (path, file://, http(s), data URI)
//   - viewer_close_image: Remove the image
//   - viewer_status: Full viewer state
//
// Annotation:
//   - viewer_set_mode: inspect or annotate
//   - viewer_click: Pick a finding or open a pending annotation
//   - viewer_confirm_annotation, viewer_cancel_annotation
//   - viewer_remove_annotation, viewer_edit_annotation
//
// Analysis:
//   - viewer_analyze: Run inference and replace the AI findings
//   - viewer_set_consensus: Toggle the consensus layer
//   - viewer_pointer_move, viewer_hover_finding: Hover a finding
//   - viewer_consensus, viewer_findings: Read derived state
//
// Output:
//   - viewer_render: Overlay or composite as base64 PNG
//   - viewer_crop_finding: Zoom to one finding
//
// Catalog and service:
//   - pathology_list, pathology_synthesize
//   - inference_health, inference_models
//
// Pointer tools take normalized coordinates by default. With "pixels": true
// they take host-surface pixels, which are mapped through the displayed
// image rectangle.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with code
// -32000. Viewer errors carry their code and details as data, for example:
//
//	{"error_code": "IMAGE_LOAD_FAILED", "message": "Unable to load image", "locator": "..."}
//
// Failed analyses are also sent as a notifications/message at level error.
// An analysis started with "async": true reports its outcome only that way.
//
// # Usage
//
//	srv := server.New(server.Options{Viewer: v, Inference: client, Logger: logger})
//	if err := srv.Run(); err != nil {
//	    log.Fatal().Err(err).Msg("server error")
//	}
package server
