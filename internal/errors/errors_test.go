package errors

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewerError_ErrorAndUnwrap(t *testing.T) {
	err := NewImageLoadError("/tmp/missing.png", io.ErrUnexpectedEOF)

	assert.Contains(t, err.Error(), string(ErrorImageLoad))
	assert.Contains(t, err.Error(), "unexpected EOF")
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestCodeOf_ThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("load step: %w", NewSurfaceInitError(0, 768))

	assert.Equal(t, ErrorSurfaceInit, CodeOf(wrapped))
	assert.True(t, Is(wrapped, ErrorSurfaceInit))
	assert.False(t, Is(wrapped, ErrorImageLoad))
	assert.Equal(t, ErrorCode(""), CodeOf(io.EOF))
	assert.False(t, Is(nil, ErrorSurfaceInit))
}

func TestNewAnalysisResultError_KeepsMessageVerbatim(t *testing.T) {
	err := NewAnalysisResultError("All models failed to analyze the image")
	assert.Equal(t, "All models failed to analyze the image", err.Message)

	empty := NewAnalysisResultError("")
	assert.Equal(t, "Analysis failed", empty.Message)
}

func TestToMap(t *testing.T) {
	err := NewAnalysisRequestError("http://localhost:5001/api/analyze", io.EOF)
	m := err.ToMap()

	require.Equal(t, "ANALYSIS_REQUEST_FAILED", m["error_code"])
	assert.Equal(t, "http://localhost:5001/api/analyze", m["endpoint"])
	assert.Equal(t, "EOF", m["cause"])
	_, hasLocator := m["locator"]
	assert.False(t, hasLocator)

	withLocator := NewImageLoadError("data:image/png;base64,xx", nil).ToMap()
	assert.Equal(t, "data:image/png;base64,xx", withLocator["locator"])
}
