package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/ironsheep/consensus-viewer-mcp/internal/annotation"
)

func decodeResult(t *testing.T, result *CropResult) image.Image {
	t.Helper()
	decoded, err := base64.StdEncoding.DecodeString(result.ImageBase64)
	if err != nil {
		t.Fatalf("failed to decode base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(decoded))
	if err != nil {
		t.Fatalf("failed to decode PNG: %v", err)
	}
	return img
}

func TestCrop(t *testing.T) {
	img := createPatternImage(100, 100)

	result, err := Crop(img, 0, 0, 50, 50, 1.0)
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}

	if result.Width != 50 || result.Height != 50 {
		t.Errorf("dimensions: got %dx%d, want 50x50", result.Width, result.Height)
	}

	if result.MimeType != "image/png" {
		t.Errorf("MimeType: got %s, want image/png", result.MimeType)
	}

	// Top-left quadrant is red
	r, g, b, _ := decodeResult(t, result).At(25, 25).RGBA()
	if r>>8 != 255 || g>>8 != 0 || b>>8 != 0 {
		t.Errorf("cropped image color: got (%d,%d,%d), want (255,0,0)", r>>8, g>>8, b>>8)
	}
}

func TestCrop_WithScale(t *testing.T) {
	img := createInMemoryImage(100, 100, color.RGBA{255, 0, 0, 255})

	tests := []struct {
		name         string
		x2, y2       int
		scale        float64
		wantW, wantH int
	}{
		{"scale up 2x", 50, 50, 2.0, 100, 100},
		{"scale down 0.5x", 100, 100, 0.5, 50, 50},
		{"zero scale ignored", 40, 40, 0, 40, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Crop(img, 0, 0, tt.x2, tt.y2, tt.scale)
			if err != nil {
				t.Fatalf("Crop failed: %v", err)
			}
			if result.Width != tt.wantW || result.Height != tt.wantH {
				t.Errorf("scaled dimensions: got %dx%d, want %dx%d", result.Width, result.Height, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestCrop_InvalidRegion(t *testing.T) {
	img := createInMemoryImage(100, 100, color.RGBA{255, 0, 0, 255})

	tests := []struct {
		name           string
		x1, y1, x2, y2 int
	}{
		{"x1 negative", -1, 0, 50, 50},
		{"y2 too large", 0, 0, 50, 101},
		{"x1 >= x2", 50, 0, 50, 50},
		{"y1 > y2", 0, 60, 50, 50},
		{"zero area", 50, 50, 50, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Crop(img, tt.x1, tt.y1, tt.x2, tt.y2, 1.0)
			if err == nil {
				t.Error("Crop should fail for invalid region")
			}
		})
	}
}

func TestCropFinding(t *testing.T) {
	img := createPatternImage(200, 100)
	rect := Rect{Left: 0, Top: 150, Width: 200, Height: 100}

	// Radius 0.1 of the 100px min dimension is 10px around (50,25)
	region := annotation.Region{Center: annotation.Point{X: 0.25, Y: 0.25}, Radius: 0.1, Intensity: 0.9, Label: "Nodule"}

	result, err := CropFinding(img, rect, region, ScaleByMinDimension, 1.0)
	if err != nil {
		t.Fatalf("CropFinding failed: %v", err)
	}
	if result.Width != 20 || result.Height != 20 {
		t.Errorf("dimensions: got %dx%d, want 20x20", result.Width, result.Height)
	}

	r, g, b, _ := decodeResult(t, result).At(10, 10).RGBA()
	if r>>8 != 255 || g>>8 != 0 || b>>8 != 0 {
		t.Errorf("crop color: got (%d,%d,%d), want red", r>>8, g>>8, b>>8)
	}

	// Width policy scales by 200px: 20px radius
	result, err = CropFinding(img, rect, region, ScaleByWidth, 1.0)
	if err != nil {
		t.Fatalf("CropFinding failed: %v", err)
	}
	if result.Width != 40 || result.Height != 40 {
		t.Errorf("width policy dimensions: got %dx%d, want 40x40", result.Width, result.Height)
	}
}

func TestCropFinding_ClippedAtEdge(t *testing.T) {
	img := createInMemoryImage(100, 100, color.White)
	rect := Rect{Width: 100, Height: 100}
	region := annotation.Region{Center: annotation.Point{X: 0, Y: 0}, Radius: 0.2}

	result, err := CropFinding(img, rect, region, ScaleByMinDimension, 1.0)
	if err != nil {
		t.Fatalf("CropFinding failed: %v", err)
	}
	if result.Width != 20 || result.Height != 20 {
		t.Errorf("dimensions: got %dx%d, want 20x20", result.Width, result.Height)
	}
}

func TestCropFinding_Errors(t *testing.T) {
	img := createInMemoryImage(100, 100, color.White)
	region := annotation.Region{Center: annotation.Point{X: 0.5, Y: 0.5}, Radius: 0.1}

	if _, err := CropFinding(img, Rect{}, region, ScaleByMinDimension, 1); err == nil {
		t.Error("CropFinding should fail with empty rect")
	}
	if _, err := CropFinding(img, Rect{Width: 50, Height: 50}, region, ScaleByMinDimension, 1); err == nil {
		t.Error("CropFinding should fail when image and rect sizes differ")
	}
	zero := annotation.Region{Center: annotation.Point{X: 0.5, Y: 0.5}}
	if _, err := CropFinding(img, Rect{Width: 100, Height: 100}, zero, ScaleByMinDimension, 1); err == nil {
		t.Error("CropFinding should fail for a zero-radius region")
	}
}
