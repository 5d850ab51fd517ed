package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/consensus-viewer-mcp/internal/annotation"
)

// CropResult contains the cropped image data
type CropResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// Crop extracts a rectangular region from an image
func Crop(img image.Image, x1, y1, x2, y2 int, scale float64) (*CropResult, error) {
	bounds := img.Bounds()

	// Validate coordinates
	if x1 < bounds.Min.X || y1 < bounds.Min.Y || x2 > bounds.Max.X || y2 > bounds.Max.Y {
		return nil, fmt.Errorf("crop region (%d,%d)-(%d,%d) outside image bounds (%d,%d)-(%d,%d)",
			x1, y1, x2, y2, bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Max.Y)
	}
	if x1 >= x2 || y1 >= y2 {
		return nil, fmt.Errorf("invalid crop region: x1 must be < x2, y1 must be < y2")
	}

	cropped := imaging.Crop(img, image.Rect(x1, y1, x2, y2))

	if scale != 1.0 && scale > 0 {
		newWidth := int(float64(cropped.Bounds().Dx()) * scale)
		newHeight := int(float64(cropped.Bounds().Dy()) * scale)
		cropped = imaging.Resize(cropped, newWidth, newHeight, imaging.Lanczos)
	}

	return encodeCrop(cropped)
}

// CropFinding zooms to a region: it crops the displayed image to the
// square enclosing the region's circle, clipped to the image.
//
// img must be the displayed image, whose bounds match rect's size, so the
// crop lines up with what the overlay draws.
func CropFinding(img image.Image, rect Rect, region annotation.Region, policy RadiusPolicy, scale float64) (*CropResult, error) {
	if rect.Empty() {
		return nil, fmt.Errorf("no displayed image to crop")
	}
	b := img.Bounds()
	if b.Dx() != rect.Width || b.Dy() != rect.Height {
		return nil, fmt.Errorf("image %dx%d does not match displayed rect %dx%d", b.Dx(), b.Dy(), rect.Width, rect.Height)
	}

	x1, y1, x2, y2 := policy.PixelBounds(region.Center, region.Radius, rect)
	if x1 >= x2 || y1 >= y2 {
		return nil, fmt.Errorf("finding %q has no visible area", region.Label)
	}

	return Crop(img, b.Min.X+x1, b.Min.Y+y1, b.Min.X+x2, b.Min.Y+y2, scale)
}

// EncodePNG encodes any image as a base64 PNG result.
func EncodePNG(img image.Image) (*CropResult, error) {
	return encodeCrop(img)
}

func encodeCrop(img image.Image) (*CropResult, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return &CropResult{
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}
