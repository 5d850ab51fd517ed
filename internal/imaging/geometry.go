package imaging

import (
	"fmt"
	"math"
	"strings"

	"github.com/ironsheep/consensus-viewer-mcp/internal/annotation"
	vierrors "github.com/ironsheep/consensus-viewer-mcp/internal/errors"
)

// Host is the pixel size of the surface an image is displayed on.
type Host struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Validate reports a SurfaceInitError when the host cannot back a
// rendering context.
func (h Host) Validate() error {
	if h.Width <= 0 || h.Height <= 0 {
		return vierrors.NewSurfaceInitError(h.Width, h.Height)
	}
	return nil
}

// Rect is the area of the host surface covered by the displayed image.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether the rect has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Contains reports whether host pixel (px, py) falls on the image.
func (r Rect) Contains(px, py float64) bool {
	return px >= float64(r.Left) && px < float64(r.Left+r.Width) &&
		py >= float64(r.Top) && py < float64(r.Top+r.Height)
}

// Normalize converts a host pixel position to normalized image
// coordinates. Positions off the image map outside [0,1]; callers that
// need a valid annotation point clamp.
func (r Rect) Normalize(px, py float64) (annotation.Point, error) {
	if r.Empty() {
		return annotation.Point{}, fmt.Errorf("cannot normalize against empty rect %dx%d", r.Width, r.Height)
	}
	return annotation.Point{
		X: (px - float64(r.Left)) / float64(r.Width),
		Y: (py - float64(r.Top)) / float64(r.Height),
	}, nil
}

// Denormalize converts a normalized point to pixels relative to the
// rect's top-left corner, which is the overlay's own coordinate space.
func (r Rect) Denormalize(p annotation.Point) (x, y float64) {
	return p.X * float64(r.Width), p.Y * float64(r.Height)
}

// RadiusPolicy selects the image dimension a normalized radius scales by.
type RadiusPolicy string

const (
	// ScaleByMinDimension keeps circles inside the image on both axes.
	ScaleByMinDimension RadiusPolicy = "min-dimension"

	// ScaleByWidth scales by image width regardless of aspect ratio.
	ScaleByWidth RadiusPolicy = "width"
)

// DefaultRadiusPolicy is used when no policy is configured.
const DefaultRadiusPolicy = ScaleByMinDimension

// ParseRadiusPolicy maps a configuration value to a policy. An empty value
// selects DefaultRadiusPolicy.
func ParseRadiusPolicy(s string) (RadiusPolicy, error) {
	switch RadiusPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultRadiusPolicy, nil
	case ScaleByMinDimension:
		return ScaleByMinDimension, nil
	case ScaleByWidth:
		return ScaleByWidth, nil
	default:
		return "", fmt.Errorf("unknown radius policy %q", s)
	}
}

// Scale converts a normalized radius to pixels for rect.
func (p RadiusPolicy) Scale(radius float64, rect Rect) float64 {
	switch p {
	case ScaleByWidth:
		return radius * float64(rect.Width)
	default:
		return radius * float64(minInt(rect.Width, rect.Height))
	}
}

// PixelBounds returns the integer square enclosing a circle of normalized
// center and radius, clipped to the rect's local area.
func (p RadiusPolicy) PixelBounds(center annotation.Point, radius float64, rect Rect) (x1, y1, x2, y2 int) {
	cx, cy := rect.Denormalize(center)
	r := p.Scale(radius, rect)

	x1 = clampInt(int(math.Floor(cx-r)), 0, rect.Width)
	y1 = clampInt(int(math.Floor(cy-r)), 0, rect.Height)
	x2 = clampInt(int(math.Ceil(cx+r)), 0, rect.Width)
	y2 = clampInt(int(math.Ceil(cy+r)), 0, rect.Height)
	return x1, y1, x2, y2
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
