package annotation

import (
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/lucasb-eyer/go-colorful"

	vierrors "github.com/ironsheep/consensus-viewer-mcp/internal/errors"
)

// DefaultClinicianColor is the marker color used when none is given.
const DefaultClinicianColor = "#3B82F6"

// Point is a position in normalized image coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Clamp returns p with both coordinates constrained to [0,1].
func (p Point) Clamp() Point {
	return Point{X: clamp01(p.X), Y: clamp01(p.Y)}
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Annotation is a clinician-placed marker with an optional comment.
//
// Identity is the ID: two annotations with equal coordinates are still
// different markers. Use SameAs rather than == when matching.
type Annotation struct {
	ID      string `json:"id"`
	Point   Point  `json:"point"`
	Comment string `json:"comment"`
	Color   string `json:"color"`
}

// NewAnnotation creates an annotation with a fresh ID.
//
// Coordinates are clamped to [0,1]; NaN or infinite coordinates are
// rejected. An empty color selects DefaultClinicianColor; any other value
// must be a "#RRGGBB" hex color.
func NewAnnotation(p Point, comment, color string) (Annotation, error) {
	if !finite(p.X) || !finite(p.Y) {
		return Annotation{}, vierrors.NewInvalidInputError("annotation coordinates must be finite, got (%v,%v)", p.X, p.Y)
	}

	color = strings.TrimSpace(color)
	if color == "" {
		color = DefaultClinicianColor
	} else {
		c, err := colorful.Hex(color)
		if err != nil {
			return Annotation{}, vierrors.NewInvalidInputError("invalid annotation color %q", color)
		}
		color = strings.ToUpper(c.Hex())
	}

	return Annotation{
		ID:      uuid.NewString(),
		Point:   p.Clamp(),
		Comment: comment,
		Color:   color,
	}, nil
}

// SameAs reports whether a and b are the same annotation.
func (a Annotation) SameAs(b Annotation) bool {
	return a.ID != "" && a.ID == b.ID
}

// HasComment reports whether the annotation carries non-blank text.
func (a Annotation) HasComment() bool {
	return strings.TrimSpace(a.Comment) != ""
}

// Annotations is an ordered collection in insertion order.
type Annotations []Annotation

// With returns a new collection with a appended.
func (as Annotations) With(a Annotation) Annotations {
	out := make(Annotations, 0, len(as)+1)
	out = append(out, as...)
	return append(out, a)
}

// Without returns a new collection without the annotation whose ID is id,
// and whether it was present.
func (as Annotations) Without(id string) (Annotations, bool) {
	out := make(Annotations, 0, len(as))
	found := false
	for _, a := range as {
		if a.ID == id {
			found = true
			continue
		}
		out = append(out, a)
	}
	return out, found
}

// Replace returns a new collection with the annotation sharing a's ID
// swapped for a, keeping its position.
func (as Annotations) Replace(a Annotation) (Annotations, bool) {
	out := make(Annotations, len(as))
	copy(out, as)
	for i := range out {
		if out[i].SameAs(a) {
			out[i] = a
			return out, true
		}
	}
	return out, false
}

// IndexOf returns the position of the annotation with the given ID, or -1.
func (as Annotations) IndexOf(id string) int {
	for i, a := range as {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// Region is a machine-generated circular finding.
//
// Regions have no identity; they are compared by value and replaced as a
// whole on every analysis.
type Region struct {
	Center      Point   `json:"center"`
	Radius      float64 `json:"radius"`
	Intensity   float64 `json:"intensity"`
	Label       string  `json:"label"`
	Explanation string  `json:"explanation"`
}

// NewRegion validates and builds a Region. Center and intensity are clamped
// to [0,1]; NaN values and negative radii are rejected.
func NewRegion(center Point, radius, intensity float64, label, explanation string) (Region, error) {
	if !finite(center.X) || !finite(center.Y) {
		return Region{}, vierrors.NewInvalidInputError("region center must be finite, got (%v,%v)", center.X, center.Y)
	}
	if !finite(radius) || radius < 0 {
		return Region{}, vierrors.NewInvalidInputError("region radius must be a non-negative number, got %v", radius)
	}
	if !finite(intensity) {
		return Region{}, vierrors.NewInvalidInputError("region intensity must be finite, got %v", intensity)
	}

	return Region{
		Center:      center.Clamp(),
		Radius:      radius,
		Intensity:   clamp01(intensity),
		Label:       label,
		Explanation: explanation,
	}, nil
}

// Contains reports whether p lies strictly inside the region's circle.
// A point exactly on the boundary is outside.
func (r Region) Contains(p Point) bool {
	return Distance(p, r.Center) < r.Radius
}

// ConsensusRegion records agreement between one annotation and one region.
//
// Center and Radius describe the halo drawn for the agreement: a circle
// around the midpoint of the two points, wide enough to cover both.
type ConsensusRegion struct {
	Annotation Annotation `json:"annotation"`
	Region     Region     `json:"region"`
	Center     Point      `json:"center"`
	Radius     float64    `json:"radius"`
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
