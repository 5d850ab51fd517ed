package render

import (
	"fmt"
	"image"
	"math"

	"github.com/ironsheep/consensus-viewer-mcp/internal/annotation"
	"github.com/ironsheep/consensus-viewer-mcp/internal/imaging"
)

// Input is everything the overlay depends on. Rendering the same Input
// twice produces identical pixels.
type Input struct {
	Rect          imaging.Rect
	Regions       []annotation.Region
	Annotations   []annotation.Annotation
	Consensus     []annotation.ConsensusRegion
	ShowConsensus bool

	// Hovered is compared by value against Regions. Nil means no hover.
	Hovered *annotation.Region
}

// Scene is the laid-out overlay in pixels relative to the overlay's
// top-left corner.
type Scene struct {
	Width   int           `json:"width"`
	Height  int           `json:"height"`
	Regions []RegionShape `json:"regions"`
	Halos   []HaloShape   `json:"halos"`
	Markers []MarkerShape `json:"markers"`
}

// Empty reports whether the scene draws nothing.
func (s Scene) Empty() bool {
	return len(s.Regions) == 0 && len(s.Halos) == 0 && len(s.Markers) == 0
}

// RegionShape is one AI region in pixels.
type RegionShape struct {
	CX        float64         `json:"cx"`
	CY        float64         `json:"cy"`
	Radius    float64         `json:"radius"`
	Intensity float64         `json:"intensity"`
	Box       image.Rectangle `json:"box"`
	Label     string          `json:"label,omitempty"`
	Hovered   bool            `json:"hovered"`
}

// HaloShape is one consensus halo in pixels.
type HaloShape struct {
	CX     float64 `json:"cx"`
	CY     float64 `json:"cy"`
	Radius float64 `json:"radius"`
}

// MarkerShape is one clinician marker in pixels.
type MarkerShape struct {
	AnnotationID string  `json:"annotation_id"`
	Number       int     `json:"number"`
	CX           float64 `json:"cx"`
	CY           float64 `json:"cy"`
	Radius       float64 `json:"radius"`
	Color        string  `json:"color"`
	Badge        bool    `json:"badge"`
}

// Plan lays out in without drawing it.
func (r *Renderer) Plan(in Input) Scene {
	scene := Scene{
		Width:   in.Rect.Width,
		Height:  in.Rect.Height,
		Regions: make([]RegionShape, 0, len(in.Regions)),
		Halos:   make([]HaloShape, 0),
		Markers: make([]MarkerShape, 0, len(in.Annotations)),
	}
	if in.Rect.Empty() {
		return scene
	}

	for _, reg := range in.Regions {
		cx, cy := in.Rect.Denormalize(reg.Center)
		rad := r.opts.RadiusPolicy.Scale(reg.Radius, in.Rect)
		scene.Regions = append(scene.Regions, RegionShape{
			CX:        cx,
			CY:        cy,
			Radius:    rad,
			Intensity: reg.Intensity,
			Box: image.Rect(
				int(math.Floor(cx-rad)), int(math.Floor(cy-rad)),
				int(math.Ceil(cx+rad)), int(math.Ceil(cy+rad)),
			),
			Label:   regionLabel(reg),
			Hovered: in.Hovered != nil && *in.Hovered == reg,
		})
	}

	if in.ShowConsensus {
		for _, c := range in.Consensus {
			cx, cy := in.Rect.Denormalize(c.Center)
			scene.Halos = append(scene.Halos, HaloShape{
				CX:     cx,
				CY:     cy,
				Radius: r.opts.RadiusPolicy.Scale(c.Radius, in.Rect),
			})
		}
	}

	// Numbers follow slice order, so removing a marker renumbers the rest.
	for i, a := range in.Annotations {
		cx, cy := in.Rect.Denormalize(a.Point)
		scene.Markers = append(scene.Markers, MarkerShape{
			AnnotationID: a.ID,
			Number:       i + 1,
			CX:           cx,
			CY:           cy,
			Radius:       float64(r.opts.MarkerRadius),
			Color:        a.Color,
			Badge:        a.HasComment(),
		})
	}

	return scene
}

func regionLabel(reg annotation.Region) string {
	if reg.Label == "" {
		return ""
	}
	return fmt.Sprintf("%s %d%%", reg.Label, int(math.Round(reg.Intensity*100)))
}
