package render

import (
	"fmt"

	"github.com/lucasb-eyer/go-colorful"
)

// Palette holds the overlay colors. Alphas are in [0,1].
type Palette struct {
	RegionCore      colorful.Color
	RegionEdge      colorful.Color
	RegionCoreAlpha float64

	ConsensusFill   colorful.Color
	ConsensusAlpha  float64
	ConsensusStroke colorful.Color

	MarkerOutline colorful.Color
	MarkerText    colorful.Color
	Badge         colorful.Color
	LabelText     colorful.Color
}

// DefaultPalette is a warm red-to-orange heatmap with green halos.
func DefaultPalette() Palette {
	return Palette{
		RegionCore:      mustHex("#EF4444"),
		RegionEdge:      mustHex("#F97316"),
		RegionCoreAlpha: 0.6,

		ConsensusFill:   mustHex("#10B981"),
		ConsensusAlpha:  0.35,
		ConsensusStroke: mustHex("#059669"),

		MarkerOutline: mustHex("#FFFFFF"),
		MarkerText:    mustHex("#FFFFFF"),
		Badge:         mustHex("#F59E0B"),
		LabelText:     mustHex("#FFFFFF"),
	}
}

// regionShade returns the gradient color and alpha at fraction t of the
// radius from the center of a region with the given intensity. Alpha
// falls to zero at the edge.
func (p Palette) regionShade(t, intensity float64) (colorful.Color, float64) {
	t = clamp01(t)
	return p.RegionCore.BlendLab(p.RegionEdge, t).Clamped(), p.RegionCoreAlpha * clamp01(intensity) * (1 - t)
}

// consensusShade is regionShade for halos, at fixed opacity.
func (p Palette) consensusShade(t float64) (colorful.Color, float64) {
	t = clamp01(t)
	return p.ConsensusFill, p.ConsensusAlpha * (1 - t*t)
}

// markerColor parses an annotation color, falling back to fallback.
func markerColor(hex string, fallback colorful.Color) colorful.Color {
	c, err := colorful.Hex(hex)
	if err != nil {
		return fallback
	}
	return c
}

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(fmt.Sprintf("render: bad palette color %q: %v", s, err))
	}
	return c
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
