package render

import (
	"image"
	"math"
	"strconv"

	"github.com/anthonynsimon/bild/blend"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/consensus-viewer-mcp/internal/imaging"
)

// DefaultMarkerRadius is the clinician marker radius in pixels.
const DefaultMarkerRadius = 12

// Options configures a Renderer.
type Options struct {
	RadiusPolicy imaging.RadiusPolicy
	MarkerRadius int
	Palette      *Palette
}

// Renderer draws overlays. It holds no per-frame state and is safe for
// concurrent use.
type Renderer struct {
	opts    Options
	palette Palette
}

// New creates a renderer, filling unset options with defaults.
func New(opts Options) *Renderer {
	if opts.RadiusPolicy == "" {
		opts.RadiusPolicy = imaging.DefaultRadiusPolicy
	}
	if opts.MarkerRadius <= 0 {
		opts.MarkerRadius = DefaultMarkerRadius
	}
	palette := DefaultPalette()
	if opts.Palette != nil {
		palette = *opts.Palette
	}
	return &Renderer{opts: opts, palette: palette}
}

// Options returns the effective options.
func (r *Renderer) Options() Options {
	return r.opts
}

// Render draws in onto a new transparent canvas the size of in.Rect.
func (r *Renderer) Render(in Input) *image.RGBA {
	return r.Draw(r.Plan(in))
}

// Draw rasterizes a planned scene.
func (r *Renderer) Draw(scene Scene) *image.RGBA {
	w, h := scene.Width, scene.Height
	if w < 0 || h < 0 {
		w, h = 0, 0
	}
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))

	for _, reg := range scene.Regions {
		r.drawRegion(canvas, reg)
	}
	for _, halo := range scene.Halos {
		r.drawHalo(canvas, halo)
	}
	for _, m := range scene.Markers {
		r.drawMarker(canvas, m)
	}

	return canvas
}

func (r *Renderer) drawRegion(canvas *image.RGBA, reg RegionShape) {
	p := r.palette
	fillRadial(canvas, reg.CX, reg.CY, reg.Radius, func(t float64) (colorful.Color, float64) {
		return p.regionShade(t, reg.Intensity)
	})

	width, alpha := 1, 0.3+0.5*clamp01(reg.Intensity)
	if reg.Hovered {
		width, alpha = 3, math.Min(1, alpha+0.3)
	}
	dashedRect(canvas, reg.Box, width, p.RegionCore, alpha)

	if reg.Label != "" {
		ascent := labelFace.Metrics().Ascent.Ceil()
		x := reg.Box.Min.X
		if x < 0 {
			x = 0
		}
		y := reg.Box.Min.Y - 3
		if y < ascent {
			y = ascent
		}
		drawText(canvas, x, y, reg.Label, p.LabelText)
	}
}

func (r *Renderer) drawHalo(canvas *image.RGBA, halo HaloShape) {
	p := r.palette
	fillRadial(canvas, halo.CX, halo.CY, halo.Radius, p.consensusShade)
	strokeCircle(canvas, halo.CX, halo.CY, halo.Radius, 2, p.ConsensusStroke, 0.9)
}

func (r *Renderer) drawMarker(canvas *image.RGBA, m MarkerShape) {
	p := r.palette
	fill := markerColor(m.Color, p.RegionCore)

	fillCircle(canvas, m.CX, m.CY, m.Radius, p.MarkerOutline, 1)
	fillCircle(canvas, m.CX, m.CY, m.Radius-2, fill, 1)
	drawCenteredText(canvas, m.CX, m.CY, strconv.Itoa(m.Number), p.MarkerText)

	if m.Badge {
		off := m.Radius * 0.75
		br := math.Max(3, m.Radius/3)
		fillCircle(canvas, m.CX+off, m.CY-off, br+1, p.MarkerOutline, 1)
		fillCircle(canvas, m.CX+off, m.CY-off, br, p.Badge, 1)
	}
}

// Composite lays overlay over base. Both are read from their top-left
// corners; the result has the size of their intersection.
func Composite(base, overlay image.Image) *image.RGBA {
	return blend.Normal(base, overlay)
}
