package render

import (
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var labelFace = basicfont.Face7x13

// blendPixel composites c at alpha a over the pixel at (x, y). Pixels
// outside the canvas are ignored.
func blendPixel(img *image.RGBA, x, y int, c colorful.Color, a float64) {
	if a <= 0 || !(image.Point{X: x, Y: y}).In(img.Bounds()) {
		return
	}
	if a > 1 {
		a = 1
	}
	r, g, b := c.Clamped().RGB255()
	i := img.PixOffset(x, y)
	inv := 1 - a
	img.Pix[i+0] = uint8(float64(r)*a + float64(img.Pix[i+0])*inv + 0.5)
	img.Pix[i+1] = uint8(float64(g)*a + float64(img.Pix[i+1])*inv + 0.5)
	img.Pix[i+2] = uint8(float64(b)*a + float64(img.Pix[i+2])*inv + 0.5)
	img.Pix[i+3] = uint8(255*a + float64(img.Pix[i+3])*inv + 0.5)
}

// fillRadial fills a disc whose color and alpha depend on the distance
// from the center as a fraction of the radius.
func fillRadial(img *image.RGBA, cx, cy, r float64, shade func(t float64) (colorful.Color, float64)) {
	if r <= 0 {
		return
	}
	x0, x1 := int(math.Floor(cx-r)), int(math.Ceil(cx+r))
	y0, y1 := int(math.Floor(cy-r)), int(math.Ceil(cy+r))

	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			d := math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy)
			if d >= r {
				continue
			}
			c, a := shade(d / r)
			blendPixel(img, x, y, c, a)
		}
	}
}

// fillCircle fills a solid disc.
func fillCircle(img *image.RGBA, cx, cy, r float64, c colorful.Color, a float64) {
	fillRadial(img, cx, cy, r, func(float64) (colorful.Color, float64) { return c, a })
}

// strokeCircle draws a ring of the given width centered on radius r.
func strokeCircle(img *image.RGBA, cx, cy, r, width float64, c colorful.Color, a float64) {
	if r <= 0 || width <= 0 {
		return
	}
	half := width / 2
	outer := r + half
	x0, x1 := int(math.Floor(cx-outer)), int(math.Ceil(cx+outer))
	y0, y1 := int(math.Floor(cy-outer)), int(math.Ceil(cy+outer))

	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			d := math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy)
			if math.Abs(d-r) <= half {
				blendPixel(img, x, y, c, a)
			}
		}
	}
}

const (
	dashOn  = 6
	dashOff = 4
)

// dashedRect strokes the rectangle's outline with a dash pattern that
// restarts at each corner.
func dashedRect(img *image.RGBA, rect image.Rectangle, width int, c colorful.Color, a float64) {
	if rect.Empty() || width <= 0 {
		return
	}
	for w := 0; w < width; w++ {
		top, bottom := rect.Min.Y+w, rect.Max.Y-1-w
		left, right := rect.Min.X+w, rect.Max.X-1-w
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if (x-rect.Min.X)%(dashOn+dashOff) < dashOn {
				blendPixel(img, x, top, c, a)
				blendPixel(img, x, bottom, c, a)
			}
		}
		for y := rect.Min.Y + width; y < rect.Max.Y-width; y++ {
			if (y-rect.Min.Y)%(dashOn+dashOff) < dashOn {
				blendPixel(img, left, y, c, a)
				blendPixel(img, right, y, c, a)
			}
		}
	}
}

// textWidth returns the advance of s in pixels.
func textWidth(s string) int {
	return font.MeasureString(labelFace, s).Ceil()
}

// drawText draws s with its baseline starting at (x, y).
func drawText(img *image.RGBA, x, y int, s string, c colorful.Color) {
	r, g, b := c.Clamped().RGB255()
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{R: r, G: g, B: b, A: 255}),
		Face: labelFace,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// drawCenteredText centers s on (cx, cy).
func drawCenteredText(img *image.RGBA, cx, cy float64, s string, c colorful.Color) {
	m := labelFace.Metrics()
	glyphH := (m.Ascent - m.Descent).Ceil()
	x := int(math.Round(cx)) - textWidth(s)/2
	y := int(math.Round(cy)) + glyphH/2
	drawText(img, x, y, s, c)
}
