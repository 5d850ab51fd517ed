package viewer

import (
	"context"
	"image"
	"time"

	vierrors "github.com/ironsheep/consensus-viewer-mcp/internal/errors"
	"github.com/ironsheep/consensus-viewer-mcp/internal/imaging"
	"github.com/ironsheep/consensus-viewer-mcp/internal/render"
)

// Frame is one rendered overlay.
type Frame struct {
	Overlay  *image.RGBA
	Scene    render.Scene
	Revision uint64
}

// Frame returns the overlay for the current state, rendering it only when
// an input changed since the last call. The returned image must not be
// modified.
func (v *Viewer) Frame() (Frame, error) {
	if err := v.requireImage(); err != nil {
		return Frame{}, err
	}
	rect := v.surface.Rect()

	v.mu.Lock()
	if v.frame != nil && v.frameRev == v.revision && v.scene.Width == rect.Width && v.scene.Height == rect.Height {
		f := Frame{Overlay: v.frame, Scene: v.scene, Revision: v.frameRev}
		v.mu.Unlock()
		return f, nil
	}
	in := render.Input{
		Rect:          rect,
		Regions:       v.regions,
		Annotations:   v.annotations,
		Consensus:     v.consensus,
		ShowConsensus: v.showConsensus,
	}
	if v.hovered != nil {
		h := *v.hovered
		in.Hovered = &h
	}
	rev := v.revision
	v.mu.Unlock()

	// Slices are replaced, never mutated, so in stays valid unlocked.
	scene := v.renderer.Plan(in)
	overlay := v.renderer.Draw(scene)

	v.mu.Lock()
	defer v.mu.Unlock()
	if rev == v.revision {
		v.frame = overlay
		v.scene = scene
		v.frameRev = rev
	}
	return Frame{Overlay: overlay, Scene: scene, Revision: rev}, nil
}

// WaitFrame is Frame, but holds the first frame after an image becomes
// ready until the settle delay has passed.
func (v *Viewer) WaitFrame(ctx context.Context) (Frame, error) {
	v.mu.Lock()
	wait := v.settle - time.Since(v.readyAt)
	v.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-timer.C:
		}
	}
	return v.Frame()
}

// Composite renders the overlay over the displayed image.
func (v *Viewer) Composite() (*image.RGBA, Frame, error) {
	f, err := v.Frame()
	if err != nil {
		return nil, Frame{}, err
	}
	base, _, _ := v.surface.Displayed()
	if base == nil {
		return nil, Frame{}, vierrors.NewNoImageError()
	}
	return render.Composite(base, f.Overlay), f, nil
}

// CropFinding zooms to the finding at index i of the findings list.
func (v *Viewer) CropFinding(i int, scale float64) (*imaging.CropResult, error) {
	base, _, _ := v.surface.Displayed()
	if base == nil {
		return nil, vierrors.NewNoImageError()
	}
	rect := v.surface.Rect()

	v.mu.Lock()
	if i < 0 || i >= len(v.regions) {
		n := len(v.regions)
		v.mu.Unlock()
		return nil, vierrors.NewInvalidInputError("finding index %d out of range (%d findings)", i, n)
	}
	region := v.regions[i]
	v.mu.Unlock()

	return imaging.CropFinding(base, rect, region, v.renderer.Options().RadiusPolicy, scale)
}
