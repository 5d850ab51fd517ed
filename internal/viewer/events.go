package viewer

import (
	"context"
	"math"

	"github.com/ironsheep/consensus-viewer-mcp/internal/annotation"
	vierrors "github.com/ironsheep/consensus-viewer-mcp/internal/errors"
	"github.com/ironsheep/consensus-viewer-mcp/internal/imaging"
)

// LoadImage replaces the displayed image.
//
// Annotations, regions, hover and any pending annotation belong to the old
// image and are dropped before loading starts. In-flight analyses become
// stale.
func (v *Viewer) LoadImage(ctx context.Context, locator string) (imaging.Status, error) {
	v.mu.Lock()
	v.resetImageStateLocked()
	gen := v.imageGen
	v.mu.Unlock()

	status, err := v.surface.Mount(ctx, locator)

	v.mu.Lock()
	defer v.mu.Unlock()

	if gen != v.imageGen {
		v.logger.Debug().Str("locator", locator).Uint64("generation", gen).Msg("discarding superseded image load")
		return status, vierrors.NewStaleResultError("image load", gen, v.imageGen)
	}
	if err != nil {
		if ve := asViewerError(err); ve != nil && ve.Code != vierrors.ErrorStaleResult {
			v.lastError = ve
		}
		v.touchLocked()
		return status, err
	}
	return status, nil
}

// CloseImage unmounts the image and clears all image-bound state.
func (v *Viewer) CloseImage() {
	v.mu.Lock()
	v.resetImageStateLocked()
	v.mu.Unlock()

	v.surface.Unmount()
}

// SetMode switches between inspect and annotate. Leaving annotate mode
// discards a pending annotation.
func (v *Viewer) SetMode(m Mode) error {
	if m != ModeInspect && m != ModeAnnotate {
		return vierrors.NewInvalidInputError("unknown mode %q", m)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if m == v.mode {
		return nil
	}
	v.mode = m
	if m != ModeAnnotate {
		v.pending = nil
	}
	return nil
}

// Mode returns the current interaction mode.
func (v *Viewer) Mode() Mode {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mode
}

// ClickResult reports what a click did.
type ClickResult struct {
	Mode    Mode               `json:"mode"`
	Pending *annotation.Point  `json:"pending,omitempty"`
	Picked  *annotation.Region `json:"picked,omitempty"`
	Index   int                `json:"index"`
}

// Click handles a click at a normalized point.
//
// In annotate mode it opens a pending annotation at the clamped point,
// replacing any earlier pending one; the annotation is only created by
// ConfirmAnnotation. In inspect mode it picks the first region containing
// the point and hovers it.
func (v *Viewer) Click(p annotation.Point) (ClickResult, error) {
	if !finitePoint(p) {
		return ClickResult{}, vierrors.NewInvalidInputError("click coordinates must be finite")
	}
	if err := v.requireImage(); err != nil {
		return ClickResult{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	res := ClickResult{Mode: v.mode, Index: -1}
	if v.mode == ModeAnnotate {
		clamped := p.Clamp()
		v.pending = &clamped
		res.Pending = &clamped
		return res, nil
	}

	if r, i, ok := annotation.Pick(p, v.regions); ok {
		v.setHoverLocked(&r)
		res.Picked = &r
		res.Index = i
	} else {
		v.setHoverLocked(nil)
	}
	return res, nil
}

// ConfirmAnnotation turns the pending point into an annotation with the
// given comment and color. An empty color selects the clinician default.
func (v *Viewer) ConfirmAnnotation(comment, color string) (annotation.Annotation, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pending == nil {
		return annotation.Annotation{}, vierrors.NewInvalidInputError("no pending annotation to confirm")
	}

	a, err := annotation.NewAnnotation(*v.pending, comment, color)
	if err != nil {
		return annotation.Annotation{}, err
	}

	v.annotations = v.annotations.With(a)
	v.pending = nil
	v.recomputeLocked()

	v.logger.Debug().
		Str("annotation_id", a.ID).
		Int("annotations", len(v.annotations)).
		Int("consensus", len(v.consensus)).
		Msg("annotation added")

	return a, nil
}

// CancelAnnotation drops the pending annotation and reports whether there
// was one.
func (v *Viewer) CancelAnnotation() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	had := v.pending != nil
	v.pending = nil
	return had
}

// RemoveAnnotation deletes an annotation by ID. Markers after it are
// renumbered on the next frame.
func (v *Viewer) RemoveAnnotation(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	next, ok := v.annotations.Without(id)
	if !ok {
		return vierrors.NewInvalidInputError("no annotation with id %q", id)
	}
	v.annotations = next
	v.recomputeLocked()
	return nil
}

// EditAnnotation replaces the comment of an existing annotation, keeping
// its ID, position and color.
func (v *Viewer) EditAnnotation(id, comment string) (annotation.Annotation, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	i := v.annotations.IndexOf(id)
	if i < 0 {
		return annotation.Annotation{}, vierrors.NewInvalidInputError("no annotation with id %q", id)
	}
	updated := v.annotations[i]
	updated.Comment = comment

	next, _ := v.annotations.Replace(updated)
	v.annotations = next
	v.recomputeLocked()
	return updated, nil
}

// SetShowConsensus toggles the consensus layer.
func (v *Viewer) SetShowConsensus(show bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.showConsensus == show {
		return
	}
	v.showConsensus = show
	v.touchLocked()
}

// PointerMove hovers the first region under a normalized pointer position,
// or clears the hover when there is none.
func (v *Viewer) PointerMove(p annotation.Point) (annotation.Region, int, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !finitePoint(p) {
		v.setHoverLocked(nil)
		return annotation.Region{}, -1, false
	}
	r, i, ok := annotation.Pick(p, v.regions)
	if !ok {
		v.setHoverLocked(nil)
		return annotation.Region{}, -1, false
	}
	v.setHoverLocked(&r)
	return r, i, true
}

// HoverFinding hovers the region at index i of the findings list. A
// negative index clears the hover.
func (v *Viewer) HoverFinding(i int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if i < 0 {
		v.setHoverLocked(nil)
		return nil
	}
	if i >= len(v.regions) {
		return vierrors.NewInvalidInputError("finding index %d out of range (0-%d)", i, len(v.regions)-1)
	}
	r := v.regions[i]
	v.setHoverLocked(&r)
	return nil
}

// ClearHover removes any hover.
func (v *Viewer) ClearHover() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.setHoverLocked(nil)
}

func finitePoint(p annotation.Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

func asViewerError(err error) *vierrors.ViewerError {
	var ve *vierrors.ViewerError
	if vierrors.As(err, &ve) {
		return ve
	}
	return nil
}
