package imaging

import (
	"context"
	"image"
	"sync"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	vierrors "github.com/ironsheep/consensus-viewer-mcp/internal/errors"
)

// State is the lifecycle state of a Surface.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// Status is a point-in-time view of a Surface.
type Status struct {
	State      State      `json:"state"`
	Message    string     `json:"message,omitempty"`
	Locator    string     `json:"locator,omitempty"`
	Rect       Rect       `json:"rect"`
	Generation uint64     `json:"generation"`
	Image      *ImageInfo `json:"image,omitempty"`
}

// ReadyFunc is called after an image becomes ready, outside the surface
// lock, with the status that was just installed.
type ReadyFunc func(Status)

// renderContext is held for as long as an image is displayed. At most one
// is installed on a Surface at a time, and each is released exactly once.
type renderContext struct {
	released bool
}

// Surface hosts one displayed image at a time.
type Surface struct {
	host   Host
	loader *Loader
	logger zerolog.Logger

	mu         sync.Mutex
	state      State
	message    string
	locator    string
	rect       Rect
	generation uint64
	source     *Source
	display    *image.NRGBA
	rc         *renderContext
	onReady    []ReadyFunc

	live atomic.Int64
}

// NewSurface creates an idle surface of the given host size.
func NewSurface(host Host, loader *Loader, logger zerolog.Logger) *Surface {
	if loader == nil {
		loader = NewLoader(nil)
	}
	return &Surface{
		host:   host,
		loader: loader,
		logger: logger,
		state:  StateIdle,
	}
}

// Host returns the surface size.
func (s *Surface) Host() Host {
	return s.host
}

// OnReady registers fn to run every time a mount completes.
func (s *Surface) OnReady(fn ReadyFunc) {
	s.mu.Lock()
	s.onReady = append(s.onReady, fn)
	s.mu.Unlock()
}

// LiveContexts returns the number of rendering contexts currently held,
// installed or in flight.
func (s *Surface) LiveContexts() int {
	return int(s.live.Load())
}

// Mount displays the image behind locator, replacing whatever was shown.
//
// The previous image's context is released before loading starts. On
// failure the surface enters the error state and no context is retained.
// A mount superseded by a later Mount or Unmount returns a STALE_RESULT
// error and leaves the newer state untouched. Failed loads are not retried.
func (s *Surface) Mount(ctx context.Context, locator string) (Status, error) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.releaseLocked()
	s.state = StateLoading
	s.message = ""
	s.locator = locator
	s.rect = Rect{}
	s.source = nil
	s.display = nil
	s.mu.Unlock()

	logger := s.logger.With().Str("locator", locator).Uint64("generation", gen).Logger()
	logger.Debug().Msg("mounting image")

	rc, err := s.acquire()
	if err != nil {
		logger.Error().Err(err).Msg("failed to acquire rendering context")
		return s.fail(gen, err)
	}
	installed := false
	defer func() {
		if !installed {
			s.release(rc)
		}
	}()

	src, err := s.loader.Load(ctx, locator)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load image")
		return s.fail(gen, vierrors.NewImageLoadError(locator, err))
	}
	if err := ctx.Err(); err != nil {
		return s.fail(gen, vierrors.NewImageLoadError(locator, err))
	}

	fitted := imaging.Fit(src.Image, s.host.Width, s.host.Height, imaging.Lanczos)
	fb := fitted.Bounds()
	rect := Rect{
		Left:   (s.host.Width - fb.Dx()) / 2,
		Top:    (s.host.Height - fb.Dy()) / 2,
		Width:  fb.Dx(),
		Height: fb.Dy(),
	}

	s.mu.Lock()
	if gen != s.generation {
		current := s.generation
		s.mu.Unlock()
		logger.Debug().Uint64("current", current).Msg("discarding superseded image load")
		return Status{}, vierrors.NewStaleResultError("image load", gen, current)
	}
	s.rc = rc
	installed = true
	s.state = StateReady
	s.rect = rect
	s.source = src
	s.display = fitted
	status := s.statusLocked()
	callbacks := append([]ReadyFunc(nil), s.onReady...)
	s.mu.Unlock()

	logger.Info().
		Int("width", rect.Width).
		Int("height", rect.Height).
		Str("format", src.Format).
		Msg("image ready")

	for _, fn := range callbacks {
		fn(status)
	}
	return status, nil
}

// Unmount clears the surface and releases its context. Any in-flight Mount
// becomes stale.
func (s *Surface) Unmount() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.releaseLocked()
	s.state = StateIdle
	s.message = ""
	s.locator = ""
	s.rect = Rect{}
	s.source = nil
	s.display = nil
}

// Status returns the current surface status.
func (s *Surface) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// Rect returns the displayed image rectangle, empty unless ready.
func (s *Surface) Rect() Rect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rect
}

// Displayed returns the image as fitted to the host, its source and the
// generation that mounted it. The image and source are nil unless the
// surface is ready.
func (s *Surface) Displayed() (image.Image, *Source, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.display == nil {
		return nil, nil, s.generation
	}
	return s.display, s.source, s.generation
}

// Generation returns the current mount generation.
func (s *Surface) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Surface) statusLocked() Status {
	st := Status{
		State:      s.state,
		Message:    s.message,
		Locator:    s.locator,
		Rect:       s.rect,
		Generation: s.generation,
	}
	if s.source != nil {
		info := s.source.Info()
		st.Image = &info
	}
	return st
}

// fail records err as the surface error when gen is still current.
func (s *Surface) fail(gen uint64, err error) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return Status{}, vierrors.NewStaleResultError("image load", gen, s.generation)
	}
	s.state = StateError
	s.message = err.Error()
	var ve *vierrors.ViewerError
	if vierrors.As(err, &ve) {
		s.message = ve.Message
	}
	return s.statusLocked(), err
}

func (s *Surface) acquire() (*renderContext, error) {
	if err := s.host.Validate(); err != nil {
		return nil, err
	}
	s.live.Add(1)
	return &renderContext{}, nil
}

func (s *Surface) release(rc *renderContext) {
	if rc == nil || rc.released {
		return
	}
	rc.released = true
	s.live.Add(-1)
}

func (s *Surface) releaseLocked() {
	s.release(s.rc)
	s.rc = nil
}
