// Package viewer holds the state of one consensus view: the mounted image,
// clinician annotations, AI regions and the overlay derived from them.
//
// Every exported method is an event. Events are serialized by a mutex and
// run to completion; network and image IO happen outside the lock, and
// their results are applied only if the generation they captured is still
// current. A superseded result is reported as STALE_RESULT and dropped.
package viewer

import (
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironsheep/consensus-viewer-mcp/internal/annotation"
	vierrors "github.com/ironsheep/consensus-viewer-mcp/internal/errors"
	"github.com/ironsheep/consensus-viewer-mcp/internal/imaging"
	"github.com/ironsheep/consensus-viewer-mcp/internal/render"
)

// Mode selects what a click does.
type Mode string

const (
	// ModeInspect clicks pick AI findings.
	ModeInspect Mode = "inspect"
	// ModeAnnotate clicks start a new clinician annotation.
	ModeAnnotate Mode = "annotate"
)

// Options wires a Viewer to its collaborators.
type Options struct {
	Surface  *imaging.Surface
	Renderer *render.Renderer
	Analyzer Analyzer
	Logger   zerolog.Logger

	// SettleDelay is how long WaitFrame lets a freshly mounted surface
	// settle before its first frame.
	SettleDelay time.Duration
}

// Viewer is the parent view. It is safe for concurrent use.
type Viewer struct {
	surface  *imaging.Surface
	renderer *render.Renderer
	analyzer Analyzer
	logger   zerolog.Logger
	settle   time.Duration

	mu            sync.Mutex
	mode          Mode
	annotations   annotation.Annotations
	regions       []annotation.Region
	consensus     []annotation.ConsensusRegion
	pending       *annotation.Point
	showConsensus bool
	hovered       *annotation.Region
	analysis      *Analysis
	analyzing     bool
	lastError     *vierrors.ViewerError

	imageGen    uint64
	analysisGen uint64
	revision    uint64
	readyAt     time.Time

	frame    *image.RGBA
	scene    render.Scene
	frameRev uint64
}

// New creates a viewer in inspect mode with the consensus layer shown.
func New(opts Options) *Viewer {
	if opts.Surface == nil {
		opts.Surface = imaging.NewSurface(imaging.Host{Width: 1024, Height: 1024}, nil, opts.Logger)
	}
	if opts.Renderer == nil {
		opts.Renderer = render.New(render.Options{})
	}

	v := &Viewer{
		surface:       opts.Surface,
		renderer:      opts.Renderer,
		analyzer:      opts.Analyzer,
		logger:        opts.Logger,
		settle:        opts.SettleDelay,
		mode:          ModeInspect,
		annotations:   annotation.Annotations{},
		regions:       []annotation.Region{},
		consensus:     []annotation.ConsensusRegion{},
		showConsensus: true,
	}
	v.surface.OnReady(v.surfaceReady)
	return v
}

// Surface returns the image surface the viewer drives.
func (v *Viewer) Surface() *imaging.Surface {
	return v.surface
}

// Renderer returns the overlay renderer.
func (v *Viewer) Renderer() *render.Renderer {
	return v.renderer
}

func (v *Viewer) surfaceReady(st imaging.Status) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.readyAt = time.Now()
	v.touchLocked()
	v.logger.Debug().Uint64("generation", st.Generation).Msg("surface ready")
}

// touchLocked marks the overlay inputs as changed.
func (v *Viewer) touchLocked() {
	v.revision++
}

// recomputeLocked rebuilds consensus from scratch after either input set
// changed.
func (v *Viewer) recomputeLocked() {
	v.consensus = annotation.Detect(v.annotations, v.regions)
	v.touchLocked()
}

// setHoverLocked is the only place hover state changes.
func (v *Viewer) setHoverLocked(r *annotation.Region) {
	if r == nil && v.hovered == nil {
		return
	}
	if r != nil && v.hovered != nil && *r == *v.hovered {
		return
	}
	if r == nil {
		v.hovered = nil
	} else {
		copied := *r
		v.hovered = &copied
	}
	v.touchLocked()
}

// resetImageStateLocked clears everything tied to the current image and
// invalidates in-flight image and analysis work.
func (v *Viewer) resetImageStateLocked() {
	v.imageGen++
	v.analysisGen++
	v.annotations = annotation.Annotations{}
	v.regions = []annotation.Region{}
	v.consensus = []annotation.ConsensusRegion{}
	v.pending = nil
	v.hovered = nil
	v.analysis = nil
	v.analyzing = false
	v.lastError = nil
	v.frame = nil
	v.touchLocked()
}

func (v *Viewer) requireImage() error {
	if v.surface.Status().State != imaging.StateReady {
		return vierrors.NewNoImageError()
	}
	return nil
}

// Finding is one AI region as listed next to the image.
type Finding struct {
	Index      int               `json:"index"`
	Region     annotation.Region `json:"region"`
	Hovered    bool              `json:"hovered"`
	Agreements int               `json:"agreements"`
}

// Findings lists the current AI regions in order, flagging the hovered one
// and counting the annotations that agree with each.
func (v *Viewer) Findings() []Finding {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]Finding, 0, len(v.regions))
	for i, r := range v.regions {
		agreements := 0
		for _, c := range v.consensus {
			if c.Region == r {
				agreements++
			}
		}
		out = append(out, Finding{
			Index:      i,
			Region:     r,
			Hovered:    v.hovered != nil && *v.hovered == r,
			Agreements: agreements,
		})
	}
	return out
}

// Consensus returns the current consensus matches.
func (v *Viewer) Consensus() []annotation.ConsensusRegion {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]annotation.ConsensusRegion{}, v.consensus...)
}

// Annotations returns the clinician annotations in insertion order.
func (v *Viewer) Annotations() annotation.Annotations {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append(annotation.Annotations{}, v.annotations...)
}

// Regions returns the current AI regions.
func (v *Viewer) Regions() []annotation.Region {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]annotation.Region{}, v.regions...)
}

// Hovered returns the hovered region, if any.
func (v *Viewer) Hovered() (annotation.Region, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.hovered == nil {
		return annotation.Region{}, false
	}
	return *v.hovered, true
}

// Snapshot is the full observable state of a viewer.
type Snapshot struct {
	Surface       imaging.Status               `json:"surface"`
	Mode          Mode                         `json:"mode"`
	Pending       *annotation.Point            `json:"pending,omitempty"`
	Annotations   []annotation.Annotation      `json:"annotations"`
	Regions       []annotation.Region          `json:"regions"`
	Consensus     []annotation.ConsensusRegion `json:"consensus"`
	ShowConsensus bool                         `json:"show_consensus"`
	Hovered       *annotation.Region           `json:"hovered,omitempty"`
	Analysis      *Analysis                    `json:"analysis,omitempty"`
	Analyzing     bool                         `json:"analyzing"`
	LastError     map[string]interface{}       `json:"last_error,omitempty"`
	Revision      uint64                       `json:"revision"`
}

// Snapshot returns a copy of the current state.
func (v *Viewer) Snapshot() Snapshot {
	status := v.surface.Status()

	v.mu.Lock()
	defer v.mu.Unlock()

	s := Snapshot{
		Surface:       status,
		Mode:          v.mode,
		Annotations:   append([]annotation.Annotation{}, v.annotations...),
		Regions:       append([]annotation.Region{}, v.regions...),
		Consensus:     append([]annotation.ConsensusRegion{}, v.consensus...),
		ShowConsensus: v.showConsensus,
		Analyzing:     v.analyzing,
		Revision:      v.revision,
	}
	if v.pending != nil {
		p := *v.pending
		s.Pending = &p
	}
	if v.hovered != nil {
		h := *v.hovered
		s.Hovered = &h
	}
	if v.analysis != nil {
		a := *v.analysis
		s.Analysis = &a
	}
	if v.lastError != nil {
		s.LastError = v.lastError.ToMap()
	}
	return s
}
