package viewer

import (
	"context"
	"errors"
	"time"

	"github.com/ironsheep/consensus-viewer-mcp/internal/annotation"
	vierrors "github.com/ironsheep/consensus-viewer-mcp/internal/errors"
	"github.com/ironsheep/consensus-viewer-mcp/internal/inference"
	"github.com/ironsheep/consensus-viewer-mcp/internal/pathology"
)

var errNoAnalyzer = errors.New("no inference service configured")

// Analyzer runs inference on raw image bytes.
type Analyzer interface {
	Analyze(ctx context.Context, req inference.Request) (*inference.Response, error)
}

// AnalyzeOptions selects the model for one analysis.
type AnalyzeOptions struct {
	// ModelID names the model directly and wins over Pathology.
	ModelID string
	// Pathology selects the model for a pathology key or display name.
	Pathology string
	// FromFilename guesses the pathology from the image file name when no
	// model or pathology is given.
	FromFilename bool
	Parallel     bool
}

// Analysis summarizes the last applied analysis.
type Analysis struct {
	Generation   uint64                     `json:"generation"`
	ModelID      string                     `json:"model_id"`
	PathologyKey string                     `json:"pathology_key"`
	DisplayName  string                     `json:"display_name"`
	Score        float64                    `json:"score"`
	StudyID      string                     `json:"study_id,omitempty"`
	ImageID      string                     `json:"image_id,omitempty"`
	Filename     string                     `json:"filename,omitempty"`
	TopScores    []inference.PathologyScore `json:"top_scores,omitempty"`
	Regions      int                        `json:"regions"`
	Consensus    int                        `json:"consensus"`
	CompletedAt  time.Time                  `json:"completed_at"`
}

// Analyze sends the displayed image to the inference service and replaces
// the AI regions with ones synthesized from the returned score.
//
// A result arriving after the image changed or another analysis started is
// discarded with STALE_RESULT. Failures leave the previous regions intact.
func (v *Viewer) Analyze(ctx context.Context, opts AnalyzeOptions) (*Analysis, error) {
	if v.analyzer == nil {
		return nil, vierrors.NewAnalysisRequestError("", errNoAnalyzer)
	}
	_, src, surfaceGen := v.surface.Displayed()
	if src == nil {
		return nil, vierrors.NewNoImageError()
	}

	modelID := opts.ModelID
	if modelID == "" && opts.Pathology != "" {
		modelID = pathology.ModelForPathology(opts.Pathology)
	}
	if modelID == "" && opts.FromFilename {
		modelID = pathology.ModelForPathology(pathology.KeyFromFilename(src.Filename))
	}

	v.mu.Lock()
	v.analysisGen++
	gen := v.analysisGen
	v.analyzing = true
	v.mu.Unlock()

	logger := v.logger.With().Uint64("generation", gen).Str("model_id", modelID).Logger()
	logger.Info().Str("filename", src.Filename).Msg("starting analysis")

	resp, err := v.analyzer.Analyze(ctx, inference.Request{
		Filename: src.Filename,
		Data:     src.Data,
		ModelID:  modelID,
		Parallel: opts.Parallel,
	})

	v.mu.Lock()
	defer v.mu.Unlock()

	if gen != v.analysisGen {
		logger.Debug().Uint64("current", v.analysisGen).Msg("discarding superseded analysis")
		return nil, vierrors.NewStaleResultError("analysis", gen, v.analysisGen)
	}
	// The image may have been swapped between reading it and starting.
	if current := v.surface.Generation(); current != surfaceGen {
		v.analyzing = false
		logger.Debug().Uint64("surface_generation", current).Msg("discarding analysis of replaced image")
		return nil, vierrors.NewStaleResultError("analysis", surfaceGen, current)
	}
	v.analyzing = false

	if err != nil {
		if ve := asViewerError(err); ve != nil {
			v.lastError = ve
		}
		logger.Warn().Err(err).Msg("analysis failed")
		return nil, err
	}

	resolved := resp.ModelIdentifier()
	if resolved == "" {
		resolved = modelID
	}
	key, ok := pathology.KeyFromModelID(resolved)
	if !ok {
		key = pathology.FallbackKey
	}
	entry, _ := pathology.Lookup(key)

	regions := pathology.Synthesize(resp.Score(), resolved)

	v.regions = regions
	v.setHoverLocked(nil)
	v.lastError = nil
	v.recomputeLocked()

	v.analysis = &Analysis{
		Generation:   gen,
		ModelID:      resolved,
		PathologyKey: key,
		DisplayName:  entry.DisplayName,
		Score:        resp.Score(),
		StudyID:      resp.StudyID,
		ImageID:      resp.ImageID,
		Filename:     resp.Filename,
		TopScores:    resp.TopScores(),
		Regions:      len(regions),
		Consensus:    len(v.consensus),
		CompletedAt:  time.Now(),
	}

	logger.Info().
		Str("pathology", key).
		Float64("score", resp.Score()).
		Int("regions", len(regions)).
		Int("consensus", len(v.consensus)).
		Msg("analysis applied")

	a := *v.analysis
	return &a, nil
}

// SetRegions replaces the AI regions wholesale, as an analysis would.
// It is used to apply findings computed elsewhere.
func (v *Viewer) SetRegions(regions []annotation.Region) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.analysisGen++
	v.analyzing = false
	v.regions = append([]annotation.Region{}, regions...)
	v.setHoverLocked(nil)
	v.recomputeLocked()
}
