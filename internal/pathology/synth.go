package pathology

import (
	"github.com/ironsheep/consensus-viewer-mcp/internal/annotation"
)

const (
	// MinConfidence is the lowest score that produces any region. Scores
	// below it are treated as negative or inconclusive.
	MinConfidence = 0.3

	// HighConfidence must be strictly exceeded before a secondary region is
	// emitted.
	HighConfidence = 0.6

	// SecondaryIntensityFactor scales the primary score for the secondary
	// region.
	SecondaryIntensityFactor = 0.85

	// SecondaryLabel names the secondary region when the pathology lists
	// secondary findings.
	SecondaryLabel = "Secondary Finding"
)

// Synthesize builds AI regions from a classifier score and the model
// identifier that produced it, for services that return no geometry.
//
// Unknown identifiers fall back to the FallbackKey templates. The "normal"
// pathology has no templates and never yields regions.
func Synthesize(score float64, modelID string) []annotation.Region {
	key, ok := KeyFromModelID(modelID)
	if !ok {
		key = FallbackKey
	}
	return SynthesizeForKey(score, key)
}

// SynthesizeForKey is Synthesize with the pathology key already resolved.
// A key missing from the catalog uses the FallbackKey entry.
func SynthesizeForKey(score float64, key string) []annotation.Region {
	regions := make([]annotation.Region, 0, 2)
	if !(score >= MinConfidence) {
		return regions
	}

	entry, ok := catalog[normalizeKey(key)]
	if !ok {
		entry = catalog[FallbackKey]
	}
	if len(entry.Templates) == 0 {
		return regions
	}

	primary := entry.Templates[0]
	if r, err := annotation.NewRegion(primary.Center, primary.Radius, score, entry.DisplayName, explain(entry.Description, primary.Description)); err == nil {
		regions = append(regions, r)
	}

	if score > HighConfidence && len(entry.Templates) > 1 {
		secondary := entry.Templates[1]
		label := entry.DisplayName
		explanation := secondary.Description
		if len(entry.SecondaryFindings) > 0 {
			label = SecondaryLabel
			explanation = entry.SecondaryFindings[0]
		}
		if r, err := annotation.NewRegion(secondary.Center, secondary.Radius, SecondaryIntensityFactor*score, label, explanation); err == nil {
			regions = append(regions, r)
		}
	}

	return regions
}

func explain(description, location string) string {
	if location == "" {
		return description
	}
	return description + " " + location + "."
}
