// Package pathology holds the static chest-radiography pathology catalog and
// turns a bare classifier score into displayable AI regions.
//
// The catalog is built once at package initialization and never mutated, so
// it is safe to read from any goroutine without locking. Accessors return
// copies.
package pathology

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ironsheep/consensus-viewer-mcp/internal/annotation"
)

// Canonical pathology keys.
const (
	Atelectasis       = "atelectasis"
	Pneumothorax      = "pneumothorax"
	Cardiomegaly      = "cardiomegaly"
	LungOpacity       = "lung_opacity"
	PleuralEffusion   = "pleural_effusion"
	Consolidation     = "consolidation"
	Infiltration      = "infiltration"
	PleuralThickening = "pleural_thickening"
	AorticEnlargement = "aortic_enlargement"
	Calcification     = "calcification"
	PulmonaryFibrosis = "pulmonary_fibrosis"
	ILD               = "ild"
	Normal            = "normal"
)

// FallbackKey supplies templates when a model identifier matches nothing.
const FallbackKey = LungOpacity

// DefaultKey is used when a filename carries no recognizable pathology.
const DefaultKey = Atelectasis

const modelVersion = "v1.20250828"

// Template is an anatomically plausible region for a pathology, in
// normalized image coordinates of a frontal chest radiograph (patient right
// on image left).
type Template struct {
	Center      annotation.Point `json:"center"`
	Radius      float64          `json:"radius"`
	Description string           `json:"description"`
}

// Entry is one pathology in the catalog.
type Entry struct {
	Key               string     `json:"key"`
	DisplayName       string     `json:"display_name"`
	ModelID           string     `json:"model_id"`
	Description       string     `json:"description"`
	SecondaryFindings []string   `json:"secondary_findings"`
	Templates         []Template `json:"templates"`
}

func (e Entry) clone() Entry {
	e.SecondaryFindings = append([]string(nil), e.SecondaryFindings...)
	e.Templates = append([]Template(nil), e.Templates...)
	return e
}

// DisplayName converts a key like "lung_opacity" to "Lung Opacity".
func DisplayName(key string) string {
	// Casers carry state and must not be shared between goroutines.
	return cases.Title(language.English).String(strings.ReplaceAll(key, "_", " "))
}

func tpl(x, y, r float64, description string) Template {
	return Template{Center: annotation.Point{X: x, Y: y}, Radius: r, Description: description}
}

// order is the catalog's canonical listing order.
var order = []string{
	Atelectasis, Pneumothorax, Cardiomegaly, LungOpacity, PleuralEffusion,
	Consolidation, Infiltration, PleuralThickening, AorticEnlargement,
	Calcification, PulmonaryFibrosis, ILD, Normal,
}

var catalog = buildCatalog()

// matchOrder lists keys longest first so a longer key is never shadowed by
// a shorter one it contains.
var matchOrder = buildMatchOrder()

func buildCatalog() map[string]Entry {
	raw := []Entry{
		{
			Key:         Atelectasis,
			Description: "Partial collapse or incomplete inflation of lung tissue.",
			SecondaryFindings: []string{
				"Plate-like linear opacity suggesting subsegmental collapse.",
				"Mild elevation of the ipsilateral hemidiaphragm.",
			},
			Templates: []Template{
				tpl(0.34, 0.64, 0.10, "Right lower zone volume loss"),
				tpl(0.66, 0.62, 0.08, "Left basal linear opacity"),
			},
		},
		{
			Key:         Pneumothorax,
			Description: "Air in the pleural space separating the lung from the chest wall.",
			SecondaryFindings: []string{
				"Visceral pleural line with absent peripheral lung markings.",
			},
			Templates: []Template{
				tpl(0.27, 0.24, 0.12, "Right apical pleural line"),
				tpl(0.20, 0.46, 0.08, "Lateral pleural edge"),
			},
		},
		{
			Key:         Cardiomegaly,
			Description: "Enlarged cardiac silhouette with cardiothoracic ratio above 0.5.",
			Templates: []Template{
				tpl(0.54, 0.62, 0.18, "Enlarged cardiac silhouette"),
			},
		},
		{
			Key:         LungOpacity,
			Description: "Area of increased attenuation within the lung parenchyma.",
			SecondaryFindings: []string{
				"Additional patchy opacity in the contralateral lung.",
			},
			Templates: []Template{
				tpl(0.35, 0.50, 0.12, "Right mid-zone opacity"),
				tpl(0.67, 0.52, 0.10, "Left mid-zone opacity"),
			},
		},
		{
			Key:         PleuralEffusion,
			Description: "Fluid collection in the pleural space blunting the costophrenic angle.",
			SecondaryFindings: []string{
				"Meniscus sign along the lateral chest wall.",
			},
			Templates: []Template{
				tpl(0.28, 0.80, 0.11, "Blunted right costophrenic angle"),
				tpl(0.73, 0.80, 0.10, "Blunted left costophrenic angle"),
			},
		},
		{
			Key:         Consolidation,
			Description: "Alveolar air replaced by fluid or cells, typical of pneumonia.",
			SecondaryFindings: []string{
				"Air bronchograms within the consolidated segment.",
			},
			Templates: []Template{
				tpl(0.33, 0.58, 0.11, "Right lower lobe consolidation"),
				tpl(0.36, 0.44, 0.07, "Air bronchogram"),
			},
		},
		{
			Key:         Infiltration,
			Description: "Ill-defined interstitial or alveolar infiltrate.",
			SecondaryFindings: []string{
				"Bilateral involvement with perihilar predominance.",
			},
			Templates: []Template{
				tpl(0.36, 0.48, 0.13, "Right perihilar infiltrate"),
				tpl(0.65, 0.48, 0.12, "Left perihilar infiltrate"),
			},
		},
		{
			Key:         PleuralThickening,
			Description: "Thickened pleura along the lateral chest wall.",
			SecondaryFindings: []string{
				"Contralateral pleural thickening.",
			},
			Templates: []Template{
				tpl(0.19, 0.42, 0.09, "Right lateral pleural thickening"),
				tpl(0.81, 0.42, 0.09, "Left lateral pleural thickening"),
			},
		},
		{
			Key:         AorticEnlargement,
			Description: "Widened aortic knob or mediastinal contour.",
			Templates: []Template{
				tpl(0.55, 0.30, 0.08, "Prominent aortic knob"),
			},
		},
		{
			Key:         Calcification,
			Description: "Calcified granuloma or vascular calcification.",
			SecondaryFindings: []string{
				"Additional small calcified focus.",
			},
			Templates: []Template{
				tpl(0.40, 0.40, 0.05, "Calcified nodule"),
				tpl(0.62, 0.36, 0.05, "Secondary calcified focus"),
			},
		},
		{
			Key:         PulmonaryFibrosis,
			Description: "Reticular opacities and volume loss from fibrotic change.",
			SecondaryFindings: []string{
				"Basal-predominant reticulation on the contralateral side.",
			},
			Templates: []Template{
				tpl(0.32, 0.70, 0.12, "Right basal reticulation"),
				tpl(0.69, 0.70, 0.12, "Left basal reticulation"),
			},
		},
		{
			Key:         ILD,
			Description: "Interstitial lung disease pattern with diffuse reticulonodular change.",
			SecondaryFindings: []string{
				"Symmetric involvement of the lower zones.",
			},
			Templates: []Template{
				tpl(0.33, 0.68, 0.13, "Right lower zone interstitial change"),
				tpl(0.68, 0.68, 0.13, "Left lower zone interstitial change"),
			},
		},
		{
			Key:         Normal,
			Description: "No acute cardiopulmonary abnormality.",
		},
	}

	entries := make(map[string]Entry, len(raw))
	for _, e := range raw {
		e.ModelID = "mc_chestradiography_" + e.Key + ":" + modelVersion
		if e.Key == ILD {
			e.DisplayName = "ILD"
		} else {
			e.DisplayName = DisplayName(e.Key)
		}
		entries[e.Key] = e
	}
	return entries
}

func buildMatchOrder() []string {
	keys := append([]string(nil), order...)
	sort.SliceStable(keys, func(i, j int) bool {
		return len(keys[i]) > len(keys[j])
	})
	return keys
}

// Lookup returns the catalog entry for key.
func Lookup(key string) (Entry, bool) {
	e, ok := catalog[normalizeKey(key)]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Entries returns every catalog entry in canonical order.
func Entries() []Entry {
	out := make([]Entry, 0, len(order))
	for _, key := range order {
		out = append(out, catalog[key].clone())
	}
	return out
}

// Keys returns all pathology keys in canonical order.
func Keys() []string {
	return append([]string(nil), order...)
}

// ModelIDs returns every model identifier in canonical order.
func ModelIDs() []string {
	ids := make([]string, 0, len(order))
	for _, key := range order {
		ids = append(ids, catalog[key].ModelID)
	}
	return ids
}

// ModelForPathology returns the model identifier for a pathology name such
// as "Pleural Effusion" or "pleural_effusion". Unknown names map to the
// DefaultKey model.
func ModelForPathology(name string) string {
	if e, ok := catalog[normalizeKey(name)]; ok {
		return e.ModelID
	}
	return catalog[DefaultKey].ModelID
}

func normalizeKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}
