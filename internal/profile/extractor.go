// Package profile reconstructs the terminal cognitive-profile artifact
// from a completed export document. Extraction is read-only pattern
// matching over the document text; a profile is built once and never
// mutated afterwards.
package profile

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/translators-dev/bridge-cli/internal/usda"
)

// GeneratorVersion identifies the profile schema this extractor
// understands. It is stamped onto every extracted profile.
const GeneratorVersion = "2.1.0"

// Trait is one scored dimension with its human-facing label and a
// generated behavior summary.
type Trait struct {
	Dimension string
	Label     string
	Score     float64
	Behavior  string
}

// Profile is the terminal artifact of a completed session.
type Profile struct {
	Traits           []Trait
	Insights         []string
	Checksum         string
	Anchor           string
	Dimensions       map[string]float64
	GeneratorVersion string
	SourcePath       string
}

var (
	checksumPattern = regexp.MustCompile(`string checksum = "([^"]*)"`)
	anchorPattern   = regexp.MustCompile(`string anchor = "([^"]*)"`)
	// The customData form of the anchor takes precedence over the plain
	// attribute when both are present.
	customAnchorPattern = regexp.MustCompile(`string translators_anchor = "([^"]*)"`)

	dimensionPattern = regexp.MustCompile(`float (\w+) = ([\d.]+)`)
	traitPattern     = regexp.MustCompile(`string (\w+) = "([^"]*)"`)
)

// questionDimensions maps the fixed question identifiers onto the
// dimension names the producer exports scores under. Unknown keys fall
// through with the key itself as the dimension and a neutral 0.5 score.
var questionDimensions = map[string]string{
	"load":        "cognitive_density",
	"pace":        "processing_pace",
	"uncertainty": "uncertainty_tolerance",
	"feedback":    "feedback_style",
	"recovery":    "home_altitude",
	"starting":    "guidance_frequency",
	"completion":  "default_paradigm",
	"essence":     "tangent_tolerance",
}

// Score bands for behavior summaries and insight generation.
const (
	strongBand   = 0.7
	measuredBand = 0.3
	neutralScore = 0.5
)

// Extractor parses export documents into Profiles.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor returns an extractor logging under the profile namespace.
func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logger.Named("profile")}
}

// Extract reads and parses the export document at path. An unreadable
// file is the only error; a readable document missing expected sections
// degrades to an empty (but valid) profile.
func (e *Extractor) Extract(path string) (Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to read profile export %s: %w", path, err)
	}
	doc := string(raw)

	e.logger.Info("Parsing cognitive profile", zap.String("path", path))

	p := Profile{
		Dimensions:       make(map[string]float64),
		GeneratorVersion: GeneratorVersion,
		SourcePath:       path,
	}

	if m := checksumPattern.FindStringSubmatch(doc); m != nil {
		p.Checksum = m[1]
	}
	if m := anchorPattern.FindStringSubmatch(doc); m != nil {
		p.Anchor = m[1]
	}
	if m := customAnchorPattern.FindStringSubmatch(doc); m != nil {
		p.Anchor = m[1]
	}

	if usda.HasBlock(doc, "Profile") {
		for _, m := range dimensionPattern.FindAllStringSubmatch(usda.FindBlock(doc, "Profile"), -1) {
			score, err := strconv.ParseFloat(m[2], 64)
			if err != nil {
				continue
			}
			p.Dimensions[m[1]] = score
		}
	}

	traitLabels := make(map[string]string)
	if usda.HasBlock(doc, "Traits") {
		for _, m := range traitPattern.FindAllStringSubmatch(usda.FindBlock(doc, "Traits"), -1) {
			traitLabels[m[1]] = m[2]
		}
	}

	// Deterministic trait order: sorted by question key.
	keys := make([]string, 0, len(traitLabels))
	for k := range traitLabels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		t := Trait{Label: traitLabels[key]}

		if dim, ok := questionDimensions[key]; ok {
			t.Dimension = dim
			if score, ok := p.Dimensions[dim]; ok {
				t.Score = score
			} else {
				t.Score = neutralScore
			}
		} else {
			t.Dimension = key
			t.Score = neutralScore
		}

		switch {
		case t.Score >= strongBand:
			t.Behavior = fmt.Sprintf("Strong %s tendency", t.Label)
		case t.Score <= measuredBand:
			t.Behavior = fmt.Sprintf("Measured %s approach", t.Label)
		default:
			t.Behavior = fmt.Sprintf("Balanced %s style", t.Label)
		}

		p.Traits = append(p.Traits, t)
	}

	for _, t := range p.Traits {
		readable := strings.ReplaceAll(t.Dimension, "_", " ")
		switch {
		case t.Score >= strongBand:
			p.Insights = append(p.Insights,
				fmt.Sprintf("High %s (%s) suggests strong preference in this dimension", readable, t.Label))
		case t.Score <= measuredBand:
			p.Insights = append(p.Insights,
				fmt.Sprintf("Low %s (%s) indicates a focused approach here", readable, t.Label))
		}
	}

	e.logger.Info("Parsed profile",
		zap.Int("traits", len(p.Traits)),
		zap.Int("insights", len(p.Insights)),
		zap.String("checksum", p.Checksum))

	return p, nil
}
