// Package scoring computes a deterministic 0-100 quality/relevance score
// for a resource from its resolution, size, and provenance. Components with
// unmeasured inputs are omitted from both the numerator and the denominator,
// so a resource missing metadata is not penalized relative to one where the
// metadata was simply never measured.
package scoring

import (
	"math"

	"github.com/peterzhang0216/mediagrab/internal/models"
)

// Component max weights.
const (
	maxResolutionWeight = 30
	maxSizeWeight       = 20
	maxSourceWeight     = 15
)

// Result holds the final normalized score and the per-component earned
// weights that produced it.
type Result struct {
	Score   int            `json:"score"`
	Details map[string]int `json:"details"`
}

// Score computes the weighted score for a resource. The final value is
// round(100 * earned / applicable max weights); a resource with no
// measurable attributes scores 0.
func Score(r *models.Resource) Result {
	result := Result{Details: make(map[string]int)}
	if r == nil {
		return result
	}

	earned := 0
	applicable := 0

	if w, ok := resolutionWeight(r); ok {
		result.Details["resolution"] = w
		earned += w
		applicable += maxResolutionWeight
	}
	if w, ok := sizeWeight(r); ok {
		result.Details["size"] = w
		earned += w
		applicable += maxSizeWeight
	}
	if w, ok := sourceWeight(r); ok {
		result.Details["source"] = w
		earned += w
		applicable += maxSourceWeight
	}

	if applicable == 0 {
		return result
	}
	result.Score = int(math.Round(100 * float64(earned) / float64(applicable)))
	return result
}

func resolutionWeight(r *models.Resource) (int, bool) {
	area := r.PixelArea()
	if area == 0 {
		return 0, false
	}
	switch {
	case area >= 1920*1080:
		return 30, true
	case area >= 1280*720:
		return 25, true
	case area >= 640*480:
		return 15, true
	default:
		return 5, true
	}
}

func sizeWeight(r *models.Resource) (int, bool) {
	if r.Size <= 0 {
		return 0, false
	}
	if r.Type == models.TypeVideo || r.Type == models.TypeAudio {
		switch {
		case r.Size > 10*1024*1024:
			return 20, true
		case r.Size > 5*1024*1024:
			return 15, true
		case r.Size > 1024*1024:
			return 10, true
		default:
			return 5, true
		}
	}
	switch {
	case r.Size > 500*1024:
		return 20, true
	case r.Size > 100*1024:
		return 15, true
	case r.Size > 30*1024:
		return 10, true
	default:
		return 5, true
	}
}

// sourceWeight scores provenance. A resource sighted at its original URL
// (dom, network, streaming) earns full weight; derived sightings earn less.
// When a resource carries several tags the best one wins.
func sourceWeight(r *models.Resource) (int, bool) {
	if len(r.Sources) == 0 {
		return 0, false
	}
	best := 0
	for _, tag := range r.Sources {
		w := 0
		switch tag {
		case models.SourceOriginal, models.SourceDOM, models.SourceNetwork, models.SourceStreaming:
			w = 15
		case models.SourceCSS, models.SourceShadowDOM:
			w = 10
		case models.SourceAttribute, "custom-attribute":
			w = 8
		case models.SourcePredicted:
			w = 5
		}
		if w > best {
			best = w
		}
	}
	if best == 0 {
		return 0, false
	}
	return best, true
}

// EstimateQuality assigns a coarse quality bucket from resolution when no
// detector has reported one.
func EstimateQuality(r *models.Resource) models.Quality {
	area := r.PixelArea()
	switch {
	case area >= 1920*1080:
		return models.QualityHigh
	case area >= 640*480:
		return models.QualityMedium
	case area > 0:
		return models.QualityLow
	default:
		return models.QualityUnknown
	}
}
