package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/peterzhang0216/mediagrab/internal/models"
)

func TestScore_NoMeasurableAttributes(t *testing.T) {
	result := Score(&models.Resource{URL: "https://example.com/x.jpg", Type: models.TypeImage})
	assert.Equal(t, 0, result.Score)
	assert.Empty(t, result.Details)
}

func TestScore_NilResource(t *testing.T) {
	assert.Equal(t, 0, Score(nil).Score)
}

func TestScore_ResolutionOnly(t *testing.T) {
	tests := []struct {
		name     string
		width    int
		height   int
		expected int
	}{
		{name: "full hd", width: 1920, height: 1080, expected: 100},
		{name: "hd", width: 1280, height: 720, expected: 83},
		{name: "sd", width: 640, height: 480, expected: 50},
		{name: "tiny", width: 100, height: 100, expected: 17},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &models.Resource{Type: models.TypeImage, Width: tt.width, Height: tt.height}
			// Only the resolution component applies, so the score is
			// round(100 * earned / 30).
			assert.Equal(t, tt.expected, Score(r).Score)
		})
	}
}

func TestScore_SizeThresholdsByType(t *testing.T) {
	tests := []struct {
		name     string
		typ      models.ResourceType
		size     int64
		earned   int
	}{
		{name: "large image", typ: models.TypeImage, size: 600 * 1024, earned: 20},
		{name: "medium image", typ: models.TypeImage, size: 200 * 1024, earned: 15},
		{name: "small image", typ: models.TypeImage, size: 40 * 1024, earned: 10},
		{name: "tiny image", typ: models.TypeImage, size: 10 * 1024, earned: 5},
		{name: "large video", typ: models.TypeVideo, size: 11 * 1024 * 1024, earned: 20},
		{name: "medium video", typ: models.TypeVideo, size: 6 * 1024 * 1024, earned: 15},
		{name: "small video", typ: models.TypeVideo, size: 2 * 1024 * 1024, earned: 10},
		{name: "tiny video", typ: models.TypeVideo, size: 100 * 1024, earned: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &models.Resource{Type: tt.typ, Size: tt.size}
			result := Score(r)
			assert.Equal(t, tt.earned, result.Details["size"])
		})
	}
}

func TestScore_SourceProvenance(t *testing.T) {
	tests := []struct {
		name   string
		source string
		earned int
	}{
		{name: "dom counts as original", source: models.SourceDOM, earned: 15},
		{name: "css", source: models.SourceCSS, earned: 10},
		{name: "shadow dom", source: models.SourceShadowDOM, earned: 10},
		{name: "attribute", source: models.SourceAttribute, earned: 8},
		{name: "predicted", source: models.SourcePredicted, earned: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &models.Resource{Type: models.TypeImage, Sources: []string{tt.source}}
			assert.Equal(t, tt.earned, Score(r).Details["source"])
		})
	}
}

func TestScore_BestSourceWins(t *testing.T) {
	r := &models.Resource{
		Type:    models.TypeImage,
		Sources: []string{models.SourcePredicted, models.SourceDOM},
	}
	assert.Equal(t, 15, Score(r).Details["source"])
}

func TestScore_DenominatorShrinksWithMissingData(t *testing.T) {
	// A high-res image with no size information should not be penalized
	// for the missing size component.
	r := &models.Resource{Type: models.TypeImage, Width: 1920, Height: 1080}
	assert.Equal(t, 100, Score(r).Score)

	// With a source tag included the denominator grows to 45.
	r.Sources = []string{models.SourceCSS}
	assert.Equal(t, 89, Score(r).Score) // round(100*40/45)
}

func TestScore_AlwaysInBounds(t *testing.T) {
	resources := []*models.Resource{
		nil,
		{},
		{Type: models.TypeImage, Width: -5, Height: 100},
		{Type: models.TypeVideo, Size: 1 << 40},
		{Type: models.TypeImage, Width: 100000, Height: 100000, Size: 1 << 40, Sources: []string{models.SourceDOM}},
		{Type: models.TypeOther, Sources: []string{"unrecognized"}},
	}
	for _, r := range resources {
		result := Score(r)
		assert.GreaterOrEqual(t, result.Score, 0)
		assert.LessOrEqual(t, result.Score, 100)
	}
}

func TestEstimateQuality(t *testing.T) {
	assert.Equal(t, models.QualityHigh, EstimateQuality(&models.Resource{Width: 1920, Height: 1080}))
	assert.Equal(t, models.QualityMedium, EstimateQuality(&models.Resource{Width: 800, Height: 600}))
	assert.Equal(t, models.QualityLow, EstimateQuality(&models.Resource{Width: 120, Height: 90}))
	assert.Equal(t, models.QualityUnknown, EstimateQuality(&models.Resource{}))
}
