package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peterzhang0216/mediagrab/internal/models"
)

func TestAddResource_ExactDuplicate(t *testing.T) {
	s := New()

	_, isNew := s.AddResource("tab1", models.Candidate{URL: "https://a.com/img.png", Type: models.TypeImage})
	assert.True(t, isNew)

	_, isNew = s.AddResource("tab1", models.Candidate{URL: "https://a.com/img.png", Type: models.TypeImage})
	assert.False(t, isNew)

	assert.Equal(t, 1, s.Count("tab1"))
}

func TestAddResource_URLUniqueness(t *testing.T) {
	s := New()

	// Interleave repeated adds of a handful of URLs; no URL may ever end
	// up with two records.
	for i := 0; i < 50; i++ {
		url := fmt.Sprintf("https://a.com/img-%d.png", i%5)
		s.AddResource("tab1", models.Candidate{URL: url, Type: models.TypeImage, Source: models.SourceDOM})
	}

	resources := s.Resources("tab1")
	assert.Len(t, resources, 5)

	seen := make(map[string]bool)
	for _, r := range resources {
		assert.False(t, seen[r.URL], "duplicate record for %s", r.URL)
		seen[r.URL] = true
	}
}

func TestAddResource_MalformedCandidate(t *testing.T) {
	s := New()
	r, isNew := s.AddResource("tab1", models.Candidate{Type: models.TypeImage})
	assert.Nil(t, r)
	assert.False(t, isNew)
	assert.Equal(t, 0, s.Count("tab1"))
}

func TestMerge_QualityUpgrade(t *testing.T) {
	s := New()
	url := "https://a.com/photo.jpg"

	s.AddResource("tab1", models.Candidate{URL: url, Type: models.TypeImage, Width: 100, Height: 100})
	s.AddResource("tab1", models.Candidate{URL: url, Type: models.TypeImage, Width: 1920, Height: 1080})

	r := s.Get("tab1", url)
	require.NotNil(t, r)
	assert.Equal(t, 1920, r.Width)
	assert.Equal(t, 1080, r.Height)
}

func TestMerge_NeverShrinksDimensions(t *testing.T) {
	s := New()
	url := "https://a.com/photo.jpg"

	s.AddResource("tab1", models.Candidate{URL: url, Type: models.TypeImage, Width: 1920, Height: 1080})
	s.AddResource("tab1", models.Candidate{URL: url, Type: models.TypeImage, Width: 640, Height: 480})

	r := s.Get("tab1", url)
	require.NotNil(t, r)
	assert.Equal(t, 1920, r.Width)
	assert.Equal(t, 1080, r.Height)
}

func TestMerge_ScoreRecomputedOnNewData(t *testing.T) {
	s := New()
	url := "https://a.com/photo.jpg"

	first, _ := s.AddResource("tab1", models.Candidate{URL: url, Type: models.TypeImage})
	before := first.Score

	s.AddResource("tab1", models.Candidate{URL: url, Type: models.TypeImage, Width: 1920, Height: 1080, Size: 600 * 1024})

	r := s.Get("tab1", url)
	assert.Greater(t, r.Score, before)
}

func TestMerge_UnknownQualityNeverOverwrites(t *testing.T) {
	s := New()
	url := "https://a.com/photo.jpg"

	s.AddResource("tab1", models.Candidate{URL: url, Type: models.TypeImage, Quality: models.QualityHigh})
	s.AddResource("tab1", models.Candidate{URL: url, Type: models.TypeImage, Quality: models.QualityUnknown})

	assert.Equal(t, models.QualityHigh, s.Get("tab1", url).Quality)

	s.AddResource("tab1", models.Candidate{URL: url, Type: models.TypeImage, Quality: models.QualityLow})
	assert.Equal(t, models.QualityLow, s.Get("tab1", url).Quality)
}

func TestMerge_BackfillSizeAndContentType(t *testing.T) {
	s := New()
	url := "https://a.com/clip.mp4"

	s.AddResource("tab1", models.Candidate{URL: url, Type: models.TypeVideo})
	s.AddResource("tab1", models.Candidate{URL: url, Type: models.TypeVideo, Size: 2048, ContentType: "video/mp4"})
	// Later sightings must not overwrite what is already known.
	s.AddResource("tab1", models.Candidate{URL: url, Type: models.TypeVideo, Size: 4096, ContentType: "video/webm"})

	r := s.Get("tab1", url)
	assert.Equal(t, int64(2048), r.Size)
	assert.Equal(t, "video/mp4", r.ContentType)
}

func TestMerge_UnionsSources(t *testing.T) {
	s := New()
	url := "https://a.com/bg.png"

	s.AddResource("tab1", models.Candidate{URL: url, Type: models.TypeImage, Source: models.SourceDOM})
	s.AddResource("tab1", models.Candidate{URL: url, Type: models.TypeImage, Source: models.SourceCSS})
	s.AddResource("tab1", models.Candidate{URL: url, Type: models.TypeImage, Source: models.SourceDOM})

	r := s.Get("tab1", url)
	assert.ElementsMatch(t, []string{models.SourceDOM, models.SourceCSS}, r.Sources)
}

func TestMerge_ConcreteSightingConfirmsPrediction(t *testing.T) {
	s := New()
	url := "https://a.com/photo-large.jpg"

	s.AddResource("tab1", models.Candidate{URL: url, Type: models.TypeImage, Source: models.SourcePredicted, IsPredicted: true, Confidence: 0.6})
	s.AddResource("tab1", models.Candidate{URL: url, Type: models.TypeImage, Source: models.SourceDOM})

	r := s.Get("tab1", url)
	assert.False(t, r.IsPredicted)
	assert.Zero(t, r.Confidence)
}

func TestContexts_AreIsolated(t *testing.T) {
	s := New()
	url := "https://a.com/img.png"

	_, isNew := s.AddResource("tab1", models.Candidate{URL: url, Type: models.TypeImage})
	assert.True(t, isNew)
	_, isNew = s.AddResource("tab2", models.Candidate{URL: url, Type: models.TypeImage})
	assert.True(t, isNew)

	s.Clear("tab1")
	assert.Equal(t, 0, s.Count("tab1"))
	assert.Equal(t, 1, s.Count("tab2"))
}

func TestFindSimilar_SharedSignature(t *testing.T) {
	s := New()

	s.AddResource("tab1", models.Candidate{URL: "https://cdn.a.com/640x480/photo.jpg", Type: models.TypeImage})
	s.AddResource("tab1", models.Candidate{URL: "https://cdn.a.com/1920x1080/photo.jpg", Type: models.TypeImage})
	s.AddResource("tab1", models.Candidate{URL: "https://cdn.a.com/other/banner.png", Type: models.TypeImage})

	similar := s.FindSimilar("tab1", "https://cdn.a.com/640x480/photo.jpg")
	require.Len(t, similar, 1)
	assert.Equal(t, "https://cdn.a.com/1920x1080/photo.jpg", similar[0].URL)
}

func TestFindDuplicate(t *testing.T) {
	s := New()

	s.AddResource("tab1", models.Candidate{URL: "https://cdn.a.com/images/photo.jpg?w=100", Type: models.TypeImage})

	dup := s.FindDuplicate("tab1", models.Candidate{URL: "https://cdn.a.com/images/photo.jpg?w=200"}, PredictedDuplicateThreshold)
	require.NotNil(t, dup)
	assert.Equal(t, "https://cdn.a.com/images/photo.jpg?w=100", dup.URL)

	// Cross-origin candidates never match: similarity is pinned at 0.1.
	dup = s.FindDuplicate("tab1", models.Candidate{URL: "https://cdn.b.com/images/photo.jpg?w=200"}, PredictedDuplicateThreshold)
	assert.Nil(t, dup)

	// Empty URL is a defensive no-op.
	assert.Nil(t, s.FindDuplicate("tab1", models.Candidate{}, DuplicateThreshold))
}

func TestResources_InsertionOrder(t *testing.T) {
	s := New()
	urls := []string{
		"https://a.com/1.png",
		"https://a.com/2.png",
		"https://a.com/3.png",
	}
	for _, u := range urls {
		s.AddResource("tab1", models.Candidate{URL: u, Type: models.TypeImage})
	}

	resources := s.Resources("tab1")
	require.Len(t, resources, 3)
	for i, r := range resources {
		assert.Equal(t, urls[i], r.URL)
	}
}
