package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_Deterministic(t *testing.T) {
	url := "https://cdn.example.com/images/2024/photo-1234.jpg?w=800"
	assert.Equal(t, Fingerprint(url), Fingerprint(url))
	assert.Equal(t, Key(url), Key(url))
}

func TestFingerprint_NormalizesSizeVariants(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
	}{
		{
			name: "numeric size directories",
			a:    "https://cdn.example.com/640x480/photo.jpg",
			b:    "https://cdn.example.com/1920x1080/photo.jpg",
		},
		{
			name: "quality suffix",
			a:    "https://cdn.example.com/images/photo-small.jpg",
			b:    "https://cdn.example.com/images/photo.jpg",
		},
		{
			name: "thumb suffix",
			a:    "https://cdn.example.com/images/photo_thumb.jpg",
			b:    "https://cdn.example.com/images/photo.jpg",
		},
		{
			name: "long hex hash",
			a:    "https://cdn.example.com/a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6/img.png",
			b:    "https://cdn.example.com/ffeeddccbbaa99887766554433221100/img.png",
		},
		{
			name: "numeric file ids",
			a:    "https://cdn.example.com/img/photo-001.jpg",
			b:    "https://cdn.example.com/img/photo-872.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, Fingerprint(tt.a), Fingerprint(tt.b))
		})
	}
}

func TestFingerprint_MalformedURL(t *testing.T) {
	raw := "http://bad host/with spaces"
	assert.Equal(t, raw, Fingerprint(raw))

	// Relative URLs have no hostname and fail closed too.
	assert.Equal(t, "/just/a/path.jpg", Fingerprint("/just/a/path.jpg"))
}

func TestSimilarity_Identity(t *testing.T) {
	url := "https://example.com/media/video.mp4"
	assert.Equal(t, 1.0, Similarity(url, url))
}

func TestSimilarity_CrossOrigin(t *testing.T) {
	// Different hostnames score exactly 0.1 regardless of path overlap.
	assert.Equal(t, 0.1, Similarity(
		"https://a.example.com/images/photo.jpg",
		"https://b.example.com/images/photo.jpg",
	))
}

func TestSimilarity_Malformed(t *testing.T) {
	assert.Equal(t, 0.0, Similarity("http://bad host/x", "https://example.com/x"))
	assert.Equal(t, 0.0, Similarity("/relative/path", "https://example.com/x"))
}

func TestSimilarity_WeightedCombination(t *testing.T) {
	// Path jaccard 1/3, query jaccard 1 (both empty): 0.7/3 + 0.3.
	got := Similarity(
		"https://example.com/a/b",
		"https://example.com/a/c",
	)
	assert.InDelta(t, 0.7*(1.0/3.0)+0.3, got, 1e-9)

	// Identical path, query key overlap 1/2: 0.7 + 0.3*0.5.
	got = Similarity(
		"https://example.com/img/photo.jpg?w=100&h=50",
		"https://example.com/img/photo.jpg?w=200",
	)
	assert.InDelta(t, 0.85, got, 1e-9)
}

func TestSimilarity_EmptyPaths(t *testing.T) {
	// Both empty segment sets are defined as similarity 1.
	assert.Equal(t, 1.0, Similarity("https://example.com", "https://example.com/"))
}
