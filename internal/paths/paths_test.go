package paths

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/peterzhang0216/mediagrab/internal/models"
)

func TestSuggested(t *testing.T) {
	r := &models.Resource{
		URL:  "https://media.example.com/gallery/photo.jpg?w=800",
		Type: models.TypeImage,
	}

	tests := []struct {
		name     string
		opts     Options
		expected string
	}{
		{
			name:     "no categorization",
			opts:     Options{},
			expected: "photo.jpg",
		},
		{
			name:     "by website",
			opts:     Options{ByWebsite: true},
			expected: "media.example.com/photo.jpg",
		},
		{
			name:     "by type",
			opts:     Options{ByType: true},
			expected: "images/photo.jpg",
		},
		{
			name:     "by website and type",
			opts:     Options{ByWebsite: true, ByType: true},
			expected: "media.example.com/images/photo.jpg",
		},
		{
			name:     "explicit site name",
			opts:     Options{ByWebsite: true, SiteName: "My Gallery"},
			expected: "my_gallery/photo.jpg",
		},
		{
			name:     "save as override",
			opts:     Options{ByType: true, SaveAs: "cover.jpg"},
			expected: "images/cover.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Suggested(r, tt.opts))
		})
	}
}

func TestSuggested_UnknownTypeFolder(t *testing.T) {
	r := &models.Resource{URL: "https://example.com/blob", Type: models.ResourceType("weird")}
	assert.Equal(t, "other/blob", Suggested(r, Options{ByType: true}))
}

func TestSuggested_TraversalSafe(t *testing.T) {
	r := &models.Resource{URL: "https://example.com/a/../../etc/passwd", Type: models.TypeOther}
	got := Suggested(r, Options{SaveAs: "../../escape.bin"})
	assert.NotContains(t, got, "..")
}

func TestFilenameFromURL(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		contentType string
		expected    string
	}{
		{
			name:     "simple",
			url:      "https://example.com/media/clip.mp4",
			expected: "clip.mp4",
		},
		{
			name:     "query stripped",
			url:      "https://example.com/img/photo.png?w=100&h=50",
			expected: "photo.png",
		},
		{
			name:        "no path uses mime type",
			url:         "https://example.com/",
			contentType: "image/jpeg",
			expected:    "download.jpg",
		},
		{
			name:        "extensionless name gains mime extension",
			url:         "https://example.com/stream/hls-master",
			contentType: "application/vnd.apple.mpegurl",
			expected:    "hls-master.m3u8",
		},
		{
			name:     "no path no mime",
			url:      "https://example.com",
			expected: "download",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FilenameFromURL(tt.url, tt.contentType))
		})
	}
}
