package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peterzhang0216/mediagrab/internal/models"
)

func TestFilterResources(t *testing.T) {
	in := []*models.Resource{
		{URL: "a.jpg", Type: models.TypeImage, Score: 40},
		{URL: "b.mp4", Type: models.TypeVideo, Score: 90},
		{URL: "c.jpg", Type: models.TypeImage, Score: 70},
		{URL: "d.mp3", Type: models.TypeAudio, Score: 10},
	}

	t.Run("ranked by score", func(t *testing.T) {
		got := filterResources(in, "", 0, 0)
		require.Len(t, got, 4)
		assert.Equal(t, "b.mp4", got[0].URL)
		assert.Equal(t, "c.jpg", got[1].URL)
	})

	t.Run("type filter", func(t *testing.T) {
		got := filterResources(in, "image", 0, 0)
		require.Len(t, got, 2)
		for _, r := range got {
			assert.Equal(t, models.TypeImage, r.Type)
		}
	})

	t.Run("min score", func(t *testing.T) {
		got := filterResources(in, "", 50, 0)
		require.Len(t, got, 2)
	})

	t.Run("limit", func(t *testing.T) {
		got := filterResources(in, "", 0, 1)
		require.Len(t, got, 1)
		assert.Equal(t, "b.mp4", got[0].URL)
	})
}

func TestResourceFromURL(t *testing.T) {
	r := resourceFromURL("https://media.example.com/clip.mp4")
	assert.Equal(t, models.TypeVideo, r.Type)
	assert.Equal(t, []string{models.SourceOriginal}, r.Sources)
	assert.Equal(t, models.QualityUnknown, r.Quality)

	r = resourceFromURL("https://media.example.com/stream/master.m3u8")
	assert.Equal(t, models.TypeVideo, r.Type)
	assert.Contains(t, r.Sources, models.SourceStreaming)

	r = resourceFromURL("https://media.example.com/file.bin")
	assert.Equal(t, models.TypeOther, r.Type)
}

func TestCliFlags_CategorizeOverrides(t *testing.T) {
	t.Cleanup(func() {
		for _, name := range []string{"by-website", "by-type"} {
			f := downloadCmd.Flags().Lookup(name)
			require.NotNil(t, f)
			require.NoError(t, f.Value.Set("false"))
			f.Changed = false
		}
	})

	require.NoError(t, downloadCmd.Flags().Set("by-website", "true"))

	flags := cliFlags(downloadCmd)
	require.NotNil(t, flags.CategorizeByWebsite)
	assert.True(t, *flags.CategorizeByWebsite)
	assert.Nil(t, flags.CategorizeByType, "untouched flags stay unset")

	require.NoError(t, downloadCmd.Flags().Set("by-type", "true"))
	flags = cliFlags(downloadCmd)
	require.NotNil(t, flags.CategorizeByType)
	assert.True(t, *flags.CategorizeByType)
}
