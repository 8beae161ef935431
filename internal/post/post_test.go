package post

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"ai-things/postforge/internal/pipeline"
)

func TestRenderFullPost(t *testing.T) {
	out, err := Render(Post{
		Title:        "Ocean Tides",
		SourceURL:    "https://example.com/tides",
		PrimaryImage: "https://example.com/tides_large.jpg",
		Verses: []pipeline.Verse{
			{Index: 0, Text: "The moon pulls."},
			{Index: 1, Err: "timeout"},
			{Index: 2, Text: "The sea answers."},
		},
		Image:       Media{Ref: "out/images/tides.jpg", Provider: "sdapi", Prompt: "moonlit [sea]"},
		Video:       Media{Note: "no video prompt found"},
		Audio:       Media{Ref: "out/audio/tides.mp3", Provider: "piper"},
		MusicTags:   "ambient, piano",
		MusicLength: "90",
		Lyrics:      "la la",
		RunID:       "run-1",
		GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "---\n"))
	assert.Contains(t, out, "# Ocean Tides\n\n![Ocean Tides](https://example.com/tides_large.jpg)")

	v1 := strings.Index(out, "## Verse 1\n\nThe moon pulls.")
	v2 := strings.Index(out, "## Verse 2\n\n> Generation failed for this passage: timeout")
	v3 := strings.Index(out, "## Verse 3\n\nThe sea answers.")
	require.True(t, v1 > 0 && v2 > v1 && v3 > v2, out)

	assert.Contains(t, out, "![moonlit (sea)](out/images/tides.jpg)")
	assert.Contains(t, out, "_Generated by sdapi._")
	assert.Contains(t, out, "## Video\n\n_no video prompt found_")
	assert.Contains(t, out, "[tides.mp3](out/audio/tides.mp3)")
	assert.Contains(t, out, "- Tags: ambient, piano\n- Duration: 90s")
	assert.Contains(t, out, "### Lyrics\n\nla la")
	assert.True(t, strings.HasSuffix(out, "Source: <https://example.com/tides>\n"))
}

func TestRenderFrontMatter(t *testing.T) {
	out, err := Render(Post{Title: "T: colon", RunID: "r", MusicTags: " a , ,b", GeneratedAt: time.Date(2026, 5, 6, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	parts := strings.SplitN(out, "---\n", 3)
	require.Len(t, parts, 3)
	var fm map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(parts[1]), &fm))
	assert.Equal(t, "T: colon", fm["title"])
	assert.Equal(t, "2026-05-06T00:00:00Z", fm["date"])
	assert.Equal(t, []any{"a", "b"}, fm["music_tags"])
	assert.NotContains(t, fm, "video")
}

func TestRenderMinimal(t *testing.T) {
	out, err := Render(Post{})
	require.NoError(t, err)
	assert.Contains(t, out, "# Untitled")
	assert.NotContains(t, out, "## Verse")
	assert.NotContains(t, out, "## Music")
	assert.NotContains(t, out, "Source:")
}

func TestRenderLinksMediaRelativeToPost(t *testing.T) {
	out, err := Render(Post{
		Title:   "Tides",
		BaseDir: "/srv/site/posts",
		Image:   Media{Ref: "/srv/site/images/tides.jpg", Prompt: "sea"},
		Video:   Media{Ref: "https://cdn.example.com/tides.mp4"},
		Audio:   Media{Ref: "/srv/site/audio/tides.mp3"},
	})
	require.NoError(t, err)

	assert.Contains(t, out, "![sea](../images/tides.jpg)")
	assert.Contains(t, out, "[tides.mp4](https://cdn.example.com/tides.mp4)")
	assert.Contains(t, out, "[tides.mp3](../audio/tides.mp3)")
	assert.Contains(t, out, "image: ../images/tides.jpg")
	assert.NotContains(t, out, "/srv/site")
}
