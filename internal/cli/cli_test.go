package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	return &buf
}

func TestExtractGlobalVerbose(t *testing.T) {
	args, verbose := extractGlobalVerbose([]string{"postforge", "job:GeneratePost", "--verbose", "in.json"})
	assert.True(t, verbose)
	assert.Equal(t, []string{"postforge", "job:GeneratePost", "in.json"}, args)

	args, verbose = extractGlobalVerbose([]string{"postforge", "-verbose=false", "db:Migrate"})
	assert.False(t, verbose)
	assert.Equal(t, []string{"postforge", "db:Migrate"}, args)

	_, verbose = extractGlobalVerbose([]string{"postforge", "--verbose=true"})
	assert.True(t, verbose)
}

func TestRunUsage(t *testing.T) {
	assert.Equal(t, 1, Run([]string{"postforge"}))
	assert.Equal(t, 0, Run([]string{"postforge", "help"}))
}

func TestAudioGraphCommand(t *testing.T) {
	out := captureStdout(t)
	require.Equal(t, 0, Run([]string{"postforge", "audio:Graph", "--kind=pseudo-stereo", "--channels=1"}))
	assert.Contains(t, out.String(), "asplit")
	assert.Contains(t, out.String(), "channelsplit=channel_layout=stereo")
	assert.Contains(t, out.String(), "channels=2")
}

func TestAudioGraphNone(t *testing.T) {
	out := captureStdout(t)
	require.NoError(t, runAudioGraph([]string{"--kind=none", "--channels=1"}))
	assert.Equal(t, "no filter graph (channels=1)\n", out.String())
}

func TestChunkPreviewCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("# Title\n\nShort body."), 0o644))

	out := captureStdout(t)
	require.NoError(t, runChunkPreview([]string{path}))
	assert.Contains(t, out.String(), "--- chunk 0")
	assert.Contains(t, out.String(), "Short body.")

	assert.Error(t, runChunkPreview(nil))
}

func TestSectionsExtractCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resp.txt")
	require.NoError(t, os.WriteFile(path, []byte("A verse.\n### Image Prompt\na red door"), 0o644))

	out := captureStdout(t)
	require.NoError(t, runSectionsExtract([]string{path}))
	assert.Contains(t, out.String(), `"image_prompt": "a red door"`)
	assert.Contains(t, out.String(), `"verse": "A verse."`)
}

func TestImagesRankCommand(t *testing.T) {
	out := captureStdout(t)
	require.NoError(t, runImagesRank([]string{"data:image/png;base64,AAAA"}))
	assert.Equal(t, "no usable images\n", out.String())
}

func TestUnknownCommandNeedsConfig(t *testing.T) {
	t.Setenv("POSTFORGE_CONFIG", filepath.Join(t.TempDir(), "missing.ini"))
	assert.Equal(t, 1, Run([]string{"postforge", "nope:Command"}))
}
