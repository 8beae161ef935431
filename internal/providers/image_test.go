package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-things/postforge/internal/fallback"
)

func TestSDWebUIWritesDecodedImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a red fox", body["prompt"])
		_ = json.NewEncoder(w).Encode(map[string]any{"images": []string{base64.StdEncoding.EncodeToString([]byte("JPEG"))}})
	}))
	defer srv.Close()

	dir := t.TempDir()
	art, err := (&SDWebUI{URL: srv.URL, OutputDir: dir}).Generate(context.Background(), fallback.Request{Prompt: "a red fox", Name: "fox"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "fox.jpg"), art.Ref)
	data, err := os.ReadFile(art.Ref)
	require.NoError(t, err)
	assert.Equal(t, "JPEG", string(data))
}

func TestSDWebUINoImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"images":[]}`))
	}))
	defer srv.Close()

	_, err := (&SDWebUI{URL: srv.URL, OutputDir: t.TempDir()}).Generate(context.Background(), fallback.Request{Prompt: "x"})
	assert.EqualError(t, err, "no images returned")

	_, err = (&SDWebUI{}).Generate(context.Background(), fallback.Request{Prompt: "x"})
	assert.Error(t, err)
}

func TestScriptImageRetriesUntilFileExists(t *testing.T) {
	dir := t.TempDir()
	calls := 0
	s := &ScriptImage{
		Script:    "image-flux.py",
		OutputDir: dir,
		Run: func(_ context.Context, _ io.Reader, name string, args ...string) (string, error) {
			calls++
			assert.Equal(t, "python", name)
			assert.Equal(t, "a castle", args[2])
			if calls == 2 {
				return "", os.WriteFile(args[1], []byte("img"), 0o644)
			}
			return "", nil
		},
		Sleep: func(context.Context, time.Duration) error { return nil },
	}

	art, err := s.Generate(context.Background(), fallback.Request{Prompt: "a castle", Name: "castle"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, filepath.Join(dir, "castle.jpg"), art.Ref)
}

func TestScriptImageGivesUp(t *testing.T) {
	s := &ScriptImage{
		Script:    "image-flux.py",
		OutputDir: t.TempDir(),
		Attempts:  2,
		Run: func(context.Context, io.Reader, string, ...string) (string, error) {
			return "", nil
		},
		Sleep: func(context.Context, time.Duration) error { return nil },
	}
	_, err := s.Generate(context.Background(), fallback.Request{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestImageFallbackChain(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "cuda oom", http.StatusInternalServerError)
	}))
	defer broken.Close()

	dir := t.TempDir()
	script := &ScriptImage{
		Script:    "flux.py",
		OutputDir: dir,
		Run: func(_ context.Context, _ io.Reader, _ string, args ...string) (string, error) {
			return "", os.WriteFile(args[1], []byte("img"), 0o644)
		},
	}
	plan := fallback.Plan{
		{Provider: "sdapi", Generate: (&SDWebUI{URL: broken.URL, OutputDir: dir}).Generate},
		{Provider: "script", Generate: script.Generate},
	}

	out := fallback.Dispatch(context.Background(), plan, fallback.Request{Prompt: "p", Name: "n"})
	require.True(t, out.Success)
	assert.Equal(t, "script", out.Provider)
	require.Len(t, out.Attempts, 2)
	assert.Contains(t, out.Attempts[0].Err.Error(), "cuda oom")
}
