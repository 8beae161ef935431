package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"ai-things/postforge/internal/fallback"
	"ai-things/postforge/internal/utils"
)

const negativePrompt = "lowres, bad anatomy, bad hands, text, error, missing fingers, extra digit, fewer digits, cropped, worst quality, low quality, normal quality, jpeg artifacts, signature, watermark, username, blurry"

// SDWebUI renders through a Stable Diffusion WebUI txt2img endpoint.
type SDWebUI struct {
	URL       string // full txt2img URL
	OutputDir string
	Width     int
	Height    int
	Steps     int
	Client    *http.Client
}

func (s *SDWebUI) Generate(ctx context.Context, req fallback.Request) (fallback.Artifact, error) {
	if s.URL == "" {
		return fallback.Artifact{}, errors.New("sdapi url not configured")
	}
	payload := map[string]any{
		"prompt":             req.Prompt,
		"steps":              orDefault(s.Steps, 32),
		"width":              orDefault(s.Width, 800),
		"height":             orDefault(s.Height, 600),
		"negative_prompt":    negativePrompt,
		"enable_hr":          true,
		"restore_faces":      true,
		"hr_upscaler":        "Nearest",
		"denoising_strength": 0.7,
	}
	var response struct {
		Images []string `json:"images"`
	}
	if err := postJSON(ctx, client(s.Client), s.URL, nil, payload, &response); err != nil {
		return fallback.Artifact{}, fmt.Errorf("txt2img: %w", err)
	}
	if len(response.Images) == 0 {
		return fallback.Artifact{}, errors.New("no images returned")
	}
	imageData, err := base64.StdEncoding.DecodeString(response.Images[0])
	if err != nil {
		return fallback.Artifact{}, err
	}

	path := outputPath(s.OutputDir, req, ".jpg")
	if err := utils.WriteFile(path, imageData); err != nil {
		return fallback.Artifact{}, err
	}
	return fallback.Artifact{Ref: path, MIME: "image/jpeg"}, nil
}

// ScriptImage runs a local generation script: <python> <script> <out> <prompt>.
type ScriptImage struct {
	Python    string
	Script    string
	OutputDir string
	Attempts  int
	Run       func(ctx context.Context, stdin io.Reader, name string, args ...string) (string, error)
	Sleep     func(ctx context.Context, d time.Duration) error
}

func (s *ScriptImage) Generate(ctx context.Context, req fallback.Request) (fallback.Artifact, error) {
	if s.Script == "" {
		return fallback.Artifact{}, errors.New("image script not configured")
	}
	python := s.Python
	if python == "" {
		python = "python"
	}
	run := s.Run
	if run == nil {
		run = utils.RunArgs
	}
	sleep := s.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	path := outputPath(s.OutputDir, req, ".jpg")
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return fallback.Artifact{}, err
	}
	attempts := orDefault(s.Attempts, 3)
	for attempt := 1; !utils.FileExists(path); attempt++ {
		if attempt > attempts {
			return fallback.Artifact{}, fmt.Errorf("image script produced no file after %d attempts", attempts)
		}
		if out, err := run(ctx, nil, python, s.Script, path, req.Prompt); err != nil {
			return fallback.Artifact{}, fmt.Errorf("image script: %w: %s", err, strings.TrimSpace(out))
		}
		if utils.FileExists(path) {
			break
		}
		if err := sleep(ctx, 2*time.Second); err != nil {
			return fallback.Artifact{}, err
		}
	}
	return fallback.Artifact{Ref: path, MIME: "image/jpeg"}, nil
}

func outputPath(dir string, req fallback.Request, ext string) string {
	name := req.Name
	if name == "" {
		name = utils.ShortHash(req.Prompt)
	}
	return filepath.Join(dir, name+ext)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
