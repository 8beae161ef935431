package jobs

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"path/filepath"
	"time"

	"ai-things/postforge/internal/audiofx"
	"ai-things/postforge/internal/config"
	"ai-things/postforge/internal/fallback"
	"ai-things/postforge/internal/prompts"
	"ai-things/postforge/internal/providers"
	"ai-things/postforge/internal/utils"
)

// Synthesizer turns text into raw PCM.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (providers.Speech, error)
}

// AudioEncoder writes enhanced audio to disk.
type AudioEncoder interface {
	Encode(ctx context.Context, req audiofx.EncodeRequest) (audiofx.EncodeResult, error)
}

// Deps are the capabilities a GeneratePostJob calls out to.
type Deps struct {
	Text       providers.TextGenerator
	Model      string
	ImagePlan  fallback.Plan
	VideoPlan  fallback.Plan
	Speech     Synthesizer
	Encoder    AudioEncoder
	Templates  []prompts.Template
	RoundRobin prompts.RoundRobin
	Rand       *rand.Rand
	Now        func() time.Time
}

// Output subfolders under app.output_folder.
const (
	postsDir  = "posts"
	imagesDir = "images"
	videosDir = "videos"
	audioDir  = "audio"
	runsDir   = "runs"
)

// BuildDeps wires providers from configuration.
func BuildDeps(cfg config.Config) (Deps, error) {
	templates, err := prompts.LoadTemplates(cfg.TemplatesFile)
	if err != nil {
		return Deps{}, err
	}

	ollama := providers.NewOllama(cfg.OllamaHostname, cfg.OllamaPort, cfg.OllamaModel, time.Duration(cfg.OllamaTimeoutSeconds)*time.Second)
	ollama.APIKey = cfg.OllamaAPIKey
	gemini := providers.NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel)
	text, err := providers.NewTextGenerator(cfg.TextProvider, ollama, gemini)
	if err != nil {
		return Deps{}, err
	}
	model := ollama.Model
	if text.Name() == gemini.Name() {
		model = gemini.Model
	}

	imagePlan, err := imagePlan(cfg)
	if err != nil {
		return Deps{}, err
	}

	return Deps{
		Text:      text,
		Model:     text.Name() + ":" + model,
		ImagePlan: imagePlan,
		VideoPlan: videoPlan(cfg),
		Speech: &providers.Piper{
			Model:      cfg.TTSOnnxModel,
			ConfigFile: cfg.TTSConfig,
			VoiceDir:   cfg.TTSVoiceDir,
			SampleRate: cfg.TTSSampleRate,
		},
		Encoder:    audiofx.Encoder{Binary: cfg.FFmpeg, Bitrate: cfg.AudioBitrate},
		Templates:  templates,
		RoundRobin: prompts.RoundRobin{StatePath: cfg.StateFile},
		Now:        time.Now,
	}, nil
}

func imagePlan(cfg config.Config) (fallback.Plan, error) {
	out := filepath.Join(cfg.OutputFolder, imagesDir)
	var plan fallback.Plan
	for _, name := range cfg.ImageProviders {
		switch name {
		case "sdapi":
			if cfg.SDAPIURL == "" {
				utils.Warn("image provider skipped: image.sdapi_url not set", "provider", name)
				continue
			}
			p := &providers.SDWebUI{URL: cfg.SDAPIURL, OutputDir: out, Client: &http.Client{Timeout: 300 * time.Second}}
			plan = append(plan, fallback.Step{Provider: name, Generate: p.Generate})
		case "script":
			if cfg.ImageScript == "" {
				utils.Warn("image provider skipped: image.script not set", "provider", name)
				continue
			}
			p := &providers.ScriptImage{Python: cfg.ImagePython, Script: cfg.ImageScript, OutputDir: out}
			plan = append(plan, fallback.Step{Provider: name, Generate: p.Generate})
		default:
			return nil, fmt.Errorf("unknown image provider %q", name)
		}
	}
	return plan, nil
}

func videoPlan(cfg config.Config) fallback.Plan {
	var plan fallback.Plan
	for _, vp := range cfg.VideoProviders {
		p := &providers.AsyncVideo{
			Provider:  vp.Name,
			SubmitURL: vp.SubmitURL,
			StatusURL: vp.StatusURL,
			APIKey:    vp.APIKey,
			OutputDir: filepath.Join(cfg.OutputFolder, videosDir),
			Poll: fallback.PollConfig{
				Interval:    cfg.VideoPollInterval,
				MaxAttempts: cfg.VideoPollMaxAttempt,
				Timeout:     cfg.VideoPollTimeout,
			},
		}
		plan = append(plan, fallback.Step{Provider: vp.Name, Generate: p.Generate})
	}
	return plan
}
