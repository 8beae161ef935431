package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"ai-things/postforge/internal/utils"
)

// Speech is raw signed 16-bit little-endian PCM.
type Speech struct {
	PCM        []byte
	SampleRate int
	Channels   int
	Voice      string
}

// Piper synthesizes speech with the piper CLI writing raw PCM to stdout.
type Piper struct {
	Binary          string
	Model           string // default .onnx model
	ConfigFile      string
	VoiceDir        string // <voice>.onnx models for named voices
	SampleRate      int
	SentenceSilence float64
	Run             func(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error)
}

// Synthesize speaks text with voice; an empty voice uses the default model.
func (p *Piper) Synthesize(ctx context.Context, text, voice string) (Speech, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Speech{}, errors.New("tts: empty text")
	}
	model, config := p.resolve(voice)
	if model == "" {
		return Speech{}, errors.New("tts: no piper model configured (set tts.onnx_model in config.ini)")
	}

	binary := p.Binary
	if binary == "" {
		binary = "piper"
	}
	run := p.Run
	if run == nil {
		run = utils.RunOutput
	}
	silence := p.SentenceSilence
	if silence <= 0 {
		silence = 0.7
	}
	args := []string{"--model", model, "--output_raw", "--sentence-silence", strconv.FormatFloat(silence, 'f', -1, 64)}
	if config != "" {
		args = append(args, "-c", config)
	}

	pcm, err := run(ctx, strings.NewReader(text), binary, args...)
	if err != nil {
		return Speech{}, fmt.Errorf("tts: %w", err)
	}
	if len(pcm) == 0 {
		return Speech{}, errors.New("tts: piper produced no audio")
	}
	if voice == "" {
		voice = strings.TrimSuffix(filepath.Base(model), ".onnx")
	}
	return Speech{PCM: pcm, SampleRate: orDefault(p.SampleRate, 22050), Channels: 1, Voice: voice}, nil
}

func (p *Piper) resolve(voice string) (model, config string) {
	if voice == "" || p.VoiceDir == "" {
		return p.Model, p.ConfigFile
	}
	model = filepath.Join(p.VoiceDir, voice+".onnx")
	if utils.FileExists(model + ".json") {
		config = model + ".json"
	}
	return model, config
}
