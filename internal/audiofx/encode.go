package audiofx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"ai-things/postforge/internal/utils"
)

// RunFunc executes a command; it matches utils.RunArgs.
type RunFunc func(ctx context.Context, stdin io.Reader, name string, args ...string) (string, error)

// Encoder turns raw PCM into an MP3 file through ffmpeg.
type Encoder struct {
	Binary  string // defaults to "ffmpeg"
	Bitrate string // e.g. "192k"; empty keeps the codec default
	Run     RunFunc
}

// EncodeRequest describes one signed 16-bit little-endian PCM buffer.
type EncodeRequest struct {
	PCM        []byte
	Channels   int
	SampleRate int
	Graph      Graph
	OutputPath string
}

type EncodeResult struct {
	Path     string
	Duration float64
}

func (e Encoder) binary() string {
	if e.Binary == "" {
		return "ffmpeg"
	}
	return e.Binary
}

func (e Encoder) run() RunFunc {
	if e.Run == nil {
		return utils.RunArgs
	}
	return e.Run
}

// Args builds the ffmpeg argument list; PCM arrives on stdin.
func (e Encoder) Args(req EncodeRequest) []string {
	channels := req.Channels
	if channels < 1 {
		channels = 1
	}
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(req.SampleRate),
		"-ac", strconv.Itoa(channels),
		"-i", "pipe:0",
	}
	if fc := FilterComplex(req.Graph); fc != "" {
		args = append(args, "-filter_complex", fc, "-map", "["+req.Graph.OutputLabel+"]")
	}
	if req.Graph.OutputChannels > 0 {
		args = append(args, "-ac", strconv.Itoa(req.Graph.OutputChannels))
	}
	if req.Graph.OutputSampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(req.Graph.OutputSampleRate))
	}
	args = append(args, "-acodec", "libmp3lame")
	if e.Bitrate != "" {
		args = append(args, "-b:a", e.Bitrate)
	}
	return append(args, req.OutputPath)
}

// Encode writes req.OutputPath and reports its duration.
func (e Encoder) Encode(ctx context.Context, req EncodeRequest) (EncodeResult, error) {
	if len(req.PCM) == 0 {
		return EncodeResult{}, errors.New("audiofx: empty pcm")
	}
	if req.SampleRate <= 0 {
		return EncodeResult{}, fmt.Errorf("audiofx: invalid sample rate %d", req.SampleRate)
	}
	if req.OutputPath == "" {
		return EncodeResult{}, errors.New("audiofx: output path required")
	}
	if err := utils.EnsureDir(filepath.Dir(req.OutputPath)); err != nil {
		return EncodeResult{}, err
	}

	started := time.Now()
	if out, err := e.run()(ctx, bytes.NewReader(req.PCM), e.binary(), e.Args(req)...); err != nil {
		return EncodeResult{}, fmt.Errorf("audiofx: encode: %w: %s", err, out)
	}

	info, err := os.Stat(req.OutputPath)
	if err != nil {
		return EncodeResult{}, err
	}
	if info.ModTime().Before(started.Add(-time.Minute)) {
		return EncodeResult{}, fmt.Errorf("mp3 file is stale: %s", req.OutputPath)
	}

	duration, err := e.probeDuration(ctx, req.OutputPath)
	if err != nil {
		return EncodeResult{}, err
	}
	utils.Info("audio encoded", "path", req.OutputPath, "duration", duration, "stages", len(req.Graph.Stages))
	return EncodeResult{Path: req.OutputPath, Duration: duration}, nil
}

var durationPattern = regexp.MustCompile(`Duration: (\d+):(\d+):(\d+\.\d+)`)

// probeDuration reads the container duration from ffmpeg's banner. ffmpeg
// exits non-zero without an output file, so only the text matters.
func (e Encoder) probeDuration(ctx context.Context, path string) (float64, error) {
	output, _ := e.run()(ctx, nil, e.binary(), "-hide_banner", "-i", path)
	return ParseDuration(output)
}

// ParseDuration extracts "Duration: HH:MM:SS.ss" as seconds.
func ParseDuration(output string) (float64, error) {
	matches := durationPattern.FindStringSubmatch(output)
	if len(matches) < 4 {
		return 0, errors.New("duration not found")
	}
	hours, _ := strconv.Atoi(matches[1])
	minutes, _ := strconv.Atoi(matches[2])
	seconds, _ := strconv.ParseFloat(matches[3], 64)
	return float64(hours*3600+minutes*60) + seconds, nil
}
