// Package pipeline fans one generation call out per chunk and folds the
// responses back into ordered, aggregated prompt lists.
package pipeline

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"ai-things/postforge/internal/chunker"
	"ai-things/postforge/internal/sections"
	"ai-things/postforge/internal/utils"
)

// GenerateFunc produces the raw model response for one chunk.
type GenerateFunc func(ctx context.Context, chunk chunker.Chunk) (string, error)

// ChunkResult is the settled outcome of one chunk. Exactly one of Raw or Err
// is meaningful.
type ChunkResult struct {
	Index    int               `json:"index"`
	Text     string            `json:"text"`
	Raw      string            `json:"raw,omitempty"`
	Err      string            `json:"error,omitempty"`
	Sections sections.Sections `json:"sections"`
	Elapsed  time.Duration     `json:"elapsed"`
}

func (r ChunkResult) Failed() bool { return r.Err != "" }

// Verse is one display entry; failed chunks carry the error reason instead.
type Verse struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Err   string `json:"error,omitempty"`
}

// Aggregated holds every non-empty section across chunks, in chunk order.
type Aggregated struct {
	Verses         []Verse  `json:"verses"`
	ImagePrompts   []string `json:"image_prompts"`
	VideoPrompts   []string `json:"video_prompts"`
	MusicTags      []string `json:"music_tags"`
	MusicDurations []string `json:"music_durations"`
	Lyrics         []string `json:"lyrics"`
}

type Result struct {
	Chunks     []ChunkResult `json:"chunks"`
	Aggregated Aggregated    `json:"aggregated"`
}

// Orchestrator runs the per-chunk fan-out. Concurrency <= 0 is unbounded.
type Orchestrator struct {
	Concurrency int
	RunID       string
}

// Run issues one generate call per chunk concurrently, waits for all of them,
// then extracts and aggregates in chunk order. A failing or panicking call
// only marks its own chunk.
func (o Orchestrator) Run(ctx context.Context, chunks []chunker.Chunk, generate GenerateFunc) Result {
	logger := utils.ForRun(o.RunID)
	results := make([]ChunkResult, len(chunks))

	var g errgroup.Group
	if o.Concurrency > 0 {
		g.SetLimit(o.Concurrency)
	}
	for i, c := range chunks {
		g.Go(func() error {
			results[i] = call(ctx, c, generate)
			if results[i].Failed() {
				logger.Warn("chunk generation failed", "chunk", c.Index, "err", results[i].Err)
			} else {
				logger.Debug("chunk generated", "chunk", c.Index, "elapsed", results[i].Elapsed)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Chunks: results}
	for i := range results {
		r := &results[i]
		if r.Failed() {
			res.Aggregated.Verses = append(res.Aggregated.Verses, Verse{
				Index: r.Index,
				Text:  fmt.Sprintf("[generation failed: %s]", r.Err),
				Err:   r.Err,
			})
			continue
		}
		r.Sections = sections.Extract(r.Raw).WithMusic()
		res.Aggregated.add(r.Index, r.Sections)
	}
	logger.Info("chunks aggregated",
		"chunks", len(chunks),
		"image_prompts", len(res.Aggregated.ImagePrompts),
		"video_prompts", len(res.Aggregated.VideoPrompts),
		"music", len(res.Aggregated.MusicTags),
	)
	return res
}

func call(ctx context.Context, c chunker.Chunk, generate GenerateFunc) (out ChunkResult) {
	out = ChunkResult{Index: c.Index, Text: c.Text}
	started := time.Now()
	defer func() {
		out.Elapsed = time.Since(started)
		if r := recover(); r != nil {
			out.Raw = ""
			out.Err = fmt.Sprintf("panic: %v", r)
		}
	}()
	if generate == nil {
		out.Err = "no generator configured"
		return out
	}
	if err := ctx.Err(); err != nil {
		out.Err = err.Error()
		return out
	}
	raw, err := generate(ctx, c)
	if err != nil {
		out.Err = err.Error()
		return out
	}
	out.Raw = raw
	return out
}

func (a *Aggregated) add(index int, s sections.Sections) {
	a.Verses = append(a.Verses, Verse{Index: index, Text: s.Verse})
	if s.ImagePrompt != "" {
		a.ImagePrompts = append(a.ImagePrompts, s.ImagePrompt)
	}
	if s.VideoPrompt != "" {
		a.VideoPrompts = append(a.VideoPrompts, s.VideoPrompt)
	}
	if s.MusicTags != "" {
		a.MusicTags = append(a.MusicTags, s.MusicTags)
		a.MusicDurations = append(a.MusicDurations, s.MusicDuration)
	}
	if s.Lyrics != "" {
		a.Lyrics = append(a.Lyrics, s.Lyrics)
	}
}

// Pick chooses uniformly from list. An empty list reports false so the
// caller can skip the dependent generation step. A nil rng uses the global
// source.
func Pick(rng *rand.Rand, list []string) (string, bool) {
	if len(list) == 0 {
		return "", false
	}
	if rng == nil {
		return list[rand.IntN(len(list))], true
	}
	return list[rng.IntN(len(list))], true
}

// PickIndex is Pick for callers that need the position, e.g. to pair music
// tags with their duration.
func PickIndex(rng *rand.Rand, n int) (int, bool) {
	if n <= 0 {
		return 0, false
	}
	if rng == nil {
		return rand.IntN(n), true
	}
	return rng.IntN(n), true
}
