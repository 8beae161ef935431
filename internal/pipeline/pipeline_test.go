package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-things/postforge/internal/chunker"
)

func chunks(n int) []chunker.Chunk {
	out := make([]chunker.Chunk, n)
	for i := range out {
		out[i] = chunker.Chunk{Index: i, Text: fmt.Sprintf("chunk %d", i)}
	}
	return out
}

func TestRunKeepsChunkOrderWhenCompletionIsReversed(t *testing.T) {
	release := []chan struct{}{make(chan struct{}), make(chan struct{}), make(chan struct{})}
	go func() {
		// settle 2, then 1, then 0
		for i := len(release) - 1; i >= 0; i-- {
			close(release[i])
			time.Sleep(5 * time.Millisecond)
		}
	}()

	res := Orchestrator{}.Run(context.Background(), chunks(3), func(ctx context.Context, c chunker.Chunk) (string, error) {
		<-release[c.Index]
		return fmt.Sprintf("verse %d\n### Image Prompt\nimage %d", c.Index, c.Index), nil
	})

	require.Len(t, res.Aggregated.Verses, 3)
	for i, v := range res.Aggregated.Verses {
		assert.Equal(t, i, v.Index)
		assert.Equal(t, fmt.Sprintf("verse %d", i), v.Text)
	}
	assert.Equal(t, []string{"image 0", "image 1", "image 2"}, res.Aggregated.ImagePrompts)
}

func TestRunIsolatesFailures(t *testing.T) {
	res := Orchestrator{Concurrency: 2}.Run(context.Background(), chunks(3), func(ctx context.Context, c chunker.Chunk) (string, error) {
		switch c.Index {
		case 1:
			return "", errors.New("model overloaded")
		case 2:
			panic("boom")
		}
		return "fine\n## Video Prompt\nslow pan", nil
	})

	require.Len(t, res.Chunks, 3)
	assert.False(t, res.Chunks[0].Failed())
	assert.Equal(t, "model overloaded", res.Chunks[1].Err)
	assert.Contains(t, res.Chunks[2].Err, "boom")

	require.Len(t, res.Aggregated.Verses, 3)
	assert.Equal(t, "fine", res.Aggregated.Verses[0].Text)
	assert.Equal(t, "model overloaded", res.Aggregated.Verses[1].Err)
	assert.Contains(t, res.Aggregated.Verses[1].Text, "model overloaded")
	assert.Equal(t, []string{"slow pan"}, res.Aggregated.VideoPrompts)
	assert.Empty(t, res.Aggregated.ImagePrompts)
}

func TestRunAggregatesMusicAndLyrics(t *testing.T) {
	raw := "v\n### Music\nTAGS: lofi, piano\nDURATION: 120\n### Lyrics\nla la"
	res := Orchestrator{}.Run(context.Background(), chunks(2), func(ctx context.Context, c chunker.Chunk) (string, error) {
		if c.Index == 0 {
			return raw, nil
		}
		return "no headers here at all", nil
	})

	assert.Equal(t, []string{"lofi, piano"}, res.Aggregated.MusicTags)
	assert.Equal(t, []string{"120"}, res.Aggregated.MusicDurations)
	assert.Equal(t, []string{"la la"}, res.Aggregated.Lyrics)
	assert.Equal(t, "no headers here at all", res.Aggregated.Verses[1].Text)
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	var inflight, peak atomic.Int32
	Orchestrator{Concurrency: 2}.Run(context.Background(), chunks(6), func(ctx context.Context, c chunker.Chunk) (string, error) {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inflight.Add(-1)
		return "ok", nil
	})
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunCancelledContextMarksChunks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var called atomic.Bool
	res := Orchestrator{}.Run(ctx, chunks(2), func(ctx context.Context, c chunker.Chunk) (string, error) {
		called.Store(true)
		return "x", nil
	})
	assert.False(t, called.Load())
	assert.True(t, res.Chunks[0].Failed())
	assert.Len(t, res.Aggregated.Verses, 2)
}

func TestRunNoChunks(t *testing.T) {
	res := Orchestrator{}.Run(context.Background(), nil, nil)
	assert.Empty(t, res.Chunks)
	assert.Empty(t, res.Aggregated.Verses)
}

func TestPick(t *testing.T) {
	_, ok := Pick(nil, nil)
	assert.False(t, ok)

	rng := rand.New(rand.NewPCG(1, 2))
	list := []string{"a", "b", "c"}
	seen := map[string]bool{}
	for range 200 {
		v, ok := Pick(rng, list)
		require.True(t, ok)
		seen[v] = true
	}
	assert.Len(t, seen, 3)

	v, ok := Pick(nil, []string{"only"})
	assert.True(t, ok)
	assert.Equal(t, "only", v)
}

func TestPickIndex(t *testing.T) {
	_, ok := PickIndex(nil, 0)
	assert.False(t, ok)
	i, ok := PickIndex(rand.New(rand.NewPCG(3, 4)), 1)
	assert.True(t, ok)
	assert.Zero(t, i)
}
