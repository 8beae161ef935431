package prompts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"ai-things/postforge/internal/utils"
)

// RoundRobin persists the index of the last used template as plain text.
type RoundRobin struct {
	StatePath string
}

// Next selects (last+1) mod count and stores it. A missing or unreadable
// state counts as -1. The read-increment-write runs under a file lock so
// concurrent batches never pick the same index.
func (r RoundRobin) Next(count int) (int, error) {
	if count <= 0 {
		return 0, errors.New("round robin: no templates")
	}
	if r.StatePath == "" {
		return 0, nil
	}

	if err := utils.EnsureDir(filepath.Dir(r.StatePath)); err != nil {
		return 0, err
	}
	lock := flock.New(r.StatePath + ".lock")
	if err := lock.Lock(); err != nil {
		return 0, fmt.Errorf("round robin lock: %w", err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			utils.Warn("round robin unlock failed", "path", r.StatePath, "err", err)
		}
	}()

	next := (r.last() + 1) % count
	if next < 0 {
		next = 0
	}
	if err := utils.WriteFile(r.StatePath, []byte(strconv.Itoa(next)+"\n")); err != nil {
		return 0, fmt.Errorf("round robin save: %w", err)
	}
	utils.Debug("prompt template selected", "index", next, "count", count)
	return next, nil
}

func (r RoundRobin) last() int {
	data, err := os.ReadFile(r.StatePath)
	if err != nil {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return -1
	}
	return n
}

// Select advances the cursor and returns the chosen template with its index.
func (r RoundRobin) Select(templates []Template) (Template, int, error) {
	i, err := r.Next(len(templates))
	if err != nil {
		return Template{}, 0, err
	}
	return templates[i], i, nil
}
