package fallback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-things/postforge/internal/utils"
)

const (
	defaultPollInterval    = 5 * time.Second
	defaultPollMaxAttempts = 120
)

// ErrPollExhausted is returned when a job never reached a terminal state
// within the configured attempts or deadline.
var ErrPollExhausted = errors.New("poll: job did not finish in time")

// PollConfig bounds a submit-then-poll loop.
type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
	// Timeout caps total wall time; zero means MaxAttempts alone bounds it.
	Timeout time.Duration
	// Sleep overrides how waits are performed (useful for tests).
	Sleep func(ctx context.Context, d time.Duration) error
}

func (c PollConfig) withDefaults() PollConfig {
	if c.Interval <= 0 {
		c.Interval = defaultPollInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultPollMaxAttempts
	}
	if c.Sleep == nil {
		c.Sleep = sleepContext
	}
	return c
}

// CheckFunc inspects a job once. done=true ends polling successfully; a
// non-nil error ends it with that error.
type CheckFunc func(ctx context.Context, attempt int) (done bool, err error)

// Poll calls check until it reports done, fails, or the bounds are hit,
// sleeping Interval between calls.
func Poll(ctx context.Context, cfg PollConfig, check CheckFunc) error {
	cfg = cfg.withDefaults()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		done, err := check(ctx, attempt)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		utils.Debug("poll pending", "attempt", attempt, "max_attempts", cfg.MaxAttempts, "sleep", cfg.Interval)
		if attempt == cfg.MaxAttempts {
			break
		}
		if err := cfg.Sleep(ctx, cfg.Interval); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("%w: %v", ErrPollExhausted, err)
			}
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrPollExhausted, cfg.MaxAttempts)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
