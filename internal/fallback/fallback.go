// Package fallback runs an ordered chain of interchangeable media providers
// and stops at the first one that succeeds.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ai-things/postforge/internal/utils"
)

var (
	// ErrEmptyInput is returned (as a skipped outcome) when the request has no prompt.
	ErrEmptyInput = errors.New("fallback: empty prompt")
	// ErrEmptyPlan is returned when no provider is configured.
	ErrEmptyPlan = errors.New("fallback: no providers in plan")
	// ErrEmptyArtifact marks a provider that returned neither a reference nor bytes.
	ErrEmptyArtifact = errors.New("provider returned no artifact")
)

// Request is the input handed to every provider in a plan.
type Request struct {
	Prompt string
	// SourceRef optionally chains a prior artifact (e.g. image-to-video).
	SourceRef string
	// Name is a file name stem providers may use for what they write.
	Name string
}

// Artifact is what a successful provider produced: a reference (path or
// URL), raw bytes, or both.
type Artifact struct {
	Ref   string
	Bytes []byte
	MIME  string
}

func (a Artifact) empty() bool {
	return strings.TrimSpace(a.Ref) == "" && len(a.Bytes) == 0
}

// GenerateFunc is one provider's generation capability.
type GenerateFunc func(ctx context.Context, req Request) (Artifact, error)

// Step pairs a provider id with its generation function.
type Step struct {
	Provider string
	Generate GenerateFunc
}

// Plan is consumed top to bottom.
type Plan []Step

// Providers lists the provider ids in plan order.
func (p Plan) Providers() []string {
	out := make([]string, len(p))
	for i, s := range p {
		out[i] = s.Provider
	}
	return out
}

// Attempt records one provider invocation.
type Attempt struct {
	Provider string
	Err      error
	Elapsed  time.Duration
}

// Outcome is the dispatcher's structured result; it never carries a panic.
type Outcome struct {
	Success  bool
	Skipped  bool
	Provider string // provider that succeeded, or the last one tried
	Artifact Artifact
	Err      error
	Attempts []Attempt
}

// ExhaustedError names the last provider tried and its failure. It is also
// returned when the context ends partway through the chain.
type ExhaustedError struct {
	Provider string
	Tried    int
	Err      error
}

func (e *ExhaustedError) Error() string {
	if e.Tried == 0 {
		return fmt.Sprintf("no provider tried: %v", e.Err)
	}
	return fmt.Sprintf("%d providers tried; last %s: %v", e.Tried, e.Provider, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Dispatch invokes the plan's providers strictly in order and returns on the
// first success. Provider errors and panics are recorded and the next
// provider is tried. An empty prompt is rejected before any provider runs.
func Dispatch(ctx context.Context, plan Plan, req Request) Outcome {
	if strings.TrimSpace(req.Prompt) == "" {
		return Outcome{Skipped: true, Err: ErrEmptyInput}
	}
	if len(plan) == 0 {
		return Outcome{Err: ErrEmptyPlan}
	}

	out := Outcome{Attempts: make([]Attempt, 0, len(plan))}
	for _, step := range plan {
		if err := ctx.Err(); err != nil {
			out.Err = &ExhaustedError{Provider: out.Provider, Tried: len(out.Attempts), Err: fmt.Errorf("fallback: %w", err)}
			return out
		}
		out.Provider = step.Provider

		started := time.Now()
		artifact, err := invoke(ctx, step, req)
		out.Attempts = append(out.Attempts, Attempt{Provider: step.Provider, Err: err, Elapsed: time.Since(started)})
		if err == nil {
			utils.Info("provider succeeded", "provider", step.Provider, "attempt", len(out.Attempts))
			out.Success = true
			out.Artifact = artifact
			out.Err = nil
			return out
		}
		utils.Warn("provider failed", "provider", step.Provider, "attempt", len(out.Attempts), "err", err)
		out.Err = err
	}

	out.Err = &ExhaustedError{Provider: out.Provider, Tried: len(out.Attempts), Err: out.Err}
	return out
}

func invoke(ctx context.Context, step Step, req Request) (artifact Artifact, err error) {
	if step.Generate == nil {
		return Artifact{}, fmt.Errorf("%s: no generate function", step.Provider)
	}
	defer func() {
		if r := recover(); r != nil {
			artifact = Artifact{}
			err = fmt.Errorf("%s: panic: %v", step.Provider, r)
		}
	}()
	artifact, err = step.Generate(ctx, req)
	if err != nil {
		return Artifact{}, err
	}
	if artifact.empty() {
		return Artifact{}, fmt.Errorf("%s: %w", step.Provider, ErrEmptyArtifact)
	}
	return artifact, nil
}
