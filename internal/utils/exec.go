package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

const defaultCommandTimeout = 2 * time.Hour

// RunArgs executes name with args (no shell) and returns combined stdout+stderr.
// stdin may be nil.
func RunArgs(ctx context.Context, stdin io.Reader, name string, args ...string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultCommandTimeout)
		defer cancel()
	}

	Debug("run", "cmd", name, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	if stdin != nil {
		cmd.Stdin = stdin
	}
	if err := cmd.Run(); err != nil {
		if Verbose && output.Len() > 0 {
			Logf("output (error):\n%s", strings.TrimRight(output.String(), "\n"))
		}
		return output.String(), fmt.Errorf("command %s failed: %w", name, err)
	}
	if Verbose && output.Len() > 0 {
		Logf("output:\n%s", strings.TrimRight(output.String(), "\n"))
	}
	return output.String(), nil
}

// RunOutput executes name with args and returns stdout only; stderr is folded
// into the error on failure.
func RunOutput(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultCommandTimeout)
		defer cancel()
	}

	Debug("run", "cmd", name, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = stdin
	}
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("command %s failed: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
