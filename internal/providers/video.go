package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"ai-things/postforge/internal/fallback"
	"ai-things/postforge/internal/utils"
)

// Job states reported by an async video service.
const (
	jobQueued    = "queued"
	jobRunning   = "running"
	jobSucceeded = "succeeded"
	jobFailed    = "failed"
)

// AsyncVideo submits a render job, then polls its status until a terminal
// state within Poll's bounds.
//
//	POST {SubmitURL}            {"request_id","prompt","image"?} -> {"id"}
//	GET  {StatusURL with {id}}  -> {"status","video_url","error"}
type AsyncVideo struct {
	Provider  string
	SubmitURL string
	StatusURL string // contains "{id}"
	APIKey    string // Bearer token when set
	OutputDir string // empty keeps the remote URL as the artifact ref
	Poll      fallback.PollConfig
	Client    *http.Client
}

type videoJob struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	VideoURL string `json:"video_url"`
	Error    string `json:"error"`
}

func (v *AsyncVideo) Generate(ctx context.Context, req fallback.Request) (fallback.Artifact, error) {
	if v.SubmitURL == "" || v.StatusURL == "" {
		return fallback.Artifact{}, fmt.Errorf("%s: submit/status url not configured", v.Provider)
	}
	c := client(v.Client)
	requestID := uuid.NewString()
	logger := utils.L().With("provider", v.Provider, "request_id", requestID)

	payload := map[string]any{
		"request_id": requestID,
		"prompt":     req.Prompt,
	}
	if req.SourceRef != "" {
		image, err := sourceImage(req.SourceRef)
		if err != nil {
			return fallback.Artifact{}, err
		}
		payload["image"] = image
	}

	var submitted videoJob
	if err := postJSON(ctx, c, v.SubmitURL, v.headers(), payload, &submitted); err != nil {
		return fallback.Artifact{}, fmt.Errorf("%s submit: %w", v.Provider, err)
	}
	if submitted.ID == "" {
		return fallback.Artifact{}, fmt.Errorf("%s submit: no job id", v.Provider)
	}
	logger.Info("video job submitted", "job_id", submitted.ID, "chained", req.SourceRef != "")

	statusURL := strings.ReplaceAll(v.StatusURL, "{id}", submitted.ID)
	var final videoJob
	err := fallback.Poll(ctx, v.Poll, func(ctx context.Context, attempt int) (bool, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
		if err != nil {
			return false, err
		}
		for k, val := range v.headers() {
			httpReq.Header.Set(k, val)
		}
		var job videoJob
		if err := doJSON(c, httpReq, &job); err != nil {
			return false, fmt.Errorf("status: %w", err)
		}
		logger.Debug("video job status", "attempt", attempt, "status", job.Status)
		switch strings.ToLower(job.Status) {
		case jobSucceeded:
			final = job
			return true, nil
		case jobFailed:
			reason := job.Error
			if reason == "" {
				reason = "job failed"
			}
			return false, errors.New(reason)
		default:
			return false, nil
		}
	})
	if err != nil {
		return fallback.Artifact{}, fmt.Errorf("%s: %w", v.Provider, err)
	}
	if final.VideoURL == "" {
		return fallback.Artifact{}, fmt.Errorf("%s: job succeeded without video_url", v.Provider)
	}
	if v.OutputDir == "" {
		return fallback.Artifact{Ref: final.VideoURL, MIME: "video/mp4"}, nil
	}

	path := outputPath(v.OutputDir, req, ".mp4")
	if err := download(ctx, c, final.VideoURL, path); err != nil {
		return fallback.Artifact{}, fmt.Errorf("%s download: %w", v.Provider, err)
	}
	return fallback.Artifact{Ref: path, MIME: "video/mp4"}, nil
}

func (v *AsyncVideo) headers() map[string]string {
	if v.APIKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + v.APIKey}
}

// sourceImage passes URLs through and inlines local files as a data URI.
func sourceImage(ref string) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "data:") {
		return ref, nil
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		return "", fmt.Errorf("read source image: %w", err)
	}
	return "data:" + http.DetectContentType(data) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func download(ctx context.Context, c *http.Client, src, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := utils.EnsureDir(filepath.Dir(dest)); err != nil {
		return err
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
