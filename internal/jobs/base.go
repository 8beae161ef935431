package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ai-things/postforge/internal/config"
	"ai-things/postforge/internal/db"
	"ai-things/postforge/internal/queue"
	"ai-things/postforge/internal/utils"
)

// RunStore persists pipeline runs; *db.Store implements it.
type RunStore interface {
	InsertRun(ctx context.Context, run db.Run) error
	FinishRun(ctx context.Context, id, status, postPath string, result any, runErr error) error
}

// Queue is the subset of *queue.Client the jobs use.
type Queue interface {
	Publish(queueName string, payload []byte) error
	Pop(queueName string) (*queue.Message, error)
}

type JobContext struct {
	Config config.Config
	Store  RunStore
	Queue  Queue
}

type JobOptions struct {
	Path      string
	Sleep     int
	Queue     bool
	QueueOnce bool
}

type BaseJob struct {
	QueueInput      string
	QueueOutput     string
	IgnoreHostCheck bool
}

// QueuePayload announces a scraped document, either by path or inline.
type QueuePayload struct {
	DocumentPath string          `json:"document_path,omitempty"`
	Document     json.RawMessage `json:"document,omitempty"`
	Hostname     string          `json:"hostname,omitempty"`
}

// PostPayload is published once a post is written.
type PostPayload struct {
	RunID        string `json:"run_id"`
	PostPath     string `json:"post_path"`
	DocumentPath string `json:"document_path,omitempty"`
	Hostname     string `json:"hostname"`
}

type QueueHandler func(ctx context.Context, payload QueuePayload) error

// RunQueue pops messages until ctx is done. Handler failures are requeued
// once; a redelivered message that fails again is dropped.
func (b BaseJob) RunQueue(ctx context.Context, jctx JobContext, opts JobOptions, handler QueueHandler) error {
	if jctx.Queue == nil {
		return fmt.Errorf("queue client is not configured")
	}

	sleep := opts.Sleep
	if sleep <= 0 {
		sleep = 30
	}
	pause := func() bool {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Duration(sleep) * time.Second):
			return true
		}
	}

	for ctx.Err() == nil {
		msg, err := jctx.Queue.Pop(b.QueueInput)
		if err != nil {
			return err
		}
		if msg == nil {
			utils.Debug("queue empty", "queue", b.QueueInput, "sleep_s", sleep)
			if opts.QueueOnce || !pause() {
				return nil
			}
			continue
		}

		var payload QueuePayload
		if err := json.Unmarshal(msg.Body, &payload); err != nil {
			utils.Warn("queue payload json decode failed", "queue", b.QueueInput, "err", err)
			_ = msg.Ack()
			continue
		}
		if strings.TrimSpace(payload.DocumentPath) == "" && len(payload.Document) == 0 {
			utils.Warn("queue payload invalid (missing document_path and document)", "queue", b.QueueInput)
			_ = msg.Ack()
			continue
		}

		if !b.IgnoreHostCheck && payload.Hostname != "" && payload.Hostname != jctx.Config.Hostname {
			utils.Warn("queue host mismatch", "queue", b.QueueInput, "message_host", payload.Hostname, "local_host", jctx.Config.Hostname)
			_ = msg.Nack(true)
			if !pause() {
				return nil
			}
			continue
		}

		if err := handler(ctx, payload); err != nil {
			utils.Error("queue handler error", "queue", b.QueueInput, "document", payload.DocumentPath, "redelivered", msg.Redelivered, "err", err)
			_ = msg.Nack(!msg.Redelivered)
		} else {
			_ = msg.Ack()
		}
		if opts.QueueOnce {
			return nil
		}
	}
	return nil
}
