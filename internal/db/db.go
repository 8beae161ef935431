package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ai-things/postforge/internal/utils"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

type Store struct {
	pool *pgxpool.Pool
}

// Run is one pipeline execution for one document.
type Run struct {
	ID           string
	DocumentPath string
	SourceURL    string
	Title        string
	Slug         string
	Status       string
	Template     string
	Model        string
	Voice        string
	Hostname     string
	PostPath     string
	Result       []byte
	Error        *string
	StartedAt    time.Time
	FinishedAt   *time.Time
}

func NewStore(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) InsertRun(ctx context.Context, run Run) error {
	utils.Debug("db insert run", "id", run.ID, "document", run.DocumentPath)
	if run.Status == "" {
		run.Status = StatusRunning
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pipeline_runs (id, document_path, source_url, title, slug, status, template, model, voice, hostname, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
	`, run.ID, run.DocumentPath, run.SourceURL, run.Title, run.Slug, run.Status, run.Template, run.Model, run.Voice, run.Hostname)
	return err
}

// FinishRun stores the terminal status and the JSON-encoded result.
func (s *Store) FinishRun(ctx context.Context, id, status, postPath string, result any, runErr error) error {
	utils.Debug("db finish run", "id", id, "status", status)
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode run result: %w", err)
	}
	var errText *string
	if runErr != nil {
		msg := runErr.Error()
		errText = &msg
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE pipeline_runs
		SET status = $1,
			post_path = $2,
			result = $3,
			error = $4,
			finished_at = NOW()
		WHERE id = $5
	`, status, postPath, resultJSON, errText, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

const runColumns = `id::text, document_path, source_url, title, slug, status, template, model, voice, hostname, post_path, result, error, started_at, finished_at`

func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	utils.Debug("db get run", "id", id)
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM pipeline_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	return run, err
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `SELECT `+runColumns+` FROM pipeline_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func scanRun(row pgx.Row) (Run, error) {
	var r Run
	err := row.Scan(
		&r.ID,
		&r.DocumentPath,
		&r.SourceURL,
		&r.Title,
		&r.Slug,
		&r.Status,
		&r.Template,
		&r.Model,
		&r.Voice,
		&r.Hostname,
		&r.PostPath,
		&r.Result,
		&r.Error,
		&r.StartedAt,
		&r.FinishedAt,
	)
	return r, err
}
