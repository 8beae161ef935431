package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"ai-things/postforge/internal/utils"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations is the schema shipped with the binary.
func Migrations() fs.FS {
	sub, _ := fs.Sub(embedded, "migrations")
	return sub
}

// Migration is one SQL file.
type Migration struct {
	Name string
	SQL  string
}

// ListMigrations returns the non-empty .sql files of fsys in name order.
func ListMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, path.Clean(name))
		if err != nil {
			return nil, err
		}
		sqlText := strings.TrimSpace(string(data))
		if sqlText == "" {
			continue
		}
		out = append(out, Migration{Name: name, SQL: sqlText})
	}
	return out, nil
}

// Pending filters out migrations already recorded as applied.
func Pending(all []Migration, applied map[string]bool) []Migration {
	out := make([]Migration, 0, len(all))
	for _, m := range all {
		if !applied[m.Name] {
			out = append(out, m)
		}
	}
	return out
}

// Migrate applies pending migrations from fsys, each in its own transaction.
// With dryRun it only reports what would run.
func (s *Store) Migrate(ctx context.Context, fsys fs.FS, dryRun bool) ([]string, error) {
	if err := s.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}
	all, err := ListMigrations(fsys)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, errors.New("no .sql migrations found")
	}

	applied := map[string]bool{}
	for _, m := range all {
		ok, err := s.isApplied(ctx, m.Name)
		if err != nil {
			return nil, err
		}
		applied[m.Name] = ok
	}
	pending := Pending(all, applied)

	names := make([]string, 0, len(pending))
	for _, m := range pending {
		names = append(names, m.Name)
	}
	if dryRun {
		return names, nil
	}

	for _, m := range pending {
		start := time.Now()
		utils.Info("migrate apply", "migration", m.Name)

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return nil, err
		}
		_, execErr := tx.Exec(ctx, m.SQL)
		if execErr == nil {
			_, execErr = tx.Exec(ctx, `INSERT INTO schema_migrations (filename, applied_at) VALUES ($1, NOW())`, m.Name)
		}
		if execErr != nil {
			_ = tx.Rollback(ctx)
			return nil, fmt.Errorf("migration %s failed: %w", m.Name, execErr)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		utils.Info("migrate applied", "migration", m.Name, "dur", time.Since(start).Truncate(time.Millisecond).String())
	}
	return names, nil
}

func (s *Store) ensureMigrationsTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (s *Store) isApplied(ctx context.Context, filename string) (bool, error) {
	var out string
	err := s.pool.QueryRow(ctx, `SELECT filename FROM schema_migrations WHERE filename = $1`, filename).Scan(&out)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return out != "", nil
}
