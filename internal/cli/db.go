package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"ai-things/postforge/internal/config"
	"ai-things/postforge/internal/db"
	"ai-things/postforge/internal/utils"
)

func runMigrate(ctx context.Context, cfg config.Config, args []string) error {
	flags := flag.NewFlagSet("db:Migrate", flag.ContinueOnError)
	dir := flags.String("dir", "", "Directory containing *.sql migrations (default: built-in)")
	dryRun := flags.Bool("dry-run", false, "List pending migrations without applying")
	verbose := flags.Bool("verbose", utils.Verbose, "Verbose logging")
	if err := flags.Parse(args); err != nil {
		return err
	}
	utils.ConfigureLogging(*verbose)

	action := "up"
	if flags.NArg() > 0 {
		action = strings.TrimSpace(flags.Arg(0))
	}
	if action != "up" {
		return fmt.Errorf("unsupported migrate action %q (supported: up)", action)
	}

	var migrations fs.FS = db.Migrations()
	if *dir != "" {
		migrations = os.DirFS(*dir)
	}

	store, err := openStore(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer store.Close()

	start := time.Now()
	names, err := store.Migrate(ctx, migrations, *dryRun)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(stdout, n)
	}
	if !*dryRun {
		utils.Info("migrate done", "applied", len(names), "dur", time.Since(start).Truncate(time.Millisecond).String())
	}
	return nil
}

func runRunsList(ctx context.Context, cfg config.Config, args []string) error {
	flags := flag.NewFlagSet("runs:List", flag.ContinueOnError)
	limit := flags.Int("limit", 20, "Number of runs to show")
	if err := flags.Parse(args); err != nil {
		return err
	}
	store, err := openStore(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Fprintf(stdout, "%s  %-9s  %s  %s\n", r.ID, r.Status, r.StartedAt.Format(time.RFC3339), r.Slug)
	}
	return nil
}

func runRunsShow(ctx context.Context, cfg config.Config, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: runs:Show <run_id>")
	}
	store, err := openStore(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.GetRun(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "id:       %s\nstatus:   %s\ndocument: %s\ntemplate: %s\nmodel:    %s\npost:     %s\n",
		run.ID, run.Status, run.DocumentPath, run.Template, run.Model, run.PostPath)
	if run.Error != nil {
		fmt.Fprintf(stdout, "error:    %s\n", *run.Error)
	}
	return nil
}
