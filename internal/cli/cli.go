package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"ai-things/postforge/internal/config"
	"ai-things/postforge/internal/db"
	"ai-things/postforge/internal/jobs"
	"ai-things/postforge/internal/queue"
	"ai-things/postforge/internal/utils"
)

var stdout io.Writer = os.Stdout

// offline commands run without configuration, database or queue.
var offline = map[string]func(args []string) error{
	"chunk:Preview":    runChunkPreview,
	"images:Rank":      runImagesRank,
	"sections:Extract": runSectionsExtract,
	"audio:Graph":      runAudioGraph,
}

func Run(args []string) int {
	// Support a global --verbose flag anywhere in the argv (before or after the command).
	// The stdlib flag parser stops at the first non-flag argument.
	args, globalVerbose := extractGlobalVerbose(args)
	utils.ConfigureLogging(globalVerbose)

	if len(args) < 2 {
		printUsage()
		return 1
	}
	if args[1] == "-h" || args[1] == "--help" || args[1] == "help" {
		printUsage()
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := args[1]
	cmdArgs := args[2:]

	if fn, ok := offline[cmd]; ok {
		return exitCode(fn(cmdArgs))
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}
	utils.Logf("postforge: config loaded env=%s hostname=%s", cfg.AppEnv, cfg.Hostname)
	utils.Logf("postforge: cmd=%s args=%v", cmd, cmdArgs)

	var runErr error
	switch cmd {
	case "job:GeneratePost":
		runErr = runGeneratePost(ctx, cfg, cmdArgs)
	case "db:Migrate":
		runErr = runMigrate(ctx, cfg, cmdArgs)
	case "runs:List":
		runErr = runRunsList(ctx, cfg, cmdArgs)
	case "runs:Show":
		runErr = runRunsShow(ctx, cfg, cmdArgs)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		return 1
	}
	return exitCode(runErr)
}

func exitCode(err error) int {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func extractGlobalVerbose(args []string) ([]string, bool) {
	if len(args) == 0 {
		return args, false
	}
	verbose := false
	out := make([]string, 0, len(args))
	for _, arg := range args {
		switch {
		case arg == "--verbose" || arg == "-verbose":
			verbose = true
		case strings.HasPrefix(arg, "--verbose="):
			if parsed, err := strconv.ParseBool(strings.TrimPrefix(arg, "--verbose=")); err == nil {
				verbose = parsed
			}
		case strings.HasPrefix(arg, "-verbose="):
			if parsed, err := strconv.ParseBool(strings.TrimPrefix(arg, "-verbose=")); err == nil {
				verbose = parsed
			}
		default:
			out = append(out, arg)
		}
	}
	return out, verbose
}

// openStore connects only when [db] is configured; a nil store disables run
// bookkeeping.
func openStore(ctx context.Context, cfg config.Config, required bool) (*db.Store, error) {
	if !cfg.DBConfigured() {
		if required {
			return nil, fmt.Errorf("database is not configured ([db] host and name)")
		}
		return nil, nil
	}
	store, err := db.NewStore(ctx, cfg.DBConnString())
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	utils.Logf("postforge: db connected")
	return store, nil
}

func runGeneratePost(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("job:GeneratePost", flag.ContinueOnError)
	sleep := fs.Int("sleep", 30, "Sleep time in seconds between empty queue polls")
	queueFlag := fs.Bool("queue", false, "Process queue messages")
	once := fs.Bool("once", false, "With --queue, handle at most one message and exit")
	ignoreHost := fs.Bool("ignore-host", false, "With --queue, accept messages addressed to other hosts")
	verbose := fs.Bool("verbose", utils.Verbose, "Verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	utils.ConfigureLogging(*verbose)

	opts := jobs.JobOptions{Sleep: *sleep, Queue: *queueFlag, QueueOnce: *once}
	if fs.NArg() > 0 {
		opts.Path = fs.Arg(0)
	}
	utils.Logf("start job:GeneratePost path=%s queue=%t sleep=%d once=%t", opts.Path, opts.Queue, opts.Sleep, opts.QueueOnce)

	deps, err := jobs.BuildDeps(cfg)
	if err != nil {
		return err
	}
	jctx := jobs.JobContext{Config: cfg}

	store, err := openStore(ctx, cfg, false)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		jctx.Store = store
	}

	if opts.Queue {
		queueClient, err := queue.New(cfg.RabbitMQURL())
		if err != nil {
			return fmt.Errorf("queue error: %w", err)
		}
		defer queueClient.Close()
		utils.Logf("postforge: queue connected")
		jctx.Queue = queueClient
	}

	job := jobs.NewGeneratePostJob(deps, cfg.InputQueue, cfg.OutputQueue)
	job.IgnoreHostCheck = *ignoreHost
	return job.Run(ctx, jctx, opts)
}

func printUsage() {
	fmt.Println("Usage: postforge <command> [args]")
	fmt.Println("Global flags:")
	fmt.Println("  --verbose   Enable diagnostic logging (can appear before or after the command).")
	fmt.Println("Commands:")
	fmt.Println("  job:GeneratePost [path] [--queue] [--once] [--sleep=N] [--ignore-host] [--verbose]")
	fmt.Println("  db:Migrate [up] [--dir=DIR] [--dry-run] [--verbose]")
	fmt.Println("  runs:List [--limit=N]")
	fmt.Println("  runs:Show <run_id>")
	fmt.Println("  chunk:Preview <file> [--max=3000] [--min=200]")
	fmt.Println("  images:Rank <document.json | url...>")
	fmt.Println("  sections:Extract <file|-> [--music]")
	fmt.Println("  audio:Graph [--kind=pseudoStereo] [--channels=1] [--delay-ms=N] [--decay=N] [--mix=N] [--sample-rate=N]")
}
