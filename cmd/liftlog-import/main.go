package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/claude/liftlog/internal/app"
	"github.com/claude/liftlog/internal/config"
	"github.com/claude/liftlog/internal/importer"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	exportPath := flag.String("path", "", "directory of Alpha Progression CSV exports (required)")
	userID := flag.Int("user-id", 1, "user to import for")
	login := flag.String("login", "", "tailnet login to import for (overrides -user-id)")
	dryRun := flag.Bool("dry-run", false, "parse and count sessions without writing to the database")
	flag.Parse()

	if *exportPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: liftlog-import -config config.yaml -path /path/to/exports [-login user@example.com] [-dry-run]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))

	info, err := os.Stat(*exportPath)
	if err != nil || !info.IsDir() {
		log.Error("export path does not exist or is not a directory", "path", *exportPath)
		os.Exit(1)
	}
	if cfg.Database.Driver == config.DriverMemory {
		log.Error("importing into the in-memory store has no effect, configure postgres")
		os.Exit(1)
	}

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, app.Options{MigrationsPath: "migrations", Subsystem: "import"}, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	uid := *userID
	if *login != "" {
		uid, err = a.Users.GetOrCreateUser(ctx, *login, "")
		if err != nil {
			log.Error("resolving user", "login", *login, "error", err)
			os.Exit(1)
		}
	}

	state, err := importer.OpenStateDB(cfg.Import.StateDB)
	if err != nil {
		log.Error("failed to open state database", "path", cfg.Import.StateDB, "error", err)
		os.Exit(1)
	}
	defer state.Close()

	if *dryRun {
		log.Info("DRY RUN mode: no data will be written to the database")
	}

	imp := importer.New(a.Alpha, state, a.DB, log, *dryRun)
	stats, err := imp.Import(ctx, *exportPath, uid)
	if err != nil {
		log.Error("import failed", "error", err)
		printStats(log, stats)
		os.Exit(1)
	}

	printStats(log, stats)
	log.Info("import complete", "user_id", uid)
}

func printStats(log *slog.Logger, stats *importer.Stats) {
	log.Info("import stats",
		"files_processed", stats.FilesProcessed,
		"files_skipped", stats.FilesSkipped,
		"files_errored", stats.FilesErrored,
		"sessions_imported", stats.SessionsImported,
		"sessions_skipped", stats.SessionsSkipped,
		"sets_imported", stats.SetsImported,
		"records_broken", stats.RecordsBroken,
	)
}
