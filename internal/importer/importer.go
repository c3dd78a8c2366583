package importer

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/claude/liftlog/internal/ingest"
	"github.com/claude/liftlog/internal/ingest/alpha"
	"github.com/claude/liftlog/internal/storage"
)

// Stats tracks import progress.
type Stats struct {
	FilesProcessed int
	FilesSkipped   int
	FilesErrored   int

	SessionsImported int
	SessionsSkipped  int
	SetsImported     int
	RecordsBroken    int
}

// Ingester stores the sessions of one export.
type Ingester interface {
	Ingest(ctx context.Context, r io.Reader, userID int) (*ingest.Result, error)
}

// ImportLogger records the outcome of each imported file. storage.DB implements it.
type ImportLogger interface {
	InsertImportLog(ctx context.Context, log storage.ImportLog) (int64, error)
}

// Importer reads Alpha Progression CSV exports from a directory tree and
// imports each file at most once per user.
type Importer struct {
	ingester Ingester
	state    *StateDB
	logs     ImportLogger
	log      *slog.Logger
	dryRun   bool
	stats    Stats
}

// New creates a new Importer. logs may be nil.
func New(ingester Ingester, state *StateDB, logs ImportLogger, log *slog.Logger, dryRun bool) *Importer {
	return &Importer{ingester: ingester, state: state, logs: logs, log: log, dryRun: dryRun}
}

// Import processes all .csv files under dir for the user, oldest name first.
func (imp *Importer) Import(ctx context.Context, dir string, userID int) (*Stats, error) {
	files, err := findExports(dir)
	if err != nil {
		return &imp.stats, err
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return &imp.stats, err
		}
		rel, err := filepath.Rel(dir, f)
		if err != nil {
			rel = f
		}
		if err := imp.importFile(ctx, f, rel, userID); err != nil {
			imp.log.Warn("import failed", "file", rel, "error", err)
			imp.stats.FilesErrored++
		}
	}
	return &imp.stats, nil
}

func findExports(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".csv") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

func (imp *Importer) importFile(ctx context.Context, path, rel string, userID int) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	hash, err := HashFile(path)
	if err != nil {
		return fmt.Errorf("hashing: %w", err)
	}
	done, err := imp.state.IsImported(userID, hash)
	if err != nil {
		return err
	}
	if done {
		imp.log.Info("skipping file (already imported)", "file", rel)
		imp.stats.FilesSkipped++
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if imp.dryRun {
		sessions, err := alpha.Parse(f)
		if err != nil {
			return err
		}
		imp.stats.FilesProcessed++
		imp.stats.SessionsImported += len(sessions)
		imp.log.Info("would import", "file", rel, "sessions", len(sessions))
		return nil
	}

	start := time.Now()
	res, err := imp.ingester.Ingest(ctx, f, userID)
	imp.record(ctx, userID, rel, res, err, time.Since(start))
	if err != nil {
		return err
	}

	imp.stats.FilesProcessed++
	imp.stats.SessionsImported += res.SessionsImported
	imp.stats.SessionsSkipped += res.SessionsSkipped
	imp.stats.SetsImported += res.SetsImported
	imp.stats.RecordsBroken += res.RecordsBroken

	if err := imp.state.MarkImported(userID, rel, info.Size(), hash, res.SessionsImported); err != nil {
		return err
	}
	imp.log.Info("imported file", "file", rel, "sessions", res.SessionsImported, "records", res.RecordsBroken)
	return nil
}

// record writes an import log entry; failures are logged, not returned.
func (imp *Importer) record(ctx context.Context, userID int, rel string, res *ingest.Result, importErr error, took time.Duration) {
	if imp.logs == nil {
		return
	}
	ms := int(took.Milliseconds())
	entry := storage.ImportLog{
		UserID:     userID,
		Source:     "alpha:" + rel,
		Status:     "success",
		DurationMs: &ms,
	}
	if res != nil {
		entry.SessionsFound = res.SessionsReceived
		entry.SessionsImported = res.SessionsImported
		entry.SessionsSkipped = res.SessionsSkipped
		entry.RecordsBroken = res.RecordsBroken
	}
	if importErr != nil {
		msg := importErr.Error()
		entry.Status = "error"
		entry.ErrorMessage = &msg
	}
	if _, err := imp.logs.InsertImportLog(ctx, entry); err != nil {
		imp.log.Error("failed to log import", "file", rel, "error", err)
	}
}
