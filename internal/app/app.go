// Package app assembles the services shared by the liftlog binaries from a
// loaded config.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/claude/liftlog/internal/analytics"
	"github.com/claude/liftlog/internal/config"
	"github.com/claude/liftlog/internal/ingest/alpha"
	"github.com/claude/liftlog/internal/metrics"
	"github.com/claude/liftlog/internal/rollup"
	"github.com/claude/liftlog/internal/session"
	"github.com/claude/liftlog/internal/storage"
	"github.com/claude/liftlog/internal/store"
	"github.com/claude/liftlog/internal/store/memstore"
	"github.com/prometheus/client_golang/prometheus"
)

// UserDirectory resolves tailnet logins to users.
type UserDirectory interface {
	GetOrCreateUser(ctx context.Context, login, displayName string) (int, error)
	IsUserAllowed(ctx context.Context, login string) (bool, error)
}

// App holds the wired services. DB is nil for the memory driver.
type App struct {
	Store     store.Store
	DB        *storage.DB
	Users     UserDirectory
	Sessions  *session.Service
	Analytics *analytics.Service
	Alpha     *alpha.Provider
	Standards *analytics.CachedStandards
	Metrics   *metrics.Manager
	Registry  *prometheus.Registry
}

// Options tune Build.
type Options struct {
	// MigrationsPath is the directory of SQL migrations. Empty skips migrating.
	MigrationsPath string
	// Subsystem labels the Prometheus metrics of this binary.
	Subsystem string
}

// Build opens the configured store and creates the services on top of it.
// Close must be called when done.
func Build(ctx context.Context, cfg *config.Config, opts Options, log *slog.Logger) (*App, error) {
	loc, err := cfg.Training.Location()
	if err != nil {
		return nil, err
	}

	a := &App{Registry: prometheus.NewRegistry()}
	subsystem := opts.Subsystem
	if subsystem == "" {
		subsystem = "server"
	}
	a.Metrics = metrics.NewManager("liftlog", subsystem, a.Registry)

	var (
		catalog   store.Catalog
		standards store.Standards
	)
	switch cfg.Database.Driver {
	case config.DriverMemory:
		mem := memstore.New()
		a.Store, a.Users, catalog, standards = mem, mem, mem, mem
		log.Warn("using in-memory store, data is lost on exit")
	default:
		dsn := cfg.Database.DSN()
		if opts.MigrationsPath != "" {
			if err := storage.RunMigrations(dsn, opts.MigrationsPath); err != nil {
				return nil, err
			}
			log.Info("migrations applied")
		}
		db, err := storage.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("connecting database: %w", err)
		}
		log.Info("database connected")
		a.DB = db
		a.Store, a.Users, catalog, standards = db, db, db, db
	}

	a.Standards = analytics.NewCachedStandards(standards, cfg.Cache.SizeMB, cfg.Cache.StandardsTTLSeconds, log)
	agg := rollup.New(loc)
	a.Sessions = session.NewService(a.Store, catalog, agg, a.Metrics, log,
		session.WithRollupRetries(cfg.Training.RollupRetries, cfg.Training.RollupBackoff))
	a.Analytics = analytics.New(a.Store, catalog, a.Standards, analytics.Config{
		SetWorkSeconds:     cfg.Training.SetWorkSeconds,
		DefaultRestSeconds: cfg.Training.DefaultRestSeconds,
		RestWindowSessions: cfg.Training.RestWindowSessions,
	}, loc)
	a.Alpha = alpha.NewProvider(a.Store, agg, a.Metrics, log, loc, cfg.Import.MuscleGroups)
	return a, nil
}

// Close releases the database pool.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}
