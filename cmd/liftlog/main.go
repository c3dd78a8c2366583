package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/claude/liftlog/internal/app"
	"github.com/claude/liftlog/internal/config"
	lmcp "github.com/claude/liftlog/internal/mcp"
	"github.com/claude/liftlog/internal/server"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"tailscale.com/tsnet"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	allow := flag.String("allow", "", "comma-separated tailnet logins to add to the allowlist, then exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	log.Info("liftlog starting", "version", Version, "driver", cfg.Database.Driver)

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, app.Options{MigrationsPath: "migrations", Subsystem: "server"}, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if *migrateOnly {
		log.Info("migrate-only: exiting")
		return
	}
	if *allow != "" {
		if err := allowUsers(ctx, a, *allow, log); err != nil {
			log.Error("updating allowlist failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// Sessions completed while the statistics store was failing.
	if n, err := a.Sessions.RetryPendingRollups(ctx); err != nil {
		log.Warn("pending rollup retry failed", "error", err)
	} else if n > 0 {
		log.Info("pending rollups applied", "sessions", n)
	}

	srv := server.New(a.Sessions, a.Analytics, a.Alpha, a.Metrics, cfg.Auth.APIKey, log)
	if a.DB != nil {
		srv.SetAdmin(a.DB)
	}
	if cfg.Metrics.Enabled {
		srv.SetMetrics(cfg.Metrics.Path, a.Registry)
	}

	mcpSrv := lmcp.New(lmcp.NewLocal(a.Analytics, a.Sessions), Version, log)
	srv.MountMCP(mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return lmcp.WithUserID(ctx, server.RequestUserID(r))
		}),
	))

	// Start server: tsnet or plain HTTP
	var listener net.Listener

	if cfg.Tailscale.Enabled {
		tsServer := &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		lc, err := tsServer.LocalClient()
		if err != nil {
			log.Error("tsnet local client failed", "error", err)
			os.Exit(1)
		}
		srv.SetTailscale(lc, a.Users)
		if a.DB != nil {
			if logins, err := a.DB.GetAllowedUsers(ctx); err == nil && len(logins) > 0 {
				log.Info("tailnet allowlist active", "logins", logins)
			}
		}

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr, "mode", "dev (no tailscale)")
	}

	httpSrv := &http.Server{Handler: srv, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	log.Info("server stopped")
}

// allowUsers adds each login of the comma-separated list to the allowlist.
// Once the list is non-empty, tailnet users outside it are refused.
func allowUsers(ctx context.Context, a *app.App, list string, log *slog.Logger) error {
	if a.DB == nil {
		return errors.New("the allowlist needs the postgres driver")
	}
	for _, login := range strings.Split(list, ",") {
		login = strings.TrimSpace(login)
		if login == "" {
			continue
		}
		if err := a.DB.AllowUser(ctx, login); err != nil {
			return err
		}
		log.Info("login allowed", "login", login)
	}
	return nil
}
