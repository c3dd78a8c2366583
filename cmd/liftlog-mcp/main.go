package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/claude/liftlog/internal/app"
	"github.com/claude/liftlog/internal/config"
	lmcp "github.com/claude/liftlog/internal/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file (local mode)")
	remote := flag.String("remote", "", "liftlog server URL, e.g. http://liftlog.tail1234.ts.net (remote mode)")
	userID := flag.Int("user-id", 1, "user whose data the tools see (local mode)")
	flag.Parse()

	// stdout carries the protocol.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var ds lmcp.DataSource
	if *remote != "" {
		ds = lmcp.NewHTTPClient(*remote)
		log.Info("liftlog-mcp starting", "version", Version, "mode", "remote", "server", *remote)
	} else {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		a, err := app.Build(context.Background(), cfg, app.Options{Subsystem: "mcp"}, log)
		if err != nil {
			log.Error("startup failed", "error", err)
			os.Exit(1)
		}
		defer a.Close()
		ds = lmcp.NewLocal(a.Analytics, a.Sessions)
		log.Info("liftlog-mcp starting", "version", Version, "mode", "local", "user_id", *userID)
	}

	s := lmcp.New(ds, Version, log)
	err := server.ServeStdio(s, server.WithStdioContextFunc(func(ctx context.Context) context.Context {
		return lmcp.WithUserID(ctx, *userID)
	}))
	if err != nil {
		log.Error("stdio server failed", "error", err)
		os.Exit(1)
	}
}
