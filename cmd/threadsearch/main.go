package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/threadsearch/threadsearch/internal/config"
	"github.com/threadsearch/threadsearch/internal/search"
	"github.com/threadsearch/threadsearch/internal/server"
	"github.com/threadsearch/threadsearch/internal/store"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"
	// Commit is set via -ldflags at build time.
	Commit = "unknown"
	// BuildTime is set via -ldflags at build time.
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		runCmd(os.Args[2:])
	case "setup":
		setupCmd(os.Args[2:])
	case "seed":
		seedCmd(os.Args[2:])
	case "version":
		fmt.Printf("threadsearch %s (%s) %s\n", Version, Commit, BuildTime)
	default:
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `threadsearch

Usage:
  threadsearch run [flags]
  threadsearch setup [flags]
  threadsearch seed [flags]
  threadsearch version

Commands:
  run       Serve the HTTP API using the local config file.
  setup     Recreate the search index schema and rebuild it from the primary tables.
  seed      Insert sample threads and messages.
  version   Print build information.

`)
}

func loadOrDefaultConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(filepath.Clean(path))
	if err == nil {
		return cfg, nil
	}
	if os.IsNotExist(err) {
		return config.Default(), nil
	}
	return nil, err
}

func newLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(strings.TrimSpace(format)) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func runCmd(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	_ = fs.Parse(args)

	cfg, err := loadOrDefaultConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogFormat, cfg.LogLevel)
	logger.Info("starting threadsearch", "version", Version, "commit", Commit)

	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()

	engine := search.NewEngine(st.DB(), logger)
	if err := engine.Ensure(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to ensure search index: %v\n", err)
		os.Exit(1)
	}

	srv, err := server.New(server.Options{
		Logger:         logger,
		Store:          st,
		Engine:         engine,
		ListenAddr:     cfg.ListenAddr,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init server: %v\n", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "server exited with error: %v\n", err)
		os.Exit(1)
	}
}

func setupCmd(args []string) {
	fs := flag.NewFlagSet("setup", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	_ = fs.Parse(args)

	cfg, err := loadOrDefaultConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.LogFormat, cfg.LogLevel)

	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()

	res, err := search.NewEngine(st.DB(), logger).Setup(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Index ready: %d tables, %d triggers, %d threads indexed, %d messages indexed\n",
		res.TablesCreated, res.TriggersCreated, res.ThreadsRebuilt, res.MessagesRebuilt)
}

func seedCmd(args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	ownerID := fs.String("owner-id", "", "Owner id stamped on seeded rows")
	_ = fs.Parse(args)

	cfg, err := loadOrDefaultConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.LogFormat, cfg.LogLevel)

	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()

	if err := search.NewEngine(st.DB(), logger).Ensure(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to ensure search index: %v\n", err)
		os.Exit(1)
	}

	threads, messages, err := st.Seed(context.Background(), *ownerID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Seeded %d threads, %d messages\n", threads, messages)
}
