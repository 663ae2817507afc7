package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/studypal/studypal/internal/api"
	"github.com/studypal/studypal/internal/backup"
	"github.com/studypal/studypal/internal/config"
	"github.com/studypal/studypal/internal/notify"
	"github.com/studypal/studypal/internal/remote"
	"github.com/studypal/studypal/internal/store"
	syncengine "github.com/studypal/studypal/internal/sync"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "studypal",
	Short: "StudyPal - local-first study organizer with remote backup sync",
	RunE:  run,
}

func init() {
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

func run(cmd *cobra.Command, args []string) error {
	// Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(newLogHandler(cfg.Log))
	slog.SetDefault(logger)
	slog.Info("configuration loaded", "level", cfg.Log.Level)

	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.close()

	if err := app.engine.Start(ctx); err != nil {
		return err
	}
	defer app.engine.Stop()

	// Establish the remote session at startup when configured. Failure is
	// not fatal: the service runs local-only and a later explicit sign-in
	// retries.
	if app.adapter.Ready() {
		if err := app.engine.SignIn(ctx); err != nil {
			slog.Warn("initial sign-in failed, running local-only",
				"component", "main", "error", err)
		}
	} else {
		slog.Info("remote backup not configured, sync disabled",
			"component", "main")
	}

	handler := api.NewHandler(app.store, app.serializer, app.engine, cfg.Auth.APIKey, Version)
	router := api.NewRouter(handler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called
		// gracefully. Any other error triggers shutdown.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// app bundles the wired collaborators for the serve and one-shot commands.
type app struct {
	bus        *notify.Bus
	store      *store.SQLiteStore
	serializer *backup.Serializer
	adapter    remote.Adapter
	engine     *syncengine.Engine
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}
}

// buildApp constructs the store, notifier, serializer, remote adapter, and
// engine from configuration. The engine still needs Start().
func buildApp(cfg *config.Config) (*app, error) {
	bus := notify.NewBus()

	st, err := store.NewSQLiteStore(cfg.Database.Path, bus)
	if err != nil {
		return nil, err
	}
	slog.Info("store initialized", "path", cfg.Database.Path)

	serializer := backup.NewSerializer(st, bus)

	adapter, err := remote.NewAdapter(cfg.Remote)
	if err != nil {
		st.Close()
		return nil, err
	}

	engine := syncengine.NewEngine(st, serializer, adapter, bus, syncengine.Options{
		DebounceDelay:   time.Duration(cfg.Sync.DebounceDelay),
		ClockSkewBuffer: time.Duration(cfg.Sync.ClockSkewBuffer),
		IncludeContent:  cfg.Sync.ExportContent,
	})

	return &app{
		bus:        bus,
		store:      st,
		serializer: serializer,
		adapter:    adapter,
		engine:     engine,
	}, nil
}

func newLogHandler(cfg config.LogConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.NewJSONHandler(os.Stdout, opts)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
