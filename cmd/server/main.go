package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/csv2xlsx/internal/config"
	"github.com/JonMunkholm/csv2xlsx/internal/convert"
	"github.com/JonMunkholm/csv2xlsx/internal/core"
	"github.com/JonMunkholm/csv2xlsx/internal/logging"
	"github.com/JonMunkholm/csv2xlsx/internal/storage"
	"github.com/JonMunkholm/csv2xlsx/internal/web"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	store, err := storage.New(cfg.Storage.Dir)
	if err != nil {
		return err
	}

	service := core.NewService(store, core.ServiceConfig{
		Convert: convert.Options{
			MaxRowsPerSheet:      cfg.Convert.MaxRowsPerSheet,
			SampleSize:           int(cfg.Convert.SampleSize),
			MaxColumnWidth:       cfg.Convert.MaxColumnWidth,
			MaxErrorRows:         cfg.Convert.MaxErrorRows,
			ContextCheckInterval: cfg.Convert.ContextCheckInterval,
			ScratchDir:           cfg.Convert.ScratchDir,
		},
		MaxConcurrent:  cfg.Upload.MaxConcurrent,
		MaxWait:        cfg.Upload.MaxWaitTime,
		ConvertTimeout: cfg.Upload.Timeout,
	})

	server := web.NewServer(service, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(cfg.Server.Addr()); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		service.StartSweepScheduler(gctx, core.SweepConfig{
			Interval: cfg.Storage.SweepInterval,
			MaxAge:   cfg.Storage.MaxAge,
		})
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		if status := service.UploadLimiterStatus(); status.Active > 0 {
			slog.Info("waiting for conversions to complete", "active", status.Active)
			if err := service.WaitForConversions(shutdownCtx); err != nil {
				slog.Warn("conversions did not complete in time", "error", err)
			}
		}
		return nil
	})

	return g.Wait()
}
