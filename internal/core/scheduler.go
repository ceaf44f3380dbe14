package core

// scheduler.go runs the periodic storage sweep.
//
// Converted workbooks that are never downloaded would accumulate forever, so
// a background loop deletes artifacts older than MaxAge. It runs once at
// start, then every Interval, and stops when its context is cancelled. A
// failed sweep is logged and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// SweepConfig configures the sweep scheduler. Zero values take defaults.
type SweepConfig struct {
	Interval time.Duration // how often to sweep (default: 30m)
	MaxAge   time.Duration // artifacts older than this are removed (default: 1h)
}

const (
	DefaultSweepInterval = 30 * time.Minute
	DefaultSweepMaxAge   = time.Hour
)

func (c SweepConfig) withDefaults() SweepConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultSweepInterval
	}
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultSweepMaxAge
	}
	return c
}

// StartSweepScheduler blocks, sweeping storage until ctx is cancelled.
// Run it in its own goroutine.
func (s *Service) StartSweepScheduler(ctx context.Context, cfg SweepConfig) {
	cfg = cfg.withDefaults()
	slog.Info("sweep scheduler started",
		"interval", cfg.Interval.String(),
		"max_age", cfg.MaxAge.String(),
	)

	s.runSweep(cfg.MaxAge)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sweep scheduler stopped")
			return
		case <-ticker.C:
			s.runSweep(cfg.MaxAge)
		}
	}
}

// runSweep performs one sweep and logs the outcome.
func (s *Service) runSweep(maxAge time.Duration) {
	start := time.Now()
	removed, err := s.Sweep(maxAge)
	if err != nil {
		slog.Error("sweep failed", "removed", removed, "error", err)
		return
	}
	if removed > 0 {
		slog.Info("swept expired artifacts",
			"removed", removed,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}
	slog.Debug("sweep found nothing to remove")
}
