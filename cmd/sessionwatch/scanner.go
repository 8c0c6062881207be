package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/agent-racer/sessionwatch/internal/beads"
	"github.com/agent-racer/sessionwatch/internal/config"
	"github.com/agent-racer/sessionwatch/internal/mock"
	"github.com/agent-racer/sessionwatch/internal/monitor"
)

// newScanner builds a scanner from the monitor, beads and processes
// sections of cfg.
func newScanner(cfg *config.Config, logger *slog.Logger) *monitor.Scanner {
	return monitor.NewScanner(scannerOptions(cfg, logger))
}

func scannerOptions(cfg *config.Config, logger *slog.Logger) monitor.Options {
	opts := monitor.Options{
		Workers:       cfg.Monitor.Workers,
		FileTimeout:   cfg.Monitor.FileTimeout.Std(),
		TailRecords:   cfg.Monitor.TailRecords,
		PreviewLength: cfg.Monitor.PreviewLength,
		CacheSize:     cfg.Monitor.CacheSize,
		Logger:        logger,
	}
	if cfg.Beads.Enabled {
		opts.WorkSource = beads.NewSource(beads.Options{
			Command: cfg.Beads.Command,
			Timeout: cfg.Beads.Timeout.Std(),
			Logger:  logger,
		})
		// Timeout bounds each project; the whole lookup gets twice that.
		opts.WorkTimeout = 2 * cfg.Beads.Timeout.Std()
	}
	if cfg.Processes.Enabled {
		opts.Enricher = monitor.NewProcessEnricher(logger)
		opts.EnrichTimeout = cfg.Processes.Timeout.Std()
	}
	return opts
}

func monitorConfig(cfg *config.Config, root string) monitor.MonitorConfig {
	return monitor.MonitorConfig{
		Root:          root,
		IdleThreshold: cfg.Monitor.IdleThreshold.Std(),
		RecencyWindow: cfg.Monitor.RecencyWindow.Std(),
		PollInterval:  cfg.Monitor.PollInterval.Std(),
		WatchFiles:    cfg.Monitor.WatchFiles,
	}
}

// forMock turns off the integrations that would look at real projects.
func forMock(cfg *config.Config) {
	cfg.Beads.Enabled = false
	cfg.Processes.Enabled = false
}

// startMock writes synthetic sessions into a fresh temp root until ctx is
// cancelled. cleanup removes the root.
func startMock(ctx context.Context, logger *slog.Logger) (root string, cleanup func(), err error) {
	root, err = os.MkdirTemp("", "sessionwatch-mock-*")
	if err != nil {
		return "", nil, fmt.Errorf("create mock root: %w", err)
	}
	cleanup = func() {
		if err := os.RemoveAll(root); err != nil {
			logger.Warn("remove mock root", "root", root, "error", err)
		}
	}
	if err := mock.NewGenerator(root, logger).Start(ctx); err != nil {
		cleanup()
		return "", nil, err
	}
	return root, cleanup, nil
}
