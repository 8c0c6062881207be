package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/agent-racer/sessionwatch/internal/format"
	"github.com/agent-racer/sessionwatch/internal/session"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var (
		interval time.Duration
		mockMode bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print a line each time a session starts waiting",
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive, got %s", interval)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			logger := slog.Default()
			root := cfg.Monitor.ProjectsDir
			if mockMode {
				forMock(cfg)
				mockRoot, cleanup, err := startMock(ctx, logger)
				if err != nil {
					return err
				}
				defer cleanup()
				root = mockRoot
			}

			scanner := newScanner(cfg, logger)
			idle, recency := cfg.Monitor.IdleThreshold.Std(), cfg.Monitor.RecencyWindow.Std()
			scan := func(ctx context.Context) (*session.Snapshot, error) {
				return scanner.BuildSnapshot(ctx, root, idle, recency)
			}

			out := cmd.OutOrStdout()
			bell := false
			if f, ok := out.(*os.File); ok {
				bell = isTerminal(f)
			}
			return runWatch(ctx, scan, interval, out, bell, logger)
		},
	}

	flags := cmd.Flags()
	flags.DurationVarP(&interval, "interval", "i", 2*time.Second, "time between scans")
	flags.BoolVar(&mockMode, "mock", false, "watch synthetic sessions instead of real ones")
	return cmd
}

// runWatch scans every interval until ctx is cancelled and writes an alert
// line for each session that has started waiting since the previous scan.
// A failed scan is logged and the previous snapshot is kept for comparison.
func runWatch(ctx context.Context, scan func(context.Context) (*session.Snapshot, error), interval time.Duration, out io.Writer, bell bool, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var detector session.Detector
	for {
		snap, err := scan(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			if !errors.Is(err, context.DeadlineExceeded) {
				logger.Warn("scan failed", "error", err)
			}
		default:
			for _, v := range detector.Observe(snap) {
				if _, err := fmt.Fprintf(out, "%s  %s\n", snap.Timestamp.Local().Format(time.TimeOnly), format.AlertLine(v)); err != nil {
					return err
				}
				if bell {
					fmt.Fprint(out, "\a")
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
