package main

import (
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/agent-racer/sessionwatch/internal/format"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newStatusCmd() *cobra.Command {
	var formatFlag string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Scan once and print every active session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			scanner := newScanner(cfg, slog.Default())
			snap, err := scanner.BuildSnapshot(cmd.Context(), cfg.Monitor.ProjectsDir,
				cfg.Monitor.IdleThreshold.Std(), cfg.Monitor.RecencyWindow.Std())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			return format.WriteSnapshot(out, snap, formatFlag, determineWidth(out))
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&formatFlag, "format", "f", "table", "output format: table, plain or json")
	return cmd
}

// determineWidth returns the terminal width of out, falling back to
// $COLUMNS. Zero means unbounded.
func determineWidth(out io.Writer) int {
	if f, ok := out.(*os.File); ok && isTerminal(f) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			return w
		}
	}
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if v, err := strconv.Atoi(cols); err == nil && v > 0 {
			return v
		}
	}
	return 0
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
