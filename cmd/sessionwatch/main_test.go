package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agent-racer/sessionwatch/internal/config"
	"github.com/agent-racer/sessionwatch/internal/mock"
	"github.com/agent-racer/sessionwatch/internal/monitor"
	"github.com/agent-racer/sessionwatch/internal/session"
	"github.com/agent-racer/sessionwatch/internal/ws"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsLoopback(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"127.0.0.1", true},
		{"::1", true},
		{"localhost", true},
		{"0.0.0.0", false},
		{"", false},
		{"192.168.1.20", false},
	}
	for _, tt := range tests {
		if got := isLoopback(tt.host); got != tt.want {
			t.Errorf("isLoopback(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestDetermineWidth(t *testing.T) {
	t.Setenv("COLUMNS", "120")
	if got := determineWidth(&bytes.Buffer{}); got != 120 {
		t.Errorf("determineWidth with COLUMNS=120 = %d, want 120", got)
	}

	t.Setenv("COLUMNS", "wide")
	if got := determineWidth(&bytes.Buffer{}); got != 0 {
		t.Errorf("determineWidth with COLUMNS=wide = %d, want 0", got)
	}
}

func TestBuildVersion(t *testing.T) {
	old := version
	t.Cleanup(func() { version = old })

	version = "v1.2.3"
	if got := buildVersion(); got != "v1.2.3" {
		t.Errorf("buildVersion() = %q, want v1.2.3", got)
	}

	version = ""
	if got := buildVersion(); got == "" {
		t.Error("buildVersion() is empty without ldflags")
	}
}

func TestMonitorConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Monitor.WatchFiles = false

	got := monitorConfig(cfg, "/tmp/projects")
	if got.Root != "/tmp/projects" {
		t.Errorf("Root = %q, want /tmp/projects", got.Root)
	}
	if got.IdleThreshold != config.DefaultIdleThreshold || got.RecencyWindow != config.DefaultRecency {
		t.Errorf("thresholds = %v/%v, want %v/%v", got.IdleThreshold, got.RecencyWindow, config.DefaultIdleThreshold, config.DefaultRecency)
	}
	if got.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", got.PollInterval)
	}
	if got.WatchFiles {
		t.Error("WatchFiles = true, want false")
	}
}

func TestScannerOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Beads.Timeout = config.Duration(time.Second)
	cfg.Processes.Timeout = config.Duration(300 * time.Millisecond)

	opts := scannerOptions(cfg, discardLogger())
	if opts.WorkSource == nil || opts.WorkTimeout != 2*time.Second {
		t.Errorf("work source %v timeout %v, want beads source with 2s", opts.WorkSource, opts.WorkTimeout)
	}
	if opts.Enricher == nil || opts.EnrichTimeout != 300*time.Millisecond {
		t.Errorf("enricher %v timeout %v, want process enricher with 300ms", opts.Enricher, opts.EnrichTimeout)
	}

	forMock(cfg)
	opts = scannerOptions(cfg, discardLogger())
	if opts.WorkSource != nil || opts.Enricher != nil {
		t.Error("mock config should leave beads and processes unwired")
	}
}

func newTestReloader(t *testing.T, load func() (*config.Config, error)) *reloader {
	t.Helper()
	cfg := config.Default()
	forMock(cfg)
	root := t.TempDir()
	logger := discardLogger()
	b := ws.NewBroadcaster(0, cfg.Privacy.NewPrivacyFilter(), logger)
	t.Cleanup(b.Close)
	mon := monitor.NewMonitor(monitorConfig(cfg, root), newScanner(cfg, logger), session.NewStore(), b, logger)
	return &reloader{
		current:     cfg,
		root:        root,
		mock:        true,
		monitor:     mon,
		broadcaster: b,
		logger:      logger,
		load:        load,
	}
}

func TestReloadAppliesChanges(t *testing.T) {
	next := config.Default()
	next.Privacy.MaskProjectPaths = true
	next.Monitor.IdleThreshold = config.Duration(time.Minute)

	r := newTestReloader(t, func() (*config.Config, error) { return next, nil })

	changes := r.reload()
	if len(changes) != 2 {
		t.Fatalf("reload() changes = %v, want 2 entries", changes)
	}
	if !r.broadcaster.Privacy().MaskProjectPaths {
		t.Error("privacy filter not replaced")
	}
	if r.current != next {
		t.Error("current config not replaced")
	}
	// Mock mode keeps the integrations off whatever the file says.
	if next.Beads.Enabled || next.Processes.Enabled {
		t.Error("reloaded config in mock mode should keep beads and processes disabled")
	}

	if again := r.reload(); again != nil {
		t.Errorf("second reload() = %v, want no changes", again)
	}
}

func TestReloadKeepsConfigOnError(t *testing.T) {
	r := newTestReloader(t, func() (*config.Config, error) { return nil, errors.New("bad yaml") })
	before := r.current

	if changes := r.reload(); changes != nil {
		t.Errorf("reload() = %v, want nil", changes)
	}
	if r.current != before {
		t.Error("current config replaced after a failed load")
	}
}

func waitingSnapshot(ts time.Time, ids ...string) *session.Snapshot {
	var views []session.SessionView
	for _, id := range ids {
		views = append(views, session.SessionView{
			SessionID:          id,
			ProjectName:        "proj-" + id,
			State:              session.WaitingForInput,
			LastActivity:       ts,
			LastMessagePreview: "Ready for review.",
		})
	}
	return session.NewSnapshot(ts, views, nil)
}

func TestRunWatchAlertsOncePerWait(t *testing.T) {
	now := time.Now()
	results := []*session.Snapshot{
		waitingSnapshot(now, "a"),
		waitingSnapshot(now.Add(time.Second), "a"),
		nil,
		waitingSnapshot(now.Add(3*time.Second), "a", "b"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	scan := func(ctx context.Context) (*session.Snapshot, error) {
		if calls == len(results) {
			return nil, ctx.Err()
		}
		snap := results[calls]
		calls++
		if calls == len(results) {
			cancel()
		}
		if snap == nil {
			return nil, errors.New("root vanished")
		}
		return snap, nil
	}

	var buf bytes.Buffer
	if err := runWatch(ctx, scan, time.Millisecond, &buf, true, discardLogger()); err != nil {
		t.Fatalf("runWatch error: %v", err)
	}

	out := buf.String()
	if n := strings.Count(out, "proj-a [a] waiting for input: Ready for review."); n != 1 {
		t.Errorf("alerts for a = %d, want 1:\n%s", n, out)
	}
	if n := strings.Count(out, "proj-b [b] waiting for input"); n != 1 {
		t.Errorf("alerts for b = %d, want 1:\n%s", n, out)
	}
	if n := strings.Count(out, "\a"); n != 2 {
		t.Errorf("bells = %d, want 2", n)
	}
}

func TestStatusCommandPlain(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	if err := mock.NewGenerator(root, discardLogger()).Start(ctx); err != nil {
		t.Fatalf("start mock: %v", err)
	}
	cancel()

	cfgFile := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "monitor:\n  projects_dir: " + root + "\nbeads:\n  enabled: false\nprocesses:\n  enabled: false\n"
	if err := os.WriteFile(cfgFile, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	oldPath, oldLevel := configPath, logLevel
	t.Cleanup(func() { configPath, logLevel = oldPath, oldLevel })
	configPath, logLevel = cfgFile, "error"
	t.Setenv("SESSIONWATCH_PROJECTS_DIR", "")

	var buf bytes.Buffer
	cmd := newStatusCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--format", "plain"})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("status: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 6 {
		t.Fatalf("status printed %d lines, want header + 5 sessions:\n%s", len(lines), buf.String())
	}
	out := buf.String()
	if got := strings.Count(out, "\nprocessing\t"); got != 4 {
		t.Errorf("processing rows = %d, want 4:\n%s", got, out)
	}
	if !strings.Contains(out, "\nidle\tlibrary\t") {
		t.Errorf("missing idle library row:\n%s", out)
	}
}
