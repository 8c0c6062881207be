// Package beads reads in-progress issues from the beads tracker of each
// project seen in a scan.
package beads

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/agent-racer/sessionwatch/internal/monitor"
	"github.com/agent-racer/sessionwatch/internal/session"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultCommand = "bd"
	DefaultTimeout = 1500 * time.Millisecond

	statusInProgress = "in_progress"
	defaultWorkers   = 4
)

// Source implements monitor.WorkSource on top of the bd CLI, falling back
// to the issues.jsonl export when bd is missing or fails.
type Source struct {
	command string
	timeout time.Duration
	workers int
	logger  *slog.Logger
}

type Options struct {
	Command string
	Timeout time.Duration
	Workers int
	Logger  *slog.Logger
}

func NewSource(opts Options) *Source {
	if opts.Command == "" {
		opts.Command = DefaultCommand
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Source{
		command: opts.Command,
		timeout: opts.Timeout,
		workers: opts.Workers,
		logger:  opts.Logger,
	}
}

// InProgress returns the in-progress issues of every project that has a
// .beads directory, in project order. Per-project failures are logged and
// skipped; only cancellation of ctx is returned as an error.
func (s *Source) InProgress(ctx context.Context, projects []monitor.Project) ([]session.WorkItem, error) {
	results := make([][]session.WorkItem, len(projects))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, p := range projects {
		if !hasBeads(p.Path) {
			continue
		}
		g.Go(func() error {
			items, err := s.project(gctx, p)
			if err != nil {
				s.logger.Debug("beads lookup failed", "project", p.Name, "error", err)
				return nil
			}
			results[i] = items
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []session.WorkItem
	for _, items := range results {
		out = append(out, items...)
	}
	return out, nil
}

func (s *Source) project(ctx context.Context, p monitor.Project) ([]session.WorkItem, error) {
	raw, err := s.runList(ctx, p.Path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Debug("bd list failed, reading issues.jsonl", "project", p.Name, "error", err)
		raw, err = readIssuesFile(filepath.Join(p.Path, ".beads", "issues.jsonl"))
		if err != nil {
			return nil, err
		}
	}

	items := make([]session.WorkItem, 0, len(raw))
	for _, r := range raw {
		items = append(items, session.WorkItem{ProjectName: p.Name, Item: r})
	}
	return items, nil
}

// runList runs `bd list --status in_progress --json` inside dir.
func (s *Source) runList(ctx context.Context, dir string) ([]json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.command, "list", "--status", statusInProgress, "--json")
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := bytes.TrimSpace(stderr.Bytes()); len(msg) > 0 {
			return nil, fmt.Errorf("%s list: %w: %s", s.command, err, msg)
		}
		return nil, fmt.Errorf("%s list: %w", s.command, err)
	}
	return parseList(out)
}

// parseList decodes bd's JSON output. An empty output or "null" is an empty
// list.
func parseList(out []byte) ([]json.RawMessage, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(out, &items); err != nil {
		return nil, fmt.Errorf("decode bd output: %w", err)
	}
	return compactAll(items), nil
}

// readIssuesFile scans a JSONL issues export and keeps the issues whose
// status is in_progress. Malformed lines are skipped.
func readIssuesFile(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var items []json.RawMessage
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var issue struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(line, &issue); err != nil {
			continue
		}
		if issue.Status != statusInProgress {
			continue
		}
		items = append(items, json.RawMessage(bytes.Clone(line)))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return compactAll(items), nil
}

func compactAll(items []json.RawMessage) []json.RawMessage {
	for i, it := range items {
		var b bytes.Buffer
		if err := json.Compact(&b, it); err == nil {
			items[i] = b.Bytes()
		}
	}
	return items
}

func hasBeads(dir string) bool {
	if dir == "" || !filepath.IsAbs(dir) {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, ".beads"))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Debug("beads dir not accessible", "dir", dir, "error", err)
		}
		return false
	}
	return info.IsDir()
}
