package monitor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/agent-racer/sessionwatch/internal/session"
	"github.com/shirou/gopsutil/v3/process"
)

// AgentProcess is a running agent CLI and the directory it works in.
type AgentProcess struct {
	PID        int
	WorkingDir string
	StartTime  time.Time
	CmdLine    string
}

// DiscoverAgentProcesses lists running agent processes. Processes whose
// working directory is inside ~/.claude are the agent's own helpers and
// are skipped.
func DiscoverAgentProcesses(ctx context.Context) ([]AgentProcess, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	homeDir, _ := os.UserHomeDir()
	claudeDir := filepath.Join(homeDir, ".claude")

	var results []AgentProcess
	for _, p := range procs {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		args, err := p.CmdlineSliceWithContext(ctx)
		if err != nil || !isClaudeProcess(args) {
			continue
		}
		cwd, err := p.CwdWithContext(ctx)
		if err != nil || cwd == "" {
			continue
		}
		if cwd == claudeDir || strings.HasPrefix(cwd, claudeDir+string(filepath.Separator)) {
			continue
		}

		var started time.Time
		if ms, err := p.CreateTimeWithContext(ctx); err == nil {
			started = time.UnixMilli(ms)
		}

		results = append(results, AgentProcess{
			PID:        int(p.Pid),
			WorkingDir: cwd,
			StartTime:  started,
			CmdLine:    cleanCmdline(args),
		})
	}
	return results, nil
}

func isClaudeProcess(args []string) bool {
	if len(args) == 0 {
		return false
	}

	exe := filepath.Base(args[0])

	// Match the main claude process, not subprocesses it spawns
	if exe == "claude" || exe == "claude-code" {
		return true
	}

	if exe == "node" {
		for _, arg := range args[1:] {
			if strings.Contains(arg, "claude") && !strings.Contains(arg, "node_modules/.bin") {
				return true
			}
		}
	}

	return false
}

func cleanCmdline(args []string) string {
	var cleaned []string
	for _, a := range args {
		if a != "" {
			cleaned = append(cleaned, a)
		}
	}
	return strings.Join(cleaned, " ")
}

// ProcessEnricher annotates sessions with the PID of the agent running in
// their project directory and, when that process lives in tmux, the pane
// target. It never changes a session's state.
type ProcessEnricher struct {
	logger   *slog.Logger
	discover func(context.Context) ([]AgentProcess, error)
	panes    func(context.Context) *PaneMap
}

func NewProcessEnricher(logger *slog.Logger) *ProcessEnricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessEnricher{
		logger:   logger,
		discover: DiscoverAgentProcesses,
		panes:    LoadPanes,
	}
}

// Enrich matches processes to sessions by project path. When several
// sessions share a directory, the most recently written session gets the
// most recently started process.
func (e *ProcessEnricher) Enrich(ctx context.Context, views []session.SessionView) {
	procs, err := e.discover(ctx)
	if err != nil {
		e.logger.Debug("process discovery failed", "error", err)
	}
	if len(procs) == 0 {
		return
	}

	byDir := make(map[string][]AgentProcess)
	for _, p := range procs {
		dir := filepath.Clean(p.WorkingDir)
		byDir[dir] = append(byDir[dir], p)
	}
	for _, list := range byDir {
		sort.Slice(list, func(i, j int) bool { return list[i].StartTime.After(list[j].StartTime) })
	}

	order := make([]int, len(views))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return views[order[a]].ModTime.After(views[order[b]].ModTime)
	})

	panes := e.panes(ctx)
	for _, i := range order {
		dir := filepath.Clean(views[i].ProjectPath)
		list := byDir[dir]
		if len(list) == 0 {
			continue
		}
		p := list[0]
		byDir[dir] = list[1:]

		views[i].AgentPID = p.PID
		if target, ok := panes.Target(p.PID); ok {
			views[i].TmuxTarget = target
		}
	}
}
