package monitor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// paneFormat makes tmux print "<shell pid>\t<session>:<window>.<pane>" per
// pane, so the target needs no assembly.
const paneFormat = "#{pane_pid}\t#{session_name}:#{window_index}.#{pane_index}"

// maxAncestors bounds the walk from an agent process up to its pane shell.
const maxAncestors = 10

// PaneMap finds the tmux pane an agent process runs in. A nil *PaneMap
// resolves nothing.
type PaneMap struct {
	targets map[int]string // pane shell PID -> "session:window.pane"
	parent  func(pid int) int
}

// LoadPanes lists every tmux pane. It returns nil when tmux is missing, has
// no server, or does not answer before ctx ends.
func LoadPanes(ctx context.Context) *PaneMap {
	out, err := exec.CommandContext(ctx, "tmux", "list-panes", "-a", "-F", paneFormat).Output()
	if err != nil {
		return nil
	}
	targets := parsePanes(string(out))
	if len(targets) == 0 {
		return nil
	}
	return newPaneMap(targets)
}

func newPaneMap(targets map[int]string) *PaneMap {
	return &PaneMap{targets: targets, parent: parentPID}
}

// parsePanes reads list-panes output written with paneFormat. Lines without
// a numeric PID or a target are skipped.
func parsePanes(out string) map[int]string {
	targets := make(map[int]string)
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		pidField, target, ok := strings.Cut(strings.TrimSpace(sc.Text()), "\t")
		if !ok || !strings.Contains(target, ":") {
			continue
		}
		pid, err := strconv.Atoi(pidField)
		if err != nil || pid <= 0 {
			continue
		}
		targets[pid] = target
	}
	return targets
}

// Target returns the pane whose shell is pid or one of its ancestors.
func (m *PaneMap) Target(pid int) (string, bool) {
	if m == nil {
		return "", false
	}
	for i, cur := 0, pid; i < maxAncestors && cur > 1; i++ {
		if target, ok := m.targets[cur]; ok {
			return target, true
		}
		next := m.parent(cur)
		if next == cur {
			break
		}
		cur = next
	}
	return "", false
}

// parentPID returns the parent of pid, or 0 when it cannot be read.
func parentPID(pid int) int {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	ppid, err := p.Ppid()
	if err != nil {
		return 0
	}
	return int(ppid)
}

// FocusPane switches the attached tmux client to target and selects the
// pane.
func FocusPane(ctx context.Context, target string) error {
	if target == "" {
		return errors.New("empty tmux target")
	}
	path, err := exec.LookPath("tmux")
	if err != nil {
		return err
	}
	session, _, _ := strings.Cut(target, ":")
	for _, args := range [][]string{
		{"switch-client", "-t", session},
		{"select-window", "-t", target},
		{"select-pane", "-t", target},
	} {
		out, err := exec.CommandContext(ctx, path, args...).CombinedOutput()
		if err != nil && args[0] != "switch-client" {
			return fmt.Errorf("tmux %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
		}
	}
	return nil
}
