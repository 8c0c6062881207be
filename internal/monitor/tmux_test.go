package monitor

import (
	"context"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParsePanes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want map[int]string
	}{
		{
			name: "several sessions",
			in:   "1234\tmain:0.0\n5678\tmain:1.0\n9012\tdev:2.1\n",
			want: map[int]string{1234: "main:0.0", 5678: "main:1.0", 9012: "dev:2.1"},
		},
		{
			name: "session name with spaces",
			in:   "  77\tmy project:3.0  \n",
			want: map[int]string{77: "my project:3.0"},
		},
		{
			name: "empty",
			in:   "",
			want: map[int]string{},
		},
		{
			name: "malformed lines skipped",
			in:   "notanumber\tmain:0.0\n1234 main:0.0\n-5\tmain:0.0\n42\t\n43\tnocolon\n44\tok:1.2\n",
			want: map[int]string{44: "ok:1.2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, parsePanes(tt.in)); diff != "" {
				t.Errorf("parsePanes() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPaneMapTarget(t *testing.T) {
	// 500 is a pane shell; 510 runs under it through 505.
	parents := map[int]int{510: 505, 505: 500, 500: 1, 900: 899, 899: 898}
	m := &PaneMap{
		targets: map[int]string{500: "work:3.1", 200: "main:0.0"},
		parent:  func(pid int) int { return parents[pid] },
	}

	tests := []struct {
		pid    int
		want   string
		wantOK bool
	}{
		{200, "main:0.0", true},
		{510, "work:3.1", true},
		{900, "", false},
		{1, "", false},
		{12345, "", false},
	}
	for _, tt := range tests {
		got, ok := m.Target(tt.pid)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Target(%d) = (%q, %v), want (%q, %v)", tt.pid, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestPaneMapTargetStopsAfterMaxAncestors(t *testing.T) {
	calls := 0
	m := &PaneMap{
		targets: map[int]string{2: "deep:0.0"},
		parent: func(pid int) int {
			calls++
			return pid - 1
		},
	}
	if got, ok := m.Target(100); ok {
		t.Errorf("Target(100) = (%q, true), want no match past %d ancestors", got, maxAncestors)
	}
	if calls != maxAncestors {
		t.Errorf("parent lookups = %d, want %d", calls, maxAncestors)
	}
}

func TestPaneMapTargetSelfParent(t *testing.T) {
	m := &PaneMap{
		targets: map[int]string{},
		parent:  func(pid int) int { return pid },
	}
	if _, ok := m.Target(50); ok {
		t.Error("Target(50) matched, want no match")
	}
}

func TestPaneMapNil(t *testing.T) {
	var m *PaneMap
	if target, ok := m.Target(100); ok {
		t.Errorf("nil PaneMap: Target(100) = (%q, true), want (\"\", false)", target)
	}
}

func TestPaneMapWalksRealParents(t *testing.T) {
	m := newPaneMap(map[int]string{os.Getppid(): "work:3.1"})
	if target, ok := m.Target(os.Getpid()); !ok || target != "work:3.1" {
		t.Errorf("Target(self) = (%q, %v), want (\"work:3.1\", true)", target, ok)
	}
}

func TestParentPID(t *testing.T) {
	if got := parentPID(os.Getpid()); got != os.Getppid() {
		t.Errorf("parentPID(self) = %d, want %d", got, os.Getppid())
	}
	if got := parentPID(1 << 30); got != 0 {
		t.Errorf("parentPID(invalid) = %d, want 0", got)
	}
}

func TestLoadPanesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if m := LoadPanes(ctx); m != nil {
		t.Errorf("LoadPanes(cancelled) = %+v, want nil", m)
	}
}

func TestFocusPaneEmptyTarget(t *testing.T) {
	if err := FocusPane(context.Background(), ""); err == nil {
		t.Error("FocusPane(\"\") should fail")
	}
}
