package session

import (
	"encoding/json"
	"testing"
	"time"
)

var base = time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)

func view(id, project string, state State, age time.Duration) SessionView {
	return SessionView{
		SessionID:    id,
		ProjectName:  project,
		ProjectPath:  "/home/user/" + project,
		State:        state,
		LastActivity: base.Add(-age),
	}
}

func TestNewSnapshotCounts(t *testing.T) {
	snap := NewSnapshot(base, []SessionView{
		view("a", "alpha", WaitingForInput, time.Second),
		view("b", "alpha", WaitingForApproval, 2*time.Second),
		view("c", "beta", Processing, 3*time.Second),
		view("d", "gamma", WaitingForApproval, 4*time.Second),
		view("e", "delta", Idle, 5*time.Second),
		view("f", "delta", Unknown, 6*time.Second),
	}, nil)

	if snap.WaitingCount != 3 {
		t.Errorf("WaitingCount = %d, want 3", snap.WaitingCount)
	}
	if snap.ProcessingCount != 1 {
		t.Errorf("ProcessingCount = %d, want 1", snap.ProcessingCount)
	}
	want := []string{"alpha", "gamma"}
	if len(snap.ProjectsWithWaiting) != len(want) {
		t.Fatalf("ProjectsWithWaiting = %v, want %v", snap.ProjectsWithWaiting, want)
	}
	for i := range want {
		if snap.ProjectsWithWaiting[i] != want[i] {
			t.Errorf("ProjectsWithWaiting[%d] = %q, want %q", i, snap.ProjectsWithWaiting[i], want[i])
		}
	}
}

func TestNewSnapshotOrdering(t *testing.T) {
	snap := NewSnapshot(base, []SessionView{
		view("old", "p", Idle, time.Minute),
		view("b", "p", Idle, time.Second),
		view("a", "p", Idle, time.Second),
		view("new", "p", Idle, 0),
	}, nil)

	want := []string{"new", "a", "b", "old"}
	for i, id := range want {
		if snap.ActiveSessions[i].SessionID != id {
			t.Errorf("ActiveSessions[%d] = %q, want %q", i, snap.ActiveSessions[i].SessionID, id)
		}
	}
}

func TestNewSnapshotEmptyJSON(t *testing.T) {
	snap := NewSnapshot(base, nil, nil)
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	for _, key := range []string{"active_sessions", "projects_with_waiting", "beads_in_progress"} {
		arr, ok := raw[key].([]interface{})
		if !ok {
			t.Errorf("%s = %v, want empty array", key, raw[key])
			continue
		}
		if len(arr) != 0 {
			t.Errorf("%s has %d entries, want 0", key, len(arr))
		}
	}
	for _, key := range []string{"timestamp", "waiting_count", "processing_count"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("JSON should contain %q", key)
		}
	}
}

func TestNewSnapshotDoesNotAliasInput(t *testing.T) {
	in := []SessionView{view("a", "p", Idle, 0)}
	snap := NewSnapshot(base, in, nil)
	in[0].SessionID = "mutated"
	if snap.ActiveSessions[0].SessionID != "a" {
		t.Error("NewSnapshot kept a reference to the caller's slice")
	}
}

func TestSnapshotClone(t *testing.T) {
	items := []WorkItem{{ProjectName: "p", Item: json.RawMessage(`{"id":"bd-1"}`)}}
	snap := NewSnapshot(base, []SessionView{view("a", "p", WaitingForInput, 0)}, items)
	c := snap.Clone()
	c.ActiveSessions[0].State = Idle
	c.ProjectsWithWaiting[0] = "other"

	if snap.ActiveSessions[0].State != WaitingForInput {
		t.Error("Clone shares ActiveSessions")
	}
	if snap.ProjectsWithWaiting[0] != "p" {
		t.Error("Clone shares ProjectsWithWaiting")
	}
	if len(c.BeadsInProgress) != 1 {
		t.Errorf("BeadsInProgress len = %d, want 1", len(c.BeadsInProgress))
	}
}

func TestSnapshotSessionLookup(t *testing.T) {
	snap := NewSnapshot(base, []SessionView{view("a", "p", Idle, 0)}, nil)
	if _, ok := snap.Session("a"); !ok {
		t.Error("Session(a) not found")
	}
	if _, ok := snap.Session("missing"); ok {
		t.Error("Session(missing) found")
	}
	var nilSnap *Snapshot
	if _, ok := nilSnap.Session("a"); ok {
		t.Error("nil snapshot lookup returned ok")
	}
}

func TestCountByState(t *testing.T) {
	snap := NewSnapshot(base, []SessionView{
		view("a", "p", Idle, 0),
		view("b", "p", Idle, 0),
		view("c", "p", Processing, 0),
	}, nil)
	counts := snap.CountByState()
	if counts[Idle] != 2 || counts[Processing] != 1 {
		t.Errorf("CountByState = %v", counts)
	}
}
