package session

import (
	"encoding/json"
	"sort"
	"time"
)

// WorkItem is an externally sourced in-progress work item. Item is passed
// through untouched.
type WorkItem struct {
	ProjectName string          `json:"project_name"`
	Item        json.RawMessage `json:"item"`
}

// Snapshot is one consistent, point-in-time view of all active sessions.
// A published Snapshot must not be mutated; use Clone for a private copy.
type Snapshot struct {
	Timestamp           time.Time     `json:"timestamp"`
	ActiveSessions      []SessionView `json:"active_sessions"`
	WaitingCount        int           `json:"waiting_count"`
	ProcessingCount     int           `json:"processing_count"`
	ProjectsWithWaiting []string      `json:"projects_with_waiting"`
	BeadsInProgress     []WorkItem    `json:"beads_in_progress"`
}

// NewSnapshot assembles a Snapshot from a finished set of session views.
// Counts and projects_with_waiting are derived here and nowhere else, so
// they always agree with the session list. Sessions are ordered by most
// recent activity first, then by session id.
func NewSnapshot(ts time.Time, sessions []SessionView, items []WorkItem) *Snapshot {
	views := make([]SessionView, len(sessions))
	copy(views, sessions)
	sort.SliceStable(views, func(i, j int) bool {
		if !views[i].LastActivity.Equal(views[j].LastActivity) {
			return views[i].LastActivity.After(views[j].LastActivity)
		}
		return views[i].SessionID < views[j].SessionID
	})

	snap := &Snapshot{
		Timestamp:           ts,
		ActiveSessions:      views,
		ProjectsWithWaiting: []string{},
		BeadsInProgress:     []WorkItem{},
	}
	if items != nil {
		snap.BeadsInProgress = append(snap.BeadsInProgress, items...)
	}

	seen := make(map[string]bool)
	for _, v := range views {
		switch {
		case v.State.IsWaiting():
			snap.WaitingCount++
			if !seen[v.ProjectName] {
				seen[v.ProjectName] = true
				snap.ProjectsWithWaiting = append(snap.ProjectsWithWaiting, v.ProjectName)
			}
		case v.State == Processing:
			snap.ProcessingCount++
		}
	}
	sort.Strings(snap.ProjectsWithWaiting)
	return snap
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.ActiveSessions = make([]SessionView, len(s.ActiveSessions))
	for i, v := range s.ActiveSessions {
		c.ActiveSessions[i] = v.Clone()
	}
	c.ProjectsWithWaiting = append([]string{}, s.ProjectsWithWaiting...)
	c.BeadsInProgress = append([]WorkItem{}, s.BeadsInProgress...)
	return &c
}

// Session returns the view with the given id.
func (s *Snapshot) Session(id string) (SessionView, bool) {
	if s == nil {
		return SessionView{}, false
	}
	for _, v := range s.ActiveSessions {
		if v.SessionID == id {
			return v, true
		}
	}
	return SessionView{}, false
}

// CountByState tallies sessions per state.
func (s *Snapshot) CountByState() map[State]int {
	counts := make(map[State]int)
	if s == nil {
		return counts
	}
	for _, v := range s.ActiveSessions {
		counts[v.State]++
	}
	return counts
}
