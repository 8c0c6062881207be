package session

import (
	"crypto/sha256"
	"fmt"
	"path/filepath"
)

// PrivacyFilter applies masking and path-based filtering to snapshots
// before they are served to clients. The zero value is a no-op filter.
type PrivacyFilter struct {
	MaskProjectPaths bool
	MaskSessionIDs   bool
	MaskPIDs         bool
	MaskTmuxTargets  bool
	AllowedPaths     []string
	BlockedPaths     []string
}

// IsAllowed reports whether a session in the given project path should be
// served. An empty path is always allowed. When AllowedPaths is non-empty,
// the path must match at least one pattern. If it passes the allowlist, it
// must not match any BlockedPaths pattern.
func (f *PrivacyFilter) IsAllowed(projectPath string) bool {
	if projectPath == "" {
		return true
	}

	if len(f.AllowedPaths) > 0 {
		allowed := false
		for _, pattern := range f.AllowedPaths {
			if matchPathOrParent(pattern, projectPath) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	for _, pattern := range f.BlockedPaths {
		if matchPathOrParent(pattern, projectPath) {
			return false
		}
	}

	return true
}

// matchPathOrParent checks if pattern matches path or any of its parent
// directories, so "/home/user/*" matches "/home/user/work/project-a".
func matchPathOrParent(pattern, path string) bool {
	for p := path; p != "." && p != "" && p != filepath.Dir(p); p = filepath.Dir(p) {
		if matched, _ := filepath.Match(pattern, p); matched {
			return true
		}
	}
	return false
}

// Apply returns a masked copy of the view. The original is never modified.
func (f *PrivacyFilter) Apply(v SessionView) SessionView {
	masked := v.Clone()

	if f.MaskProjectPaths && masked.ProjectPath != "" {
		masked.ProjectPath = filepath.Base(masked.ProjectPath)
	}

	if f.MaskSessionIDs && masked.SessionID != "" {
		masked.SessionID = shortHash(masked.SessionID)
	}

	if f.MaskPIDs {
		masked.AgentPID = 0
	}

	if f.MaskTmuxTargets {
		masked.TmuxTarget = ""
	}

	return masked
}

// FilterSnapshot returns a new snapshot holding only the allowed sessions,
// masked. Counts are recomputed from the filtered list so they stay
// consistent with it. Work items for projects that no longer appear are
// dropped.
func (f *PrivacyFilter) FilterSnapshot(s *Snapshot) *Snapshot {
	if s == nil {
		return nil
	}
	if f.IsNoop() {
		return s
	}

	views := make([]SessionView, 0, len(s.ActiveSessions))
	projects := make(map[string]bool)
	for _, v := range s.ActiveSessions {
		if !f.IsAllowed(v.ProjectPath) {
			continue
		}
		projects[v.ProjectName] = true
		views = append(views, f.Apply(v))
	}

	var items []WorkItem
	for _, it := range s.BeadsInProgress {
		if projects[it.ProjectName] {
			items = append(items, it)
		}
	}

	return NewSnapshot(s.Timestamp, views, items)
}

// IsNoop reports whether the filter does nothing.
func (f *PrivacyFilter) IsNoop() bool {
	return !f.MaskProjectPaths && !f.MaskSessionIDs && !f.MaskPIDs && !f.MaskTmuxTargets &&
		len(f.AllowedPaths) == 0 && len(f.BlockedPaths) == 0
}

// shortHash returns a truncated SHA-256 hex digest for an opaque identifier.
func shortHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:6])
}
