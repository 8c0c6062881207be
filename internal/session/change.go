package session

// NewlyWaiting returns the sessions that are waiting in curr but were absent
// or not waiting in prev, matched by session id. A nil prev means nothing
// was known before, so every waiting session in curr is new. Sessions that
// stay waiting across snapshots are reported only on the first one.
func NewlyWaiting(prev, curr *Snapshot) []SessionView {
	if curr == nil {
		return nil
	}

	wasWaiting := make(map[string]bool)
	if prev != nil {
		for _, v := range prev.ActiveSessions {
			if v.State.IsWaiting() {
				wasWaiting[v.SessionID] = true
			}
		}
	}

	var out []SessionView
	for _, v := range curr.ActiveSessions {
		if v.State.IsWaiting() && !wasWaiting[v.SessionID] {
			out = append(out, v.Clone())
		}
	}
	return out
}

// Detector remembers the last snapshot it saw and reports newly waiting
// sessions for each new one. The zero value is ready to use. A Detector is
// not safe for concurrent use.
type Detector struct {
	prev *Snapshot
}

// Observe diffs snap against the previously observed snapshot and then
// remembers snap.
func (d *Detector) Observe(snap *Snapshot) []SessionView {
	out := NewlyWaiting(d.prev, snap)
	d.prev = snap
	return out
}
