package monitor

import (
	"sync"
	"time"
)

// HealthStatus summarises how well recent scans went.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusFailed   HealthStatus = "failed"
)

// DefaultFailureThreshold is the number of consecutive failures after which
// a file is degraded or the root is failed.
const DefaultFailureThreshold = 3

// HealthReport is served by /api/health.
type HealthReport struct {
	Status        HealthStatus `json:"status"`
	ScanFailures  int          `json:"scan_failures"`
	DegradedFiles int          `json:"degraded_files"`
	LastError     string       `json:"last_error,omitempty"`
	LastScan      time.Time    `json:"last_scan"`
	LastDuration  string       `json:"last_duration,omitempty"`
	Sessions      int          `json:"sessions"`
	CachedTails   int          `json:"cached_tails"`
}

// scanHealth tracks consecutive failure counts across scans. Scans write it
// from worker goroutines while the HTTP handler reads it.
type scanHealth struct {
	mu                sync.Mutex
	scanFailures      int
	lastScanErr       string
	lastScanFail      time.Time
	fileFailures      map[string]int // keyed by log path
	lastFileErr       string
	lastFileFail      time.Time
	lastScan          time.Time
	lastDuration      time.Duration
	sessions          int
	lastEmittedStatus HealthStatus
}

func newScanHealth() *scanHealth {
	return &scanHealth{
		fileFailures:      make(map[string]int),
		lastEmittedStatus: StatusHealthy,
	}
}

func (h *scanHealth) recordScanSuccess(at time.Time, took time.Duration, sessions int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scanFailures = 0
	h.lastScanErr = ""
	h.lastScan = at
	h.lastDuration = took
	h.sessions = sessions
}

func (h *scanHealth) recordScanFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scanFailures++
	h.lastScanErr = err.Error()
	h.lastScanFail = time.Now()
}

func (h *scanHealth) recordFileSuccess(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.fileFailures, path)
}

func (h *scanHealth) recordFileFailure(path string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fileFailures[path]++
	h.lastFileErr = err.Error()
	h.lastFileFail = time.Now()
}

// retain drops failure tracking for files no longer enumerated.
func (h *scanHealth) retain(paths map[string]bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for path := range h.fileFailures {
		if !paths[path] {
			delete(h.fileFailures, path)
		}
	}
}

// report returns a consistent copy of all health fields under the lock.
func (h *scanHealth) report(threshold int) HealthReport {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reportLocked(threshold)
}

// reportAndEmit is report plus whether the status changed since the last
// call, for logging transitions.
func (h *scanHealth) reportAndEmit(threshold int) (HealthReport, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.reportLocked(threshold)
	changed := r.Status != h.lastEmittedStatus
	if changed {
		h.lastEmittedStatus = r.Status
	}
	return r, changed
}

// reportLocked builds the report. Caller must hold h.mu.
func (h *scanHealth) reportLocked(threshold int) HealthReport {
	r := HealthReport{
		Status:        h.statusLocked(threshold),
		ScanFailures:  h.scanFailures,
		DegradedFiles: h.degradedFileCountLocked(threshold),
		LastError:     h.lastErrorLocked(),
		LastScan:      h.lastScan,
		Sessions:      h.sessions,
	}
	if h.lastDuration > 0 {
		r.LastDuration = h.lastDuration.String()
	}
	return r
}

// statusLocked computes health status. Caller must hold h.mu.
func (h *scanHealth) statusLocked(threshold int) HealthStatus {
	if h.scanFailures >= threshold {
		return StatusFailed
	}
	if h.degradedFileCountLocked(threshold) > 0 {
		return StatusDegraded
	}
	return StatusHealthy
}

func (h *scanHealth) status(threshold int) HealthStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statusLocked(threshold)
}

// degradedFileCountLocked counts files at or past the failure threshold.
// Caller must hold h.mu.
func (h *scanHealth) degradedFileCountLocked(threshold int) int {
	count := 0
	for _, failures := range h.fileFailures {
		if failures >= threshold {
			count++
		}
	}
	return count
}

func (h *scanHealth) lastError() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErrorLocked()
}

// lastErrorLocked prefers whichever of the scan or file errors happened
// more recently. Caller must hold h.mu.
func (h *scanHealth) lastErrorLocked() string {
	if h.lastScanErr != "" && (h.lastFileErr == "" || h.lastScanFail.After(h.lastFileFail)) {
		return h.lastScanErr
	}
	return h.lastFileErr
}
