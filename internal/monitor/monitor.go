package monitor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/agent-racer/sessionwatch/internal/session"
	"github.com/fsnotify/fsnotify"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultDebounce     = 250 * time.Millisecond
)

// Publisher receives every snapshot the monitor publishes and every health
// status transition.
type Publisher interface {
	PublishSnapshot(snap *session.Snapshot, seq uint64)
	PublishHealth(report HealthReport)
}

// MonitorConfig holds the settings consulted on each poll.
type MonitorConfig struct {
	Root          string
	IdleThreshold time.Duration
	RecencyWindow time.Duration
	PollInterval  time.Duration
	Debounce      time.Duration
	WatchFiles    bool
}

// Monitor rebuilds the snapshot on a fixed interval, and shortly after
// session logs are written when WatchFiles is set, publishing each result
// to the store.
type Monitor struct {
	mu            sync.RWMutex // protects cfg and scanner
	cfg           MonitorConfig
	scanner       *Scanner
	store         *session.Store
	publisher     Publisher
	logger        *slog.Logger
	reconfigureCh chan struct{} // buffered(1); SetConfig signals Start to re-read the poll interval
}

func NewMonitor(cfg MonitorConfig, scanner *Scanner, store *session.Store, publisher Publisher, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	return &Monitor{
		cfg:           cfg,
		scanner:       scanner,
		store:         store,
		publisher:     publisher,
		logger:        logger,
		reconfigureCh: make(chan struct{}, 1),
	}
}

// SetConfig replaces the settings used by subsequent polls, including the
// poll interval. Root and file watching are fixed when Start is called.
func (m *Monitor) SetConfig(cfg MonitorConfig) {
	m.mu.Lock()
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	m.cfg = cfg
	m.mu.Unlock()

	select {
	case m.reconfigureCh <- struct{}{}:
	default:
	}
}

// SetScanner replaces the scanner used by subsequent polls. Scan health
// starts over with the new scanner.
func (m *Monitor) SetScanner(s *Scanner) {
	m.mu.Lock()
	m.scanner = s
	m.mu.Unlock()
}

func (m *Monitor) currentScanner() *Scanner {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scanner
}

func (m *Monitor) config() MonitorConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Start polls until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	cfg := m.config()

	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer func() { ticker.Stop() }()

	var changed <-chan struct{}
	if cfg.WatchFiles {
		ch, err := m.watch(ctx, cfg.Root)
		if err != nil {
			m.logger.Warn("file watching disabled", "root", cfg.Root, "error", err)
		} else {
			changed = ch
		}
	}

	m.logger.Info("monitor started",
		"root", cfg.Root,
		"poll_interval", interval,
		"watch_files", changed != nil)

	m.poll(ctx)

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped")
			return
		case <-ticker.C:
			m.poll(ctx)
		case <-m.reconfigureCh:
			if next := m.config().PollInterval; next > 0 && next != interval {
				ticker.Stop()
				interval = next
				ticker = time.NewTicker(interval)
				m.logger.Info("poll interval changed", "poll_interval", interval)
			}
		case <-changed:
			if debounce == nil {
				debounce = time.After(m.config().Debounce)
			}
		case <-debounce:
			debounce = nil
			m.poll(ctx)
		}
	}
}

// Refresh builds a snapshot and publishes it. A snapshot older than the one
// already in the store is returned but not published.
func (m *Monitor) Refresh(ctx context.Context) (*session.Snapshot, uint64, error) {
	cfg := m.config()
	snap, err := m.currentScanner().BuildSnapshot(ctx, cfg.Root, cfg.IdleThreshold, cfg.RecencyWindow)
	if err != nil {
		return nil, 0, err
	}
	seq, _ := m.store.PublishAndNotify(snap, func(s *session.Snapshot, seq uint64) {
		if m.publisher != nil {
			m.publisher.PublishSnapshot(s, seq)
		}
	})
	return snap, seq, nil
}

// Latest returns the published snapshot, building one first when nothing
// has been published yet.
func (m *Monitor) Latest(ctx context.Context) (*session.Snapshot, uint64, error) {
	if snap, seq := m.store.Latest(); snap != nil {
		return snap, seq, nil
	}
	return m.Refresh(ctx)
}

// Health reports scan health.
func (m *Monitor) Health() HealthReport {
	return m.currentScanner().Health()
}

func (m *Monitor) poll(ctx context.Context) {
	if _, _, err := m.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Warn("scan failed", "error", err)
	}
	m.maybeEmitHealth()
}

// maybeEmitHealth logs and publishes health status transitions.
func (m *Monitor) maybeEmitHealth() {
	report, changed := m.currentScanner().HealthChanged()
	if !changed {
		return
	}
	switch report.Status {
	case StatusHealthy:
		m.logger.Info("scan health recovered")
	default:
		m.logger.Warn("scan health changed",
			"status", report.Status,
			"scan_failures", report.ScanFailures,
			"degraded_files", report.DegradedFiles,
			"last_error", report.LastError)
	}
	if m.publisher != nil {
		m.publisher.PublishHealth(report)
	}
}

// watch watches root and its project directories. The returned channel
// receives a value, coalesced, whenever a session log is created or
// written. New project directories are added as they appear.
func (m *Monitor) watch(ctx context.Context, root string) (<-chan struct{}, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(root); err != nil {
		w.Close()
		return nil, err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		w.Close()
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			m.addWatch(w, filepath.Join(root, e.Name()))
		}
	}

	changed := make(chan struct{}, 1)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&fsnotify.Create != 0 && filepath.Dir(ev.Name) == filepath.Clean(root) {
					if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
						m.addWatch(w, ev.Name)
					}
				}
				if !isLogEvent(ev) {
					continue
				}
				select {
				case changed <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				m.logger.Warn("file watcher error", "error", err)
			}
		}
	}()
	return changed, nil
}

func (m *Monitor) addWatch(w *fsnotify.Watcher, dir string) {
	if err := w.Add(dir); err != nil {
		m.logger.Debug("cannot watch project dir", "dir", dir, "error", err)
	}
}

func isLogEvent(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
		return false
	}
	base := filepath.Base(ev.Name)
	return strings.HasSuffix(base, ".jsonl") && !strings.HasPrefix(base, "agent-")
}
