package monitor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"time"

	"github.com/agent-racer/sessionwatch/internal/session"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Project identifies one project present in a scan.
type Project struct {
	Name string
	Path string
}

// WorkSource supplies in-progress work items for the projects of a scan.
type WorkSource interface {
	InProgress(ctx context.Context, projects []Project) ([]session.WorkItem, error)
}

// Enricher adds optional annotations to classified sessions.
type Enricher interface {
	Enrich(ctx context.Context, views []session.SessionView)
}

type Options struct {
	Workers          int
	FileTimeout      time.Duration
	TailRecords      int
	PreviewLength    int
	CacheSize        int
	WorkSource       WorkSource
	WorkTimeout      time.Duration
	Enricher         Enricher
	EnrichTimeout    time.Duration
	FailureThreshold int
	Logger           *slog.Logger
	Now              func() time.Time
}

const (
	defaultWorkers       = 8
	defaultFileTimeout   = 2 * time.Second
	defaultWorkTimeout   = 1500 * time.Millisecond
	defaultEnrichTimeout = time.Second
	defaultCacheSize     = 1024
)

func (o *Options) applyDefaults() {
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	if o.FileTimeout <= 0 {
		o.FileTimeout = defaultFileTimeout
	}
	if o.TailRecords <= 0 {
		o.TailRecords = 10
	}
	if o.PreviewLength <= 0 {
		o.PreviewLength = DefaultPreviewLength
	}
	if o.CacheSize == 0 {
		o.CacheSize = defaultCacheSize
	}
	if o.WorkTimeout <= 0 {
		o.WorkTimeout = defaultWorkTimeout
	}
	if o.EnrichTimeout <= 0 {
		o.EnrichTimeout = defaultEnrichTimeout
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = DefaultFailureThreshold
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Scanner builds snapshots of the session logs under a projects root. It is
// safe for concurrent use; concurrent builds with the same arguments share
// one scan. A negative CacheSize disables the tail cache.
type Scanner struct {
	opts       Options
	logger     *slog.Logger
	enum       *Enumerator
	cache      *tailCache
	classifier Classifier
	health     *scanHealth
	group      singleflight.Group
	readFile   func(path string, records int) (Tail, error)
}

func NewScanner(opts Options) *Scanner {
	opts.applyDefaults()
	return &Scanner{
		opts:       opts,
		logger:     opts.Logger,
		enum:       NewEnumerator(opts.Logger),
		cache:      newTailCache(opts.CacheSize),
		classifier: Classifier{PreviewLength: opts.PreviewLength},
		health:     newScanHealth(),
		readFile:   ReadTail,
	}
}

// BuildSnapshot scans root with a throwaway Scanner.
func BuildSnapshot(ctx context.Context, root string, idleThreshold, recency time.Duration) (*session.Snapshot, error) {
	return NewScanner(Options{}).BuildSnapshot(ctx, root, idleThreshold, recency)
}

// BuildSnapshot enumerates the logs modified within recency, classifies each
// on the worker pool and assembles one snapshot. A file that cannot be read
// becomes an unknown session; a file that vanished is left out. Only a
// missing or unreadable root, or cancellation, returns an error.
//
// The shared scan does not observe any single caller's cancellation: a
// caller whose ctx ends returns at once while the scan finishes for the
// others, bounded by the file, work and enrich timeouts.
func (s *Scanner) BuildSnapshot(ctx context.Context, root string, idleThreshold, recency time.Duration) (*session.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%s\x00%d\x00%d", root, idleThreshold, recency)
	bctx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		return s.build(bctx, root, idleThreshold, recency)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*session.Snapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Health reports scan health.
func (s *Scanner) Health() HealthReport {
	r := s.health.report(s.opts.FailureThreshold)
	r.CachedTails = s.cache.len()
	return r
}

// HealthChanged is Health plus whether the status changed since the last
// call.
func (s *Scanner) HealthChanged() (HealthReport, bool) {
	r, changed := s.health.reportAndEmit(s.opts.FailureThreshold)
	r.CachedTails = s.cache.len()
	return r, changed
}

func (s *Scanner) build(ctx context.Context, root string, idleThreshold, recency time.Duration) (*session.Snapshot, error) {
	started := time.Now()
	now := s.opts.Now()

	files, err := s.enum.Discover(root, recency, now)
	if err != nil {
		s.health.recordScanFailure(err)
		return nil, err
	}

	results := make([]*session.SessionView, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if v, ok := s.scanFile(gctx, f, now, idleThreshold); ok {
				results[i] = &v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(files))
	for _, f := range files {
		seen[f.Path] = true
	}
	s.health.retain(seen)

	views := s.enrich(ctx, dedupeSessions(results))

	items := s.workItems(ctx, views)

	snap := session.NewSnapshot(now, views, items)
	s.health.recordScanSuccess(now, time.Since(started), len(snap.ActiveSessions))
	s.logger.Debug("scan complete",
		"root", root,
		"files", len(files),
		"sessions", len(snap.ActiveSessions),
		"waiting", snap.WaitingCount,
		"took", time.Since(started))
	return snap, nil
}

// scanFile classifies one log. The boolean is false when the file should be
// left out of the snapshot.
func (s *Scanner) scanFile(ctx context.Context, f SessionFile, now time.Time, idleThreshold time.Duration) (session.SessionView, bool) {
	view := session.SessionView{
		SessionID:    canonicalSessionID(SessionIDFromPath(f.Path)),
		ProjectPath:  f.ProjectPath,
		ProjectName:  f.ProjectName,
		State:        session.Unknown,
		LastActivity: f.ModTime,
		IdleSeconds:  idleSeconds(now, f.ModTime),
		CurrentAgent: session.AgentInfo{Type: session.AgentMain, Model: unknownModel},
		LogPath:      f.Path,
		ModTime:      f.ModTime,
	}

	tail, err := s.readTail(ctx, f)
	if err != nil {
		if ctx.Err() != nil {
			return view, false
		}
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("session log vanished", "path", f.Path)
			return view, false
		}
		s.health.recordFileFailure(f.Path, err)
		s.logger.Warn("session log unreadable", "path", f.Path, "error", err)
		return view, true
	}
	s.health.recordFileSuccess(f.Path)

	c := s.classifier.Classify(tail, f.ModTime, now, idleThreshold)
	if c.SessionID != "" {
		view.SessionID = canonicalSessionID(c.SessionID)
	}
	view.State = c.State
	view.LastActivity = c.LastActivity
	view.CurrentAgent = c.Agent
	view.LastTool = c.LastTool
	view.LastMessagePreview = c.Preview
	view.PendingApproval = c.PendingApproval
	return view, true
}

// readTail reads the tail of f, from the cache when the file is unchanged,
// giving up after the per-file timeout.
func (s *Scanner) readTail(ctx context.Context, f SessionFile) (Tail, error) {
	if tail, ok := s.cache.get(f.Path, f.ModTime, f.Size); ok {
		return tail, nil
	}

	fctx, cancel := context.WithTimeout(ctx, s.opts.FileTimeout)
	defer cancel()

	type result struct {
		tail Tail
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		tail, err := s.readFile(f.Path, s.opts.TailRecords)
		ch <- result{tail, err}
	}()

	select {
	case r := <-ch:
		if r.err == nil {
			s.cache.put(f.Path, f.ModTime, f.Size, r.tail)
		}
		return r.tail, r.err
	case <-fctx.Done():
		return Tail{}, fmt.Errorf("read %s: %w", f.Path, fctx.Err())
	}
}

// enrich annotates a copy of views. If the enricher does not return within
// the enrich timeout the views come back without annotations.
func (s *Scanner) enrich(ctx context.Context, views []session.SessionView) []session.SessionView {
	if s.opts.Enricher == nil || len(views) == 0 {
		return views
	}

	ectx, cancel := context.WithTimeout(ctx, s.opts.EnrichTimeout)
	defer cancel()

	annotated := append([]session.SessionView(nil), views...)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.opts.Enricher.Enrich(ectx, annotated)
	}()

	select {
	case <-done:
		return annotated
	case <-ectx.Done():
		s.logger.Warn("session annotations timed out", "timeout", s.opts.EnrichTimeout)
		return views
	}
}

// workItems fetches in-progress work for the scanned projects without
// waiting longer than the work timeout. Failures are logged and omitted.
func (s *Scanner) workItems(ctx context.Context, views []session.SessionView) []session.WorkItem {
	if s.opts.WorkSource == nil || len(views) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var projects []Project
	for _, v := range views {
		if seen[v.ProjectName] {
			continue
		}
		seen[v.ProjectName] = true
		projects = append(projects, Project{Name: v.ProjectName, Path: v.ProjectPath})
	}

	wctx, cancel := context.WithTimeout(ctx, s.opts.WorkTimeout)
	defer cancel()

	type result struct {
		items []session.WorkItem
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		items, err := s.opts.WorkSource.InProgress(wctx, projects)
		ch <- result{items, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			s.logger.Warn("work items unavailable", "error", r.err)
			return nil
		}
		return r.items
	case <-wctx.Done():
		s.logger.Warn("work items timed out", "timeout", s.opts.WorkTimeout)
		return nil
	}
}

// dedupeSessions keeps one view per session id, the most recently written.
func dedupeSessions(results []*session.SessionView) []session.SessionView {
	byID := make(map[string]int)
	var views []session.SessionView
	for _, v := range results {
		if v == nil {
			continue
		}
		if i, ok := byID[v.SessionID]; ok {
			if v.ModTime.After(views[i].ModTime) {
				views[i] = *v
			}
			continue
		}
		byID[v.SessionID] = len(views)
		views = append(views, *v)
	}
	sort.SliceStable(views, func(i, j int) bool { return views[i].LogPath < views[j].LogPath })
	return views
}

// canonicalSessionID lowercases and normalises UUID-shaped ids.
func canonicalSessionID(id string) string {
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return id
}

func idleSeconds(now, mtime time.Time) int {
	d := now.Sub(mtime)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}
