package monitor

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrRootNotFound   = errors.New("projects root not found")
	ErrRootUnreadable = errors.New("projects root unreadable")
)

// SessionFile is one candidate log found by the enumerator.
type SessionFile struct {
	Path        string
	ProjectDir  string
	ProjectPath string
	ProjectName string
	ModTime     time.Time
	Size        int64
}

// SessionIDFromPath returns the file stem of a session log.
func SessionIDFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".jsonl")
}

type projectLabel struct {
	path string
	name string
}

// Enumerator lists recent session logs under a projects root. Decoded
// project labels are cached per directory name for its lifetime.
type Enumerator struct {
	logger *slog.Logger

	mu     sync.Mutex
	labels map[string]projectLabel
}

func NewEnumerator(logger *slog.Logger) *Enumerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enumerator{logger: logger, labels: make(map[string]projectLabel)}
}

// DiscoverSessionFiles lists the logs under root modified within recency of
// now, using a fresh Enumerator.
func DiscoverSessionFiles(root string, recency time.Duration, now time.Time) ([]SessionFile, error) {
	return NewEnumerator(nil).Discover(root, recency, now)
}

// Discover returns the top-level *.jsonl files of each project directory
// under root whose modification time is within recency of now, sorted by
// project and path. Sub-agent transcripts (agent-*.jsonl), symlinks and
// empty files are skipped. An unreadable project directory is logged and
// skipped; only a missing or unreadable root is an error.
func (e *Enumerator) Discover(root string, recency time.Duration, now time.Time) ([]SessionFile, error) {
	info, err := os.Stat(root)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrRootNotFound, root)
	case err != nil:
		return nil, fmt.Errorf("%w: %s: %v", ErrRootUnreadable, root, err)
	case !info.IsDir():
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRootNotFound, root)
	}

	projects, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRootUnreadable, root, err)
	}

	var files []SessionFile
	for _, proj := range projects {
		if !proj.IsDir() {
			continue
		}
		projDir := filepath.Join(root, proj.Name())
		entries, err := os.ReadDir(projDir)
		if err != nil {
			e.logger.Warn("skipping unreadable project directory", "dir", projDir, "error", err)
			continue
		}

		var label *projectLabel
		for _, entry := range entries {
			name := entry.Name()
			if !strings.HasSuffix(name, ".jsonl") || strings.HasPrefix(name, "agent-") {
				continue
			}
			if !entry.Type().IsRegular() {
				continue
			}
			fi, err := entry.Info()
			if err != nil || fi.Size() == 0 {
				continue
			}
			if now.Sub(fi.ModTime()) > recency {
				continue
			}

			if label == nil {
				l := e.label(proj.Name())
				label = &l
			}
			files = append(files, SessionFile{
				Path:        filepath.Join(projDir, name),
				ProjectDir:  proj.Name(),
				ProjectPath: label.path,
				ProjectName: label.name,
				ModTime:     fi.ModTime(),
				Size:        fi.Size(),
			})
		}
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].ProjectName != files[j].ProjectName {
			return files[i].ProjectName < files[j].ProjectName
		}
		return files[i].Path < files[j].Path
	})
	return files, nil
}

func (e *Enumerator) label(dirName string) projectLabel {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l, ok := e.labels[dirName]; ok {
		return l
	}
	path := DecodeProjectPath(dirName)
	l := projectLabel{path: path, name: filepath.Base(path)}
	e.labels[dirName] = l
	return l
}

// DecodeProjectPath reverses the directory encoding of a project path
// (/home/user/proj is stored as -home-user-proj). The encoding is ambiguous
// for names containing dashes, so existing paths that keep trailing dashes
// literal are preferred; otherwise every dash becomes a separator. Names
// not starting with a dash are returned as is.
func DecodeProjectPath(encoded string) string {
	decoded, err := url.PathUnescape(encoded)
	if err != nil {
		decoded = encoded
	}
	if !strings.HasPrefix(decoded, "-") {
		return decoded
	}

	naive := strings.ReplaceAll(decoded, "-", "/")
	if _, err := os.Stat(naive); err == nil {
		return naive
	}

	parts := strings.Split(decoded[1:], "-")
	for numSlashes := len(parts) - 1; numSlashes > 0; numSlashes-- {
		candidate := "/" + strings.Join(parts[:numSlashes], "/") + "/" + strings.Join(parts[numSlashes:], "-")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return naive
}
