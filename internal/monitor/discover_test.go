package monitor

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeSession creates root/project/name with content and sets its mtime.
func writeSession(t *testing.T, root, project, name, content string, mtime time.Time) string {
	t.Helper()
	dir := filepath.Join(root, project)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDiscoverSessionFiles(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	line := userLine("s") + "\n"

	writeSession(t, root, "-home-user-alpha", "a1.jsonl", line, now.Add(-time.Minute))
	writeSession(t, root, "-home-user-alpha", "old.jsonl", line, now.Add(-time.Hour))
	writeSession(t, root, "-home-user-alpha", "agent-123.jsonl", line, now)
	writeSession(t, root, "-home-user-alpha", "empty.jsonl", "", now)
	writeSession(t, root, "-home-user-alpha", "notes.txt", line, now)
	writeSession(t, root, "beta", "b1.jsonl", line, now)
	writeSession(t, root, "beta/nested", "deep.jsonl", line, now)

	target := writeSession(t, t.TempDir(), "x", "target.jsonl", line, now)
	if err := os.Symlink(target, filepath.Join(root, "beta", "link.jsonl")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "stray.jsonl"), []byte(line), 0644); err != nil {
		t.Fatal(err)
	}

	files, err := DiscoverSessionFiles(root, 10*time.Minute, now)
	if err != nil {
		t.Fatalf("DiscoverSessionFiles error: %v", err)
	}

	got := map[string]SessionFile{}
	for _, f := range files {
		got[filepath.Base(f.Path)] = f
	}
	if len(got) != 2 {
		t.Fatalf("found %d files (%v), want a1.jsonl and b1.jsonl", len(got), got)
	}
	a1, ok := got["a1.jsonl"]
	if !ok {
		t.Fatal("a1.jsonl not found")
	}
	if a1.ProjectName != "alpha" || a1.ProjectPath != "/home/user/alpha" {
		t.Errorf("a1 project = %q %q, want alpha /home/user/alpha", a1.ProjectName, a1.ProjectPath)
	}
	b1, ok := got["b1.jsonl"]
	if !ok {
		t.Fatal("b1.jsonl not found")
	}
	if b1.ProjectName != "beta" || b1.ProjectPath != "beta" {
		t.Errorf("b1 project = %q %q, want beta beta", b1.ProjectName, b1.ProjectPath)
	}
	if files[0].ProjectName != "alpha" {
		t.Errorf("files not sorted by project: first is %q", files[0].ProjectName)
	}
}

func TestDiscoverRecencyBoundary(t *testing.T) {
	root := t.TempDir()
	now := time.Now().Truncate(time.Second)
	recency := 10 * time.Minute
	line := userLine("s") + "\n"

	writeSession(t, root, "p", "edge.jsonl", line, now.Add(-recency))
	writeSession(t, root, "p", "past.jsonl", line, now.Add(-recency-time.Second))

	files, err := DiscoverSessionFiles(root, recency, now)
	if err != nil {
		t.Fatalf("DiscoverSessionFiles error: %v", err)
	}
	if len(files) != 1 || filepath.Base(files[0].Path) != "edge.jsonl" {
		t.Errorf("files = %+v, want only edge.jsonl", files)
	}
}

func TestDiscoverRootErrors(t *testing.T) {
	_, err := DiscoverSessionFiles(filepath.Join(t.TempDir(), "missing"), time.Minute, time.Now())
	if !errors.Is(err, ErrRootNotFound) {
		t.Errorf("missing root error = %v, want ErrRootNotFound", err)
	}

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	_, err = DiscoverSessionFiles(file, time.Minute, time.Now())
	if !errors.Is(err, ErrRootNotFound) {
		t.Errorf("file root error = %v, want ErrRootNotFound", err)
	}
}

func TestDiscoverUnreadableRoot(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits not enforced")
	}
	root := t.TempDir()
	if err := os.Chmod(root, 0); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(root, 0755)

	_, err := DiscoverSessionFiles(root, time.Minute, time.Now())
	if !errors.Is(err, ErrRootUnreadable) {
		t.Errorf("error = %v, want ErrRootUnreadable", err)
	}
}

func TestDiscoverSkipsUnreadableProject(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits not enforced")
	}
	root := t.TempDir()
	now := time.Now()
	writeSession(t, root, "ok", "a.jsonl", userLine("s")+"\n", now)
	writeSession(t, root, "locked", "b.jsonl", userLine("s")+"\n", now)
	locked := filepath.Join(root, "locked")
	if err := os.Chmod(locked, 0); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(locked, 0755)

	files, err := NewEnumerator(discardLogger()).Discover(root, time.Minute, now)
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}
	if len(files) != 1 || files[0].ProjectName != "ok" {
		t.Errorf("files = %+v, want only the readable project", files)
	}
}

func TestDecodeProjectPath(t *testing.T) {
	base := t.TempDir()
	existing := filepath.Join(base, "my-app")
	if err := os.MkdirAll(existing, 0755); err != nil {
		t.Fatal(err)
	}
	encodedExisting := filepathToEncoded(existing)

	tests := []struct {
		name    string
		encoded string
		want    string
	}{
		{"naive decode", "-home-nobody-code-proj", "/home/nobody/code/proj"},
		{"trailing dash kept when path exists", encodedExisting, existing},
		{"verbatim name", "plain-name", "plain-name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeProjectPath(tt.encoded); got != tt.want {
				t.Errorf("DecodeProjectPath(%q) = %q, want %q", tt.encoded, got, tt.want)
			}
		})
	}
}

func filepathToEncoded(path string) string {
	out := []byte(filepath.ToSlash(path))
	for i, c := range out {
		if c == '/' {
			out[i] = '-'
		}
	}
	return string(out)
}

func TestEnumeratorCachesLabels(t *testing.T) {
	e := NewEnumerator(discardLogger())
	first := e.label("-home-user-app")
	if first.name != "app" || first.path != "/home/user/app" {
		t.Errorf("label = %+v", first)
	}
	e.labels["-home-user-app"] = projectLabel{path: "/cached", name: "cached"}
	if got := e.label("-home-user-app"); got.name != "cached" {
		t.Errorf("label not served from cache: %+v", got)
	}
}
