// Package mock writes synthetic session logs so the scanner can be run
// without real agents.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	defaultInterval = time.Second
	// idleAge backdates the idle session past the default idle threshold
	// while keeping it inside the default recency window.
	idleAge = 7 * time.Minute
)

type mockSession struct {
	id      string
	project string // encoded project dir name
	model   string
	pattern string
	tools   []toolCall
	toolIdx int
	path    string
}

type toolCall struct {
	name  string
	input map[string]any
}

var mockSessions = []mockSession{
	{
		project: "-home-user-myproject", model: "claude-opus-4-5-20251101", pattern: "steady",
		tools: []toolCall{
			{"Read", map[string]any{"file_path": "/home/user/myproject/main.go"}},
			{"Grep", map[string]any{"pattern": "func New", "path": "/home/user/myproject"}},
			{"Edit", map[string]any{"file_path": "/home/user/myproject/server.go", "old_string": "a", "new_string": "b"}},
		},
	},
	{
		project: "-home-user-webapp", model: "claude-sonnet-4-5-20250929", pattern: "approval",
		tools: []toolCall{
			{"Bash", map[string]any{"command": "npm install", "description": "Install dependencies"}},
			{"Bash", map[string]any{"command": "npm test -- --watch=false", "description": "Run tests"}},
		},
	},
	{
		project: "-home-user-migrations", model: "claude-opus-4-5-20251101", pattern: "question",
		tools: []toolCall{
			{"AskUserQuestion", map[string]any{"questions": []map[string]any{
				{"question": "Should the migration drop the legacy table?", "header": "Migration"},
			}}},
		},
	},
	{
		project: "-home-user-frontend", model: "claude-sonnet-4-5-20250929", pattern: "stall",
	},
	{
		project: "-home-user-library", model: "claude-haiku-4-5-20251001", pattern: "idle",
	},
}

// Generator appends records to a handful of session logs under root, each
// following its own pattern through the processing, approval, question and
// idle states.
type Generator struct {
	root     string
	interval time.Duration
	logger   *slog.Logger
	sessions []*mockSession
}

func NewGenerator(root string, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{root: root, interval: defaultInterval, logger: logger}
}

func (g *Generator) Root() string { return g.root }

// Start creates the session logs and appends to them every interval until
// ctx is cancelled.
func (g *Generator) Start(ctx context.Context) error {
	now := time.Now()
	g.sessions = make([]*mockSession, 0, len(mockSessions))
	for _, tmpl := range mockSessions {
		ms := tmpl
		ms.id = uuid.NewString()
		dir := filepath.Join(g.root, ms.project)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create mock project: %w", err)
		}
		ms.path = filepath.Join(dir, ms.id+".jsonl")

		if err := g.appendLine(&ms, userPrompt(ms.id, now, "Take a look at the open issues.")); err != nil {
			return err
		}
		if ms.pattern == "idle" {
			if err := g.appendLine(&ms, assistantText(ms.id, ms.model, now, "All done, the release is tagged.")); err != nil {
				return err
			}
			past := now.Add(-idleAge)
			if err := os.Chtimes(ms.path, past, past); err != nil {
				return fmt.Errorf("backdate mock session: %w", err)
			}
		}
		g.sessions = append(g.sessions, &ms)
	}

	g.logger.Info("mock sessions started", "root", g.root, "sessions", len(g.sessions))
	go g.run(ctx)
	return nil
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			if err := g.step(tick, time.Now()); err != nil {
				g.logger.Warn("mock step failed", "error", err)
			}
		}
	}
}

// step advances every session by one tick.
func (g *Generator) step(tick int, now time.Time) error {
	for _, ms := range g.sessions {
		line, ok := ms.next(tick, now)
		if !ok {
			continue
		}
		if err := g.appendLine(ms, line); err != nil {
			return err
		}
	}
	return nil
}

// next returns the record a session writes on tick, or false when it holds
// its current state.
func (ms *mockSession) next(tick int, now time.Time) (string, bool) {
	switch ms.pattern {
	case "steady":
		switch tick % 4 {
		case 0:
			return userPrompt(ms.id, now, "Keep going."), true
		case 1:
			return ms.toolUse(now), true
		case 2:
			return toolResult(ms.id, now), true
		default:
			return assistantText(ms.id, ms.model, now, "Refactored the handler and the tests pass."), true
		}
	case "approval":
		switch phase := tick % 16; {
		case phase == 0:
			return userPrompt(ms.id, now, "Set up the project and run the tests."), true
		case phase == 1:
			return ms.toolUse(now), true
		case phase == 12:
			return toolResult(ms.id, now), true
		case phase == 13:
			return assistantText(ms.id, ms.model, now, "Dependencies installed and the suite is green."), true
		}
	case "question":
		switch phase := tick % 20; {
		case phase == 0:
			return userPrompt(ms.id, now, "Plan the schema migration."), true
		case phase == 1:
			return ms.toolUse(now), true
		case phase == 16:
			return toolResult(ms.id, now), true
		case phase == 17:
			return assistantText(ms.id, ms.model, now, "Migration written; the legacy table is kept."), true
		}
	case "stall":
		switch tick % 30 {
		case 0:
			return userPrompt(ms.id, now, "What is left on the checklist?"), true
		case 1:
			return assistantText(ms.id, ms.model, now, "Two items remain: the changelog and the docs. Want me to start on either?"), true
		}
	}
	return "", false
}

func (ms *mockSession) toolUse(now time.Time) string {
	if len(ms.tools) == 0 {
		return assistantText(ms.id, ms.model, now, "Thinking it over.")
	}
	call := ms.tools[ms.toolIdx%len(ms.tools)]
	ms.toolIdx++
	return assistantToolUse(ms.id, ms.model, now, call)
}

func (g *Generator) appendLine(ms *mockSession, line string) error {
	f, err := os.OpenFile(ms.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open mock session: %w", err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("append mock session: %w", err)
	}
	return f.Close()
}

type entry struct {
	Type      string  `json:"type"`
	SessionID string  `json:"sessionId"`
	Timestamp string  `json:"timestamp"`
	Message   message `json:"message"`
}

type message struct {
	Role    string `json:"role"`
	Model   string `json:"model,omitempty"`
	Content any    `json:"content"`
}

func encode(e entry) string {
	data, err := json.Marshal(e)
	if err != nil {
		panic(err)
	}
	return string(data)
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func userPrompt(id string, now time.Time, text string) string {
	return encode(entry{
		Type: "user", SessionID: id, Timestamp: stamp(now),
		Message: message{Role: "user", Content: text},
	})
}

func toolResult(id string, now time.Time) string {
	return encode(entry{
		Type: "user", SessionID: id, Timestamp: stamp(now),
		Message: message{Role: "user", Content: []map[string]any{
			{"type": "tool_result", "tool_use_id": "toolu_mock", "content": "ok"},
		}},
	})
}

func assistantText(id, model string, now time.Time, text string) string {
	return encode(entry{
		Type: "assistant", SessionID: id, Timestamp: stamp(now),
		Message: message{Role: "assistant", Model: model, Content: []map[string]any{
			{"type": "text", "text": text},
		}},
	})
}

func assistantToolUse(id, model string, now time.Time, call toolCall) string {
	return encode(entry{
		Type: "assistant", SessionID: id, Timestamp: stamp(now),
		Message: message{Role: "assistant", Model: model, Content: []map[string]any{
			{"type": "tool_use", "id": "toolu_mock", "name": call.name, "input": call.input},
		}},
	})
}
