package monitor

import (
	"testing"
	"time"
)

func TestParseRecordKinds(t *testing.T) {
	tests := []struct {
		line string
		want RecordKind
	}{
		{`{"type":"user","message":{"role":"user","content":"hello"}}`, KindUser},
		{`{"type":"assistant","message":{"content":[{"type":"text","text":"hi"}]}}`, KindAssistant},
		{`{"type":"summary","summary":"Refactor"}`, KindUnknown},
		{`{"type":"system","content":"compacted"}`, KindUnknown},
		{`{"message":{}}`, KindUnknown},
		{`{"type":"assistant","message":{"content":{"type":"text"}}}`, KindUnknown},
		{`{"type":"assistant","message":"oops"}`, KindUnknown},
		{`{"type":"user","message":{"content":[{"type":"tool_result","content":"ok"}]}}`, KindUser},
		{`{"type":"assist`, KindUnknown},
		{`[1,2,3]`, KindUnknown},
		{`null`, KindUnknown},
	}

	for _, tt := range tests {
		got := ParseRecord([]byte(tt.line)).Kind
		if got != tt.want {
			t.Errorf("ParseRecord(%s).Kind = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestParseRecordFields(t *testing.T) {
	line := `{"type":"assistant","sessionId":"sess-1","isSidechain":true,"timestamp":"2026-01-30T10:00:03.000Z",` +
		`"message":{"model":"claude-opus-4-5-20251101","content":[` +
		`{"type":"thinking","thinking":"hmm"},` +
		`{"type":"text","text":"Running it"},` +
		`{"type":"tool_use","id":"toolu_1","name":"Bash","input":{"command":"go test ./..."}}]}}`

	rec := ParseRecord([]byte(line))
	if rec.Kind != KindAssistant {
		t.Fatalf("Kind = %v, want assistant", rec.Kind)
	}
	if rec.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", rec.SessionID)
	}
	if !rec.IsSidechain {
		t.Error("IsSidechain = false, want true")
	}
	if rec.Model != "claude-opus-4-5-20251101" {
		t.Errorf("Model = %q", rec.Model)
	}
	want := time.Date(2026, 1, 30, 10, 0, 3, 0, time.UTC)
	if !rec.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", rec.Timestamp, want)
	}
	if len(rec.Content) != 3 {
		t.Fatalf("len(Content) = %d, want 3", len(rec.Content))
	}
	if rec.Content[0].Type != BlockOther || rec.Content[1].Type != BlockText || rec.Content[2].Type != BlockToolUse {
		t.Errorf("block types = %v %v %v", rec.Content[0].Type, rec.Content[1].Type, rec.Content[2].Type)
	}
	if rec.Text() != "Running it" {
		t.Errorf("Text() = %q, want %q", rec.Text(), "Running it")
	}
	uses := rec.ToolUses()
	if len(uses) != 1 || uses[0].Name != "Bash" {
		t.Fatalf("ToolUses() = %+v", uses)
	}
	if string(uses[0].Input) != `{"command":"go test ./..."}` {
		t.Errorf("Input = %s", uses[0].Input)
	}
}

func TestParseRecordStringContent(t *testing.T) {
	rec := ParseRecord([]byte(`{"type":"user","message":{"role":"user","content":"fix the bug"}}`))
	if rec.Text() != "fix the bug" {
		t.Errorf("Text() = %q, want %q", rec.Text(), "fix the bug")
	}
}

func TestParseRecordBadTimestamp(t *testing.T) {
	rec := ParseRecord([]byte(`{"type":"user","timestamp":"yesterday","message":{"content":"x"}}`))
	if rec.Kind != KindUser {
		t.Errorf("Kind = %v, want user", rec.Kind)
	}
	if !rec.Timestamp.IsZero() {
		t.Errorf("Timestamp = %v, want zero", rec.Timestamp)
	}
}

func TestRecordKindString(t *testing.T) {
	if KindUser.String() != "user" || KindAssistant.String() != "assistant" || KindUnknown.String() != "unknown" {
		t.Error("unexpected kind names")
	}
	if RecordKind(9).String() != "unknown" {
		t.Errorf("RecordKind(9) = %q, want unknown", RecordKind(9).String())
	}
}
