package monitor

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/agent-racer/sessionwatch/internal/session"
)

const (
	DefaultPreviewLength     = 150
	DefaultDescriptionLength = 200

	// questionTool is the tool the agent uses to put an open question to the
	// user; it is reported as a question rather than a tool approval.
	questionTool = "AskUserQuestion"
	unknownModel = "unknown"
)

// toolInputKeys lists, per tool, the input fields that best describe the
// proposed action, in order of preference.
var toolInputKeys = map[string][]string{
	"Bash":         {"command", "description"},
	"Read":         {"file_path"},
	"Write":        {"file_path"},
	"Edit":         {"file_path"},
	"MultiEdit":    {"file_path"},
	"NotebookEdit": {"notebook_path"},
	"Glob":         {"pattern", "path"},
	"Grep":         {"pattern", "path"},
	"WebFetch":     {"url"},
	"WebSearch":    {"query"},
	"Task":         {"description", "prompt"},
}

// Classification is the derived state of one session log.
type Classification struct {
	State           session.State
	SessionID       string
	LastActivity    time.Time
	Agent           session.AgentInfo
	LastTool        *session.ToolUse
	Preview         string
	PendingApproval *session.PendingApproval
}

// Classifier turns the tail of a session log into a Classification. It does
// no I/O; the zero value uses the default truncation lengths.
type Classifier struct {
	PreviewLength     int
	DescriptionLength int
}

// Classify applies the default Classifier.
func Classify(tail Tail, mtime, now time.Time, idleThreshold time.Duration) Classification {
	return Classifier{}.Classify(tail, mtime, now, idleThreshold)
}

// Classify derives the session state. Rules, in order: an empty log is idle;
// a log untouched for longer than idleThreshold is idle whatever it holds;
// a trailing user record means the agent is processing; a trailing assistant
// record is waiting for approval if it proposes a tool call and waiting for
// input otherwise; anything else is unknown.
func (c Classifier) Classify(tail Tail, mtime, now time.Time, idleThreshold time.Duration) Classification {
	out := Classification{
		State:        session.Unknown,
		LastActivity: mtime,
		Agent:        session.AgentInfo{Type: session.AgentMain, Model: unknownModel},
	}

	last, ok := tail.Last()
	if !ok {
		out.State = session.Idle
		return out
	}

	c.describe(tail, &out)

	if now.Sub(mtime) > idleThreshold {
		out.State = session.Idle
		return out
	}

	switch last.Kind {
	case KindUser:
		out.State = session.Processing
	case KindAssistant:
		if uses := last.ToolUses(); len(uses) > 0 {
			out.State = session.WaitingForApproval
			out.PendingApproval = c.pendingApproval(uses[0])
		} else {
			out.State = session.WaitingForInput
		}
	default:
		out.State = session.Unknown
	}
	return out
}

// describe fills the best-effort metadata from the trailing records.
func (c Classifier) describe(tail Tail, out *Classification) {
	last, _ := tail.Last()
	if !last.Timestamp.IsZero() {
		out.LastActivity = last.Timestamp
	}
	if last.IsSidechain {
		out.Agent.Type = session.AgentSubagent
	}

	recs := tail.Records
	for i := len(recs) - 1; i >= 0; i-- {
		if out.SessionID == "" && recs[i].SessionID != "" {
			out.SessionID = recs[i].SessionID
		}
		if out.Agent.Model == unknownModel && recs[i].Model != "" {
			out.Agent.Model = recs[i].Model
		}
		if out.LastTool == nil && recs[i].Kind == KindAssistant {
			if uses := recs[i].ToolUses(); len(uses) > 0 {
				out.LastTool = &session.ToolUse{Name: uses[len(uses)-1].Name}
				if ts := recs[i].Timestamp; !ts.IsZero() {
					out.LastTool.Timestamp = &ts
				}
			}
		}
		if out.Preview == "" {
			if text := recs[i].Text(); text != "" {
				out.Preview = truncate(collapseSpace(text), c.previewLength())
			}
		}
	}
}

func (c Classifier) pendingApproval(use ContentBlock) *session.PendingApproval {
	name := use.Name
	if name == "" {
		name = "Unknown"
	}
	if name == questionTool {
		return &session.PendingApproval{
			Type:        session.ApprovalQuestion,
			ToolName:    name,
			Description: truncate(describeQuestion(use.Input), c.descriptionLength()),
		}
	}
	return &session.PendingApproval{
		Type:        session.ApprovalToolUse,
		ToolName:    name,
		Description: truncate(describeToolInput(name, use.Input), c.descriptionLength()),
	}
}

func (c Classifier) previewLength() int {
	if c.PreviewLength > 0 {
		return c.PreviewLength
	}
	return DefaultPreviewLength
}

func (c Classifier) descriptionLength() int {
	if c.DescriptionLength > 0 {
		return c.DescriptionLength
	}
	return DefaultDescriptionLength
}

// describeToolInput renders a tool's arguments for display: the preferred
// field for known tools, then a "description" field, then compact JSON.
func describeToolInput(tool string, input json.RawMessage) string {
	if len(bytes.TrimSpace(input)) == 0 {
		return ""
	}

	var fields map[string]any
	if err := json.Unmarshal(input, &fields); err == nil {
		keys := append(append([]string{}, toolInputKeys[tool]...), "description", "command")
		for _, key := range keys {
			if s, ok := fields[key].(string); ok && strings.TrimSpace(s) != "" {
				return collapseSpace(s)
			}
		}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, input); err != nil {
		return collapseSpace(string(input))
	}
	return buf.String()
}

// describeQuestion joins the question texts of an AskUserQuestion input.
func describeQuestion(input json.RawMessage) string {
	var q struct {
		Questions []struct {
			Question string `json:"question"`
		} `json:"questions"`
	}
	if err := json.Unmarshal(input, &q); err == nil {
		var parts []string
		for _, item := range q.Questions {
			if s := strings.TrimSpace(item.Question); s != "" {
				parts = append(parts, collapseSpace(s))
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, " / ")
		}
	}
	return describeToolInput(questionTool, input)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
