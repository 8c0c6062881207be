package session

import (
	"encoding/json"
	"time"
)

// State is the classified activity of a session at scan time. The zero
// value is Unknown so that anything not explicitly classified fails closed.
type State int

const (
	Unknown State = iota
	Idle
	Processing
	WaitingForInput
	WaitingForApproval
)

var stateNames = map[State]string{
	Unknown:            "unknown",
	Idle:               "idle",
	Processing:         "processing",
	WaitingForInput:    "waiting_for_input",
	WaitingForApproval: "waiting_for_approval",
}

var stateFromName = map[string]State{
	"unknown":              Unknown,
	"idle":                 Idle,
	"processing":           Processing,
	"waiting_for_input":    WaitingForInput,
	"waiting_for_approval": WaitingForApproval,
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsWaiting reports whether the session needs a human.
func (s State) IsWaiting() bool {
	return s == WaitingForInput || s == WaitingForApproval
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if v, ok := stateFromName[name]; ok {
		*s = v
	} else {
		*s = Unknown
	}
	return nil
}

// ParseState maps a wire name back to a State. Unrecognised names map to
// Unknown and ok is false.
func ParseState(name string) (State, bool) {
	v, ok := stateFromName[name]
	return v, ok
}

const (
	AgentMain     = "main"
	AgentSubagent = "subagent"
)

// AgentInfo describes which agent wrote the trailing record.
type AgentInfo struct {
	Type  string `json:"type"`
	Model string `json:"model"`
}

// ToolUse is the most recent tool invocation seen in a session's tail.
type ToolUse struct {
	Name      string     `json:"name"`
	Timestamp *time.Time `json:"timestamp"`
}

// ApprovalType distinguishes a tool the agent wants to run from an open
// question it is asking.
type ApprovalType string

const (
	ApprovalToolUse  ApprovalType = "tool_use"
	ApprovalQuestion ApprovalType = "question"
)

// PendingApproval is present only when a session is WaitingForApproval.
type PendingApproval struct {
	Type        ApprovalType `json:"type"`
	ToolName    string       `json:"tool_name"`
	Description string       `json:"description"`
}

// SessionView is one session as reported in a Snapshot.
type SessionView struct {
	SessionID          string           `json:"session_id"`
	ProjectPath        string           `json:"project_path"`
	ProjectName        string           `json:"project_name"`
	State              State            `json:"state"`
	LastActivity       time.Time        `json:"last_activity"`
	IdleSeconds        int              `json:"idle_seconds"`
	CurrentAgent       AgentInfo        `json:"current_agent"`
	LastTool           *ToolUse         `json:"last_tool"`
	LastMessagePreview string           `json:"last_message_preview"`
	PendingApproval    *PendingApproval `json:"pending_approval"`
	AgentPID           int              `json:"agent_pid,omitempty"`
	TmuxTarget         string           `json:"tmux_target,omitempty"`

	LogPath string    `json:"-"`
	ModTime time.Time `json:"-"`
}

// Clone returns a deep copy of the view, duplicating pointer fields so the
// copy can be mutated independently of the original.
func (v SessionView) Clone() SessionView {
	if v.LastTool != nil {
		lt := *v.LastTool
		if lt.Timestamp != nil {
			ts := *lt.Timestamp
			lt.Timestamp = &ts
		}
		v.LastTool = &lt
	}
	if v.PendingApproval != nil {
		pa := *v.PendingApproval
		v.PendingApproval = &pa
	}
	return v
}
