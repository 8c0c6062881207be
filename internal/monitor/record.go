package monitor

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// RecordKind is the decoded "type" tag of a session log line. Tags other
// than user and assistant, and lines that fail to decode, are KindUnknown.
type RecordKind int

const (
	KindUnknown RecordKind = iota
	KindUser
	KindAssistant
)

var kindNames = map[RecordKind]string{
	KindUnknown:   "unknown",
	KindUser:      "user",
	KindAssistant: "assistant",
}

func (k RecordKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

func parseKind(tag string) RecordKind {
	switch tag {
	case "user":
		return KindUser
	case "assistant":
		return KindAssistant
	default:
		return KindUnknown
	}
}

// BlockType tags one entry of a message's content array.
type BlockType int

const (
	BlockOther BlockType = iota
	BlockText
	BlockToolUse
)

func parseBlockType(tag string) BlockType {
	switch tag {
	case "text":
		return BlockText
	case "tool_use":
		return BlockToolUse
	default:
		return BlockOther
	}
}

type ContentBlock struct {
	Type  BlockType
	Text  string
	Name  string
	Input json.RawMessage
}

// Record is one decoded line of a session log.
type Record struct {
	Kind        RecordKind
	SessionID   string
	Timestamp   time.Time
	IsSidechain bool
	Model       string
	Content     []ContentBlock
}

// ToolUses returns the tool invocation blocks of the record in order.
func (r Record) ToolUses() []ContentBlock {
	var out []ContentBlock
	for _, b := range r.Content {
		if b.Type == BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

// Text returns the first non-empty text block.
func (r Record) Text() string {
	for _, b := range r.Content {
		if b.Type == BlockText && strings.TrimSpace(b.Text) != "" {
			return b.Text
		}
	}
	return ""
}

type jsonlEntry struct {
	Type        string          `json:"type"`
	SessionID   string          `json:"sessionId"`
	Timestamp   string          `json:"timestamp"`
	IsSidechain bool            `json:"isSidechain"`
	Message     json.RawMessage `json:"message"`
}

type messageContent struct {
	Model   string          `json:"model"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// ParseRecord decodes one log line. It never fails: malformed lines and
// messages whose content cannot be decoded come back as KindUnknown.
func ParseRecord(line []byte) Record {
	var entry jsonlEntry
	if err := json.Unmarshal(line, &entry); err != nil {
		return Record{Kind: KindUnknown}
	}

	rec := Record{
		Kind:        parseKind(entry.Type),
		SessionID:   entry.SessionID,
		IsSidechain: entry.IsSidechain,
	}
	if entry.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, entry.Timestamp); err == nil {
			rec.Timestamp = t
		}
	}

	if rec.Kind == KindUnknown || len(entry.Message) == 0 || string(entry.Message) == "null" {
		return rec
	}

	var msg messageContent
	if err := json.Unmarshal(entry.Message, &msg); err != nil {
		rec.Kind = KindUnknown
		return rec
	}
	rec.Model = msg.Model

	blocks, ok := parseContent(msg.Content)
	if !ok {
		rec.Kind = KindUnknown
		return rec
	}
	rec.Content = blocks
	return rec
}

// parseContent accepts either a plain string or an array of typed blocks.
func parseContent(raw json.RawMessage) ([]ContentBlock, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, true
	}

	switch raw[0] {
	case '"':
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, false
		}
		return []ContentBlock{{Type: BlockText, Text: text}}, true
	case '[':
		var blocks []contentBlock
		if err := json.Unmarshal(raw, &blocks); err != nil {
			return nil, false
		}
		out := make([]ContentBlock, 0, len(blocks))
		for _, b := range blocks {
			out = append(out, ContentBlock{
				Type:  parseBlockType(b.Type),
				Text:  b.Text,
				Name:  b.Name,
				Input: b.Input,
			})
		}
		return out, true
	default:
		return nil, false
	}
}
