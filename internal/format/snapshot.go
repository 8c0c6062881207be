// Package format renders snapshots for terminal output.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/agent-racer/sessionwatch/internal/session"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-runewidth"
)

const (
	shortIDLength = 8
	minDetail     = 20
	// fixedColumns approximates the width taken by every column but Detail,
	// borders included.
	fixedColumns = 70
)

// WriteSnapshot writes snap to w in the requested format. width bounds the
// table's detail column; zero leaves it unbounded.
func WriteSnapshot(w io.Writer, snap *session.Snapshot, format string, width int) error {
	if snap == nil {
		snap = session.NewSnapshot(time.Time{}, nil, nil)
	}
	switch strings.ToLower(format) {
	case "", "table":
		return writeTable(w, snap, width)
	case "plain":
		return writePlain(w, snap)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeTable(w io.Writer, snap *session.Snapshot, width int) error {
	detailMax := 0
	if width > 0 {
		detailMax = max(width-fixedColumns, minDetail)
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateHeader = true
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 3, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 5, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
	})
	tw.AppendHeader(table.Row{"State", "Project", "Session", "Idle", "Detail"})

	for _, v := range snap.ActiveSessions {
		detail := oneLine(Detail(v))
		if detailMax > 0 {
			detail = runewidth.Truncate(detail, detailMax, "…")
		}
		tw.AppendRow(table.Row{
			v.State,
			v.ProjectName,
			shortID(v.SessionID),
			formatIdle(v.IdleSeconds),
			detail,
		})
	}
	if len(snap.ActiveSessions) == 0 {
		tw.AppendRow(table.Row{"-", "(no active sessions)", "-", "-", "-"})
	}

	_ = tw.Render()
	_, err := fmt.Fprintln(w, Summary(snap))
	return err
}

func writePlain(w io.Writer, snap *session.Snapshot) error {
	if _, err := fmt.Fprintln(w, "state\tproject\tsession_id\tidle_seconds\tdetail"); err != nil {
		return err
	}
	for _, v := range snap.ActiveSessions {
		line := fmt.Sprintf("%s\t%s\t%s\t%d\t%s",
			v.State, v.ProjectName, v.SessionID, v.IdleSeconds, oneLine(Detail(v)))
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// Summary is a one-line count of the snapshot's sessions.
func Summary(snap *session.Snapshot) string {
	line := fmt.Sprintf("%d active, %d processing, %d waiting",
		len(snap.ActiveSessions), snap.ProcessingCount, snap.WaitingCount)
	if len(snap.ProjectsWithWaiting) > 0 {
		line += " (" + strings.Join(snap.ProjectsWithWaiting, ", ") + ")"
	}
	if n := len(snap.BeadsInProgress); n > 0 {
		line += fmt.Sprintf(", %d work items in progress", n)
	}
	return line
}

// Detail describes what a session is doing or waiting on.
func Detail(v session.SessionView) string {
	switch v.State {
	case session.WaitingForApproval:
		if p := v.PendingApproval; p != nil {
			if p.Description == "" {
				return p.ToolName
			}
			return p.ToolName + ": " + p.Description
		}
	case session.WaitingForInput:
		return v.LastMessagePreview
	case session.Processing:
		if v.LastTool != nil {
			return v.LastTool.Name
		}
	}
	return ""
}

// AlertLine announces a session that has started waiting.
func AlertLine(v session.SessionView) string {
	line := fmt.Sprintf("%s [%s] %s", v.ProjectName, shortID(v.SessionID),
		strings.ReplaceAll(v.State.String(), "_", " "))
	if d := oneLine(Detail(v)); d != "" {
		line += ": " + d
	}
	return line
}

func shortID(id string) string {
	if len(id) <= shortIDLength {
		return id
	}
	return id[:shortIDLength]
}

func formatIdle(seconds int) string {
	switch {
	case seconds <= 0:
		return "0s"
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm%02ds", seconds/60, seconds%60)
	default:
		return fmt.Sprintf("%dh%02dm", seconds/3600, (seconds%3600)/60)
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
