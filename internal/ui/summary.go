package ui

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Maolipeng/web-drop/internal/transfer"
	"github.com/Maolipeng/web-drop/internal/utils"
)

// Summary collects the final state of a session's queues.
type Summary struct {
	Sent     []transfer.SendItem
	Received []transfer.ReceiveItem
}

// Empty reports whether nothing was offered in either direction.
func (s Summary) Empty() bool {
	return len(s.Sent) == 0 && len(s.Received) == 0
}

// View renders one row per file with its final status.
func (s Summary) View() string {
	t := table.NewWriter()
	t.SetTitle("Session Summary")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"", "Name", "Size", "Status", "Detail"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
	})

	var sentBytes, receivedBytes int64
	for _, item := range s.Sent {
		if item.State == transfer.SendDone {
			sentBytes += item.Size
		}
		t.AppendRow(table.Row{
			"↑",
			utils.TruncateString(item.Name, 40),
			utils.FormatSize(item.Size),
			item.Status,
			item.Meta,
		})
	}
	for _, item := range s.Received {
		detail := item.Meta
		if item.Finished && item.State == transfer.ReceiveAccepted {
			detail = item.Verification.String()
		}
		if item.Status == transfer.StatusComplete {
			receivedBytes += item.Size
		}
		t.AppendRow(table.Row{
			"↓",
			utils.TruncateString(item.Name, 40),
			utils.FormatSize(item.Size),
			item.Status,
			detail,
		})
	}

	t.AppendFooter(table.Row{
		"",
		"Total",
		"",
		fmt.Sprintf("%s sent", utils.FormatSize(sentBytes)),
		fmt.Sprintf("%s received", utils.FormatSize(receivedBytes)),
	})

	return t.Render()
}
