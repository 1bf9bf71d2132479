package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/skip2/go-qrcode"

	"github.com/Maolipeng/web-drop/internal/signaling"
	"github.com/Maolipeng/web-drop/internal/utils"
)

// FileTableItem is one row of an outgoing file list.
type FileTableItem struct {
	Name string
	Size int64
	Type string
}

// FileTableView renders files with their size and MIME type.
func FileTableView(items []FileTableItem) string {
	if len(items) == 0 {
		return MutedStyle.Render("No files")
	}

	rows := make([][]string, 0, len(items))
	for i, item := range items {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			utils.TruncateString(item.Name, 50),
			utils.FormatSize(item.Size),
			utils.TruncateString(item.Type, 24),
		})
	}
	return styledTable([]string{"#", "Name", "Size", "Type"}, rows)
}

// LobbyView renders the rooms waiting for a second participant.
func LobbyView(rooms []signaling.LobbyEntry) string {
	if len(rooms) == 0 {
		return MutedStyle.Render("No rooms are waiting")
	}

	rows := make([][]string, 0, len(rooms))
	for _, room := range rooms {
		name := room.Name
		if name == "" {
			name = "Anonymous"
		}
		rows = append(rows, []string{room.Code, utils.TruncateString(name, 32)})
	}
	return styledTable([]string{"Code", "Host"}, rows)
}

func styledTable(headers []string, rows [][]string) string {
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

// RoomView shows the room code and a scannable QR of it.
func RoomView(code string) string {
	content := fmt.Sprintf("%s Room %s\n\n%s",
		IconRoom, BadgeStyle.Render(code),
		MutedStyle.Render("Share this code with the other device"),
	)
	if qr := QRText(code); qr != "" {
		content += "\n\n" + qr
	}
	return RoomBoxStyle.Render(content)
}

// QRText renders code as a half-block QR for terminals. It returns an
// empty string when the code cannot be encoded.
func QRText(code string) string {
	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return ""
	}
	return strings.TrimRight(qr.ToSmallString(false), "\n")
}
