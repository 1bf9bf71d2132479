package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Maolipeng/web-drop/internal/files"
	"github.com/Maolipeng/web-drop/internal/signaling"
	"github.com/Maolipeng/web-drop/internal/transfer"
	"github.com/Maolipeng/web-drop/internal/ui"
)

var flagSendCode string

var sendCmd = &cobra.Command{
	Use:     "send <file>...",
	Aliases: []string{"s"},
	Short:   "Offer files to the peer in a room",
	Long: `Create a room (or join one with --code) and offer files to whoever joins.
Files are offered one at a time; the command exits once every file was sent
or rejected.

Examples:
  webdrop send report.pdf photo.png
  webdrop send --code K7M2QX notes.txt
  webdrop send --hash --relay backup.tar`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendFiles(cmd, args)
	},
}

func sendFiles(cmd *cobra.Command, paths []string) error {
	stopSpinner := ui.RunSpinner("Validating files...")
	fileInfos, err := files.ValidateFiles(paths)
	stopSpinner()
	if err != nil {
		return err
	}

	displayFileTable(fileInfos)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	code := signaling.NormalizeCode(flagSendCode)
	if code == "" {
		if code, err = signaling.GenerateCode(); err != nil {
			return transfer.NewError("generate room code", err)
		}
	}

	ctx := cmd.Context()
	stopSpinner = ui.RunSpinner("Connecting to relay...")
	conn, err := NewConnectionContext(ctx, cfg)
	stopSpinner()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Println()
	fmt.Println(ui.RoomView(code))

	room := NewRoom(conn, RoomOptions{
		Mode:    ui.ModeSend,
		Initial: files.Sources(fileInfos),
	})
	summary, err := runRoom(ctx, room, code)
	printSummary(summary)
	return err
}

func displayFileTable(fileInfos []files.FileInfo) {
	items := make([]ui.FileTableItem, len(fileInfos))
	for i, f := range fileInfos {
		items[i] = ui.FileTableItem{Name: f.Name, Size: f.Size, Type: f.Type}
	}
	fmt.Println()
	fmt.Println(ui.FileTableView(items))
}

func printSummary(summary ui.Summary) {
	if summary.Empty() {
		return
	}
	fmt.Println()
	fmt.Println(summary.View())
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVarP(&flagSendCode, "code", "c", "", "Join an existing room instead of creating one")
}
