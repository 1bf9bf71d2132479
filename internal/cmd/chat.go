package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Maolipeng/web-drop/internal/signaling"
	"github.com/Maolipeng/web-drop/internal/transfer"
	"github.com/Maolipeng/web-drop/internal/ui"
)

var flagChatDir string

var chatCmd = &cobra.Command{
	Use:     "chat [code|url]",
	Aliases: []string{"c"},
	Short:   "Open an interactive session with chat and file sharing",
	Long: `Join a room (or create one when no code is given) and open an interactive
session. Type a line to chat; commands:

  /send <file>...   offer files to the peer
  /image <file>     send an image inline (up to 3 MB)
  /accept /reject   answer the current offer
  /quit             leave the room`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var code string
		var err error
		if len(args) == 1 {
			code, err = parseRoomInput(args[0])
		} else {
			code, err = signaling.GenerateCode()
		}
		if err != nil {
			return err
		}
		return startChat(cmd, code, len(args) == 0)
	},
}

func startChat(cmd *cobra.Command, code string, created bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	outputDir, _, err := prepareOutputDir(false, flagChatDir)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	stopSpinner := ui.RunSpinner("Connecting to relay...")
	conn, err := NewConnectionContext(ctx, cfg)
	stopSpinner()
	if err != nil {
		return err
	}
	defer conn.Close()

	if created {
		fmt.Println()
		fmt.Println(ui.RoomView(code))
	}

	room := NewRoom(conn, RoomOptions{
		Mode:     ui.ModeChat,
		Sinks:    transfer.FileSinks(outputDir),
		ImageDir: outputDir,
	})
	summary, err := runRoom(ctx, room, code)
	printSummary(summary)
	return err
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVarP(&flagChatDir, "dir", "d", "", "Directory for accepted files and chat images")
}
