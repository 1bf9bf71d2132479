package cmd

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Maolipeng/web-drop/internal/signaling"
	"github.com/Maolipeng/web-drop/internal/transfer"
	"github.com/Maolipeng/web-drop/internal/ui"
	"github.com/Maolipeng/web-drop/internal/utils"
)

var (
	flagReceiveYes bool
	flagReceiveZip bool
	flagReceiveDir string
)

var receiveCmd = &cobra.Command{
	Use:     "receive <code|url>",
	Aliases: []string{"r"},
	Short:   "Join a room and receive the files offered there",
	Long: `Join a room and decide on every file the peer offers. Accepted files are
saved to --dir (the current directory by default). The command ends when the
sender leaves or you press q.

Examples:
  webdrop receive K7M2QX
  webdrop receive K7M2QX --yes --dir ~/Downloads
  webdrop receive K7M2QX --zip`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}
		return receiveFiles(cmd, code)
	},
}

func receiveFiles(cmd *cobra.Command, code string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	outputDir, cleanup, err := prepareOutputDir(flagReceiveZip, flagReceiveDir)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	ctx := cmd.Context()
	stopSpinner := ui.RunSpinner("Connecting to relay...")
	conn, err := NewConnectionContext(ctx, cfg)
	stopSpinner()
	if err != nil {
		return err
	}
	defer conn.Close()

	room := NewRoom(conn, RoomOptions{
		Mode:       ui.ModeReceive,
		AutoAccept: flagReceiveYes,
		Sinks:      transfer.FileSinks(outputDir),
	})
	summary, runErr := runRoom(ctx, room, code)
	printSummary(summary)
	if runErr != nil {
		return runErr
	}

	received := room.Received()
	if flagReceiveZip && len(received) > 0 {
		return finalizeZip(flagReceiveDir, outputDir)
	}
	for _, rec := range received {
		ui.PrintSuccess(fmt.Sprintf("Saved %s", rec.Location))
	}
	return nil
}

// prepareOutputDir returns where accepted files are written. In zip mode
// that is a temporary directory removed by cleanup.
func prepareOutputDir(zipMode bool, outputDir string) (string, func(), error) {
	if !zipMode {
		if outputDir == "" {
			outputDir = "."
		}
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return "", nil, transfer.NewError("create output dir", err)
		}
		return outputDir, nil, nil
	}

	tempDir, err := os.MkdirTemp("", "webdrop-receive-*")
	if err != nil {
		return "", nil, transfer.NewError("create temp dir", err)
	}
	return tempDir, func() { os.RemoveAll(tempDir) }, nil
}

func finalizeZip(outputDir, tempDir string) error {
	zipName := fmt.Sprintf("webdrop-%d.zip", time.Now().UnixMilli())
	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return transfer.NewError("create output dir", err)
		}
		zipName = filepath.Join(outputDir, zipName)
	}

	s := ui.NewWaitingSpinner("Zipping files...")
	s.Start()
	if err := utils.ZipDirectory(tempDir, zipName); err != nil {
		s.Error("Zipping failed")
		return transfer.NewError("zip files", err)
	}
	s.Success(fmt.Sprintf("Files zipped to %s", zipName))
	return nil
}

// parseRoomInput accepts a bare room code or a link carrying one, either as
// a code query parameter or as the last path segment.
func parseRoomInput(input string) (string, error) {
	raw := strings.TrimSpace(input)
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", transfer.NewError("parse URL", err)
		}
		raw = u.Query().Get("code")
		if raw == "" {
			raw = path.Base(strings.TrimSuffix(u.Path, "/"))
		}
	}

	code := signaling.NormalizeCode(raw)
	if code == "" || code == "." || code == "/" {
		return "", signaling.ErrCodeRequired
	}
	return code, nil
}

func init() {
	rootCmd.AddCommand(receiveCmd)

	receiveCmd.Flags().BoolVarP(&flagReceiveYes, "yes", "y", false, "Accept every offered file")
	receiveCmd.Flags().BoolVarP(&flagReceiveZip, "zip", "z", false, "Zip received files")
	receiveCmd.Flags().StringVarP(&flagReceiveDir, "dir", "d", "", "Directory to save received files")
}
