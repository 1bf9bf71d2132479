package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Maolipeng/web-drop/internal/signaling"
	"github.com/Maolipeng/web-drop/internal/transfer"
	"github.com/Maolipeng/web-drop/internal/ui"
)

var flagLobbyWatch bool

var lobbyCmd = &cobra.Command{
	Use:     "lobby",
	Aliases: []string{"l"},
	Short:   "List rooms waiting for a second participant",
	Long: `Show the rooms on the relay that have one member waiting. With --watch the
list is printed again on every change until interrupted.

Examples:
  webdrop lobby
  webdrop lobby --watch --name "Desk PC"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showLobby(cmd)
	},
}

func showLobby(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	conn, err := NewConnectionContext(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Client.Send(signaling.MessageTypeLobbySubscribe, signaling.NamePayload{Name: cfg.Name}); err != nil {
		return transfer.NewError("subscribe to lobby", err)
	}

	timeout := time.After(10 * time.Second)
	for {
		select {
		case rooms := <-conn.Handler.Lobby:
			if flagLobbyWatch {
				fmt.Printf("\n%s\n", ui.MutedStyle.Render(time.Now().Format(time.TimeOnly)))
			}
			fmt.Println(ui.LobbyView(rooms))
			if !flagLobbyWatch {
				return nil
			}
			timeout = nil

		case errMsg := <-conn.Handler.Error:
			return transfer.WrapError("lobby", transfer.ErrSignaling, errMsg)

		case <-conn.Handler.Done():
			return transfer.WrapError("lobby", transfer.ErrSignaling, "relay connection closed")

		case <-timeout:
			return transfer.WrapError("lobby", transfer.ErrSignaling, "no lobby snapshot from relay")

		case <-ctx.Done():
			return nil
		}
	}
}

func init() {
	rootCmd.AddCommand(lobbyCmd)

	lobbyCmd.Flags().BoolVarP(&flagLobbyWatch, "watch", "w", false, "Keep printing the lobby as it changes")
}
