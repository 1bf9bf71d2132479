package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Maolipeng/web-drop/internal/config"
	"github.com/Maolipeng/web-drop/internal/transfer"
	"github.com/Maolipeng/web-drop/internal/ui"
	"github.com/Maolipeng/web-drop/internal/version"
)

// Connection flags shared by every subcommand.
var (
	flagServer   string
	flagName     string
	flagHash     bool
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "webdrop",
	Short: "Share files and chat with a browser or another terminal over WebRTC",
	Long: `webdrop pairs two devices through a short room code. The relay only
forwards the connection handshake; files and chat travel over a direct
WebRTC data channel and are offered one at a time for the receiver to accept.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}

// loadConfig resolves the client configuration from the shared flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		ServerURL:  flagServer,
		Name:       flagName,
		Hash:       flagHash,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
	})
	if err != nil {
		return nil, transfer.NewError("load config", err)
	}
	return cfg, nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagServer, "server", "", "Relay websocket URL (default "+config.DefaultServerURL+")")
	flags.StringVarP(&flagName, "name", "n", "", "Display name shown to the other peer")
	flags.BoolVar(&flagHash, "hash", false, "Send SHA-256 hashes so the receiver can verify files")
	flags.StringVar(&flagSTUN, "stun", "", "Custom STUN server")
	flags.StringVar(&flagTURN, "turn", "", "Custom TURN server")
	flags.StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	flags.StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	flags.BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode")
}
