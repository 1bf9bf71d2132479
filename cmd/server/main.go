package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/Maolipeng/web-drop/internal/config"
	"github.com/Maolipeng/web-drop/internal/logging"
	"github.com/Maolipeng/web-drop/internal/server"
	"github.com/Maolipeng/web-drop/internal/signaling"
	"github.com/Maolipeng/web-drop/internal/version"
)

var opts config.ServerOptions

var rootCmd = &cobra.Command{
	Use:     "webdrop-server",
	Short:   "Run the web-drop signaling relay",
	Long:    `Pairs clients into two-member rooms by code and forwards their WebRTC handshake. It also serves ICE server configuration and room QR codes.`,
	Version: version.Version,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	cfg, err := config.LoadServer(opts)
	if err != nil {
		return err
	}
	if _, err := cfg.BuildICEServers(); err != nil {
		slog.Warn("ICE server configuration is invalid, /config will answer 400", "error", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Create the Hub and run its event loop
	hub := signaling.NewHub(signaling.Limits{Rate: rate.Limit(cfg.RateLimit), Burst: cfg.RateBurst})
	go hub.Run(ctx)

	// 2. Serve the relay routes
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.NewRouter(hub, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting signaling relay", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down signaling relay")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	logging.Init("relay", log.InfoLevel)

	rootCmd.Flags().StringVar(&opts.Addr, "addr", "", "Listen address (default "+config.DefaultAddr+", or PORT)")
	rootCmd.Flags().StringVarP(&opts.ConfigFile, "config", "c", "", "YAML config file")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("Relay stopped", "error", err)
		os.Exit(1)
	}
}
