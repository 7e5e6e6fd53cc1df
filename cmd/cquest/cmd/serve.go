package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/brianly1003/cquest/internal/app"
	"github.com/brianly1003/cquest/internal/config"
)

var (
	servePort  int
	serveHost  string
	serveStdio bool
)

// serveCmd runs the JSON-RPC backend.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the JSON-RPC backend",
	Long: `Run the cquest backend and accept JSON-RPC clients.

By default clients connect over WebSocket at ws://<host>:<port>/ws. With
--stdio a single client speaks newline-delimited JSON-RPC over stdin and
stdout, and the backend exits when stdin is closed.

Example:
  cquest serve                 # WebSocket on 127.0.0.1:8790
  cquest serve --port 9000
  cquest serve --stdio         # embed in a desktop shell`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default: 8790)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "address to bind (default: 127.0.0.1)")
	serveCmd.Flags().BoolVar(&serveStdio, "stdio", false, "serve one client over stdin/stdout instead of WebSocket")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, v, err := config.LoadWithViper(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override config with flags
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}

	// Re-validate after overrides
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogging(cfg)

	mode := "websocket"
	if serveStdio {
		mode = "stdio"
	}
	log.Info().
		Str("version", version).
		Str("mode", mode).
		Str("data_dir", cfg.App.DataDir).
		Int("port", cfg.Server.Port).
		Msg("starting cquest")

	application, err := app.New(cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	config.Watch(v, application.ApplyConfig)

	ctx, cancel := signalContext()
	defer cancel()

	if serveStdio {
		err = application.ServeStdio(ctx)
	} else {
		err = application.Serve(ctx)
	}
	if err != nil {
		return err
	}

	log.Info().Msg("cquest stopped")
	return nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}
