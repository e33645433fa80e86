// Package cmd holds the countervalue command tree.
package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gre/ledger-api-countervalue/internal/config"
	"github.com/gre/ledger-api-countervalue/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "countervalue",
	Short: "Counter-value cache and distribution service",
	Long: `countervalue ingests market data from a provider (coinapi,
cryptocompare or kaiko), keeps a normalized historical and live view in
MongoDB, and serves it over a small read-oriented HTTP API.`,
	SilenceUsage: true,
}

// Execute runs the selected command.
func Execute() error {
	return rootCmd.Execute()
}

// newApp loads the configuration and initializes the service graph.
func newApp() (*server.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	app := server.NewApp(cfg)
	if err := app.Initialize(); err != nil {
		return nil, err
	}
	return app, nil
}

// signalContext cancels on SIGINT/SIGTERM for graceful shutdown.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("Received shutdown signal", "signal", sig)
		cancel()
	}()
	return ctx, cancel
}
