package cmd

import (
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Serve the read-oriented HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Shutdown()

		ctx, cancel := signalContext()
		defer cancel()
		return app.RunServer(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
