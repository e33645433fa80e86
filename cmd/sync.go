package cmd

import (
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run the live-price pipeline and the prefetch job",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Shutdown()

		ctx, cancel := signalContext()
		defer cancel()
		return app.RunSync(ctx)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
