// cmd/shopping-agent/cmd_track.go
package main

import (
	"github.com/spf13/cobra"

	"shopping-agent/internal/tracker"
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Open the interactive price tracking console",
	Long: `Start, inspect and stop price tracking sessions. Tracking runs in the
background while the menu waits for input; running sessions stop on exit.
With metrics.addr set, Prometheus metrics are served while the menu runs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp(a)
		defer serveMetrics(cmd.Context(), a.Config.Metrics.Addr, zapLog)()

		return tracker.NewMenu(a.Tracker, cmd.InOrStdin(), cmd.OutOrStdout()).Run(cmd.Context())
	},
}
