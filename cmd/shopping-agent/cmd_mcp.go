// cmd/shopping-agent/cmd_mcp.go
package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"shopping-agent/internal/app"
	"shopping-agent/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the shopping tools over MCP stdio",
	Long: `Expose price search, cashback, credit card, verification, retailer and
tracking tools to MCP clients. Protocol messages use stdout; logs use stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context(), app.WithObservability())
		if err != nil {
			return err
		}
		defer closeApp(a)
		defer serveMetrics(cmd.Context(), a.Config.Metrics.Addr, zapLog)()

		srv := mcpserver.New(mcpserver.Deps{
			Searcher:      a.Agent,
			Cashback:      a.Cashback,
			Retailers:     a.Retailers,
			Orchestrator:  a.Orchestrator,
			Tracker:       a.Tracker,
			Observability: a.Observability,
		}, a.Logger)

		err = srv.Serve(cmd.Context(), os.Stdin, os.Stdout, os.Stderr)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}
