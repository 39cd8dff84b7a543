// cmd/shopping-agent/cmd_compare.go
package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"shopping-agent/internal/app"
	"shopping-agent/internal/orchestrator"
)

const (
	defaultCompareQuery = "PlayStation 5"
	toolDescriptionLen  = 50
)

var compareCmd = &cobra.Command{
	Use:   "compare [product]",
	Short: "Run the multi-server search with cashback and card rewards",
	Long: `Fan the query out to the product search, cashback and credit card
servers in parallel, verify the product links and print the combined deal
ranking.`,
	Args: cobra.ArbitraryArgs,
	RunE: runCompare,
}

func runCompare(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, rule("="))
	fmt.Fprintln(out, "🛒 MCP-BASED SHOPPING AGENT")
	fmt.Fprintln(out, "   Using Model Context Protocol for agent collaboration")
	fmt.Fprintf(out, "%s\n\n", rule("="))

	a, err := buildApp(cmd.Context(), app.WithProgress(compareProgress(out)), app.WithoutTracker())
	if err != nil {
		return err
	}
	defer closeApp(a)

	printServers(out, a.Orchestrator.ServerNames(), a.Orchestrator.ListAllTools())
	fmt.Fprintf(out, "\n%s\n", rule("-"))

	query := readQuery(args, cmd.InOrStdin(), out,
		fmt.Sprintf("Enter product to search (default: %s): ", defaultCompareQuery),
		defaultCompareQuery)
	fmt.Fprintf(out, "\n🔍 Searching for: %s\n", query)

	res, err := a.Orchestrator.SearchProductComplete(cmd.Context(), query)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%s\n", rule("="))
	fmt.Fprintln(out, "📊 FINAL MCP SEARCH RESULTS")
	fmt.Fprintln(out, rule("="))
	fmt.Fprintln(out, res.FinalResults)
	return nil
}

func printServers(out io.Writer, names []string, tools map[string][]orchestrator.ToolInfo) {
	fmt.Fprintln(out, "Available MCP Servers:")
	for _, name := range names {
		fmt.Fprintf(out, "\n  📡 %s:\n", name)
		for _, tool := range tools[name] {
			fmt.Fprintf(out, "      • %s: %s...\n", tool.Name, truncate(tool.Description, toolDescriptionLen))
		}
	}
}

func compareProgress(out io.Writer) orchestrator.ProgressFunc {
	return func(stage orchestrator.Stage, detail string) {
		switch stage {
		case orchestrator.StageStarted:
			fmt.Fprintf(out, "\n%s\n", rule("="))
			fmt.Fprintln(out, "🚀 MCP ORCHESTRATOR - Starting parallel agent execution")
			fmt.Fprintln(out, rule("="))
			fmt.Fprintf(out, "Product: %s\n\n", detail)
		case orchestrator.StageCategory:
			fmt.Fprintf(out, "📂 Detected category: %s\n", detail)
		case orchestrator.StageParallel:
			fmt.Fprintln(out, "\n🔄 Running parallel MCP server calls...")
			fmt.Fprintln(out, "   📦 Product Search Server")
			fmt.Fprintln(out, "   💰 Cashback Server")
			fmt.Fprintln(out, "   💳 Credit Card Server")
		case orchestrator.StageParallelDone:
			fmt.Fprintln(out, "\n✅ All parallel searches complete!")
		case orchestrator.StageVerifying:
			fmt.Fprintln(out, "\n🔎 Running verification server...")
		case orchestrator.StageVerified:
			fmt.Fprintln(out, "✅ Verification complete!")
		case orchestrator.StageCombining:
			fmt.Fprintln(out, "\n✨ Combining all results...")
		}
	}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
