// cmd/shopping-agent/cmd_search.go
package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"shopping-agent/internal/agent"
	"shopping-agent/internal/app"
)

const defaultSearchQuery = "Find me the best price for PlayStation 5"

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Run the single-agent price comparison",
	Long: `Let one agent search the web until it has prices from at least the
configured number of retailers, then print the comparison table.

Prompts for the query when none is given.`,
	Args: cobra.ArbitraryArgs,
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, rule("="))
	fmt.Fprintln(out, "🛒 Shopping Price Comparison Agent")
	fmt.Fprintln(out, rule("="))
	fmt.Fprintln(out, "\nThis agent will search the web and compare prices from")
	fmt.Fprint(out, "at least 15 different websites for your product.\n\n")

	query := readQuery(args, cmd.InOrStdin(), out,
		fmt.Sprintf("Enter your search query (or press Enter for default: '%s'): ", defaultSearchQuery),
		defaultSearchQuery)

	fmt.Fprintf(out, "\n🔍 Searching for: %s\n", query)
	fmt.Fprint(out, "⏳ This may take a minute as we search multiple websites...\n\n")
	fmt.Fprintln(out, rule("-"))

	a, err := buildApp(cmd.Context(), app.AgentOnly())
	if err != nil {
		printSearchFailure(out, err)
		return err
	}
	defer closeApp(a)

	fmt.Fprint(out, "\n📡 Starting search process...\n\n")
	report, err := a.Agent.SearchProductPrices(cmd.Context(), query, searchProgress(out))
	if err != nil {
		printSearchFailure(out, err)
		return err
	}

	fmt.Fprint(out, "\n✅ Analysis complete!\n\n")
	fmt.Fprintln(out, "\n"+rule("="))
	fmt.Fprintln(out, "📊 PRICE COMPARISON RESULTS")
	fmt.Fprintln(out, rule("="))
	fmt.Fprintln(out, report)
	return nil
}

func searchProgress(out io.Writer) agent.ProgressFunc {
	return func(n int, query string) {
		fmt.Fprintf(out, "🔍 Search #%d: \"%s\"\n", n, query)
	}
}

func printSearchFailure(out io.Writer, err error) {
	fmt.Fprintf(out, "\n❌ Error occurred: %v\n", err)
	fmt.Fprintln(out, "\nPlease check:")
	fmt.Fprintln(out, "1. Your API keys are correctly set in the .env file")
	fmt.Fprintln(out, "2. You have sufficient API credits")
	fmt.Fprintln(out, "3. Your internet connection is stable")
}
