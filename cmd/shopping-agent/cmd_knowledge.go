// cmd/shopping-agent/cmd_knowledge.go
package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shopping-agent/internal/app"
	"shopping-agent/internal/rag/retailers"
	"shopping-agent/internal/shopping"
)

var (
	retailerCategory string
	cashbackCategory string
)

var retailersCmd = &cobra.Command{
	Use:   "retailers <query>",
	Short: "List the retailers worth checking for a product",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context(), app.WithoutTracker())
		if err != nil {
			return err
		}
		defer closeApp(a)

		text, err := a.Retailers.LookupRetailers(cmd.Context(), strings.Join(args, " "), retailerCategory)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

var cashbackCmd = &cobra.Command{
	Use:   "cashback <retailer>...",
	Short: "Look up cashback portal rates for retailers",
	Long: `Answer from the cashback knowledge base which portal pays the most at
each retailer. Without retailers the default comparison set is used.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context(), app.WithoutTracker())
		if err != nil {
			return err
		}
		defer closeApp(a)

		names := args
		if len(names) == 0 {
			names = shopping.DefaultRetailers
		}
		text, err := a.Cashback.Lookup(cmd.Context(), names, cashbackCategory)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

var reindexCmd = &cobra.Command{
	Use:       "reindex [cashback|retailers|all]",
	Short:     "Rebuild the knowledge base vector indexes",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"cashback", "retailers", "all"},
	RunE: func(cmd *cobra.Command, args []string) error {
		target := "all"
		if len(args) == 1 {
			target = args[0]
		}

		a, err := buildApp(cmd.Context(), app.WithoutTracker())
		if err != nil {
			return err
		}
		defer closeApp(a)

		out := cmd.OutOrStdout()
		if target == "cashback" || target == "all" {
			status, err := a.Cashback.Rebuild(cmd.Context())
			if err != nil {
				return fmt.Errorf("cashback index: %w", err)
			}
			fmt.Fprintf(out, "✅ Cashback index %s\n", status)
		}
		if target == "retailers" || target == "all" {
			status, err := a.Retailers.Rebuild(cmd.Context())
			if err != nil {
				return fmt.Errorf("retailer index: %w", err)
			}
			fmt.Fprintf(out, "✅ Retailer index %s\n", status)
		}
		return nil
	},
}

func init() {
	retailersCmd.Flags().StringVar(&retailerCategory, "category", retailers.DefaultCategory, "retailer category (electronics, clothing, home, beauty)")
	cashbackCmd.Flags().StringVar(&cashbackCategory, "category", "General", "product category (Electronics, Clothing, Home, Beauty, General)")
}
