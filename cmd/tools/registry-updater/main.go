// cmd/tools/registry-updater/main.go
package main

import (
	"flag"
	"fmt"
	"os"

	"shopping-agent/internal/common/logger"
	"shopping-agent/internal/servers"
	"shopping-agent/pkg/registry"
)

const defaultCatalogPath = "configs/tool-registry.json"

func main() {
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	checkCmd := flag.NewFlagSet("check", flag.ExitOnError)

	exportPath := exportCmd.String("path", defaultCatalogPath, "Path to write the catalog to")
	version := exportCmd.String("version", "1.0.0", "Catalog version")
	validatePath := validateCmd.String("path", defaultCatalogPath, "Path to the catalog file")
	checkPath := checkCmd.String("path", defaultCatalogPath, "Path to the catalog file")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "export":
		exportCmd.Parse(os.Args[2:])
		c := currentRegistry().Catalog(*version)
		if err := c.Validate(); err != nil {
			fmt.Printf("Error: current tools do not form a valid catalog: %v\n", err)
			os.Exit(1)
		}
		if err := registry.SaveCatalog(c, *exportPath); err != nil {
			fmt.Printf("Error exporting catalog: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Exported %d servers and %d tools to %s\n", len(c.Servers), c.ToolCount(), *exportPath)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		c, err := registry.LoadCatalog(*validatePath)
		if err != nil {
			fmt.Printf("Error loading catalog: %v\n", err)
			os.Exit(1)
		}
		if err := c.Validate(); err != nil {
			fmt.Printf("Catalog validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Catalog validation passed. Found %d servers and %d tools.\n", len(c.Servers), c.ToolCount())

	case "check":
		checkCmd.Parse(os.Args[2:])
		saved, err := registry.LoadCatalog(*checkPath)
		if err != nil {
			fmt.Printf("Error loading catalog: %v\n", err)
			os.Exit(1)
		}
		added, removed := saved.Diff(currentRegistry().Catalog(saved.Version))
		for _, t := range added {
			fmt.Printf("+ %s\n", t)
		}
		for _, t := range removed {
			fmt.Printf("- %s\n", t)
		}
		if len(added)+len(removed) > 0 {
			fmt.Printf("Catalog %s is out of date. Run: registry-updater export -path %s\n", *checkPath, *checkPath)
			os.Exit(1)
		}
		fmt.Println("Catalog is up to date.")

	case "help":
		fallthrough
	default:
		help()
	}
}

// currentRegistry lists the tools without wiring any backend.
func currentRegistry() *registry.Registry {
	log := logger.NewNoOpLogger()
	return registry.New(
		servers.NewProductSearch(nil, log),
		servers.NewCashback(nil, nil, log),
		servers.NewCreditCard(nil, log),
		servers.NewVerification(nil, log),
	)
}

func help() {
	fmt.Println(`
Usage: registry-updater <command> [flags]

Commands:
  export   Write the current server and tool catalog
  validate Validate a catalog file
  check    Compare a catalog file with the current tools
  help     Show this help message

Examples:
  registry-updater export -path configs/tool-registry.json
  registry-updater validate -path configs/tool-registry.json
  registry-updater check`)
}
