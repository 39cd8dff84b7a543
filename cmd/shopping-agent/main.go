// cmd/shopping-agent/main.go
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shopping-agent/internal/app"
	"shopping-agent/internal/common/config"
	"shopping-agent/internal/common/logger"
	"shopping-agent/internal/common/metrics"
)

var (
	configPath string
	logLevel   string

	zapLog *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "shopping-agent [query]",
	Short: "Compare product prices across online retailers",
	Long: `Search the web for a product, compare prices from many retailers and
combine them with cashback portals and credit card rewards.

Without a subcommand the single-agent price search runs.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSearch,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(searchCmd, compareCmd, trackCmd, mcpCmd, retailersCmd, cashbackCmd, reindexCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and checks the API keys are present.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildApp loads the configuration and assembles the services. Logs go to
// stderr so stdout stays free for results and the MCP stream.
func buildApp(ctx context.Context, opts ...app.Option) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	zapLog = logger.New(cfg.Logging.Level, cfg.Logging.Format)
	return app.Build(ctx, cfg, logger.NewZapAdapter(zapLog), opts...)
}

func closeApp(a *app.App) {
	if err := a.Close(); err != nil && zapLog != nil {
		zapLog.Warn("shutdown", zap.Error(err))
	}
	if zapLog != nil {
		_ = zapLog.Sync()
	}
}

// serveMetrics exposes /metrics on addr until the returned stop is called.
// An empty addr starts nothing.
func serveMetrics(ctx context.Context, addr string, log *zap.Logger) (stop func()) {
	if addr == "" {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("metrics server listening", zap.String("addr", addr))
		if err := metrics.Serve(ctx, addr); err != nil {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// readQuery returns the joined args, or prompts on in and falls back to def.
func readQuery(args []string, in io.Reader, out io.Writer, prompt, def string) string {
	if q := strings.TrimSpace(strings.Join(args, " ")); q != "" {
		return q
	}

	fmt.Fprint(out, prompt)
	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		if q := strings.TrimSpace(scanner.Text()); q != "" {
			return q
		}
	}
	return def
}

func rule(ch string) string {
	return strings.Repeat(ch, 60)
}
