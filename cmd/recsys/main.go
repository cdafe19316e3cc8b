package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/simplers/recsys/internal/config"
)

const (
	appName = "recsys"
	version = "v1.2.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Financial content recommendation engine",
		Version: version,
		Long: `recsys builds per-user candidate sets from market, profile, and
popularity signals and serves ranked content recommendations over HTTP.

Run 'recsys batch' for one candidate generation cycle, 'recsys serve'
for the online ranking service.`,
	}
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level override (debug|info|warn|error)")

	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Run one candidate generation cycle",
		Long:  "Loads users and content, evaluates the configured rule pools, and replaces every user's stored candidate set",
		RunE:  runBatch,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the recommendation HTTP service",
		Long:  "Serves ranked recommendations from stored candidate sets with pre-filter and post-rank rules applied per request",
		RunE:  runServe,
	}

	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// loadConfig resolves the config file and log level from flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if override, _ := cmd.Flags().GetString("log-level"); override != "" {
		level = override
	}
	if lvl, err := zerolog.ParseLevel(level); err == nil && level != "" {
		zerolog.SetGlobalLevel(lvl)
	}
	return cfg, nil
}
