package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"prospector/internal/config"
	"prospector/internal/logging"
)

var (
	// Global flags
	cfgPath string
	verbose bool

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "prospector",
	Short: "Autonomous outreach agent for prospect discovery and email campaigns",
	Long: `prospector is a persistent outreach agent.

Given a business website and a campaign goal, it analyzes the business,
discovers prospects on a repeating schedule, qualifies them with an LLM,
and sends personalized outreach emails under configurable rate caps.
Everything it learns is persisted to a JSON knowledge base on disk.

Typical session:
  prospector start https://mybusiness.com --goal "find integration partners"
  prospector status
  prospector monitor
  prospector stop`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Secrets come from the environment; a .env in the cwd is a
		// convenience for local runs, missing is fine.
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		if err := logging.Initialize(cfg.LogDir, level); err != nil {
			return fmt.Errorf("failed to initialize file logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	defaultCfg := os.Getenv("PROSPECTOR_CONFIG")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultCfg, "path to config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(monitorCmd)
}

// printJSON writes a result object to stdout as indented JSON. All
// subcommands report through this so output stays machine-readable.
func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode output: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
