package main

import (
	"fmt"
	"os"

	"vigil/internal/config"
	"vigil/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	rootDir    string
	configPath string

	// Logger
	logger *zap.Logger

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "vigil",
	Short: "vigil - a consciousness daemon for your workspace",
	Long: `vigil watches a workspace (filesystem and git), matches observed
changes against action templates, asks a local or remote LLM whether each
action should run, and records every decision in an append-only audit log.

Actions above their confidence threshold can be delegated to an external
coding agent. Nothing executes without a recorded decision.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; missing file is fine.
		_ = godotenv.Load()

		path := configPath
		if path == "" {
			path = config.DefaultConfigPath(rootDir)
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if rootDir != "" {
			cfg.Daemon.Root = rootDir
		}

		logger, err = buildLogger(cfg.Logging, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		logging.Initialize(rootDir)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", ".", "workspace root to watch")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default <root>/.vigil/vigil.yaml)")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(decisionsCmd)
	rootCmd.AddCommand(whyCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(goalCmd)
	rootCmd.AddCommand(taskCmd)
}

// buildLogger constructs the process logger from the logging config.
// --verbose forces debug regardless of the configured level.
func buildLogger(lc config.LoggingConfig, verbose bool) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if lc.Format == "text" {
		zapCfg.Encoding = "console"
		zapCfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
