package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/claimsurvival/internal/config"
	"github.com/dbsmedya/claimsurvival/internal/session"
	"github.com/dbsmedya/claimsurvival/internal/store"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile     string
	logLevel    string
	logFormat   string
	batchSize   int
	concurrency int
	noColor     bool
)

var rootCmd = &cobra.Command{
	Use:   "claimsurvival",
	Short: "Claim survival binning and deduplication",
	Long: `A CLI tool that bins patent claims into survival categories held in Redis
and counts each claim once, in its highest-priority category.

Features:
  - Per-request analysis sessions with automatic expiry
  - Raw (duplicate-inclusive) and unique category counts
  - Priority-ordered overlap removal across categories
  - Optional per-session locking and invariant verification`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.Enable = false
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Config file flag
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "claimsurvival.yaml",
		"Path to configuration file")

	// Logging overrides
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	// Processing overrides
	rootCmd.PersistentFlags().IntVar(&batchSize, "batch-size", 0,
		"Override batch size (claim lookups per pipeline round trip)")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 0,
		"Override number of categories expanded in parallel")

	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false,
		"Disable colored output")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings
type CLIOverrides struct {
	LogLevel    string
	LogFormat   string
	BatchSize   int
	Concurrency int
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:    logLevel,
		LogFormat:   logFormat,
		BatchSize:   batchSize,
		Concurrency: concurrency,
	}
}

// loadConfig reads the config file, applies CLI overrides and validates the result.
func loadConfig(lockSession, verify bool) (*config.Config, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	overrides := GetCLIOverrides()
	cfg.ApplyOverrides(overrides.LogLevel, overrides.LogFormat,
		overrides.BatchSize, overrides.Concurrency,
		lockSession, verify)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// connectStore connects to the configured server. The caller must Close the manager.
func connectStore(ctx context.Context, cfg *config.Config) (*store.Manager, error) {
	manager := store.NewManager(cfg)
	if err := manager.Connect(ctx); err != nil {
		return nil, err
	}
	return manager, nil
}

// sessionFlags holds the --user and --chart flags that name a session.
type sessionFlags struct {
	user  string
	chart string
}

func (s *sessionFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&s.user, "user", "u", "",
		"Requester identifier of the session (required)")
	cmd.Flags().StringVar(&s.chart, "chart", "",
		"Analysis identifier of the session (required)")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("chart")
}

func (s *sessionFlags) namespace() (session.Namespace, error) {
	return session.NewNamespace(s.user, s.chart)
}
