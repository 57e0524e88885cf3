package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/claimsurvival/internal/logger"
	"github.com/dbsmedya/claimsurvival/internal/store"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and check the store",
	Long: `Validate checks the configuration file and the claim store to ensure
an analysis can run.

Checks performed:
  - Configuration syntax and required fields
  - Taxonomy (non-empty, unique, key-safe category names)
  - Store connectivity
  - Presence of every category partition

Example:
  claimsurvival validate --config claimsurvival.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	cfg, err := loadConfig(false, false)
	if err != nil {
		fmt.Fprintf(outputWriter, "❌ %v\n", err)
		return err
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("Starting validation checks...")

	fmt.Fprintf(outputWriter, "\n=== Configuration Validation ===\n")
	fmt.Fprintf(outputWriter, "Config file: %s\n", configFile)
	fmt.Fprintf(outputWriter, "Categories: %d\n", len(cfg.Taxonomy.Categories))
	fmt.Fprintf(outputWriter, "✅ Configuration is valid\n\n")

	ctx := context.Background()
	manager, err := connectStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(outputWriter, "❌ Store connection failed: %v\n", err)
		return err
	}
	defer manager.Close()

	keys, err := manager.KeyCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to count keys: %w", err)
	}
	fmt.Fprintf(outputWriter, "✅ Connected to %s (%d keys)\n", store.Addr(&cfg.Redis), keys)

	missing := 0
	for _, category := range cfg.Taxonomy.Categories {
		partition := cfg.Layout.PartitionKey(category)
		n, err := manager.Client.Exists(ctx, partition).Result()
		if err != nil {
			return fmt.Errorf("failed to check partition %s: %w", partition, err)
		}
		if n == 0 {
			missing++
			fmt.Fprintf(outputWriter, "⚠️  Partition %s is missing (category %s will always count 0)\n", partition, category)
		}
	}

	fmt.Fprintln(outputWriter, "\n=== Validation Complete ===")
	if missing > 0 {
		fmt.Fprintf(outputWriter, "✅ Valid with %d missing partition(s)\n", missing)
		return nil
	}
	fmt.Fprintln(outputWriter, "✅ All checks passed")
	return nil
}
