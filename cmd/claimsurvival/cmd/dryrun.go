package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/claimsurvival/internal/logger"
	"github.com/dbsmedya/claimsurvival/internal/survival"
)

var dryrunScope string

var dryrunCmd = &cobra.Command{
	Use:   "dry-run",
	Short: "Estimate an analysis without writing to the store",
	Long: `Dry-run sizes an analysis and reports what it would process without
creating any session keys.

The dry-run shows:
  - Size of every category partition
  - Number of claims in the scope
  - Claims each category would bin, and lookup batches needed

Example:
  claimsurvival dry-run --config claimsurvival.yaml --scope survivalScope:42`,
	RunE: runDryrun,
}

func init() {
	dryrunCmd.Flags().StringVarP(&dryrunScope, "scope", "s", "",
		"Scope set key, or the all-scope token (default: layout.all_scope)")

	rootCmd.AddCommand(dryrunCmd)
}

func runDryrun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false, false)
	if err != nil {
		return err
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	scope := dryrunScope
	if scope == "" {
		scope = cfg.Layout.AllScope
	}

	ctx := context.Background()
	manager, err := connectStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer manager.Close()

	estimator := survival.NewEstimator(manager.Client, cfg, log)
	est, err := estimator.Estimate(ctx, scope)
	if err != nil {
		return fmt.Errorf("estimation failed: %w", err)
	}

	printEstimate(est)
	return nil
}

func printEstimate(est *survival.Estimate) {
	printHeader("Dry Run: %s", est.Scope)

	fmt.Fprintln(outputWriter)
	printSection("Scope")
	printRows([][2]string{
		{"Claims in scope", fmt.Sprintf("%d", est.ScopeSize)},
		{"Batch size", fmt.Sprintf("%d", est.BatchSize)},
		{"Lookup batches", fmt.Sprintf("%d", est.EstimatedBatches)},
	})

	fmt.Fprintln(outputWriter)
	printSection("Categories (in scope / partition)")
	rows := make([][2]string, len(est.Partitions))
	for i, p := range est.Partitions {
		rows[i] = [2]string{p.Category, fmt.Sprintf("%d / %d", est.InScope[i].Count, p.Count)}
	}
	printRows(rows)
}
