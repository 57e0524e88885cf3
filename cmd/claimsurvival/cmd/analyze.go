package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/claimsurvival/internal/lock"
	"github.com/dbsmedya/claimsurvival/internal/logger"
	"github.com/dbsmedya/claimsurvival/internal/store"
	"github.com/dbsmedya/claimsurvival/internal/survival"
)

var (
	analyzeScope   string
	analyzeOutput  string
	analyzeLock    bool
	analyzeVerify  bool
	analyzeSession sessionFlags
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Bin and deduplicate the claims of a scope",
	Long: `Analyze counts the claims of a scope per survival category, bins them into
the session's working collections, then removes every claim from all but its
highest-priority category.

The analysis follows these steps:
  1. Count raw category attributes for the scope (read-only)
  2. Clear the session and rebuild per-category working collections
  3. Remove overlaps pairwise, highest priority first
  4. Optionally verify session invariants (--verify)

Example:
  claimsurvival analyze --config claimsurvival.yaml --scope all --user 7 --chart 3`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeScope, "scope", "s", "",
		"Scope set key, or the all-scope token (default: layout.all_scope)")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", outputText,
		"Output format (text, json)")
	analyzeCmd.Flags().BoolVar(&analyzeLock, "lock", false,
		"Hold the session lock for the whole run")
	analyzeCmd.Flags().BoolVar(&analyzeVerify, "verify", false,
		"Verify session invariants after the run")
	analyzeSession.bind(analyzeCmd)

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if err := checkOutputFormat(analyzeOutput); err != nil {
		return err
	}
	ns, err := analyzeSession.namespace()
	if err != nil {
		return err
	}

	cfg, err := loadConfig(analyzeLock, analyzeVerify)
	if err != nil {
		return err
	}

	// Keep stdout clean for the JSON report.
	if analyzeOutput == outputJSON && (cfg.Logging.Output == "" || cfg.Logging.Output == "stdout") {
		cfg.Logging.Output = "stderr"
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	scope := analyzeScope
	if scope == "" {
		scope = cfg.Layout.AllScope
	}

	log.Infow("Starting analysis",
		"scope", scope,
		"session", ns.String(),
		"config", GetConfigFile(),
	)

	// Handle graceful shutdown
	ctx, stop := store.WithShutdownSignal(context.Background(), func(sig os.Signal) {
		log.Warnw("Received shutdown signal - aborting analysis", "signal", sig.String())
	})
	defer stop()

	manager, err := connectStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer manager.Close()

	orch, err := survival.NewOrchestrator(cfg, manager.Client, log)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	report, err := orch.Run(ctx, scope, ns)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("Analysis cancelled by user")
			return nil
		}
		if errors.Is(err, lock.ErrLockTimeout) {
			return fmt.Errorf("session %s is already being analyzed by another run", ns)
		}
		return fmt.Errorf("analysis failed: %w", err)
	}

	return printReport(report, analyzeOutput)
}
