package survival

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dbsmedya/claimsurvival/internal/config"
	"github.com/dbsmedya/claimsurvival/internal/lock"
	"github.com/dbsmedya/claimsurvival/internal/logger"
	"github.com/dbsmedya/claimsurvival/internal/session"
	"github.com/dbsmedya/claimsurvival/internal/types"
	"github.com/dbsmedya/claimsurvival/internal/verifier"
)

// Orchestrator runs aggregation, binning and deduplication for one
// (scope, session) request and merges the results into a Report.
type Orchestrator struct {
	cfg          *config.Config
	rdb          redis.Cmdable
	logger       *logger.Logger
	aggregator   *Aggregator
	binner       *Binner
	deduplicator *Deduplicator
	verifier     *verifier.Verifier
}

// NewOrchestrator creates an orchestrator for the given configuration and
// store client.
func NewOrchestrator(cfg *config.Config, rdb redis.Cmdable, log *logger.Logger) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if rdb == nil {
		return nil, fmt.Errorf("store client is nil")
	}
	if _, err := sessionCategories(cfg); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewDefault()
	}

	v, err := verifier.NewVerifier(rdb, cfg.Taxonomy.Categories, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create verifier: %w", err)
	}

	return &Orchestrator{
		cfg:          cfg,
		rdb:          rdb,
		logger:       log,
		aggregator:   NewAggregator(rdb, cfg, log),
		binner:       NewBinner(rdb, cfg, log),
		deduplicator: NewDeduplicator(rdb, cfg, log),
		verifier:     v,
	}, nil
}

// SetSkipHook registers a hook notified of every claim skipped during binning.
func (o *Orchestrator) SetSkipHook(hook SkipHook) {
	o.binner.SetSkipHook(hook)
}

// Run analyzes scope into session ns. When session locking is enabled the
// whole run holds the session lock, and a second run on the same session
// fails with lock.ErrLockTimeout. A failing stage fails the run; keys
// already written are left to expire.
func (o *Orchestrator) Run(ctx context.Context, scope string, ns session.Namespace) (*Report, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	var report *Report
	run := func() error {
		var err error
		report, err = o.run(ctx, scope, ns)
		return err
	}

	var err error
	if o.cfg.Session.LockEnabled {
		l := lock.NewSessionLock(o.rdb, ns.LockKey(), o.cfg.LockLease())
		err = l.WithLock(ctx, o.cfg.LockTimeout(), run)
	} else {
		err = run()
	}

	analysisDuration.Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
		analysisRuns.WithLabelValues("success").Inc()
	case errors.Is(err, lock.ErrLockTimeout):
		analysisRuns.WithLabelValues("locked").Inc()
	default:
		analysisRuns.WithLabelValues("error").Inc()
	}

	if err != nil {
		return nil, err
	}
	return report, nil
}

func (o *Orchestrator) run(ctx context.Context, scope string, ns session.Namespace) (*Report, error) {
	log := o.logger.WithSession(ns.String()).WithScope(scope)
	log.Infow("Starting analysis", "categories", len(o.cfg.Taxonomy.Categories))

	totals, err := o.aggregator.Aggregate(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("raw aggregation failed: %w", err)
	}

	raw, err := o.binner.Bin(ctx, scope, ns)
	if err != nil {
		return nil, fmt.Errorf("binning failed: %w", err)
	}

	dedup, err := o.deduplicator.Dedup(ctx, ns)
	if err != nil {
		return nil, fmt.Errorf("deduplication failed: %w", err)
	}

	if o.cfg.Verification.Enabled {
		if _, err := o.verifier.Verify(ctx, ns, raw, dedup.Unique); err != nil {
			return nil, fmt.Errorf("verification failed: %w", err)
		}
	}

	report := &Report{
		Title:          scope,
		CountTotal:     totals.Total,
		SurvivalTotal:  totals.PerCategory,
		CountUnique:    types.SumCounts(dedup.Unique),
		SurvivalUnique: dedup.Unique,
	}

	log.Infow("Analysis complete",
		"claims", report.CountTotal,
		"unique", report.CountUnique,
		"overlaps", len(dedup.Overlaps),
	)
	return report, nil
}
