package survival

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dbsmedya/claimsurvival/internal/config"
	"github.com/dbsmedya/claimsurvival/internal/logger"
)

// Estimate holds dry-run results.
type Estimate struct {
	Scope            string
	ScopeSize        int64
	Partitions       []CategoryCount // global partition sizes
	InScope          []CategoryCount // partition ∩ scope sizes
	EstimatedBatches int64
	BatchSize        int
}

// Estimator sizes an analysis without writing to the store.
type Estimator struct {
	rdb    redis.Cmdable
	cfg    *config.Config
	logger *logger.Logger
}

// NewEstimator creates a new estimator.
func NewEstimator(rdb redis.Cmdable, cfg *config.Config, log *logger.Logger) *Estimator {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Estimator{rdb: rdb, cfg: cfg, logger: log}
}

// Estimate reports partition sizes, scope size and the number of claims each
// category would bin, plus the number of lookup batches binning would issue.
func (e *Estimator) Estimate(ctx context.Context, scope string) (*Estimate, error) {
	categories := e.cfg.Taxonomy.Categories
	if len(categories) == 0 {
		return nil, ErrEmptyTaxonomy
	}

	result := &Estimate{
		Scope:     scope,
		BatchSize: e.cfg.Processing.BatchSize,
	}

	partitions, err := e.partitionSizes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate partitions: %w", err)
	}
	result.Partitions = partitions

	members, err := scopeMembers(ctx, e.rdb, e.cfg, scope)
	if err != nil {
		return nil, err
	}
	result.ScopeSize = int64(len(members))

	if e.cfg.Layout.IsAllScope(scope) {
		result.InScope = partitions
	} else {
		inScope, err := e.inScopeSizes(ctx, members)
		if err != nil {
			return nil, fmt.Errorf("failed to estimate scope %q: %w", scope, err)
		}
		result.InScope = inScope
	}

	if result.BatchSize > 0 {
		for _, c := range result.InScope {
			result.EstimatedBatches += (c.Count + int64(result.BatchSize) - 1) / int64(result.BatchSize)
		}
	}

	e.logger.WithScope(scope).Debugw("Estimated analysis",
		"scope_size", result.ScopeSize,
		"batches", result.EstimatedBatches,
	)
	return result, nil
}

func (e *Estimator) partitionSizes(ctx context.Context) ([]CategoryCount, error) {
	categories := e.cfg.Taxonomy.Categories
	cmds := make([]*redis.IntCmd, len(categories))
	_, err := e.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, category := range categories {
			cmds[i] = pipe.SCard(ctx, e.cfg.Layout.PartitionKey(category))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	counts := make([]CategoryCount, len(categories))
	for i, category := range categories {
		counts[i] = CategoryCount{Category: category, Count: cmds[i].Val()}
	}
	return counts, nil
}

// inScopeSizes counts, per category, how many scope members are in the
// category's partition.
func (e *Estimator) inScopeSizes(ctx context.Context, members []string) ([]CategoryCount, error) {
	categories := e.cfg.Taxonomy.Categories
	tally := newTally(categories)

	for _, batch := range chunk(members, e.cfg.Processing.BatchSize) {
		cmds := make([][]*redis.BoolCmd, len(categories))
		_, err := e.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, category := range categories {
				partition := e.cfg.Layout.PartitionKey(category)
				cmds[i] = make([]*redis.BoolCmd, len(batch))
				for j, key := range batch {
					cmds[i][j] = pipe.SIsMember(ctx, partition, key)
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		for i, category := range categories {
			for _, cmd := range cmds[i] {
				if cmd.Val() {
					increment(tally, category)
				}
			}
		}
	}
	return tallyCounts(tally), nil
}
