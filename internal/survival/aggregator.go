package survival

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dbsmedya/claimsurvival/internal/config"
	"github.com/dbsmedya/claimsurvival/internal/logger"
)

// Aggregator produces duplicate-inclusive category counts by reading each
// claim's category attribute. It never writes to the store.
type Aggregator struct {
	rdb    redis.Cmdable
	cfg    *config.Config
	logger *logger.Logger
}

// NewAggregator creates a new aggregator.
func NewAggregator(rdb redis.Cmdable, cfg *config.Config, log *logger.Logger) *Aggregator {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Aggregator{rdb: rdb, cfg: cfg, logger: log}
}

// Aggregate counts the claims in scope per category. Total is the number of
// claims in scope, including those whose category is missing or unknown.
// Lookups are pipelined in batches of processing.batch_size.
func (a *Aggregator) Aggregate(ctx context.Context, scope string) (*Totals, error) {
	categories := a.cfg.Taxonomy.Categories
	if len(categories) == 0 {
		return nil, ErrEmptyTaxonomy
	}

	keys, err := scopeMembers(ctx, a.rdb, a.cfg, scope)
	if err != nil {
		return nil, err
	}

	tally := newTally(categories)
	var unknown int64
	field := a.cfg.Layout.CategoryField

	for _, batch := range chunk(keys, a.cfg.Processing.BatchSize) {
		cmds := make([]*redis.StringCmd, len(batch))
		_, err := a.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, key := range batch {
				cmds[i] = pipe.HGet(ctx, key, field)
			}
			return nil
		})
		// A missing field surfaces as redis.Nil; real failures are checked per command.
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to read %s attributes: %w", field, err)
		}

		for i, cmd := range cmds {
			category, err := cmd.Result()
			if errors.Is(err, redis.Nil) {
				unknown++
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to read %s of %s: %w", field, batch[i], err)
			}
			if !increment(tally, category) {
				unknown++
			}
		}
	}

	a.logger.WithScope(scope).Debugw("Aggregated raw counts",
		"claims", len(keys),
		"uncategorized", unknown,
	)

	return &Totals{
		Total:       int64(len(keys)),
		PerCategory: tallyCounts(tally),
	}, nil
}
