package survival

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dbsmedya/claimsurvival/internal/config"
	"github.com/dbsmedya/claimsurvival/internal/logger"
	"github.com/dbsmedya/claimsurvival/internal/session"
	"github.com/dbsmedya/claimsurvival/internal/types"
)

// Binner builds the per-category working sets and expanded collections of a
// session. Every key it creates is registered in the session index and
// expires after taxonomy.ttl_seconds.
type Binner struct {
	rdb      redis.Cmdable
	cfg      *config.Config
	sessions *session.Store
	logger   *logger.Logger
	onSkip   SkipHook
}

// NewBinner creates a new binner.
func NewBinner(rdb redis.Cmdable, cfg *config.Config, log *logger.Logger) *Binner {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Binner{
		rdb:      rdb,
		cfg:      cfg,
		sessions: session.NewStore(rdb, cfg.TTL()),
		logger:   log,
	}
}

// SetSkipHook registers a hook called for every claim skipped during expansion.
func (b *Binner) SetSkipHook(hook SkipHook) {
	b.onSkip = hook
}

// Bin clears the session, then builds a raw set and an expanded collection
// for every category. It returns the expanded cardinality per category in
// taxonomy order.
//
// Steps:
//  1. Delete every key listed in the session index, then the index itself
//  2. In one transaction, build each raw set as partition ∩ scope
//     (or a copy of the partition for the all scope)
//  3. Expand categories concurrently: look up each claim's identifier and
//     display key and add it to the category's expanded collection
func (b *Binner) Bin(ctx context.Context, scope string, ns session.Namespace) ([]CategoryCount, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	categories, err := sessionCategories(b.cfg)
	if err != nil {
		return nil, err
	}

	log := b.logger.WithSession(ns.String()).WithScope(scope)

	cleared, err := b.sessions.Clear(ctx, ns)
	if err != nil {
		return nil, fmt.Errorf("failed to clear session: %w", err)
	}
	if cleared > 0 {
		log.Debugw("Cleared previous session keys", "keys", cleared)
	}

	members, err := b.buildRawSets(ctx, scope, ns)
	if err != nil {
		return nil, err
	}

	counts := make([]CategoryCount, len(categories))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers())

	for i, category := range categories {
		i, category := i, category
		g.Go(func() error {
			n, err := b.expand(gctx, ns, category, members[i])
			if err != nil {
				return fmt.Errorf("failed to expand %s: %w", category, err)
			}
			counts[i] = CategoryCount{Category: category, Count: n}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, c := range counts {
		log.Infof("%s: %d patent/claim combinations added to %s", ns, c.Count, c.Category)
	}
	return counts, nil
}

// buildRawSets creates every raw set in a single transaction and returns
// their members in taxonomy order. Raw sets that came out empty do not exist
// in the store and are dropped from the index.
func (b *Binner) buildRawSets(ctx context.Context, scope string, ns session.Namespace) ([][]string, error) {
	categories := b.cfg.Taxonomy.Categories
	all := b.cfg.Layout.IsAllScope(scope)

	sizes := make([]*redis.IntCmd, len(categories))
	members := make([]*redis.StringSliceCmd, len(categories))

	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, category := range categories {
			raw := ns.RawKey(category)
			partition := b.cfg.Layout.PartitionKey(category)
			if all {
				sizes[i] = pipe.SUnionStore(ctx, raw, partition)
			} else {
				sizes[i] = pipe.SInterStore(ctx, raw, partition, scope)
			}
			b.sessions.Touch(ctx, pipe, raw)
			b.sessions.Register(ctx, pipe, ns, raw)
			members[i] = pipe.SMembers(ctx, raw)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build raw sets: %w", err)
	}

	var empty []string
	result := make([][]string, len(categories))
	for i, category := range categories {
		if sizes[i].Val() == 0 {
			empty = append(empty, ns.RawKey(category))
		}
		result[i] = members[i].Val()
	}

	if err := b.sessions.Unregister(ctx, ns, empty...); err != nil {
		return nil, err
	}
	return result, nil
}

// expand fills the expanded collection of category from the claim keys in
// members and returns its cardinality.
func (b *Binner) expand(ctx context.Context, ns session.Namespace, category string, members []string) (int64, error) {
	fields := b.cfg.Layout.RecordFields()
	entries := make([]redis.Z, 0, len(members))

	for _, batch := range chunk(members, b.cfg.Processing.BatchSize) {
		cmds := make([]*redis.SliceCmd, len(batch))
		_, err := b.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, key := range batch {
				cmds[i] = pipe.HMGet(ctx, key, fields...)
			}
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("failed to look up claims: %w", err)
		}

		for i, cmd := range cmds {
			record, reason := types.RecordFromFields(cmd.Val())
			if reason != types.SkipNone {
				b.skip(category, batch[i], reason)
				continue
			}
			entries = append(entries, redis.Z{Score: float64(record.ID), Member: record.Key()})
		}
	}

	expanded := ns.ExpandedKey(category)
	var card *redis.IntCmd
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(entries) > 0 {
			pipe.ZAdd(ctx, expanded, entries...)
			b.sessions.Touch(ctx, pipe, expanded)
			b.sessions.Register(ctx, pipe, ns, expanded)
		}
		card = pipe.ZCard(ctx, expanded)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", expanded, err)
	}
	return card.Val(), nil
}

func (b *Binner) skip(category, key string, reason types.SkipReason) {
	skippedRecords.WithLabelValues(category, string(reason)).Inc()
	b.logger.WithCategory(category).Debugw("Skipping incomplete claim",
		"key", key,
		"reason", reason,
	)
	if b.onSkip != nil {
		b.onSkip(category, key, reason)
	}
}
