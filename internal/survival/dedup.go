package survival

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dbsmedya/claimsurvival/internal/config"
	"github.com/dbsmedya/claimsurvival/internal/logger"
	"github.com/dbsmedya/claimsurvival/internal/session"
)

// Deduplicator removes claims that appear in more than one expanded
// collection from every category except the highest-priority one.
type Deduplicator struct {
	rdb      redis.Cmdable
	cfg      *config.Config
	sessions *session.Store
	logger   *logger.Logger
}

// NewDeduplicator creates a new deduplicator.
func NewDeduplicator(rdb redis.Cmdable, cfg *config.Config, log *logger.Logger) *Deduplicator {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Deduplicator{
		rdb:      rdb,
		cfg:      cfg,
		sessions: session.NewStore(rdb, cfg.TTL()),
		logger:   log,
	}
}

// Dedup walks every pair (higher, lower) in priority order, highest first,
// and removes their intersection from lower. Pairs are processed
// sequentially; a later pair sees the removals of earlier ones.
// It returns the final cardinality of every expanded collection in taxonomy
// order.
func (d *Deduplicator) Dedup(ctx context.Context, ns session.Namespace) (*DedupResult, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	categories, err := sessionCategories(d.cfg)
	if err != nil {
		return nil, err
	}

	log := d.logger.WithSession(ns.String())
	order := PriorityOrder(categories)
	result := &DedupResult{}

	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			members, err := d.resolvePair(ctx, ns, order[i], order[j])
			if err != nil {
				return nil, fmt.Errorf("failed to resolve %s/%s overlap: %w", order[i], order[j], err)
			}
			if len(members) == 0 {
				continue
			}
			overlapRemovals.WithLabelValues(order[j]).Add(float64(len(members)))
			log.Debugw("Removed overlap",
				"higher", order[i],
				"lower", order[j],
				"claims", len(members),
			)
			result.Overlaps = append(result.Overlaps, Overlap{Higher: order[i], Lower: order[j], Members: members})
		}
	}

	unique, err := d.cardinalities(ctx, ns)
	if err != nil {
		return nil, err
	}
	result.Unique = unique
	return result, nil
}

// resolvePair stores higher ∩ lower under the overlap key and removes those
// members from lower. The overlap key is only registered when non-empty, and
// lower is unregistered if the removal emptied it.
func (d *Deduplicator) resolvePair(ctx context.Context, ns session.Namespace, higher, lower string) ([]string, error) {
	overlapKey := ns.OverlapKey(higher, lower)
	lowerKey := ns.ExpandedKey(lower)

	var overlap *redis.StringSliceCmd
	_, err := d.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZInterStore(ctx, overlapKey, &redis.ZStore{
			Keys:      []string{ns.ExpandedKey(higher), lowerKey},
			Aggregate: "MIN",
		})
		d.sessions.Touch(ctx, pipe, overlapKey)
		overlap = pipe.ZRange(ctx, overlapKey, 0, -1)
		return nil
	})
	if err != nil {
		return nil, err
	}

	members := overlap.Val()
	if len(members) == 0 {
		return nil, nil
	}

	var remaining *redis.IntCmd
	_, err = d.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		d.sessions.Register(ctx, pipe, ns, overlapKey)
		pipe.ZRem(ctx, lowerKey, toMembers(members)...)
		remaining = pipe.ZCard(ctx, lowerKey)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if remaining.Val() == 0 {
		if err := d.sessions.Unregister(ctx, ns, lowerKey); err != nil {
			return nil, err
		}
	}
	return members, nil
}

func (d *Deduplicator) cardinalities(ctx context.Context, ns session.Namespace) ([]CategoryCount, error) {
	categories := d.cfg.Taxonomy.Categories
	cmds := make([]*redis.IntCmd, len(categories))
	_, err := d.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, category := range categories {
			cmds[i] = pipe.ZCard(ctx, ns.ExpandedKey(category))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count expanded collections: %w", err)
	}

	counts := make([]CategoryCount, len(categories))
	for i, category := range categories {
		counts[i] = CategoryCount{Category: category, Count: cmds[i].Val()}
	}
	return counts, nil
}
