// Package survival bins claims into survival categories and removes duplicate
// category membership so each claim is counted once, in its highest-priority
// category.
//
// A run has three stages that always execute in order:
//
//	Aggregator    raw per-category counts for the scope (read-only)
//	Binner        per-category working sets and expanded collections in the session
//	Deduplicator  pairwise removal of overlaps from lower-priority categories
//
// The Orchestrator composes them into a Report.
package survival

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/redis/go-redis/v9"

	"github.com/dbsmedya/claimsurvival/internal/config"
	"github.com/dbsmedya/claimsurvival/internal/session"
	"github.com/dbsmedya/claimsurvival/internal/types"
)

// ErrEmptyTaxonomy is returned when no categories are configured.
var ErrEmptyTaxonomy = errors.New("taxonomy has no categories")

// CategoryCount is an alias for types.CategoryCount to avoid import cycles
// with the verifier.
type CategoryCount = types.CategoryCount

// Report is the combined result of one analysis run.
type Report struct {
	Title          string          `json:"title"`
	CountTotal     int64           `json:"countTotal"`
	SurvivalTotal  []CategoryCount `json:"survivalTotal"`
	CountUnique    int64           `json:"countUnique"`
	SurvivalUnique []CategoryCount `json:"survivalUnique"`
}

// Totals are the duplicate-inclusive counts for a scope.
type Totals struct {
	Total       int64
	PerCategory []CategoryCount
}

// Overlap records the claim keys found in both a higher and a lower priority
// category; they were removed from Lower.
type Overlap struct {
	Higher  string
	Lower   string
	Members []string
}

// DedupResult holds the final per-category counts and the overlaps resolved.
type DedupResult struct {
	Unique   []CategoryCount
	Overlaps []Overlap
}

// SkipHook is notified for every claim dropped during expansion because its
// record was incomplete. It may be called from several goroutines at once.
type SkipHook func(category, key string, reason types.SkipReason)

// PriorityOrder returns the categories from highest to lowest dedup priority.
// The last configured category has rank 0 and wins every overlap.
func PriorityOrder(categories []string) []string {
	order := make([]string, len(categories))
	for i, c := range categories {
		order[len(categories)-1-i] = c
	}
	return order
}

// Rank returns the dedup rank of category under cfg's taxonomy, matching its
// position in PriorityOrder, or -1 when the category is not configured.
func Rank(cfg *config.Config, category string) int {
	idx := cfg.CategoryIndex(category)
	if idx < 0 {
		return -1
	}
	return len(cfg.Taxonomy.Categories) - 1 - idx
}

// sessionCategories returns the taxonomy of stages that write session keys,
// refusing categories whose keys would collide with other session keys.
func sessionCategories(cfg *config.Config) ([]string, error) {
	categories := cfg.Taxonomy.Categories
	if len(categories) == 0 {
		return nil, ErrEmptyTaxonomy
	}
	if err := session.CheckTaxonomy(categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// scopeMembers returns the claim hash keys in scope. The all scope is
// enumerated with SCAN over the record prefix; any other scope is read as a set.
// An unknown scope yields no keys.
func scopeMembers(ctx context.Context, rdb redis.Cmdable, cfg *config.Config, scope string) ([]string, error) {
	if !cfg.Layout.IsAllScope(scope) {
		keys, err := rdb.SMembers(ctx, scope).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read scope %q: %w", scope, err)
		}
		return keys, nil
	}

	// SCAN may return a key more than once.
	seen := make(map[string]struct{})
	iter := rdb.Scan(ctx, 0, cfg.Layout.RecordPrefix+"*", int64(cfg.Processing.BatchSize)).Iterator()
	for iter.Next(ctx) {
		seen[iter.Val()] = struct{}{}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan records: %w", err)
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// chunk splits keys into consecutive batches of at most size elements.
func chunk(keys []string, size int) [][]string {
	if size <= 0 {
		size = len(keys)
	}
	var batches [][]string
	for start := 0; start < len(keys); start += size {
		end := start + size
		if end > len(keys) {
			end = len(keys)
		}
		batches = append(batches, keys[start:end])
	}
	return batches
}

// newTally returns a zeroed count per category, iterating in taxonomy order.
func newTally(categories []string) *orderedmap.OrderedMap[string, int64] {
	tally := orderedmap.NewOrderedMap[string, int64]()
	for _, c := range categories {
		tally.Set(c, 0)
	}
	return tally
}

// increment bumps category if it is part of the taxonomy.
func increment(tally *orderedmap.OrderedMap[string, int64], category string) bool {
	n, ok := tally.Get(category)
	if !ok {
		return false
	}
	tally.Set(category, n+1)
	return true
}

func tallyCounts(tally *orderedmap.OrderedMap[string, int64]) []CategoryCount {
	counts := make([]CategoryCount, 0, tally.Len())
	for el := tally.Front(); el != nil; el = el.Next() {
		counts = append(counts, CategoryCount{Category: el.Key, Count: el.Value})
	}
	return counts
}

func toMembers(keys []string) []interface{} {
	members := make([]interface{}, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	return members
}
