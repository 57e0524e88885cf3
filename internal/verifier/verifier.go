// Package verifier checks the invariants of a finished analysis session.
package verifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dbsmedya/claimsurvival/internal/logger"
	"github.com/dbsmedya/claimsurvival/internal/session"
	"github.com/dbsmedya/claimsurvival/internal/types"
)

// ErrInvariantViolated is returned when a session breaks at least one invariant.
var ErrInvariantViolated = errors.New("session invariant violated")

// Check names an invariant.
type Check string

const (
	// CheckSingleMembership: a claim key is in at most one expanded collection.
	CheckSingleMembership Check = "single_membership"
	// CheckMonotonicity: a category never gains claims during dedup.
	CheckMonotonicity Check = "monotonicity"
	// CheckIndexLiveness: every key listed in the session index exists.
	CheckIndexLiveness Check = "index_liveness"
)

// Violation describes one broken invariant.
type Violation struct {
	Check    Check
	Category string
	Detail   string
}

func (v Violation) String() string {
	if v.Category == "" {
		return fmt.Sprintf("%s: %s", v.Check, v.Detail)
	}
	return fmt.Sprintf("%s [%s]: %s", v.Check, v.Category, v.Detail)
}

// Result holds verification statistics.
type Result struct {
	CategoriesChecked int
	ClaimsChecked     int64
	KeysChecked       int
	Violations        []Violation
}

// Passed reports whether no invariant was violated.
func (r *Result) Passed() bool {
	return len(r.Violations) == 0
}

// Verifier reads a session back from the store and checks its invariants.
type Verifier struct {
	rdb        redis.Cmdable
	categories []string
	logger     *logger.Logger
}

// NewVerifier creates a new verifier for the given taxonomy.
func NewVerifier(rdb redis.Cmdable, categories []string, log *logger.Logger) (*Verifier, error) {
	if rdb == nil {
		return nil, fmt.Errorf("store client is nil")
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("taxonomy is empty")
	}
	if log == nil {
		log = logger.NewDefault()
	}

	return &Verifier{
		rdb:        rdb,
		categories: categories,
		logger:     log,
	}, nil
}

// Verify checks single membership and index liveness of the session, and
// monotonicity of unique against raw. raw and unique are per-category counts
// in taxonomy order; raw may be nil to skip the monotonicity check.
// Returns ErrInvariantViolated (wrapped) together with the Result when any
// check fails.
func (v *Verifier) Verify(ctx context.Context, ns session.Namespace, raw, unique []types.CategoryCount) (*Result, error) {
	result := &Result{}
	log := v.logger.WithSession(ns.String())

	if err := v.checkMembership(ctx, ns, result); err != nil {
		return result, err
	}
	if raw != nil {
		v.checkMonotonicity(raw, unique, result)
	}
	if err := v.checkIndex(ctx, ns, result); err != nil {
		return result, err
	}

	if !result.Passed() {
		for _, violation := range result.Violations {
			log.Errorf("Verification FAILED: %s", violation)
		}
		return result, fmt.Errorf("%w: %d violations in session %s", ErrInvariantViolated, len(result.Violations), ns)
	}

	log.Infof("Verification complete: %d categories, %d claims, %d keys checked",
		result.CategoriesChecked, result.ClaimsChecked, result.KeysChecked)
	return result, nil
}

func (v *Verifier) checkMembership(ctx context.Context, ns session.Namespace, result *Result) error {
	cmds := make([]*redis.StringSliceCmd, len(v.categories))
	_, err := v.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, category := range v.categories {
			cmds[i] = pipe.ZRange(ctx, ns.ExpandedKey(category), 0, -1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to read expanded collections: %w", err)
	}

	owner := make(map[string]string)
	for i, category := range v.categories {
		result.CategoriesChecked++
		for _, member := range cmds[i].Val() {
			result.ClaimsChecked++
			if first, ok := owner[member]; ok {
				result.Violations = append(result.Violations, Violation{
					Check:    CheckSingleMembership,
					Category: category,
					Detail:   fmt.Sprintf("%s is also in %s", member, first),
				})
				continue
			}
			owner[member] = category
		}
	}
	return nil
}

func (v *Verifier) checkMonotonicity(raw, unique []types.CategoryCount, result *Result) {
	before := make(map[string]int64, len(raw))
	for _, c := range raw {
		before[c.Category] = c.Count
	}
	for _, c := range unique {
		if n, ok := before[c.Category]; ok && c.Count > n {
			result.Violations = append(result.Violations, Violation{
				Check:    CheckMonotonicity,
				Category: c.Category,
				Detail:   fmt.Sprintf("unique=%d exceeds raw=%d", c.Count, n),
			})
		}
	}

	if types.SumCounts(unique) > types.SumCounts(raw) {
		result.Violations = append(result.Violations, Violation{
			Check:  CheckMonotonicity,
			Detail: fmt.Sprintf("unique total %d exceeds raw total %d", types.SumCounts(unique), types.SumCounts(raw)),
		})
	}
}

func (v *Verifier) checkIndex(ctx context.Context, ns session.Namespace, result *Result) error {
	members, err := v.rdb.SMembers(ctx, ns.IndexKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to read session index: %w", err)
	}

	cmds := make([]*redis.IntCmd, len(members))
	_, err = v.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range members {
			cmds[i] = pipe.Exists(ctx, key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to check indexed keys: %w", err)
	}

	for i, key := range members {
		result.KeysChecked++
		if cmds[i].Val() == 0 {
			result.Violations = append(result.Violations, Violation{
				Check:  CheckIndexLiveness,
				Detail: fmt.Sprintf("indexed key %s does not exist", key),
			})
		}
	}
	return nil
}
