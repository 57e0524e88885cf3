// Package session manages the ephemeral per-analysis working area in the store.
//
// A session is identified by (requester, analysis) and owns an index set that
// enumerates every working key holding live data for it. Every key written for
// a session, the index included, carries the configured TTL and is refreshed
// on each write.
package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrInvalidNamespace is returned when a requester or analysis id is unusable as
// part of a store key.
var ErrInvalidNamespace = errors.New("invalid session namespace")

// ErrKeyConflict is returned when a category name would map onto another
// working key of the session.
var ErrKeyConflict = errors.New("category collides with a session key")

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// reservedNames are key suffixes the session uses for itself.
var reservedNames = map[string]string{
	"index": "the session index",
	"lock":  "the session lock",
	"all":   "the raw working set prefix",
}

// Namespace identifies a session.
type Namespace struct {
	Requester string
	Analysis  string
}

// NewNamespace creates a validated Namespace.
func NewNamespace(requester, analysis string) (Namespace, error) {
	ns := Namespace{Requester: requester, Analysis: analysis}
	if err := ns.Validate(); err != nil {
		return Namespace{}, err
	}
	return ns, nil
}

// Validate checks that both ids are non-empty and contain only
// alphanumerics, '_' or '-'.
func (n Namespace) Validate() error {
	if !segmentPattern.MatchString(n.Requester) {
		return fmt.Errorf("%w: requester %q", ErrInvalidNamespace, n.Requester)
	}
	if !segmentPattern.MatchString(n.Analysis) {
		return fmt.Errorf("%w: analysis %q", ErrInvalidNamespace, n.Analysis)
	}
	return nil
}

// String returns the key prefix, e.g. "user7:chart2".
func (n Namespace) String() string {
	return fmt.Sprintf("user%s:chart%s", n.Requester, n.Analysis)
}

// IndexKey is the set listing every live working key of the session.
func (n Namespace) IndexKey() string {
	return n.String() + ":index"
}

// RawKey is the raw working set of claim hash keys for a category.
func (n Namespace) RawKey(category string) string {
	return n.String() + ":all:" + category
}

// ExpandedKey is the sorted collection of display keys for a category.
func (n Namespace) ExpandedKey(category string) string {
	return n.String() + ":" + category
}

// OverlapKey holds the intersection found between a higher and a lower
// priority category during dedup.
func (n Namespace) OverlapKey(higher, lower string) string {
	return n.String() + ":" + higher + "_" + lower
}

// LockKey is the key used for optional per-session mutual exclusion. It is not
// registered in the index.
func (n Namespace) LockKey() string {
	return n.String() + ":lock"
}

// CategoryConflict describes the session key category would share under
// taxonomy, or returns "" when its expanded key is unique. Overlap keys join
// two categories with '_', so a category spelled "<x>_<y>" for two other
// configured categories collides with their overlap.
func CategoryConflict(category string, taxonomy []string) string {
	if what, ok := reservedNames[category]; ok {
		return what
	}
	for _, higher := range taxonomy {
		if higher == category {
			continue
		}
		lower, ok := strings.CutPrefix(category, higher+"_")
		if !ok || lower == higher {
			continue
		}
		for _, c := range taxonomy {
			if c == lower {
				return fmt.Sprintf("the overlap key of %s and %s", higher, lower)
			}
		}
	}
	return ""
}

// CheckTaxonomy returns ErrKeyConflict for the first category whose keys
// would collide with another session key.
func CheckTaxonomy(taxonomy []string) error {
	for _, category := range taxonomy {
		if what := CategoryConflict(category, taxonomy); what != "" {
			return fmt.Errorf("%w: category %q maps onto %s", ErrKeyConflict, category, what)
		}
	}
	return nil
}

// Store reads and writes session bookkeeping.
type Store struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewStore creates a session store over the given client.
func NewStore(rdb redis.Cmdable, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// TTL returns the lifetime applied to every working key.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Touch queues a TTL refresh for key on pipe.
func (s *Store) Touch(ctx context.Context, pipe redis.Pipeliner, key string) {
	pipe.Expire(ctx, key, s.ttl)
}

// Register queues adding keys to the session index and refreshing the index TTL.
func (s *Store) Register(ctx context.Context, pipe redis.Pipeliner, ns Namespace, keys ...string) {
	if len(keys) == 0 {
		return
	}
	members := make([]interface{}, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	pipe.SAdd(ctx, ns.IndexKey(), members...)
	pipe.Expire(ctx, ns.IndexKey(), s.ttl)
}

// Unregister removes keys from the session index.
func (s *Store) Unregister(ctx context.Context, ns Namespace, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	members := make([]interface{}, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	if err := s.rdb.SRem(ctx, ns.IndexKey(), members...).Err(); err != nil {
		return fmt.Errorf("failed to unregister session keys: %w", err)
	}
	return nil
}

// Members returns the keys currently listed in the session index.
func (s *Store) Members(ctx context.Context, ns Namespace) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, ns.IndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session index: %w", err)
	}
	return members, nil
}

// Clear deletes every key listed in the session index and the index itself.
// It returns the number of keys removed. Clearing an unknown session is a no-op.
func (s *Store) Clear(ctx context.Context, ns Namespace) (int64, error) {
	members, err := s.Members(ctx, ns)
	if err != nil {
		return 0, err
	}

	keys := append(members, ns.IndexKey())
	n, err := s.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to clear session %s: %w", ns, err)
	}
	return n, nil
}

// Entry describes one live working key.
type Entry struct {
	Key  string
	Type string
	TTL  time.Duration
	Size int64
}

// Inspect returns type, remaining TTL and cardinality of every indexed key.
// Keys listed in the index that no longer exist are reported with Type "none".
func (s *Store) Inspect(ctx context.Context, ns Namespace) ([]Entry, error) {
	members, err := s.Members(ctx, ns)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	typeCmds := make([]*redis.StatusCmd, len(members))
	ttlCmds := make([]*redis.DurationCmd, len(members))
	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range members {
			typeCmds[i] = pipe.Type(ctx, key)
			ttlCmds[i] = pipe.TTL(ctx, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to inspect session %s: %w", ns, err)
	}

	entries := make([]Entry, len(members))
	sizeCmds := make([]*redis.IntCmd, len(members))
	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range members {
			entries[i] = Entry{
				Key:  key,
				Type: typeCmds[i].Val(),
				TTL:  ttlCmds[i].Val(),
			}
			switch entries[i].Type {
			case "set":
				sizeCmds[i] = pipe.SCard(ctx, key)
			case "zset":
				sizeCmds[i] = pipe.ZCard(ctx, key)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to size session keys: %w", err)
	}

	for i, cmd := range sizeCmds {
		if cmd != nil {
			entries[i].Size = cmd.Val()
		}
	}
	return entries, nil
}
