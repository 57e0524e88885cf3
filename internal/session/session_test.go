package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, time.Hour), mr, rdb
}

func TestNamespaceKeys(t *testing.T) {
	ns := Namespace{Requester: "7", Analysis: "2"}

	assert.Equal(t, "user7:chart2", ns.String())
	assert.Equal(t, "user7:chart2:index", ns.IndexKey())
	assert.Equal(t, "user7:chart2:all:5_killed", ns.RawKey("5_killed"))
	assert.Equal(t, "user7:chart2:5_killed", ns.ExpandedKey("5_killed"))
	assert.Equal(t, "user7:chart2:2_unaffected_5_killed", ns.OverlapKey("2_unaffected", "5_killed"))
	assert.Equal(t, "user7:chart2:lock", ns.LockKey())
}

func TestNewNamespace(t *testing.T) {
	tests := []struct {
		name      string
		requester string
		analysis  string
		wantErr   bool
	}{
		{"numeric ids", "1", "3", false},
		{"names", "alice", "chart-a_1", false},
		{"empty requester", "", "1", true},
		{"empty analysis", "1", "", true},
		{"colon injection", "1:chart9", "1", true},
		{"wildcard", "*", "1", true},
		{"space", "a b", "1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ns, err := NewNamespace(tt.requester, tt.analysis)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidNamespace))
				assert.Equal(t, Namespace{}, ns)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.requester, ns.Requester)
			assert.Equal(t, tt.analysis, ns.Analysis)
		})
	}
}

func TestCategoryConflict(t *testing.T) {
	tests := []struct {
		name     string
		category string
		taxonomy []string
		want     string
	}{
		{"plain", "5_killed", []string{"5_killed", "2_unaffected"}, ""},
		{"index", "index", []string{"index", "killed"}, "the session index"},
		{"lock", "lock", []string{"lock"}, "the session lock"},
		{"all", "all", []string{"all", "killed"}, "the raw working set prefix"},
		{"overlap of two categories", "a_b", []string{"a_b", "b", "a"}, "the overlap key of a and b"},
		{"reverse overlap", "b_a", []string{"a", "b", "b_a"}, "the overlap key of b and a"},
		{"prefix without partner", "a_c", []string{"a", "b", "a_c"}, ""},
		{"self pair", "a_a", []string{"a", "a_a"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CategoryConflict(tt.category, tt.taxonomy))
		})
	}
}

func TestCheckTaxonomy(t *testing.T) {
	require.NoError(t, CheckTaxonomy([]string{"6_unbinned", "5_killed", "4_impaired", "3_weakened", "2_unaffected"}))
	require.NoError(t, CheckTaxonomy(nil))

	err := CheckTaxonomy([]string{"a_b", "b", "a"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKeyConflict))
	assert.Contains(t, err.Error(), `"a_b"`)

	assert.True(t, errors.Is(CheckTaxonomy([]string{"index", "killed"}), ErrKeyConflict))
}

func TestRegisterAndMembers(t *testing.T) {
	s, mr, rdb := newTestStore(t)
	ctx := context.Background()
	ns := Namespace{Requester: "1", Analysis: "1"}

	_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.Register(ctx, pipe, ns, ns.RawKey("a"), ns.ExpandedKey("a"))
		s.Register(ctx, pipe, ns) // no keys: nothing queued
		return nil
	})
	require.NoError(t, err)

	members, err := s.Members(ctx, ns)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user1:chart1:all:a", "user1:chart1:a"}, members)
	assert.Equal(t, time.Hour, mr.TTL(ns.IndexKey()))
}

func TestMembersOfUnknownSession(t *testing.T) {
	s, _, _ := newTestStore(t)

	members, err := s.Members(context.Background(), Namespace{Requester: "9", Analysis: "9"})
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestUnregister(t *testing.T) {
	s, mr, _ := newTestStore(t)
	ctx := context.Background()
	ns := Namespace{Requester: "1", Analysis: "1"}

	_, err := mr.SAdd(ns.IndexKey(), "k1", "k2")
	require.NoError(t, err)

	require.NoError(t, s.Unregister(ctx, ns, "k1"))
	require.NoError(t, s.Unregister(ctx, ns))

	members, err := mr.Members(ns.IndexKey())
	require.NoError(t, err)
	assert.Equal(t, []string{"k2"}, members)
}

func TestClear(t *testing.T) {
	s, mr, _ := newTestStore(t)
	ctx := context.Background()
	ns := Namespace{Requester: "1", Analysis: "2"}
	other := Namespace{Requester: "1", Analysis: "3"}

	_, err := mr.SAdd(ns.RawKey("a"), "claimID:1")
	require.NoError(t, err)
	_, err = mr.ZAdd(ns.ExpandedKey("a"), 1, "P1:C1")
	require.NoError(t, err)
	_, err = mr.SAdd(ns.IndexKey(), ns.RawKey("a"), ns.ExpandedKey("a"))
	require.NoError(t, err)

	// A different session must survive
	_, err = mr.ZAdd(other.ExpandedKey("a"), 1, "P1:C1")
	require.NoError(t, err)
	_, err = mr.SAdd(other.IndexKey(), other.ExpandedKey("a"))
	require.NoError(t, err)

	removed, err := s.Clear(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	assert.False(t, mr.Exists(ns.RawKey("a")))
	assert.False(t, mr.Exists(ns.ExpandedKey("a")))
	assert.False(t, mr.Exists(ns.IndexKey()))
	assert.True(t, mr.Exists(other.ExpandedKey("a")))
	assert.True(t, mr.Exists(other.IndexKey()))
}

func TestClearUnknownSession(t *testing.T) {
	s, _, _ := newTestStore(t)

	removed, err := s.Clear(context.Background(), Namespace{Requester: "x", Analysis: "y"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
}

func TestClearStoreFailure(t *testing.T) {
	s, mr, _ := newTestStore(t)
	mr.SetError("LOADING store unavailable")

	_, err := s.Clear(context.Background(), Namespace{Requester: "1", Analysis: "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read session index")
}

func TestInspect(t *testing.T) {
	s, mr, _ := newTestStore(t)
	ctx := context.Background()
	ns := Namespace{Requester: "4", Analysis: "5"}

	_, err := mr.SAdd(ns.RawKey("a"), "claimID:1", "claimID:2")
	require.NoError(t, err)
	mr.SetTTL(ns.RawKey("a"), 30*time.Minute)
	_, err = mr.ZAdd(ns.ExpandedKey("a"), 1, "P1:C1")
	require.NoError(t, err)
	_, err = mr.SAdd(ns.IndexKey(), ns.RawKey("a"), ns.ExpandedKey("a"), ns.ExpandedKey("gone"))
	require.NoError(t, err)

	entries, err := s.Inspect(ctx, ns)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	byKey := make(map[string]Entry, len(entries))
	for _, e := range entries {
		byKey[e.Key] = e
	}

	raw := byKey[ns.RawKey("a")]
	assert.Equal(t, "set", raw.Type)
	assert.Equal(t, int64(2), raw.Size)
	assert.Equal(t, 30*time.Minute, raw.TTL)

	expanded := byKey[ns.ExpandedKey("a")]
	assert.Equal(t, "zset", expanded.Type)
	assert.Equal(t, int64(1), expanded.Size)

	gone := byKey[ns.ExpandedKey("gone")]
	assert.Equal(t, "none", gone.Type)
	assert.Equal(t, int64(0), gone.Size)
}

func TestInspectEmpty(t *testing.T) {
	s, _, _ := newTestStore(t)

	entries, err := s.Inspect(context.Background(), Namespace{Requester: "1", Analysis: "1"})
	require.NoError(t, err)
	assert.Empty(t, entries)
}
