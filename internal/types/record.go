// Package types contains shared types used across multiple packages to avoid import cycles.
package types

import "fmt"

// Record is a claim as read from its store hash: a numeric identifier plus the
// parent (patent) and sub (claim) identifiers that form its display key.
type Record struct {
	ID     int64
	Parent string
	Sub    string
}

// Key returns the display key "parent:sub" used as the expanded collection member.
func (r Record) Key() string {
	return r.Parent + ":" + r.Sub
}

func (r Record) String() string {
	return fmt.Sprintf("%d(%s)", r.ID, r.Key())
}

// SkipReason explains why a lookup result could not become a Record.
type SkipReason string

const (
	SkipNone       SkipReason = ""
	SkipWrongArity SkipReason = "wrong_arity"
	SkipMissing    SkipReason = "missing_field"
	SkipBadID      SkipReason = "bad_id"
)

// RecordFromFields builds a Record from an HMGET reply ordered as
// identifier, parent, sub. A reply with a missing field or an identifier that
// is not an integer yields SkipReason other than SkipNone.
func RecordFromFields(values []interface{}) (Record, SkipReason) {
	if len(values) != 3 {
		return Record{}, SkipWrongArity
	}
	for _, v := range values {
		if v == nil {
			return Record{}, SkipMissing
		}
	}

	id, ok := ToInt64(values[0])
	if !ok {
		return Record{}, SkipBadID
	}

	parent := ToString(values[1])
	sub := ToString(values[2])
	if parent == "" || sub == "" {
		return Record{}, SkipMissing
	}

	return Record{ID: id, Parent: parent, Sub: sub}, SkipNone
}

// CategoryCount pairs a survival category with a count.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

// SumCounts returns the total of all counts.
func SumCounts(counts []CategoryCount) int64 {
	var total int64
	for _, c := range counts {
		total += c.Count
	}
	return total
}
