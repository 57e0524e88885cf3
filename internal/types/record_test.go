package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordKey(t *testing.T) {
	r := Record{ID: 42, Parent: "P1", Sub: "C7"}

	assert.Equal(t, "P1:C7", r.Key())
	assert.Equal(t, "42(P1:C7)", r.String())
}

func TestRecordFromFields(t *testing.T) {
	tests := []struct {
		name     string
		values   []interface{}
		expected Record
		reason   SkipReason
	}{
		{
			name:     "complete record",
			values:   []interface{}{"42", "P1", "C7"},
			expected: Record{ID: 42, Parent: "P1", Sub: "C7"},
			reason:   SkipNone,
		},
		{
			name:   "missing hash",
			values: []interface{}{nil, nil, nil},
			reason: SkipMissing,
		},
		{
			name:   "missing sub",
			values: []interface{}{"42", "P1", nil},
			reason: SkipMissing,
		},
		{
			name:   "empty parent",
			values: []interface{}{"42", "", "C7"},
			reason: SkipMissing,
		},
		{
			name:   "non numeric id",
			values: []interface{}{"abc", "P1", "C7"},
			reason: SkipBadID,
		},
		{
			name:   "short reply",
			values: []interface{}{"42", "P1"},
			reason: SkipWrongArity,
		},
		{
			name:   "empty reply",
			values: nil,
			reason: SkipWrongArity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, reason := RecordFromFields(tt.values)
			assert.Equal(t, tt.reason, reason)
			assert.Equal(t, tt.expected, record)
		})
	}
}

func TestSumCounts(t *testing.T) {
	counts := []CategoryCount{
		{Category: "killed", Count: 3},
		{Category: "unaffected", Count: 4},
	}

	assert.Equal(t, int64(7), SumCounts(counts))
	assert.Equal(t, int64(0), SumCounts(nil))
}
