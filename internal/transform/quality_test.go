package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRuleset(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		want      []Rule
		errString string
	}{
		{
			name: "row count",
			src:  "Rules = [ RowCount > 0 ]",
			want: []Rule{{Metric: "RowCount", Operator: ">", Threshold: 0}},
		},
		{
			name: "multi line",
			src:  "\n    Rules = [\n        ColumnCount >= 67,\n        RowCount < 1000\n    ]\n",
			want: []Rule{
				{Metric: "ColumnCount", Operator: ">=", Threshold: 67},
				{Metric: "RowCount", Operator: "<", Threshold: 1000},
			},
		},
		{
			name:      "missing rules block",
			src:       "RowCount > 0",
			errString: "expected Rules = [ ... ]",
		},
		{
			name:      "unknown metric",
			src:       "Rules = [ Completeness \"index\" > 0.9 ]",
			errString: "invalid rule",
		},
		{
			name:      "empty",
			src:       "Rules = [ ]",
			errString: "no rules",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := ParseRuleset(tt.src)
			if tt.errString != "" {
				assert.ErrorContains(t, err, tt.errString)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rs.Rules)
		})
	}
}

func TestRuleset_Evaluate(t *testing.T) {
	rs, err := ParseRuleset("Rules = [ RowCount > 0, ColumnCount = 2, RowCount <= 1 ]")
	require.NoError(t, err)

	frame := &Frame{
		Schema: []Field{{Name: "a", Type: "string"}, {Name: "b", Type: "string"}},
		Rows:   []Row{{str("1"), nil}, {str("2"), nil}},
	}

	results := rs.Evaluate(frame)
	require.Len(t, results, 3)
	assert.Equal(t, RuleResult{Rule: "RowCount > 0", Outcome: OutcomePassed, Actual: 2}, results[0])
	assert.Equal(t, RuleResult{Rule: "ColumnCount = 2", Outcome: OutcomePassed, Actual: 2}, results[1])
	assert.Equal(t, RuleResult{Rule: "RowCount <= 1", Outcome: OutcomeFailed, Actual: 2}, results[2])

	summary := Summarize(rs, results)
	assert.Equal(t, 2, summary.Passed)
	assert.Equal(t, 1, summary.Failed)
	assert.InDelta(t, 2.0/3.0, summary.Score, 1e-9)
}

func TestRuleset_EvaluateEmptyFrame(t *testing.T) {
	rs, err := ParseRuleset("Rules = [ RowCount > 0 ]")
	require.NoError(t, err)

	results := rs.Evaluate(&Frame{Schema: []Field{{Name: "a", Type: "string"}}})
	assert.Equal(t, OutcomeFailed, results[0].Outcome)
	assert.Equal(t, int64(0), results[0].Actual)
}
