package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/glue-pipeline/internal/transform"
	"github.com/cuongbtq/glue-pipeline/shared/database"
	"github.com/cuongbtq/glue-pipeline/shared/logger"
)

func TestResultStore(t *testing.T) {
	ctx := context.Background()
	client, err := database.NewClient(&database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "dq.db"),
	}, logger.NewDiscard())
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Migrate(ctx, Schema...))

	store := NewResultStore(client.GetDB(), logger.NewDiscard())

	result := &transform.QualityResult{
		ResultID:          "dq_1",
		JobName:           "json-to-pq-dev",
		RunID:             "jr_1",
		EvaluationContext: "EvaluateDataQuality_node1",
		Ruleset:           "Rules = [ RowCount > 0 ]",
		Score:             1,
		Passed:            1,
		Rules:             []transform.RuleResult{{Rule: "RowCount > 0", Outcome: transform.OutcomePassed, Actual: 3}},
		EvaluatedAt:       time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.PublishResult(ctx, result))

	assert.Error(t, store.PublishResult(ctx, result), "duplicate result id")

	results, err := store.ListByRun(ctx, "jr_1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, result.Rules, results[0].Rules)
	assert.Equal(t, 1, results[0].Passed)
	assert.True(t, result.EvaluatedAt.Equal(results[0].EvaluatedAt))

	none, err := store.ListByRun(ctx, "jr_2")
	require.NoError(t, err)
	assert.Empty(t, none)
}
