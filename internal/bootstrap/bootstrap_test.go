package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/glue-pipeline/internal/config"
	"github.com/cuongbtq/glue-pipeline/internal/notify"
	"github.com/cuongbtq/glue-pipeline/shared/blob"
	"github.com/cuongbtq/glue-pipeline/shared/database"
	"github.com/cuongbtq/glue-pipeline/shared/logger"
)

const localConfig = `
deployment:
  account: "909372601881"
  region: us-east-1
  environment: dev
database:
  driver: sqlite3
  path: ${PIPELINE_TEST_DIR}/db/pipeline.db
storage:
  backend: file
  root: ${PIPELINE_TEST_DIR}/data
catalog:
  tables:
    - database: travel
      table: complaints
      location: s3://bucket/complaints/
      format: json
`

func loadLocal(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PIPELINE_TEST_DIR", dir)

	path := filepath.Join(dir, "local.yaml")
	require.NoError(t, os.WriteFile(path, []byte(localConfig), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	return cfg
}

func TestLoadConfig(t *testing.T) {
	cfg := loadLocal(t)
	assert.Equal(t, "909372601881", cfg.Deployment.Account)
	assert.Equal(t, database.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, 3, cfg.Workflow.Retry.MaxAttempts, "defaults fill omitted sections")

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNames(t *testing.T) {
	names := Names(loadLocal(t))
	assert.Equal(t, "json-to-pq-909372601881-us-east-1-dev", names.Job)
	assert.Equal(t, "stf-glue-json-to-pq-909372601881-us-east-1-dev", names.StateMachine)
	assert.Equal(t, "stf-hourly-rule-909372601881-us-east-1-dev", names.ScheduleRule)
	assert.Equal(t, "glue-job-role-909372601881-us-east-1-dev", names.JobRole)
	assert.Equal(t, "step-function-role-909372601881-us-east-1-dev", names.WorkflowRole)
}

func TestDatabase_MigratesSchema(t *testing.T) {
	cfg := loadLocal(t)
	ctx := context.Background()

	client, err := Database(ctx, &cfg.Database, logger.NewDiscard())
	require.NoError(t, err)
	defer client.Close()

	for _, table := range []string{"job_runs", "executions", "execution_events", "dq_results"} {
		var n int
		err := client.GetDB().GetContext(ctx, &n, "SELECT COUNT(*) FROM "+table)
		assert.NoError(t, err, table)
	}

	// applying the schema again is a no-op
	assert.NoError(t, client.Migrate(ctx, Schema()...))
}

func TestBlobStore(t *testing.T) {
	cfg := loadLocal(t)

	store, err := BlobStore(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &blob.FileStore{}, store)

	cfg.Storage.Backend = "ftp"
	_, err = BlobStore(context.Background(), cfg)
	assert.Error(t, err)
}

func TestCatalog(t *testing.T) {
	cfg := loadLocal(t)

	cat, err := Catalog(&cfg.Catalog)
	require.NoError(t, err)

	table, err := cat.Lookup("travel", "complaints")
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/complaints/", table.Location)
}

func TestNotifier(t *testing.T) {
	cfg := loadLocal(t)
	log := logger.NewDiscard()

	n, err := Notifier(context.Background(), cfg, nil, log)
	require.NoError(t, err)
	assert.IsType(t, &notify.LogNotifier{}, n)

	cfg.Notification.Backend = "rabbitmq"
	_, err = Notifier(context.Background(), cfg, nil, log)
	assert.Error(t, err, "rabbitmq backend without a broker")

	cfg.Notification.Backend = "pager"
	_, err = Notifier(context.Background(), cfg, nil, log)
	assert.Error(t, err)
}

func TestWorkflowDefinition(t *testing.T) {
	cfg := loadLocal(t)
	def := WorkflowDefinition(cfg, Names(cfg))

	require.NoError(t, def.Validate())
	assert.Equal(t, "stf-glue-json-to-pq-909372601881-us-east-1-dev", def.Name)
	assert.Equal(t, 7200, def.TimeoutSeconds)
}
