package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_RequiresSecret(t *testing.T) {
	t.Setenv("TOKEN_SIGNING_SECRET", "")
	t.Setenv("CONFIG_FILE", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("TOKEN_SIGNING_SECRET", "s3cret")
	t.Setenv("CONFIG_FILE", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "5240", cfg.ServerPort)
	assert.Equal(t, 60*time.Second, cfg.StatusInterval)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, "host=localhost port=5432 user=postgres password=postgres dbname=provisiondb sslmode=disable", cfg.ConnString())
	assert.Equal(t, 5, cfg.RetryPolicy().MaxRetries)
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "provisiond.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_port: "6000"
store_driver: memory
status_interval: 5s
scheduler_workers: 2
cors_origins: ["https://ui.example.com"]
seed_nodes:
  - node_id: node-1
    hostname: alpha
    status: commissioning
    owner: admin
`), 0644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("TOKEN_SIGNING_SECRET", "s3cret")
	t.Setenv("SERVER_PORT", "7000")
	t.Setenv("TASK_TIMEOUT", "45s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.ServerPort, "environment wins over the file")
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, 5*time.Second, cfg.StatusInterval)
	assert.Equal(t, 2, cfg.SchedulerWorkers)
	assert.Equal(t, 45*time.Second, cfg.TaskTimeout)
	assert.Equal(t, []string{"https://ui.example.com"}, cfg.CORSOrigins)
	require.Len(t, cfg.SeedNodes, 1)
	assert.Equal(t, "alpha", cfg.SeedNodes[0].Hostname)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad duration", "STATUS_INTERVAL", "soon"},
		{"bad int", "SCHEDULER_WORKERS", "many"},
		{"zero workers", "SCHEDULER_WORKERS", "0"},
		{"unknown driver", "STORE_DRIVER", "mongo"},
		{"unknown log level", "LOG_LEVEL", "loud"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			t.Setenv("TOKEN_SIGNING_SECRET", "s3cret")
			t.Setenv(tt.key, tt.val)

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
