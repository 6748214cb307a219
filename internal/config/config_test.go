package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReadsYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
redis:
  addr: localhost:6379
  db: 2
catalog:
  ttl: 5m
game:
  questionCount: 5
  timeLimit: 20s
notifier:
  pollInterval: 3s
log:
  level: debug
`), 0o600))
	t.Setenv("AUTH_SECRET", "from-env")
	t.Setenv("REDIS_DB", "4")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 4, cfg.Redis.DB)
	assert.Equal(t, "from-env", cfg.Auth.Secret)
	assert.Equal(t, 5, cfg.Game.QuestionCount)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 20*time.Second, TTLDuration(cfg.Game.TimeLimit, time.Minute))
	assert.Equal(t, 5*time.Minute, TTLDuration(cfg.Catalog.TTL, time.Minute))
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("POSTGRES_URL", "postgres://duel@localhost/duel")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://duel@localhost/duel", cfg.Postgres.URL)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestTTLDuration(t *testing.T) {
	assert.Equal(t, time.Minute, TTLDuration("", time.Minute))
	assert.Equal(t, time.Minute, TTLDuration("soon", time.Minute))
	assert.Equal(t, 90*time.Second, TTLDuration("90s", time.Minute))
}
