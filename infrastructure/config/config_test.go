package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("ENVIRONMENT", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, 20, cfg.SuggestLimit)
	assert.Equal(t, "allow", cfg.Moderation.Default)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store_driver: sqlite
sqlite_path: /tmp/topics.db
suggest_limit: 5
moderation:
  default: queue
  rules:
    topic_merge: reject
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SUGGEST_LIMIT", "7")
	t.Setenv("MODERATION_TRUSTED_ROLES", "editor, admin")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, StoreSQLite, cfg.StoreDriver)
	assert.Equal(t, "/tmp/topics.db", cfg.SQLitePath)
	assert.Equal(t, 7, cfg.SuggestLimit, "env overrides the file")
	assert.Equal(t, "queue", cfg.Moderation.Default)
	assert.Equal(t, "reject", cfg.Moderation.Rules["topic_merge"])
	assert.Equal(t, []string{"editor", "admin"}, cfg.Moderation.TrustedRoles)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown driver", func(c *Config) { c.StoreDriver = "mongo" }, true},
		{"production without secret", func(c *Config) {
			c.Environment = "production"
			c.StoreDriver = StoreDynamoDB
		}, true},
		{"production on memory", func(c *Config) {
			c.Environment = "production"
			c.JWTSecret = "s"
		}, true},
		{"bad decision", func(c *Config) { c.Moderation.Rules = map[string]string{"topic_merge": "maybe"} }, true},
		{"zero suggest limit", func(c *Config) { c.SuggestLimit = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestModerationWatcher_Reload(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "moderation.yaml")
	require.NoError(t, os.WriteFile(path, []byte("moderation:\n  default: allow\n"), 0o600))

	changes := make(chan ModerationConfig, 4)
	w, err := NewModerationWatcher(path, func(m ModerationConfig) { changes <- m }, zap.NewNop())
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	// Invalid content is ignored
	require.NoError(t, os.WriteFile(path, []byte("moderation:\n  default: sometimes\n"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte("moderation:\n  default: queue\n"), 0o600))

	select {
	case m := <-changes:
		assert.Equal(t, "queue", m.Default)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not deliver the new rules")
	}
}
