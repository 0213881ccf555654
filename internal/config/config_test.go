package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavetrack/field-sync/models"
)

// valid returns a Config that passes validation; tests mutate single fields
// to probe individual rules.
func valid() *Config {
	cfg := Defaults()
	cfg.Store.DSN = "/var/lib/fieldsync/local.db"
	cfg.Remote.BaseURL = "https://sync.example.com"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"defaults with dsn and remote", func(*Config) {}, nil},
		{"empty dsn", func(c *Config) { c.Store.DSN = "" }, ErrInvalidStoreConfig},
		{"in-memory dsn", func(c *Config) { c.Store.DSN = ":memory:" }, ErrInvalidStoreConfig},
		{"zero backoff base", func(c *Config) { c.Queue.BackoffBase = 0 }, ErrInvalidQueueConfig},
		{"cap below base", func(c *Config) { c.Queue.BackoffCap = c.Queue.BackoffBase / 2 }, ErrInvalidQueueConfig},
		{"zero attempts", func(c *Config) { c.Queue.MaxAttempts = 0 }, ErrInvalidQueueConfig},
		{"unknown default strategy", func(c *Config) { c.Resolver.DefaultStrategy = "newest-wins" }, ErrInvalidResolverConfig},
		{"unknown per-type strategy", func(c *Config) {
			c.Resolver.Strategies = map[string]models.Strategy{"receipt": "coin-flip"}
		}, ErrInvalidResolverConfig},
		{"zero batch size", func(c *Config) { c.Sync.BatchSize = 0 }, ErrInvalidSyncConfig},
		{"missing remote url", func(c *Config) { c.Remote.BaseURL = "" }, ErrInvalidRemoteConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBuilder_LayerPrecedence(t *testing.T) {
	base := valid()
	override := &Config{Queue: Queue{MaxAttempts: 3}}

	b := newConfigBuilder()
	b.configs = append(b.configs, base, override)

	cfg, err := b.build()
	require.NoError(t, err)

	// Later layer wins where set, earlier layer fills the rest.
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, base.Queue.BackoffBase, cfg.Queue.BackoffBase)
	assert.Equal(t, base.Store.DSN, cfg.Store.DSN)
}

func TestParseEnv(t *testing.T) {
	t.Setenv("STORE_DSN", "/tmp/sync.db")
	t.Setenv("QUEUE_BACKOFF_BASE", "4s")
	t.Setenv("RESOLVER_STRATEGIES", "receipt:merge,note:manual")

	cfg := &Config{}
	require.NoError(t, parseEnv(cfg))

	assert.Equal(t, "/tmp/sync.db", cfg.Store.DSN)
	assert.Equal(t, 4*time.Second, cfg.Queue.BackoffBase.Std())
	assert.Equal(t, models.StrategyMerge, cfg.Resolver.Strategies["receipt"])
	assert.Equal(t, models.StrategyManual, cfg.Resolver.Strategies["note"])
}

func TestParseJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	raw := map[string]any{
		"store": map[string]any{"dsn": "/data/local.db", "tombstone_retention": "72h"},
		"sync":  map[string]any{"batch_size": 25},
	}
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := parseJSON(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/local.db", cfg.Store.DSN)
	assert.Equal(t, 72*time.Hour, cfg.Store.TombstoneRetention.Std())
	assert.Equal(t, 25, cfg.Sync.BatchSize)
}

func TestParseJSON_MissingFile(t *testing.T) {
	_, err := parseJSON(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestDuration_JSONRoundTrip(t *testing.T) {
	d := Duration(90 * time.Second)
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(data))

	var back Duration
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, d, back)

	// Bare nanosecond numbers are accepted too.
	require.NoError(t, json.Unmarshal([]byte("1000000000"), &back))
	assert.Equal(t, time.Second, back.Std())
}
