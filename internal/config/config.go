// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PaveTrack Systems

// Package config assembles the sync engine's configuration from defaults,
// environment variables, command-line flags, and an optional JSON file,
// in that order, later layers winning. Layers are merged with mergo and the
// result is validated before use.
package config

import (
	"time"

	"github.com/pavetrack/field-sync/models"
)

// Config is the top-level configuration container for the sync engine.
//
// Struct tags:
//   - envPrefix: prefix applied to nested env lookups (caarlos0/env).
//   - env: direct environment variable name for scalar fields.
//   - json: key in the optional JSON config file.
type Config struct {
	Store    Store    `envPrefix:"STORE_" json:"store,omitempty"`
	Codec    Codec    `envPrefix:"CODEC_" json:"codec,omitempty"`
	Netmon   Netmon   `envPrefix:"NETMON_" json:"netmon,omitempty"`
	Queue    Queue    `envPrefix:"QUEUE_" json:"queue,omitempty"`
	Resolver Resolver `envPrefix:"RESOLVER_" json:"resolver,omitempty"`
	Sync     Sync     `envPrefix:"SYNC_" json:"sync,omitempty"`
	Remote   Remote   `envPrefix:"REMOTE_" json:"remote,omitempty"`

	// JSONFilePath points at an optional JSON configuration file merged on
	// top of env and flag values. Populated via the CONFIG env variable or
	// the -c/-config flag.
	JSONFilePath string `env:"CONFIG" json:"-"`
}

// Store configures the local durable store.
type Store struct {
	// DSN is the sqlite database path. ":memory:" is accepted only in
	// tests; validation rejects it for a real engine instance because an
	// in-memory store cannot satisfy crash consistency.
	DSN string `env:"DSN" json:"dsn"`

	// TombstoneRetention is how long deleted-record tombstones are kept
	// before garbage collection.
	TombstoneRetention Duration `env:"TOMBSTONE_RETENTION" json:"tombstone_retention"`

	// PutRetryBase and PutRetryAttempts shape the exponential retry on
	// storage put failures. Reads are never retried.
	PutRetryBase     Duration `env:"PUT_RETRY_BASE" json:"put_retry_base"`
	PutRetryAttempts uint64   `env:"PUT_RETRY_ATTEMPTS" json:"put_retry_attempts"`
}

// Codec configures the compress-then-encrypt payload pipeline.
type Codec struct {
	// MinCompressBytes skips compression for payloads below this size;
	// tiny payloads gain nothing and pay the gzip header overhead.
	MinCompressBytes int `env:"MIN_COMPRESS_BYTES" json:"min_compress_bytes"`
}

// Netmon configures the network awareness monitor.
type Netmon struct {
	// Dwell is the minimum time a reported network class must persist
	// before the transition commits and subscribers fire.
	Dwell Duration `env:"DWELL" json:"dwell"`
}

// Queue configures the sync queue manager.
type Queue struct {
	// BackoffBase and BackoffCap bound the exponential retry schedule:
	// attempt N becomes eligible at now + base*2^(N-1), capped.
	BackoffBase Duration `env:"BACKOFF_BASE" json:"backoff_base"`
	BackoffCap  Duration `env:"BACKOFF_CAP" json:"backoff_cap"`

	// MaxAttempts is the retry budget before an entry is dead-lettered.
	MaxAttempts int `env:"MAX_ATTEMPTS" json:"max_attempts"`

	// MeteredMaxBytes gates large entries while the network is metered.
	// Entries above the threshold wait for an unmetered network unless
	// marked urgent.
	MeteredMaxBytes int64 `env:"METERED_MAX_BYTES" json:"metered_max_bytes"`
}

// Resolver configures conflict resolution.
type Resolver struct {
	// Strategies maps entity types to resolution strategies. Types not
	// listed fall back to DefaultStrategy.
	Strategies map[string]models.Strategy `env:"STRATEGIES" json:"strategies"`

	DefaultStrategy models.Strategy `env:"DEFAULT_STRATEGY" json:"default_strategy"`

	// DeleteWins flips the deletion-conflict policy. By default the
	// concurrent edit wins and the record is resurrected; discarding an
	// edit silently is judged worse than undoing a delete.
	DeleteWins bool `env:"DELETE_WINS" json:"delete_wins"`
}

// Sync configures the orchestrator.
type Sync struct {
	// BatchSize bounds one push/pull transport call; larger drains are
	// paginated.
	BatchSize int `env:"BATCH_SIZE" json:"batch_size"`

	// Interval is the periodic drain tick, in addition to event-driven
	// wakeups.
	Interval Duration `env:"INTERVAL" json:"interval"`
}

// Remote configures the transport to the remote authority.
type Remote struct {
	BaseURL        string   `env:"BASE_URL" json:"base_url"`
	RequestTimeout Duration `env:"REQUEST_TIMEOUT" json:"request_timeout"`
}

// Defaults returns the built-in configuration layer. Every later layer is
// merged on top of it.
func Defaults() *Config {
	return &Config{
		Store: Store{
			TombstoneRetention: Duration(30 * 24 * time.Hour),
			PutRetryBase:       Duration(250 * time.Millisecond),
			PutRetryAttempts:   5,
		},
		Codec: Codec{
			MinCompressBytes: 128,
		},
		Netmon: Netmon{
			Dwell: Duration(3 * time.Second),
		},
		Queue: Queue{
			BackoffBase:     Duration(2 * time.Second),
			BackoffCap:      Duration(5 * time.Minute),
			MaxAttempts:     8,
			MeteredMaxBytes: 5 << 20,
		},
		Resolver: Resolver{
			DefaultStrategy: models.StrategyLastWriteWins,
		},
		Sync: Sync{
			BatchSize: 100,
			Interval:  Duration(5 * time.Minute),
		},
		Remote: Remote{
			RequestTimeout: Duration(15 * time.Second),
		},
	}
}
