package config

import (
	"strings"

	"github.com/pavetrack/field-sync/models"
)

func knownStrategy(s models.Strategy) bool {
	switch s {
	case models.StrategyLastWriteWins, models.StrategyMerge, models.StrategyManual:
		return true
	default:
		return false
	}
}

// validate checks that the merged [Config] satisfies the engine's
// invariants before any component is constructed.
func (cfg *Config) validate() error {
	if cfg.Store.DSN == "" || strings.Contains(cfg.Store.DSN, "memory") {
		return ErrInvalidStoreConfig
	}

	if cfg.Queue.BackoffBase <= 0 || cfg.Queue.BackoffCap < cfg.Queue.BackoffBase || cfg.Queue.MaxAttempts <= 0 {
		return ErrInvalidQueueConfig
	}

	if !knownStrategy(cfg.Resolver.DefaultStrategy) {
		return ErrInvalidResolverConfig
	}
	for _, s := range cfg.Resolver.Strategies {
		if !knownStrategy(s) {
			return ErrInvalidResolverConfig
		}
	}

	if cfg.Sync.BatchSize <= 0 || cfg.Sync.Interval <= 0 {
		return ErrInvalidSyncConfig
	}

	if cfg.Remote.BaseURL == "" || cfg.Remote.RequestTimeout <= 0 {
		return ErrInvalidRemoteConfig
	}

	return nil
}
