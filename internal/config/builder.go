package config

import (
	"errors"
	"fmt"

	"dario.cat/mergo"
)

type configBuilder struct {
	configs []*Config
	err     error
}

func newConfigBuilder() *configBuilder {
	return &configBuilder{
		configs: make([]*Config, 0, 4),
	}
}

// build merges all accumulated layers in order (later layers override) and
// validates the result.
func (b *configBuilder) build() (*Config, error) {
	if b.err != nil {
		return nil, fmt.Errorf("error occured during building config: %w", b.err)
	}

	cfg := new(Config)
	for i := len(b.configs) - 1; i >= 0; i-- {
		if err := mergo.Merge(cfg, b.configs[i]); err != nil {
			return nil, fmt.Errorf("error merging configs: %w", err)
		}
	}

	return cfg, cfg.validate()
}

func (b *configBuilder) withDefaults() *configBuilder {
	b.configs = append(b.configs, Defaults())
	return b
}

func (b *configBuilder) withEnv() *configBuilder {
	envCfg := &Config{}
	if err := parseEnv(envCfg); err != nil {
		b.err = errors.Join(b.err, err)
		return b
	}

	b.configs = append(b.configs, envCfg)
	return b
}

func (b *configBuilder) withFlags() *configBuilder {
	b.configs = append(b.configs, ParseFlags())
	return b
}

func (b *configBuilder) withJSON() *configBuilder {
	// The JSON path itself may come from any earlier layer; scan newest
	// first so flags beat env.
	var path string
	for i := len(b.configs) - 1; i >= 0; i-- {
		if b.configs[i].JSONFilePath != "" {
			path = b.configs[i].JSONFilePath
			break
		}
	}
	if path == "" {
		return b
	}

	jsonCfg, err := parseJSON(path)
	if err != nil {
		b.err = errors.Join(b.err, err)
		return b
	}

	b.configs = append(b.configs, jsonCfg)
	return b
}

// Load assembles the engine configuration: defaults, then environment, then
// flags, then the optional JSON file.
func Load() (*Config, error) {
	return newConfigBuilder().
		withDefaults().
		withEnv().
		withFlags().
		withJSON().
		build()
}

// LoadWithoutFlags is Load minus the command-line layer. Used by hosts that
// embed the engine and own the process's flag set.
func LoadWithoutFlags() (*Config, error) {
	return newConfigBuilder().
		withDefaults().
		withEnv().
		withJSON().
		build()
}
