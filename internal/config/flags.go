package config

import (
	"flag"
	"time"
)

// ParseFlags parses the engine's command-line flags into a configuration
// layer. Unset flags stay at their zero value and do not override earlier
// layers.
//
// Flags:
//
//	-d store DSN (sqlite path)
//	-r remote authority base URL
//	-c/-config json file path with configs
//	-sync-interval periodic drain interval (e.g. "5m")
//	-batch-size transport batch size
//	-metered-max-bytes size gate for metered networks
//	-request-timeout transport request timeout (e.g. "15s")
func ParseFlags() *Config {
	var storeDSN string
	var remoteURL string
	var jsonConfigPath string
	var syncInterval time.Duration
	var batchSize int
	var meteredMaxBytes int64
	var requestTimeout time.Duration

	flag.StringVar(&storeDSN, "d", "", "Local store DSN (sqlite path)")
	flag.StringVar(&remoteURL, "r", "", "Remote authority base URL")
	flag.StringVar(&jsonConfigPath, "c", "", "JSON config file path")
	flag.StringVar(&jsonConfigPath, "config", "", "JSON config file path (alias)")
	flag.DurationVar(&syncInterval, "sync-interval", 0, "Periodic drain interval (e.g., 5m)")
	flag.IntVar(&batchSize, "batch-size", 0, "Transport batch size")
	flag.Int64Var(&meteredMaxBytes, "metered-max-bytes", 0, "Metered-network size gate in bytes")
	flag.DurationVar(&requestTimeout, "request-timeout", 0, "Transport request timeout (e.g., 15s)")

	flag.Parse()

	return &Config{
		Store: Store{
			DSN: storeDSN,
		},
		Queue: Queue{
			MeteredMaxBytes: meteredMaxBytes,
		},
		Sync: Sync{
			Interval:  Duration(syncInterval),
			BatchSize: batchSize,
		},
		Remote: Remote{
			BaseURL:        remoteURL,
			RequestTimeout: Duration(requestTimeout),
		},
		JSONFilePath: jsonConfigPath,
	}
}
