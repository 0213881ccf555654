package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// parseJSON reads a configuration layer from a JSON file. The file uses the
// same shape as [Config]; keys left out stay at their zero value and do not
// override earlier layers.
func parseJSON(jsonFilePath string) (*Config, error) {
	jsonFile, err := os.Open(jsonFilePath)
	if err != nil {
		return nil, fmt.Errorf("error reading a json file: %w", err)
	}
	defer jsonFile.Close()

	var cfg Config
	if err = json.NewDecoder(jsonFile).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding json config: %w", err)
	}

	return &cfg, nil
}
