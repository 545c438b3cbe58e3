// Package config loads runtime defaults for tasks, ports and data buses from
// the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment prefix of all variables, e.g. GMF_DEBUG.
const Prefix = "GMF"

// Config holds the engine configuration.
type Config struct {
	Debug    bool   `envconfig:"DEBUG" default:"false"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// SyncTimeout bounds how long task control calls wait for the worker.
	SyncTimeout time.Duration `envconfig:"TASK_SYNC_TIMEOUT" default:"2s"`

	PortDataSize int `envconfig:"PORT_DATA_SIZE" default:"768"`
	PortAlign    int `envconfig:"PORT_ALIGN" default:"16"`

	BusBlocks    int `envconfig:"BUS_BLOCKS" default:"10"`
	BusBlockSize int `envconfig:"BUS_BLOCK_SIZE" default:"1024"`
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns configuration with default values.
func Default() Config {
	return Config{
		LogLevel:     "info",
		SyncTimeout:  2 * time.Second,
		PortDataSize: 768,
		PortAlign:    16,
		BusBlocks:    10,
		BusBlockSize: 1024,
	}
}
