// Package config defines and loads the engine's YAML configuration,
// modeled on aminofox-zenlive's pkg/config/config.go and
// vinq1911-nonchalant's internal/config/config.go: a single struct decoded
// from YAML on top of explicit defaults. Unknown keys are ignored.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/piot-labs/blobstream/constants"
)

// Config is the complete configuration for a blobstream sender or
// receiver process.
type Config struct {
	Protocol   ProtocolConfig   `yaml:"protocol"`
	Logging    LoggingConfig    `yaml:"logging"`
	Storage    StorageConfig    `yaml:"storage,omitempty"`
	Checkpoint CheckpointConfig `yaml:"checkpoint,omitempty"`
}

// ProtocolConfig controls the chunking and retransmit parameters.
type ProtocolConfig struct {
	FixedChunkSize  int           `yaml:"fixed_chunk_size"`
	ResendThreshold time.Duration `yaml:"resend_threshold"`
	PerTickBudget   int           `yaml:"per_tick_budget"`
	ListenAddr      string        `yaml:"listen_addr"`
}

// LoggingConfig controls the zap logger construction.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// StorageConfig controls the optional S3-backed blob source/sink.
type StorageConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
}

// CheckpointConfig controls the optional Redis-backed receiver checkpoint.
type CheckpointConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// Default returns a Config with every field set to its documented default.
func Default() Config {
	return Config{
		Protocol: ProtocolConfig{
			FixedChunkSize:  constants.DefaultFixedChunkSize,
			ResendThreshold: constants.DefaultResendThreshold,
			PerTickBudget:   constants.PerTickBudget,
			ListenAddr:      ":" + constants.DefaultUDPPort,
		},
		Logging: LoggingConfig{Level: "info"},
		Checkpoint: CheckpointConfig{
			KeyPrefix: "blobstream",
			TTL:       10 * time.Minute,
		},
	}
}

// Load reads and decodes a YAML config file, filling unset fields with
// Default()'s values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
