// Validation modeled on vinq1911-nonchalant's internal/config/validate.go:
// one Validate method per config section, returning a descriptive error
// for the first problem found.
package config

import (
	"fmt"

	"github.com/piot-labs/blobstream/constants"
)

// Validate checks that every config value is within acceptable ranges.
func (c *Config) Validate() error {
	if err := c.Protocol.Validate(); err != nil {
		return fmt.Errorf("protocol config: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}
	if err := c.Checkpoint.Validate(); err != nil {
		return fmt.Errorf("checkpoint config: %w", err)
	}
	return nil
}

// Validate checks protocol configuration values against the fixed
// geometry and budget limits the wire protocol enforces.
func (p *ProtocolConfig) Validate() error {
	if p.FixedChunkSize < 1 || p.FixedChunkSize > constants.MaxFixedChunkSize {
		return fmt.Errorf("fixed_chunk_size must be in [1, %d], got %d", constants.MaxFixedChunkSize, p.FixedChunkSize)
	}
	if p.ResendThreshold <= 0 {
		return fmt.Errorf("resend_threshold must be positive, got %s", p.ResendThreshold)
	}
	if p.PerTickBudget < 1 || p.PerTickBudget > constants.PerTickBudget {
		return fmt.Errorf("per_tick_budget must be in [1, %d], got %d", constants.PerTickBudget, p.PerTickBudget)
	}
	return nil
}

// Validate checks storage configuration values when S3 storage is enabled.
func (s *StorageConfig) Validate() error {
	if !s.Enabled {
		return nil
	}
	if s.Bucket == "" {
		return fmt.Errorf("bucket is required when storage is enabled")
	}
	if s.Region == "" {
		return fmt.Errorf("region is required when storage is enabled")
	}
	return nil
}

// Validate checks checkpoint configuration values when Redis-backed
// checkpointing is enabled.
func (c *CheckpointConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Addr == "" {
		return fmt.Errorf("addr is required when checkpoint is enabled")
	}
	if c.TTL <= 0 {
		return fmt.Errorf("ttl must be positive when checkpoint is enabled, got %s", c.TTL)
	}
	return nil
}
