// Package checkpoint stores and loads a receiver's reassembly progress in
// Redis, keyed by transfer id. It does not restore a Receiver from a loaded
// State: a receiver that restarts mid-transfer starts from an empty bitmap.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// State is the subset of receiver progress worth checkpointing: which
// chunk ids have been received, for a given transfer.
type State struct {
	TransferID      uint16 `json:"transferId"`
	TotalOctetCount int    `json:"totalOctetCount"`
	FixedChunkSize  int    `json:"fixedChunkSize"`
	ReceivedChunks  []int  `json:"receivedChunks"`
}

// Store persists and restores receiver State in Redis.
type Store struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewStore builds a Store backed by a Redis client.
func NewStore(client *redis.Client, keyPrefix string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Store{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (s *Store) key(transferID uint16) string {
	return fmt.Sprintf("%s:transfer:%d", s.keyPrefix, transferID)
}

// Save writes state, refreshing its TTL.
func (s *Store) Save(ctx context.Context, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal state: %w", err)
	}
	if err := s.client.Set(ctx, s.key(state.TransferID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("checkpoint: save state: %w", err)
	}
	return nil
}

// Load restores state for transferID. The second return value is false if
// no checkpoint exists (a fresh transfer, not an error).
func (s *Store) Load(ctx context.Context, transferID uint16) (State, bool, error) {
	data, err := s.client.Get(ctx, s.key(transferID)).Bytes()
	if err == redis.Nil {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("checkpoint: load state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, false, fmt.Errorf("checkpoint: unmarshal state: %w", err)
	}
	return state, true, nil
}

// Clear removes a transfer's checkpoint. cmd/blobstream-recv calls it once
// the transfer completes.
func (s *Store) Clear(ctx context.Context, transferID uint16) error {
	if err := s.client.Del(ctx, s.key(transferID)).Err(); err != nil {
		return fmt.Errorf("checkpoint: clear state: %w", err)
	}
	return nil
}
