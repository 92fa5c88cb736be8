// Registry tracks active inbound transfers: one ReceiverEngine per transfer
// id, with an optional admission-control guard checked before a new id is
// accepted.
package engine

import (
	"sync"

	"go.uber.org/zap"

	blobstream "github.com/piot-labs/blobstream"
)

// Registry tracks one active ReceiverEngine per transfer id on a host that
// accepts inbound transfers from multiple senders concurrently.
type Registry struct {
	log   *zap.Logger
	mu    sync.Mutex
	byID  map[uint16]*ReceiverEngine
	guard blobstream.TransferGuard
}

// NewRegistry builds an empty Registry.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{log: log, byID: make(map[uint16]*ReceiverEngine)}
}

// SetGuard installs admission control applied before a new transfer id is
// registered.
func (r *Registry) SetGuard(guard blobstream.TransferGuard) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guard = guard
}

// Admit checks the guard (if any) and reports whether octetCount /
// fixedChunkSize are acceptable for a new transfer.
func (r *Registry) Admit(transferID uint16, octetCount, fixedChunkSize int) bool {
	r.mu.Lock()
	guard := r.guard
	r.mu.Unlock()
	if guard == nil {
		return true
	}
	return guard.Check(transferID, octetCount, fixedChunkSize)
}

// Register associates a transfer id with its ReceiverEngine, replacing any
// prior mapping for the same id: a retransmitted START_TRANSFER with the
// same id is treated as the same transfer.
func (r *Registry) Register(transferID uint16, e *ReceiverEngine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[transferID] = e
	r.log.Debug("registry: registered transfer", zap.Uint16("transferId", transferID))
}

// Lookup returns the ReceiverEngine for transferID, if any.
func (r *Registry) Lookup(transferID uint16) (*ReceiverEngine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[transferID]
	return e, ok
}

// Remove drops a transfer id's bookkeeping, notifying the guard.
func (r *Registry) Remove(transferID uint16) {
	r.mu.Lock()
	delete(r.byID, transferID)
	guard := r.guard
	r.mu.Unlock()

	if guard != nil {
		guard.End(transferID)
	}
	r.log.Debug("registry: removed transfer", zap.Uint16("transferId", transferID))
}
