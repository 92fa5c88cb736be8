// Package reassembly implements the receiver-side chunk reassembly buffer:
// a single owned byte buffer, a bitmap of received chunks, and strict
// chunk-geometry validation.
package reassembly

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/piot-labs/blobstream/constants"
	"github.com/piot-labs/blobstream/internal/errs"
)

// Buffer holds the destination bytes for one inbound transfer and tracks
// which chunks have arrived. It is exclusively owned: once Destroy is
// called, no further chunk may be delivered (invariant 1).
type Buffer struct {
	log             *zap.Logger
	buffer          []byte
	received        *bitset
	totalOctetCount int
	fixedChunkSize  int
	chunkCount      int
	isComplete      bool
	destroyed       bool
}

// New allocates a reassembly Buffer for a blob of totalOctetCount bytes,
// split into fixedChunkSize chunks (the last one may be shorter).
// fixedChunkSize must be in [1, 1024]; totalOctetCount must be > 0.
func New(log *zap.Logger, totalOctetCount int, fixedChunkSize int) (*Buffer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if fixedChunkSize < 1 || fixedChunkSize > constants.MaxFixedChunkSize {
		return nil, errors.Errorf("reassembly: fixedChunkSize must be in [1, %d], got %d", constants.MaxFixedChunkSize, fixedChunkSize)
	}
	if totalOctetCount <= 0 {
		return nil, errors.Errorf("reassembly: totalOctetCount must be > 0, got %d", totalOctetCount)
	}

	chunkCount := (totalOctetCount + fixedChunkSize - 1) / fixedChunkSize
	b := &Buffer{
		log:             log,
		buffer:          make([]byte, totalOctetCount),
		received:        newBitset(chunkCount),
		totalOctetCount: totalOctetCount,
		fixedChunkSize:  fixedChunkSize,
		chunkCount:      chunkCount,
	}
	log.Debug("reassembly: init",
		zap.Int("totalOctetCount", totalOctetCount),
		zap.Int("fixedChunkSize", fixedChunkSize),
		zap.Int("chunkCount", chunkCount),
	)
	return b, nil
}

// ChunkCount returns the number of chunks the blob was split into.
func (b *Buffer) ChunkCount() int { return b.chunkCount }

// expectedLength returns the geometrically-correct length for chunkId:
// fixedChunkSize for all but the last chunk, the exact tail length for the
// last one.
func (b *Buffer) expectedLength(chunkID int) int {
	if chunkID != b.chunkCount-1 {
		return b.fixedChunkSize
	}
	tail := b.totalOctetCount % b.fixedChunkSize
	if tail == 0 {
		tail = b.fixedChunkSize
	}
	return tail
}

// SetChunk writes octets at the chunkID's offset and marks it received.
// Validation failures leave state untouched and return ErrGeometryViolation
// wrapped with context; a rejected chunk is always a no-op.
func (b *Buffer) SetChunk(chunkID int, octets []byte) error {
	if b.destroyed {
		return errors.New("reassembly: SetChunk called after Destroy")
	}
	if chunkID < 0 || chunkID >= b.chunkCount {
		return errors.Wrapf(errs.ErrGeometryViolation, "chunkId %d out of range [0, %d)", chunkID, b.chunkCount)
	}

	expected := b.expectedLength(chunkID)
	if len(octets) != expected {
		return errors.Wrapf(errs.ErrGeometryViolation, "chunkId %d: length %d != expected %d", chunkID, len(octets), expected)
	}

	offset := chunkID * b.fixedChunkSize
	if offset+len(octets) > b.totalOctetCount {
		return errors.Wrapf(errs.ErrGeometryViolation, "chunkId %d: offset+length %d exceeds totalOctetCount %d", chunkID, offset+len(octets), b.totalOctetCount)
	}

	copy(b.buffer[offset:offset+len(octets)], octets)
	b.received.set(chunkID)

	if b.log.Core().Enabled(zap.DebugLevel) {
		b.log.Debug("reassembly: setChunk", zap.Int("chunkId", chunkID), zap.Int("octetCount", len(octets)))
	}

	if !b.isComplete && b.received.allSet() {
		b.isComplete = true
		b.log.Debug("reassembly: stream is complete")
	}
	return nil
}

// IsComplete reports whether every chunk has been received.
func (b *Buffer) IsComplete() bool { return b.isComplete }

// Bytes returns the reassembled buffer. Only meaningful once IsComplete
// reports true; partial reads are the caller's responsibility to gate.
func (b *Buffer) Bytes() []byte { return b.buffer }

// FirstUnset returns the lowest chunk id not yet received, or ChunkCount()
// if every chunk has arrived.
func (b *Buffer) FirstUnset() int { return b.received.firstUnset() }

// ReceiveMask returns the `width`-bit selective-ack mask describing chunks
// received after (and not including) waitingForChunkId, least-significant
// bit first: bit 0 describes chunk waitingForChunkId+1.
func (b *Buffer) ReceiveMask(waitingForChunkID int, width int) uint64 {
	return b.received.atomFrom(waitingForChunkID+1, width)
}

// Destroy releases the buffer. No further chunk may be delivered.
func (b *Buffer) Destroy() {
	b.buffer = nil
	b.destroyed = true
}

func (b *Buffer) String() string {
	return fmt.Sprintf("reassembly.Buffer{chunkCount=%d complete=%t}", b.chunkCount, b.isComplete)
}
