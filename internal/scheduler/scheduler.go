// Package scheduler implements the sender-side retransmit scheduler:
// per-chunk entries with a last-sent timestamp, a send counter, and a
// received flag, selected for (re)transmission under a per-tick budget and
// a resend timer.
package scheduler

import (
	"time"

	"go.uber.org/zap"

	"github.com/piot-labs/blobstream/constants"
)

// PerTickBudget (K) is the hard cap on entries returned by GetChunksToSend
// in a single call, regardless of what the caller requests.
const PerTickBudget = constants.PerTickBudget

// Entry describes one chunk of the payload and its send/ack bookkeeping.
type Entry struct {
	ChunkID        int
	Octets         []byte
	lastSentAtTime time.Time
	sendCount      int
	isReceived     bool
}

// IsReceived reports whether this entry has been acknowledged.
func (e *Entry) IsReceived() bool { return e.isReceived }

// SendCount returns how many times this entry has been transmitted.
func (e *Entry) SendCount() int { return e.sendCount }

// Scheduler holds one Entry per chunk of a payload being sent.
type Scheduler struct {
	log                 *zap.Logger
	payload             []byte
	fixedChunkSize      int
	chunkCount          int
	entries             []Entry
	sentChunkEntryCount int
	isComplete          bool
	resendThreshold     time.Duration
}

// New builds a Scheduler over payload (borrowed — the caller guarantees it
// outlives the transfer), split into fixedChunkSize chunks.
func New(log *zap.Logger, payload []byte, fixedChunkSize int, resendThreshold time.Duration) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if resendThreshold <= 0 {
		resendThreshold = constants.DefaultResendThreshold
	}

	octetCount := len(payload)
	chunkCount := (octetCount + fixedChunkSize - 1) / fixedChunkSize
	s := &Scheduler{
		log:             log,
		payload:         payload,
		fixedChunkSize:  fixedChunkSize,
		chunkCount:      chunkCount,
		entries:         make([]Entry, chunkCount),
		resendThreshold: resendThreshold,
	}

	for i := 0; i < chunkCount; i++ {
		octetCountForEntry := fixedChunkSize
		if i == chunkCount-1 {
			tail := octetCount % fixedChunkSize
			if tail == 0 {
				tail = fixedChunkSize
			}
			octetCountForEntry = tail
		}
		start := i * fixedChunkSize
		s.entries[i] = Entry{
			ChunkID: i,
			Octets:  payload[start : start+octetCountForEntry],
		}
	}

	log.Debug("scheduler: init",
		zap.Int("octetCount", octetCount),
		zap.Int("chunkCount", chunkCount),
		zap.Int("fixedChunkSize", fixedChunkSize),
	)
	return s
}

// ChunkCount returns the number of chunks the payload was split into.
func (s *Scheduler) ChunkCount() int { return s.chunkCount }

// IsComplete reports whether every chunk has been acknowledged.
func (s *Scheduler) IsComplete() bool { return s.isComplete }

// IsAllSent reports whether every chunk has been transmitted at least once.
func (s *Scheduler) IsAllSent() bool { return s.sentChunkEntryCount == s.chunkCount }

// MarkReceived applies a cumulative+selective acknowledgement: every chunk
// id below everythingBeforeThis is marked received; bit b of mask (for
// b in [0, maskWidth)) marks chunk everythingBeforeThis+1+b. A mask bit
// describing a chunk at or beyond chunkCount is ignored.
func (s *Scheduler) MarkReceived(everythingBeforeThis int, mask uint64, maskWidth int) {
	if s.isComplete {
		return
	}

	if everythingBeforeThis > s.chunkCount {
		s.log.Warn("scheduler: markReceived with out-of-range cumulative ack", zap.Int("everythingBeforeThis", everythingBeforeThis))
	}

	for i := 0; i < everythingBeforeThis && i < s.chunkCount; i++ {
		s.entries[i].isReceived = true
	}

	if everythingBeforeThis == s.chunkCount {
		s.isComplete = true
		s.log.Debug("scheduler: remote has received everything")
		return
	}

	accumulator := mask
	for b := 0; b < maskWidth; b++ {
		idx := everythingBeforeThis + 1 + b
		if idx >= s.chunkCount {
			break
		}
		if accumulator&0x1 != 0 {
			s.entries[idx].isReceived = true
		}
		accumulator >>= 1
	}
}

// GetChunksToSend scans entries in ascending chunk id order and selects
// those that are unreceived and either have never been sent, or were last
// sent more than resendThreshold ago. At most min(maxEntries,
// PerTickBudget) entries are returned.
func (s *Scheduler) GetChunksToSend(now time.Time, maxEntries int) []*Entry {
	if maxEntries <= 0 {
		return nil
	}
	if maxEntries > PerTickBudget {
		maxEntries = PerTickBudget
	}

	result := make([]*Entry, 0, maxEntries)
	for i := range s.entries {
		entry := &s.entries[i]
		if entry.isReceived {
			continue
		}
		if entry.sendCount != 0 && now.Sub(entry.lastSentAtTime) <= s.resendThreshold {
			continue
		}

		entry.lastSentAtTime = now
		if entry.sendCount == 0 {
			s.sentChunkEntryCount++
		}
		entry.sendCount++
		result = append(result, entry)

		if len(result) == maxEntries {
			return result
		}
	}
	return result
}
