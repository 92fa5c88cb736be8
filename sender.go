// Package blobstream implements the core of a reliable blob transfer
// protocol: a sender and receiver state machine that carries an opaque
// byte payload of known length across an unreliable, datagram-oriented
// channel, chunked and acknowledged with a (base, bitmask) scheme.
//
// The underlying transport, memory allocation, logging configuration, and
// payload acquisition/consumption are all external collaborators; see
// internal/transport, internal/blobsource and internal/config for
// reference adapters.
package blobstream

import (
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/piot-labs/blobstream/constants"
	"github.com/piot-labs/blobstream/internal/errs"
	"github.com/piot-labs/blobstream/internal/scheduler"
	"github.com/piot-labs/blobstream/internal/wire"

	"github.com/pkg/errors"
)

// Sender drives the sender side of the protocol: it emits START_TRANSFER
// and SET_CHUNK frames tagged with a transfer id, and parses
// ACK_START_TRANSFER and ACK_CHUNK, forwarding acknowledgements to its
// scheduler.
type Sender struct {
	log            *zap.Logger
	transferID     uint16
	scheduler      *scheduler.Scheduler
	fixedChunkSize int
	octetCount     int
	startAcked     bool
}

// NewSender builds a Sender for payload (borrowed for the transfer's
// lifetime), tagged with transferID, chunked at fixedChunkSize bytes.
func NewSender(log *zap.Logger, transferID uint16, payload []byte, fixedChunkSize int) (*Sender, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if fixedChunkSize < 1 || fixedChunkSize > constants.MaxFixedChunkSize {
		return nil, errors.Errorf("blobstream: fixedChunkSize must be in [1, %d], got %d", constants.MaxFixedChunkSize, fixedChunkSize)
	}

	return &Sender{
		log:            log,
		transferID:     transferID,
		scheduler:      scheduler.New(log, payload, fixedChunkSize, constants.DefaultResendThreshold),
		fixedChunkSize: fixedChunkSize,
		octetCount:     len(payload),
	}, nil
}

// NewSenderWithResendThreshold is like NewSender but overrides the default
// 50ms resend timer (constants.DefaultResendThreshold).
func NewSenderWithResendThreshold(log *zap.Logger, transferID uint16, payload []byte, fixedChunkSize int, resendThreshold time.Duration) (*Sender, error) {
	s, err := NewSender(log, transferID, payload, fixedChunkSize)
	if err != nil {
		return nil, err
	}
	s.scheduler = scheduler.New(log, payload, fixedChunkSize, resendThreshold)
	return s, nil
}

// TransferID returns the transfer id this sender tags every frame with.
func (s *Sender) TransferID() uint16 { return s.transferID }

// StartAcked reports whether an ACK_START_TRANSFER for this transfer id has
// been observed, so callers aren't forced to track it themselves.
func (s *Sender) StartAcked() bool { return s.startAcked }

// StartTransfer writes a START_TRANSFER frame to outStream. Its retransmit
// policy is separate from data-chunk scheduling: callers keep resending it
// until StartAcked reports true.
func (s *Sender) StartTransfer(outStream io.Writer) error {
	frame := wire.EncodeStartTransfer(wire.StartTransferFrame{
		TransferID:     s.transferID,
		OctetCount:     uint32(s.octetCount),
		FixedChunkSize: uint16(s.fixedChunkSize),
	})
	if _, err := outStream.Write(frame); err != nil {
		return errors.Wrap(errs.ErrOutputFull, err.Error())
	}
	s.log.Debug("sender: sent START_TRANSFER", zap.Uint16("transferId", s.transferID))
	return nil
}

// PrepareSend is a thin pass-through to the scheduler.
func (s *Sender) PrepareSend(now time.Time, maxEntries int) []*scheduler.Entry {
	return s.scheduler.GetChunksToSend(now, maxEntries)
}

// SendEntry writes a SET_CHUNK frame for entry to outStream.
func (s *Sender) SendEntry(outStream io.Writer, entry *scheduler.Entry) error {
	if len(entry.Octets) > constants.MaxEntryOctetSize {
		s.log.Warn("sender: entry exceeds recommended MTU budget", zap.Int("octetCount", len(entry.Octets)))
	}
	frame := wire.EncodeSetChunk(wire.SetChunkFrame{
		TransferID: s.transferID,
		ChunkID:    uint32(entry.ChunkID),
		Octets:     entry.Octets,
	})
	if _, err := outStream.Write(frame); err != nil {
		return errors.Wrap(errs.ErrOutputFull, err.Error())
	}
	return nil
}

// IsComplete reports whether the receiver has acknowledged every chunk.
func (s *Sender) IsComplete() bool { return s.scheduler.IsComplete() }

// IsAllSent reports whether every chunk has been transmitted at least once.
func (s *Sender) IsAllSent() bool { return s.scheduler.IsAllSent() }

// Receive reads one command from inStream and dispatches it.
//
//   - ACK_START_TRANSFER: a transfer id mismatch is a soft error
//     (ErrTransferIDMismatch); the frame is otherwise just noted.
//   - ACK_CHUNK: a transfer id mismatch is a soft error; otherwise the
//     acknowledgement is forwarded to the scheduler.
//   - anything else: ErrUnknownCommand.
func (s *Sender) Receive(inStream io.Reader) error {
	cmd, err := wire.ReadCommand(inStream)
	if err != nil {
		return err
	}

	switch cmd {
	case wire.CmdAckStartTransfer:
		frame, err := wire.DecodeAckStartTransfer(inStream)
		if err != nil {
			return err
		}
		if frame.TransferID != s.transferID {
			s.log.Warn("sender: ack start for wrong transferId", zap.Uint16("got", frame.TransferID), zap.Uint16("want", s.transferID))
			return errs.ErrTransferIDMismatch
		}
		s.startAcked = true
		return nil

	case wire.CmdAckChunk:
		frame, err := wire.DecodeAckChunk(inStream)
		if err != nil {
			return err
		}
		if frame.TransferID != s.transferID {
			s.log.Warn("sender: ack chunk for wrong transferId", zap.Uint16("got", frame.TransferID), zap.Uint16("want", s.transferID))
			return errs.ErrTransferIDMismatch
		}
		s.log.Debug("sender: ack chunk",
			zap.Uint32("waitingForChunkId", frame.WaitingForChunkID),
			zap.Uint64("receiveMask", frame.ReceiveMask),
		)
		s.scheduler.MarkReceived(int(frame.WaitingForChunkID), frame.ReceiveMask, constants.ReceiveMaskBits)
		return nil

	default:
		s.log.Warn("sender: received unknown command", zap.Stringer("command", cmd))
		return errs.ErrUnknownCommand
	}
}
