package blobstream

import (
	"io"

	"go.uber.org/zap"

	"github.com/piot-labs/blobstream/constants"
	"github.com/piot-labs/blobstream/internal/errs"
	"github.com/piot-labs/blobstream/internal/reassembly"
	"github.com/piot-labs/blobstream/internal/wire"
)

// Receiver drives the receiver side of the protocol: it parses inbound
// SET_CHUNK frames, forwards payloads to its reassembly buffer, and emits
// ACK_CHUNK frames reporting progress.
type Receiver struct {
	log            *zap.Logger
	buffer         *reassembly.Buffer
	fixedChunkSize int
}

// NewReceiver allocates a Receiver expecting a blob of totalOctetCount
// bytes split into fixedChunkSize chunks.
func NewReceiver(log *zap.Logger, totalOctetCount int, fixedChunkSize int) (*Receiver, error) {
	if log == nil {
		log = zap.NewNop()
	}
	buf, err := reassembly.New(log, totalOctetCount, fixedChunkSize)
	if err != nil {
		return nil, err
	}
	return &Receiver{log: log, buffer: buf, fixedChunkSize: fixedChunkSize}, nil
}

// IsComplete reports whether every chunk has been received.
func (r *Receiver) IsComplete() bool { return r.buffer.IsComplete() }

// Bytes returns the reassembled blob. Only meaningful once IsComplete.
func (r *Receiver) Bytes() []byte { return r.buffer.Bytes() }

// Destroy releases the receiver's buffer.
func (r *Receiver) Destroy() { r.buffer.Destroy() }

// Receive reads one command from inStream.
//
//   - SET_CHUNK: forwarded to the reassembly buffer. A length exceeding
//     fixedChunkSize is rejected before the payload is even copied out.
//   - anything else: ErrUnknownCommand.
func (r *Receiver) Receive(inStream io.Reader) error {
	cmd, err := wire.ReadCommand(inStream)
	if err != nil {
		return err
	}

	switch cmd {
	case wire.CmdSetChunk:
		frame, err := wire.DecodeSetChunk(inStream, r.fixedChunkSize)
		if err != nil {
			return err
		}
		// ChunkID travels the wire as u32 but wraps to u16 internally, mirroring
		// BlobStreamChunkId.
		chunkID := uint16(frame.ChunkID)
		return r.buffer.SetChunk(int(chunkID), frame.Octets)

	default:
		r.log.Warn("receiver: received unknown command", zap.Stringer("command", cmd))
		return errs.ErrUnknownCommand
	}
}

// Send writes an ACK_CHUNK frame to outStream describing current progress:
// the lowest chunk id not yet received (or ChunkCount() if all are in),
// and a 64-bit mask of subsequently-received chunks. Send is idempotent and
// may be invoked on any cadence.
func (r *Receiver) Send(outStream io.Writer, transferID uint16) error {
	waitingForChunkID := r.buffer.FirstUnset()
	mask := r.buffer.ReceiveMask(waitingForChunkID, constants.ReceiveMaskBits)

	frame := wire.EncodeAckChunk(wire.AckChunkFrame{
		TransferID:        transferID,
		WaitingForChunkID: uint32(waitingForChunkID),
		ReceiveMask:       mask,
	})
	if _, err := outStream.Write(frame); err != nil {
		return errs.ErrOutputFull
	}
	return nil
}

// SendAckStartTransfer acknowledges a START_TRANSFER.
func SendAckStartTransfer(outStream io.Writer, transferID uint16) error {
	frame := wire.EncodeAckStartTransfer(wire.AckStartTransferFrame{TransferID: transferID})
	if _, err := outStream.Write(frame); err != nil {
		return errs.ErrOutputFull
	}
	return nil
}
