package engine

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	blobstream "github.com/piot-labs/blobstream"
	"github.com/piot-labs/blobstream/internal/transport"
)

// ReceiverEngine drives a blobstream.Receiver over a Datagram transport,
// sending periodic ACK_CHUNK frames and forwarding inbound SET_CHUNK
// frames, until the blob is complete or the context is cancelled.
type ReceiverEngine struct {
	log        *zap.Logger
	conn       transport.Datagram
	receiver   *blobstream.Receiver
	transferID uint16
	ackEvery   time.Duration
}

// NewReceiverEngine builds a ReceiverEngine. ackEvery controls how often an
// ACK_CHUNK frame is sent regardless of whether new chunks arrived, since
// Send is idempotent and may be invoked on any cadence.
func NewReceiverEngine(log *zap.Logger, conn transport.Datagram, receiver *blobstream.Receiver, transferID uint16, ackEvery time.Duration) *ReceiverEngine {
	if log == nil {
		log = zap.NewNop()
	}
	if ackEvery <= 0 {
		ackEvery = 10 * time.Millisecond
	}
	return &ReceiverEngine{
		log:        log.With(zap.String("engineId", uuid.NewString()), zap.Uint16("transferId", transferID)),
		conn:       conn,
		receiver:   receiver,
		transferID: transferID,
		ackEvery:   ackEvery,
	}
}

// Run drives the transfer to completion over e.conn, reading datagrams
// itself. Use this when the engine owns a dedicated, already-demultiplexed
// transport (e.g. one end of a transport.MemoryPair, as in the engine
// tests).
func (e *ReceiverEngine) Run(ctx context.Context) ([]byte, error) {
	frames := make(chan []byte, 32)
	readErrCh := make(chan error, 1)
	go e.readLoop(ctx, frames, readErrCh)
	return e.runWithFrames(ctx, frames, readErrCh)
}

// RunWithFrames drives the transfer to completion using frames supplied by
// an external demultiplexer (a Registry-backed server fanning one UDP
// socket's reads out across many concurrent peers) instead of reading
// e.conn directly. e.conn is still used to write ACK frames back.
func (e *ReceiverEngine) RunWithFrames(ctx context.Context, frames <-chan []byte) ([]byte, error) {
	return e.runWithFrames(ctx, frames, nil)
}

func (e *ReceiverEngine) runWithFrames(ctx context.Context, frames <-chan []byte, readErrCh <-chan error) ([]byte, error) {
	e.log.Info("receiver engine: starting")

	if err := blobstream.SendAckStartTransfer(&datagramWriter{conn: e.conn}, e.transferID); err != nil {
		e.log.Warn("receiver engine: ack start transfer failed", zap.Error(err))
	}

	ticker := time.NewTicker(e.ackEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case err := <-readErrCh:
			return nil, err
		case frame := <-frames:
			if err := e.receiver.Receive(bytes.NewReader(frame)); err != nil {
				e.log.Debug("receiver engine: receive error", zap.Error(err))
				continue
			}
			if e.receiver.IsComplete() {
				_ = e.receiver.Send(&datagramWriter{conn: e.conn}, e.transferID)
				e.log.Info("receiver engine: transfer complete")
				return e.receiver.Bytes(), nil
			}
		case <-ticker.C:
			if err := e.receiver.Send(&datagramWriter{conn: e.conn}, e.transferID); err != nil {
				e.log.Warn("receiver engine: send ack failed", zap.Error(err))
			}
		}
	}
}

func (e *ReceiverEngine) readLoop(ctx context.Context, frames chan<- []byte, errCh chan<- error) {
	buf := make([]byte, maxDatagramSize)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := e.conn.ReadDatagram(buf)
		if err != nil {
			select {
			case errCh <- err:
			default:
			}
			return
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		frames <- frame
	}
}
