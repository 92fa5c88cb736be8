// Package engine drives the Sender/Receiver core to completion over a
// concrete transport: a loop that reads incoming frames, reacts to them,
// and exits on error or completion.
package engine

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	blobstream "github.com/piot-labs/blobstream"
	"github.com/piot-labs/blobstream/constants"
	"github.com/piot-labs/blobstream/internal/transport"
)

const maxDatagramSize = constants.DatagramMTUBudget

// SenderEngine drives a blobstream.Sender over a Datagram transport until
// the receiver has acknowledged every chunk or the context is cancelled.
type SenderEngine struct {
	log       *zap.Logger
	id        string
	conn      transport.Datagram
	sender    *blobstream.Sender
	tickEvery time.Duration
	active    bool
}

// NewSenderEngine builds a SenderEngine. tickEvery controls how often
// PrepareSend/GetChunksToSend is polled; it should be a fraction of the
// resend threshold so retransmissions are paced promptly.
func NewSenderEngine(log *zap.Logger, conn transport.Datagram, sender *blobstream.Sender, tickEvery time.Duration) *SenderEngine {
	if log == nil {
		log = zap.NewNop()
	}
	if tickEvery <= 0 {
		tickEvery = 10 * time.Millisecond
	}
	return &SenderEngine{
		log:       log.With(zap.String("engineId", uuid.NewString()), zap.Uint16("transferId", sender.TransferID())),
		conn:      conn,
		sender:    sender,
		tickEvery: tickEvery,
		active:    true,
	}
}

// Run drives the transfer to completion. It starts a reader goroutine to
// consume ACK_START_TRANSFER/ACK_CHUNK frames concurrently with a ticking
// send loop; each engine instance owns one transfer's state exclusively, so
// nothing is shared across concurrent transfers.
func (e *SenderEngine) Run(ctx context.Context) error {
	e.log.Info("sender engine: starting")

	errCh := make(chan error, 1)
	go e.readLoop(ctx, errCh)

	if err := e.sender.StartTransfer(&datagramWriter{conn: e.conn}); err != nil {
		return err
	}

	ticker := time.NewTicker(e.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.active = false
			return ctx.Err()
		case err := <-errCh:
			e.active = false
			return err
		case now := <-ticker.C:
			entries := e.sender.PrepareSend(now, 5)
			for _, entry := range entries {
				if err := e.sender.SendEntry(&datagramWriter{conn: e.conn}, entry); err != nil {
					e.log.Warn("sender engine: send entry failed", zap.Error(err))
				}
			}
			if e.sender.IsComplete() {
				e.log.Info("sender engine: transfer complete")
				e.active = false
				return nil
			}
		}
	}
}

func (e *SenderEngine) readLoop(ctx context.Context, errCh chan<- error) {
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
		if recvErr := e.sender.Receive(bytes.NewReader(buf[:n])); recvErr != nil {
			e.log.Debug("sender engine: receive error", zap.Error(recvErr))
		}
	}
}

// datagramWriter adapts transport.Datagram's WriteDatagram to io.Writer,
// since blobstream.Sender/Receiver speak in terms of plain io.Writer
// "outStream" sinks.
type datagramWriter struct {
	conn transport.Datagram
}

func (w *datagramWriter) Write(p []byte) (int, error) {
	if err := w.conn.WriteDatagram(p); err != nil {
		return 0, err
	}
	return len(p), nil
}
