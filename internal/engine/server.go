// ReceiverServer accepts inbound transfers from any number of senders on a
// single bound UDP port, demultiplexed by remote address rather than
// accepted as separate connections, since UDP has no connection setup.
package engine

import (
	"bytes"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	blobstream "github.com/piot-labs/blobstream"
	"github.com/piot-labs/blobstream/internal/transport"
	"github.com/piot-labs/blobstream/internal/wire"
)

// ReceiverServer listens for inbound transfers and hands each new peer its
// own Receiver + ReceiverEngine, for hosts serving many transfers
// concurrently.
type ReceiverServer struct {
	Logger         *zap.Logger
	Addr           string
	FixedChunkSize int
	AckEvery       time.Duration
	Registry       *Registry

	// OnComplete, if set, is called with the reassembled blob once a
	// transfer finishes.
	OnComplete func(transferID uint16, blob []byte)

	listener *transport.UDPListener
}

// Listen starts the server and blocks, demultiplexing inbound datagrams by
// remote address until ctx is cancelled.
func (s *ReceiverServer) Listen(ctx context.Context) error {
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	if s.Registry == nil {
		s.Registry = NewRegistry(s.Logger)
	}
	if s.AckEvery <= 0 {
		s.AckEvery = 10 * time.Millisecond
	}

	listener, err := transport.ListenUDP(s.Addr)
	if err != nil {
		return err
	}
	s.listener = listener
	defer listener.Close()

	s.Logger.Info("receiver server: listening", zap.String("addr", s.Addr))

	var peerMu sync.Mutex
	peerFrames := make(map[string]chan []byte)

	buf := make([]byte, maxDatagramSize)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, addr, err := listener.ReadFrom(buf)
		if err != nil {
			s.Logger.Error("receiver server: read error", zap.Error(err))
			continue
		}

		frame := make([]byte, n)
		copy(frame, buf[:n])

		peerKey := addr.String()

		peerMu.Lock()
		ch, ok := peerFrames[peerKey]
		peerMu.Unlock()
		if ok {
			select {
			case ch <- frame:
			default:
				s.Logger.Warn("receiver server: peer frame channel full, dropping", zap.String("peer", peerKey))
			}
			continue
		}

		transferID, octetCount, fixedChunkSize, ok := peekStartTransfer(frame)
		if !ok {
			s.Logger.Debug("receiver server: dropping frame from unknown peer without START_TRANSFER", zap.String("peer", peerKey))
			continue
		}

		if !s.Registry.Admit(transferID, octetCount, fixedChunkSize) {
			s.Logger.Warn("receiver server: transfer rejected by guard", zap.Uint16("transferId", transferID))
			continue
		}

		ch = make(chan []byte, 64)
		peerMu.Lock()
		peerFrames[peerKey] = ch
		peerMu.Unlock()

		receiver, err := blobstream.NewReceiver(s.Logger, octetCount, fixedChunkSize)
		if err != nil {
			s.Logger.Error("receiver server: failed to allocate receiver", zap.Error(err))
			peerMu.Lock()
			delete(peerFrames, peerKey)
			peerMu.Unlock()
			continue
		}

		peerConn := listener.Peer(addr)
		re := NewReceiverEngine(s.Logger, peerConn, receiver, transferID, s.AckEvery)
		s.Registry.Register(transferID, re)
		ch <- frame // the START_TRANSFER frame itself carries no payload to replay, but keeps symmetry with subsequent frames

		go func(transferID uint16, peerKey string, frames chan []byte) {
			defer func() {
				peerMu.Lock()
				delete(peerFrames, peerKey)
				peerMu.Unlock()
				s.Registry.Remove(transferID)
			}()

			blob, err := re.RunWithFrames(ctx, frames)
			if err != nil {
				s.Logger.Warn("receiver server: transfer ended with error", zap.Uint16("transferId", transferID), zap.Error(err))
				return
			}
			if s.OnComplete != nil {
				s.OnComplete(transferID, blob)
			}
		}(transferID, peerKey, ch)
	}
}

// peekStartTransfer decodes frame as a START_TRANSFER without mutating any
// engine state, used to decide whether a never-seen peer is beginning a
// legitimate new transfer.
func peekStartTransfer(frame []byte) (transferID uint16, octetCount int, fixedChunkSize int, ok bool) {
	r := bytes.NewReader(frame)
	cmd, err := wire.ReadCommand(r)
	if err != nil || cmd != wire.CmdStartTransfer {
		return 0, 0, 0, false
	}
	start, err := wire.DecodeStartTransfer(r)
	if err != nil {
		return 0, 0, 0, false
	}
	return start.TransferID, int(start.OctetCount), int(start.FixedChunkSize), true
}
