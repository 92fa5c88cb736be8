package blobstream_test

import (
	"bytes"
	"crypto/rand"
	"testing"
	"time"

	"go.uber.org/zap"

	blobstream "github.com/piot-labs/blobstream"
	"github.com/piot-labs/blobstream/internal/transport"
	"github.com/piot-labs/blobstream/internal/wire"
)

// driveTransfer runs a Sender and Receiver to completion over an in-memory
// Datagram pair, returning the reassembled blob. It mirrors the loop shape
// of internal/engine's SenderEngine/ReceiverEngine but inline, so the test
// can assert on intermediate state without starting real goroutined engines.
func driveTransfer(t *testing.T, payload []byte, fixedChunkSize int, pair *transport.MemoryPair, senderConn, receiverConn transport.Datagram) []byte {
	t.Helper()

	log := zap.NewNop()
	sender, err := blobstream.NewSenderWithResendThreshold(log, 1, payload, fixedChunkSize, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSenderWithResendThreshold: %v", err)
	}
	receiver, err := blobstream.NewReceiver(log, len(payload), fixedChunkSize)
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}

	if err := sender.StartTransfer(asWriter(senderConn)); err != nil {
		t.Fatalf("StartTransfer: %v", err)
	}

	const maxDatagramSize = 2048
	deadline := time.Now().Add(5 * time.Second)

	for !receiver.IsComplete() {
		if time.Now().After(deadline) {
			t.Fatal("transfer did not complete before deadline")
		}

		// sender side: consume the START_TRANSFER ack / chunk acks, send due chunks.
		drainAvailable(senderConn, maxDatagramSize, func(frame []byte) {
			_ = sender.Receive(bytes.NewReader(frame))
		})
		for _, entry := range sender.PrepareSend(time.Now(), 5) {
			if err := sender.SendEntry(asWriter(senderConn), entry); err != nil {
				t.Fatalf("SendEntry: %v", err)
			}
		}

		// receiver side: consume inbound chunks/start-transfer, periodically ack.
		drainAvailable(receiverConn, maxDatagramSize, func(frame []byte) {
			switch wire.Command(frame[0]) {
			case wire.CmdStartTransfer:
				_ = blobstream.SendAckStartTransfer(asWriter(receiverConn), 1)
			default:
				_ = receiver.Receive(bytes.NewReader(frame))
			}
		})
		if err := receiver.Send(asWriter(receiverConn), 1); err != nil {
			t.Fatalf("Send ack: %v", err)
		}

		time.Sleep(2 * time.Millisecond)
	}

	return receiver.Bytes()
}

// drainAvailable reads every datagram currently queued on conn without
// blocking past the first empty read, by racing a short timer against the
// underlying channel read. MemoryPair's ReadDatagram blocks on an empty
// channel, so this helper uses a buffered non-blocking peek via a goroutine
// with a short timeout instead of calling ReadDatagram directly in a tight
// loop that would otherwise stall forever once the queue drains.
func drainAvailable(conn transport.Datagram, bufSize int, handle func(frame []byte)) {
	for {
		frame, err := readWithTimeout(conn, bufSize, 5*time.Millisecond)
		if err != nil || frame == nil {
			return
		}
		handle(frame)
	}
}

// readWithTimeout reads at most one datagram from conn, giving up after
// timeout if none arrives. Each call uses its own buffer: the spawned
// goroutine may still be blocked in ReadDatagram after a timeout (and
// write to it later), so the buffer must never be shared across calls.
func readWithTimeout(conn transport.Datagram, bufSize int, timeout time.Duration) ([]byte, error) {
	type result struct {
		n   int
		err error
	}
	buf := make([]byte, bufSize)
	ch := make(chan result, 1)
	go func() {
		n, err := conn.ReadDatagram(buf)
		ch <- result{n, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil || r.n == 0 {
			return nil, r.err
		}
		return buf[:r.n], nil
	case <-time.After(timeout):
		return nil, nil
	}
}

func asWriter(conn transport.Datagram) writerFunc {
	return func(p []byte) (int, error) {
		if err := conn.WriteDatagram(p); err != nil {
			return 0, err
		}
		return len(p), nil
	}
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func TestTransferCompletesOverReliableChannel(t *testing.T) {
	payload := make([]byte, 4096+37) // not an exact multiple of the chunk size
	if _, err := rand.Read(payload); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	pair, senderConn, receiverConn := transport.NewMemoryPair()
	_ = pair

	got := driveTransfer(t, payload, 512, pair, senderConn, receiverConn)
	if !bytes.Equal(got, payload) {
		t.Fatal("reassembled blob does not match the original payload")
	}
}

func TestTransferCompletesDespiteDroppedChunks(t *testing.T) {
	payload := make([]byte, 2048)
	if _, err := rand.Read(payload); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	pair, senderConn, receiverConn := transport.NewMemoryPair()
	pair.DropNextA(3) // drop the first few frames the sender writes

	got := driveTransfer(t, payload, 256, pair, senderConn, receiverConn)
	if !bytes.Equal(got, payload) {
		t.Fatal("reassembled blob does not match the original payload after drops")
	}
}
