package blobstream

import (
	"bytes"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/piot-labs/blobstream/internal/wire"
)

func TestReceiverReceiveUnknownCommand(t *testing.T) {
	r, err := NewReceiver(zap.NewNop(), 8, 4)
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}
	err = r.Receive(bytes.NewReader([]byte{0xFF}))
	if !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("Receive(unknown command) = %v, want ErrUnknownCommand", err)
	}
}

func TestReceiverRejectsOversizedChunkLength(t *testing.T) {
	r, err := NewReceiver(zap.NewNop(), 8, 4)
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}

	frame := wire.EncodeSetChunk(wire.SetChunkFrame{TransferID: 1, ChunkID: 0, Octets: make([]byte, 100)})
	err = r.Receive(bytes.NewReader(frame))
	if !errors.Is(err, ErrGeometryViolation) {
		t.Fatalf("Receive(oversized chunk) = %v, want ErrGeometryViolation", err)
	}
}

func TestReceiverSendReportsFirstUnsetAndMask(t *testing.T) {
	r, err := NewReceiver(zap.NewNop(), 16, 4)
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}

	for _, chunkID := range []uint32{0, 2} {
		frame := wire.EncodeSetChunk(wire.SetChunkFrame{TransferID: 1, ChunkID: chunkID, Octets: make([]byte, 4)})
		if err := r.Receive(bytes.NewReader(frame)); err != nil {
			t.Fatalf("Receive(chunk %d): %v", chunkID, err)
		}
	}

	var buf bytes.Buffer
	if err := r.Send(&buf, 1); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ackReader := bytes.NewReader(buf.Bytes())
	cmd, err := wire.ReadCommand(ackReader)
	if err != nil || cmd != wire.CmdAckChunk {
		t.Fatalf("ReadCommand = %v, %v", cmd, err)
	}
	ack, err := wire.DecodeAckChunk(ackReader)
	if err != nil {
		t.Fatalf("DecodeAckChunk: %v", err)
	}
	if ack.WaitingForChunkID != 1 {
		t.Fatalf("WaitingForChunkID = %d, want 1", ack.WaitingForChunkID)
	}
	if ack.ReceiveMask != 0b1 { // bit 0 describes chunk 2 (waitingFor+1), which arrived
		t.Fatalf("ReceiveMask = %b, want %b", ack.ReceiveMask, 0b1)
	}
}

func TestReceiverIsCompleteAndBytes(t *testing.T) {
	r, err := NewReceiver(zap.NewNop(), 8, 4)
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}

	chunks := map[uint32][]byte{
		0: {1, 2, 3, 4},
		1: {5, 6, 7, 8},
	}
	for id, octets := range chunks {
		frame := wire.EncodeSetChunk(wire.SetChunkFrame{TransferID: 1, ChunkID: id, Octets: octets})
		if err := r.Receive(bytes.NewReader(frame)); err != nil {
			t.Fatalf("Receive(chunk %d): %v", id, err)
		}
	}

	if !r.IsComplete() {
		t.Fatal("IsComplete false after every chunk arrived")
	}
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if !bytes.Equal(r.Bytes(), want) {
		t.Fatalf("Bytes = %v, want %v", r.Bytes(), want)
	}
}
