package blobstream

import (
	"bytes"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/piot-labs/blobstream/internal/wire"
)

func TestSenderReceiveUnknownCommand(t *testing.T) {
	s, err := NewSender(zap.NewNop(), 1, []byte("payload"), 4)
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}

	err = s.Receive(bytes.NewReader([]byte{0xFF}))
	if !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("Receive(unknown command) = %v, want ErrUnknownCommand", err)
	}
}

func TestSenderReceiveAckStartTransferWrongTransferID(t *testing.T) {
	s, err := NewSender(zap.NewNop(), 1, []byte("payload"), 4)
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}

	frame := wire.EncodeAckStartTransfer(wire.AckStartTransferFrame{TransferID: 2})
	err = s.Receive(bytes.NewReader(frame))
	if !errors.Is(err, ErrTransferIDMismatch) {
		t.Fatalf("Receive(ack for wrong transferId) = %v, want ErrTransferIDMismatch", err)
	}
	if s.StartAcked() {
		t.Fatal("StartAcked true after a mismatched ack")
	}
}

func TestSenderStartAcked(t *testing.T) {
	s, err := NewSender(zap.NewNop(), 1, []byte("payload"), 4)
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	if s.StartAcked() {
		t.Fatal("StartAcked true before any ack observed")
	}

	frame := wire.EncodeAckStartTransfer(wire.AckStartTransferFrame{TransferID: 1})
	if err := s.Receive(bytes.NewReader(frame)); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !s.StartAcked() {
		t.Fatal("StartAcked false after a matching ack")
	}
}

func TestSenderReceiveAckChunkWrongTransferIDLeavesSchedulerUntouched(t *testing.T) {
	s, err := NewSender(zap.NewNop(), 1, make([]byte, 8), 4)
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}

	frame := wire.EncodeAckChunk(wire.AckChunkFrame{TransferID: 99, WaitingForChunkID: 2})
	err = s.Receive(bytes.NewReader(frame))
	if !errors.Is(err, ErrTransferIDMismatch) {
		t.Fatalf("Receive(ack chunk wrong transferId) = %v, want ErrTransferIDMismatch", err)
	}
	if s.IsComplete() {
		t.Fatal("IsComplete true after an ack for a different transfer id")
	}
}

func TestNewSenderRejectsOversizedFixedChunkSize(t *testing.T) {
	_, err := NewSender(zap.NewNop(), 1, []byte("x"), 2048)
	if err == nil {
		t.Fatal("NewSender with fixedChunkSize 2048: got nil error, want error")
	}
}
