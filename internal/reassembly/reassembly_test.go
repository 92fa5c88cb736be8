package reassembly

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/piot-labs/blobstream/internal/errs"
)

func TestSetChunkTailShorterThanFixedSize(t *testing.T) {
	// 10 bytes split into chunks of 4: chunk 0 and 1 are 4 bytes, chunk 2 (the
	// tail) is only 2 bytes.
	b, err := New(zap.NewNop(), 10, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if b.ChunkCount() != 3 {
		t.Fatalf("ChunkCount = %d, want 3", b.ChunkCount())
	}

	if err := b.SetChunk(0, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("SetChunk(0): %v", err)
	}
	if err := b.SetChunk(1, []byte{5, 6, 7, 8}); err != nil {
		t.Fatalf("SetChunk(1): %v", err)
	}
	if b.IsComplete() {
		t.Fatal("IsComplete true before tail chunk arrives")
	}

	if err := b.SetChunk(2, []byte{9, 10}); err != nil {
		t.Fatalf("SetChunk(2) tail: %v", err)
	}
	if !b.IsComplete() {
		t.Fatal("IsComplete false after every chunk arrived")
	}

	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	got := b.Bytes()
	if len(got) != len(want) {
		t.Fatalf("Bytes length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Bytes[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestSetChunkRejectsWrongTailLength(t *testing.T) {
	b, err := New(zap.NewNop(), 10, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// the tail chunk (id 2) must be exactly 2 bytes, not fixedChunkSize.
	err = b.SetChunk(2, []byte{9, 10, 11, 12})
	if !errors.Is(err, errs.ErrGeometryViolation) {
		t.Fatalf("SetChunk with wrong tail length: got %v, want ErrGeometryViolation", err)
	}
	if b.IsComplete() {
		t.Fatal("IsComplete true after a rejected write")
	}
}

func TestSetChunkRejectsOutOfRangeChunkID(t *testing.T) {
	b, err := New(zap.NewNop(), 10, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := b.SetChunk(-1, []byte{1, 2, 3, 4}); !errors.Is(err, errs.ErrGeometryViolation) {
		t.Fatalf("SetChunk(-1): got %v, want ErrGeometryViolation", err)
	}
	if err := b.SetChunk(3, []byte{1, 2}); !errors.Is(err, errs.ErrGeometryViolation) {
		t.Fatalf("SetChunk(3) out of range: got %v, want ErrGeometryViolation", err)
	}
}

func TestSetChunkRejectsWrongLengthForNonTailChunk(t *testing.T) {
	b, err := New(zap.NewNop(), 10, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = b.SetChunk(0, []byte{1, 2, 3})
	if !errors.Is(err, errs.ErrGeometryViolation) {
		t.Fatalf("SetChunk(0) short: got %v, want ErrGeometryViolation", err)
	}

	// state must be untouched: chunk 0 is still unreceived.
	if b.FirstUnset() != 0 {
		t.Fatalf("FirstUnset = %d, want 0 after rejected write", b.FirstUnset())
	}
}

func TestSetChunkAfterDestroyIsRejected(t *testing.T) {
	b, err := New(zap.NewNop(), 10, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b.Destroy()

	if err := b.SetChunk(0, []byte{1, 2, 3, 4}); err == nil {
		t.Fatal("SetChunk after Destroy: got nil error, want error")
	}
}

func TestSetChunkIsIdempotent(t *testing.T) {
	b, err := New(zap.NewNop(), 8, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	payload := []byte{1, 2, 3, 4}
	if err := b.SetChunk(0, payload); err != nil {
		t.Fatalf("SetChunk(0) first: %v", err)
	}
	if err := b.SetChunk(0, payload); err != nil {
		t.Fatalf("SetChunk(0) redelivered: %v", err)
	}
	if b.FirstUnset() != 1 {
		t.Fatalf("FirstUnset = %d, want 1", b.FirstUnset())
	}
}

func TestReceiveMaskDescribesChunksAfterWaitingFor(t *testing.T) {
	b, err := New(zap.NewNop(), 6*4, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// receive chunks 2 and 3 out of order, leaving 0 and 1 outstanding.
	if err := b.SetChunk(2, make([]byte, 4)); err != nil {
		t.Fatal(err)
	}
	if err := b.SetChunk(3, make([]byte, 4)); err != nil {
		t.Fatal(err)
	}

	if got := b.FirstUnset(); got != 0 {
		t.Fatalf("FirstUnset = %d, want 0", got)
	}

	mask := b.ReceiveMask(b.FirstUnset(), 64)
	// bit 0 describes chunk 1 (unreceived) -> 0; bit 1 describes chunk 2 -> 1;
	// bit 2 describes chunk 3 -> 1.
	want := uint64(0b110)
	if mask != want {
		t.Fatalf("ReceiveMask = %b, want %b", mask, want)
	}
}
