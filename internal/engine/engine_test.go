package engine

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	blobstream "github.com/piot-labs/blobstream"
	"github.com/piot-labs/blobstream/internal/transport"
)

func TestSenderAndReceiverEngineCompleteOverMemoryPair(t *testing.T) {
	payload := bytes.Repeat([]byte("blobstream"), 200) // not a multiple of the chunk size
	fixedChunkSize := 256

	_, senderConn, receiverConn := transport.NewMemoryPair()

	sender, err := blobstream.NewSenderWithResendThreshold(zap.NewNop(), 1, payload, fixedChunkSize, 10*time.Millisecond)
	require.NoError(t, err)
	receiver, err := blobstream.NewReceiver(zap.NewNop(), len(payload), fixedChunkSize)
	require.NoError(t, err)

	se := NewSenderEngine(zap.NewNop(), senderConn, sender, 5*time.Millisecond)
	re := NewReceiverEngine(zap.NewNop(), receiverConn, receiver, 1, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type recvResult struct {
		blob []byte
		err  error
	}
	recvCh := make(chan recvResult, 1)
	go func() {
		blob, err := re.Run(ctx)
		recvCh <- recvResult{blob, err}
	}()

	sendErrCh := make(chan error, 1)
	go func() {
		sendErrCh <- se.Run(ctx)
	}()

	select {
	case res := <-recvCh:
		require.NoError(t, res.err)
		require.True(t, bytes.Equal(res.blob, payload), "reassembled blob does not match the original payload")
	case <-ctx.Done():
		t.Fatal("transfer did not complete before the deadline")
	}
}
