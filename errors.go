package blobstream

import "github.com/piot-labs/blobstream/internal/errs"

// Sentinel errors for the taxonomy described in the protocol design notes.
// Callers should compare with errors.Is; wrapped instances carry chunk/
// transfer context added with github.com/pkg/errors.
var (
	// ErrShortRead is returned when the input stream is exhausted mid-frame.
	ErrShortRead = errs.ErrShortRead

	// ErrUnknownCommand is returned when the first byte of a frame does not
	// name one of SET_CHUNK, START_TRANSFER, ACK_START_TRANSFER, ACK_CHUNK.
	ErrUnknownCommand = errs.ErrUnknownCommand

	// ErrGeometryViolation is returned when a chunk id is out of range or a
	// chunk's length disagrees with the fixed chunk size / tail length.
	ErrGeometryViolation = errs.ErrGeometryViolation

	// ErrTransferIDMismatch is a soft error: the frame is ignored and state
	// is left unchanged.
	ErrTransferIDMismatch = errs.ErrTransferIDMismatch

	// ErrOutputFull is returned when a frame does not fit the caller's
	// output buffer; the caller should retry on the next tick.
	ErrOutputFull = errs.ErrOutputFull
)
