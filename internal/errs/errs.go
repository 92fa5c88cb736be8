// Package errs holds the sentinel errors shared across the core packages,
// kept separate from the public package so internal/reassembly,
// internal/scheduler and internal/wire can all depend on them without
// importing the root package (which depends on all three).
package errs

import "github.com/pkg/errors"

var (
	ErrShortRead          = errors.New("blobstream: short read")
	ErrUnknownCommand     = errors.New("blobstream: unknown command")
	ErrGeometryViolation  = errors.New("blobstream: chunk geometry violation")
	ErrTransferIDMismatch = errors.New("blobstream: transfer id mismatch")
	ErrOutputFull         = errors.New("blobstream: output buffer too small for frame")
)
