// Package wire implements the compact binary command framing that couples
// the sender and receiver protocols.
package wire

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/piot-labs/blobstream/internal/errs"
)

// Command is the first octet of every frame.
type Command uint8

const (
	CmdSetChunk         Command = 0x01
	CmdStartTransfer    Command = 0x02
	CmdAckStartTransfer Command = 0x03
	CmdAckChunk         Command = 0x04
)

func (c Command) String() string {
	switch c {
	case CmdSetChunk:
		return "SET_CHUNK"
	case CmdStartTransfer:
		return "START_TRANSFER"
	case CmdAckStartTransfer:
		return "ACK_START_TRANSFER"
	case CmdAckChunk:
		return "ACK_CHUNK"
	default:
		return "UNKNOWN"
	}
}

// StartTransferFrame: 0x02 | transferId:u16 | octetCount:u32 | fixedChunkSize:u16
type StartTransferFrame struct {
	TransferID     uint16
	OctetCount     uint32
	FixedChunkSize uint16
}

// AckStartTransferFrame: 0x03 | transferId:u16
type AckStartTransferFrame struct {
	TransferID uint16
}

// SetChunkFrame: 0x01 | transferId:u16 | chunkId:u32 | length:u16 | bytes:[length]
type SetChunkFrame struct {
	TransferID uint16
	ChunkID    uint32
	Octets     []byte
}

// AckChunkFrame: 0x04 | transferId:u16 | waitingForChunkId:u32 | receiveMask:u64
type AckChunkFrame struct {
	TransferID        uint16
	WaitingForChunkID uint32
	ReceiveMask       uint64
}

func readFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		return errors.Wrap(errs.ErrShortRead, err.Error())
	}
	return nil
}

// ReadCommand reads the one-byte command code that begins every frame.
func ReadCommand(r io.Reader) (Command, error) {
	var b [1]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return Command(b[0]), nil
}

// EncodeStartTransfer serializes a START_TRANSFER frame.
func EncodeStartTransfer(f StartTransferFrame) []byte {
	buf := make([]byte, 1+2+4+2)
	buf[0] = byte(CmdStartTransfer)
	binary.BigEndian.PutUint16(buf[1:3], f.TransferID)
	binary.BigEndian.PutUint32(buf[3:7], f.OctetCount)
	binary.BigEndian.PutUint16(buf[7:9], f.FixedChunkSize)
	return buf
}

// DecodeStartTransfer reads a START_TRANSFER frame's body (the command byte
// has already been consumed by the caller via ReadCommand).
func DecodeStartTransfer(r io.Reader) (StartTransferFrame, error) {
	var body [8]byte
	if err := readFull(r, body[:]); err != nil {
		return StartTransferFrame{}, err
	}
	return StartTransferFrame{
		TransferID:     binary.BigEndian.Uint16(body[0:2]),
		OctetCount:     binary.BigEndian.Uint32(body[2:6]),
		FixedChunkSize: binary.BigEndian.Uint16(body[6:8]),
	}, nil
}

// EncodeAckStartTransfer serializes an ACK_START_TRANSFER frame.
func EncodeAckStartTransfer(f AckStartTransferFrame) []byte {
	buf := make([]byte, 1+2)
	buf[0] = byte(CmdAckStartTransfer)
	binary.BigEndian.PutUint16(buf[1:3], f.TransferID)
	return buf
}

// DecodeAckStartTransfer reads an ACK_START_TRANSFER frame's body.
func DecodeAckStartTransfer(r io.Reader) (AckStartTransferFrame, error) {
	var body [2]byte
	if err := readFull(r, body[:]); err != nil {
		return AckStartTransferFrame{}, err
	}
	return AckStartTransferFrame{TransferID: binary.BigEndian.Uint16(body[:])}, nil
}

// EncodeSetChunk serializes a SET_CHUNK frame. The caller is responsible
// for ensuring len(f.Octets) fits the per-datagram MTU budget.
func EncodeSetChunk(f SetChunkFrame) []byte {
	buf := make([]byte, 1+2+4+2+len(f.Octets))
	buf[0] = byte(CmdSetChunk)
	binary.BigEndian.PutUint16(buf[1:3], f.TransferID)
	binary.BigEndian.PutUint32(buf[3:7], f.ChunkID)
	binary.BigEndian.PutUint16(buf[7:9], uint16(len(f.Octets)))
	copy(buf[9:], f.Octets)
	return buf
}

// DecodeSetChunk reads a SET_CHUNK frame's body. If the declared length
// exceeds maxChunkSize, the frame is rejected before the payload is copied
// out.
func DecodeSetChunk(r io.Reader, maxChunkSize int) (SetChunkFrame, error) {
	var head [6]byte
	if err := readFull(r, head[:]); err != nil {
		return SetChunkFrame{}, err
	}
	transferID := binary.BigEndian.Uint16(head[0:2])
	chunkID := binary.BigEndian.Uint32(head[2:6])

	var lengthBuf [2]byte
	if err := readFull(r, lengthBuf[:]); err != nil {
		return SetChunkFrame{}, err
	}
	length := binary.BigEndian.Uint16(lengthBuf[:])
	if int(length) > maxChunkSize {
		return SetChunkFrame{}, errors.Wrapf(errs.ErrGeometryViolation, "SET_CHUNK length %d exceeds fixedChunkSize %d", length, maxChunkSize)
	}

	octets := make([]byte, length)
	if err := readFull(r, octets); err != nil {
		return SetChunkFrame{}, err
	}

	return SetChunkFrame{TransferID: transferID, ChunkID: chunkID, Octets: octets}, nil
}

// EncodeAckChunk serializes an ACK_CHUNK frame.
func EncodeAckChunk(f AckChunkFrame) []byte {
	buf := make([]byte, 1+2+4+8)
	buf[0] = byte(CmdAckChunk)
	binary.BigEndian.PutUint16(buf[1:3], f.TransferID)
	binary.BigEndian.PutUint32(buf[3:7], f.WaitingForChunkID)
	binary.BigEndian.PutUint64(buf[7:15], f.ReceiveMask)
	return buf
}

// DecodeAckChunk reads an ACK_CHUNK frame's body.
func DecodeAckChunk(r io.Reader) (AckChunkFrame, error) {
	var body [14]byte
	if err := readFull(r, body[:]); err != nil {
		return AckChunkFrame{}, err
	}
	return AckChunkFrame{
		TransferID:        binary.BigEndian.Uint16(body[0:2]),
		WaitingForChunkID: binary.BigEndian.Uint32(body[2:6]),
		ReceiveMask:       binary.BigEndian.Uint64(body[6:14]),
	}, nil
}

// NewReader wraps a single datagram payload for frame decoding.
func NewReader(datagram []byte) *bytes.Reader {
	return bytes.NewReader(datagram)
}
