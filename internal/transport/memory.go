package transport

import (
	"errors"
	"sync"
)

// MemoryPair is a pair of connected in-memory Datagram endpoints, used by
// tests to drive a full Sender/Receiver transfer without a real socket.
// DropNextA/DropNextB let a test simulate packet loss.
type MemoryPair struct {
	a, b *memoryEndpoint
}

// NewMemoryPair returns two Datagram endpoints wired to each other.
func NewMemoryPair() (*MemoryPair, Datagram, Datagram) {
	chAB := make(chan []byte, 256)
	chBA := make(chan []byte, 256)
	a := &memoryEndpoint{send: chAB, recv: chBA}
	b := &memoryEndpoint{send: chBA, recv: chAB}
	return &MemoryPair{a: a, b: b}, a, b
}

// DropNextA configures n subsequent writes from the "a" side to be dropped.
func (p *MemoryPair) DropNextA(n int) { p.a.DropNext(n) }

// DropNextB configures n subsequent writes from the "b" side to be dropped.
func (p *MemoryPair) DropNextB(n int) { p.b.DropNext(n) }

type memoryEndpoint struct {
	mu     sync.Mutex
	send   chan []byte
	recv   chan []byte
	closed bool

	// dropNext, when > 0, causes that many subsequent writes to be
	// silently discarded instead of delivered, simulating packet loss.
	dropNext int
}

// DropNext configures n subsequent writes from this endpoint to be
// silently dropped, simulating an unreliable channel.
func (e *memoryEndpoint) DropNext(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dropNext = n
}

func (e *memoryEndpoint) ReadDatagram(buf []byte) (int, error) {
	datagram, ok := <-e.recv
	if !ok {
		return 0, errors.New("transport: memory endpoint closed")
	}
	if len(datagram) > len(buf) {
		return 0, errors.New("transport: memory datagram too large for buffer")
	}
	return copy(buf, datagram), nil
}

func (e *memoryEndpoint) WriteDatagram(buf []byte) error {
	e.mu.Lock()
	if e.dropNext > 0 {
		e.dropNext--
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	datagram := make([]byte, len(buf))
	copy(datagram, buf)
	e.send <- datagram
	return nil
}

func (e *memoryEndpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.send)
	}
	return nil
}
