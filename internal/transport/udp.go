package transport

import (
	"net"

	"github.com/pkg/errors"
)

// UDPTransport is a connected UDP socket satisfying Datagram.
type UDPTransport struct {
	conn *net.UDPConn
}

// DialUDP connects a UDPTransport to addr (host:port), for use by a sender
// that already knows its receiver's address.
func DialUDP(addr string) (*UDPTransport, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "transport: resolving udp address %q", addr)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, errors.Wrapf(err, "transport: dialing udp %q", addr)
	}
	return &UDPTransport{conn: conn}, nil
}

func (t *UDPTransport) ReadDatagram(buf []byte) (int, error) {
	return t.conn.Read(buf)
}

func (t *UDPTransport) WriteDatagram(buf []byte) error {
	_, err := t.conn.Write(buf)
	return err
}

func (t *UDPTransport) Close() error {
	return t.conn.Close()
}

// UDPListener accepts datagrams from any peer on a bound UDP port. A
// receiver host serving many concurrent transfers uses Peer to obtain a
// Datagram scoped to a single remote address.
type UDPListener struct {
	conn *net.UDPConn
}

// ListenUDP binds a UDPListener to addr (host:port).
func ListenUDP(addr string) (*UDPListener, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "transport: resolving udp listen address %q", addr)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, errors.Wrapf(err, "transport: listening udp %q", addr)
	}
	return &UDPListener{conn: conn}, nil
}

// ReadFrom reads one datagram and reports its sender.
func (l *UDPListener) ReadFrom(buf []byte) (int, net.Addr, error) {
	return l.conn.ReadFromUDP(buf)
}

// Peer returns a Datagram bound to a specific remote address, sharing the
// listener's underlying socket.
func (l *UDPListener) Peer(addr net.Addr) Datagram {
	return &udpPeer{listener: l, addr: addr}
}

func (l *UDPListener) Close() error {
	return l.conn.Close()
}

type udpPeer struct {
	listener *UDPListener
	addr     net.Addr
}

// ReadDatagram is not supported on a per-peer handle: demultiplexing reads
// happens once, centrally, in the listener's accept loop (see
// internal/engine/server.go), which then dispatches to each transfer's
// own in-memory queue.
func (p *udpPeer) ReadDatagram(buf []byte) (int, error) {
	return 0, errors.New("transport: ReadDatagram not supported on a udpPeer; reads are demultiplexed by the listener")
}

func (p *udpPeer) WriteDatagram(buf []byte) error {
	_, err := p.listener.conn.WriteTo(buf, p.addr)
	return err
}

func (p *udpPeer) Close() error {
	return nil
}
