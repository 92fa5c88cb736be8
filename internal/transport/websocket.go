package transport

import (
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// WebSocketTransport adapts a gorilla/websocket connection to Datagram,
// treating each binary message as one datagram. Useful where a firewall
// blocks raw UDP.
type WebSocketTransport struct {
	conn *websocket.Conn
}

// NewWebSocketTransport wraps an already-established websocket connection
// (e.g. from websocket.Dialer.Dial on the sender side, or
// websocket.Upgrader.Upgrade on the receiver side).
func NewWebSocketTransport(conn *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{conn: conn}
}

func (t *WebSocketTransport) ReadDatagram(buf []byte) (int, error) {
	messageType, payload, err := t.conn.ReadMessage()
	if err != nil {
		return 0, errors.Wrap(err, "transport: websocket read")
	}
	if messageType != websocket.BinaryMessage {
		return 0, errors.Errorf("transport: expected binary websocket message, got type %d", messageType)
	}
	if len(payload) > len(buf) {
		return 0, errors.New("transport: websocket datagram too large for buffer")
	}
	return copy(buf, payload), nil
}

func (t *WebSocketTransport) WriteDatagram(buf []byte) error {
	return t.conn.WriteMessage(websocket.BinaryMessage, buf)
}

func (t *WebSocketTransport) Close() error {
	return t.conn.Close()
}
