package signaling

import (
	"net/netip"
	"sync"

	"github.com/gorilla/websocket"
)

// sender serializes outgoing signaling messages to the WebSocket.
type sender struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// send writes a signaling message to the WebSocket, guarded by a mutex.
func (s *sender) send(msg message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(msg)
}

// sendEndpoint announces our external endpoint.
func (s *sender) sendEndpoint(ep netip.AddrPort) error {
	return s.send(message{Type: msgTypeEndpoint, Endpoint: ep.String()})
}

// sendError tells the other side why we are giving up.
func (s *sender) sendError(reason string) error {
	return s.send(message{Type: msgTypeError, Reason: reason})
}

// closeGracefully sends a normal close frame before the connection is dropped.
func (s *sender) closeGracefully() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
}
