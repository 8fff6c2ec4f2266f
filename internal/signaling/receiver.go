package signaling

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/gorilla/websocket"

	"github.com/1ureka/udpeer/internal/config"
	"github.com/1ureka/udpeer/internal/util"
)

var (
	// ErrRejected is returned when the other side aborts the exchange.
	ErrRejected = errors.New("peer rejected the exchange")

	errBadEndpoint = errors.New("peer sent a bad endpoint")
)

// receiver reads signaling messages until the peer's endpoint arrives.
type receiver struct {
	conn *websocket.Conn
}

// awaitEndpoint returns the first valid endpoint announced by the peer.
// Unknown message types are skipped.
func (r *receiver) awaitEndpoint() (netip.AddrPort, error) {
	for {
		var msg message
		if err := r.conn.ReadJSON(&msg); err != nil {
			return netip.AddrPort{}, fmt.Errorf("failed to read WS message: %w", err)
		}

		switch msg.Type {
		case msgTypeEndpoint:
			ep, err := config.ParseEndpoint(msg.Endpoint)
			if err != nil {
				return netip.AddrPort{}, fmt.Errorf("%w: %v", errBadEndpoint, err)
			}
			return ep, nil

		case msgTypeError:
			return netip.AddrPort{}, fmt.Errorf("%w: %s", ErrRejected, msg.Reason)

		default:
			util.LogDebug("ignoring signaling message of type %q", msg.Type)
		}
	}
}
