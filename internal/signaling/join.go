package signaling

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/udpeer/internal/util"
)

// dialTimeout bounds the WebSocket handshake with the host.
const dialTimeout = 15 * time.Second

// Join is the dialing side of the exchange.
type Join struct {
	URL string // ws(s)://host:port/ws?pin=NNNN
}

// Exchange dials the host and trades endpoints with it.
func (j *Join) Exchange(ctx context.Context, local netip.AddrPort) (netip.AddrPort, error) {
	util.LogInfo("connecting to signaling server...")
	conn, err := j.dial(ctx)
	if err != nil {
		return netip.AddrPort{}, err
	}
	defer conn.Close()
	util.LogDebug("WS connected: %s", j.URL)

	remote, err := exchange(ctx, conn, local)
	if err != nil {
		return netip.AddrPort{}, err
	}
	util.LogSuccess("received peer endpoint %s", remote)
	return remote, nil
}

// dial opens the WebSocket to the host. A wrong PIN fails the handshake with
// websocket.ErrBadHandshake.
func (j *Join) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: dialTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, j.URL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to join signaling server (%s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("failed to join signaling server: %w", err)
	}
	return conn, nil
}
