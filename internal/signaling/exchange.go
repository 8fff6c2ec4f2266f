package signaling

import (
	"context"
	"errors"
	"net/netip"

	"github.com/gorilla/websocket"
)

// exchange sends local over conn and waits for the peer's endpoint. Both
// sides send first, so neither blocks on the other. Cancelling ctx closes
// conn to unblock the read.
func exchange(ctx context.Context, conn *websocket.Conn, local netip.AddrPort) (netip.AddrPort, error) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	s := &sender{conn: conn}
	r := &receiver{conn: conn}

	if err := s.sendEndpoint(local); err != nil {
		return netip.AddrPort{}, ctxOr(ctx, err)
	}

	remote, err := r.awaitEndpoint()
	if errors.Is(err, errBadEndpoint) {
		_ = s.sendError(err.Error())
	}
	if err != nil {
		return netip.AddrPort{}, ctxOr(ctx, err)
	}

	s.closeGracefully()
	return remote, nil
}

// ctxOr prefers the context error, since a cancelled exchange surfaces as
// a closed-connection error from gorilla.
func ctxOr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
