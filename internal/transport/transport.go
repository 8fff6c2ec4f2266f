// Package transport wraps the one UDP socket a peering run owns. The socket
// is lent to every component through a Transport; none of them closes it.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/1ureka/udpeer/internal/protocol"
	"github.com/1ureka/udpeer/internal/util"
)

// ErrTimeout is returned by Receive when the deadline passes without a datagram.
var ErrTimeout = errors.New("receive deadline exceeded")

// Inbound is one datagram read from the socket.
type Inbound struct {
	From   netip.AddrPort
	Packet *protocol.Packet // nil when the datagram did not decode
}

// Transport sends and receives protocol packets over a shared PacketConn.
//
// Sends are safe from any goroutine (the socket guarantees it). Receive uses
// an internal buffer and must only be called by one goroutine at a time;
// ownership of the receive side moves from resolver to negotiator to the
// tunnel collaborator in sequence.
type Transport struct {
	conn net.PacketConn
	buf  []byte
}

// New wraps conn. The caller keeps ownership of conn and closes it.
func New(conn net.PacketConn) *Transport {
	return &Transport{
		conn: conn,
		buf:  make([]byte, protocol.MaxPacketSize),
	}
}

// Conn returns the underlying socket.
func (t *Transport) Conn() net.PacketConn {
	return t.conn
}

// LocalAddr returns the bound address of the socket.
func (t *Transport) LocalAddr() netip.AddrPort {
	return AddrPortOf(t.conn.LocalAddr())
}

// ---------------------------------------------------------------------------
// Sending
// ---------------------------------------------------------------------------

// Send encodes and writes one packet to the given endpoint.
func (t *Transport) Send(typ protocol.Type, payload []byte, to netip.AddrPort) error {
	if err := t.SendRaw(protocol.Encode(typ, payload), to); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

// SendRaw writes an already-encoded datagram.
func (t *Transport) SendRaw(data []byte, to netip.AddrPort) error {
	n, err := t.conn.WriteTo(data, net.UDPAddrFromAddrPort(to))
	if err != nil {
		return fmt.Errorf("write to %s: %w", to, err)
	}
	util.Stats.AddSent(n)
	return nil
}

// ---------------------------------------------------------------------------
// Receiving
// ---------------------------------------------------------------------------

// ReceiveRaw reads one datagram into buf. It returns ErrTimeout when deadline
// passes (a zero deadline waits forever) and ctx.Err() when ctx is cancelled
// while waiting. Any other error is a transport failure.
func (t *Transport) ReceiveRaw(ctx context.Context, deadline time.Time, buf []byte) (int, netip.AddrPort, error) {
	if err := ctx.Err(); err != nil {
		return 0, netip.AddrPort{}, err
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return 0, netip.AddrPort{}, fmt.Errorf("set read deadline: %w", err)
	}

	// Pull the deadline into the past on cancellation so ReadFrom wakes up.
	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	n, addr, err := t.conn.ReadFrom(buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, netip.AddrPort{}, ctxErr
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, netip.AddrPort{}, ErrTimeout
		}
		return 0, netip.AddrPort{}, fmt.Errorf("read from socket: %w", err)
	}

	util.Stats.AddRecv(n)
	return n, AddrPortOf(addr), nil
}

// Receive reads and decodes one datagram. A datagram that fails to decode
// is returned with a nil Packet and an error matching protocol.ErrMalformed;
// callers treat it as noise and keep listening.
func (t *Transport) Receive(ctx context.Context, deadline time.Time) (Inbound, error) {
	n, from, err := t.ReceiveRaw(ctx, deadline, t.buf)
	if err != nil {
		return Inbound{}, err
	}

	pkt, err := protocol.Decode(t.buf[:n])
	if err != nil {
		util.Stats.AddMalformed()
		return Inbound{From: from}, err
	}
	return Inbound{From: from, Packet: pkt}, nil
}

// IsNoise reports whether err is recoverable protocol noise: a malformed
// datagram or an expired per-attempt deadline.
func IsNoise(err error) bool {
	return errors.Is(err, protocol.ErrMalformed) || errors.Is(err, ErrTimeout)
}

// AddrPortOf converts a socket address to an unmapped netip.AddrPort.
func AddrPortOf(addr net.Addr) netip.AddrPort {
	var ap netip.AddrPort
	if ua, ok := addr.(*net.UDPAddr); ok {
		ap = ua.AddrPort()
	} else if addr != nil {
		ap, _ = netip.ParseAddrPort(addr.String())
	}
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}
