// Package rendezvous discovers the node's internal endpoint and its NAT-mapped
// external endpoint.
package rendezvous

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"time"

	"github.com/1ureka/udpeer/internal/protocol"
	"github.com/1ureka/udpeer/internal/transport"
	"github.com/1ureka/udpeer/internal/util"
)

// ErrNoRoute means the OS has no route to the public internet, so the local
// interface address cannot be determined.
var ErrNoRoute = errors.New("no route to a public address")

// routeProbe is only used to pick a route; nothing is ever sent to it.
const routeProbe = "8.8.8.8:53"

// DefaultTimeout is the per-server wait in ResolveExternal.
const DefaultTimeout = 500 * time.Millisecond

// ExternalResolver discovers the NAT-mapped endpoint of the shared socket.
type ExternalResolver interface {
	ResolveExternal(ctx context.Context) (netip.AddrPort, error)
}

// ResolveInternal returns the local interface address the OS routes public
// traffic through, paired with localPort.
func ResolveInternal(localPort int) (netip.AddrPort, error) {
	return ResolveInternalVia(routeProbe, localPort)
}

// ResolveInternalVia is ResolveInternal with an explicit route target.
// Connecting a UDP socket only consults the routing table.
func ResolveInternalVia(target string, localPort int) (netip.AddrPort, error) {
	conn, err := net.Dial("udp4", target)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %v", ErrNoRoute, err)
	}
	defer conn.Close()

	local := transport.AddrPortOf(conn.LocalAddr())
	if !local.Addr().Is4() {
		return netip.AddrPort{}, fmt.Errorf("%w: local address %s is not IPv4", ErrNoRoute, local.Addr())
	}
	return netip.AddrPortFrom(local.Addr(), uint16(localPort)), nil
}

// Resolver asks bootstrap servers for our external endpoint.
type Resolver struct {
	tr      *transport.Transport
	servers []netip.AddrPort
	timeout time.Duration
}

// NewResolver creates a resolver over tr. servers is the trust anchor: replies
// from any other address are discarded. A zero timeout uses DefaultTimeout.
func NewResolver(tr *transport.Transport, servers []netip.AddrPort, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{
		tr:      tr,
		servers: slices.Clone(servers),
		timeout: timeout,
	}
}

// ResolveExternal sends GET_EXT_IP to the servers in turn, one per attempt,
// until a trusted SEND_EXT_IP reply arrives. There is no attempt limit;
// cancel ctx to give up.
func (r *Resolver) ResolveExternal(ctx context.Context) (netip.AddrPort, error) {
	if len(r.servers) == 0 {
		return netip.AddrPort{}, errors.New("no bootstrap servers")
	}

	for attempt := 0; ; attempt++ {
		server := r.servers[attempt%len(r.servers)]
		util.LogDebug("asking bootstrap server %s for external endpoint (attempt %d)", server, attempt+1)

		if err := r.tr.Send(protocol.TypeGetExtIP, nil, server); err != nil {
			return netip.AddrPort{}, err
		}

		ext, err := r.await(ctx, time.Now().Add(r.timeout))
		if err == nil {
			util.LogDebug("external endpoint %s confirmed", ext)
			return ext, nil
		}
		if !errors.Is(err, transport.ErrTimeout) {
			return netip.AddrPort{}, err
		}
	}
}

// await listens until deadline for a trusted SEND_EXT_IP reply.
func (r *Resolver) await(ctx context.Context, deadline time.Time) (netip.AddrPort, error) {
	for {
		in, err := r.tr.Receive(ctx, deadline)
		if errors.Is(err, protocol.ErrMalformed) {
			util.LogDebug("ignoring malformed datagram from %s", in.From)
			continue
		}
		if err != nil {
			return netip.AddrPort{}, err
		}

		if !slices.Contains(r.servers, in.From) {
			util.LogDebug("ignoring %s from untrusted %s", in.Packet.Type, in.From)
			continue
		}
		if in.Packet.Type != protocol.TypeSendExtIP {
			continue
		}

		ext, err := protocol.DecodeEndpoint(in.Packet.Payload)
		if err != nil {
			continue
		}
		return ext, nil
	}
}
