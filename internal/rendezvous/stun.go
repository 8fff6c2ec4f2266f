package rendezvous

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/pion/stun/v3"

	"github.com/1ureka/udpeer/internal/protocol"
	"github.com/1ureka/udpeer/internal/transport"
	"github.com/1ureka/udpeer/internal/util"
)

// STUNResolver discovers the external endpoint with RFC 5389 binding requests
// sent from the shared socket, for when no bootstrap server is reachable.
type STUNResolver struct {
	tr      *transport.Transport
	server  netip.AddrPort
	timeout time.Duration
}

// NewSTUNResolver creates a resolver asking server. A zero timeout uses DefaultTimeout.
func NewSTUNResolver(tr *transport.Transport, server netip.AddrPort, timeout time.Duration) *STUNResolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &STUNResolver{tr: tr, server: server, timeout: timeout}
}

// ResolveExternal retries binding requests until a matching success response
// arrives from the configured server. Cancel ctx to give up.
func (s *STUNResolver) ResolveExternal(ctx context.Context) (netip.AddrPort, error) {
	buf := make([]byte, protocol.MaxPacketSize)

	for attempt := 1; ; attempt++ {
		req, err := stun.Build(stun.TransactionID, stun.BindingRequest, stun.Fingerprint)
		if err != nil {
			return netip.AddrPort{}, fmt.Errorf("build binding request: %w", err)
		}

		util.LogDebug("sending STUN binding request to %s (attempt %d)", s.server, attempt)
		if err := s.tr.SendRaw(req.Raw, s.server); err != nil {
			return netip.AddrPort{}, err
		}

		ext, err := s.await(ctx, req.TransactionID, time.Now().Add(s.timeout), buf)
		if err == nil {
			return ext, nil
		}
		if !errors.Is(err, transport.ErrTimeout) {
			return netip.AddrPort{}, err
		}
	}
}

func (s *STUNResolver) await(ctx context.Context, txID [stun.TransactionIDSize]byte, deadline time.Time, buf []byte) (netip.AddrPort, error) {
	for {
		n, from, err := s.tr.ReceiveRaw(ctx, deadline, buf)
		if err != nil {
			return netip.AddrPort{}, err
		}
		if from != s.server || !stun.IsMessage(buf[:n]) {
			continue
		}

		res := new(stun.Message)
		res.Raw = append(res.Raw[:0], buf[:n]...)
		if err := res.Decode(); err != nil {
			continue
		}
		if res.TransactionID != txID || res.Type != stun.BindingSuccess {
			continue
		}

		ip, port, err := mappedAddress(res)
		if err != nil {
			util.LogDebug("STUN response without usable address: %v", err)
			continue
		}
		addr, ok := netip.AddrFromSlice(ip)
		if !ok || !addr.Unmap().Is4() {
			continue
		}
		return netip.AddrPortFrom(addr.Unmap(), uint16(port)), nil
	}
}

// mappedAddress prefers XOR-MAPPED-ADDRESS and falls back to MAPPED-ADDRESS.
func mappedAddress(res *stun.Message) (net.IP, int, error) {
	var xorAddr stun.XORMappedAddress
	if err := xorAddr.GetFrom(res); err == nil {
		return xorAddr.IP, xorAddr.Port, nil
	}

	var mapped stun.MappedAddress
	if err := mapped.GetFrom(res); err != nil {
		return nil, 0, err
	}
	return mapped.IP, mapped.Port, nil
}
