package punch

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"github.com/1ureka/udpeer/internal/protocol"
	"github.com/1ureka/udpeer/internal/transport"
	"github.com/1ureka/udpeer/internal/util"
)

// DefaultResendInterval is the broadcast cadence of the current phase packet.
const DefaultResendInterval = time.Second

// waitingReportEvery controls how often a stalled handshake is reported.
const waitingReportEvery = 10

// Negotiator drives a Session over the shared socket.
type Negotiator struct {
	tr       *transport.Transport
	interval time.Duration
}

// NewNegotiator creates a negotiator. A zero interval uses DefaultResendInterval.
func NewNegotiator(tr *transport.Transport, interval time.Duration) *Negotiator {
	if interval <= 0 {
		interval = DefaultResendInterval
	}
	return &Negotiator{tr: tr, interval: interval}
}

// Negotiate runs the handshake against the peer's claimed endpoint until it is
// confirmed, and returns the confirmed endpoint (its port may differ from the
// claimed one when the peer's NAT remapped it). It runs until confirmation,
// a socket error, or cancellation of ctx.
//
// The current phase packet is sent every interval regardless of inbound
// traffic, and immediately on every phase change.
func (n *Negotiator) Negotiate(ctx context.Context, claimed netip.AddrPort) (netip.AddrPort, error) {
	s := NewSession(claimed)
	util.LogInfo("punching through to %s", s.Target())

	sends := 0
	nextSend := time.Now()

	for {
		if !time.Now().Before(nextSend) {
			if err := n.tr.Send(s.Outgoing(), nil, s.Target()); err != nil {
				return netip.AddrPort{}, err
			}
			sends++
			nextSend = time.Now().Add(n.interval)

			if sends%waitingReportEvery == 0 {
				util.LogInfo("still waiting for %s (%s, %d packets sent)", s.Target(), s.State(), sends)
			}
		}

		in, err := n.tr.Receive(ctx, nextSend)
		if errors.Is(err, transport.ErrTimeout) {
			continue
		}
		if errors.Is(err, protocol.ErrMalformed) {
			util.LogDebug("ignoring malformed datagram from %s", in.From)
			continue
		}
		if err != nil {
			return netip.AddrPort{}, err
		}

		t := s.Handle(in.From, in.Packet)
		if !t.Accepted {
			util.LogDebug("ignoring %s from %s", in.Packet.Type, in.From)
			continue
		}
		if t.PortCorrected {
			util.LogWarning("peer answered from %s instead of %s, correcting target port", s.Target(), t.OldTarget)
		}
		if !t.Advanced {
			continue
		}

		util.LogDebug("handshake %s -> %s (got %s from %s)", t.From, t.To, in.Packet.Type, in.From)

		if s.Done() {
			// The peer may still be in AwaitingSync if we confirmed before
			// any of our PEER_3 reached it.
			if err := n.tr.Send(protocol.TypePeer3, nil, s.Target()); err != nil {
				return netip.AddrPort{}, err
			}
			util.LogSuccess("handshake confirmed with %s", s.Target())
			return s.Target(), nil
		}

		nextSend = time.Now()
	}
}

// AnswerLate replies PEER_3 to a handshake packet that arrives from the
// peer's host after the local side already confirmed, so a peer still
// waiting in AwaitingSync can finish. It reports whether in was such a packet.
func AnswerLate(tr *transport.Transport, peer netip.AddrPort, in transport.Inbound) (bool, error) {
	if in.Packet == nil || !protocol.IsHandshake(in.Packet.Type) || in.From.Addr() != peer.Addr() {
		return false, nil
	}
	if err := tr.Send(protocol.TypePeer3, nil, in.From); err != nil {
		return true, err
	}
	return true, nil
}
