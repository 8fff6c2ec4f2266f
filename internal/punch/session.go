// Package punch establishes two-way UDP reachability with a peer through NATs.
//
// Both peers run the same three-phase handshake without coordination. Each
// side repeatedly broadcasts the packet of its current phase and escalates
// only after receiving evidence of the other side's phase:
//
//	AwaitingFirst         sends PEER_1, advances on PEER_1/2/3
//	AwaitingBidirectional sends PEER_2, advances on PEER_2/3
//	AwaitingSync          sends PEER_3, advances on PEER_3
//	Confirmed             terminal
//
// Session holds the state machine and does no I/O; Negotiator drives it over
// a socket.
package punch

import (
	"net/netip"

	"github.com/1ureka/udpeer/internal/protocol"
)

// State is the handshake phase of a Session. It only moves forward.
type State int

const (
	AwaitingFirst State = iota
	AwaitingBidirectional
	AwaitingSync
	Confirmed
)

func (s State) String() string {
	switch s {
	case AwaitingFirst:
		return "AwaitingFirst"
	case AwaitingBidirectional:
		return "AwaitingBidirectional"
	case AwaitingSync:
		return "AwaitingSync"
	case Confirmed:
		return "Confirmed"
	default:
		return "State(?)"
	}
}

// outgoing maps each state to the packet type broadcast while in it.
var outgoing = [...]protocol.Type{
	AwaitingFirst:         protocol.TypePeer1,
	AwaitingBidirectional: protocol.TypePeer2,
	AwaitingSync:          protocol.TypePeer3,
	Confirmed:             protocol.TypePeer3,
}

// Transition reports what a single inbound packet did to a Session.
type Transition struct {
	Accepted bool // the packet came from the target host and was a handshake packet
	Advanced bool // the state moved one step forward
	From     State
	To       State

	PortCorrected bool
	OldTarget     netip.AddrPort // valid when PortCorrected
}

// Session is one negotiation attempt against a target endpoint. The target's
// host is fixed at creation; only its port may be corrected.
type Session struct {
	state  State
	target netip.AddrPort
}

// NewSession starts a negotiation in AwaitingFirst towards target.
func NewSession(target netip.AddrPort) *Session {
	return &Session{
		state:  AwaitingFirst,
		target: netip.AddrPortFrom(target.Addr().Unmap(), target.Port()),
	}
}

// State returns the current phase.
func (s *Session) State() State { return s.state }

// Target returns the (possibly port-corrected) peer endpoint.
func (s *Session) Target() netip.AddrPort { return s.target }

// Outgoing returns the packet type to broadcast in the current phase.
func (s *Session) Outgoing() protocol.Type { return outgoing[s.state] }

// Done reports whether the handshake is confirmed.
func (s *Session) Done() bool { return s.state == Confirmed }

// Handle feeds one decoded packet received from `from` into the machine.
// Packets from another host, and non-handshake packets, are ignored. A
// handshake packet from the target host on a new port corrects the target.
// At most one state step is taken per packet.
func (s *Session) Handle(from netip.AddrPort, pkt *protocol.Packet) Transition {
	tr := Transition{From: s.state, To: s.state}
	if pkt == nil || !protocol.IsHandshake(pkt.Type) {
		return tr
	}

	from = netip.AddrPortFrom(from.Addr().Unmap(), from.Port())
	if from.Addr() != s.target.Addr() {
		return tr
	}
	tr.Accepted = true

	if s.state == Confirmed {
		return tr
	}

	if from.Port() != s.target.Port() {
		tr.PortCorrected = true
		tr.OldTarget = s.target
		s.target = from
	}

	if advances(s.state, pkt.Type) {
		s.state++
		tr.Advanced = true
		tr.To = s.state
	}
	return tr
}

// advances reports whether receiving t moves state one step forward.
func advances(state State, t protocol.Type) bool {
	switch state {
	case AwaitingFirst:
		return true
	case AwaitingBidirectional:
		return t == protocol.TypePeer2 || t == protocol.TypePeer3
	case AwaitingSync:
		return t == protocol.TypePeer3
	default:
		return false
	}
}
