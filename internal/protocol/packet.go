// Package protocol defines the wire format shared by bootstrap servers and peers.
package protocol

import "fmt"

// Type identifies the kind of a packet. The set is closed: Decode rejects
// any type byte not listed here.
type Type uint8

// Packet type constants.
const (
	TypeGetExtIP  Type = 0x01 // ask a bootstrap server for our mapped endpoint
	TypeSendExtIP Type = 0x02 // bootstrap reply carrying the mapped endpoint
	TypeTiming    Type = 0x03 // responsiveness probe, any reply counts
	TypeKeepalive Type = 0x04 // NAT binding refresh, no reply expected
	TypePeer1     Type = 0x05 // handshake phase 1
	TypePeer2     Type = 0x06 // handshake phase 2
	TypePeer3     Type = 0x07 // handshake phase 3
)

// Magic is the fixed header every packet starts with.
var Magic = [4]byte{'U', 'D', 'P', 'R'}

// HeaderSize is Magic(4) + Type(1).
const HeaderSize = len(Magic) + 1

// MaxPacketSize bounds both encoded packets and receive buffers.
const MaxPacketSize = 4096

// EndpointSize is the SEND_EXT_IP payload size: IPv4(4) + Port(2).
const EndpointSize = 6

var typeNames = map[Type]string{
	TypeGetExtIP:  "GET_EXT_IP",
	TypeSendExtIP: "SEND_EXT_IP",
	TypeTiming:    "TIMING",
	TypeKeepalive: "KEEPALIVE",
	TypePeer1:     "PEER_1",
	TypePeer2:     "PEER_2",
	TypePeer3:     "PEER_3",
}

// Valid reports whether t is one of the known packet types.
func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(0x%02x)", uint8(t))
}

// IsHandshake reports whether t is one of PEER_1, PEER_2 or PEER_3.
func IsHandshake(t Type) bool {
	return t == TypePeer1 || t == TypePeer2 || t == TypePeer3
}

// Packet is a decoded protocol message.
type Packet struct {
	Type    Type
	Payload []byte // only SEND_EXT_IP carries one
}
