package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net/netip"
)

// Encode serializes a packet of type t: Magic, type byte, then payload.
func Encode(t Type, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	copy(buf, Magic[:])
	buf[len(Magic)] = byte(t)
	if len(payload) > 0 {
		copy(buf[HeaderSize:], payload)
	}
	return buf
}

// Decode parses a datagram into a Packet. Every failure is a *PacketError.
func Decode(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, malformed("packet too short: %d bytes (need at least %d)", len(data), HeaderSize)
	}
	if len(data) > MaxPacketSize {
		return nil, malformed("packet too large: %d bytes (limit %d)", len(data), MaxPacketSize)
	}
	if !bytes.Equal(data[:len(Magic)], Magic[:]) {
		return nil, malformed("bad header % x", data[:len(Magic)])
	}

	t := Type(data[len(Magic)])
	if !t.Valid() {
		return nil, malformed("unknown packet type 0x%02x", uint8(t))
	}

	payload := data[HeaderSize:]
	switch t {
	case TypeSendExtIP:
		if len(payload) != EndpointSize {
			return nil, malformed("%s payload is %d bytes (want %d)", t, len(payload), EndpointSize)
		}
	default:
		if len(payload) != 0 {
			return nil, malformed("%s carries unexpected %d-byte payload", t, len(payload))
		}
	}

	pkt := &Packet{Type: t}
	if len(payload) > 0 {
		pkt.Payload = make([]byte, len(payload))
		copy(pkt.Payload, payload)
	}
	return pkt, nil
}

// EncodeEndpoint builds the SEND_EXT_IP payload for ap.
func EncodeEndpoint(ap netip.AddrPort) ([]byte, error) {
	addr := ap.Addr().Unmap()
	if !addr.Is4() {
		return nil, fmt.Errorf("endpoint %s is not IPv4", ap)
	}
	buf := make([]byte, EndpointSize)
	ip := addr.As4()
	copy(buf, ip[:])
	binary.BigEndian.PutUint16(buf[4:], ap.Port())
	return buf, nil
}

// DecodeEndpoint parses a SEND_EXT_IP payload.
func DecodeEndpoint(payload []byte) (netip.AddrPort, error) {
	if len(payload) != EndpointSize {
		return netip.AddrPort{}, malformed("endpoint payload is %d bytes (want %d)", len(payload), EndpointSize)
	}
	addr := netip.AddrFrom4([4]byte(payload[:4]))
	return netip.AddrPortFrom(addr, binary.BigEndian.Uint16(payload[4:])), nil
}
