package app

import (
	"errors"
	"net/netip"

	"github.com/1ureka/udpeer/internal/tunnel"
)

// ErrSelfPeer is returned when the remote endpoint equals our own.
var ErrSelfPeer = errors.New("remote endpoint is our own endpoint")

// RoleFor derives this side's tunnel role from the two external endpoints.
// The lower endpoint in netip.AddrPort order is primary, so both peers pick
// complementary roles without further coordination.
func RoleFor(local, remote netip.AddrPort) (tunnel.Role, error) {
	switch local.Compare(remote) {
	case -1:
		return tunnel.RolePrimary, nil
	case 1:
		return tunnel.RoleSecondary, nil
	default:
		return 0, ErrSelfPeer
	}
}
