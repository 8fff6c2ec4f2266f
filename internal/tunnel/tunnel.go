// Package tunnel defines what the overlay tunnel receives once a peer path is
// confirmed, and ships Monitor, a stand-in collaborator that keeps the path
// observable until a real data plane takes over.
package tunnel

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/1ureka/udpeer/internal/transport"
)

// Handoff is everything the tunnel needs from the peering run.
type Handoff struct {
	Peer     netip.AddrPort       // confirmed (possibly port-corrected) peer endpoint
	Role     Role                 // this side's role, complementary to the peer's
	Identity netip.Addr           // this side's address inside the tunnel subnet
	Conn     *transport.Transport // the shared socket; the tunnel owns reads from now on
}

// Collaborator consumes a Handoff. Run blocks until ctx is cancelled or the
// tunnel fails. It must not close Conn.
type Collaborator interface {
	Run(ctx context.Context, h Handoff) error
}

// Role is the deterministic side a peer takes in the tunnel.
type Role int

const (
	RolePrimary Role = iota + 1
	RoleSecondary
)

func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleSecondary:
		return "secondary"
	default:
		return "unknown"
	}
}

// Address returns this role's host address inside subnet: the first usable
// address for the primary, the second for the secondary.
func (r Role) Address(subnet netip.Prefix) (netip.Addr, error) {
	if !subnet.IsValid() || !subnet.Addr().Is4() {
		return netip.Addr{}, fmt.Errorf("tunnel subnet %s must be an IPv4 prefix", subnet)
	}

	addr := subnet.Masked().Addr()
	switch r {
	case RolePrimary:
		addr = addr.Next()
	case RoleSecondary:
		addr = addr.Next().Next()
	default:
		return netip.Addr{}, fmt.Errorf("no address for role %s", r)
	}

	if !subnet.Contains(addr) {
		return netip.Addr{}, fmt.Errorf("tunnel subnet %s has no room for the %s address", subnet, r)
	}
	return addr, nil
}
