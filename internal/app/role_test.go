package app

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/1ureka/udpeer/internal/tunnel"
)

func TestRoleFor(t *testing.T) {
	testCases := []struct {
		name        string
		local, peer string
		want        tunnel.Role
	}{
		{"lower address", "10.0.0.1:9000", "10.0.0.2:1", tunnel.RolePrimary},
		{"higher address", "10.0.0.2:1", "10.0.0.1:9000", tunnel.RoleSecondary},
		{"same address lower port", "203.0.113.5:1000", "203.0.113.5:2000", tunnel.RolePrimary},
		{"same address higher port", "203.0.113.5:2000", "203.0.113.5:1000", tunnel.RoleSecondary},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			local := netip.MustParseAddrPort(tc.local)
			peer := netip.MustParseAddrPort(tc.peer)

			got, err := RoleFor(local, peer)
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)

			other, err := RoleFor(peer, local)
			assert.NoError(t, err)
			assert.NotEqual(t, got, other, "roles must be complementary")
		})
	}

	ep := netip.MustParseAddrPort("198.51.100.1:48484")
	_, err := RoleFor(ep, ep)
	assert.ErrorIs(t, err, ErrSelfPeer)
}
