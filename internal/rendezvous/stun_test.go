package rendezvous

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/pion/stun/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/udpeer/internal/transport"
)

// startSTUNServer answers binding requests with the sender's address in
// XOR-MAPPED-ADDRESS. The first request of every transaction is dropped when
// dropFirst is set, to exercise the retry path.
func startSTUNServer(t *testing.T, dropFirst bool) netip.AddrPort {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 1500)
		dropped := false
		for {
			n, from, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			req := new(stun.Message)
			req.Raw = append(req.Raw[:0], buf[:n]...)
			if err := req.Decode(); err != nil || req.Type != stun.BindingRequest {
				continue
			}
			if dropFirst && !dropped {
				dropped = true
				continue
			}

			ua := from.(*net.UDPAddr)
			res, err := stun.Build(
				stun.NewTransactionIDSetter(req.TransactionID),
				stun.BindingSuccess,
				&stun.XORMappedAddress{IP: ua.IP, Port: ua.Port},
				stun.Fingerprint,
			)
			if err != nil {
				continue
			}
			conn.WriteTo(res.Raw, from)
		}
	}()

	return transport.AddrPortOf(conn.LocalAddr())
}

func TestSTUNResolveExternal(t *testing.T) {
	for _, dropFirst := range []bool{false, true} {
		server := startSTUNServer(t, dropFirst)
		client := newClient(t)

		r := NewSTUNResolver(client, server, testTimeout)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		ext, err := r.ResolveExternal(ctx)
		cancel()

		require.NoError(t, err, "dropFirst=%v", dropFirst)
		assert.Equal(t, client.LocalAddr(), ext)
	}
}

func TestSTUNResolverIgnoresOtherSenders(t *testing.T) {
	client := newClient(t)

	// The configured server never answers.
	silent, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer silent.Close()

	r := NewSTUNResolver(client, transport.AddrPortOf(silent.LocalAddr()), testTimeout)
	ctx, cancel := context.WithTimeout(context.Background(), 4*testTimeout)
	defer cancel()

	// An unsolicited binding success from some other address.
	other, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer other.Close()
	res, err := stun.Build(stun.TransactionID, stun.BindingSuccess,
		&stun.XORMappedAddress{IP: net.IPv4(203, 0, 113, 1), Port: 1})
	require.NoError(t, err)
	_, err = other.WriteTo(res.Raw, net.UDPAddrFromAddrPort(client.LocalAddr()))
	require.NoError(t, err)

	_, err = r.ResolveExternal(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
