package transport

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/udpeer/internal/protocol"
)

func listen(t *testing.T) net.PacketConn {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSendReceive(t *testing.T) {
	a := New(listen(t))
	b := New(listen(t))

	require.NoError(t, a.Send(protocol.TypePeer1, nil, b.LocalAddr()))

	in, err := b.Receive(context.Background(), time.Now().Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, a.LocalAddr(), in.From)
	assert.Equal(t, protocol.TypePeer1, in.Packet.Type)
}

func TestReceiveTimeout(t *testing.T) {
	a := New(listen(t))

	_, err := a.Receive(context.Background(), time.Now().Add(20*time.Millisecond))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, IsNoise(err))
}

func TestReceiveMalformed(t *testing.T) {
	a := New(listen(t))
	b := New(listen(t))

	require.NoError(t, a.SendRaw([]byte("garbage"), b.LocalAddr()))

	in, err := b.Receive(context.Background(), time.Now().Add(2*time.Second))
	assert.ErrorIs(t, err, protocol.ErrMalformed)
	assert.True(t, IsNoise(err))
	assert.Nil(t, in.Packet)
	assert.Equal(t, a.LocalAddr(), in.From)
}

func TestReceiveCancelled(t *testing.T) {
	a := New(listen(t))
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := a.Receive(ctx, time.Time{})
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not return after cancellation")
	}
}

func TestReceiveOnClosedSocket(t *testing.T) {
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	a := New(conn)
	conn.Close()

	_, err = a.Receive(context.Background(), time.Now().Add(time.Second))
	require.Error(t, err)
	assert.False(t, IsNoise(err))
	assert.False(t, errors.Is(err, context.Canceled))
}

func TestAddrPortOf(t *testing.T) {
	ua := &net.UDPAddr{IP: net.ParseIP("192.0.2.4"), Port: 9}
	assert.Equal(t, netip.MustParseAddrPort("192.0.2.4:9"), AddrPortOf(ua))
	assert.False(t, AddrPortOf(nil).IsValid())
}
