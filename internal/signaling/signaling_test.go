package signaling

import (
	"context"
	"fmt"
	"net/netip"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	hostEndpoint = netip.MustParseAddrPort("198.51.100.10:48484")
	joinEndpoint = netip.MustParseAddrPort("203.0.113.20:51000")
)

func listenLocal(t *testing.T, pin string) *Host {
	t.Helper()
	h, err := Listen("127.0.0.1:0", pin)
	require.NoError(t, err)
	t.Cleanup(h.Close)
	return h
}

func joinURL(h *Host, pin string) string {
	return fmt.Sprintf("ws://127.0.0.1:%d/ws?pin=%s", h.Port(), pin)
}

type result struct {
	ep  netip.AddrPort
	err error
}

func TestExchangeEndpoints(t *testing.T) {
	h := listenLocal(t, "")
	require.Len(t, h.PIN(), pinLength)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hostCh := make(chan result, 1)
	go func() {
		ep, err := h.Exchange(ctx, hostEndpoint)
		hostCh <- result{ep, err}
	}()

	j := &Join{URL: joinURL(h, h.PIN())}
	got, err := j.Exchange(ctx, joinEndpoint)
	require.NoError(t, err)
	assert.Equal(t, hostEndpoint, got)

	hr := <-hostCh
	require.NoError(t, hr.err)
	assert.Equal(t, joinEndpoint, hr.ep)
}

func TestJoinWrongPIN(t *testing.T) {
	h := listenLocal(t, "1234")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	j := &Join{URL: joinURL(h, "0000")}
	_, err := j.Exchange(ctx, joinEndpoint)
	assert.ErrorIs(t, err, websocket.ErrBadHandshake)
}

func TestHostCancelledWhileWaiting(t *testing.T) {
	h := listenLocal(t, "1234")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := h.Exchange(ctx, hostEndpoint)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHostAcceptsOnlyOneClient(t *testing.T) {
	h := listenLocal(t, "1234")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	first, err := (&Join{URL: joinURL(h, "1234")}).dial(ctx)
	require.NoError(t, err)
	defer first.Close()

	second, err := (&Join{URL: joinURL(h, "1234")}).dial(ctx)
	require.NoError(t, err)
	defer second.Close()

	_, _, err = second.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestReceiverRejectsBadEndpoint(t *testing.T) {
	h := listenLocal(t, "1234")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hostCh := make(chan result, 1)
	go func() {
		ep, err := h.Exchange(ctx, hostEndpoint)
		hostCh <- result{ep, err}
	}()

	conn, err := (&Join{URL: joinURL(h, "1234")}).dial(ctx)
	require.NoError(t, err)
	defer conn.Close()

	// An unknown message is skipped, then an IPv6 endpoint is refused.
	require.NoError(t, conn.WriteJSON(message{Type: "hello"}))
	require.NoError(t, conn.WriteJSON(message{Type: msgTypeEndpoint, Endpoint: "[2001:db8::1]:5000"}))

	hr := <-hostCh
	assert.ErrorIs(t, hr.err, errBadEndpoint)

	// The host announced itself first, then explained the refusal.
	var msg message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, msgTypeEndpoint, msg.Type)
	assert.Equal(t, hostEndpoint.String(), msg.Endpoint)

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, msgTypeError, msg.Type)
}

func TestJoinSeesRejection(t *testing.T) {
	h := listenLocal(t, "1234")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		conn, err := h.awaitPeer(ctx)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(message{Type: msgTypeError, Reason: "busy"})
		conn.ReadMessage()
	}()

	j := &Join{URL: joinURL(h, "1234")}
	_, err := j.Exchange(ctx, joinEndpoint)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestHostStopsAcceptingAfterJoin(t *testing.T) {
	h := listenLocal(t, "1234")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hostCh := make(chan result, 1)
	go func() {
		ep, err := h.Exchange(ctx, hostEndpoint)
		hostCh <- result{ep, err}
	}()

	first, err := (&Join{URL: joinURL(h, "1234")}).dial(ctx)
	require.NoError(t, err)
	defer first.Close()

	// Reading the host's endpoint means Exchange is past the join.
	var msg message
	require.NoError(t, first.ReadJSON(&msg))
	assert.Equal(t, hostEndpoint.String(), msg.Endpoint)

	_, err = (&Join{URL: joinURL(h, "1234")}).dial(ctx)
	assert.Error(t, err, "a closed host must refuse new peers")

	require.NoError(t, first.WriteJSON(message{Type: msgTypeEndpoint, Endpoint: joinEndpoint.String()}))
	hr := <-hostCh
	require.NoError(t, hr.err)
	assert.Equal(t, joinEndpoint, hr.ep)
}

func TestNewPIN(t *testing.T) {
	tests := []struct {
		name   string
		length int
	}{
		{"single digit", 1},
		{"default", pinLength},
		{"long", 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pin, err := newPIN(tt.length)
			require.NoError(t, err)
			assert.Len(t, pin, tt.length)
			for _, c := range pin {
				assert.True(t, c >= '0' && c <= '9', "pin %q", pin)
			}
		})
	}
}
