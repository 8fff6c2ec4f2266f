package signaling

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pterm/pterm"

	"github.com/1ureka/udpeer/internal/util"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Host is the listening side of the exchange. It serves a single
// PIN-protected WebSocket path and hands the first peer that presents the
// PIN to Exchange. Later peers are turned away.
type Host struct {
	pin   string
	port  int
	srv   *http.Server
	peers chan *websocket.Conn

	closeOnce sync.Once
}

// Listen starts the signaling server on addr (":0" picks a random port). An
// empty pin generates one.
func Listen(addr, pin string) (*Host, error) {
	if pin == "" {
		var err error
		if pin, err = newPIN(pinLength); err != nil {
			return nil, err
		}
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start signaling server: %w", err)
	}

	h := &Host{
		pin:   pin,
		port:  listener.Addr().(*net.TCPAddr).Port,
		peers: make(chan *websocket.Conn, 1),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleJoin)
	h.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := h.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogError("signaling server stopped: %v", err)
		}
	}()
	return h, nil
}

// Port returns the TCP port the server is bound to.
func (h *Host) Port() int { return h.port }

// PIN returns the PIN a joining peer must present.
func (h *Host) PIN() string { return h.pin }

// Close stops accepting peers. A peer that already joined keeps its
// connection.
func (h *Host) Close() {
	h.closeOnce.Do(func() { h.srv.Close() })
}

// Exchange prints the connection details, waits for the peer to join, and
// trades endpoints with it. The server stops accepting as soon as the peer
// has joined.
func (h *Host) Exchange(ctx context.Context, local netip.AddrPort) (netip.AddrPort, error) {
	defer h.Close()

	pterm.DefaultBox.WithTitle("WebSocket Signaling Server").Println(
		fmt.Sprintf("Port : %d\nPIN  : %s\n\nForward this port and share ws://<host>:%d/ws?pin=%s",
			h.port, h.pin, h.port, h.pin))
	util.LogInfo("waiting for the peer to join...")

	conn, err := h.awaitPeer(ctx)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("failed to wait for peer: %w", err)
	}
	defer conn.Close()
	h.Close()
	util.LogInfo("peer joined the signaling server")

	remote, err := exchange(ctx, conn, local)
	if err != nil {
		return netip.AddrPort{}, err
	}
	util.LogSuccess("received peer endpoint %s", remote)
	return remote, nil
}

func (h *Host) handleJoin(w http.ResponseWriter, r *http.Request) {
	pin := r.URL.Query().Get("pin")
	if subtle.ConstantTimeCompare([]byte(pin), []byte(h.pin)) != 1 {
		util.LogWarning("rejected join from %s: invalid PIN", r.RemoteAddr)
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	select {
	case h.peers <- conn:
	default:
		util.LogWarning("rejected join from %s: a peer already joined", r.RemoteAddr)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "already connected"))
		conn.Close()
	}
}

// awaitPeer blocks until a peer joins or ctx is cancelled.
func (h *Host) awaitPeer(ctx context.Context) (*websocket.Conn, error) {
	select {
	case conn := <-h.peers:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// newPIN returns a random numeric PIN of the given length.
func newPIN(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to generate PIN: %w", err)
		}
		digits[i] = byte('0') + byte(n.Int64())
	}
	return string(digits), nil
}
