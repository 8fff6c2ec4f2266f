package tunnel

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/1ureka/udpeer/internal/keepalive"
	"github.com/1ureka/udpeer/internal/protocol"
	"github.com/1ureka/udpeer/internal/punch"
	"github.com/1ureka/udpeer/internal/transport"
	"github.com/1ureka/udpeer/internal/util"
)

// silenceFactor is how many keepalive intervals the peer may stay quiet
// before a warning is logged.
const silenceFactor = 3

// pollInterval bounds each socket read.
const pollInterval = time.Second

// Monitor owns the receive side of the socket after handoff. It answers the
// peer's TIMING probes and late handshake packets, and warns when the peer
// goes silent.
type Monitor struct {
	KeepaliveInterval time.Duration
	Clock             clock.Clock // nil means the wall clock

	lastHeard atomic.Int64 // unix nanos, monitor clock
	silent    atomic.Bool
}

// PeerSilent reports whether the peer is currently considered silent.
func (m *Monitor) PeerSilent() bool { return m.silent.Load() }

// Run implements Collaborator.
func (m *Monitor) Run(ctx context.Context, h Handoff) error {
	clk := m.Clock
	if clk == nil {
		clk = clock.New()
	}
	interval := m.KeepaliveInterval
	if interval <= 0 {
		interval = keepalive.DefaultInterval
	}

	m.lastHeard.Store(clk.Now().UnixNano())
	m.silent.Store(false)

	util.LogSuccess("tunnel ready: %s as %s (peer %s)", h.Identity, h.Role, h.Peer)

	go m.watchSilence(ctx, clk, interval, h)

	for {
		in, err := h.Conn.Receive(ctx, time.Now().Add(pollInterval))
		if transport.IsNoise(err) {
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		if err != nil {
			return err
		}

		if in.From.Addr() != h.Peer.Addr() {
			util.LogDebug("monitor: ignoring %s from %s", in.Packet.Type, in.From)
			continue
		}

		m.heard(clk)

		if answered, err := punch.AnswerLate(h.Conn, h.Peer, in); answered {
			if err != nil {
				return err
			}
			util.LogDebug("monitor: answered late %s from %s", in.Packet.Type, in.From)
			continue
		}

		// TIMING is answered with KEEPALIVE, which nobody answers, so two
		// monitors never echo each other.
		if in.Packet.Type == protocol.TypeTiming && in.From == h.Peer {
			if err := h.Conn.Send(protocol.TypeKeepalive, nil, h.Peer); err != nil {
				return err
			}
		}
	}
}

func (m *Monitor) heard(clk clock.Clock) {
	m.lastHeard.Store(clk.Now().UnixNano())
	if m.silent.CompareAndSwap(true, false) {
		util.LogInfo("peer is reachable again")
	}
}

// watchSilence checks the last-heard time once per keepalive interval.
func (m *Monitor) watchSilence(ctx context.Context, clk clock.Clock, interval time.Duration, h Handoff) {
	ticker := clk.Ticker(interval)
	defer ticker.Stop()

	limit := silenceFactor * interval
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			quiet := clk.Since(time.Unix(0, m.lastHeard.Load()))
			if quiet > limit && m.silent.CompareAndSwap(false, true) {
				util.LogWarning("no traffic from %s for %s, the NAT mapping may have expired",
					h.Peer, quiet.Truncate(time.Second))
			}
		}
	}
}
