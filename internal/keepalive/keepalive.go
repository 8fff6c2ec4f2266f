// Package keepalive keeps the NAT mapping towards a confirmed peer open.
package keepalive

import (
	"context"
	"net/netip"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/1ureka/udpeer/internal/protocol"
	"github.com/1ureka/udpeer/internal/transport"
	"github.com/1ureka/udpeer/internal/util"
)

// DefaultInterval is the keepalive period.
const DefaultInterval = 5 * time.Second

// Loop sends KEEPALIVE to Peer once per Interval.
type Loop struct {
	Transport *transport.Transport
	Peer      netip.AddrPort
	Interval  time.Duration
	Clock     clock.Clock // nil means the wall clock
}

// Run sends the first keepalive after one interval and continues until ctx
// is cancelled, returning nil. A send failure is logged and returned.
func (l *Loop) Run(ctx context.Context) error {
	clk := l.Clock
	if clk == nil {
		clk = clock.New()
	}
	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := clk.Ticker(interval)
	defer ticker.Stop()

	util.LogDebug("keepalive to %s every %s", l.Peer, interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := l.Transport.Send(protocol.TypeKeepalive, nil, l.Peer); err != nil {
				util.LogError("keepalive to %s failed: %v", l.Peer, err)
				return err
			}
			util.Stats.AddKeepalive()
		}
	}
}
