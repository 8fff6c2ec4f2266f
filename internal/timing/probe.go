// Package timing estimates how long the peer path keeps answering, to size
// retry intervals.
package timing

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"github.com/1ureka/udpeer/internal/protocol"
	"github.com/1ureka/udpeer/internal/transport"
	"github.com/1ureka/udpeer/internal/util"
)

// DefaultStep is the initial timeout and the increment between rounds.
const DefaultStep = time.Second

// Probe measures a responsiveness threshold against a peer on the shared socket.
type Probe struct {
	Transport *transport.Transport
	Step      time.Duration
}

// EstimateThreshold sends TIMING rounds with a timeout that grows by Step
// after every answered round. Any datagram from exactly peer counts as an
// answer. The first silent round ends the probe; the result is the last
// timeout that was answered, 0 when none was, and never more than limit.
func (p *Probe) EstimateThreshold(ctx context.Context, peer netip.AddrPort, limit time.Duration) (time.Duration, error) {
	step := p.Step
	if step <= 0 {
		step = DefaultStep
	}

	buf := make([]byte, protocol.MaxPacketSize)
	var last time.Duration

	for timeout := step; timeout <= limit; timeout += step {
		if err := p.Transport.Send(protocol.TypeTiming, nil, peer); err != nil {
			return last, err
		}

		answered, err := p.await(ctx, peer, time.Now().Add(timeout), buf)
		if err != nil {
			return last, err
		}
		if !answered {
			util.LogDebug("timing: no answer within %s", timeout)
			break
		}
		util.LogDebug("timing: answered within %s", timeout)
		last = timeout
	}
	return last, nil
}

// await reads until a datagram from peer arrives or deadline passes.
func (p *Probe) await(ctx context.Context, peer netip.AddrPort, deadline time.Time, buf []byte) (bool, error) {
	for {
		_, from, err := p.Transport.ReceiveRaw(ctx, deadline, buf)
		if errors.Is(err, transport.ErrTimeout) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if from == peer {
			return true, nil
		}
		util.LogDebug("timing: ignoring datagram from %s", from)
	}
}
