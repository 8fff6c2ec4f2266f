// Package app sequences one peering run: endpoint discovery, endpoint
// exchange, punch-through, and handoff to the tunnel.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/benbjohnson/clock"
	"github.com/pterm/pterm"
	"golang.org/x/sync/errgroup"

	"github.com/1ureka/udpeer/internal/config"
	"github.com/1ureka/udpeer/internal/keepalive"
	"github.com/1ureka/udpeer/internal/punch"
	"github.com/1ureka/udpeer/internal/rendezvous"
	"github.com/1ureka/udpeer/internal/timing"
	"github.com/1ureka/udpeer/internal/transport"
	"github.com/1ureka/udpeer/internal/tunnel"
	"github.com/1ureka/udpeer/internal/util"
)

// Exchanger delivers our external endpoint to the remote operator and
// returns the endpoint they claim.
type Exchanger interface {
	Exchange(ctx context.Context, local netip.AddrPort) (netip.AddrPort, error)
}

// Peering wires the components of one run together. Conn is lent, not owned.
type Peering struct {
	Config    *config.Config
	Conn      *transport.Transport
	External  rendezvous.ExternalResolver
	Exchanger Exchanger
	Tunnel    tunnel.Collaborator

	Clock       clock.Clock // nil means the wall clock
	RouteTarget string      // overrides the internal-endpoint route probe
}

// Run executes the full sequence and blocks in the tunnel phase until ctx is
// cancelled or the keepalive or tunnel fails.
func (p *Peering) Run(ctx context.Context) error {
	cfg := p.Config
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}

	// ── 1. Discover our endpoints ──────────────────────────────────────
	internal, err := p.resolveInternal()
	if err != nil {
		return err
	}
	util.LogDebug("internal endpoint %s", internal)

	util.LogInfo("asking rendezvous servers for our external endpoint...")
	external, err := p.External.ResolveExternal(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve external endpoint: %w", err)
	}

	printEndpoints(internal, external)

	// ── 2. Swap endpoints with the remote operator ─────────────────────
	claimed, err := p.Exchanger.Exchange(ctx, external)
	if err != nil {
		return fmt.Errorf("endpoint exchange failed: %w", err)
	}
	role, err := RoleFor(external, claimed)
	if err != nil {
		return err
	}
	identity, err := role.Address(cfg.TunnelSubnet)
	if err != nil {
		return err
	}

	// ── 3. Punch through ───────────────────────────────────────────────
	peer, err := punch.NewNegotiator(p.Conn, cfg.ResendInterval).Negotiate(ctx, claimed)
	if err != nil {
		return fmt.Errorf("punch-through failed: %w", err)
	}

	// ── 4. Optional responsiveness probe ───────────────────────────────
	if cfg.ProbeMax > 0 {
		probe := &timing.Probe{Transport: p.Conn, Step: cfg.ProbeStep}
		threshold, err := probe.EstimateThreshold(ctx, peer, cfg.ProbeMax)
		if err != nil {
			return fmt.Errorf("timing probe failed: %w", err)
		}
		if threshold == 0 {
			util.LogWarning("timing probe: peer did not answer within %s", cfg.ProbeStep)
		} else {
			util.LogInfo("timing probe: peer answers within %s", threshold)
		}
	}

	// ── 5. Keepalive + tunnel until shutdown ───────────────────────────
	handoff := tunnel.Handoff{Peer: peer, Role: role, Identity: identity, Conn: p.Conn}
	util.LogSuccess("handing off to tunnel as %s (%s)", role, identity)

	g, gctx := errgroup.WithContext(ctx)
	gctx, cancel := context.WithCancel(gctx)
	defer cancel()

	util.StartStatsReporter(gctx, clk)

	g.Go(func() error {
		ka := &keepalive.Loop{Transport: p.Conn, Peer: peer, Interval: cfg.KeepaliveInterval, Clock: clk}
		return ka.Run(gctx)
	})
	g.Go(func() error {
		// A tunnel that finishes also ends the keepalive.
		defer cancel()
		return p.Tunnel.Run(gctx, handoff)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (p *Peering) resolveInternal() (netip.AddrPort, error) {
	if p.RouteTarget != "" {
		return rendezvous.ResolveInternalVia(p.RouteTarget, p.Config.Port)
	}
	return rendezvous.ResolveInternal(p.Config.Port)
}

// printEndpoints shows both endpoints for the operator to share.
func printEndpoints(internal, external netip.AddrPort) {
	body := fmt.Sprintf("Internal : %s\nExternal : %s", internal, external)
	if internal == external {
		body += "\n\nNo NAT detected: this host is directly reachable."
	}
	pterm.DefaultBox.WithTitle("Your endpoints").Println(body)
	pterm.Println()
}
