// Command udpeer is the CLI entry point.
//
// This tool discovers the host's public UDP endpoint through rendezvous
// servers, swaps it with a remote operator, punches a direct UDP path through
// both NATs and hands the socket to the tunnel once the path is confirmed.
//
// The endpoint exchange is manual (copy/paste) by default, or runs over a
// short-lived WebSocket with -exchange host / -exchange join.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/1ureka/udpeer/internal/app"
	"github.com/1ureka/udpeer/internal/config"
	"github.com/1ureka/udpeer/internal/rendezvous"
	"github.com/1ureka/udpeer/internal/signaling"
	"github.com/1ureka/udpeer/internal/transport"
	"github.com/1ureka/udpeer/internal/tunnel"
	"github.com/1ureka/udpeer/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := config.Default()

	// CLI flags.
	flag.IntVar(&cfg.Port, "p", cfg.Port, "Local UDP port (shorthand)")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "Local UDP port, 1~65535")
	bootstrapFlag := flag.String("bootstrap", strings.Join(cfg.Bootstrap, ","), "Comma-separated rendezvous servers (host:port)")
	flag.StringVar(&cfg.STUN, "stun", "", "Use this STUN server (host:port, e.g. stun.l.google.com:19302) instead of the rendezvous servers")
	exchangeFlag := flag.String("exchange", string(cfg.Exchange), "Endpoint exchange: manual, host or join")
	flag.StringVar(&cfg.SignalAddr, "signal-addr", cfg.SignalAddr, "WebSocket listen address (host exchange)")
	signalURLFlag := flag.String("signal-url", "", "WebSocket URL of the remote host, including ?pin= (join exchange)")
	probeFlag := flag.Int("probe", 0, "Run the timing probe up to this many seconds after punch-through (0 = off)")
	keepaliveFlag := flag.Int("keepalive", int(cfg.KeepaliveInterval/time.Second), "Keepalive interval in seconds")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	unprivileged := flag.Bool("unprivileged", false, "Do not re-exec under sudo")
	flag.Parse()

	if cfg.Debug {
		util.EnableDebug()
	}

	if !*unprivileged {
		if err := elevate(); err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
	}

	cfg.Bootstrap = splitList(*bootstrapFlag)
	cfg.Exchange = config.ExchangeMode(*exchangeFlag)
	cfg.ProbeMax = time.Duration(*probeFlag) * time.Second
	cfg.KeepaliveInterval = time.Duration(*keepaliveFlag) * time.Second
	if *signalURLFlag != "" {
		signalURL, err := normalizeSignalURL(*signalURLFlag)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		cfg.SignalURL = signalURL
	}

	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	pterm.Info.Println(fmt.Sprintf("udpeer v%s", version))
	pterm.Println()

	if err := run(ctx, cfg); err != nil {
		if ctx.Err() != nil {
			util.LogInfo("interrupted")
			return
		}
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("peering closed")
}

// run opens the shared socket and drives one peering run on it.
func run(ctx context.Context, cfg *config.Config) error {
	conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to bind UDP port %d: %w", cfg.Port, err)
	}
	defer conn.Close()
	tr := transport.New(conn)

	external, err := newResolver(ctx, cfg, tr)
	if err != nil {
		return err
	}

	exchanger, err := newExchanger(cfg)
	if err != nil {
		return err
	}

	p := &app.Peering{
		Config:    cfg,
		Conn:      tr,
		External:  external,
		Exchanger: exchanger,
		Tunnel:    &tunnel.Monitor{KeepaliveInterval: cfg.KeepaliveInterval},
	}
	return p.Run(ctx)
}

// newResolver picks STUN when configured, otherwise the rendezvous servers.
func newResolver(ctx context.Context, cfg *config.Config, tr *transport.Transport) (rendezvous.ExternalResolver, error) {
	if cfg.STUN != "" {
		servers, err := config.ResolveEndpoint(ctx, cfg.STUN)
		if err != nil {
			return nil, err
		}
		util.LogDebug("using STUN server %s", servers[0])
		return rendezvous.NewSTUNResolver(tr, servers[0], cfg.ResolveTimeout), nil
	}

	servers, err := cfg.ResolveBootstrap(ctx)
	if err != nil {
		return nil, err
	}
	util.LogDebug("rendezvous servers: %v", servers)
	return rendezvous.NewResolver(tr, servers, cfg.ResolveTimeout), nil
}

func newExchanger(cfg *config.Config) (app.Exchanger, error) {
	switch cfg.Exchange {
	case config.ExchangeHost:
		host, err := signaling.Listen(cfg.SignalAddr, "")
		if err != nil {
			return nil, err
		}
		return host, nil
	case config.ExchangeJoin:
		return &signaling.Join{URL: cfg.SignalURL}, nil
	default:
		return manualExchanger{}, nil
	}
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// splitList splits a comma-separated flag value, dropping empty items.
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// normalizeSignalURL validates a WebSocket URL, defaulting the scheme to wss
// and the path to /ws. The pin query parameter is kept.
func normalizeSignalURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", raw)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	default:
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	if u.Query().Get("pin") == "" {
		return "", fmt.Errorf("WebSocket URL %s has no pin parameter", raw)
	}
	return u.String(), nil
}
