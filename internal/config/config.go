// Package config holds the runtime configuration of a peering run.
package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"
)

// ExchangeMode selects how the two operators swap external endpoints.
type ExchangeMode string

const (
	ExchangeManual ExchangeMode = "manual" // print, then prompt for the remote endpoint
	ExchangeHost   ExchangeMode = "host"   // run the WebSocket signaling server
	ExchangeJoin   ExchangeMode = "join"   // dial the remote's signaling server
)

// Defaults.
const (
	DefaultPort              = 48484
	DefaultResolveTimeout    = 500 * time.Millisecond
	DefaultResendInterval    = time.Second
	DefaultKeepaliveInterval = 5 * time.Second
	DefaultProbeStep         = time.Second
)

// DefaultBootstrap is the built-in rendezvous server list, in probing order.
var DefaultBootstrap = []string{
	"rv1.udpeer.net:7600",
	"rv2.udpeer.net:7600",
	"rv3.udpeer.net:7600",
}

// DefaultTunnelSubnet holds the two tunnel-internal identities (.1 and .2).
var DefaultTunnelSubnet = netip.MustParsePrefix("10.77.0.0/30")

// Config stores every parameter of a run, gathered from CLI flags.
type Config struct {
	Port      int      // local UDP bind port
	Bootstrap []string // host:port rendezvous servers, probed cyclically
	STUN      string   // optional host:port STUN server used instead of Bootstrap

	ResolveTimeout    time.Duration // per-attempt wait during external resolution
	ResendInterval    time.Duration // handshake packet cadence
	KeepaliveInterval time.Duration
	ProbeStep         time.Duration
	ProbeMax          time.Duration // 0 disables the timing probe

	Exchange   ExchangeMode
	SignalAddr string // host mode: WebSocket listen address
	SignalURL  string // join mode: WebSocket URL of the remote host

	TunnelSubnet netip.Prefix
	Debug        bool
}

// Default returns a configuration with the built-in values.
func Default() *Config {
	return &Config{
		Port:              DefaultPort,
		Bootstrap:         append([]string(nil), DefaultBootstrap...),
		ResolveTimeout:    DefaultResolveTimeout,
		ResendInterval:    DefaultResendInterval,
		KeepaliveInterval: DefaultKeepaliveInterval,
		ProbeStep:         DefaultProbeStep,
		Exchange:          ExchangeManual,
		SignalAddr:        ":0",
		TunnelSubnet:      DefaultTunnelSubnet,
	}
}

// Validate checks ranges and mode-specific requirements.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 1~65535", c.Port)
	}
	if c.STUN == "" && len(c.Bootstrap) == 0 {
		return errors.New("no bootstrap servers configured")
	}
	if c.ResolveTimeout <= 0 || c.ResendInterval <= 0 || c.KeepaliveInterval <= 0 || c.ProbeStep <= 0 {
		return errors.New("timeouts and intervals must be positive")
	}
	if c.ProbeMax < 0 {
		return errors.New("probe maximum must not be negative")
	}
	switch c.Exchange {
	case ExchangeManual:
	case ExchangeHost:
		if c.SignalAddr == "" {
			return errors.New("host exchange needs a signaling listen address")
		}
	case ExchangeJoin:
		if c.SignalURL == "" {
			return errors.New("join exchange needs a signaling URL")
		}
	default:
		return fmt.Errorf("invalid exchange mode %q: must be manual, host or join", c.Exchange)
	}
	if !c.TunnelSubnet.Addr().Is4() || c.TunnelSubnet.Bits() > 30 {
		return fmt.Errorf("tunnel subnet %s must be IPv4 with room for two hosts", c.TunnelSubnet)
	}
	return nil
}

// ResolveBootstrap turns the configured host:port list into IPv4 endpoints.
// Names are looked up once; every IPv4 address of a name becomes a trusted server.
func (c *Config) ResolveBootstrap(ctx context.Context) ([]netip.AddrPort, error) {
	var servers []netip.AddrPort
	for _, hp := range c.Bootstrap {
		resolved, err := ResolveEndpoint(ctx, hp)
		if err != nil {
			return nil, fmt.Errorf("bootstrap server %q: %w", hp, err)
		}
		servers = append(servers, resolved...)
	}
	if len(servers) == 0 {
		return nil, errors.New("no bootstrap servers resolved")
	}
	return servers, nil
}

// ResolveEndpoint resolves a host:port string to its IPv4 endpoints.
func ResolveEndpoint(ctx context.Context, hostport string) ([]netip.AddrPort, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(hostport))
	if err != nil {
		return nil, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return nil, fmt.Errorf("invalid port %q", portStr)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		if !addr.Is4() {
			return nil, fmt.Errorf("%s is not an IPv4 address", addr)
		}
		return []netip.AddrPort{netip.AddrPortFrom(addr, uint16(port))}, nil
	}

	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		return nil, err
	}
	out := make([]netip.AddrPort, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, netip.AddrPortFrom(a.Unmap(), uint16(port)))
	}
	return out, nil
}

// ParseEndpoint parses a literal IPv4 ip:port, as typed by an operator.
func ParseEndpoint(raw string) (netip.AddrPort, error) {
	ap, err := netip.ParseAddrPort(strings.TrimSpace(raw))
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid endpoint %q: %w", raw, err)
	}
	ap = netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	if !ap.Addr().Is4() || ap.Port() == 0 {
		return netip.AddrPort{}, fmt.Errorf("invalid endpoint %q: need IPv4 address and non-zero port", raw)
	}
	return ap, nil
}
