package config

import (
	"context"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, ExchangeManual, cfg.Exchange)
	assert.Len(t, cfg.Bootstrap, len(DefaultBootstrap))

	cfg.Bootstrap[0] = "changed:1"
	assert.NotEqual(t, "changed:1", DefaultBootstrap[0])
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Port = 0 }},
		{"port too large", func(c *Config) { c.Port = 70000 }},
		{"no servers", func(c *Config) { c.Bootstrap = nil }},
		{"zero resend", func(c *Config) { c.ResendInterval = 0 }},
		{"negative probe", func(c *Config) { c.ProbeMax = -1 }},
		{"unknown exchange", func(c *Config) { c.Exchange = "carrier-pigeon" }},
		{"join without url", func(c *Config) { c.Exchange = ExchangeJoin }},
		{"host without addr", func(c *Config) { c.Exchange = ExchangeHost; c.SignalAddr = "" }},
		{"tiny subnet", func(c *Config) { c.TunnelSubnet = netip.MustParsePrefix("10.0.0.1/32") }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.Bootstrap = nil
	cfg.STUN = "stun.l.google.com:19302"
	assert.NoError(t, cfg.Validate(), "STUN alone is enough")
}

func TestResolveBootstrapLiterals(t *testing.T) {
	cfg := Default()
	cfg.Bootstrap = []string{"192.0.2.1:7600", " 192.0.2.2:7601 "}

	servers, err := cfg.ResolveBootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []netip.AddrPort{
		netip.MustParseAddrPort("192.0.2.1:7600"),
		netip.MustParseAddrPort("192.0.2.2:7601"),
	}, servers)
}

func TestResolveEndpointRejects(t *testing.T) {
	for _, raw := range []string{"192.0.2.1", "192.0.2.1:0", "192.0.2.1:99999", "[2001:db8::1]:80"} {
		_, err := ResolveEndpoint(context.Background(), raw)
		assert.Error(t, err, raw)
	}
}

func TestParseEndpoint(t *testing.T) {
	ap, err := ParseEndpoint(" 203.0.113.9:5000\n")
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddrPort("203.0.113.9:5000"), ap)

	for _, raw := range []string{"", "example.com:80", "203.0.113.9:0", "[::1]:80", "203.0.113.9"} {
		_, err := ParseEndpoint(raw)
		assert.Error(t, err, raw)
	}
}
