package main

import (
	"context"
	"net/netip"

	"github.com/pterm/pterm"

	"github.com/1ureka/udpeer/internal/config"
	"github.com/1ureka/udpeer/internal/util"
)

// manualExchanger asks the operator to type the remote endpoint, after our
// own has been printed for them to share.
type manualExchanger struct{}

func (manualExchanger) Exchange(ctx context.Context, local netip.AddrPort) (netip.AddrPort, error) {
	pterm.Info.Println("Send your external endpoint " + local.String() + " to the other side.")
	pterm.Println()

	// The prompt reads the terminal in raw mode and handles Ctrl+C itself, so
	// it runs on this goroutine and ctx is only checked once it returns.
	ep := askEndpoint()
	if err := ctx.Err(); err != nil {
		return netip.AddrPort{}, err
	}
	return ep, nil
}

// askEndpoint prompts until a valid IPv4 endpoint is entered.
func askEndpoint() netip.AddrPort {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Remote external endpoint (ip:port)").
			Show()

		ep, err := config.ParseEndpoint(raw)
		if err == nil {
			pterm.Println()
			return ep
		}

		util.LogWarning("%v", err)
		pterm.Println()
	}
}
