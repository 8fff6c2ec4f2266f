package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide traffic counter for the shared UDP socket.
var Stats = &stats{}

type stats struct {
	PacketsSent atomic.Int64 // datagrams written to the socket
	PacketsRecv atomic.Int64 // datagrams read from the socket
	BytesSent   atomic.Int64 // cumulative bytes written
	BytesRecv   atomic.Int64 // cumulative bytes read
	Malformed   atomic.Int64 // datagrams dropped by the codec
	Keepalives  atomic.Int64 // KEEPALIVE packets sent
}

func (s *stats) AddSent(n int) {
	s.PacketsSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *stats) AddRecv(n int) {
	s.PacketsRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

func (s *stats) AddMalformed() { s.Malformed.Add(1) }
func (s *stats) AddKeepalive() { s.Keepalives.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StatsInterval is the reporting period of StartStatsReporter.
const StatsInterval = 10 * time.Second

// StartStatsReporter launches a goroutine that logs socket statistics
// every StatsInterval. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, clk clock.Clock) {
	go func() {
		ticker := clk.Ticker(StatsInterval)
		defer ticker.Stop()

		var prevSent, prevRecv, prevDropped int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.BytesSent.Load()
				recv := Stats.BytesRecv.Load()
				dropped := Stats.Malformed.Load()

				outS := float64(sent-prevSent) / StatsInterval.Seconds()
				inS := float64(recv-prevRecv) / StatsInterval.Seconds()

				if inS > 0 || outS > 0 || dropped > prevDropped {
					pterm.DefaultLogger.Info(formatStats(inS, outS, dropped-prevDropped))
				}

				prevSent = sent
				prevRecv = recv
				prevDropped = dropped

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS float64, dropped int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Keepalive: %d | Dropped: %d",
		formatBytes(inS),
		formatBytes(outS),
		Stats.Keepalives.Load(),
		dropped,
	)
}
