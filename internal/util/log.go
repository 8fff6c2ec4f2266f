// Package util provides the logger and traffic counters shared by every component.
package util

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
)

// Log lines go to stderr; stdout carries the endpoint boxes and prompts the
// operator copies from.
func init() {
	pterm.DefaultLogger.Writer = os.Stderr
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "15:04:05.000"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging functions backed by the pterm logger. Debug lines are
// hidden unless EnableDebug was called.

func LogDebug(format string, args ...interface{}) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

// LogSuccess marks a milestone of the peering run (endpoint known, path
// confirmed, handoff).
func LogSuccess(format string, args ...interface{}) {
	pterm.DefaultLogger.Info("✓ " + fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...interface{}) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...interface{}) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug shows debug lines, including every ignored datagram.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}
