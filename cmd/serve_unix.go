//go:build unix

package cmd

import (
	"golang.org/x/sys/unix"
)

// SIGTERM and SIGQUIT stop serve and cancel the cases of check like an interrupt.
func init() {
	shutdownSignals = append(shutdownSignals, unix.SIGTERM, unix.SIGQUIT)
}
