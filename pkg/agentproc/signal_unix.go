//go:build !windows

package agentproc

import (
	"os"
	"syscall"
)

// stopSignal is the SIGTERM-equivalent used by Stop's graceful-termination
// request, per spec §4.1's stop contract.
func stopSignal() os.Signal {
	return syscall.SIGTERM
}
