//go:build windows

package agentproc

import "os"

// stopSignal is the closest portable equivalent to SIGTERM on Windows,
// where os/exec.Process.Signal only supports os.Kill and os.Interrupt.
func stopSignal() os.Signal {
	return os.Interrupt
}
