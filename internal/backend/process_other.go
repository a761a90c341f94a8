//go:build !windows

package backend

import (
	"os"
	"syscall"
)

// interruptProcess 非 Windows: 发送 SIGTERM
func interruptProcess(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}
