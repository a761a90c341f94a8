//go:build windows

package backend

import "os"

// interruptProcess Windows 没有 SIGTERM，直接结束进程
func interruptProcess(p *os.Process) error {
	return p.Kill()
}
