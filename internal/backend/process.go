package backend

import (
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

func processAlive(pid int) bool {
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

// processCommandLine returns the process's full command line.
func processCommandLine(pid int) (string, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", err
	}
	return p.Cmdline()
}

// terminateProcess asks pid to exit (SIGTERM; TerminateProcess on Windows),
// polls until grace runs out, then kills it.
func terminateProcess(pid int, grace time.Duration) error {
	p, err := process.NewProcess(int32(pid))
	if errors.Is(err, process.ErrorProcessNotRunning) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := p.Terminate(); err != nil {
		if !processAlive(pid) {
			return nil
		}
		return fmt.Errorf("终止进程失败: %w", err)
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := p.Kill(); err != nil && processAlive(pid) {
		return fmt.Errorf("强制结束进程失败: %w", err)
	}
	return nil
}
