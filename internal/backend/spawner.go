package backend

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"time"
)

// waitDelay bounds how long Wait blocks on output pipes held open by a
// grandchild after the backend itself has exited.
const waitDelay = 2 * time.Second

// SpawnSpec is one spawn request.
type SpawnSpec struct {
	Interpreter string
	Args        []string
	Stdout      io.Writer
	Stderr      io.Writer
}

// Spawner starts backend processes. Spawn must return once the OS has
// accepted (or rejected) the exec request; it must not wait for the child.
type Spawner interface {
	Spawn(spec SpawnSpec) (Handle, error)
}

// Handle is a started process.
type Handle interface {
	PID() int
	// Wait blocks until the process exits. The exit code is -1 when the
	// process was terminated by a signal. err reports failures other than a
	// non-zero exit.
	Wait() (exitCode int, err error)
	// Interrupt asks the process to exit (SIGTERM; a hard kill on Windows).
	Interrupt() error
	Kill() error
}

// ExecSpawner spawns real OS processes through os/exec.
type ExecSpawner struct{}

// Spawn implements Spawner.
func (ExecSpawner) Spawn(spec SpawnSpec) (Handle, error) {
	cmd := exec.Command(spec.Interpreter, spec.Args...)
	// os/exec copies into non-*os.File writers on its own goroutines, so the
	// child's pipes are always drained.
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execHandle{cmd: cmd}, nil
}

type execHandle struct {
	cmd *exec.Cmd
}

func (h *execHandle) PID() int { return h.cmd.Process.Pid }

func (h *execHandle) Wait() (int, error) {
	err := h.cmd.Wait()
	code := -1
	if h.cmd.ProcessState != nil {
		code = h.cmd.ProcessState.ExitCode()
	}

	var exitErr *exec.ExitError
	if err == nil || errors.As(err, &exitErr) {
		return code, nil
	}
	return code, err
}

func (h *execHandle) Interrupt() error {
	return ignoreDone(interruptProcess(h.cmd.Process))
}

func (h *execHandle) Kill() error {
	return ignoreDone(h.cmd.Process.Kill())
}

func ignoreDone(err error) error {
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
