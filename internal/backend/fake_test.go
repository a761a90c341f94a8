package backend

import (
	"errors"
	"fmt"
	"sync"
)

// fakeSpawner fails every interpreter not listed in succeed and records the
// order of attempts.
type fakeSpawner struct {
	mu       sync.Mutex
	succeed  map[string]bool
	attempts []string
	specs    []SpawnSpec
	handles  []*fakeHandle
	nextPID  int

	// ignoreInterrupt makes spawned handles survive Interrupt, forcing a Kill.
	ignoreInterrupt bool
}

func newFakeSpawner(succeed ...string) *fakeSpawner {
	s := &fakeSpawner{succeed: map[string]bool{}, nextPID: 1000}
	for _, name := range succeed {
		s.succeed[name] = true
	}
	return s
}

func (s *fakeSpawner) Spawn(spec SpawnSpec) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts = append(s.attempts, spec.Interpreter)
	s.specs = append(s.specs, spec)
	if !s.succeed[spec.Interpreter] {
		return nil, fmt.Errorf("exec: %q: %w", spec.Interpreter, errNotFound)
	}
	s.nextPID++
	h := newFakeHandle(s.nextPID)
	h.ignoreInterrupt = s.ignoreInterrupt
	s.handles = append(s.handles, h)
	return h, nil
}

// Allow lets name spawn from now on.
func (s *fakeSpawner) Allow(name string) {
	s.mu.Lock()
	s.succeed[name] = true
	s.mu.Unlock()
}

func (s *fakeSpawner) Attempts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.attempts...)
}

func (s *fakeSpawner) LastHandle() *fakeHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.handles) == 0 {
		return nil
	}
	return s.handles[len(s.handles)-1]
}

var errNotFound = errors.New("executable file not found")

type fakeHandle struct {
	pid             int
	ignoreInterrupt bool

	once sync.Once
	exit chan int

	mu          sync.Mutex
	interrupted int
	killed      int
}

func newFakeHandle(pid int) *fakeHandle {
	return &fakeHandle{pid: pid, exit: make(chan int, 1)}
}

func (h *fakeHandle) PID() int { return h.pid }

func (h *fakeHandle) Wait() (int, error) {
	return <-h.exit, nil
}

// Exit makes the process exit with code.
func (h *fakeHandle) Exit(code int) {
	h.once.Do(func() { h.exit <- code })
}

func (h *fakeHandle) Interrupt() error {
	h.mu.Lock()
	h.interrupted++
	h.mu.Unlock()
	if !h.ignoreInterrupt {
		h.Exit(-1)
	}
	return nil
}

func (h *fakeHandle) Kill() error {
	h.mu.Lock()
	h.killed++
	h.mu.Unlock()
	h.Exit(-1)
	return nil
}

func (h *fakeHandle) Counts() (interrupted, killed int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted, h.killed
}
