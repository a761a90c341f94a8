package backend

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrShutdown is returned by Start after Shutdown.
var ErrShutdown = errors.New("backend supervisor is shut down")

// State 后端进程状态
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateExited  State = "exited"  // 进程自行退出
	StateStopped State = "stopped" // 被 Stop 终止
	StateFailed  State = "failed"  // 启动失败
)

// Status is a snapshot of the supervised backend.
type Status struct {
	State       State     `json:"state"`
	LaunchID    string    `json:"launchId,omitempty"`
	Message     string    `json:"message,omitempty"`
	Interpreter string    `json:"interpreter,omitempty"`
	EntryPoint  string    `json:"entryPoint,omitempty"`
	PID         int       `json:"pid,omitempty"`
	Attempts    []string  `json:"attempts,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	ExitedAt    time.Time `json:"exitedAt"`
	ExitCode    *int      `json:"exitCode,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Ready reports whether the backend process is alive.
func (s Status) Ready() bool {
	return s.State == StateRunning
}

// SupervisorOptions configures a Supervisor.
type SupervisorOptions struct {
	// Grace is how long Stop waits after the interrupt before killing.
	Grace time.Duration
	// PIDFile, when set, tracks the running backend across shell restarts.
	PIDFile *PIDFile
}

// Supervisor owns at most one backend process: it retains the handle, watches
// for exit and stops the process on request.
type Supervisor struct {
	launcher *Launcher
	grace    time.Duration
	pidFile  *PIDFile

	mu        sync.Mutex
	current   *Result
	done      chan struct{}
	stopping  bool
	shutdown  bool
	status    Status
	listeners []func(Status)
	// seq numbers status changes under mu; delivery follows seq order.
	seq uint64

	deliverMu   sync.Mutex
	deliverCond *sync.Cond
	delivered   uint64
}

// statusEvent is one status change waiting for delivery.
type statusEvent struct {
	seq       uint64
	status    Status
	listeners []func(Status)
}

// NewSupervisor creates a supervisor around l.
func NewSupervisor(l *Launcher, opts SupervisorOptions) *Supervisor {
	if opts.Grace <= 0 {
		opts.Grace = 5 * time.Second
	}
	s := &Supervisor{
		launcher: l,
		grace:    opts.Grace,
		pidFile:  opts.PIDFile,
		status:   Status{State: StateIdle},
	}
	s.deliverCond = sync.NewCond(&s.deliverMu)
	return s
}

// Subscribe registers fn for every status change. Listeners run
// synchronously, in registration order, outside the supervisor's lock, and
// see changes in the order they were applied; an exit is delivered before Wait
// and Stop return. Listeners must not block on the supervisor.
func (s *Supervisor) Subscribe(fn func(Status)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Status returns the current snapshot.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Alive reports whether a backend process is running.
func (s *Supervisor) Alive() bool {
	return s.Status().Ready()
}

// Start launches the backend unless one is already running, in which case the
// running backend's result is returned and nothing is spawned.
func (s *Supervisor) Start(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil, ErrShutdown
	}
	if s.current != nil {
		cur := *s.current
		s.mu.Unlock()
		cur.Message = fmt.Sprintf("Backend already running with %s (pid %d)", cur.Interpreter, cur.PID)
		return &cur, nil
	}

	// 持锁启动，保证并发调用最多只产生一个进程
	res, err := s.launcher.Start(ctx)
	if err != nil {
		st := Status{
			State:      StateFailed,
			LaunchID:   uuid.New().String(),
			EntryPoint: s.launcher.Layout().EntryPoint(),
			Error:      err.Error(),
			ExitedAt:   time.Now(),
		}
		var le *LaunchError
		if errors.As(err, &le) {
			st.LaunchID = le.LaunchID
			st.Attempts = attemptStrings(le.Attempts)
		}
		ev := s.publishLocked(st)
		s.mu.Unlock()

		log.Printf("[Backend] Launch %s failed: %v", st.LaunchID, err)
		s.deliver(ev)
		return nil, err
	}

	done := make(chan struct{})
	s.current = res
	s.done = done
	s.stopping = false
	s.status = Status{
		State:       StateRunning,
		LaunchID:    res.LaunchID,
		Message:     res.Message,
		Interpreter: res.Interpreter,
		EntryPoint:  res.EntryPoint,
		PID:         res.PID,
		Attempts:    attemptStrings(res.Attempts),
		StartedAt:   res.StartedAt,
	}
	ev := s.publishLocked(s.status)
	s.mu.Unlock()

	if s.pidFile != nil {
		if err := s.pidFile.Write(res.PID, res.EntryPoint); err != nil {
			log.Printf("[Backend] Failed to write pid file: %v", err)
		}
	}

	go s.watch(res, done)
	s.deliver(ev)

	out := *res
	return &out, nil
}

// watch waits for the process and publishes its exit.
func (s *Supervisor) watch(res *Result, done chan struct{}) {
	code, waitErr := res.handle.Wait()
	res.flush()

	if s.pidFile != nil {
		if err := s.pidFile.Remove(); err != nil {
			log.Printf("[Backend] Failed to remove pid file: %v", err)
		}
	}

	s.mu.Lock()
	st := s.status
	st.ExitedAt = time.Now()
	st.ExitCode = &code
	if s.stopping {
		st.State = StateStopped
		st.Message = "Backend stopped"
	} else {
		st.State = StateExited
		st.Message = fmt.Sprintf("Backend exited with code %d", code)
	}
	if waitErr != nil {
		st.Error = waitErr.Error()
	}
	s.current = nil
	s.stopping = false
	ev := s.publishLocked(st)
	s.mu.Unlock()

	log.Printf("[Backend] %s (pid %d, launch %s)", st.Message, st.PID, st.LaunchID)
	s.deliver(ev)
	close(done)
}

// Wait blocks until the running backend exits and returns its final status.
// It returns immediately when no backend is running.
func (s *Supervisor) Wait(ctx context.Context) (Status, error) {
	s.mu.Lock()
	done := s.done
	running := s.current != nil
	s.mu.Unlock()

	if !running {
		return s.Status(), nil
	}
	select {
	case <-done:
		return s.Status(), nil
	case <-ctx.Done():
		return s.Status(), ctx.Err()
	}
}

// Stop interrupts the backend, waits up to the grace period, then kills it.
// Stopping when nothing runs is a no-op.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	h := s.current.handle
	pid := s.current.PID
	done := s.done
	s.mu.Unlock()

	log.Printf("[Backend] Stopping backend (pid %d)", pid)
	if err := h.Interrupt(); err != nil {
		log.Printf("[Backend] Interrupt failed: %v", err)
	}

	timer := time.NewTimer(s.grace)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	log.Printf("[Backend] Backend did not exit within %v, killing", s.grace)
	if err := h.Kill(); err != nil {
		return fmt.Errorf("kill backend: %w", err)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Restart stops the running backend (if any) and starts a new one.
func (s *Supervisor) Restart(ctx context.Context) (*Result, error) {
	if err := s.Stop(ctx); err != nil {
		return nil, err
	}
	return s.Start(ctx)
}

// Shutdown stops the backend and refuses later starts.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()
	return s.Stop(ctx)
}

// publishLocked stores st as the current status and numbers the change.
// Every event it returns must be passed to deliver.
func (s *Supervisor) publishLocked(st Status) statusEvent {
	s.status = st
	s.seq++
	return statusEvent{seq: s.seq, status: st, listeners: slices.Clone(s.listeners)}
}

// deliver runs the listeners for ev once every earlier change was delivered.
func (s *Supervisor) deliver(ev statusEvent) {
	s.deliverMu.Lock()
	for s.delivered != ev.seq-1 {
		s.deliverCond.Wait()
	}
	s.deliverMu.Unlock()

	defer func() {
		s.deliverMu.Lock()
		s.delivered = ev.seq
		s.deliverCond.Broadcast()
		s.deliverMu.Unlock()
	}()
	for _, fn := range ev.listeners {
		fn(ev.status)
	}
}

func attemptStrings(attempts []Attempt) []string {
	out := make([]string, len(attempts))
	for i, a := range attempts {
		out[i] = a.String()
	}
	return out
}
