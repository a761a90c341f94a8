package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrResourceDirUnavailable is returned when the resource directory lookup failed.
	ErrResourceDirUnavailable = errors.New("resource directory unavailable")
	// ErrNoInterpreter is returned when every candidate interpreter failed to spawn.
	ErrNoInterpreter = errors.New("no interpreter could start the backend")
)

// Attempt 记录一次解释器尝试
type Attempt struct {
	Interpreter string
	Err         error
}

func (a Attempt) String() string {
	if a.Err == nil {
		return a.Interpreter + ": ok"
	}
	return a.Interpreter + ": " + a.Err.Error()
}

// LaunchError reports an exhausted candidate list. It matches ErrNoInterpreter
// and every per-candidate error under errors.Is.
type LaunchError struct {
	// LaunchID is the ID the attempts were logged under.
	LaunchID string
	Attempts []Attempt
}

func (e *LaunchError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.String()
	}
	return ErrNoInterpreter.Error() + " (" + strings.Join(parts, "; ") + ")"
}

func (e *LaunchError) Unwrap() []error {
	errs := []error{ErrNoInterpreter}
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// Result 后端启动结果
type Result struct {
	LaunchID    string
	Message     string
	Interpreter string
	EntryPoint  string
	PID         int
	Attempts    []Attempt
	StartedAt   time.Time

	handle  Handle
	streams []*lineWriter
}

func (r *Result) flush() {
	for _, w := range r.streams {
		w.Flush()
	}
}

// LauncherOptions configures a Launcher.
type LauncherOptions struct {
	Layout Layout
	// Spawner defaults to ExecSpawner.
	Spawner Spawner
	// Interpreter is tried before the bundled and system interpreters.
	Interpreter string
	// Output receives the backend's stdout and stderr, line-prefixed.
	Output io.Writer
}

// Launcher starts the backend with the first candidate interpreter that the
// OS accepts.
type Launcher struct {
	layout      Layout
	spawner     Spawner
	interpreter string
	output      io.Writer
}

// NewLauncher creates a launcher.
func NewLauncher(opts LauncherOptions) *Launcher {
	if opts.Spawner == nil {
		opts.Spawner = ExecSpawner{}
	}
	return &Launcher{
		layout:      opts.Layout,
		spawner:     opts.Spawner,
		interpreter: opts.Interpreter,
		output:      opts.Output,
	}
}

// Layout returns the resource layout the launcher was built with.
func (l *Launcher) Layout() Layout {
	return l.layout
}

// Start spawns one backend process. Success only means the exec request was
// accepted; the process may exit immediately afterwards.
func (l *Launcher) Start(ctx context.Context) (*Result, error) {
	if l.layout.Dir == "" {
		if l.layout.Err != nil {
			return nil, fmt.Errorf("%w: %v", ErrResourceDirUnavailable, l.layout.Err)
		}
		return nil, ErrResourceDirUnavailable
	}

	launchID := uuid.New().String()
	entry := l.layout.EntryPoint()
	candidates := l.layout.Candidates(l.interpreter)
	var attempts []Attempt

	for _, interpreter := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sink := newOutputSink(l.output, launchID)
		stdout := sink.Stream("stdout")
		stderr := sink.Stream("stderr")

		h, err := l.spawner.Spawn(SpawnSpec{
			Interpreter: interpreter,
			Args:        []string{entry},
			Stdout:      stdout,
			Stderr:      stderr,
		})
		attempts = append(attempts, Attempt{Interpreter: interpreter, Err: err})
		if err != nil {
			log.Printf("[Launcher] %s failed to start backend (launch %s): %v", interpreter, launchID, err)
			continue
		}

		log.Printf("[Launcher] Backend started with %s (pid %d)", interpreter, h.PID())
		return &Result{
			LaunchID:    launchID,
			Message:     fmt.Sprintf("Backend started with %s (pid %d)", interpreter, h.PID()),
			Interpreter: interpreter,
			EntryPoint:  entry,
			PID:         h.PID(),
			Attempts:    attempts,
			StartedAt:   time.Now(),
			handle:      h,
			streams:     []*lineWriter{stdout, stderr},
		}, nil
	}

	return nil, &LaunchError{LaunchID: launchID, Attempts: attempts}
}
