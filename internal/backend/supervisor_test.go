package backend

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

type statusRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *statusRecorder) record(st Status) {
	r.mu.Lock()
	r.states = append(r.states, st.State)
	r.mu.Unlock()
}

func (r *statusRecorder) States() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func newFakeSupervisor(t *testing.T, spawner *fakeSpawner, grace time.Duration) *Supervisor {
	t.Helper()
	l := NewLauncher(LauncherOptions{Layout: Layout{Dir: t.TempDir()}, Spawner: spawner})
	return NewSupervisor(l, SupervisorOptions{
		Grace:   grace,
		PIDFile: NewPIDFile(filepath.Join(t.TempDir(), "backend.pid")),
	})
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSupervisor_StartIsIdempotentWhileRunning(t *testing.T) {
	spawner := newFakeSpawner("python3")
	s := newFakeSupervisor(t, spawner, time.Second)

	first, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	second, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	if n := len(spawner.Attempts()); n != 1 {
		t.Errorf("spawned %d times, want 1", n)
	}
	if second.PID != first.PID || second.LaunchID != first.LaunchID {
		t.Errorf("second Start() = %+v, want the running backend %+v", second, first)
	}
	if !strings.Contains(second.Message, "already running") {
		t.Errorf("second Start() message = %q", second.Message)
	}
	if !s.Alive() {
		t.Error("Alive() = false while running")
	}

	pid, entry, err := s.pidFile.Read()
	if err != nil || pid != first.PID || entry != first.EntryPoint {
		t.Errorf("pid file = %d %q %v, want %d %q", pid, entry, err, first.PID, first.EntryPoint)
	}
}

func TestSupervisor_ConcurrentStartSpawnsOnce(t *testing.T) {
	spawner := newFakeSpawner("python3")
	s := newFakeSupervisor(t, spawner, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Start(context.Background()); err != nil {
				t.Errorf("Start() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if n := len(spawner.Attempts()); n != 1 {
		t.Errorf("spawned %d times, want 1", n)
	}
}

func TestSupervisor_NaturalExit(t *testing.T) {
	spawner := newFakeSpawner("python3")
	s := newFakeSupervisor(t, spawner, time.Second)
	rec := &statusRecorder{}
	s.Subscribe(rec.record)

	if _, err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	spawner.LastHandle().Exit(3)

	st, err := s.Wait(waitCtx(t))
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if st.State != StateExited {
		t.Errorf("State = %s, want exited", st.State)
	}
	if st.ExitCode == nil || *st.ExitCode != 3 {
		t.Errorf("ExitCode = %v, want 3", st.ExitCode)
	}
	if got := rec.States(); len(got) != 2 || got[0] != StateRunning || got[1] != StateExited {
		t.Errorf("observed states = %v, want [running exited]", got)
	}
	if _, err := os.Stat(s.pidFile.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("pid file should be removed after exit, stat err = %v", err)
	}

	// a new start is allowed once the old process is gone
	if _, err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() after exit error = %v", err)
	}
	if n := len(spawner.Attempts()); n != 2 {
		t.Errorf("spawned %d times, want 2", n)
	}
}

func TestSupervisor_StopInterrupts(t *testing.T) {
	spawner := newFakeSpawner("python3")
	s := newFakeSupervisor(t, spawner, time.Second)

	if _, err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Stop(waitCtx(t)); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	st := s.Status()
	if st.State != StateStopped {
		t.Errorf("State = %s, want stopped", st.State)
	}
	interrupted, killed := spawner.LastHandle().Counts()
	if interrupted != 1 || killed != 0 {
		t.Errorf("interrupted=%d killed=%d, want 1 and 0", interrupted, killed)
	}
}

func TestSupervisor_StopKillsAfterGrace(t *testing.T) {
	spawner := newFakeSpawner("python3")
	spawner.ignoreInterrupt = true
	s := newFakeSupervisor(t, spawner, 50*time.Millisecond)

	if _, err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Stop(waitCtx(t)); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	interrupted, killed := spawner.LastHandle().Counts()
	if interrupted != 1 || killed != 1 {
		t.Errorf("interrupted=%d killed=%d, want 1 and 1", interrupted, killed)
	}
	if st := s.Status(); st.State != StateStopped {
		t.Errorf("State = %s, want stopped", st.State)
	}
}

func TestSupervisor_StopIdleIsNoop(t *testing.T) {
	s := newFakeSupervisor(t, newFakeSpawner(), time.Second)
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop() on idle supervisor error = %v", err)
	}
	if st := s.Status(); st.State != StateIdle {
		t.Errorf("State = %s, want idle", st.State)
	}
}

func TestSupervisor_FailedLaunch(t *testing.T) {
	spawner := newFakeSpawner()
	s := newFakeSupervisor(t, spawner, time.Second)
	rec := &statusRecorder{}
	s.Subscribe(rec.record)

	if _, err := s.Start(context.Background()); !errors.Is(err, ErrNoInterpreter) {
		t.Fatalf("Start() error = %v, want ErrNoInterpreter", err)
	}
	st := s.Status()
	if st.State != StateFailed || st.Error == "" || st.LaunchID == "" {
		t.Errorf("Status() = %+v, want failed with error and launch id", st)
	}
	if len(st.Attempts) != 2 {
		t.Errorf("Attempts = %v, want both candidates", st.Attempts)
	}
	if got := rec.States(); len(got) != 1 || got[0] != StateFailed {
		t.Errorf("observed states = %v, want [failed]", got)
	}

	var le *LaunchError
	if _, err := s.Start(context.Background()); !errors.As(err, &le) {
		t.Fatalf("Start() error = %v, want *LaunchError", err)
	}
	if got := s.Status().LaunchID; got != le.LaunchID || got == st.LaunchID {
		t.Errorf("LaunchID = %q, want the launcher's %q (distinct from %q)", got, le.LaunchID, st.LaunchID)
	}
}

func TestSupervisor_DeliversInStatusOrder(t *testing.T) {
	spawner := newFakeSpawner()
	s := newFakeSupervisor(t, spawner, time.Second)

	blocked := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	rec := &statusRecorder{}
	s.Subscribe(func(st Status) {
		if st.State == StateFailed {
			once.Do(func() {
				close(blocked)
				<-release
			})
		}
		rec.record(st)
	})

	failed := make(chan error, 1)
	go func() {
		_, err := s.Start(context.Background())
		failed <- err
	}()
	<-blocked

	spawner.Allow("python3")
	started := make(chan error, 1)
	go func() {
		_, err := s.Start(context.Background())
		started <- err
	}()

	deadline := time.Now().Add(5 * time.Second)
	for s.Status().State != StateRunning {
		if time.Now().After(deadline) {
			t.Fatal("second Start never reached running")
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if got := rec.States(); len(got) != 0 {
		t.Fatalf("states delivered while failed listener blocked = %v, want none", got)
	}

	close(release)
	if err := <-failed; !errors.Is(err, ErrNoInterpreter) {
		t.Errorf("first Start() error = %v, want ErrNoInterpreter", err)
	}
	if err := <-started; err != nil {
		t.Errorf("second Start() error = %v", err)
	}
	got := rec.States()
	if len(got) != 2 || got[0] != StateFailed || got[1] != StateRunning {
		t.Errorf("delivery order = %v, want [failed running]", got)
	}

	spawner.LastHandle().Exit(0)
	if _, err := s.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
}

func TestSupervisor_RestartAndShutdown(t *testing.T) {
	spawner := newFakeSpawner("python3")
	s := newFakeSupervisor(t, spawner, time.Second)

	first, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	second, err := s.Restart(waitCtx(t))
	if err != nil {
		t.Fatalf("Restart() error = %v", err)
	}
	if second.PID == first.PID {
		t.Errorf("Restart() reused pid %d", first.PID)
	}

	if err := s.Shutdown(waitCtx(t)); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if s.Alive() {
		t.Error("Alive() = true after Shutdown")
	}
	if _, err := s.Start(context.Background()); !errors.Is(err, ErrShutdown) {
		t.Errorf("Start() after Shutdown error = %v, want ErrShutdown", err)
	}
}

// writeBackend creates <dir>/backend/main.py with a shell script body.
func writeBackend(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script backends are not available on Windows")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	entry := filepath.Join(dir, "backend", "main.py")
	if err := os.MkdirAll(filepath.Dir(entry), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(entry, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestSupervisor_RealProcessExitCodeAndOutput(t *testing.T) {
	dir := writeBackend(t, "echo hello from backend\necho oops >&2\nexit 3\n")
	var out syncBuffer
	l := NewLauncher(LauncherOptions{Layout: Layout{Dir: dir}, Interpreter: "sh", Output: &out})
	s := NewSupervisor(l, SupervisorOptions{Grace: time.Second})

	res, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if res.Interpreter != "sh" {
		t.Errorf("Interpreter = %q, want sh", res.Interpreter)
	}

	st, err := s.Wait(waitCtx(t))
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if st.State != StateExited || st.ExitCode == nil || *st.ExitCode != 3 {
		t.Errorf("final status = %+v, want exited with code 3", st)
	}

	logged := out.String()
	if !strings.Contains(logged, "stdout] hello from backend") {
		t.Errorf("stdout not captured: %q", logged)
	}
	if !strings.Contains(logged, "stderr] oops") {
		t.Errorf("stderr not captured: %q", logged)
	}
}

func TestSupervisor_RealProcessStop(t *testing.T) {
	dir := writeBackend(t, "exec sleep 30\n")
	l := NewLauncher(LauncherOptions{Layout: Layout{Dir: dir}, Interpreter: "sh"})
	s := NewSupervisor(l, SupervisorOptions{Grace: 2 * time.Second})

	if _, err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !s.Alive() {
		t.Fatal("Alive() = false right after start")
	}

	start := time.Now()
	if err := s.Stop(waitCtx(t)); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Stop() took %v; SIGTERM should end sleep promptly", elapsed)
	}
	if st := s.Status(); st.State != StateStopped {
		t.Errorf("State = %s, want stopped", st.State)
	}
}

func TestSupervisor_RealProcessNoInterpreter(t *testing.T) {
	dir := writeBackend(t, "exit 0\n")
	t.Setenv("PATH", t.TempDir())
	l := NewLauncher(LauncherOptions{Layout: Layout{Dir: dir}})
	s := NewSupervisor(l, SupervisorOptions{})

	_, err := s.Start(context.Background())
	if !errors.Is(err, ErrNoInterpreter) {
		t.Fatalf("Start() error = %v, want ErrNoInterpreter", err)
	}
	if !errors.Is(err, exec.ErrNotFound) {
		t.Errorf("error should wrap exec.ErrNotFound: %v", err)
	}
}
