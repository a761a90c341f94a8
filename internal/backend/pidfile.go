package backend

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// PIDFile 记录正在运行的后端进程，用于下次启动时清理孤儿进程
//
// Format: "<pid>\n<entry point>\n".
type PIDFile struct {
	path string
}

// NewPIDFile returns a PID file at path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// Path returns the file location.
func (f *PIDFile) Path() string { return f.path }

// Write records pid and its entry point.
func (f *PIDFile) Write(pid int, entry string) error {
	content := strconv.Itoa(pid) + "\n" + entry + "\n"
	return os.WriteFile(f.path, []byte(content), 0644)
}

// Read returns the recorded pid and entry point. A missing file yields an
// error matching os.ErrNotExist.
func (f *PIDFile) Read() (int, string, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return 0, "", err
	}
	defer file.Close()

	sc := bufio.NewScanner(file)
	if !sc.Scan() {
		return 0, "", fmt.Errorf("pid file %s is empty", f.path)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
	if err != nil || pid <= 0 {
		return 0, "", fmt.Errorf("pid file %s: invalid pid %q", f.path, sc.Text())
	}
	var entry string
	if sc.Scan() {
		entry = strings.TrimSpace(sc.Text())
	}
	return pid, entry, sc.Err()
}

// Remove deletes the file; a missing file is not an error.
func (f *PIDFile) Remove() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ReapOrphan terminates a backend left running by a previous shell. The
// recorded process is only touched when it is still alive and its command line
// names the recorded entry point, so a recycled PID is never killed. The file
// is removed in every case except a failed termination.
func ReapOrphan(f *PIDFile, grace time.Duration) (bool, error) {
	pid, entry, err := f.Read()
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		log.Printf("[Reaper] Discarding unreadable pid file: %v", err)
		return false, f.Remove()
	}

	if pid == os.Getpid() || entry == "" || !processAlive(pid) {
		return false, f.Remove()
	}

	cmdline, err := processCommandLine(pid)
	if err != nil || !strings.Contains(cmdline, entry) {
		log.Printf("[Reaper] PID %d no longer runs %s, discarding stale pid file", pid, entry)
		return false, f.Remove()
	}

	log.Printf("[Reaper] Found orphaned backend PID %d, terminating...", pid)
	if err := terminateProcess(pid, grace); err != nil {
		return false, fmt.Errorf("terminate orphaned backend %d: %w", pid, err)
	}
	log.Printf("[Reaper] Terminated orphaned backend PID %d", pid)
	return true, f.Remove()
}
