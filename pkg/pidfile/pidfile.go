// Package pidfile guards against multiple daemon instances via a PID file.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// PIDFile represents the daemon's PID file.
type PIDFile struct {
	path string
}

// New creates a PIDFile at the given path.
func New(path string) *PIDFile {
	return &PIDFile{path: path}
}

// Acquire writes the current PID, failing if another live instance holds
// the file. Stale files left by dead processes are replaced.
func (p *PIDFile) Acquire() error {
	if data, err := os.ReadFile(p.path); err == nil {
		pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err == nil && pid > 0 && processAlive(pid) {
			return fmt.Errorf("another instance is running with PID %d", pid)
		}
		if err := os.Remove(p.path); err != nil {
			return fmt.Errorf("failed to remove stale PID file: %w", err)
		}
	}

	if dir := filepath.Dir(p.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create PID file directory: %w", err)
		}
	}
	if err := os.WriteFile(p.path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// Release removes the PID file.
func (p *PIDFile) Release() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// processAlive reports whether a process with the given PID exists.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
