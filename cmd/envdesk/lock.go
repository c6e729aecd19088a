package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// lockPath derives the single-instance lock file location from the config path
// so both live in the same application directory.
func lockPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), appName+".lock")
}

// acquireLock claims the single-instance lock. A lock held by a live process
// is a hard error; a lock left behind by a dead process is reported with a
// hint to use --remove-lock.
func acquireLock(path string) (release func(), err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("another instance appears to be running (lock %s, pid %s); "+
				"use --remove-lock if it is stale", path, lockOwner(path))
		}
		return nil, fmt.Errorf("lock create: %w", err)
	}

	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	_ = f.Close()

	return func() { _ = os.Remove(path) }, nil
}

// lockOwner reads the pid recorded in an existing lock file
func lockOwner(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	pid := strings.TrimSpace(string(raw))
	if _, err := strconv.Atoi(pid); err != nil {
		return "unknown"
	}
	return pid
}

// removeLock deletes the lock file. Missing is fine; the point is a clean
// slate for the next start.
func removeLock(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lock remove: %w", err)
	}
	return nil
}
