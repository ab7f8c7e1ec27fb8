//go:build unix

package meta

import (
	"golang.org/x/sys/unix"
)

// IsProcessAlive reports whether pid names a live process, used by Watcher
// startup to decide whether a recorded lastRun.pid is still holding the
// watch lock. It sends signal 0, which performs no action
// beyond existence/permission checks.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err == unix.EPERM
}
