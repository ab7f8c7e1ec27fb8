//go:build !unix

package meta

import "os"

// IsProcessAlive reports whether pid names a live process. On non-unix
// platforms we fall back to a FindProcess probe; Windows' FindProcess
// always succeeds, so this degrades to "assume alive" there, consistent
// with treating the watch lock conservatively.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}
