//go:build unix

package trace

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockFile takes an OS advisory exclusive lock on f for the duration of one
// write, per §5 "the log file is guarded by an advisory file lock around
// each write", the same golang.org/x/sys/unix primitive the mmap package
// uses for its own platform split. The returned func releases it.
func lockFile(f *os.File) func() {
	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return func() {}
	}
	return func() { _ = unix.Flock(fd, unix.LOCK_UN) }
}
