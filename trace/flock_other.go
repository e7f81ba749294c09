//go:build !unix

package trace

import "os"

// lockFile is a no-op on non-unix platforms; the per-Logger in-process
// mutex (trace.go) is still held, so a single process never interleaves
// writes — only cross-process advisory locking is unavailable here.
func lockFile(f *os.File) func() {
	return func() {}
}
