package trace

import (
	"runtime"
	"strconv"
	"strings"
)

// threadID parses the calling goroutine's id out of a short runtime stack
// trace, for the log line's "tid=" field (§6). Go has no OS-thread handle to
// report instead — a goroutine id is the closest stable per-caller
// identifier, the same technique the package's instance mutex uses for its
// re-entrancy check.
func threadID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	s := strings.TrimPrefix(string(buf[:n]), "goroutine ")
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
