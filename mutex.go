package globaldb

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// reentrantMutex implements the stack-counted re-entrant instance mutex of
// §5: a goroutine that already holds the lock may acquire it again without
// deadlocking itself, which a bare sync.Mutex cannot do: a withLock section
// entered while the same goroutine already holds the Connection's mutex
// just deepens the hold.
type reentrantMutex struct {
	mu     sync.Mutex
	cond   *sync.Cond
	holder uint64
	depth  int
}

func newReentrantMutex() *reentrantMutex {
	m := &reentrantMutex{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Lock acquires the mutex, or increments the depth counter if the calling
// goroutine already holds it.
func (m *reentrantMutex) Lock() {
	gid := goroutineID()
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.depth > 0 && m.holder != gid {
		m.cond.Wait()
	}
	m.holder = gid
	m.depth++
}

// Unlock decrements the depth counter, releasing the mutex to other
// goroutines once it reaches zero.
func (m *reentrantMutex) Unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.depth == 0 {
		panic("globaldb: Unlock of reentrantMutex that isn't held")
	}
	m.depth--
	if m.depth == 0 {
		m.cond.Signal()
	}
}

// goroutineID parses the calling goroutine's id out of a short runtime
// stack trace. It's only used by the instance mutex's re-entrancy check, not
// on any hot path where the underlying backend I/O already dominates cost.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	s := string(buf[:n])
	s = strings.TrimPrefix(s, "goroutine ")
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// instanceLocker is the interface db.go programs against so the re-entrant
// mutex can be swapped for a no-op when Options.Multithreaded is false.
type instanceLocker interface {
	Lock()
	Unlock()
}

// noopLocker is used in place of reentrantMutex when Options.Multithreaded
// is false: the caller is then responsible for avoiding overlapping
// operations on the same Connection, per §5.
type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}
