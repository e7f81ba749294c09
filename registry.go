package globaldb

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// sharedBackend is the process-wide handle for one backend kind, per
// Design Notes §9 "Library-load globals": the first Connection of a given
// backend loads it and caches the handle; later Connections share it and
// bump refCount. openOptions records the Options the handle was actually
// opened with — a later Open with a different file or key_type is accepted
// as an alias (§4.5) rather than rejected, and keeps using this handle.
type sharedBackend struct {
	kind        BackendKind
	backend     backend
	openOptions Options
	refCount    int
}

// registry is the process-wide table of shared backend handles, one slot
// per BackendKind. It's backed by xsync's lock-free map (the same choice
// the dKV example makes for hot shared state) for lookups; the open/close
// refcounting critical section is still serialized by registryMu, since
// loading a backend does real I/O that must not race with itself.
var (
	registryMu sync.Mutex
	registry   = xsync.NewMapOf[BackendKind, *sharedBackend]()
)

// acquireBackend returns the process-wide backend handle for kind, opening
// it via open if this is the first acquisition, and incrementing its
// refcount otherwise. open/opt are only used on first open; later callers
// get the already-open handle (an "alias", per §4.5).
func acquireBackend(kind BackendKind, open func() (backend, error), opt Options) (*sharedBackend, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if sb, ok := registry.Load(kind); ok {
		sb.refCount++
		return sb, nil
	}

	b, err := open()
	if err != nil {
		return nil, err
	}
	sb := &sharedBackend{kind: kind, backend: b, openOptions: opt, refCount: 1}
	registry.Store(kind, sb)
	return sb, nil
}

// releaseBackend decrements sb's refcount, closing and evicting it from the
// registry once the last Connection releases it.
func releaseBackend(sb *sharedBackend) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	sb.refCount--
	if sb.refCount > 0 {
		return nil
	}
	registry.Delete(sb.kind)
	return sb.backend.Close()
}
