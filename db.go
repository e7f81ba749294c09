package globaldb

import (
	"fmt"
	"os"
	"sync"

	"github.com/globaldb/globaldb/trace"
)

// Conn is the database handle of §4.5: a backend handle plus version string,
// instance mutex, Worker Pool and trace logger. Scratch buffers are not held
// here; each call draws them from the package-level pools of pools.go.
// Global Handles and Cursor Handles
// hold a non-owning reference to a Conn and must not outlive it.
//
// Multiple Conns may share one process-wide backend handle (§9 "Library-load
// globals"); Close releases this Conn's reference, and only finalizes the
// shared handle once every Conn sharing it has closed.
type Conn struct {
	opts Options
	sb   *sharedBackend
	mu   instanceLocker
	pool *WorkerPool
	log  *trace.Logger

	version string

	closeOnce sync.Once
	closeErr  error
}

// Open binds a new Conn per the configuration record of §4.5. The first
// Open of a given Options.Backend in the process loads that backend and
// caches its handle (§9); later Opens — even with a different File or
// KeyType — share it as an alias.
func Open(opt Options) (*Conn, error) {
	switch opt.Backend {
	case BackendBtree, BackendMmap:
	default:
		return nil, badArgument("open", "unrecognized backend %q", opt.Backend)
	}
	switch opt.KeyType {
	case "", KeyInt, KeyString, KeyM:
	default:
		return nil, badArgument("open", "unrecognized key_type %q", opt.KeyType)
	}
	if opt.LibraryPath != "" {
		if _, err := os.Stat(opt.LibraryPath); err != nil {
			return nil, backendUnavailable("open", err, "library_path %q not found", opt.LibraryPath)
		}
	}
	if err := applyEnvVars(opt.EnvVars); err != nil {
		return nil, err
	}

	sb, err := acquireBackend(opt.Backend, func() (backend, error) { return openBackend(opt) }, opt)
	if err != nil {
		return nil, err
	}

	var locker instanceLocker
	if opt.Multithreaded {
		locker = newReentrantMutex()
	} else {
		locker = noopLocker{}
	}

	var logger *trace.Logger
	if opt.LogFile != "" {
		logger, err = trace.Open(opt.LogFile, opt.LogOptions)
		if err != nil {
			releaseBackend(sb)
			return nil, backendUnavailable("open", err, "failed to open log_file %q", opt.LogFile)
		}
	}

	return &Conn{
		opts:    opt,
		sb:      sb,
		mu:      locker,
		pool:    newWorkerPool(opt.Workers),
		log:     logger,
		version: fmt.Sprintf("globaldb/%s %s/%s", packageVersion, opt.Backend, sb.backend.Version()),
	}, nil
}

// openBackend dispatches to the concrete backend opener for opt.Backend.
// Per SPEC_FULL.md §9 "Backend loading", this replaces the source's dynamic
// library load with a statically linked Go package selected by kind.
func openBackend(opt Options) (backend, error) {
	switch opt.Backend {
	case BackendBtree:
		return openBtreeBackend(opt.File, opt)
	case BackendMmap:
		return openBoltBackend(opt.File, opt)
	default:
		return nil, badArgument("open", "unrecognized backend %q", opt.Backend)
	}
}

const packageVersion = "0.1.0"

// Version returns a human-readable string naming this package's version and
// the linked backend's version, per §6.
func (c *Conn) Version() string {
	return c.version
}

// Close decrements this Conn's reference on the shared backend handle,
// finalizing it once the last reference is released (§4.5). Close is safe
// to call more than once; only the first call does any work.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.pool.close()
		c.closeErr = releaseBackend(c.sb)
		if c.log != nil {
			c.log.Close()
		}
	})
	return c.closeErr
}

// submit routes fn through the Worker Pool (§4.6), delivering its result to
// onDone on the calling goroutine once a worker has run it.
func (c *Conn) submit(fn func() (any, error), onDone func(any, error)) error {
	return c.raise(c.pool.submit(fn, onDone))
}

// entry logs a function-entry trace event for op, per §4.8. A no-op when no
// log file was configured.
func (c *Conn) entry(op string, args ...any) {
	if c.log != nil {
		c.log.Entry(op, args...)
	}
}

// transmit logs a transmission trace event around a backend call, per §4.8.
// The logger itself decides whether resp is included, based on its configured
// transmission detail level.
func (c *Conn) transmit(op string, req, resp any) {
	if c.log != nil {
		c.log.Transmission(op, req, resp)
	}
}

// fail logs err as a trace event naming op (§7: "every failure writes an
// event to the log ... with the calling operation's name as the title"),
// then surfaces it per c.errorMode() exactly like raise.
func (c *Conn) fail(op string, err error) error {
	if err != nil && c.log != nil {
		c.log.Error(op, err)
	}
	return c.raise(err)
}

// withLock runs f while holding the instance mutex (a no-op if the
// Connection was opened with Multithreaded: false), per §5.
func (c *Conn) withLock(f func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return f()
}

func (c *Conn) backend() backend {
	return c.sb.backend
}

func (c *Conn) keyType() KeyType {
	if c.opts.KeyType == "" {
		return KeyM
	}
	return c.opts.KeyType
}

func (c *Conn) errorMode() ErrorMode {
	if c.opts.ErrorMode == "" {
		return ErrorAsValue
	}
	return c.opts.ErrorMode
}

// raise surfaces err according to c.errorMode(): as a return value (the
// default), or as a panic for callers emulating a binding that raises
// exceptions (§7).
func (c *Conn) raise(err error) error {
	if err != nil && c.errorMode() == ErrorAsPanic {
		panic(err)
	}
	return err
}
