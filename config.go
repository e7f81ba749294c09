package globaldb

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/globaldb/globaldb/trace"
)

// KeyType selects the Connection's key-type mode, fixed for its lifetime
// per §3.
type KeyType string

const (
	KeyInt    KeyType = "int"
	KeyString KeyType = "str"
	KeyM      KeyType = "m"
)

// ErrorMode selects how a Connection surfaces failures at its boundary,
// matching the two host-binding calling conventions recovered from
// original_source/ (return-value vs. exception-equivalent) per §7.
type ErrorMode string

const (
	// ErrorAsValue returns every failure as an error value (the default,
	// and the only mode meaningful from plain Go code).
	ErrorAsValue ErrorMode = "value"
	// ErrorAsPanic panics with the *Error instead of returning it, for
	// callers emulating a binding that raises exceptions.
	ErrorAsPanic ErrorMode = "panic"
)

// Options is the configuration record accepted by Open, per §4.5.
type Options struct {
	// Backend selects which storage engine this Connection binds to.
	Backend BackendKind

	// LibraryPath names a backend shared library to load. Go has no
	// portable dynamic-library-as-data story, so this is accepted for
	// config compatibility and checked for existence only: a path that
	// doesn't exist fails open with BackendUnavailable, matching the
	// "missing library" failure mode of §4.2, even though the real
	// backend implementations are statically linked (see SPEC_FULL.md §9
	// "Backend loading").
	LibraryPath string

	// File is the database file path.
	File string

	// EnvDir is the environment directory; currently accepted but unused
	// since multi-process environments are not implemented for Backend A.
	EnvDir string

	// KeyType fixes the Connection's key-type mode.
	KeyType KeyType

	// EnvVars is newline-separated K=V pairs applied to the process
	// environment before the backend handle is created.
	EnvVars string

	// Multithreaded enables the instance mutex (§5). The zero value is
	// false for a clean Go zero-value Options{}; callers that want the
	// mutex — the common case, and the source's default — should start
	// from DefaultOptions() or set this explicitly. cmd/globaldb always
	// sets it true unless --single-threaded is passed.
	Multithreaded bool

	// ErrorMode selects the error-surfacing convention; defaults to
	// ErrorAsValue.
	ErrorMode ErrorMode

	// MmapSize overrides Backend B's initial mmap size.
	MmapSize int

	// IsTesting relaxes Backend B's durability settings (NoSync) for fast
	// test runs, mirroring the teacher's db.go Options.IsTesting.
	IsTesting bool

	// MaxValueLen overrides the maximum byte length of a stored value (§3:
	// "bounded by a fixed maximum; default approximately 32 KiB"). Zero
	// means defaultMaxValueLen.
	MaxValueLen int

	// Workers sets the Worker Pool's fixed thread count (§4.6). Zero means
	// defaultWorkers; values above maxWorkers are clamped.
	Workers int

	// LogFile, if non-empty, opens a trace.Logger (§4.8) writing to this
	// path for the lifetime of the Connection.
	LogFile    string
	LogOptions trace.Options
}

func (o Options) multithreaded() bool {
	return o.Multithreaded
}

// DefaultOptions returns an Options with the instance mutex enabled, the
// source's actual default (§5), since Options{} itself must keep Go's
// conventional false/empty zero value.
func DefaultOptions() Options {
	return Options{Multithreaded: true, ErrorMode: ErrorAsValue}
}

// applyEnvVars parses o.EnvVars (newline-separated K=V) via godotenv and
// sets each pair in the process environment, per §4.5.
func applyEnvVars(raw string) error {
	if raw == "" {
		return nil
	}
	vars, err := godotenv.Unmarshal(raw)
	if err != nil {
		return badArgument("open", "invalid env_vars: %v", err)
	}
	for k, v := range vars {
		if err := os.Setenv(k, v); err != nil {
			return backendUnavailable("open", err, "failed to set env var %q", k)
		}
	}
	return nil
}
