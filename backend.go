package globaldb

import "context"

// BackendKind identifies which storage engine a Conn is bound to.
type BackendKind string

const (
	BackendBtree BackendKind = "btree" // Backend A: implicit per-call transactions
	BackendMmap  BackendKind = "mmap"  // Backend B: explicit read/write transactions
)

// backend is the uniform interface the rest of the package programs
// against, per §4.2. Backend A and Backend B each implement it with very
// different concurrency contracts underneath; the Cursor State Machine and
// Request Executor never see the difference.
type backend interface {
	// Kind reports which backend implementation this is.
	Kind() BackendKind

	// Version returns a human-readable backend version string.
	Version() string

	// Get looks up key, returning (nil, false) if it is not present.
	Get(ctx context.Context, key []byte) ([]byte, bool, error)

	// Put stores key=value.
	Put(ctx context.Context, key, value []byte) error

	// Delete removes key. It is not an error if key is absent.
	Delete(ctx context.Context, key []byte) error

	// DeleteRange removes every key in [lower, upper) (upper exclusive). It
	// is used to implement subtree-cascade delete in M mode.
	DeleteRange(ctx context.Context, lower, upper []byte) error

	// OpenCursor returns a new backendCursor. For Backend B this opens (or
	// joins the refcounted) read transaction; for Backend A it takes a
	// copy-on-write snapshot of the in-memory tree and needs no transaction.
	OpenCursor(ctx context.Context) (backendCursor, error)

	// Close releases the backend's resources.
	Close() error
}

// backendCursor is the minimal seek/step primitive the Cursor State Machine
// builds all three traversal modes on top of, per §2 and §4.3.
type backendCursor interface {
	// SeekGE positions the cursor at the first key >= seek, or reports
	// ok=false if there is none.
	SeekGE(seek []byte) (key, value []byte, ok bool)

	// Next advances to the following key.
	Next() (key, value []byte, ok bool)

	// Prev moves to the preceding key.
	Prev() (key, value []byte, ok bool)

	// First positions the cursor at the lexicographically smallest key.
	First() (key, value []byte, ok bool)

	// Last positions the cursor at the lexicographically largest key.
	Last() (key, value []byte, ok bool)

	// Close releases the cursor (and, for Backend B, its read transaction
	// if this was the last live cursor on it). Idempotent.
	Close() error
}
