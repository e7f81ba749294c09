package globaldb

import (
	"context"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"
)

// boltBackend implements Backend B (mmap, explicit transactions) over
// go.etcd.io/bbolt, adapted from the teacher's storage_bolt.go. Unlike the
// teacher's per-call bbolt.Begin, this adapter maintains a single
// reference-counted shared read transaction per §4.2: the first concurrent
// reader begins (or renews) it, the last one resets it, so that concurrent
// cursors observe one snapshot without round-tripping through bbolt's own
// transaction machinery on every call.
type boltBackend struct {
	bdb    *bbolt.DB
	bucket []byte

	mu          sync.Mutex
	readTx      *bbolt.Tx
	readTxUsers int
}

const boltRootBucket = "globals"

func openBoltBackend(path string, opt Options) (*boltBackend, error) {
	bopt := *bbolt.DefaultOptions
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}
	bopt.NoSync = opt.IsTesting
	bdb, err := bbolt.Open(path, 0666, &bopt)
	if err != nil {
		return nil, backendUnavailable("open", err, "failed to open mmap backend at %q", path)
	}
	err = bdb.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltRootBucket))
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, backendUnavailable("open", err, "failed to initialize mmap backend bucket")
	}
	return &boltBackend{bdb: bdb, bucket: []byte(boltRootBucket)}, nil
}

func (b *boltBackend) Kind() BackendKind { return BackendMmap }

func (b *boltBackend) Version() string {
	return fmt.Sprintf("bbolt/%s", bboltVersion)
}

// acquireReadTx implements the reference-counted shared read transaction:
// the first caller begins it, later concurrent callers join it, and
// releaseReadTx resets it once the last user is done.
func (b *boltBackend) acquireReadTx() (*bbolt.Tx, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.readTx == nil {
		tx, err := b.bdb.Begin(false)
		if err != nil {
			return nil, err
		}
		b.readTx = tx
	}
	b.readTxUsers++
	return b.readTx, nil
}

func (b *boltBackend) releaseReadTx() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readTxUsers--
	if b.readTxUsers <= 0 {
		b.readTxUsers = 0
		if b.readTx != nil {
			_ = b.readTx.Rollback()
			b.readTx = nil
		}
	}
}

func (b *boltBackend) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	tx, err := b.acquireReadTx()
	if err != nil {
		return nil, false, backendError("get", 0, err)
	}
	defer b.releaseReadTx()
	buck := tx.Bucket(b.bucket)
	v := buck.Get(key)
	if v == nil {
		return nil, false, nil
	}
	// The memory-ownership contract: v is only valid while the read txn is
	// live, so copy before surfacing it (§4.2).
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (b *boltBackend) Put(_ context.Context, key, value []byte) error {
	err := b.bdb.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(b.bucket).Put(key, value)
	})
	if err != nil {
		return backendError("put", 0, err)
	}
	return nil
}

func (b *boltBackend) Delete(_ context.Context, key []byte) error {
	err := b.bdb.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(b.bucket).Delete(key)
	})
	if err != nil {
		return backendError("delete", 0, err)
	}
	return nil
}

func (b *boltBackend) DeleteRange(_ context.Context, lower, upper []byte) error {
	err := b.bdb.Update(func(tx *bbolt.Tx) error {
		buck := tx.Bucket(b.bucket)
		c := buck.Cursor()
		var keys [][]byte
		for k, _ := c.Seek(lower); k != nil && bytesLess(k, upper); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := buck.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return backendError("delete_range", 0, err)
	}
	return nil
}

func bytesLess(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func (b *boltBackend) OpenCursor(_ context.Context) (backendCursor, error) {
	tx, err := b.acquireReadTx()
	if err != nil {
		return nil, backendError("cursor_open", 0, err)
	}
	return &boltCursor{backend: b, c: tx.Bucket(b.bucket).Cursor()}, nil
}

func (b *boltBackend) Close() error {
	b.mu.Lock()
	if b.readTx != nil {
		_ = b.readTx.Rollback()
		b.readTx = nil
		b.readTxUsers = 0
	}
	b.mu.Unlock()
	return b.bdb.Close()
}

// boltCursor wraps a *bbolt.Cursor scoped to the backend's shared read
// transaction; Close releases that transaction's reference count exactly
// once regardless of how many times it's called, per the cursor-lifetime
// invariants of §4.3.
type boltCursor struct {
	backend *boltBackend
	c       *bbolt.Cursor
	closed  bool
}

func copyKV(k, v []byte) ([]byte, []byte, bool) {
	if k == nil {
		return nil, nil, false
	}
	ck := append([]byte(nil), k...)
	var cv []byte
	if v != nil {
		cv = append([]byte(nil), v...)
	}
	return ck, cv, true
}

func (c *boltCursor) SeekGE(seek []byte) ([]byte, []byte, bool) { return copyKV(c.c.Seek(seek)) }
func (c *boltCursor) Next() ([]byte, []byte, bool)              { return copyKV(c.c.Next()) }
func (c *boltCursor) Prev() ([]byte, []byte, bool)              { return copyKV(c.c.Prev()) }
func (c *boltCursor) First() ([]byte, []byte, bool)             { return copyKV(c.c.First()) }
func (c *boltCursor) Last() ([]byte, []byte, bool)              { return copyKV(c.c.Last()) }

func (c *boltCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.backend.releaseReadTx()
	return nil
}

const bboltVersion = "1.3.7"
