package globaldb

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/btree"
)

// btreeBackend implements Backend A (B-tree, implicit per-call
// transactions) per §4.2: every Get/Put/Delete is a standalone call with no
// caller-visible transaction object, and cursors are independent of any
// transaction. The ordered index is an in-memory google/btree (the
// standard ecosystem choice for a sorted, allocation-cheap container with
// no transaction concept of its own — matching "implicit" exactly), fronted
// by an append-only journal for durability across restarts.
type btreeBackend struct {
	path string

	mu   sync.Mutex
	tree *btree.BTree
	jrnl *journalWriter
}

const btreeDegree = 32

type btreeItem struct {
	key, value []byte
}

func (a btreeItem) Less(other btree.Item) bool {
	return bytes.Compare(a.key, other.(btreeItem).key) < 0
}

func openBtreeBackend(path string, opt Options) (*btreeBackend, error) {
	if path == "" {
		return nil, badArgument("open", "btree backend requires a file path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0777); err != nil {
			return nil, backendUnavailable("open", err, "failed to create directory for %q", path)
		}
	}

	tree := btree.New(btreeDegree)
	err := replayJournal(path, func(key, value []byte) {
		tree.ReplaceOrInsert(btreeItem{key: key, value: value})
	}, func(key []byte) {
		tree.Delete(btreeItem{key: key})
	})
	if err != nil {
		return nil, backendUnavailable("open", err, "failed to replay btree journal %q", path)
	}

	jrnl, err := openJournalWriter(path, opt.IsTesting)
	if err != nil {
		return nil, backendUnavailable("open", err, "failed to open btree journal %q", path)
	}

	return &btreeBackend{path: path, tree: tree, jrnl: jrnl}, nil
}

func (b *btreeBackend) Kind() BackendKind { return BackendBtree }

func (b *btreeBackend) Version() string {
	return fmt.Sprintf("google/btree degree=%d", btreeDegree)
}

func (b *btreeBackend) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	it := b.tree.Get(btreeItem{key: key})
	if it == nil {
		return nil, false, nil
	}
	v := it.(btreeItem).value
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (b *btreeBackend) Put(_ context.Context, key, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.jrnl.appendPut(key, value); err != nil {
		return backendError("put", 0, err)
	}
	storedKey := append([]byte(nil), key...)
	storedVal := append([]byte(nil), value...)
	b.tree.ReplaceOrInsert(btreeItem{key: storedKey, value: storedVal})
	return nil
}

func (b *btreeBackend) Delete(_ context.Context, key []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.jrnl.appendDelete(key); err != nil {
		return backendError("delete", 0, err)
	}
	b.tree.Delete(btreeItem{key: key})
	return nil
}

func (b *btreeBackend) DeleteRange(_ context.Context, lower, upper []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var toDelete [][]byte
	b.tree.AscendRange(btreeItem{key: lower}, btreeItem{key: upper}, func(it btree.Item) bool {
		toDelete = append(toDelete, it.(btreeItem).key)
		return true
	})
	for _, k := range toDelete {
		if err := b.jrnl.appendDelete(k); err != nil {
			return backendError("delete_range", 0, err)
		}
		b.tree.Delete(btreeItem{key: k})
	}
	return nil
}

// OpenCursor snapshots the tree via google/btree's O(1) copy-on-write
// Clone, giving the cursor a stable, lock-free point-in-time view — the
// Backend A analogue of Backend B's shared read transaction.
func (b *btreeBackend) OpenCursor(_ context.Context) (backendCursor, error) {
	b.mu.Lock()
	snap := b.tree.Clone()
	b.mu.Unlock()
	return &btreeCursor{snap: snap}, nil
}

func (b *btreeBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jrnl.close()
}

type btreeCursor struct {
	snap   *btree.BTree
	cur    []byte
	curSet bool
	closed bool
}

func (c *btreeCursor) SeekGE(seek []byte) (key, value []byte, ok bool) {
	c.snap.AscendGreaterOrEqual(btreeItem{key: seek}, func(it btree.Item) bool {
		ci := it.(btreeItem)
		key, value, ok = ci.key, ci.value, true
		return false
	})
	c.setCurrent(key, ok)
	return
}

func (c *btreeCursor) Next() (key, value []byte, ok bool) {
	if !c.curSet {
		return c.First()
	}
	skippedCurrent := false
	c.snap.AscendGreaterOrEqual(btreeItem{key: c.cur}, func(it btree.Item) bool {
		ci := it.(btreeItem)
		if !skippedCurrent && bytes.Equal(ci.key, c.cur) {
			skippedCurrent = true
			return true
		}
		key, value, ok = ci.key, ci.value, true
		return false
	})
	c.setCurrent(key, ok)
	return
}

func (c *btreeCursor) Prev() (key, value []byte, ok bool) {
	if !c.curSet {
		return c.Last()
	}
	skippedCurrent := false
	c.snap.DescendLessOrEqual(btreeItem{key: c.cur}, func(it btree.Item) bool {
		ci := it.(btreeItem)
		if !skippedCurrent && bytes.Equal(ci.key, c.cur) {
			skippedCurrent = true
			return true
		}
		key, value, ok = ci.key, ci.value, true
		return false
	})
	c.setCurrent(key, ok)
	return
}

func (c *btreeCursor) First() (key, value []byte, ok bool) {
	it := c.snap.Min()
	if it == nil {
		return nil, nil, false
	}
	ci := it.(btreeItem)
	c.setCurrent(ci.key, true)
	return ci.key, ci.value, true
}

func (c *btreeCursor) Last() (key, value []byte, ok bool) {
	it := c.snap.Max()
	if it == nil {
		return nil, nil, false
	}
	ci := it.(btreeItem)
	c.setCurrent(ci.key, true)
	return ci.key, ci.value, true
}

func (c *btreeCursor) setCurrent(key []byte, ok bool) {
	if ok {
		c.cur = append([]byte(nil), key...)
		c.curSet = true
	} else {
		c.curSet = false
	}
}

func (c *btreeCursor) Close() error {
	c.closed = true
	c.snap = nil
	return nil
}
