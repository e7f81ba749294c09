package globaldb

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sync/atomic"
)

// This file is the Cursor Handle of §4.7: mode, getdata/format flags, the
// previous/next key buffers, and the open backend cursor. It drives the
// three traversals of the Cursor State Machine (cursor_sm.go) and formats
// each yield in one of the two shapes of §6.

// CursorMode selects which of the three traversals (§4.3) a Cursor Handle
// runs, chosen from QueryOptions at construction.
type CursorMode int

const (
	// ModeSibling enumerates ordered sibling values at one subscript
	// position (the default: neither Multilevel nor GlobalDirectory set).
	ModeSibling CursorMode = iota
	// ModeQuery walks an entire subtree in composite-key order.
	ModeQuery
	// ModeNames enumerates the distinct top-level global names.
	ModeNames
)

// CursorFormat selects how Next/Previous render a yielded record, per §6.
type CursorFormat int

const (
	// FormatStructured yields a CursorItem for the caller to inspect
	// directly (the Go-native shape; no host binding to serialize for).
	FormatStructured CursorFormat = iota
	// FormatURL renders the item as percent-encoded k=v&k=v text, matching
	// the source's field-at-a-time serialization recovered from
	// original_source/ (SPEC_FULL.md §6).
	FormatURL
)

// QueryDescriptor is the descriptor argument of `mglobalquery` (§6):
// Key's last element is the seed/start subscript (an empty string subscript
// means "start of range"); every element before it anchors the traversal's
// fixed prefix.
type QueryDescriptor struct {
	Global string
	Key    []Subscript
}

// QueryOptions is the options argument of `mglobalquery` (§6).
type QueryOptions struct {
	GetData         bool
	Multilevel      bool
	GlobalDirectory bool
	Format          CursorFormat
}

func (o QueryOptions) mode() CursorMode {
	switch {
	case o.GlobalDirectory:
		return ModeNames
	case o.Multilevel:
		return ModeQuery
	default:
		return ModeSibling
	}
}

// CursorItem is one yielded record. Exactly one of Name (Mode NAMES) or Key
// (Mode SIBLING/QUERY) is populated.
type CursorItem struct {
	Name    string
	Key     []Subscript
	Data    []byte
	HasData bool
}

// Cursor is the Cursor Handle of §4.7. It exclusively owns one live backend
// cursor (and, on Backend B, the shared read transaction that cursor holds
// open) until Close or Reset.
type Cursor struct {
	conn *Conn

	mode    CursorMode
	global  string
	getData bool
	format  CursorFormat

	fixedSubs      []Subscript
	initialSeed    Subscript
	hasInitialSeed bool

	cur  backendCursor
	open bool

	// previous/next DBXQR-style state: the most recently yielded position,
	// from which the next Next/Previous call resumes (§4.3 "swaps its
	// previous/next internal key buffers").
	hasCur   bool
	lastSub  Subscript // ModeSibling
	lastKey  []byte    // ModeQuery
	lastName string    // ModeNames
}

// MGlobalQuery constructs a Cursor Handle bound to descriptor and opts, per
// the `mglobalquery` operation of §6.
func (c *Conn) MGlobalQuery(desc QueryDescriptor, opts QueryOptions) (*Cursor, error) {
	if c.keyType() != KeyM {
		return nil, c.raise(badArgument("mglobalquery", "requires key_type m"))
	}
	cur := &Cursor{
		conn:    c,
		mode:    opts.mode(),
		global:  desc.Global,
		getData: opts.GetData,
		format:  opts.Format,
	}
	cur.setDescriptor(desc)
	if err := cur.openBackendCursor(); err != nil {
		return nil, c.raise(err)
	}
	return cur, nil
}

func (cur *Cursor) setDescriptor(desc QueryDescriptor) {
	cur.global = desc.Global
	cur.fixedSubs = nil
	cur.hasInitialSeed = false
	if len(desc.Key) == 0 {
		return
	}
	cur.fixedSubs = desc.Key[:len(desc.Key)-1]
	seed := desc.Key[len(desc.Key)-1]
	cur.initialSeed = seed
	cur.hasInitialSeed = !(seed.Kind == SubString && seed.Text == "")
}

func (cur *Cursor) openBackendCursor() error {
	return cur.conn.withLock(func() error {
		bc, err := cur.conn.backend().OpenCursor(context.Background())
		if err != nil {
			return err
		}
		cur.cur = bc
		cur.open = true
		cur.hasCur = false
		atomic.AddInt64(cursorsOpenGauge(cur.conn.backend().Kind()), 1)
		return nil
	})
}

// Reset closes the current backend cursor and reopens a fresh one against a
// new descriptor, per §4.7.
func (cur *Cursor) Reset(desc QueryDescriptor) error {
	if err := cur.closeLocked(); err != nil {
		return cur.conn.raise(err)
	}
	cur.setDescriptor(desc)
	return cur.conn.raise(cur.openBackendCursor())
}

// Close releases the backend cursor (and, on Backend B, its read
// transaction once no other cursor holds it open), per §4.7. Idempotent.
func (cur *Cursor) Close() error {
	return cur.conn.raise(cur.closeLocked())
}

func (cur *Cursor) closeLocked() error {
	if !cur.open {
		return nil
	}
	return cur.conn.withLock(func() error {
		err := cur.cur.Close()
		cur.cur = nil
		cur.open = false
		atomic.AddInt64(cursorsOpenGauge(cur.conn.backend().Kind()), -1)
		return err
	})
}

// Next implements the `next` cursor operation of §6.
func (cur *Cursor) Next(ctx context.Context) (*CursorItem, error) {
	return cur.step(ctx, true)
}

// Previous implements the `previous` cursor operation of §6.
func (cur *Cursor) Previous(ctx context.Context) (*CursorItem, error) {
	return cur.step(ctx, false)
}

func (cur *Cursor) step(ctx context.Context, forward bool) (*CursorItem, error) {
	if !cur.open {
		return nil, cur.conn.raise(notOpen("next"))
	}
	var item *CursorItem
	err := cur.conn.withLock(func() error {
		var err error
		switch cur.mode {
		case ModeSibling:
			item, err = cur.stepSibling(forward)
		case ModeQuery:
			item, err = cur.stepQuery(ctx, forward)
		case ModeNames:
			item, err = cur.stepNames(forward)
		}
		return err
	})
	if err != nil {
		return nil, cur.conn.raise(err)
	}
	return item, nil
}

func (cur *Cursor) stepSibling(forward bool) (*CursorItem, error) {
	fixedKey, descs, err := cur.conn.encodeKey(cur.global, cur.fixedSubs)
	if err != nil {
		return nil, err
	}
	defer putKeyBuf(fixedKey)
	defer putArgDescs(descs)

	seed, hasSeed := cur.initialSeed, cur.hasInitialSeed
	if cur.hasCur {
		seed, hasSeed = cur.lastSub, true
	}

	readTotal.Inc()
	result, ok, err := siblingStep(cur.cur, fixedKey, seed, hasSeed, forward)
	if err != nil || !ok {
		return nil, err
	}
	cur.lastSub, cur.hasCur = result, true

	item := &CursorItem{Key: []Subscript{result}}
	if cur.getData {
		full := append(append([]Subscript(nil), cur.fixedSubs...), result)
		key, d2, err := cur.conn.encodeKey(cur.global, full)
		if err != nil {
			return nil, err
		}
		defer putKeyBuf(key)
		defer putArgDescs(d2)
		v, found, err := cur.conn.backend().Get(context.Background(), key)
		if err != nil {
			return nil, err
		}
		if found {
			item.Data, item.HasData = append([]byte(nil), v...), true
		}
	}
	return item, nil
}

func (cur *Cursor) stepQuery(ctx context.Context, forward bool) (*CursorItem, error) {
	fixedKey, descs, err := cur.conn.encodeKey(cur.global, cur.fixedSubs)
	if err != nil {
		return nil, err
	}
	defer putKeyBuf(fixedKey)
	defer putArgDescs(descs)

	key, value, ok, err := cur.queryCandidate(fixedKey, forward)
	if err != nil || !ok {
		return nil, err
	}
	cur.lastKey, cur.hasCur = append(cur.lastKey[:0], key...), true

	_, subs, err := DecodeKey(key)
	if err != nil {
		return nil, err
	}
	item := &CursorItem{Key: subs[len(cur.fixedSubs):]}
	if cur.getData {
		item.Data, item.HasData = append([]byte(nil), value...), true
	}
	return item, nil
}

// queryCandidate picks the right queryStep/queryFirst call for the current
// traversal position: the very first call with no seed searches the whole
// fixedKey subtree; every other call resumes from a concrete previous key.
func (cur *Cursor) queryCandidate(fixedKey []byte, forward bool) (key, value []byte, ok bool, err error) {
	readTotal.Inc()
	if cur.hasCur {
		return queryStep(cur.cur, fixedKey, cur.lastKey, forward)
	}
	if !cur.hasInitialSeed {
		return queryFirst(cur.cur, fixedKey, forward)
	}
	startKey, d2, err := cur.conn.encodeKey(cur.global, append(append([]Subscript(nil), cur.fixedSubs...), cur.initialSeed))
	if err != nil {
		return nil, nil, false, err
	}
	defer putKeyBuf(startKey)
	defer putArgDescs(d2)
	return queryStep(cur.cur, fixedKey, startKey, forward)
}

func (cur *Cursor) stepNames(forward bool) (*CursorItem, error) {
	readTotal.Inc()
	name, ok, err := namesStep(cur.cur, cur.lastName, cur.hasCur, forward)
	if err != nil || !ok {
		return nil, err
	}
	cur.lastName, cur.hasCur = name, true
	return &CursorItem{Name: name}, nil
}

// Format renders item according to the Cursor Handle's format flag, per §6.
func (cur *Cursor) Format(item *CursorItem) string {
	if cur.format == FormatURL {
		return item.MarshalURL()
	}
	return fmt.Sprintf("%v", item.MarshalStructured())
}

// MarshalStructured renders item as the structured `{key, data}` shape of
// §6: key is a bare value for a single-subscript yield (Mode SIBLING, Mode
// NAMES) or an ordered slice for a multi-subscript yield (Mode QUERY).
func (it *CursorItem) MarshalStructured() map[string]any {
	out := map[string]any{"key": it.keyValue()}
	if it.HasData {
		out["data"] = string(it.Data)
	}
	return out
}

// MarshalURL renders item as percent-encoded `k=v&k=v` text in declaration
// order (not sorted), matching the source's field-at-a-time serialization
// recovered from original_source/ (SPEC_FULL.md §6).
func (it *CursorItem) MarshalURL() string {
	var buf bytes.Buffer
	write := func(k, v string) {
		if buf.Len() > 0 {
			buf.WriteByte('&')
		}
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(url.QueryEscape(v))
	}
	if it.Name != "" || len(it.Key) != 1 {
		switch {
		case it.Name != "":
			write("key", it.Name)
		default:
			for i, s := range it.Key {
				write(fmt.Sprintf("key%d", i+1), s.Text)
			}
		}
	} else {
		write("key", it.Key[0].Text)
	}
	if it.HasData {
		write("data", string(it.Data))
	}
	return buf.String()
}

func (it *CursorItem) keyValue() any {
	switch {
	case it.Name != "":
		return it.Name
	case len(it.Key) == 1:
		return it.Key[0].Text
	default:
		vals := make([]string, len(it.Key))
		for i, s := range it.Key {
			vals[i] = s.Text
		}
		return vals
	}
}
