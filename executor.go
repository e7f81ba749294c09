package globaldb

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
)

// This file is the Request Executor of §4.4: per-call scratch, composite
// key assembly through the Codec, the instance-mutex critical section, and
// error translation. Conn's unexported methods here are the implementation
// behind every Global Handle operation; Global (global.go) only prepends
// its fixed prefix and forwards.

const defaultMaxValueLen = 32 * 1024

// argDesc pairs one marshalled subscript with its cumulative byte offset
// into the assembled composite key, giving the "truncate to k-prefix"
// operation of §4.4 an O(1) slice instead of a re-encode.
type argDesc struct {
	sub    Subscript
	offset int
}

// Subs builds a subscript tuple from heterogeneous Go values — the
// "integer, byte-string" argument marshalling of §4.4 — auto-detecting
// stringified numbers the same way Str does.
func Subs(vals ...any) []Subscript {
	out := make([]Subscript, len(vals))
	for i, v := range vals {
		switch x := v.(type) {
		case Subscript:
			out[i] = x
		case int:
			out[i] = Int(int64(x))
		case int64:
			out[i] = Int(x)
		case uint64:
			out[i] = Int(int64(x))
		case float64:
			out[i] = Float(x)
		case string:
			out[i] = Str(x)
		case []byte:
			out[i] = Str(string(x))
		default:
			panic(fmt.Sprintf("globaldb: unsupported subscript argument type %T", v))
		}
	}
	return out
}

// encodeKey draws a pooled buffer and assembles the physical key for
// name+subs per the Connection's key-type mode, returning the per-slot
// cumulative-size descriptors alongside it. Callers must putKeyBuf(key)
// when done.
func (c *Conn) encodeKey(name string, subs []Subscript) ([]byte, []argDesc, error) {
	switch c.keyType() {
	case KeyInt:
		return encodeIntKey(subs)
	case KeyString:
		return encodeStrKey(subs)
	}
	buf := getKeyBuf()
	key, offsets, err := EncodeKey(buf, name, subs)
	if err != nil {
		putKeyBuf(buf)
		if errors.Is(err, ErrKeyTooLong) {
			err = newErr(KindBadArgument, "encode", err, "key exceeds the %d-byte limit", maxCompositeKeyLen)
		}
		return nil, nil, err
	}
	descs := getArgDescs()
	for i, sub := range subs {
		descs = append(descs, argDesc{sub: sub, offset: offsets[i+1]})
	}
	return key, descs, nil
}

// encodeIntKey packs the single 32-bit key of an integer-mode store in
// platform byte order, per §4.1 ("acceptable because integer-mode stores
// never mix with M mode").
func encodeIntKey(subs []Subscript) ([]byte, []argDesc, error) {
	if len(subs) != 1 {
		return nil, nil, badArgument("encode", "integer key type takes exactly one subscript, got %d", len(subs))
	}
	n, err := strconv.ParseInt(subs[0].Text, 10, 32)
	if err != nil {
		return nil, nil, badArgument("encode", "integer key %q does not parse as a 32-bit integer", subs[0].Text)
	}
	buf := getKeyBuf()
	off, buf := grow(buf, 4)
	binary.NativeEndian.PutUint32(buf[off:], uint32(n))
	descs := append(getArgDescs(), argDesc{sub: subs[0], offset: len(buf)})
	return buf, descs, nil
}

// encodeStrKey passes the single opaque byte-string key of a string-mode
// store through verbatim, per §4.1.
func encodeStrKey(subs []Subscript) ([]byte, []argDesc, error) {
	if len(subs) != 1 {
		return nil, nil, badArgument("encode", "string key type takes exactly one subscript, got %d", len(subs))
	}
	buf := appendRaw(getKeyBuf(), []byte(subs[0].Text))
	descs := append(getArgDescs(), argDesc{sub: subs[0], offset: len(buf)})
	return buf, descs, nil
}

func (c *Conn) maxValueLen() int {
	if c.opts.MaxValueLen > 0 {
		return c.opts.MaxValueLen
	}
	return defaultMaxValueLen
}

// get implements the `get` operation of §6: not-found is translated to an
// empty value, never surfaced as an error.
func (c *Conn) get(ctx context.Context, name string, subs []Subscript) ([]byte, error) {
	c.entry("get", name, subs)
	var result []byte
	err := c.withLock(func() error {
		key, descs, err := c.encodeKey(name, subs)
		if err != nil {
			return err
		}
		defer putKeyBuf(key)
		defer putArgDescs(descs)

		readTotal.Inc()
		v, found, err := c.backend().Get(ctx, key)
		if err != nil {
			return err
		}
		c.transmit("get", hexstr(key), hexstr(v))
		if found {
			out := make([]byte, len(v))
			copy(out, v)
			result = out
		}
		return nil
	})
	return result, c.fail("get", err)
}

// set implements the `set` operation of §6.
func (c *Conn) set(ctx context.Context, name string, subs []Subscript, value []byte) error {
	c.entry("set", name, subs)
	if len(value) > c.maxValueLen() {
		return c.fail("set", badArgument("set", "value of %d bytes exceeds the %d-byte maximum", len(value), c.maxValueLen()))
	}
	err := c.withLock(func() error {
		key, descs, err := c.encodeKey(name, subs)
		if err != nil {
			return err
		}
		defer putKeyBuf(key)
		defer putArgDescs(descs)

		writeTotal.Inc()
		c.transmit("set", hexstr(key), hexstr(value))
		return c.backend().Put(ctx, key, value)
	})
	return c.fail("set", err)
}

// defined implements the `defined` operation of §6: the four-way
// data/children classification.
func (c *Conn) defined(ctx context.Context, name string, subs []Subscript) (int, error) {
	c.entry("defined", name, subs)
	var result int
	err := c.withLock(func() error {
		key, descs, err := c.encodeKey(name, subs)
		if err != nil {
			return err
		}
		defer putKeyBuf(key)
		defer putArgDescs(descs)

		readTotal.Inc()
		_, hasData, err := c.backend().Get(ctx, key)
		if err != nil {
			return err
		}

		// Only M mode has a hierarchy to look under.
		var hasChildren bool
		if c.keyType() == KeyM {
			cur, err := c.backend().OpenCursor(ctx)
			if err != nil {
				return err
			}
			defer cur.Close()

			// Children continue with key + 0x00; a prefix sibling like
			// "alpha2" after "alpha" shares key's bytes but not the probe's.
			probe := append(append([]byte(nil), key...), escape)
			childKey, _, found := cur.SeekGE(probe)
			hasChildren = found && bytes.HasPrefix(childKey, probe)
		}

		switch {
		case !hasData && !hasChildren:
			result = 0
		case hasData && !hasChildren:
			result = 1
		case !hasData && hasChildren:
			result = 10
		default:
			result = 11
		}
		return nil
	})
	return result, c.fail("defined", err)
}

// delete implements the `delete` operation of §6: deletes the exact key
// and, in M mode, its entire subtree in one range delete bounded by
// key + 0x01 (descendants all continue with key + 0x00). Non-M modes have
// no hierarchy, so only the exact key goes.
func (c *Conn) delete(ctx context.Context, name string, subs []Subscript) error {
	c.entry("delete", name, subs)
	err := c.withLock(func() error {
		key, descs, err := c.encodeKey(name, subs)
		if err != nil {
			return err
		}
		defer putKeyBuf(key)
		defer putArgDescs(descs)

		writeTotal.Inc()
		if c.keyType() != KeyM {
			return c.backend().Delete(ctx, key)
		}
		// A descendant's key is key + 0x00 + slot, so [key, key+0x01) covers
		// the node and its whole subtree. A sibling whose encoding merely
		// extends key's bytes (e.g. "alpha2" under a deleted "alpha")
		// continues with a byte >= 0x01 and stays out of the range.
		upper := append(append([]byte(nil), key...), 0x01)
		return c.backend().DeleteRange(ctx, key, upper)
	})
	return c.fail("delete", err)
}

// siblingOne implements the top-level `next`/`previous` operation of §6: a
// one-shot Mode SIBLING step (§4.3) with no persistent cursor — the last
// subscript in subs is the seed, an empty string seed meaning "start of
// range".
func (c *Conn) siblingOne(ctx context.Context, name string, subs []Subscript, forward bool) (Subscript, bool, error) {
	op := "next"
	if !forward {
		op = "previous"
	}
	c.entry(op, name, subs)
	if c.keyType() != KeyM {
		return Subscript{}, false, c.fail(op, badArgument(op, "requires key_type m"))
	}
	if len(subs) == 0 {
		return Subscript{}, false, c.fail(op, badArgument(op, "requires at least one subscript"))
	}
	prefixSubs := subs[:len(subs)-1]
	seed := subs[len(subs)-1]
	hasSeed := !(seed.Kind == SubString && seed.Text == "")

	var result Subscript
	var ok bool
	err := c.withLock(func() error {
		prefixKey, descs, err := c.encodeKey(name, prefixSubs)
		if err != nil {
			return err
		}
		defer putKeyBuf(prefixKey)
		defer putArgDescs(descs)

		cur, err := c.backend().OpenCursor(ctx)
		if err != nil {
			return err
		}
		defer cur.Close()

		readTotal.Inc()
		result, ok, err = siblingStep(cur, prefixKey, seed, hasSeed, forward)
		return err
	})
	return result, ok, c.fail(op, err)
}

// increment implements the `increment` operation of §6: atomically adds
// delta to the current numeric value (0 if undefined), storing and
// returning the new value as canonical decimal text.
func (c *Conn) increment(ctx context.Context, name string, subs []Subscript, delta Subscript) (string, error) {
	c.entry("increment", name, subs, delta)
	var result string
	err := c.withLock(func() error {
		key, descs, err := c.encodeKey(name, subs)
		if err != nil {
			return err
		}
		defer putKeyBuf(key)
		defer putArgDescs(descs)

		readTotal.Inc()
		cur, found, err := c.backend().Get(ctx, key)
		if err != nil {
			return err
		}
		curText := "0"
		if found {
			curText = string(cur)
		}
		curNeg, curIP, curFP, err := parseDecimalParts(curText)
		if err != nil {
			return badArgument("increment", "existing value %q is not numeric", curText)
		}
		delNeg, delIP, delFP, err := parseDecimalParts(delta.Text)
		if err != nil {
			return err
		}
		sum := signedFixed(curNeg, curIP, curFP) + signedFixed(delNeg, delIP, delFP)
		neg := sum < 0
		if neg {
			sum = -sum
		}
		ip := uint64(sum) / fracScale
		fp := uint32(uint64(sum) % fracScale)
		result = formatDecimalParts(neg, ip, fp)

		writeTotal.Inc()
		return c.backend().Put(ctx, key, []byte(result))
	})
	return result, c.fail("increment", err)
}

// lock/unlock implement §6's advisory lock operations. Per Design Notes §9
// ("Open question: lock/unlock"), the source's own lock/unlock paths always
// return success without consulting the backend; we carry that behavior
// forward unchanged rather than invent blocking semantics.
func (c *Conn) lock(_ context.Context, _ string, _ []Subscript, _ int) (bool, error) {
	return true, nil
}

func (c *Conn) unlock(_ context.Context, _ string, _ []Subscript) (bool, error) {
	return true, nil
}

// merge implements the SUPPLEMENTED `merge` operation (SPEC_FULL.md,
// recovered from mg-global.cpp): copies src's entire subtree onto dst's,
// splicing each leaf's encoded suffix directly onto the destination prefix
// rather than decoding and re-encoding it.
func (c *Conn) merge(ctx context.Context, dstName string, dstSubs []Subscript, srcName string, srcSubs []Subscript) error {
	c.entry("merge", dstName, dstSubs, srcName, srcSubs)
	if c.keyType() != KeyM {
		return c.fail("merge", badArgument("merge", "requires key_type m"))
	}
	err := c.withLock(func() error {
		srcKey, srcDescs, err := c.encodeKey(srcName, srcSubs)
		if err != nil {
			return err
		}
		defer putKeyBuf(srcKey)
		defer putArgDescs(srcDescs)

		dstKey, dstDescs, err := c.encodeKey(dstName, dstSubs)
		if err != nil {
			return err
		}
		defer putKeyBuf(dstKey)
		defer putArgDescs(dstDescs)

		// Same descendant scoping as delete: the source node itself plus
		// every srcKey + 0x00 continuation, never a prefix sibling.
		upper := append(append([]byte(nil), srcKey...), 0x01)

		cur, err := c.backend().OpenCursor(ctx)
		if err != nil {
			return err
		}
		defer cur.Close()

		// Collect the source range and release the cursor before writing:
		// on Backend B the cursor's read transaction must not stay open
		// across the write transactions below.
		var keys, vals [][]byte
		k, v, found := cur.SeekGE(srcKey)
		for found && bytes.Compare(k, upper) < 0 {
			keys, vals = append(keys, k), append(vals, v)
			k, v, found = cur.Next()
		}
		if err := cur.Close(); err != nil {
			return err
		}

		for i, k := range keys {
			suffix := k[len(srcKey):]
			newKey := dstKey
			if len(suffix) > 0 {
				newKey = append(append([]byte(nil), dstKey...), suffix...)
			}
			if err := c.backend().Put(ctx, newKey, vals[i]); err != nil {
				return err
			}
			writeTotal.Inc()
		}
		return nil
	})
	return c.raise(err)
}
