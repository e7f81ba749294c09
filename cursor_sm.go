package globaldb

import "bytes"

// This file is the Cursor State Machine of §4.3: given only the primitive
// seek-GE / step-next / step-prev interface of backendCursor, it implements
// the three higher-level traversals (Sibling, Query, Names) with their tie
// breaks, fixed-prefix anchoring, current-key skipping and end-of-data
// detection. Every function here is backend-agnostic; CursorHandle and the
// top-level next/previous operation are the two callers.

// querySkipCeiling bounds the number of repeated equal-to-start collisions
// Mode QUERY will step through before declaring end-of-data, so a
// pathological chain of colliding keys can't hang the iterator (§4.3).
const querySkipCeiling = 5

// siblingStep implements Mode SIBLING (§4.3). prefixKey is the encoded
// (k-1)-prefix (name plus any fixed subscripts before position k); seed is
// the subscript currently at position k, or the zero Subscript with
// hasSeed=false if position k is empty. It returns the next (forward=true)
// or previous (forward=false) legal value for position k such that some
// key exists in the tree under prefixKey with that value there.
func siblingStep(cur backendCursor, prefixKey []byte, seed Subscript, hasSeed bool, forward bool) (next Subscript, ok bool, err error) {
	if forward {
		return siblingNext(cur, prefixKey, seed, hasSeed)
	}
	return siblingPrev(cur, prefixKey, seed, hasSeed)
}

func siblingNext(cur backendCursor, prefixKey []byte, seed Subscript, hasSeed bool) (Subscript, bool, error) {
	probe, err := siblingProbe(prefixKey, seed, hasSeed, false)
	if err != nil {
		return Subscript{}, false, err
	}

	kth, ok, err := siblingSeekDecode(cur, prefixKey, probe)
	if err != nil || !ok {
		return Subscript{}, false, err
	}

	if hasSeed && CompareSubscripts(kth, seed) == 0 {
		// Still inside seed's own value/subtree: the advanceMarker probe
		// skips past all of it in exactly one more hop (§4.3).
		probe, err = siblingProbe(prefixKey, seed, true, true)
		if err != nil {
			return Subscript{}, false, err
		}
		kth, ok, err = siblingSeekDecode(cur, prefixKey, probe)
		if err != nil || !ok {
			return Subscript{}, false, err
		}
	}
	return kth, true, nil
}

// siblingProbe builds the seek-GE probe for the forward direction: the
// prefix, optionally the seed's own encoding, optionally the advanceMarker
// that sorts past any continuation of that encoding.
func siblingProbe(prefixKey []byte, seed Subscript, hasSeed, advance bool) ([]byte, error) {
	probe := append([]byte(nil), prefixKey...)
	if !hasSeed {
		return append(probe, zeroMarker...), nil
	}
	seedBytes, err := encodeSubscriptBytes(seed)
	if err != nil {
		return nil, err
	}
	probe = append(probe, seedBytes...)
	if advance {
		probe = append(probe, advanceMarker...)
	}
	return probe, nil
}

// siblingSeekDecode runs seek-GE(probe), checks the result still shares
// prefixKey, and decodes its k-th subscript (the first slot past the
// prefix). !ok means end-of-data.
func siblingSeekDecode(cur backendCursor, prefixKey, probe []byte) (Subscript, bool, error) {
	key, _, found := cur.SeekGE(probe)
	if !found || !bytes.HasPrefix(key, prefixKey) {
		return Subscript{}, false, nil
	}
	rest := key[len(prefixKey):]
	if len(rest) == 0 {
		// Exactly the prefix's own stored value, no k-th subscript here.
		return Subscript{}, false, nil
	}
	kth, _, err := decodeOneSlot(rest)
	if err != nil {
		return Subscript{}, false, err
	}
	return kth, true, nil
}

func siblingPrev(cur backendCursor, prefixKey []byte, seed Subscript, hasSeed bool) (Subscript, bool, error) {
	var probe []byte
	if !hasSeed {
		probe = append(append([]byte(nil), prefixKey...), advanceMarker...)
	} else {
		seedBytes, err := encodeSubscriptBytes(seed)
		if err != nil {
			return Subscript{}, false, err
		}
		probe = append(append([]byte(nil), prefixKey...), seedBytes...)
	}

	_, _, found := cur.SeekGE(probe)
	var candKey []byte
	var candOK bool
	if found {
		candKey, _, candOK = cur.Prev()
	} else {
		// A missing next key past the prefix falls back to cursor-last,
		// per §4.3 (observed in the B-tree backend).
		candKey, _, candOK = cur.Last()
	}

	for guard := 0; guard < 1000; guard++ {
		if !candOK {
			return Subscript{}, false, nil
		}
		if !bytes.HasPrefix(candKey, prefixKey) {
			return Subscript{}, false, nil
		}
		rest := candKey[len(prefixKey):]
		if len(rest) == 0 {
			// The prefix's own stored value carries no k-th subscript;
			// keep stepping back past it.
			candKey, _, candOK = cur.Prev()
			continue
		}
		kth, _, err := decodeOneSlot(rest)
		if err != nil {
			return Subscript{}, false, err
		}
		return kth, true, nil
	}
	return Subscript{}, false, dataErrf(candKey, 0, nil, "sibling backward traversal did not converge")
}

// queryStep implements Mode QUERY (§4.3): given the anchor's fixed prefix
// (the first fixed_key_len bytes of the starting key) and the current
// start key, yield the next or previous key anywhere in that prefix's
// subtree. A returned key equal to start is skipped.
func queryStep(cur backendCursor, fixedPrefix, start []byte, forward bool) (key, value []byte, ok bool, err error) {
	var k, v []byte
	var found bool
	if forward {
		k, v, found = cur.SeekGE(start)
		if found && bytes.Equal(k, start) {
			k, v, found = cur.Next()
		}
	} else {
		k, v, found = cur.SeekGE(start)
		if found {
			k, v, found = cur.Prev()
		} else {
			k, v, found = cur.Last()
		}
	}

	for i := 0; i < querySkipCeiling && found && bytes.Equal(k, start); i++ {
		if forward {
			k, v, found = cur.Next()
		} else {
			k, v, found = cur.Prev()
		}
	}

	if !found || !bytes.HasPrefix(k, fixedPrefix) {
		return nil, nil, false, nil
	}
	return k, v, true, nil
}

// queryFirst finds the first (forward) or last (backward) key anywhere
// under fixedPrefix, for the very first step of a Mode QUERY traversal that
// started with no seed/start key (descriptor key's last element empty).
func queryFirst(cur backendCursor, fixedPrefix []byte, forward bool) (key, value []byte, ok bool, err error) {
	if forward {
		k, v, found := cur.SeekGE(fixedPrefix)
		if !found || !bytes.HasPrefix(k, fixedPrefix) {
			return nil, nil, false, nil
		}
		return k, v, true, nil
	}

	probe := append(append([]byte(nil), fixedPrefix...), advanceMarker...)
	_, _, found := cur.SeekGE(probe)
	var k, v []byte
	var ok2 bool
	if found {
		k, v, ok2 = cur.Prev()
	} else {
		k, v, ok2 = cur.Last()
	}
	if !ok2 || !bytes.HasPrefix(k, fixedPrefix) {
		return nil, nil, false, nil
	}
	return k, v, true, nil
}

// namesStep implements Mode NAMES (§4.3): enumerate the distinct top-level
// names in the store. after is the previously yielded name (if hasAfter),
// and the step advances past that name's entire subtree in one hop by
// appending advanceMarker to its encoding.
func namesStep(cur backendCursor, after string, hasAfter bool, forward bool) (name string, ok bool, err error) {
	if forward {
		return namesNext(cur, after, hasAfter)
	}
	return namesPrev(cur, after, hasAfter)
}

func namesNext(cur backendCursor, after string, hasAfter bool) (string, bool, error) {
	var probe []byte
	if !hasAfter {
		probe = []byte{escape, leadString}
	} else {
		nameBytes, err := encodeSubscriptBytes(Subscript{Kind: SubString, Text: stripLeadingCaret(after)})
		if err != nil {
			return "", false, err
		}
		probe = append(nameBytes, advanceMarker...)
	}
	key, _, found := cur.SeekGE(probe)
	if !found {
		return "", false, nil
	}
	return decodeNameSlot(key)
}

func namesPrev(cur backendCursor, after string, hasAfter bool) (string, bool, error) {
	var key []byte
	var found bool
	if !hasAfter {
		key, _, found = cur.Last()
	} else {
		nameBytes, err := encodeSubscriptBytes(Subscript{Kind: SubString, Text: stripLeadingCaret(after)})
		if err != nil {
			return "", false, err
		}
		if _, _, seekFound := cur.SeekGE(nameBytes); seekFound {
			key, _, found = cur.Prev()
		} else {
			key, _, found = cur.Last()
		}
	}
	if !found {
		return "", false, nil
	}
	return decodeNameSlot(key)
}

// decodeNameSlot decodes the first (name) slot off the front of a composite
// key. Every composite key starts with the name slot, so this always
// succeeds for a well-formed key.
func decodeNameSlot(key []byte) (string, bool, error) {
	sub, _, err := decodeOneSlot(key)
	if err != nil {
		return "", false, err
	}
	return sub.Text, true, nil
}
