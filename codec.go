package globaldb

import (
	"strconv"
	"strings"
)

// Lead bytes for each composite-key slot, per §4.1. Two bytes so that a
// slot boundary can never collide with a single escaped zero byte inside a
// string payload in the common case.
const (
	leadNegative = 0x01 // preceded by 0x00: numeric, negative
	leadNonNeg   = 0x02 // preceded by 0x00: numeric, non-negative
	leadString   = 0x03 // preceded by 0x00: string (incl. the name slot)
	escape       = 0x00
)

// advanceMarker is appended to a subscript slot to build the probe used by
// Sibling-mode seeks: it sorts strictly after any encoding of that same
// subscript value, so a seek-GE against it skips the current record in a
// single step (§4.3).
var advanceMarker = []byte{escape, 0xFF}

// zeroMarker is the "numeric zero" probe appended after a (k-1)-prefix when
// a Sibling-mode seek starts from an empty seed: it sorts below any real
// lead byte (negative, non-negative or string), so seek-GE lands on the
// first legal subscript at position k.
var zeroMarker = []byte{escape, escape}

const fracDigits = 9
const fracScale = 1_000_000_000 // 10^fracDigits

// maxSubscriptNumLen bounds how long a stringified number may be before it
// is re-encoded as numeric, per §4.1.
const maxSubscriptNumLen = 32

// SubKind identifies the logical type of a Subscript.
type SubKind uint8

const (
	SubString SubKind = iota
	SubNumber
)

// Subscript is one element of a composite key's subscript tuple. Construct
// with Str or Int; Str auto-detects stringified numbers per §4.1.
type Subscript struct {
	Kind SubKind
	Text string // canonical text: raw string for SubString, canonical decimal for SubNumber
}

// Str builds a string subscript, promoting it to SubNumber if it parses
// losslessly as a signed decimal of at most maxSubscriptNumLen characters
// whose integer part fits the codec's 32-bit payload. Anything the numeric
// encoding cannot reproduce exactly stays a string.
func Str(s string) Subscript {
	if len(s) > 0 && len(s) <= maxSubscriptNumLen && isCanonicalDecimalText(s) {
		if _, ip, _, err := parseDecimalParts(s); err == nil && ip <= 0xFFFFFFFF {
			return Subscript{Kind: SubNumber, Text: s}
		}
	}
	return Subscript{Kind: SubString, Text: s}
}

// Int builds a numeric subscript directly from an integer.
func Int(v int64) Subscript {
	return Subscript{Kind: SubNumber, Text: strconv.FormatInt(v, 10)}
}

// Float builds a numeric subscript from a float64, formatted with up to
// fracDigits decimal places.
func Float(v float64) Subscript {
	return Subscript{Kind: SubNumber, Text: formatFixedText(v)}
}

func (s Subscript) String() string { return s.Text }

// isCanonicalDecimalText reports whether s is exactly the canonical textual
// form of a signed decimal number: optional leading '-', no leading zeros
// (other than a lone "0" integer part), at most one '.', at least one digit
// on each side of the point if present.
func isCanonicalDecimalText(s string) bool {
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	if s == "" {
		return false
	}
	intPart, fracPart, hasDot := strings.Cut(s, ".")
	if strings.Contains(fracPart, ".") {
		return false
	}
	if intPart == "" || !isDigits(intPart) {
		return false
	}
	if intPart != "0" && intPart[0] == '0' {
		return false
	}
	if hasDot {
		if fracPart == "" || !isDigits(fracPart) {
			return false
		}
		// A trailing zero or an over-long fraction would not survive the
		// 9-digit payload round trip, so such text stays a string.
		if len(fracPart) > fracDigits || fracPart[len(fracPart)-1] == '0' {
			return false
		}
	}
	if neg && intPart == "0" && fracPart == "" {
		return false // "-0" is not canonical; "0" is
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// parseDecimalParts splits a canonical (or near-canonical) decimal string
// into sign, integer part and truncated/padded 9-digit fraction.
func parseDecimalParts(s string) (neg bool, ip uint64, fp uint32, err error) {
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" {
		intPart = "0"
	}
	ip, err = strconv.ParseUint(intPart, 10, 64)
	if err != nil {
		return false, 0, 0, dataErrf([]byte(s), 0, err, "invalid decimal integer part")
	}
	if len(fracPart) > fracDigits {
		fracPart = fracPart[:fracDigits]
	} else {
		fracPart = fracPart + strings.Repeat("0", fracDigits-len(fracPart))
	}
	fp64, err := strconv.ParseUint(fracPart, 10, 32)
	if err != nil {
		return false, 0, 0, dataErrf([]byte(s), 0, err, "invalid decimal fraction part")
	}
	return neg, ip, uint32(fp64), nil
}

func formatDecimalParts(neg bool, ip uint64, fp uint32) string {
	var buf strings.Builder
	if neg && (ip != 0 || fp != 0) {
		buf.WriteByte('-')
	}
	buf.WriteString(strconv.FormatUint(ip, 10))
	if fp != 0 {
		frac := strconv.FormatUint(uint64(fp), 10)
		frac = strings.Repeat("0", fracDigits-len(frac)) + frac
		frac = strings.TrimRight(frac, "0")
		buf.WriteByte('.')
		buf.WriteString(frac)
	}
	return buf.String()
}

func formatFixedText(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	scaled := int64(v*fracScale + 0.5)
	ip := uint64(scaled) / fracScale
	fp := uint32(uint64(scaled) % fracScale)
	return formatDecimalParts(neg, ip, fp)
}

// --- composite key encode/decode (§4.1) ---

// stripLeadingCaret removes a single leading '^' from a global name before
// encoding, per §4.1.
func stripLeadingCaret(name string) string {
	if strings.HasPrefix(name, "^") {
		return name[1:]
	}
	return name
}

// appendStringSlot appends a string-kind slot (lead 0x00 0x03 + raw bytes).
func appendStringSlot(buf []byte, s string) []byte {
	buf = append(buf, escape, leadString)
	buf = appendRaw(buf, []byte(s))
	return buf
}

// appendNumberSlot appends a numeric-kind slot per §4.1: 2-byte lead, then
// an 8-byte payload (4-byte big-endian integer part, 4-byte big-endian
// fraction part), ones'-complemented for negative values.
func appendNumberSlot(buf []byte, neg bool, ip uint64, fp uint32) []byte {
	if neg {
		buf = append(buf, escape, leadNegative)
	} else {
		buf = append(buf, escape, leadNonNeg)
	}
	ip32 := uint32(ip)
	if neg {
		ip32 = ^ip32
		fp = ^fp
	}
	buf = appendFixedUint32(buf, ip32)
	buf = appendFixedUint32(buf, fp)
	return buf
}

// appendSubscript appends one subscript's encoding to buf.
func appendSubscript(buf []byte, sub Subscript) ([]byte, error) {
	switch sub.Kind {
	case SubNumber:
		neg, ip, fp, err := parseDecimalParts(sub.Text)
		if err != nil {
			return nil, err
		}
		if ip > 0xFFFFFFFF {
			return nil, badArgument("encode", "numeric subscript %q out of range", sub.Text)
		}
		return appendNumberSlot(buf, neg, ip, fp), nil
	default:
		if len(sub.Text) > maxCompositeKeyLen {
			return nil, ErrKeyTooLong
		}
		return appendStringSlot(buf, sub.Text), nil
	}
}

// maxCompositeKeyLen bounds the byte length of the name, of a single string
// subscript, and of the whole encoded composite key; oversized inputs fail
// with ErrKeyTooLong per §4.1.
const maxCompositeKeyLen = 32 * 1024

// EncodeKey packs name + subs into a composite key, in M mode. It also
// returns, for each slot (name first, then one per subscript), the
// cumulative byte length of the key through that slot — enabling O(1)
// truncation to a k-subscript prefix (§4.4).
func EncodeKey(buf []byte, name string, subs []Subscript) (key []byte, offsets []int, err error) {
	name = stripLeadingCaret(name)
	if len(name) > maxCompositeKeyLen {
		return nil, nil, ErrKeyTooLong
	}
	buf = appendStringSlot(buf, name)
	offsets = make([]int, 0, len(subs)+1)
	offsets = append(offsets, len(buf))
	for _, sub := range subs {
		buf, err = appendSubscript(buf, sub)
		if err != nil {
			return nil, nil, err
		}
		if len(buf) > maxCompositeKeyLen {
			return nil, nil, ErrKeyTooLong
		}
		offsets = append(offsets, len(buf))
	}
	return buf, offsets, nil
}

// DecodeKey is the exact inverse of EncodeKey: it recovers the name and the
// subscript tuple from a composite key.
func DecodeKey(raw []byte) (name string, subs []Subscript, err error) {
	slots, err := decodeSlots(raw)
	if err != nil {
		return "", nil, err
	}
	if len(slots) == 0 {
		return "", nil, dataErrf(raw, 0, nil, "empty composite key")
	}
	name = slots[0].Text
	return name, slots[1:], nil
}

// decodeSlots scans raw left to right, recognizing each 2-byte lead and its
// payload, per §4.1.
func decodeSlots(raw []byte) ([]Subscript, error) {
	var out []Subscript
	i := 0
	for i < len(raw) {
		if raw[i] != escape || i+1 >= len(raw) {
			return nil, dataErrf(raw, i, nil, "malformed composite key: expected lead byte")
		}
		switch raw[i+1] {
		case leadNegative, leadNonNeg:
			if i+10 > len(raw) {
				return nil, dataErrf(raw, i, nil, "truncated numeric slot")
			}
			neg := raw[i+1] == leadNegative
			payload := raw[i+2 : i+10]
			ip32 := beUint32(payload[0:4])
			fp32 := beUint32(payload[4:8])
			if neg {
				ip32 = ^ip32
				fp32 = ^fp32
			}
			out = append(out, Subscript{Kind: SubNumber, Text: formatDecimalParts(neg, uint64(ip32), fp32)})
			i += 10
		case leadString:
			start := i + 2
			end := findSlotEnd(raw, start)
			out = append(out, Subscript{Kind: SubString, Text: string(raw[start:end])})
			i = end
		default:
			return nil, dataErrf(raw, i, nil, "malformed composite key: unknown lead %#x", raw[i+1])
		}
	}
	return out, nil
}

// findSlotEnd locates the end of a variable-length string slot: the next
// occurrence of a lead byte sequence, or the end of the key.
func findSlotEnd(raw []byte, start int) int {
	for j := start; j+1 < len(raw); j++ {
		if raw[j] == escape {
			switch raw[j+1] {
			case leadNegative, leadNonNeg, leadString:
				return j
			}
		}
	}
	return len(raw)
}

// decodeOneSlot decodes exactly one subscript slot from the front of raw,
// returning the subscript and the number of bytes consumed. Used by the
// Cursor State Machine (§4.3) to pull the k-th subscript off a key without
// decoding the whole remaining tail.
func decodeOneSlot(raw []byte) (sub Subscript, consumed int, err error) {
	if len(raw) < 2 || raw[0] != escape {
		return Subscript{}, 0, dataErrf(raw, 0, nil, "malformed composite key: expected lead byte")
	}
	switch raw[1] {
	case leadNegative, leadNonNeg:
		if len(raw) < 10 {
			return Subscript{}, 0, dataErrf(raw, 0, nil, "truncated numeric slot")
		}
		neg := raw[1] == leadNegative
		payload := raw[2:10]
		ip32 := beUint32(payload[0:4])
		fp32 := beUint32(payload[4:8])
		if neg {
			ip32 = ^ip32
			fp32 = ^fp32
		}
		return Subscript{Kind: SubNumber, Text: formatDecimalParts(neg, uint64(ip32), fp32)}, 10, nil
	case leadString:
		end := findSlotEnd(raw, 2)
		return Subscript{Kind: SubString, Text: string(raw[2:end])}, end, nil
	default:
		return Subscript{}, 0, dataErrf(raw, 0, nil, "malformed composite key: unknown lead %#x", raw[1])
	}
}

// encodeSubscriptBytes encodes a single subscript on its own, with no
// preceding slots. Used to build Cursor State Machine probe keys.
func encodeSubscriptBytes(sub Subscript) ([]byte, error) {
	return appendSubscript(nil, sub)
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// TruncateKey returns the prefix of key covering the first n subscripts
// (not counting the name slot), using offsets produced by EncodeKey.
func TruncateKey(key []byte, offsets []int, n int) []byte {
	if n >= len(offsets)-1 {
		return key
	}
	return key[:offsets[n]]
}

// CompareSubscripts reports whether a sorts before, equal to, or after b in
// M order: numeric subscripts sort before string subscripts; two numerics
// compare by signed value; two strings compare by natural byte order.
func CompareSubscripts(a, b Subscript) int {
	if a.Kind != b.Kind {
		if a.Kind == SubNumber {
			return -1
		}
		return 1
	}
	if a.Kind == SubString {
		return strings.Compare(a.Text, b.Text)
	}
	return compareNumericText(a.Text, b.Text)
}

func compareNumericText(a, b string) int {
	an, aip, afp, _ := parseDecimalParts(a)
	bn, bip, bfp, _ := parseDecimalParts(b)
	av := signedFixed(an, aip, afp)
	bv := signedFixed(bn, bip, bfp)
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}

func signedFixed(neg bool, ip uint64, fp uint32) int64 {
	v := int64(ip)*fracScale + int64(fp)
	if neg {
		return -v
	}
	return v
}
