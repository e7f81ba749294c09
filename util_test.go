package globaldb

import (
	"log/slog"
	"testing"
)

func TestIncDec(t *testing.T) {
	b := []byte{0x00, 0x00}
	if !inc(b) || b[0] != 0x00 || b[1] != 0x01 {
		t.Fatalf("inc = %x, wanted 0001", b)
	}
	if !dec(b) || b[0] != 0x00 || b[1] != 0x00 {
		t.Fatalf("dec = %x, wanted 0000", b)
	}
	if dec([]byte{0x00}) {
		t.Fatalf("dec(00) = true, wanted false")
	}
	if inc([]byte{0xFF}) {
		t.Fatalf("inc(FF) = true, wanted false")
	}

	b = []byte{0x61, 0xFF}
	if !inc(b) || b[0] != 0x62 || b[1] != 0x00 {
		t.Fatalf("inc(61FF) = %x, wanted 6200", b)
	}
}

func TestHexHelpers(t *testing.T) {
	if got := hexstr(nil); got != "<nil>" {
		t.Fatalf("hexstr(nil) = %q, wanted <nil>", got)
	}
	if got := hexstr([]byte{}); got != "<empty>" {
		t.Fatalf("hexstr(empty) = %q, wanted <empty>", got)
	}
	if got := hexstr([]byte{0xAA, 0xBB}); got != "aabb" {
		t.Fatalf("hexstr = %q, wanted aabb", got)
	}
	a := hexAttr("k", []byte{0xAA})
	if a.Key != "k" || a.Value.Kind() != slog.KindString {
		t.Fatalf("hexAttr returned unexpected attr: %+v", a)
	}
}
