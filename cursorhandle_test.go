package globaldb

import (
	"context"
	"strings"
	"testing"
)

func seedTree(t testing.TB, conn *Conn) {
	t.Helper()
	ctx := context.Background()
	g := conn.MGlobal("^X")
	ensure(g.Set(ctx, []byte("1"), Str("a"), Int(1)))
	ensure(g.Set(ctx, []byte("2"), Str("a"), Int(2)))
	ensure(g.Set(ctx, []byte("3"), Str("b"), Int(1)))
}

func drainKeys(t testing.TB, cur *Cursor, forward bool) [][]string {
	t.Helper()
	ctx := context.Background()
	var out [][]string
	for {
		var item *CursorItem
		var err error
		if forward {
			item, err = cur.Next(ctx)
		} else {
			item, err = cur.Previous(ctx)
		}
		ensure(err)
		if item == nil {
			return out
		}
		keys := make([]string, len(item.Key))
		for i, s := range item.Key {
			keys[i] = s.Text
		}
		out = append(out, keys)
	}
}

func TestCursorSiblingWithData(t *testing.T) {
	forEachBackend(t, func(t *testing.T, conn *Conn) {
		ctx := context.Background()
		ensure(conn.MGlobal("^X").Set(ctx, []byte("v1"), Str("alpha"), Int(1)))

		cur := must(conn.MGlobalQuery(
			QueryDescriptor{Global: "^X", Key: []Subscript{Str("alpha"), Str("")}},
			QueryOptions{GetData: true},
		))
		defer cur.Close()

		item := must(cur.Next(ctx))
		if item == nil {
			t.Fatalf("** first Next returned end-of-data")
		}
		deepEqual(t, item.Key, []Subscript{Int(1)})
		deepEqual(t, string(item.Data), "v1")
		deepEqual(t, item.HasData, true)

		// End-of-data, and it stays there.
		deepEqual(t, must(cur.Next(ctx)) == nil, true)
		deepEqual(t, must(cur.Next(ctx)) == nil, true)
	})
}

func TestCursorQueryForwardBackward(t *testing.T) {
	forEachBackend(t, func(t *testing.T, conn *Conn) {
		seedTree(t, conn)

		forwardDesc := QueryDescriptor{Global: "^X", Key: []Subscript{Str("")}}
		cur := must(conn.MGlobalQuery(forwardDesc, QueryOptions{Multilevel: true}))
		got := drainKeys(t, cur, true)
		ensure(cur.Close())
		deepEqual(t, got, [][]string{{"a", "1"}, {"a", "2"}, {"b", "1"}})

		cur = must(conn.MGlobalQuery(forwardDesc, QueryOptions{Multilevel: true}))
		got = drainKeys(t, cur, false)
		ensure(cur.Close())
		deepEqual(t, got, [][]string{{"b", "1"}, {"a", "2"}, {"a", "1"}})
	})
}

func TestCursorQueryAnchoredPrefix(t *testing.T) {
	conn := setup(t, BackendBtree)
	seedTree(t, conn)

	// Anchor at ("a"): the ("b",1) node is outside the subtree.
	cur := must(conn.MGlobalQuery(
		QueryDescriptor{Global: "^X", Key: []Subscript{Str("a"), Str("")}},
		QueryOptions{Multilevel: true},
	))
	defer cur.Close()
	deepEqual(t, drainKeys(t, cur, true), [][]string{{"1"}, {"2"}})
}

func TestCursorQueryWithData(t *testing.T) {
	conn := setup(t, BackendMmap)
	seedTree(t, conn)

	cur := must(conn.MGlobalQuery(
		QueryDescriptor{Global: "^X", Key: []Subscript{Str("")}},
		QueryOptions{Multilevel: true, GetData: true},
	))
	defer cur.Close()

	var data []string
	ctx := context.Background()
	for {
		item := must(cur.Next(ctx))
		if item == nil {
			break
		}
		deepEqual(t, item.HasData, true)
		data = append(data, string(item.Data))
	}
	deepEqual(t, data, []string{"1", "2", "3"})
}

func TestCursorNumericKeyOrder(t *testing.T) {
	forEachBackend(t, func(t *testing.T, conn *Conn) {
		ctx := context.Background()
		g := conn.MGlobal("^N")
		ensure(g.Set(ctx, []byte("neg"), Int(-1)))
		ensure(g.Set(ctx, []byte("zero"), Int(0)))
		ensure(g.Set(ctx, []byte("pos"), Int(1)))

		cur := must(conn.MGlobalQuery(
			QueryDescriptor{Global: "^N", Key: []Subscript{Str("")}},
			QueryOptions{Multilevel: true},
		))
		defer cur.Close()
		deepEqual(t, drainKeys(t, cur, true), [][]string{{"-1"}, {"0"}, {"1"}})
	})
}

func TestCursorNames(t *testing.T) {
	forEachBackend(t, func(t *testing.T, conn *Conn) {
		ctx := context.Background()
		for _, name := range []string{"^A", "^B", "^C"} {
			ensure(conn.MGlobal(name).Set(ctx, []byte("v"), Str("k")))
		}

		collect := func(forward bool) []string {
			cur := must(conn.MGlobalQuery(QueryDescriptor{}, QueryOptions{GlobalDirectory: true}))
			defer cur.Close()
			var names []string
			for {
				var item *CursorItem
				var err error
				if forward {
					item, err = cur.Next(ctx)
				} else {
					item, err = cur.Previous(ctx)
				}
				ensure(err)
				if item == nil {
					return names
				}
				names = append(names, item.Name)
			}
		}

		deepEqual(t, collect(true), []string{"A", "B", "C"})
		deepEqual(t, collect(false), []string{"C", "B", "A"})

		// Deleting all of ^B's data removes it from the directory.
		ensure(conn.MGlobal("^B").Delete(ctx))
		deepEqual(t, collect(true), []string{"A", "C"})
	})
}

func TestCursorReset(t *testing.T) {
	conn := setup(t, BackendBtree)
	seedTree(t, conn)

	cur := must(conn.MGlobalQuery(
		QueryDescriptor{Global: "^X", Key: []Subscript{Str("a"), Str("")}},
		QueryOptions{Multilevel: true},
	))
	defer cur.Close()
	deepEqual(t, drainKeys(t, cur, true), [][]string{{"1"}, {"2"}})

	// Reset installs a new anchor and starts over.
	ensure(cur.Reset(QueryDescriptor{Global: "^X", Key: []Subscript{Str("b"), Str("")}}))
	deepEqual(t, drainKeys(t, cur, true), [][]string{{"1"}})
}

func TestCursorLifetimeMmap(t *testing.T) {
	conn := setup(t, BackendMmap)
	seedTree(t, conn)
	b := conn.backend().(*boltBackend)

	cur := must(conn.MGlobalQuery(
		QueryDescriptor{Global: "^X", Key: []Subscript{Str("")}},
		QueryOptions{Multilevel: true},
	))

	// Opening the cursor opened exactly one shared read transaction.
	b.mu.Lock()
	users, tx := b.readTxUsers, b.readTx
	b.mu.Unlock()
	deepEqual(t, users, 1)
	if tx == nil {
		t.Fatalf("** no read transaction while a cursor is open")
	}

	ensure(cur.Close())
	b.mu.Lock()
	users, tx = b.readTxUsers, b.readTx
	b.mu.Unlock()
	deepEqual(t, users, 0)
	if tx != nil {
		t.Fatalf("** read transaction survived cursor close")
	}

	// A second close is a no-op.
	ensure(cur.Close())
	b.mu.Lock()
	users = b.readTxUsers
	b.mu.Unlock()
	deepEqual(t, users, 0)
}

func TestCursorNextAfterClose(t *testing.T) {
	conn := setup(t, BackendBtree)
	seedTree(t, conn)

	cur := must(conn.MGlobalQuery(
		QueryDescriptor{Global: "^X", Key: []Subscript{Str("")}},
		QueryOptions{Multilevel: true},
	))
	ensure(cur.Close())

	_, err := cur.Next(context.Background())
	wantKind(t, err, KindNotOpen)
}

func TestCursorAsyncNotSupported(t *testing.T) {
	conn := setup(t, BackendBtree)
	cur := must(conn.MGlobalQuery(
		QueryDescriptor{Global: "^X", Key: []Subscript{Str("")}},
		QueryOptions{Multilevel: true},
	))
	defer cur.Close()

	wantKind(t, cur.Async(), KindAsyncNotSupported)
}

func TestCursorItemFormats(t *testing.T) {
	single := &CursorItem{Key: []Subscript{Int(1)}, Data: []byte("v1"), HasData: true}
	deepEqual(t, single.MarshalURL(), "key=1&data=v1")
	deepEqual(t, single.MarshalStructured(), map[string]any{"key": "1", "data": "v1"})

	multi := &CursorItem{Key: []Subscript{Str("a"), Int(2)}}
	deepEqual(t, multi.MarshalURL(), "key1=a&key2=2")
	deepEqual(t, multi.MarshalStructured(), map[string]any{"key": []string{"a", "2"}})

	name := &CursorItem{Name: "X"}
	deepEqual(t, name.MarshalURL(), "key=X")

	// Reserved characters in field values are percent-encoded.
	hot := &CursorItem{Key: []Subscript{Str("a&b=c")}, Data: []byte("x=y&z"), HasData: true}
	got := hot.MarshalURL()
	if strings.Count(got, "&") != 1 || strings.Count(got, "=") != 2 {
		t.Fatalf("** unescaped separators in %q", got)
	}
	deepEqual(t, got, "key=a%26b%3Dc&data=x%3Dy%26z")
}
