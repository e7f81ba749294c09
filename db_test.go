package globaldb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/globaldb/globaldb/trace"
)

func setup(t testing.TB, kind BackendKind) *Conn {
	t.Helper()

	conn := must(Open(Options{
		Backend:       kind,
		File:          filepath.Join(t.TempDir(), "test.db"),
		KeyType:       KeyM,
		Multithreaded: true,
		IsTesting:     true,
	}))
	t.Cleanup(func() { conn.Close() })
	return conn
}

func forEachBackend(t *testing.T, fn func(t *testing.T, conn *Conn)) {
	for _, kind := range []BackendKind{BackendBtree, BackendMmap} {
		t.Run(string(kind), func(t *testing.T) {
			fn(t, setup(t, kind))
		})
	}
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func wantKind(t testing.TB, err error, kind Kind) {
	t.Helper()
	if !errors.Is(err, &Error{Kind: kind}) {
		t.Fatalf("** got error %v, wanted kind %v", err, kind)
	}
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open(Options{Backend: "paper"})
	wantKind(t, err, KindBadArgument)
}

func TestOpenRejectsUnknownKeyType(t *testing.T) {
	_, err := Open(Options{Backend: BackendBtree, KeyType: "uuid"})
	wantKind(t, err, KindBadArgument)
}

func TestOpenMissingLibraryPath(t *testing.T) {
	_, err := Open(Options{
		Backend:     BackendBtree,
		KeyType:     KeyM,
		File:        filepath.Join(t.TempDir(), "test.db"),
		LibraryPath: filepath.Join(t.TempDir(), "no-such-lib.so"),
	})
	wantKind(t, err, KindBackendUnavailable)
}

func TestVersion(t *testing.T) {
	forEachBackend(t, func(t *testing.T, conn *Conn) {
		v := conn.Version()
		if !strings.Contains(v, "globaldb/"+packageVersion) {
			t.Fatalf("** version %q does not name the package version", v)
		}
		if !strings.Contains(v, string(conn.backend().Kind())) {
			t.Fatalf("** version %q does not name the backend", v)
		}
	})
}

func TestSharedBackendAlias(t *testing.T) {
	c1 := setup(t, BackendBtree)

	// A second Open of the same backend kind — even with a different file —
	// is an alias sharing the process-wide handle.
	c2 := must(Open(Options{
		Backend:       BackendBtree,
		File:          filepath.Join(t.TempDir(), "other.db"),
		KeyType:       KeyM,
		Multithreaded: true,
		IsTesting:     true,
	}))

	if c1.backend() != c2.backend() {
		t.Fatalf("** alias Open returned a distinct backend handle")
	}

	ctx := context.Background()
	ensure(c2.MGlobal("^A").Set(ctx, []byte("v"), Str("k")))
	if err := c2.Close(); err != nil {
		t.Fatalf("** alias close: %v", err)
	}

	// The first Connection keeps working after the alias closes.
	v := must(c1.MGlobal("^A").Get(ctx, Str("k")))
	deepEqual(t, string(v), "v")
}

func TestCloseIsIdempotent(t *testing.T) {
	conn := setup(t, BackendBtree)
	ensure(conn.Close())
	ensure(conn.Close())
}

func TestDurabilityAcrossReopen(t *testing.T) {
	forEachBackend(t, func(t *testing.T, conn *Conn) {
		ctx := context.Background()
		ensure(conn.MGlobal("^X").Set(ctx, []byte("v1"), Str("alpha"), Int(1)))
		file := conn.opts.File
		kind := conn.opts.Backend
		ensure(conn.Close())

		reopened := must(Open(Options{
			Backend:       kind,
			File:          file,
			KeyType:       KeyM,
			Multithreaded: true,
			IsTesting:     true,
		}))
		defer reopened.Close()

		v := must(reopened.MGlobal("^X").Get(ctx, Str("alpha"), Int(1)))
		deepEqual(t, string(v), "v1")
	})
}

func TestOpenAppliesEnvVars(t *testing.T) {
	t.Setenv("GLOBALDB_TEST_A", "")
	t.Setenv("GLOBALDB_TEST_B", "")
	conn := must(Open(Options{
		Backend:       BackendBtree,
		File:          filepath.Join(t.TempDir(), "test.db"),
		KeyType:       KeyM,
		Multithreaded: true,
		IsTesting:     true,
		EnvVars:       "GLOBALDB_TEST_A=one\nGLOBALDB_TEST_B=two",
	}))
	defer conn.Close()

	deepEqual(t, os.Getenv("GLOBALDB_TEST_A"), "one")
	deepEqual(t, os.Getenv("GLOBALDB_TEST_B"), "two")
}

func TestErrorModePanic(t *testing.T) {
	conn := must(Open(Options{
		Backend:       BackendBtree,
		File:          filepath.Join(t.TempDir(), "test.db"),
		KeyType:       KeyM,
		Multithreaded: true,
		IsTesting:     true,
		ErrorMode:     ErrorAsPanic,
	}))
	defer conn.Close()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("** expected a panic in ErrorAsPanic mode")
		}
		err, ok := r.(error)
		if !ok {
			t.Fatalf("** panicked with %v, wanted an error", r)
		}
		wantKind(t, err, KindBadArgument)
	}()
	_, _, _ = conn.MGlobal("^X").Next(context.Background())
}

func TestIntAndStringKeyModes(t *testing.T) {
	for _, kt := range []KeyType{KeyInt, KeyString} {
		t.Run(string(kt), func(t *testing.T) {
			conn := must(Open(Options{
				Backend:       BackendBtree,
				File:          filepath.Join(t.TempDir(), "test.db"),
				KeyType:       kt,
				Multithreaded: true,
				IsTesting:     true,
			}))
			defer conn.Close()

			ctx := context.Background()
			g := conn.MGlobal("^K")
			key := Int(7)
			if kt == KeyString {
				key = Str("some-key")
			}

			ensure(g.Set(ctx, []byte("v"), key))
			deepEqual(t, string(must(g.Get(ctx, key))), "v")
			deepEqual(t, must(g.Defined(ctx, key)), 1)

			ensure(g.Delete(ctx, key))
			deepEqual(t, must(g.Defined(ctx, key)), 0)

			// The hierarchical traversals need M mode.
			_, _, err := g.Next(ctx, key)
			wantKind(t, err, KindBadArgument)
			_, err = conn.MGlobalQuery(QueryDescriptor{Global: "^K"}, QueryOptions{Multilevel: true})
			wantKind(t, err, KindBadArgument)
		})
	}
}

func TestIntKeyModeRejectsBadKeys(t *testing.T) {
	conn := must(Open(Options{
		Backend:       BackendBtree,
		File:          filepath.Join(t.TempDir(), "test.db"),
		KeyType:       KeyInt,
		Multithreaded: true,
		IsTesting:     true,
	}))
	defer conn.Close()

	ctx := context.Background()
	g := conn.MGlobal("^K")
	wantKind(t, g.Set(ctx, []byte("v"), Str("not-a-number")), KindBadArgument)
	wantKind(t, g.Set(ctx, []byte("v"), Int(1), Int(2)), KindBadArgument)
}

func TestConnWritesTraceEvents(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "trace.log")
	conn := must(Open(Options{
		Backend:       BackendBtree,
		File:          filepath.Join(t.TempDir(), "test.db"),
		KeyType:       KeyM,
		Multithreaded: true,
		IsTesting:     true,
		LogFile:       logPath,
		LogOptions:    trace.Options{Errors: true, FunctionEntry: true},
	}))
	defer conn.Close()

	ctx := context.Background()
	g := conn.MGlobal("^X")
	ensure(g.Set(ctx, []byte("v"), Str("k")))
	_, _, err := g.Next(ctx) // no subscripts: fails and logs
	wantKind(t, err, KindBadArgument)

	data := must(os.ReadFile(logPath))
	text := string(data)
	if !strings.Contains(text, "entry: set") {
		t.Fatalf("** log lacks function-entry event: %q", text)
	}
	if !strings.Contains(text, "error: next") {
		t.Fatalf("** log lacks error event: %q", text)
	}
}

func TestDefaultOptions(t *testing.T) {
	opt := DefaultOptions()
	if !opt.Multithreaded {
		t.Fatalf("** DefaultOptions must enable the instance mutex")
	}
	deepEqual(t, opt.ErrorMode, ErrorAsValue)
}
