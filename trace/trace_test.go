package trace_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/globaldb/globaldb/trace"
	"github.com/globaldb/globaldb/trace/tracetest"
)

func TestHeaderFormat(t *testing.T) {
	l, rec := tracetest.New(t, trace.Options{FunctionEntry: true, Build: "test-build"})
	l.Entry("get", "^X", "alpha")

	lines := rec.Lines()
	if len(lines) != 3 {
		t.Fatalf("event = %d lines, wanted 3: %q", len(lines), lines)
	}
	if !strings.HasPrefix(lines[0], ">>> Time: Mon Jan  1 00:00:00 2024; Build: test-build; pid=") {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.Contains(lines[0], "tid=") {
		t.Fatalf("header lacks tid: %q", lines[0])
	}
	if lines[1] != "entry: get" {
		t.Fatalf("title = %q, wanted \"entry: get\"", lines[1])
	}
	if lines[2] != "^X, alpha" {
		t.Fatalf("detail = %q, wanted \"^X, alpha\"", lines[2])
	}
}

func TestFlagsGateEvents(t *testing.T) {
	l, rec := tracetest.New(t, trace.Options{})
	l.Entry("get")
	l.Error("get", errors.New("boom"))
	l.Transmission("get", "req", "resp")
	if rec.Text() != "" {
		t.Fatalf("disabled logger emitted %q", rec.Text())
	}

	l, rec = tracetest.New(t, trace.Options{Errors: true})
	l.Error("get", errors.New("boom"))
	l.Error("get", nil) // a nil error is not an event
	if !rec.ContainsOp("error: get") {
		t.Fatalf("error event missing: %q", rec.Text())
	}
	if got := strings.Count(rec.Text(), ">>> Time"); got != 1 {
		t.Fatalf("emitted %d events, wanted 1", got)
	}
}

func TestNameFilter(t *testing.T) {
	l, rec := tracetest.New(t, trace.Options{FunctionEntry: true, NameFilter: "incr"})
	l.Entry("get")
	l.Entry("increment")
	if rec.ContainsOp("entry: get") {
		t.Fatalf("filtered op emitted: %q", rec.Text())
	}
	if !rec.ContainsOp("entry: increment") {
		t.Fatalf("matching op not emitted: %q", rec.Text())
	}
}

func TestTransmissionDetail(t *testing.T) {
	l, rec := tracetest.New(t, trace.Options{Transmission: true})
	l.Transmission("set", "REQ", "RESP")
	if strings.Contains(rec.Text(), "RESP") {
		t.Fatalf("request-only detail leaked the response: %q", rec.Text())
	}

	l, rec = tracetest.New(t, trace.Options{
		Transmission:       true,
		TransmissionDetail: trace.DetailRequestResponse,
	})
	l.Transmission("set", "REQ", "RESP")
	if !strings.Contains(rec.Text(), "req=REQ") || !strings.Contains(rec.Text(), "resp=RESP") {
		t.Fatalf("request+response detail incomplete: %q", rec.Text())
	}
}

func TestDetailEscaping(t *testing.T) {
	l, rec := tracetest.New(t, trace.Options{Errors: true})
	l.Error("get", errors.New("bad\x01byte\x7fhere"))
	if !strings.Contains(rec.Text(), `bad\x01byte\x7fhere`) {
		t.Fatalf("non-printable bytes not escaped: %q", rec.Text())
	}
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.log")
	l, err := trace.Open(path, trace.Options{FunctionEntry: true})
	if err != nil {
		t.Fatal(err)
	}
	l.Entry("get", "arg")
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil { // second close is a no-op
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "entry: get") {
		t.Fatalf("log file contents = %q", data)
	}
}
