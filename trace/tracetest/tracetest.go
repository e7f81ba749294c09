// Package tracetest is a test helper for trace, mirroring the teacher's
// journal/journaltest: a recorder Sink plus assertion helpers a test can
// call directly instead of re-deriving trace.Logger's line format.
package tracetest

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/globaldb/globaldb/trace"
)

// Recorder is an in-memory trace.Sink that a test can inspect directly.
type Recorder struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (r *Recorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}

// Text returns everything written so far.
func (r *Recorder) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

// Lines splits Text into non-empty lines.
func (r *Recorder) Lines() []string {
	var out []string
	for _, l := range strings.Split(r.Text(), "\n") {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// New builds a trace.Logger writing to a fresh Recorder, with Now pinned to
// a fixed instant so tests can assert exact log lines.
func New(t testing.TB, opts trace.Options) (*trace.Logger, *Recorder) {
	t.Helper()
	rec := &Recorder{}
	if opts.Now == nil {
		fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		opts.Now = func() time.Time { return fixed }
	}
	return trace.New(rec, opts), rec
}

// ContainsOp reports whether any recorded line (header, title or detail)
// contains op as a substring.
func (r *Recorder) ContainsOp(op string) bool {
	for _, l := range r.Lines() {
		if strings.Contains(l, op) {
			return true
		}
	}
	return false
}
