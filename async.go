package globaldb

import "context"

// AsyncGlobal is the Worker Pool's submission surface for a Global Handle's
// point operations (§4.6): each method enqueues the same Request Executor
// call Global itself would run, and delivers the result to onDone once a
// worker thread has executed it.
type AsyncGlobal struct {
	g *Global
}

// Async returns the Worker Pool submission surface for g.
func (g *Global) Async() *AsyncGlobal {
	return &AsyncGlobal{g: g}
}

// Get submits the `get` operation, per §4.6.
func (a *AsyncGlobal) Get(ctx context.Context, onDone func([]byte, error), subs ...Subscript) error {
	full := a.g.full(subs)
	return a.g.conn.submit(
		func() (any, error) { return a.g.conn.get(ctx, a.g.name, full) },
		func(res any, err error) {
			var v []byte
			if res != nil {
				v = res.([]byte)
			}
			onDone(v, a.g.conn.raise(err))
		},
	)
}

// Set submits the `set` operation, per §4.6.
func (a *AsyncGlobal) Set(ctx context.Context, value []byte, onDone func(error), subs ...Subscript) error {
	full := a.g.full(subs)
	return a.g.conn.submit(
		func() (any, error) { return nil, a.g.conn.set(ctx, a.g.name, full, value) },
		func(_ any, err error) { onDone(a.g.conn.raise(err)) },
	)
}

// Defined submits the `defined` operation, per §4.6.
func (a *AsyncGlobal) Defined(ctx context.Context, onDone func(int, error), subs ...Subscript) error {
	full := a.g.full(subs)
	return a.g.conn.submit(
		func() (any, error) { return a.g.conn.defined(ctx, a.g.name, full) },
		func(res any, err error) {
			n, _ := res.(int)
			onDone(n, a.g.conn.raise(err))
		},
	)
}

// Delete submits the `delete` operation, per §4.6.
func (a *AsyncGlobal) Delete(ctx context.Context, onDone func(error), subs ...Subscript) error {
	full := a.g.full(subs)
	return a.g.conn.submit(
		func() (any, error) { return nil, a.g.conn.delete(ctx, a.g.name, full) },
		func(_ any, err error) { onDone(a.g.conn.raise(err)) },
	)
}

// Increment submits the `increment` operation, per §4.6.
func (a *AsyncGlobal) Increment(ctx context.Context, delta Subscript, onDone func(string, error), subs ...Subscript) error {
	full := a.g.full(subs)
	return a.g.conn.submit(
		func() (any, error) { return a.g.conn.increment(ctx, a.g.name, full, delta) },
		func(res any, err error) {
			s, _ := res.(string)
			onDone(s, a.g.conn.raise(err))
		},
	)
}

// Async reports that Cursor Handle traversal cannot be submitted to the
// Worker Pool: the Cursor State Machine requires single-threaded ordered
// access to one backend cursor (and, on Backend B, its read transaction),
// per §4.6 "Restrictions".
func (cur *Cursor) Async() error {
	return cur.conn.raise(asyncNotSupported("cursor"))
}
