package globaldb

import "context"

// Global is the Global Handle of §4.7: a bound (Connection, name,
// fixed-subscript list) template. Every operation prepends the fixed
// subscripts to its argument subs before calling the Request Executor.
// Global holds a non-owning reference to its Conn and must not outlive it.
type Global struct {
	conn  *Conn
	name  string
	fixed []Subscript
}

// MGlobal constructs a Global Handle bound to name and a fixed prefix of
// subscripts, per the `mglobal` operation of §6.
func (c *Conn) MGlobal(name string, fixed ...Subscript) *Global {
	return &Global{conn: c, name: name, fixed: fixed}
}

// Reset replaces both the name and fixed-subscript list atomically, per
// §4.7.
func (g *Global) Reset(name string, fixed ...Subscript) {
	g.name = name
	g.fixed = fixed
}

// Close releases the fixed-subscript list, per §4.7. A Global Handle is
// safe to keep using afterward with an empty prefix, but callers should
// treat it as done.
func (g *Global) Close() {
	g.fixed = nil
}

func (g *Global) full(subs []Subscript) []Subscript {
	if len(g.fixed) == 0 {
		return subs
	}
	out := make([]Subscript, 0, len(g.fixed)+len(subs))
	out = append(out, g.fixed...)
	out = append(out, subs...)
	return out
}

// Get implements the `get` operation of §6.
func (g *Global) Get(ctx context.Context, subs ...Subscript) ([]byte, error) {
	return g.conn.get(ctx, g.name, g.full(subs))
}

// Set implements the `set` operation of §6.
func (g *Global) Set(ctx context.Context, value []byte, subs ...Subscript) error {
	return g.conn.set(ctx, g.name, g.full(subs), value)
}

// Defined implements the `defined` operation of §6.
func (g *Global) Defined(ctx context.Context, subs ...Subscript) (int, error) {
	return g.conn.defined(ctx, g.name, g.full(subs))
}

// Delete implements the `delete` operation of §6.
func (g *Global) Delete(ctx context.Context, subs ...Subscript) error {
	return g.conn.delete(ctx, g.name, g.full(subs))
}

// Next implements the `next` operation of §6: the next sibling at the last
// subscript position. An empty trailing subscript seeds the iteration.
func (g *Global) Next(ctx context.Context, subs ...Subscript) (Subscript, bool, error) {
	return g.conn.siblingOne(ctx, g.name, g.full(subs), true)
}

// Previous implements the `previous` operation of §6.
func (g *Global) Previous(ctx context.Context, subs ...Subscript) (Subscript, bool, error) {
	return g.conn.siblingOne(ctx, g.name, g.full(subs), false)
}

// Increment implements the `increment` operation of §6.
func (g *Global) Increment(ctx context.Context, delta Subscript, subs ...Subscript) (string, error) {
	return g.conn.increment(ctx, g.name, g.full(subs), delta)
}

// Lock implements the `lock` operation of §6 (advisory, always succeeds —
// see Design Notes §9).
func (g *Global) Lock(ctx context.Context, timeoutMillis int, subs ...Subscript) (bool, error) {
	return g.conn.lock(ctx, g.name, g.full(subs), timeoutMillis)
}

// Unlock implements the `unlock` operation of §6.
func (g *Global) Unlock(ctx context.Context, subs ...Subscript) (bool, error) {
	return g.conn.unlock(ctx, g.name, g.full(subs))
}

// Merge implements the SUPPLEMENTED `merge` operation (SPEC_FULL.md):
// copies src's entire subtree onto g's.
func (g *Global) Merge(ctx context.Context, src *Global) error {
	return g.conn.merge(ctx, g.name, g.fixed, src.name, src.fixed)
}
