/*
Package globaldb implements an embedded key/value access layer exposing a
hierarchical, sparse, ordered associative array ("global") on top of two
interchangeable ordered byte-keyed backends.

# Globals

A global is addressed by a name and a tuple of subscripts, each of which is
an integer, a string, or a string that happens to parse as a number (and is
then ordered as one). Composite keys are packed by the codec in this package
so that plain byte-wise comparison on the backend reproduces the logical
subscript order: numbers before strings, numerics compared by signed
magnitude, strings by natural byte order.

# Backends

Backend A is a B-tree engine with implicit per-call transactions: every Get,
Put or Delete is its own standalone operation and cursors are independent of
any transaction. Backend B is a memory-mapped B+tree engine (bbolt) that
requires every read or write to be scoped to an explicit transaction; the
adapter maintains a reference-counted shared read transaction so that
concurrent readers observe one snapshot without serializing on each other.

# Handles

Clients work through a Conn, and from it derive GlobalHandles (a bound name
plus a fixed prefix of subscripts) and CursorHandles (the same, plus a query
descriptor selecting one of the three traversal modes: sibling order, full
subtree query, or top-level name enumeration).
*/
package globaldb
