package globaldb

import "sync"

// Scratch frame buffers, per §4.4: the input composite-key buffer, the
// output value buffer and the output key buffer are all drawn from
// per-process pools of reusable buffers rather than a Connection-wide
// singleton, so overlapping calls on different goroutines never alias each
// other's scratch memory. Each pool's minimum capacity matches the backend's
// practical maximum key/value size.
const (
	minKeyBufCap   = 32 * 1024
	minValueBufCap = 32 * 1024
)

var keyBufPool = &sync.Pool{
	New: func() any {
		return make([]byte, 0, minKeyBufCap)
	},
}

var valueBufPool = &sync.Pool{
	New: func() any {
		return make([]byte, 0, minValueBufCap)
	},
}

var argDescPool = &sync.Pool{
	New: func() any {
		return make([]argDesc, 0, 16)
	},
}

func getKeyBuf() []byte   { return keyBufPool.Get().([]byte)[:0] }
func putKeyBuf(b []byte)  { keyBufPool.Put(b[:0]) } //nolint:unused
func getValueBuf() []byte { return valueBufPool.Get().([]byte)[:0] }
func putValueBuf(b []byte) {
	valueBufPool.Put(b[:0])
}
func getArgDescs() []argDesc  { return argDescPool.Get().([]argDesc)[:0] }
func putArgDescs(a []argDesc) { argDescPool.Put(a[:0]) }
