package globaldb

import (
	"context"
	"runtime"
	"sync"
	"testing"
)

func TestAsyncPointOperations(t *testing.T) {
	forEachBackend(t, func(t *testing.T, conn *Conn) {
		ctx := context.Background()
		a := conn.MGlobal("^A").Async()

		var setErr error
		ensure(a.Set(ctx, []byte("v1"), func(err error) { setErr = err }, Str("k")))
		ensure(setErr)

		var got []byte
		ensure(a.Get(ctx, func(v []byte, err error) {
			ensure(err)
			got = v
		}, Str("k")))
		deepEqual(t, string(got), "v1")

		var cls int
		ensure(a.Defined(ctx, func(n int, err error) {
			ensure(err)
			cls = n
		}, Str("k")))
		deepEqual(t, cls, 1)

		var incr string
		ensure(a.Increment(ctx, Int(5), func(v string, err error) {
			ensure(err)
			incr = v
		}, Str("n")))
		deepEqual(t, incr, "5")

		var delErr error
		ensure(a.Delete(ctx, func(err error) { delErr = err }, Str("k")))
		ensure(delErr)
		deepEqual(t, must(conn.MGlobal("^A").Defined(ctx, Str("k"))), 0)
	})
}

func TestAsyncCallbackRunsOnSubmitterGoroutine(t *testing.T) {
	conn := setup(t, BackendBtree)
	submitter := goroutineID()

	var callbackGid uint64
	ensure(conn.MGlobal("^A").Async().Set(context.Background(), []byte("v"),
		func(err error) {
			ensure(err)
			callbackGid = goroutineID()
		}, Str("k")))
	deepEqual(t, callbackGid, submitter)
}

func TestConcurrentIncrements(t *testing.T) {
	conn := setup(t, BackendBtree)
	ctx := context.Background()
	g := conn.MGlobal("^C")

	const workers = 2
	const perWorker = 1000

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := g.Increment(ctx, Int(1), Str("k")); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	deepEqual(t, string(must(g.Get(ctx, Str("k")))), "2000")
}

func TestSubmitAfterClose(t *testing.T) {
	conn := setup(t, BackendBtree)
	ensure(conn.Close())

	err := conn.MGlobal("^A").Async().Set(context.Background(), []byte("v"),
		func(error) { t.Fatalf("** callback ran on a closed pool") }, Str("k"))
	wantKind(t, err, KindNotOpen)
}

func TestWorkerPoolDrainsQueuedTasks(t *testing.T) {
	p := newWorkerPool(2)
	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ensure(p.submit(
				func() (any, error) { return i, nil },
				func(res any, err error) {
					ensure(err)
					mu.Lock()
					order = append(order, res.(int))
					mu.Unlock()
				},
			))
		}(i)
	}
	wg.Wait()
	p.close()

	if len(order) != 20 {
		t.Fatalf("** %d tasks completed, wanted 20", len(order))
	}
	seen := make(map[int]bool)
	for _, v := range order {
		seen[v] = true
	}
	if len(seen) != 20 {
		t.Fatalf("** duplicate or lost results: %v", order)
	}
}

func TestWorkerPoolClampsSize(t *testing.T) {
	before := runtime.NumGoroutine()
	p := newWorkerPool(maxWorkers * 10)
	defer p.close()
	if started := runtime.NumGoroutine() - before; started > maxWorkers {
		t.Fatalf("** pool started %d workers, wanted at most %d", started, maxWorkers)
	}
	done := false
	ensure(p.submit(
		func() (any, error) { return nil, nil },
		func(any, error) { done = true },
	))
	deepEqual(t, done, true)
}
