// Package mainthread implements the main-thread executor collaborator
// as a single-consumer channel: submitted closures are
// drained by whichever goroutine calls Run, typically the process's main
// goroutine or a UI event loop goroutine.
package mainthread

import (
	"bytes"
	"context"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

type job struct {
	fn   func() (any, error)
	done chan struct{}
	res  any
	err  error
}

// Executor is a single-consumer work queue implementing plugin.MainThreadExecutor.
type Executor struct {
	jobs      chan *job
	ownerOnce sync.Once
	ownerID   atomic.Uint64
}

// New constructs an Executor with the given submission buffer depth.
func New(buffer int) *Executor {
	return &Executor{jobs: make(chan *job, buffer)}
}

// Run drains jobs on the calling goroutine until ctx is canceled. The first
// call to Run marks its goroutine as "the main thread" for IsMainThread.
func (e *Executor) Run(ctx context.Context) {
	e.ownerOnce.Do(func() {
		e.ownerID.Store(currentGoroutineID())
	})

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-e.jobs:
			res, err := j.fn()
			j.res, j.err = res, err
			close(j.done)
		}
	}
}

// RunOnMainThread enqueues fn and returns immediately without waiting for it
// to execute.
func (e *Executor) RunOnMainThread(fn func()) {
	e.jobs <- &job{fn: func() (any, error) { fn(); return nil, nil }, done: make(chan struct{})}
}

// RunOnMainThreadSync enqueues fn and blocks until Run's goroutine has
// executed it, returning its result.
func (e *Executor) RunOnMainThreadSync(fn func() (any, error)) (any, error) {
	j := &job{fn: fn, done: make(chan struct{})}
	e.jobs <- j
	<-j.done
	return j.res, j.err
}

// IsMainThread reports whether the calling goroutine is the one that first
// called Run. Without this check, a hook already running inside Run's loop
// that calls RunOnMainThreadSync would deadlock waiting on a job that only its
// own loop can run; guarding on goroutine identity lets such nested calls run inline
// instead.
func (e *Executor) IsMainThread() bool {
	owner := e.ownerID.Load()
	return owner != 0 && owner == currentGoroutineID()
}

// currentGoroutineID extracts the calling goroutine's id from its stack
// trace header ("goroutine 123 [running]:"). The runtime exposes no public
// identity API; this is the standard workaround and is only ever used for
// the main-thread-reentrancy check above, never for scheduling decisions
// that affect correctness beyond avoiding a self-deadlock.
func currentGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	line := buf[:n]
	line = bytes.TrimPrefix(line, []byte("goroutine "))
	if idx := bytes.IndexByte(line, ' '); idx >= 0 {
		line = line[:idx]
	}
	id, err := strconv.ParseUint(string(line), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
