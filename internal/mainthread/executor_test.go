package mainthread

import (
	"context"
	"testing"
	"time"
)

func TestRunOnMainThreadSyncReturnsResult(t *testing.T) {
	e := New(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	res, err := e.RunOnMainThreadSync(func() (any, error) { return 42, nil })
	if err != nil {
		t.Fatalf("RunOnMainThreadSync: %v", err)
	}
	if res != 42 {
		t.Fatalf("res = %v, want 42", res)
	}
}

func TestRunOnMainThreadIsFireAndForget(t *testing.T) {
	e := New(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	done := make(chan struct{})
	e.RunOnMainThread(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("submitted job never ran")
	}
}

func TestIsMainThreadFalseOffLoopGoroutine(t *testing.T) {
	e := New(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	time.Sleep(10 * time.Millisecond)
	if e.IsMainThread() {
		t.Fatal("IsMainThread should be false from a goroutine that never called Run")
	}
}

func TestIsMainThreadTrueInsideLoopGoroutine(t *testing.T) {
	e := New(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	result := make(chan bool, 1)
	e.RunOnMainThread(func() { result <- e.IsMainThread() })

	select {
	case got := <-result:
		if !got {
			t.Fatal("IsMainThread should be true when called from inside the drain loop")
		}
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}
}
