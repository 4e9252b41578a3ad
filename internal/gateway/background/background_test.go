package background_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Aryannovice/metamorphosis/internal/gateway/background"
)

func TestRunnerExecutesTasks(t *testing.T) {
	r := background.NewRunner(10, nil)
	r.Start(context.Background(), 2)

	var count atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		r.Submit(background.Task{
			Name: "increment",
			Run: func(context.Context) {
				count.Add(1)
				wg.Done()
			},
		})
	}
	wg.Wait()

	if count.Load() != 5 {
		t.Errorf("ran %d tasks, want 5", count.Load())
	}
	r.Close()
}

func TestRunnerCloseDrainsQueue(t *testing.T) {
	r := background.NewRunner(10, nil)
	r.Start(context.Background(), 1)

	var count atomic.Int32
	for i := 0; i < 8; i++ {
		r.Submit(background.Task{
			Name: "drain",
			Run:  func(context.Context) { count.Add(1) },
		})
	}
	r.Close()

	if count.Load() != 8 {
		t.Errorf("drained %d tasks, want 8", count.Load())
	}
}

func TestRunnerDropsOldestWhenFull(t *testing.T) {
	// No workers started yet, so the queue only fills.
	r := background.NewRunner(2, nil)

	var first, last atomic.Bool
	r.Submit(background.Task{Name: "first", Run: func(context.Context) { first.Store(true) }})
	r.Submit(background.Task{Name: "second", Run: func(context.Context) {}})
	r.Submit(background.Task{Name: "third", Run: func(context.Context) { last.Store(true) }})

	if r.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", r.Dropped())
	}

	r.Start(context.Background(), 1)
	r.Close()

	if first.Load() {
		t.Error("oldest task should have been evicted")
	}
	if !last.Load() {
		t.Error("newest task should have run")
	}
}

func TestRunnerSubmitNeverBlocks(t *testing.T) {
	r := background.NewRunner(1, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			r.Submit(background.Task{Name: "flood", Run: func(context.Context) {}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked on a full queue")
	}
}

func TestRunnerRecoversFromPanic(t *testing.T) {
	r := background.NewRunner(4, nil)
	r.Start(context.Background(), 1)

	var ran atomic.Bool
	r.Submit(background.Task{Name: "boom", Run: func(context.Context) { panic("boom") }})
	r.Submit(background.Task{Name: "after", Run: func(context.Context) { ran.Store(true) }})
	r.Close()

	if !ran.Load() {
		t.Error("worker should survive a panicking task")
	}
}
