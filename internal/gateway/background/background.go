// Package background runs the gateway's deferred work: memory writes and
// audit shipping happen after the response is on the wire, so their latency
// and failures never reach the client.
//
// The queue is bounded with drop-oldest overflow: under sustained pressure
// the newest observations win, and the gateway never blocks a request
// handler on background work.
package background

import (
	"context"
	"log/slog"
	"sync"
)

// Task is one unit of deferred work. The context is the runner's lifetime
// context, not the originating request's: the request is already answered
// by the time the task runs.
type Task struct {
	// Name identifies the task kind in logs (e.g. "memory_store").
	Name string
	Run  func(ctx context.Context)
}

// Runner executes tasks on a fixed worker pool.
type Runner struct {
	queue   chan Task
	logger  *slog.Logger
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	mu      sync.Mutex
	dropped int
	started bool
	onDrop  func(taskName string)
}

// NewRunner returns a Runner with the given queue capacity. Capacity and
// worker counts below 1 are raised to 1.
func NewRunner(capacity int, logger *slog.Logger) *Runner {
	if capacity < 1 {
		capacity = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		queue:  make(chan Task, capacity),
		logger: logger,
	}
}

// Start launches the worker pool. It must be called exactly once.
func (r *Runner) Start(ctx context.Context, workers int) {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		cancel()
		return
	}
	r.started = true
	r.cancel = cancel
	r.mu.Unlock()

	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
}

func (r *Runner) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-r.queue:
			if !ok {
				return
			}
			r.run(ctx, task)
		}
	}
}

func (r *Runner) run(ctx context.Context, task Task) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("background task panicked", "task", task.Name, "panic", p)
		}
	}()
	task.Run(ctx)
}

// Submit enqueues a task. When the queue is full the oldest queued task is
// dropped to make room, so Submit never blocks the caller.
func (r *Runner) Submit(task Task) {
	for {
		select {
		case r.queue <- task:
			return
		default:
		}
		// Queue full: evict the oldest entry and retry.
		select {
		case dropped := <-r.queue:
			r.mu.Lock()
			r.dropped++
			fn := r.onDrop
			r.mu.Unlock()
			r.logger.Warn("background queue full, dropped oldest task", "task", dropped.Name)
			if fn != nil {
				fn(dropped.Name)
			}
		default:
		}
	}
}

// OnDrop registers fn to be called with the task name each time a queued
// task is evicted by overflow. Call it before Start.
func (r *Runner) OnDrop(fn func(taskName string)) {
	r.mu.Lock()
	r.onDrop = fn
	r.mu.Unlock()
}

// Dropped returns how many tasks have been evicted by overflow.
func (r *Runner) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close stops the workers after draining the tasks already queued.
// It blocks until all workers have exited.
func (r *Runner) Close() {
	close(r.queue)
	r.wg.Wait()
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
