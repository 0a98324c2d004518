// Package queue runs notification deliveries on a small bounded worker pool so a slow or
// hung delivery never holds up the poll loop.
package queue

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrFull is returned by Submit when every slot is taken.
	ErrFull = errors.New("queue: full")
	// ErrStopped is returned by Submit before Start or after Stop.
	ErrStopped = errors.New("queue: not running")
)

// Job is one delivery attempt.
type Job struct {
	Name string
	Run  func(context.Context) error
	// Done, when set, observes the outcome after Run returns.
	Done func(error)
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Length    int    `json:"length"`
	Capacity  int    `json:"capacity"`
	Workers   int    `json:"workers"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

// Queue is a fixed worker pool fed by a buffered channel.
type Queue struct {
	jobs    chan Job
	workers int
	timeout time.Duration

	mu      sync.RWMutex
	running bool
	wg      sync.WaitGroup

	processed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a queue with the given capacity, worker count and per-job timeout.
func New(capacity, workers int, timeout time.Duration) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	if workers < 0 {
		workers = 0
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Queue{jobs: make(chan Job, capacity), workers: workers, timeout: timeout}
}

// Start launches the workers. Calling it twice is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Submit queues a job without blocking.
func (q *Queue) Submit(j Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.running {
		q.dropped.Add(1)
		return ErrStopped
	}
	select {
	case q.jobs <- j:
		return nil
	default:
		q.dropped.Add(1)
		log.Printf("queue: full, dropping job=%s", j.Name)
		return ErrFull
	}
}

// Stop refuses new jobs and waits for queued ones to drain or for ctx to expire.
func (q *Queue) Stop(ctx context.Context) {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Stats returns current counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Length:    len(q.jobs),
		Capacity:  cap(q.jobs),
		Workers:   q.workers,
		Processed: q.processed.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q.jobs:
			if !ok {
				return
			}
			q.handle(ctx, j)
		}
	}
}

func (q *Queue) handle(ctx context.Context, j Job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("queue: job=%s panic recovered: %v", j.Name, r)
			q.processed.Add(1)
			q.failed.Add(1)
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	err := j.Run(jobCtx)

	q.processed.Add(1)
	if err != nil {
		q.failed.Add(1)
		log.Printf("queue: job=%s duration_ms=%d error=%v", j.Name, time.Since(start).Milliseconds(), err)
	}
	if j.Done != nil {
		j.Done(err)
	}
}
