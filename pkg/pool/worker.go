package pool

import (
	"context"
	"sync"
	"sync/atomic"
)

// Task represents a unit of work.
type Task func(ctx context.Context) error

// WorkerPool runs tasks on a bounded set of workers. Task errors are
// counted, not propagated: each task is expected to report its own outcome
// through whatever channel it owns.
type WorkerPool struct {
	workers     int
	tasks       chan Task
	wg          sync.WaitGroup
	ctx         context.Context
	activeCount atomic.Int32
	totalTasks  atomic.Int64
	failedTasks atomic.Int64
}

// NewWorkerPool creates a pool with the given number of workers and starts
// them immediately.
func NewWorkerPool(ctx context.Context, workers int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}

	wp := &WorkerPool{
		workers: workers,
		tasks:   make(chan Task, workers*2),
		ctx:     ctx,
	}

	for i := 0; i < workers; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}

	return wp
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()

	for task := range wp.tasks {
		wp.activeCount.Add(1)
		wp.totalTasks.Add(1)

		if err := task(wp.ctx); err != nil {
			wp.failedTasks.Add(1)
		}

		wp.activeCount.Add(-1)
	}
}

// Submit queues a task. Returns false once the pool context is cancelled;
// a rejected task is never executed.
func (wp *WorkerPool) Submit(task Task) bool {
	if wp.ctx.Err() != nil {
		return false
	}
	select {
	case <-wp.ctx.Done():
		return false
	case wp.tasks <- task:
		return true
	}
}

// Stop closes the queue and waits for in-flight tasks to finish. Workers
// drain already-queued tasks; cancellation of the pool context is the
// task's responsibility to observe.
func (wp *WorkerPool) Stop() {
	close(wp.tasks)
	wp.wg.Wait()
}

// ActiveWorkers returns the number of workers currently running a task.
func (wp *WorkerPool) ActiveWorkers() int32 {
	return wp.activeCount.Load()
}

// Stats returns pool counters.
type Stats struct {
	Workers     int
	Active      int32
	TotalTasks  int64
	FailedTasks int64
}

func (wp *WorkerPool) Stats() Stats {
	return Stats{
		Workers:     wp.workers,
		Active:      wp.activeCount.Load(),
		TotalTasks:  wp.totalTasks.Load(),
		FailedTasks: wp.failedTasks.Load(),
	}
}
