package registration

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task is a unit of detached post-registration work. Its outcome never
// affects the request that scheduled it.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// TaskRunner is a bounded background executor for fire-and-forget tasks.
// Submission never blocks the caller: when the queue is full the task is
// dropped and logged, which is acceptable for best-effort work.
type TaskRunner struct {
	log   *slog.Logger
	queue chan Task
	wg    sync.WaitGroup
}

func NewTaskRunner(log *slog.Logger, queueSize int) *TaskRunner {
	if queueSize < 1 {
		queueSize = 128
	}
	return &TaskRunner{
		log:   log,
		queue: make(chan Task, queueSize),
	}
}

// Start launches n workers draining the queue.
func (r *TaskRunner) Start(n int) {
	if n < 1 {
		n = 2
	}
	for i := 0; i < n; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
}

func (r *TaskRunner) worker(id int) {
	defer r.wg.Done()
	for task := range r.queue {
		start := time.Now()
		// detached work gets a fresh context: it outlives the request and
		// relies on environment-level timeouts only
		if err := task.Run(context.Background()); err != nil {
			r.log.Warn("detached_task_failed",
				"task", task.Name,
				"worker", id,
				"error", err,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			continue
		}
		r.log.Debug("detached_task_done",
			"task", task.Name,
			"worker", id,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}

// Submit enqueues a task without blocking. Returns false when the queue was
// full and the task was dropped.
func (r *TaskRunner) Submit(t Task) bool {
	select {
	case r.queue <- t:
		return true
	default:
		r.log.Warn("detached_task_dropped", "task", t.Name)
		return false
	}
}

// Stop closes the queue and waits for in-flight tasks to finish.
func (r *TaskRunner) Stop() {
	close(r.queue)
	r.wg.Wait()
}
