// Package shutdownqueue runs cleanup tasks in LIFO order at process exit.
//
// Components register named tasks as they are constructed; main drains the
// queue once with a deadline:
//
//	q := shutdownqueue.New()
//	defer func() { err = errors.Join(err, q.Shutdown(ctx)) }()
//
// Tasks run once. Panics are recovered. Shutdown is idempotent and returns an
// aggregated error via errors.Join.
package shutdownqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Task is a shutdown function. It should honor ctx and return an error
// if it can't finish (or ctx is canceled).
type Task func(ctx context.Context) error

type namedTask struct {
	name string
	run  Task
}

type Queue struct {
	mu     sync.Mutex
	tasks  []namedTask
	closed bool
}

func New() *Queue {
	return &Queue{tasks: make([]namedTask, 0, 8)}
}

// Add registers a task to run on Shutdown. Nil tasks and tasks added after
// shutdown started are ignored.
func (q *Queue) Add(name string, t Task) {
	if t == nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		slog.Warn("shutdown already started, task ignored", "task", name)
		return
	}

	q.tasks = append(q.tasks, namedTask{name: name, run: t})
}

// Len reports the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.tasks)
}

// Shutdown drains the queue in LIFO order. If ctx ends mid-drain the remaining
// tasks are skipped and the context error is joined with task errors so far.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	tasks := q.tasks
	q.tasks = nil
	q.mu.Unlock()

	var errs []error

	for i := len(tasks) - 1; i >= 0; i-- {
		t := tasks[i]

		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("shutdown canceled before %q: %w", t.name, ctx.Err()))

			return errors.Join(errs...)
		}

		start := time.Now()

		err := runTask(ctx, t)
		if err != nil {
			slog.Error("shutdown task failed", "task", t.name, "error", err)
			errs = append(errs, err)

			continue
		}

		slog.Info("shutdown task done", "task", t.name, "took", time.Since(start))
	}

	return errors.Join(errs...)
}

func runTask(ctx context.Context, t namedTask) (err error) {
	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("panic in shutdown task %q: %v", t.name, r)
		}
	}()

	err = t.run(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", t.name, err)
	}

	return nil
}
