// Package executor provides an ordered, single-consumer task queue: tasks
// submitted from any goroutine run one at a time, in submission order, on a
// dedicated worker goroutine. Submission never blocks.
//
// It is the serialization primitive behind the speech recognizer's state
// machine and the focus manager's observer notifications.
package executor

import "sync"

// Executor runs submitted tasks sequentially on one goroutine.
type Executor struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

// New creates an executor and starts its worker goroutine.
func New() *Executor {
	e := &Executor{done: make(chan struct{})}
	e.cond = sync.NewCond(&e.mu)
	go e.run()
	return e
}

// Submit enqueues task. It returns false (and drops the task) after Close.
func (e *Executor) Submit(task func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.queue = append(e.queue, task)
	e.cond.Signal()
	return true
}

// Close rejects further submissions, lets already-queued tasks finish, and
// waits for the worker to exit. Safe to call multiple times.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.closed = true
	e.cond.Signal()
	e.mu.Unlock()
	<-e.done
}

func (e *Executor) run() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		task := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()

		task()
	}
}
