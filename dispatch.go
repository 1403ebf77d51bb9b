package delivery

import (
	"log/slog"
	"sync"
	"time"
)

// Task is a unit of work executed on an ExecutionQueue.
type Task func()

// ExecutionQueue runs tasks one at a time in the order they were dispatched.
// All state owned by a Client or a payload sender is touched only from tasks
// running on its queue.
type ExecutionQueue interface {
	// Dispatch schedules task to run as soon as the queue is free.
	Dispatch(task Task)

	// DispatchAfter schedules task to run once delay has elapsed.
	DispatchAfter(delay time.Duration, task Task)
}

// ImmediateQueue runs every task inline on the calling goroutine.
// Delays are ignored. It is the default callback queue.
type ImmediateQueue struct{}

// Dispatch runs task immediately.
func (ImmediateQueue) Dispatch(task Task) {
	task()
}

// DispatchAfter runs task immediately, ignoring delay.
func (ImmediateQueue) DispatchAfter(_ time.Duration, task Task) {
	task()
}

// SerialQueue runs tasks sequentially on a single background goroutine.
// Dispatch never blocks, so tasks may safely schedule follow-up work on the
// queue they are running on.
type SerialQueue struct {
	name    string
	logger  *slog.Logger
	mu      sync.Mutex
	pending []Task
	wake    chan struct{}
	done    chan struct{}
	stopped bool
}

// NewSerialQueue starts a serial queue. Call Stop to release its goroutine.
func NewSerialQueue(name string, logger *slog.Logger) *SerialQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &SerialQueue{
		name:   name,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.loop()
	return q
}

// Dispatch appends task to the queue.
func (q *SerialQueue) Dispatch(task Task) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		q.logger.Warn("task dropped: queue stopped", "queue", q.name)
		return
	}
	q.pending = append(q.pending, task)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// DispatchAfter appends task to the queue once delay has elapsed.
func (q *SerialQueue) DispatchAfter(delay time.Duration, task Task) {
	if delay <= 0 {
		q.Dispatch(task)
		return
	}
	time.AfterFunc(delay, func() {
		q.Dispatch(task)
	})
}

// Stop stops the queue after the task currently running finishes.
// Pending and delayed tasks are discarded.
func (q *SerialQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.pending = nil
	q.mu.Unlock()
	close(q.done)
}

func (q *SerialQueue) loop() {
	for {
		select {
		case <-q.done:
			return
		case <-q.wake:
		}

		for {
			q.mu.Lock()
			if q.stopped || len(q.pending) == 0 {
				q.mu.Unlock()
				break
			}
			task := q.pending[0]
			q.pending[0] = nil
			q.pending = q.pending[1:]
			q.mu.Unlock()

			q.run(task)
		}
	}
}

func (q *SerialQueue) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("task panicked", "queue", q.name, "panic", r)
		}
	}()
	task()
}

// ManualQueue holds tasks until DispatchAll is called. It gives tests
// deterministic, single-step control over a client or sender: DispatchAll runs
// exactly the tasks that were pending when it was called, and anything those
// tasks schedule (including delayed retries) waits for the next call.
// Delays are recorded but never slept.
type ManualQueue struct {
	mu      sync.Mutex
	pending []Task
	delays  []time.Duration
}

// NewManualQueue returns an empty manual queue.
func NewManualQueue() *ManualQueue {
	return &ManualQueue{}
}

// Dispatch records task for the next DispatchAll.
func (q *ManualQueue) Dispatch(task Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, task)
}

// DispatchAfter records task and its delay for the next DispatchAll.
func (q *ManualQueue) DispatchAfter(delay time.Duration, task Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, task)
	q.delays = append(q.delays, delay)
}

// DispatchAll runs the tasks pending at the time of the call and returns how
// many ran.
func (q *ManualQueue) DispatchAll() int {
	q.mu.Lock()
	tasks := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, task := range tasks {
		task()
	}
	return len(tasks)
}

// Pending returns the number of tasks waiting for DispatchAll.
func (q *ManualQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Delays returns every delay passed to DispatchAfter so far.
func (q *ManualQueue) Delays() []time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]time.Duration, len(q.delays))
	copy(out, q.delays)
	return out
}
