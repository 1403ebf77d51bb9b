package delivery

import (
	"context"
	"sync"
)

// Future is the eventual outcome of a request: exactly one value or exactly one
// error. Continuations registered with Then and Catch run on the callback queue
// the future was created with, at most once each.
type Future[T any] struct {
	queue ExecutionQueue

	mu        sync.Mutex
	resolved  bool
	value     T
	err       error
	onSuccess []func(T)
	onFailure []func(error)
	done      chan struct{}
}

// NewFuture creates an unresolved future whose continuations run on queue.
// A nil queue runs them inline.
func NewFuture[T any](queue ExecutionQueue) *Future[T] {
	if queue == nil {
		queue = ImmediateQueue{}
	}
	return &Future[T]{
		queue: queue,
		done:  make(chan struct{}),
	}
}

// Resolve completes the future with value.
// Resolving a future twice panics with ErrAlreadyResolved.
func (f *Future[T]) Resolve(value T) {
	f.complete(value, nil)
}

// Reject completes the future with err. A nil err is replaced by
// ErrMissingError so the future still fails.
// Resolving a future twice panics with ErrAlreadyResolved.
func (f *Future[T]) Reject(err error) {
	if err == nil {
		err = ErrMissingError
	}
	var zero T
	f.complete(zero, err)
}

func (f *Future[T]) complete(value T, err error) {
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		panic(ErrAlreadyResolved)
	}
	f.resolved = true
	f.value = value
	f.err = err
	onSuccess := f.onSuccess
	onFailure := f.onFailure
	f.onSuccess = nil
	f.onFailure = nil
	close(f.done)
	f.mu.Unlock()

	if err != nil {
		for _, fn := range onFailure {
			f.deliverFailure(fn, err)
		}
		return
	}
	for _, fn := range onSuccess {
		f.deliverSuccess(fn, value)
	}
}

// Then registers fn to receive the value on success.
func (f *Future[T]) Then(fn func(T)) *Future[T] {
	f.mu.Lock()
	if !f.resolved {
		f.onSuccess = append(f.onSuccess, fn)
		f.mu.Unlock()
		return f
	}
	value, err := f.value, f.err
	f.mu.Unlock()

	if err == nil {
		f.deliverSuccess(fn, value)
	}
	return f
}

// Catch registers fn to receive the error on failure.
func (f *Future[T]) Catch(fn func(error)) *Future[T] {
	f.mu.Lock()
	if !f.resolved {
		f.onFailure = append(f.onFailure, fn)
		f.mu.Unlock()
		return f
	}
	err := f.err
	f.mu.Unlock()

	if err != nil {
		f.deliverFailure(fn, err)
	}
	return f
}

// Await blocks until the future resolves or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed once the future resolves.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

func (f *Future[T]) deliverSuccess(fn func(T), value T) {
	f.queue.Dispatch(func() { fn(value) })
}

func (f *Future[T]) deliverFailure(fn func(error), err error) {
	f.queue.Dispatch(func() { fn(err) })
}
