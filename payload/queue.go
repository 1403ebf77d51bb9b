package payload

import (
	"context"
	"sync"
)

// Queue is an ordered store of unsent payload records. Durable
// implementations must survive process restarts without losing, duplicating
// or reordering records. A Queue is owned by a single Sender.
type Queue interface {
	// Enqueue appends record to the tail.
	Enqueue(ctx context.Context, record *Record) error

	// PeekOldest returns the head record without removing it, or nil when
	// the queue is empty.
	PeekOldest(ctx context.Context) (*Record, error)

	// Delete removes record. Deleting a record that is not queued is a no-op.
	Delete(ctx context.Context, record *Record) error
}

// MemoryQueue is a non-durable Queue for tests and short-lived processes.
type MemoryQueue struct {
	mu      sync.Mutex
	records []*Record
}

var _ Queue = (*MemoryQueue)(nil)

// NewMemoryQueue returns an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// Enqueue implements Queue.
func (q *MemoryQueue) Enqueue(_ context.Context, record *Record) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.records = append(q.records, record)
	return nil
}

// PeekOldest implements Queue.
func (q *MemoryQueue) PeekOldest(_ context.Context) (*Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.records) == 0 {
		return nil, nil
	}
	return q.records[0], nil
}

// Delete implements Queue.
func (q *MemoryQueue) Delete(_ context.Context, record *Record) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, r := range q.records {
		if r.ID == record.ID {
			q.records = append(q.records[:i], q.records[i+1:]...)
			return nil
		}
	}
	return nil
}

// Len returns the number of queued records.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

// Records returns the queued records in FIFO order.
func (q *MemoryQueue) Records() []*Record {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Record, len(q.records))
	copy(out, q.records)
	return out
}
