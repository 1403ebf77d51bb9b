// Package redisqueue stores payload records in Redis. Record identifiers are
// kept in a list for FIFO order and the encoded records in a hash, so a
// record can be removed by identifier without re-encoding it. Records that
// cannot be decoded are moved to a dead-letter hash under <key>:dead.
// Durability follows the server's persistence settings (AOF recommended).
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/JohnPlummer/jp-go-delivery/payload"
)

// DefaultKey is the key prefix used when none is configured.
const DefaultKey = "delivery:payloads"

// Queue implements payload.Queue on Redis.
type Queue struct {
	client  redis.UniversalClient
	listKey string
	dataKey string
	deadKey string
	logger  *slog.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger used to report dead-lettered records.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

var _ payload.Queue = (*Queue)(nil)

// New creates a queue stored under key (DefaultKey when empty).
func New(client redis.UniversalClient, key string, opts ...Option) *Queue {
	if key == "" {
		key = DefaultKey
	}
	q := &Queue{
		client:  client,
		listKey: key + ":order",
		dataKey: key + ":records",
		deadKey: key + ":dead",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.logger == nil {
		q.logger = slog.Default()
	}
	return q
}

// Open connects to the Redis server at addr and verifies the connection.
func Open(ctx context.Context, addr, password string, db int, key string, opts ...Option) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return New(client, key, opts...), nil
}

// Close closes the underlying client.
func (q *Queue) Close() error {
	return q.client.Close()
}

// Enqueue implements payload.Queue.
func (q *Queue) Enqueue(ctx context.Context, record *payload.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode payload %s: %w", record.ID, err)
	}
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.dataKey, record.ID, data)
		pipe.RPush(ctx, q.listKey, record.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueue payload %s: %w", record.ID, err)
	}
	return nil
}

// PeekOldest implements payload.Queue.
func (q *Queue) PeekOldest(ctx context.Context) (*payload.Record, error) {
	for {
		id, err := q.client.LIndex(ctx, q.listKey, 0).Result()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("peek oldest payload: %w", err)
		}

		data, err := q.client.HGet(ctx, q.dataKey, id).Bytes()
		if errors.Is(err, redis.Nil) {
			// Orphaned identifier left by an interrupted delete.
			if err := q.client.LRem(ctx, q.listKey, 1, id).Err(); err != nil {
				return nil, fmt.Errorf("drop orphaned payload %s: %w", id, err)
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load payload %s: %w", id, err)
		}

		var record payload.Record
		if decodeErr := json.Unmarshal(data, &record); decodeErr != nil {
			if err := q.deadLetter(ctx, id, data); err != nil {
				return nil, err
			}
			q.logger.Error("moved undecodable payload to dead letter",
				"id", id,
				"key", q.deadKey,
				"error", decodeErr)
			continue
		}
		return &record, nil
	}
}

// deadLetter moves the raw record out of the queue into the dead-letter hash.
func (q *Queue) deadLetter(ctx context.Context, id string, data []byte) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.deadKey, id, data)
		pipe.LRem(ctx, q.listKey, 1, id)
		pipe.HDel(ctx, q.dataKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("dead-letter payload %s: %w", id, err)
	}
	return nil
}

// Delete implements payload.Queue.
func (q *Queue) Delete(ctx context.Context, record *payload.Record) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.listKey, 1, record.ID)
		pipe.HDel(ctx, q.dataKey, record.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete payload %s: %w", record.ID, err)
	}
	return nil
}

// Len returns the number of queued records.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.listKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count payloads: %w", err)
	}
	return n, nil
}
