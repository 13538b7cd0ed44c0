package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Signal tells the dispatcher worker that new work exists. The payload
// identifies what was enqueued; the worker drains everything pending
// regardless, so a lost signal only delays delivery until the next one
// or the periodic drain.
type Signal struct {
	Kind           string `json:"kind"`
	NotificationID string `json:"notification_id,omitempty"`
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, sig Signal) error
	Consume(ctx context.Context) (<-chan Signal, error)
}

// InMemory is a channel-backed queue for dev and tests, usable only
// when api and worker share a process.
type InMemory struct {
	ch chan Signal
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Signal, size)}
}

// Publish enqueues a signal.
func (q *InMemory) Publish(ctx context.Context, sig Signal) error {
	select {
	case q.ch <- sig:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for the worker.
func (q *InMemory) Consume(ctx context.Context) (<-chan Signal, error) {
	out := make(chan Signal)
	go func() {
		defer close(out)
		for {
			select {
			case sig := <-q.ch:
				out <- sig
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue implements a Redis list-backed queue so the api and worker
// can run as separate processes.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "schoolattend:notify"
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues a signal.
func (q *RedisQueue) Publish(ctx context.Context, sig Signal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, payload).Err()
}

// Consume streams signals using BRPOP.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Signal, error) {
	out := make(chan Signal)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if len(res) == 2 {
				var sig Signal
				if err := json.Unmarshal([]byte(res[1]), &sig); err == nil {
					out <- sig
				}
			}
		}
	}()
	return out, nil
}
