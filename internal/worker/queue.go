package worker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue is a FIFO of JSON-encoded jobs. Next and TryNext return redis.Nil
// when no job is available.
type Queue interface {
	// Next blocks up to timeout for one job.
	Next(ctx context.Context, timeout time.Duration) (string, error)
	// TryNext takes a job without blocking.
	TryNext(ctx context.Context) (string, error)
	// Push appends jobs to the tail.
	Push(ctx context.Context, jobs ...string) error
}

// RedisQueue is a Queue backed by a Redis list (RPUSH in, BLPOP out).
type RedisQueue struct {
	rdb *redis.Client
	key string
}

// NewRedisQueue creates a RedisQueue over the list at key.
func NewRedisQueue(rdb *redis.Client, key string) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: key}
}

func (q *RedisQueue) Next(ctx context.Context, timeout time.Duration) (string, error) {
	result, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if err != nil {
		return "", err
	}
	if len(result) < 2 {
		return "", redis.Nil
	}
	return result[1], nil
}

func (q *RedisQueue) TryNext(ctx context.Context) (string, error) {
	return q.rdb.LPop(ctx, q.key).Result()
}

func (q *RedisQueue) Push(ctx context.Context, jobs ...string) error {
	if len(jobs) == 0 {
		return nil
	}
	pipe := q.rdb.Pipeline()
	for _, job := range jobs {
		pipe.RPush(ctx, q.key, job)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
