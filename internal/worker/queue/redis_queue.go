package queue

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"

	"upscaled/internal/pkg/errors"
)

// DefaultPopTimeout bounds one BRPOP so consumers notice shutdown.
const DefaultPopTimeout = 5 * time.Second

// RedisQueue is a FIFO of job ids on a Redis list: LPUSH in, BRPOP out.
type RedisQueue struct {
	rdb        *redis.Client
	queueName  string
	popTimeout time.Duration
}

func NewRedisQueue(rdb *redis.Client, queueName string) *RedisQueue {
	return &RedisQueue{rdb: rdb, queueName: queueName, popTimeout: DefaultPopTimeout}
}

// Push enqueues a job id.
func (q *RedisQueue) Push(ctx context.Context, jobID string) error {
	if err := q.rdb.LPush(ctx, q.queueName, jobID).Err(); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "queue.push", "enqueue job").WithField("job_id", jobID)
	}
	return nil
}

// Pop blocks up to the pop timeout for the oldest id. It returns "" when the
// queue stayed empty.
func (q *RedisQueue) Pop(ctx context.Context) (string, error) {
	res, err := q.rdb.BRPop(ctx, q.popTimeout, q.queueName).Result()
	if stderrors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if len(res) < 2 {
		return "", nil
	}
	return res[1], nil
}

// Len reports how many ids are waiting.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.queueName).Result()
}
