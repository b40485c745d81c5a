package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	q := NewRedisQueue(rdb, "test:jobs")
	q.popTimeout = 100 * time.Millisecond
	return q, mr
}

func TestPushPopIsFIFO(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)

	for _, id := range []string{"job_1", "job_2", "job_3"} {
		require.NoError(t, q.Push(ctx, id))
	}
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	for _, want := range []string{"job_1", "job_2", "job_3"} {
		got, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestPopEmptyTimesOut(t *testing.T) {
	q, _ := newQueue(t)

	got, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPopWakesOnPush(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)
	q.popTimeout = 2 * time.Second

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = q.Push(ctx, "job_late")
	}()

	got, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job_late", got)
}

func TestPushUnavailable(t *testing.T) {
	q, mr := newQueue(t)
	mr.Close()

	err := q.Push(context.Background(), "job_1")
	require.Error(t, err)
}
