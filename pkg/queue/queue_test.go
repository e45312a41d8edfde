package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T, opts ...Option) *Queue {
	t.Helper()
	q, err := NewQueue(t.TempDir(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestEnqueueDequeueAck(t *testing.T) {
	q := newTestQueue(t)

	require.NoError(t, q.Enqueue(&Job{ID: "job-1", CommitSHA: "abc"}))

	depth, err := q.Depth()
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, 1, job.Attempts)

	require.NoError(t, q.Ack(job.ID))
	depth, err = q.Depth()
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestDequeueBlocksUntilEnqueue(t *testing.T) {
	q := newTestQueue(t, WithPollInterval(10*time.Millisecond))

	got := make(chan *Job, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		job, err := q.Dequeue(ctx)
		if err == nil {
			got <- job
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Enqueue(&Job{ID: "late"}))

	select {
	case job := <-got:
		assert.Equal(t, "late", job.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("dequeue did not observe the enqueue")
	}
}

func TestLeaseExpiryRedelivers(t *testing.T) {
	q := newTestQueue(t, WithLease(30*time.Millisecond), WithPollInterval(10*time.Millisecond))

	require.NoError(t, q.Enqueue(&Job{ID: "job-1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Attempts)

	// No Ack: once the lease lapses the job comes back
	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-1", second.ID)
	assert.Equal(t, 2, second.Attempts)
}

func TestNackRedeliversImmediately(t *testing.T) {
	q := newTestQueue(t, WithLease(time.Hour), WithPollInterval(10*time.Millisecond))

	require.NoError(t, q.Enqueue(&Job{ID: "job-1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Nack(job.ID))

	again, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-1", again.ID)
}

func TestOldestFirst(t *testing.T) {
	q := newTestQueue(t)

	old := time.Now().Add(-time.Hour)
	require.NoError(t, q.Enqueue(&Job{ID: "newer", EnqueuedAt: old.Add(time.Minute)}))
	require.NoError(t, q.Enqueue(&Job{ID: "older", EnqueuedAt: old}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "older", job.ID)
}

func TestRemove(t *testing.T) {
	q := newTestQueue(t)

	require.NoError(t, q.Enqueue(&Job{ID: "job-1"}))
	require.NoError(t, q.Remove("job-1"))

	depth, err := q.Depth()
	require.NoError(t, err)
	assert.Equal(t, 0, depth)

	// Removing an absent job is a no-op
	require.NoError(t, q.Remove("job-1"))
}

func TestEnqueueIsIdempotent(t *testing.T) {
	q := newTestQueue(t)

	require.NoError(t, q.Enqueue(&Job{ID: "job-1", CommitSHA: "v1"}))
	require.NoError(t, q.Enqueue(&Job{ID: "job-1", CommitSHA: "v2"}))

	depth, err := q.Depth()
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}
