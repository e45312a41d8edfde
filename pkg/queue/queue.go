package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketJobs = []byte("build_jobs")

// ErrNotFound indicates the job is not in the queue.
var ErrNotFound = errors.New("queue: job not found")

// Job is a unit of build work carried from submission to a worker.
// The ID is the build's ID, which is what makes redelivery detectable
// downstream: a worker that sees a job for a build that already left
// "pending" skips it.
type Job struct {
	ID             string            `json:"id"`
	ProjectID      string            `json:"project_id"`
	RepoURL        string            `json:"repo_url"`
	CommitSHA      string            `json:"commit_sha"`
	Branch         string            `json:"branch"`
	DockerfilePath string            `json:"dockerfile_path"`
	BuildArgs      map[string]string `json:"build_args,omitempty"`
	EnqueuedAt     time.Time         `json:"enqueued_at"`
	LeaseUntil     time.Time         `json:"lease_until,omitempty"`
	Attempts       int               `json:"attempts"`
}

// Queue is a durable, at-least-once build job queue backed by BoltDB.
// Dequeued jobs are leased; a job whose lease expires without an Ack is
// redelivered to the next consumer.
type Queue struct {
	db     *bolt.DB
	lease  time.Duration
	poll   time.Duration
	wakeCh chan struct{}
}

// Option configures a Queue
type Option func(*Queue)

// WithLease overrides the default 2-minute delivery lease
func WithLease(d time.Duration) Option {
	return func(q *Queue) { q.lease = d }
}

// WithPollInterval overrides how often blocked consumers rescan for
// expired leases
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) { q.poll = d }
}

// NewQueue opens the queue database in dataDir
func NewQueue(dataDir string, opts ...Option) (*Queue, error) {
	db, err := bolt.Open(filepath.Join(dataDir, "queue.db"), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketJobs)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	q := &Queue{
		db:     db,
		lease:  2 * time.Minute,
		poll:   time.Second,
		wakeCh: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Close closes the queue database
func (q *Queue) Close() error {
	return q.db.Close()
}

// Enqueue durably adds a job. Enqueueing the same job ID twice overwrites
// the previous entry, which keeps submission idempotent.
func (q *Queue) Enqueue(job *Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	err := q.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(job)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketJobs).Put([]byte(job.ID), data)
	})
	if err != nil {
		return err
	}

	// Wake one blocked consumer
	select {
	case q.wakeCh <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue blocks until a job is available or ctx is done. The returned job
// is leased: the consumer must Ack it when done or Nack it to hand it back.
// An expired lease makes the job deliverable again.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	for {
		job, err := q.claim()
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.wakeCh:
		case <-time.After(q.poll):
		}
	}
}

// claim leases the oldest available job, or returns nil when none is due
func (q *Queue) claim() (*Job, error) {
	var claimed *Job
	err := q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		now := time.Now()

		var oldest *Job
		err := b.ForEach(func(k, v []byte) error {
			var job Job
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			if job.LeaseUntil.After(now) {
				return nil // Currently delivered elsewhere
			}
			if oldest == nil || job.EnqueuedAt.Before(oldest.EnqueuedAt) {
				oldest = &job
			}
			return nil
		})
		if err != nil {
			return err
		}
		if oldest == nil {
			return nil
		}

		oldest.LeaseUntil = now.Add(q.lease)
		oldest.Attempts++
		data, err := json.Marshal(oldest)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(oldest.ID), data); err != nil {
			return err
		}
		claimed = oldest
		return nil
	})
	return claimed, err
}

// Ack removes a completed job from the queue
func (q *Queue) Ack(id string) error {
	return q.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).Delete([]byte(id))
	})
}

// Nack clears a job's lease so it is redelivered immediately
func (q *Queue) Nack(id string) error {
	err := q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		var job Job
		if err := json.Unmarshal(data, &job); err != nil {
			return err
		}
		job.LeaseUntil = time.Time{}
		out, err := json.Marshal(&job)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), out)
	})
	if err != nil {
		return err
	}
	select {
	case q.wakeCh <- struct{}{}:
	default:
	}
	return nil
}

// Remove deletes a pending job outright, used by build cancellation.
// Removing an already-claimed or already-acked job is a no-op.
func (q *Queue) Remove(id string) error {
	return q.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).Delete([]byte(id))
	})
}

// Depth returns the number of jobs currently queued or in flight
func (q *Queue) Depth() (int, error) {
	var n int
	err := q.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketJobs).Stats().KeyN
		return nil
	})
	return n, err
}
