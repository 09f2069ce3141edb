package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrTimeout      = errors.New("queue timeout")
	ErrDuplicateJob = errors.New("duplicate job id")
	ErrNotQueued    = errors.New("job is not waiting in the queue")
)

// Job is one unit of asynchronous work. ID is caller-supplied and derived
// from the underlying record's own id ("approval-<id>", "sync-<id>"), which
// makes re-enqueueing the same logical work a no-op.
type Job struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	RefID       string                 `json:"ref_id"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	Priority    int                    `json:"priority"`
	Attempts    int                    `json:"attempts"`
	MaxAttempts int                    `json:"max_attempts"`
	EnqueuedAt  time.Time              `json:"enqueued_at"`
}

type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Total     int64 `json:"total"`
}

// RetentionPolicy bounds the completed/failed bookkeeping lists by count
// (applied at write) and age (applied by Sweep).
type RetentionPolicy struct {
	CompletedAge   time.Duration
	CompletedCount int64
	FailedAge      time.Duration
	FailedCount    int64
}

// priorityBand separates priority classes in the ready zset score while the
// millisecond enqueue timestamp keeps FIFO order inside a class. Both fit a
// float64 mantissa.
const priorityBand = float64(1 << 42)

// RedisQueue is a durable, priority-ordered, at-least-once work queue.
// Coordination between workers happens only through redis operations; the
// queue keeps no in-process state.
type RedisQueue struct {
	client    *redis.Client
	name      string
	retention RetentionPolicy
}

func NewRedisClient(redisURL string) *redis.Client {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{Addr: redisURL}
	}
	return redis.NewClient(opt)
}

func NewRedisQueue(client *redis.Client, name string, retention RetentionPolicy) *RedisQueue {
	if retention.CompletedCount == 0 {
		retention.CompletedCount = 200
	}
	if retention.FailedCount == 0 {
		retention.FailedCount = 1000
	}
	return &RedisQueue{client: client, name: name, retention: retention}
}

func (q *RedisQueue) Name() string { return q.name }

func (q *RedisQueue) key(suffix string) string {
	return fmt.Sprintf("queue:%s:%s", q.name, suffix)
}

func score(priority int, at time.Time) float64 {
	return float64(priority)*priorityBand + float64(at.UnixMilli())
}

// Enqueue adds a job to the ready set. A job id already known to the queue
// (waiting, delayed, or active) is rejected with ErrDuplicateJob so the
// same logical unit of work never runs twice concurrently.
func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) error {
	if job.ID == "" {
		return errors.New("job id is required")
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	added, err := q.client.HSetNX(ctx, q.key("jobs"), job.ID, data).Result()
	if err != nil {
		return fmt.Errorf("failed to register job: %w", err)
	}
	if !added {
		return ErrDuplicateJob
	}

	err = q.client.ZAdd(ctx, q.key("ready"), redis.Z{
		Score:  score(job.Priority, job.EnqueuedAt),
		Member: job.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to push job: %w", err)
	}

	return nil
}

// Dequeue blocks up to timeout for the lowest-score ready job and claims
// it. A claimed job runs to completion or failure; there is no mid-flight
// cancellation.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BZPopMin(ctx, timeout, q.key("ready")).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("failed to pop job: %w", err)
	}

	jobID, ok := result.Member.(string)
	if !ok {
		return nil, errors.New("invalid member from queue")
	}

	data, err := q.client.HGet(ctx, q.key("jobs"), jobID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}

	if err := q.client.SAdd(ctx, q.key("active"), jobID).Err(); err != nil {
		return nil, fmt.Errorf("failed to claim job %s: %w", jobID, err)
	}

	return &job, nil
}

// Retry releases a claimed job back into the delayed set; the promoter
// moves it to ready once the backoff delay has elapsed. The stored payload
// is refreshed so the attempt counter survives the round trip.
func (q *RedisQueue) Retry(ctx context.Context, job *Job, delay time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.SRem(ctx, q.key("active"), job.ID)
	pipe.HSet(ctx, q.key("jobs"), job.ID, data)
	pipe.ZAdd(ctx, q.key("delayed"), redis.Z{
		Score:  float64(time.Now().Add(delay).UnixMilli()),
		Member: job.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to schedule retry for %s: %w", job.ID, err)
	}
	return nil
}

// PromoteDelayed moves due delayed jobs into the ready set. Returns the
// number promoted.
func (q *RedisQueue) PromoteDelayed(ctx context.Context) (int, error) {
	now := time.Now().UnixMilli()
	ids, err := q.client.ZRangeByScore(ctx, q.key("delayed"), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read delayed jobs: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	promoted := 0
	for _, id := range ids {
		data, err := q.client.HGet(ctx, q.key("jobs"), id).Result()
		if err != nil {
			// Orphaned delayed entry; drop it.
			q.client.ZRem(ctx, q.key("delayed"), id)
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			q.client.ZRem(ctx, q.key("delayed"), id)
			continue
		}

		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, q.key("delayed"), id)
		pipe.ZAdd(ctx, q.key("ready"), redis.Z{
			Score:  score(job.Priority, time.Now()),
			Member: id,
		})
		if _, err := pipe.Exec(ctx); err != nil {
			return promoted, fmt.Errorf("failed to promote job %s: %w", id, err)
		}
		promoted++
	}
	return promoted, nil
}

type finishedEntry struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Attempts   int       `json:"attempts"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Complete marks a claimed job terminally successful and releases its id
// for future re-enqueues of the same logical work.
func (q *RedisQueue) Complete(ctx context.Context, job *Job) error {
	return q.finish(ctx, job, "completed", q.retention.CompletedCount, "")
}

// Fail marks a claimed job terminally failed after its attempts are
// exhausted (or a non-retryable error).
func (q *RedisQueue) Fail(ctx context.Context, job *Job, jobErr string) error {
	return q.finish(ctx, job, "failed", q.retention.FailedCount, jobErr)
}

func (q *RedisQueue) finish(ctx context.Context, job *Job, list string, keep int64, jobErr string) error {
	entry, err := json.Marshal(finishedEntry{
		ID:         job.ID,
		Type:       job.Type,
		Attempts:   job.Attempts,
		Error:      jobErr,
		FinishedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal finished entry: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.SRem(ctx, q.key("active"), job.ID)
	pipe.HDel(ctx, q.key("jobs"), job.ID)
	pipe.LPush(ctx, q.key(list), entry)
	pipe.LTrim(ctx, q.key(list), 0, keep-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to finish job %s: %w", job.ID, err)
	}
	return nil
}

// Cancel removes a still-waiting job, or releases a registered id whose
// schedule entry was lost. Jobs already claimed by a worker cannot be
// cancelled.
func (q *RedisQueue) Cancel(ctx context.Context, jobID string) error {
	removed, err := q.client.ZRem(ctx, q.key("ready"), jobID).Result()
	if err != nil {
		return fmt.Errorf("failed to cancel job %s: %w", jobID, err)
	}
	if removed == 0 {
		// Might be sitting in the delayed set.
		removed, err = q.client.ZRem(ctx, q.key("delayed"), jobID).Result()
		if err != nil {
			return fmt.Errorf("failed to cancel job %s: %w", jobID, err)
		}
	}
	if removed == 0 {
		// A crash between registering the id and scheduling it can leave
		// an entry in the jobs hash that no set references, permanently
		// blocking re-enqueue. Release it here, but never touch a job a
		// worker has claimed.
		active, err := q.client.SIsMember(ctx, q.key("active"), jobID).Result()
		if err != nil {
			return fmt.Errorf("failed to cancel job %s: %w", jobID, err)
		}
		if active {
			return ErrNotQueued
		}
		deleted, err := q.client.HDel(ctx, q.key("jobs"), jobID).Result()
		if err != nil {
			return fmt.Errorf("failed to cancel job %s: %w", jobID, err)
		}
		if deleted == 0 {
			return ErrNotQueued
		}
		return nil
	}
	return q.client.HDel(ctx, q.key("jobs"), jobID).Err()
}

func (q *RedisQueue) Stats(ctx context.Context) (*Stats, error) {
	pipe := q.client.Pipeline()
	waiting := pipe.ZCard(ctx, q.key("ready"))
	delayed := pipe.ZCard(ctx, q.key("delayed"))
	active := pipe.SCard(ctx, q.key("active"))
	completed := pipe.LLen(ctx, q.key("completed"))
	failed := pipe.LLen(ctx, q.key("failed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}

	s := &Stats{
		Waiting:   waiting.Val(),
		Delayed:   delayed.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}
	s.Total = s.Waiting + s.Delayed + s.Active + s.Completed + s.Failed
	return s, nil
}

// Sweep enforces the age half of the retention policy by dropping finished
// entries older than the configured windows. The count half is enforced at
// write time.
func (q *RedisQueue) Sweep(ctx context.Context) error {
	if err := q.sweepList(ctx, q.key("completed"), q.retention.CompletedAge); err != nil {
		return err
	}
	return q.sweepList(ctx, q.key("failed"), q.retention.FailedAge)
}

func (q *RedisQueue) sweepList(ctx context.Context, key string, maxAge time.Duration) error {
	if maxAge <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-maxAge)

	for {
		data, err := q.client.LIndex(ctx, key, -1).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to inspect %s: %w", key, err)
		}

		var entry finishedEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			// Unreadable tail entry; drop it and keep going.
			q.client.RPop(ctx, key)
			continue
		}
		if entry.FinishedAt.After(cutoff) {
			return nil
		}
		if err := q.client.RPop(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to trim %s: %w", key, err)
		}
	}
}
