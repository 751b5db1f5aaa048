package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueSync is the Redis list key for organizer sync jobs.
	QueueSync = "worker:sync"
	// QueueDLQ is the dead-letter queue for jobs that failed for good.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of attempts before a job is moved to the DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
	// PollTimeout bounds one blocking pop so the worker notices shutdown.
	PollTimeout = 5 * time.Second
)

// JobType identifies the job kind.
type JobType string

const JobTypeSyncOrganizer JobType = "sync_organizer"

// SyncPayload is the payload for sync_organizer jobs.
type SyncPayload struct {
	OrganizerID uuid.UUID `json:"organizer_id"`
	RequestedBy string    `json:"requested_by"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	LastError string          `json:"last_error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client redis.Cmdable
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client redis.Cmdable, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// NewSyncJob builds a sync_organizer job.
func NewSyncJob(payload SyncPayload) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Job{
		ID:        uuid.New().String(),
		Type:      JobTypeSyncOrganizer,
		Payload:   body,
		CreatedAt: time.Now(),
	}, nil
}

// EnqueueSync enqueues a sync job for one organizer and returns the job id.
func (q *Queue) EnqueueSync(ctx context.Context, payload SyncPayload) (string, error) {
	job, err := NewSyncJob(payload)
	if err != nil {
		return "", err
	}
	if err := q.push(ctx, QueueSync, job); err != nil {
		return "", err
	}
	q.logger.Debug("enqueued sync job",
		zap.String("job_id", job.ID),
		zap.String("organizer_id", payload.OrganizerID.String()),
		zap.String("requested_by", payload.RequestedBy),
	)
	return job.ID, nil
}

func (q *Queue) push(ctx context.Context, key string, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", key, err)
	}
	return nil
}

// Dequeue waits up to timeout for a sync job. It returns nil, nil when none arrived.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, QueueSync).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job, cause error) error {
	job.Attempt++
	job.LastError = errString(cause)
	if job.Attempt >= MaxRetries {
		return q.DeadLetter(ctx, job, cause)
	}
	if err := q.push(ctx, QueueSync, job); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}

// Requeue puts a job back without counting an attempt.
func (q *Queue) Requeue(ctx context.Context, job *Job) error {
	return q.push(ctx, QueueSync, job)
}

// DeadLetter moves a job to the DLQ.
func (q *Queue) DeadLetter(ctx context.Context, job *Job, cause error) error {
	job.LastError = errString(cause)
	if err := q.push(ctx, QueueDLQ, job); err != nil {
		q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
		return err
	}
	q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.String("error", job.LastError))
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
