// Package worker consumes organizer sync jobs from the Redis queue.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/ticketsync/internal/reconciler"
	"github.com/aura-events/ticketsync/internal/scheduler"
	"github.com/aura-events/ticketsync/pkg/queue"
)

// JobQueue is the part of queue.Queue the worker uses.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job, cause error) error
	Requeue(ctx context.Context, job *queue.Job) error
	DeadLetter(ctx context.Context, job *queue.Job, cause error) error
}

// OrganizerRunner runs one organizer sync.
type OrganizerRunner interface {
	RunOrganizer(ctx context.Context, id uuid.UUID) error
}

// SyncProcessor runs sync_organizer jobs.
type SyncProcessor struct {
	runner  OrganizerRunner
	queue   JobQueue
	logger  *zap.Logger
	backoff time.Duration
}

// NewSyncProcessor creates a sync job processor. backoff <= 0 uses queue.RetryBackoff.
func NewSyncProcessor(runner OrganizerRunner, q JobQueue, backoff time.Duration, logger *zap.Logger) *SyncProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if backoff <= 0 {
		backoff = queue.RetryBackoff
	}
	return &SyncProcessor{runner: runner, queue: q, logger: logger, backoff: backoff}
}

// errPermanent marks failures that retrying cannot fix.
var errPermanent = errors.New("permanent failure")

// Process executes one sync job.
func (p *SyncProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeSyncOrganizer {
		return fmt.Errorf("%w: unknown job type: %s", errPermanent, job.Type)
	}
	var payload queue.SyncPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("%w: unmarshal payload: %v", errPermanent, err)
	}
	log := p.logger.With(
		zap.String("job_id", job.ID),
		zap.String("organizer_id", payload.OrganizerID.String()),
		zap.String("requested_by", payload.RequestedBy),
	)
	if err := p.runner.RunOrganizer(ctx, payload.OrganizerID); err != nil {
		return err
	}
	log.Info("sync job completed", zap.Int("attempt", job.Attempt))
	return nil
}

// handleFailure decides between retry, requeue and dead-lettering.
// Validation failures are configuration problems and go straight to the DLQ.
func (p *SyncProcessor) handleFailure(ctx context.Context, job *queue.Job, err error) error {
	if errors.Is(err, scheduler.ErrAlreadyRunning) {
		p.logger.Info("organizer busy, requeueing job", zap.String("job_id", job.ID))
		return p.queue.Requeue(ctx, job)
	}
	if phase, ok := reconciler.FailedPhase(err); ok && phase == reconciler.PhaseValidating {
		return p.queue.DeadLetter(ctx, job, err)
	}
	if errors.Is(err, scheduler.ErrUnknownOrganizer) || errors.Is(err, errPermanent) {
		return p.queue.DeadLetter(ctx, job, err)
	}
	return p.queue.Retry(ctx, job, err)
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *SyncProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("sync worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, queue.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if ctx.Err() != nil {
				// Shutting down: give the job back untouched.
				if reErr := p.queue.Requeue(context.WithoutCancel(ctx), job); reErr != nil {
					p.logger.Error("requeue on shutdown failed", zap.Error(reErr))
				}
				continue
			}
			if reErr := p.handleFailure(ctx, job, err); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *SyncProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
