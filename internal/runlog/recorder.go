package runlog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/ticketsync/internal/reconciler"
	"github.com/aura-events/ticketsync/internal/scheduler"
)

const writeTimeout = 5 * time.Second

// Store is the part of Repository the Recorder writes to.
type Store interface {
	LogStart(ctx context.Context, organizerID uuid.UUID, at time.Time) error
	LogFinish(ctx context.Context, organizerID uuid.UUID, finishedAt time.Time, phase reconciler.Phase, errMsg string) error
}

// Recorder writes the run log as a scheduler.Notifier. Write failures are logged only;
// the run log never fails a sync.
type Recorder struct {
	store  Store
	logger *zap.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(store Store, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, logger: logger}
}

// RunStarted opens a run log row.
func (r *Recorder) RunStarted(organizerID uuid.UUID, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.store.LogStart(ctx, organizerID, at); err != nil {
		r.logger.Warn("log run start failed", zap.String("organizer_id", organizerID.String()), zap.Error(err))
	}
}

// RunFinished closes the run log row.
func (r *Recorder) RunFinished(organizerID uuid.UUID, rec scheduler.RunRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.store.LogFinish(ctx, organizerID, rec.FinishedAt, rec.Phase, rec.Error); err != nil {
		r.logger.Warn("log run finish failed", zap.String("organizer_id", organizerID.String()), zap.Error(err))
	}
}
