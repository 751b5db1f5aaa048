// Package reconciler mirrors an organizer's registry events, items and paid tickets into
// local storage and pushes local check-ins back to the registry.
//
// A run moves through four phases: fetching, validating, saving and pushingCheckins.
// A failure in any phase stops the run and is reported as a *SyncFailureError.
// Local state is the source of truth for check-ins; the registry is the source of truth
// for everything else.
package reconciler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/ticketsync/internal/models"
	"github.com/aura-events/ticketsync/internal/registry"
)

// State is the lifecycle state of a Reconciler.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCancelling
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCancelling:
		return "cancelling"
	default:
		return "idle"
	}
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records run outcomes and write counts.
func WithMetrics(m *Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithArchiver uploads the fetched registry data after each fetch phase.
func WithArchiver(a Archiver) Option {
	return func(r *Reconciler) { r.archiver = a }
}

// WithEmailHasher sets the hasher used for redacted tickets.
func WithEmailHasher(h EmailHasher) Option {
	return func(r *Reconciler) { r.hasher = h }
}

// Reconciler syncs one organizer at a time. Use one Reconciler per organizer;
// instances share nothing.
type Reconciler struct {
	client     registry.Client
	store      Store
	redactions RedactionStore
	hasher     EmailHasher
	logger     *zap.Logger
	metrics    *Metrics
	archiver   Archiver

	state  atomic.Int32
	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates a Reconciler. Without WithEmailHasher, redacted tickets are hashed with
// an unkeyed BLAKE2b.
func New(client registry.Client, store Store, redactions RedactionStore, opts ...Option) *Reconciler {
	r := &Reconciler{
		client:     client,
		store:      store,
		redactions: redactions,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.hasher == nil {
		r.hasher = unkeyedHasher{}
	}
	return r
}

// State returns the current lifecycle state.
func (r *Reconciler) State() State {
	return State(r.state.Load())
}

// IsRunning reports whether a run is in flight, including one being cancelled.
func (r *Reconciler) IsRunning() bool {
	return r.State() != StateIdle
}

// Cancel aborts the in-flight run, if any, and reports whether there was one. The run
// context is cancelled and the client drops its pending requests; the run then fails in
// whichever phase it was in.
func (r *Reconciler) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return false
	}
	r.state.CompareAndSwap(int32(StateRunning), int32(StateCancelling))
	r.cancel()
	r.client.CancelPendingRequests()
	return true
}

// Run performs one sync of org. A disabled organizer is a no-op.
// Run returns ErrAlreadyRunning if another Run on the same Reconciler is in flight.
func (r *Reconciler) Run(ctx context.Context, org models.OrganizerConfig) error {
	log := r.logger.With(zap.String("organizer_id", org.ID.String()))
	if org.Disabled {
		log.Debug("organizer disabled, skipping sync")
		r.metrics.observeSkipped()
		return nil
	}
	// The state change and the cancel func are set together under mu, so Cancel never
	// sees a running state it cannot cancel.
	r.mu.Lock()
	if !r.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.cancel = nil
		r.state.Store(int32(StateIdle))
		r.mu.Unlock()
		cancel()
	}()

	runID := uuid.New()
	log = log.With(zap.String("run_id", runID.String()))
	start := time.Now()
	log.Info("sync started", zap.Int("events", len(org.Events)))

	err := r.run(runCtx, log, runID, org)
	r.metrics.observeRun(err, time.Since(start))
	if err != nil {
		log.Error("sync failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return err
	}
	log.Info("sync finished", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (r *Reconciler) run(ctx context.Context, log *zap.Logger, runID uuid.UUID, org models.OrganizerConfig) error {
	fail := func(phase Phase, err error) error {
		return &SyncFailureError{Phase: phase, OrganizerID: org.ID, Cause: err}
	}

	events, err := r.fetch(ctx, log, org)
	if err != nil {
		return fail(PhaseFetching, err)
	}
	r.archive(ctx, log, org.ID, runID, events)

	if err := validate(events); err != nil {
		return fail(PhaseValidating, err)
	}
	if err := ctx.Err(); err != nil {
		return fail(PhaseValidating, err)
	}

	if err := r.save(ctx, log, events); err != nil {
		return fail(PhaseSaving, err)
	}

	if err := r.pushCheckins(ctx, log, org); err != nil {
		return fail(PhasePushingCheckins, err)
	}
	return nil
}

func (r *Reconciler) archive(ctx context.Context, log *zap.Logger, organizerID, runID uuid.UUID, events []EventData) {
	if r.archiver == nil {
		return
	}
	if err := r.archiver.ArchiveSnapshot(ctx, organizerID, runID, snapshot(events, r.hasher)); err != nil {
		log.Warn("archive registry snapshot", zap.Error(err))
	}
}
