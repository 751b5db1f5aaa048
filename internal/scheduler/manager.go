// Package scheduler runs the reconciler for every configured organizer, periodically
// and on demand.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aura-events/ticketsync/internal/models"
	"github.com/aura-events/ticketsync/internal/reconciler"
)

var (
	// ErrAlreadyRunning is returned when the organizer's previous run has not finished.
	ErrAlreadyRunning = reconciler.ErrAlreadyRunning
	// ErrUnknownOrganizer is returned for an organizer id with no configuration.
	ErrUnknownOrganizer = errors.New("unknown organizer")
)

// ConfigSource loads organizer configuration.
type ConfigSource interface {
	ListOrganizers(ctx context.Context) ([]models.OrganizerConfig, error)
	// GetOrganizer returns nil, nil when the organizer does not exist.
	GetOrganizer(ctx context.Context, id uuid.UUID) (*models.OrganizerConfig, error)
}

// ReconcilerFactory builds the reconciler for one organizer.
type ReconcilerFactory func(organizerID uuid.UUID) *reconciler.Reconciler

// Notifier is told when an organizer's run starts and finishes. Calls are made on the
// run's goroutine and should return quickly.
type Notifier interface {
	RunStarted(organizerID uuid.UUID, at time.Time)
	RunFinished(organizerID uuid.UUID, rec RunRecord)
}

// Locker serialises runs of one organizer across processes. TryLock does not wait; ok
// is false when another holder has the lock, and unlock is only set when ok.
type Locker interface {
	TryLock(ctx context.Context, organizerID uuid.UUID) (unlock func(), ok bool, err error)
}

// Options configures a Manager.
type Options struct {
	// Interval between periodic runs of every organizer.
	Interval time.Duration
	// MaxConcurrent bounds how many organizers RunAll syncs at once; <= 0 means no bound.
	MaxConcurrent int
	// Notifier is optional.
	Notifier Notifier
	// Locker is optional; without it runs are single-flight within this Manager only.
	Locker Locker
}

// RunRecord describes the last finished run of an organizer.
type RunRecord struct {
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Error      string           `json:"error,omitempty"`
	Phase      reconciler.Phase `json:"phase,omitempty"`
}

// OrganizerStatus is one organizer's entry in Status.
type OrganizerStatus struct {
	OrganizerID uuid.UUID  `json:"organizer_id"`
	State       string     `json:"state"`
	LastRun     *RunRecord `json:"last_run,omitempty"`
}

// Result is the outcome of one organizer in RunAll.
type Result struct {
	OrganizerID uuid.UUID
	Err         error
}

type entry struct {
	rec     *reconciler.Reconciler
	lastRun *RunRecord
	active  bool
}

// Manager owns one Reconciler per organizer. Organizers never share a reconciler and
// one organizer's failure never affects another.
type Manager struct {
	configs       ConfigSource
	newReconciler ReconcilerFactory
	opts          Options
	logger        *zap.Logger

	mu      sync.Mutex
	entries map[uuid.UUID]*entry

	sched   gocron.Scheduler
	baseCtx context.Context
	stop    context.CancelFunc
}

// NewManager creates a Manager.
func NewManager(configs ConfigSource, factory ReconcilerFactory, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		configs:       configs,
		newReconciler: factory,
		opts:          opts,
		logger:        logger,
		entries:       make(map[uuid.UUID]*entry),
		baseCtx:       ctx,
		stop:          cancel,
	}
}

func (m *Manager) entry(id uuid.UUID) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		e = &entry{rec: m.newReconciler(id)}
		m.entries[id] = e
	}
	return e
}

// RunOrganizer loads the organizer's configuration and runs one sync.
func (m *Manager) RunOrganizer(ctx context.Context, id uuid.UUID) error {
	org, err := m.configs.GetOrganizer(ctx, id)
	if err != nil {
		return fmt.Errorf("load organizer %s: %w", id, err)
	}
	if org == nil {
		return fmt.Errorf("%w: %s", ErrUnknownOrganizer, id)
	}
	return m.run(ctx, *org)
}

func (m *Manager) run(ctx context.Context, org models.OrganizerConfig) error {
	e := m.entry(org.ID)
	if org.Disabled {
		return e.rec.Run(ctx, org)
	}
	// active is claimed under mu so the notifier only ever sees runs that really start.
	m.mu.Lock()
	if e.active || e.rec.IsRunning() {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.active = true
	m.mu.Unlock()
	release := func() {
		m.mu.Lock()
		e.active = false
		m.mu.Unlock()
	}

	if l := m.opts.Locker; l != nil {
		unlock, ok, err := l.TryLock(ctx, org.ID)
		if err != nil || !ok {
			release()
			if err != nil {
				return fmt.Errorf("lock organizer %s: %w", org.ID, err)
			}
			return ErrAlreadyRunning
		}
		defer unlock()
	}

	started := time.Now()
	if n := m.opts.Notifier; n != nil {
		n.RunStarted(org.ID, started)
	}
	err := e.rec.Run(ctx, org)

	rec := &RunRecord{StartedAt: started, FinishedAt: time.Now()}
	if err != nil {
		rec.Error = err.Error()
		rec.Phase, _ = reconciler.FailedPhase(err)
	}
	m.mu.Lock()
	e.lastRun = rec
	e.active = false
	m.mu.Unlock()
	if n := m.opts.Notifier; n != nil {
		n.RunFinished(org.ID, *rec)
	}
	return err
}

// RunAll syncs every configured organizer concurrently and waits for all of them.
// Individual failures are reported in the results, not as the returned error.
func (m *Manager) RunAll(ctx context.Context) ([]Result, error) {
	orgs, err := m.configs.ListOrganizers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list organizers: %w", err)
	}

	results := make([]Result, len(orgs))
	var g errgroup.Group
	if m.opts.MaxConcurrent > 0 {
		g.SetLimit(m.opts.MaxConcurrent)
	}
	for i, org := range orgs {
		g.Go(func() error {
			results[i] = Result{OrganizerID: org.ID, Err: m.run(ctx, org)}
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

func (m *Manager) runAllLogged() {
	results, err := m.RunAll(m.baseCtx)
	if err != nil {
		m.logger.Error("periodic sync failed", zap.Error(err))
		return
	}
	failed := 0
	for _, r := range results {
		if r.Err != nil && !errors.Is(r.Err, ErrAlreadyRunning) {
			failed++
		}
	}
	m.logger.Info("periodic sync finished", zap.Int("organizers", len(results)), zap.Int("failed", failed))
}

// Start schedules RunAll every Interval, starting immediately. Overlapping ticks are
// skipped while a previous RunAll is still in progress.
func (m *Manager) Start() error {
	sched, err := gocron.NewScheduler(gocron.WithLogger(gocronLogger{m.logger}))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(m.opts.Interval),
		gocron.NewTask(m.runAllLogged),
		gocron.WithName("sync-all-organizers"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule sync job: %w", err)
	}
	sched.Start()
	m.sched = sched
	m.logger.Info("sync scheduler started", zap.Duration("interval", m.opts.Interval))
	return nil
}

// Stop cancels in-flight runs and waits for the scheduler to shut down.
func (m *Manager) Stop() error {
	m.stop()
	m.CancelAll()
	if m.sched == nil {
		return nil
	}
	return m.sched.Shutdown()
}

// Cancel aborts the in-flight run of one organizer. It reports whether a run was in flight.
func (m *Manager) Cancel(id uuid.UUID) bool {
	m.mu.Lock()
	e, ok := m.entries[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return e.rec.Cancel()
}

// CancelAll aborts every in-flight run.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		e.rec.Cancel()
	}
}

// Status lists every organizer that has been run since start, ordered by id.
func (m *Manager) Status() []OrganizerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OrganizerStatus, 0, len(m.entries))
	for id, e := range m.entries {
		st := OrganizerStatus{OrganizerID: id, State: e.rec.State().String()}
		if e.lastRun != nil {
			rec := *e.lastRun
			st.LastRun = &rec
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrganizerID.String() < out[j].OrganizerID.String() })
	return out
}

// gocronLogger adapts zap to gocron's logger interface.
type gocronLogger struct {
	l *zap.Logger
}

func (g gocronLogger) Debug(msg string, args ...any) { g.l.Sugar().Debugw(msg, args...) }
func (g gocronLogger) Info(msg string, args ...any)  { g.l.Sugar().Infow(msg, args...) }
func (g gocronLogger) Warn(msg string, args ...any)  { g.l.Sugar().Warnw(msg, args...) }
func (g gocronLogger) Error(msg string, args ...any) { g.l.Sugar().Errorw(msg, args...) }

// Notifiers fans run events out to several notifiers in order.
type Notifiers []Notifier

func (ns Notifiers) RunStarted(organizerID uuid.UUID, at time.Time) {
	for _, n := range ns {
		n.RunStarted(organizerID, at)
	}
}

func (ns Notifiers) RunFinished(organizerID uuid.UUID, rec RunRecord) {
	for _, n := range ns {
		n.RunFinished(organizerID, rec)
	}
}
