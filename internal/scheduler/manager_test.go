package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/aura-events/ticketsync/internal/models"
	"github.com/aura-events/ticketsync/internal/reconciler"
	"github.com/aura-events/ticketsync/internal/reconciler/reconcilertest"
	"github.com/aura-events/ticketsync/internal/registry"
)

type staticConfigs struct {
	mu   sync.Mutex
	orgs []models.OrganizerConfig
}

func (s *staticConfigs) ListOrganizers(context.Context) ([]models.OrganizerConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.OrganizerConfig(nil), s.orgs...), nil
}

func (s *staticConfigs) GetOrganizer(_ context.Context, id uuid.UUID) (*models.OrganizerConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orgs {
		if o.ID == id {
			o := o
			return &o, nil
		}
	}
	return nil, nil
}

type fixture struct {
	registry *reconcilertest.FakeRegistry
	store    *reconcilertest.MemoryStore
	configs  *staticConfigs
	manager  *Manager
}

func newFixture(t *testing.T, opts Options, baseURLs ...string) *fixture {
	t.Helper()
	f := &fixture{
		registry: reconcilertest.NewFakeRegistry(),
		store:    reconcilertest.NewMemoryStore(),
		configs:  &staticConfigs{},
	}
	redactions := reconcilertest.NewMemoryRedactions(f.store, reconcilertest.NewHasher())
	redactions.Consent("a@x.com")

	for _, base := range baseURLs {
		f.configs.orgs = append(f.configs.orgs, reconcilertest.Organizer(base, []string{"42"}, "conf"))
	}
	logger := zaptest.NewLogger(t)
	f.manager = NewManager(f.configs, func(uuid.UUID) *reconciler.Reconciler {
		return reconciler.New(f.registry, f.store, redactions, reconciler.WithLogger(logger))
	}, opts, logger)
	return f
}

func (f *fixture) serve(baseURL string) {
	ev := reconcilertest.ValidEvent("conf", "Conf", reconcilertest.AdmissionItem(42, "GA"))
	ev.Orders = []registry.Order{
		reconcilertest.PaidOrder("ABC12", "a@x.com", reconcilertest.TicketPosition(1001, 42, "Ada", "a@x.com")),
	}
	f.registry.SetEvent(baseURL, "conf", ev)
}

func TestRunOrganizerUnknown(t *testing.T) {
	f := newFixture(t, Options{})
	err := f.manager.RunOrganizer(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrUnknownOrganizer)
}

func TestRunAllIsolatesFailures(t *testing.T) {
	f := newFixture(t, Options{MaxConcurrent: 2}, "https://a.test", "https://b.test", "https://c.test")
	f.serve("https://a.test")
	f.serve("https://c.test")

	results, err := f.manager.RunAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)

	byID := make(map[uuid.UUID]error)
	for _, r := range results {
		byID[r.OrganizerID] = r.Err
	}
	orgs := f.configs.orgs
	assert.NoError(t, byID[orgs[0].ID])
	phase, ok := reconciler.FailedPhase(byID[orgs[1].ID])
	require.True(t, ok)
	assert.Equal(t, reconciler.PhaseFetching, phase)
	assert.NoError(t, byID[orgs[2].ID])

	assert.Len(t, f.store.Tickets(orgs[0].Events[0].ID), 1)
	assert.Len(t, f.store.Tickets(orgs[2].Events[0].ID), 1)

	status := f.manager.Status()
	require.Len(t, status, 3)
	for _, st := range status {
		require.NotNil(t, st.LastRun)
		assert.Equal(t, "idle", st.State)
		if st.OrganizerID == orgs[1].ID {
			assert.Equal(t, reconciler.PhaseFetching, st.LastRun.Phase)
			assert.NotEmpty(t, st.LastRun.Error)
		} else {
			assert.Empty(t, st.LastRun.Error)
		}
	}
}

func TestRunOrganizerRejectsOverlap(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, Options{}, "https://a.test")
	f.serve("https://a.test")
	id := f.configs.orgs[0].ID
	entered := f.registry.BlockOn(reconcilertest.OpItems)

	done := make(chan error, 1)
	go func() { done <- f.manager.RunOrganizer(context.Background(), id) }()
	<-entered

	assert.ErrorIs(t, f.manager.RunOrganizer(context.Background(), id), ErrAlreadyRunning)
	assert.Equal(t, "running", f.manager.Status()[0].State)

	assert.True(t, f.manager.Cancel(id))
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, f.manager.Cancel(id))
}

func TestDisabledOrganizerIsNotRecorded(t *testing.T) {
	f := newFixture(t, Options{}, "https://a.test")
	f.configs.orgs[0].Disabled = true

	require.NoError(t, f.manager.RunOrganizer(context.Background(), f.configs.orgs[0].ID))
	assert.Zero(t, f.registry.Calls(reconcilertest.OpSettings))
	require.Len(t, f.manager.Status(), 1)
	assert.Nil(t, f.manager.Status()[0].LastRun)
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, Options{Interval: time.Hour}, "https://a.test")
	f.serve("https://a.test")

	require.NoError(t, f.manager.Start())
	assert.Eventually(t, func() bool {
		st := f.manager.Status()
		return len(st) == 1 && st[0].LastRun != nil
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, f.manager.Stop())

	assert.Len(t, f.store.Tickets(f.configs.orgs[0].Events[0].ID), 1)
}

type recordingNotifier struct {
	mu       sync.Mutex
	started  []uuid.UUID
	finished []RunRecord
}

func (n *recordingNotifier) RunStarted(id uuid.UUID, _ time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started = append(n.started, id)
}

func (n *recordingNotifier) RunFinished(_ uuid.UUID, rec RunRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finished = append(n.finished, rec)
}

func TestNotifierSeesRunLifecycle(t *testing.T) {
	notifier := &recordingNotifier{}
	f := newFixture(t, Options{Notifier: notifier}, "https://a.test", "https://b.test")
	f.serve("https://a.test")
	f.configs.orgs[1].Disabled = true
	ctx := context.Background()

	require.NoError(t, f.manager.RunOrganizer(ctx, f.configs.orgs[0].ID))
	require.NoError(t, f.manager.RunOrganizer(ctx, f.configs.orgs[1].ID))
	f.registry.FailOn(reconcilertest.OpOrders, errors.New("registry down"))
	require.Error(t, f.manager.RunOrganizer(ctx, f.configs.orgs[0].ID))

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Equal(t, []uuid.UUID{f.configs.orgs[0].ID, f.configs.orgs[0].ID}, notifier.started)
	require.Len(t, notifier.finished, 2)
	assert.Empty(t, notifier.finished[0].Error)
	assert.Equal(t, reconciler.PhaseFetching, notifier.finished[1].Phase)
}

func TestNotifiersFanOut(t *testing.T) {
	a, b := &recordingNotifier{}, &recordingNotifier{}
	id := uuid.New()
	ns := Notifiers{a, b}
	ns.RunStarted(id, time.Now())
	ns.RunFinished(id, RunRecord{Error: "x"})
	for _, n := range []*recordingNotifier{a, b} {
		assert.Equal(t, []uuid.UUID{id}, n.started)
		require.Len(t, n.finished, 1)
		assert.Equal(t, "x", n.finished[0].Error)
	}
}

// memLocker stands in for the shared Redis lock of several processes.
type memLocker struct {
	mu   sync.Mutex
	held map[uuid.UUID]bool
	err  error
}

func (l *memLocker) TryLock(_ context.Context, id uuid.UUID) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held[id] {
		return nil, false, nil
	}
	l.held[id] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, id)
	}, true, nil
}

func TestLockerKeepsRunsSingleFlightAcrossManagers(t *testing.T) {
	defer goleak.VerifyNone(t)

	locker := &memLocker{held: make(map[uuid.UUID]bool)}
	f := newFixture(t, Options{Locker: locker}, "https://a.test")
	f.serve("https://a.test")
	id := f.configs.orgs[0].ID

	redactions := reconcilertest.NewMemoryRedactions(f.store, reconcilertest.NewHasher())
	notifier := &recordingNotifier{}
	other := NewManager(f.configs, func(uuid.UUID) *reconciler.Reconciler {
		return reconciler.New(f.registry, f.store, redactions)
	}, Options{Locker: locker, Notifier: notifier}, zaptest.NewLogger(t))

	entered := f.registry.BlockOn(reconcilertest.OpItems)
	done := make(chan error, 1)
	go func() { done <- f.manager.RunOrganizer(context.Background(), id) }()
	<-entered

	assert.ErrorIs(t, other.RunOrganizer(context.Background(), id), ErrAlreadyRunning)
	notifier.mu.Lock()
	assert.Empty(t, notifier.started, "a run refused by the lock is never announced")
	notifier.mu.Unlock()

	f.manager.Cancel(id)
	require.Error(t, <-done)
	require.NoError(t, other.RunOrganizer(context.Background(), id))
	assert.Empty(t, locker.held)
}

func TestLockerErrorReleasesOrganizer(t *testing.T) {
	locker := &memLocker{held: make(map[uuid.UUID]bool), err: errors.New("redis down")}
	f := newFixture(t, Options{Locker: locker}, "https://a.test")
	f.serve("https://a.test")
	id := f.configs.orgs[0].ID

	err := f.manager.RunOrganizer(context.Background(), id)
	require.ErrorContains(t, err, "redis down")
	assert.NotErrorIs(t, err, ErrAlreadyRunning)
	assert.Zero(t, f.registry.Calls(reconcilertest.OpSettings))

	locker.err = nil
	require.NoError(t, f.manager.RunOrganizer(context.Background(), id))
}
