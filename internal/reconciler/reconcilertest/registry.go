package reconcilertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/aura-events/ticketsync/internal/registry"
)

// Fetch operation names accepted by FakeRegistry.FailOn and FakeRegistry.BlockOn.
const (
	OpSettings     = "settings"
	OpCategories   = "categories"
	OpItems        = "items"
	OpEvent        = "event"
	OpOrders       = "orders"
	OpCheckinLists = "checkinlists"
	OpPush         = "push"
)

// FakeEvent is the registry data served for one event.
type FakeEvent struct {
	Settings     registry.EventSettings
	Categories   []registry.Category
	Items        []registry.Item
	Event        registry.Event
	Orders       []registry.Order
	CheckinLists []registry.CheckinList
}

// PushedCheckin records one PushCheckin call.
type PushedCheckin struct {
	BaseURL       string
	Secret        string
	CheckinListID string
	Timestamp     string
}

// FakeRegistry is a scriptable registry.Client keyed by base URL and event id.
type FakeRegistry struct {
	mu      sync.Mutex
	events  map[string]*FakeEvent
	fail    map[string]error
	block   map[string]chan struct{}
	calls   map[string]int
	pushed  []PushedCheckin
	scope   context.Context
	cancelF context.CancelFunc
}

// NewFakeRegistry creates a registry with no events.
func NewFakeRegistry() *FakeRegistry {
	f := &FakeRegistry{
		events: make(map[string]*FakeEvent),
		fail:   make(map[string]error),
		block:  make(map[string]chan struct{}),
		calls:  make(map[string]int),
	}
	f.scope, f.cancelF = context.WithCancel(context.Background())
	return f
}

func key(baseURL, eventID string) string { return baseURL + "|" + eventID }

// SetEvent serves ev for eventID on baseURL. The returned pointer may be mutated
// between runs.
func (f *FakeRegistry) SetEvent(baseURL, eventID string, ev *FakeEvent) *FakeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[key(baseURL, eventID)] = ev
	return ev
}

// FailOn makes op fail with err for every base URL. A nil err clears it.
func (f *FakeRegistry) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, op)
		return
	}
	f.fail[op] = err
}

// BlockOn makes op wait until its context is cancelled or CancelPendingRequests is
// called. The returned channel is closed when a call enters op.
func (f *FakeRegistry) BlockOn(op string) <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.block[op] = ch
	return ch
}

// Calls returns how many times op was called.
func (f *FakeRegistry) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Pushed returns the check-ins pushed so far.
func (f *FakeRegistry) Pushed() []PushedCheckin {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PushedCheckin(nil), f.pushed...)
}

func (f *FakeRegistry) CancelPendingRequests() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelF()
	f.scope, f.cancelF = context.WithCancel(context.Background())
}

func (f *FakeRegistry) enter(ctx context.Context, op string, ep registry.Endpoint, eventID string) (*FakeEvent, error) {
	f.mu.Lock()
	f.calls[op]++
	block, blocked := f.block[op]
	if blocked {
		delete(f.block, op)
	}
	scope := f.scope
	failErr := f.fail[op]
	ev := f.events[key(ep.BaseURL, eventID)]
	f.mu.Unlock()

	if blocked {
		close(block)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-scope.Done():
			return nil, context.Canceled
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failErr != nil {
		return nil, failErr
	}
	if ev == nil && op != OpPush {
		return nil, &registry.StatusError{Method: "GET", URL: ep.BaseURL + "/events/" + eventID + "/", StatusCode: 404, Body: "not found"}
	}
	return ev, nil
}

func (f *FakeRegistry) FetchEventSettings(ctx context.Context, ep registry.Endpoint, eventID string) (*registry.EventSettings, error) {
	ev, err := f.enter(ctx, OpSettings, ep, eventID)
	if err != nil {
		return nil, err
	}
	s := ev.Settings
	return &s, nil
}

func (f *FakeRegistry) FetchCategories(ctx context.Context, ep registry.Endpoint, eventID string) ([]registry.Category, error) {
	ev, err := f.enter(ctx, OpCategories, ep, eventID)
	if err != nil {
		return nil, err
	}
	return append([]registry.Category(nil), ev.Categories...), nil
}

func (f *FakeRegistry) FetchItems(ctx context.Context, ep registry.Endpoint, eventID string) ([]registry.Item, error) {
	ev, err := f.enter(ctx, OpItems, ep, eventID)
	if err != nil {
		return nil, err
	}
	return append([]registry.Item(nil), ev.Items...), nil
}

func (f *FakeRegistry) FetchEvent(ctx context.Context, ep registry.Endpoint, eventID string) (*registry.Event, error) {
	ev, err := f.enter(ctx, OpEvent, ep, eventID)
	if err != nil {
		return nil, err
	}
	e := ev.Event
	return &e, nil
}

func (f *FakeRegistry) FetchOrders(ctx context.Context, ep registry.Endpoint, eventID string) ([]registry.Order, error) {
	ev, err := f.enter(ctx, OpOrders, ep, eventID)
	if err != nil {
		return nil, err
	}
	return append([]registry.Order(nil), ev.Orders...), nil
}

func (f *FakeRegistry) FetchEventCheckinLists(ctx context.Context, ep registry.Endpoint, eventID string) ([]registry.CheckinList, error) {
	ev, err := f.enter(ctx, OpCheckinLists, ep, eventID)
	if err != nil {
		return nil, err
	}
	return append([]registry.CheckinList(nil), ev.CheckinLists...), nil
}

func (f *FakeRegistry) PushCheckin(ctx context.Context, ep registry.Endpoint, secret, checkinListID, timestamp string) error {
	if _, err := f.enter(ctx, OpPush, ep, ""); err != nil {
		return fmt.Errorf("redeem %s: %w", secret, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, PushedCheckin{
		BaseURL:       ep.BaseURL,
		Secret:        secret,
		CheckinListID: checkinListID,
		Timestamp:     timestamp,
	})
	return nil
}
