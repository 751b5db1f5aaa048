// Package reconcilertest provides in-memory stores and a scriptable registry for tests.
package reconcilertest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aura-events/ticketsync/internal/models"
)

var errDuplicatePosition = errors.New("duplicate ticket for position")

// MemoryStore is an in-memory reconciler.Store.
type MemoryStore struct {
	mu      sync.Mutex
	events  map[uuid.UUID]models.EventMirror // by event config id
	items   map[uuid.UUID]models.ItemMirror
	tickets map[uuid.UUID]models.Ticket
	writes  int
	fail    map[string]error

	// failTickets fails ticket writes of one event config.
	failTickets map[uuid.UUID]error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:  make(map[uuid.UUID]models.EventMirror),
		items:   make(map[uuid.UUID]models.ItemMirror),
		tickets: make(map[uuid.UUID]models.Ticket),
		fail:    make(map[string]error),

		failTickets: make(map[uuid.UUID]error),
	}
}

// FailOn makes every call of the named method return err. A nil err clears it.
func (s *MemoryStore) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, method)
		return
	}
	s.fail[method] = err
}

// FailTicketsOf makes ticket inserts and updates of one event config return err.
// A nil err clears it.
func (s *MemoryStore) FailTicketsOf(eventConfigID uuid.UUID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failTickets, eventConfigID)
		return
	}
	s.failTickets[eventConfigID] = err
}

// Writes returns the number of mutating calls since the last ResetWrites.
func (s *MemoryStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// ResetWrites zeroes the write counter.
func (s *MemoryStore) ResetWrites() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = 0
}

func (s *MemoryStore) write(method string) error {
	if err := s.fail[method]; err != nil {
		return err
	}
	s.writes++
	return nil
}

func (s *MemoryStore) GetEventMirror(_ context.Context, eventConfigID uuid.UUID) (*models.EventMirror, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail["GetEventMirror"]; err != nil {
		return nil, err
	}
	m, ok := s.events[eventConfigID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *MemoryStore) InsertEventMirror(_ context.Context, m *models.EventMirror) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write("InsertEventMirror"); err != nil {
		return err
	}
	m.CreatedAt, m.UpdatedAt = time.Now(), time.Now()
	s.events[m.EventConfigID] = *m
	return nil
}

func (s *MemoryStore) UpdateEventMirror(_ context.Context, m *models.EventMirror) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write("UpdateEventMirror"); err != nil {
		return err
	}
	m.UpdatedAt = time.Now()
	s.events[m.EventConfigID] = *m
	return nil
}

// EventMirror returns the mirror of an event config.
func (s *MemoryStore) EventMirror(eventConfigID uuid.UUID) (models.EventMirror, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.events[eventConfigID]
	return m, ok
}

func (s *MemoryStore) ListItemMirrors(_ context.Context, eventMirrorID uuid.UUID) ([]models.ItemMirror, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail["ListItemMirrors"]; err != nil {
		return nil, err
	}
	var out []models.ItemMirror
	for _, it := range s.items {
		if it.EventMirrorID == eventMirrorID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalItemID < out[j].ExternalItemID })
	return out, nil
}

func (s *MemoryStore) InsertItemMirror(_ context.Context, m *models.ItemMirror) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write("InsertItemMirror"); err != nil {
		return err
	}
	m.CreatedAt, m.UpdatedAt = time.Now(), time.Now()
	s.items[m.ID] = *m
	return nil
}

func (s *MemoryStore) UpdateItemMirror(_ context.Context, m *models.ItemMirror) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write("UpdateItemMirror"); err != nil {
		return err
	}
	m.UpdatedAt = time.Now()
	s.items[m.ID] = *m
	return nil
}

func (s *MemoryStore) SoftDeleteItemMirror(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write("SoftDeleteItemMirror"); err != nil {
		return err
	}
	it := s.items[id]
	it.IsDeleted = true
	s.items[id] = it
	return nil
}

// Items returns every item mirror of an event config, ordered by external id.
func (s *MemoryStore) Items(eventConfigID uuid.UUID) []models.ItemMirror {
	s.mu.Lock()
	ev, ok := s.events[eventConfigID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	items, _ := s.ListItemMirrors(context.Background(), ev.ID)
	return items
}

func (s *MemoryStore) ListTicketsByEvent(_ context.Context, eventConfigID uuid.UUID) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail["ListTicketsByEvent"]; err != nil {
		return nil, err
	}
	return s.ticketsLocked(eventConfigID), nil
}

func (s *MemoryStore) ticketsLocked(eventConfigID uuid.UUID) []models.Ticket {
	var out []models.Ticket
	for _, t := range s.tickets {
		if t.EventConfigID == eventConfigID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalPositionID < out[j].ExternalPositionID })
	return out
}

func (s *MemoryStore) InsertTicket(_ context.Context, t *models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failTickets[t.EventConfigID]; err != nil {
		return err
	}
	if err := s.write("InsertTicket"); err != nil {
		return err
	}
	for _, existing := range s.tickets {
		if existing.EventConfigID == t.EventConfigID && existing.ExternalPositionID == t.ExternalPositionID {
			return errDuplicatePosition
		}
	}
	t.CreatedAt, t.UpdatedAt = time.Now(), time.Now()
	s.tickets[t.ID] = *t
	return nil
}

func (s *MemoryStore) UpdateTicket(_ context.Context, t *models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failTickets[t.EventConfigID]; err != nil {
		return err
	}
	if err := s.write("UpdateTicket"); err != nil {
		return err
	}
	t.UpdatedAt = time.Now()
	s.tickets[t.ID] = *t
	return nil
}

func (s *MemoryStore) SoftDeleteTicket(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write("SoftDeleteTicket"); err != nil {
		return err
	}
	t := s.tickets[id]
	t.IsDeleted = true
	s.tickets[id] = t
	return nil
}

func (s *MemoryStore) ListPendingCheckins(_ context.Context, eventConfigIDs []uuid.UUID) ([]models.PendingCheckin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail["ListPendingCheckins"]; err != nil {
		return nil, err
	}
	var out []models.PendingCheckin
	for _, id := range eventConfigIDs {
		ev, ok := s.events[id]
		if !ok {
			continue
		}
		for _, t := range s.ticketsLocked(id) {
			if !t.IsConsumed || t.RegistryCheckinAt != nil || t.LocalCheckinAt == nil || t.IsDeleted {
				continue
			}
			out = append(out, models.PendingCheckin{
				TicketID:       t.ID,
				EventConfigID:  t.EventConfigID,
				PositionID:     t.ExternalPositionID,
				Secret:         t.Secret,
				CheckinListID:  ev.CheckinListID,
				LocalCheckinAt: *t.LocalCheckinAt,
			})
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkRegistryCheckin(_ context.Context, ticketID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write("MarkRegistryCheckin"); err != nil {
		return err
	}
	t := s.tickets[ticketID]
	t.RegistryCheckinAt = &at
	s.tickets[ticketID] = t
	return nil
}

// Ticket returns the ticket for a position, deleted or not.
func (s *MemoryStore) Ticket(eventConfigID uuid.UUID, positionID string) (models.Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tickets {
		if t.EventConfigID == eventConfigID && t.ExternalPositionID == positionID {
			return t, true
		}
	}
	return models.Ticket{}, false
}

// Tickets returns every ticket of an event config, ordered by position id.
func (s *MemoryStore) Tickets(eventConfigID uuid.UUID) []models.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticketsLocked(eventConfigID)
}

// CheckIn records a local check-in the way the door app does. It does not count as a write.
func (s *MemoryStore) CheckIn(eventConfigID uuid.UUID, positionID, checker string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.tickets {
		if t.EventConfigID == eventConfigID && t.ExternalPositionID == positionID {
			t.IsConsumed = true
			t.CheckerEmail = &checker
			t.LocalCheckinAt = &at
			s.tickets[id] = t
			return true
		}
	}
	return false
}

// PutTickets stores tickets directly, bypassing the write counter.
func (s *MemoryStore) PutTickets(tickets ...models.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tickets {
		s.tickets[t.ID] = t
	}
}
