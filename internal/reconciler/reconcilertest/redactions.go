package reconcilertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aura-events/ticketsync/internal/models"
	"github.com/aura-events/ticketsync/pkg/utils"
)

// HashKey is the redaction key used by NewHasher.
const HashKey = "reconcilertest"

// NewHasher returns the email hasher shared by the fakes in this package.
func NewHasher() *utils.EmailHasher {
	h, err := utils.NewEmailHasher(HashKey)
	if err != nil {
		panic(err)
	}
	return h
}

// MemoryRedactions is an in-memory reconciler.RedactionStore with consent bookkeeping.
type MemoryRedactions struct {
	mu      sync.Mutex
	store   *MemoryStore
	hasher  *utils.EmailHasher
	consent map[string]bool
	rows    map[uuid.UUID]models.RedactedTicket
	writes  int
}

// NewMemoryRedactions creates a redaction store that promotes into store.
func NewMemoryRedactions(store *MemoryStore, hasher *utils.EmailHasher) *MemoryRedactions {
	return &MemoryRedactions{
		store:   store,
		hasher:  hasher,
		consent: make(map[string]bool),
		rows:    make(map[uuid.UUID]models.RedactedTicket),
	}
}

// Consent marks email as belonging to a consenting account without promoting anything.
func (m *MemoryRedactions) Consent(email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consent[utils.NormalizeEmail(email)] = true
}

// Revoke withdraws consent for email.
func (m *MemoryRedactions) Revoke(email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.consent, utils.NormalizeEmail(email))
}

// Promote records consent for email and moves its redacted rows into full tickets,
// like the consent transaction does. It returns the number of promoted rows.
func (m *MemoryRedactions) Promote(email string) int {
	email = utils.NormalizeEmail(email)
	hashed := m.hasher.Hash(email)

	m.mu.Lock()
	m.consent[email] = true
	var rows []models.RedactedTicket
	for id, r := range m.rows {
		if r.HashedEmail == hashed {
			rows = append(rows, r)
			delete(m.rows, id)
		}
	}
	m.mu.Unlock()

	now := time.Now()
	tickets := models.PromoteRedacted(email, rows)
	for i := range tickets {
		tickets[i].CreatedAt, tickets[i].UpdatedAt = now, now
	}
	m.store.PutTickets(tickets...)
	return len(tickets)
}

func (m *MemoryRedactions) ConsentedEmails(_ context.Context, emails []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool)
	for _, e := range emails {
		if m.consent[e] {
			out[e] = true
		}
	}
	return out, nil
}

func (m *MemoryRedactions) ListRedactedByEvent(_ context.Context, eventConfigID uuid.UUID) ([]models.RedactedTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byEventLocked(eventConfigID), nil
}

func (m *MemoryRedactions) byEventLocked(eventConfigID uuid.UUID) []models.RedactedTicket {
	var out []models.RedactedTicket
	for _, r := range m.rows {
		if r.EventConfigID == eventConfigID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PositionID < out[j].PositionID })
	return out
}

func (m *MemoryRedactions) InsertRedacted(_ context.Context, t *models.RedactedTicket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.CreatedAt, t.UpdatedAt = time.Now(), time.Now()
	m.rows[t.ID] = *t
	m.writes++
	return nil
}

func (m *MemoryRedactions) UpdateRedacted(_ context.Context, t *models.RedactedTicket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.UpdatedAt = time.Now()
	m.rows[t.ID] = *t
	m.writes++
	return nil
}

func (m *MemoryRedactions) DeleteRedacted(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	m.writes++
	return nil
}

// Rows returns the redacted tickets of an event config, ordered by position id.
func (m *MemoryRedactions) Rows(eventConfigID uuid.UUID) []models.RedactedTicket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byEventLocked(eventConfigID)
}

// Writes returns the number of mutating calls made by the reconciler.
func (m *MemoryRedactions) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// ResetWrites zeroes the write counter.
func (m *MemoryRedactions) ResetWrites() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = 0
}
