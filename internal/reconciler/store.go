package reconciler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aura-events/ticketsync/internal/models"
)

// Store persists the event, item and ticket mirrors.
// Get/List methods return (nil, nil) or an empty slice when nothing matches.
type Store interface {
	GetEventMirror(ctx context.Context, eventConfigID uuid.UUID) (*models.EventMirror, error)
	InsertEventMirror(ctx context.Context, m *models.EventMirror) error
	UpdateEventMirror(ctx context.Context, m *models.EventMirror) error

	ListItemMirrors(ctx context.Context, eventMirrorID uuid.UUID) ([]models.ItemMirror, error)
	InsertItemMirror(ctx context.Context, m *models.ItemMirror) error
	UpdateItemMirror(ctx context.Context, m *models.ItemMirror) error
	SoftDeleteItemMirror(ctx context.Context, id uuid.UUID) error

	ListTicketsByEvent(ctx context.Context, eventConfigID uuid.UUID) ([]models.Ticket, error)
	InsertTicket(ctx context.Context, t *models.Ticket) error
	UpdateTicket(ctx context.Context, t *models.Ticket) error
	SoftDeleteTicket(ctx context.Context, id uuid.UUID) error

	ListPendingCheckins(ctx context.Context, eventConfigIDs []uuid.UUID) ([]models.PendingCheckin, error)
	MarkRegistryCheckin(ctx context.Context, ticketID uuid.UUID, at time.Time) error
}

// RedactionStore holds hashed-email ticket stubs and answers consent lookups.
type RedactionStore interface {
	// ConsentedEmails returns the subset of the normalised emails that belong to
	// accounts which accepted the current terms.
	ConsentedEmails(ctx context.Context, emails []string) (map[string]bool, error)

	ListRedactedByEvent(ctx context.Context, eventConfigID uuid.UUID) ([]models.RedactedTicket, error)
	InsertRedacted(ctx context.Context, t *models.RedactedTicket) error
	UpdateRedacted(ctx context.Context, t *models.RedactedTicket) error
	DeleteRedacted(ctx context.Context, id uuid.UUID) error
}

// EmailHasher produces the redaction hash of an email.
type EmailHasher interface {
	Hash(email string) string
}

// Archiver stores the raw registry data fetched by a run. Failures are logged only.
type Archiver interface {
	ArchiveSnapshot(ctx context.Context, organizerID, runID uuid.UUID, events []EventData) error
}

// ArchiverFunc adapts a function to Archiver.
type ArchiverFunc func(ctx context.Context, organizerID, runID uuid.UUID, events []EventData) error

func (f ArchiverFunc) ArchiveSnapshot(ctx context.Context, organizerID, runID uuid.UUID, events []EventData) error {
	return f(ctx, organizerID, runID, events)
}
