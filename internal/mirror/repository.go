// Package mirror stores the local copies of registry events, items and tickets.
package mirror

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-events/ticketsync/internal/models"
)

// Repository is the PostgreSQL mirror store used by the reconciler.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a mirror repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const eventColumns = `id, event_config_id, display_name, checkin_list_id, is_deleted, created_at, updated_at`

// GetEventMirror returns the mirror of an event config, or nil if there is none yet.
func (r *Repository) GetEventMirror(ctx context.Context, eventConfigID uuid.UUID) (*models.EventMirror, error) {
	const q = `SELECT ` + eventColumns + ` FROM event_mirrors WHERE event_config_id = $1`
	var m models.EventMirror
	err := r.pool.QueryRow(ctx, q, eventConfigID).
		Scan(&m.ID, &m.EventConfigID, &m.DisplayName, &m.CheckinListID, &m.IsDeleted, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// InsertEventMirror inserts an event mirror with its preassigned ID.
func (r *Repository) InsertEventMirror(ctx context.Context, m *models.EventMirror) error {
	const q = `INSERT INTO event_mirrors (id, event_config_id, display_name, checkin_list_id, is_deleted)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, q, m.ID, m.EventConfigID, m.DisplayName, m.CheckinListID, m.IsDeleted).
		Scan(&m.CreatedAt, &m.UpdatedAt)
}

// UpdateEventMirror updates display name, check-in list and deleted flag.
func (r *Repository) UpdateEventMirror(ctx context.Context, m *models.EventMirror) error {
	const q = `UPDATE event_mirrors SET display_name = $2, checkin_list_id = $3, is_deleted = $4, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`
	return r.pool.QueryRow(ctx, q, m.ID, m.DisplayName, m.CheckinListID, m.IsDeleted).Scan(&m.UpdatedAt)
}

const itemColumns = `id, event_mirror_id, external_item_id, display_name, is_deleted, created_at, updated_at`

// ListItemMirrors returns every item mirror of an event, deleted ones included.
func (r *Repository) ListItemMirrors(ctx context.Context, eventMirrorID uuid.UUID) ([]models.ItemMirror, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM item_mirrors WHERE event_mirror_id = $1 ORDER BY external_item_id`, eventMirrorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.ItemMirror
	for rows.Next() {
		var m models.ItemMirror
		if err := rows.Scan(&m.ID, &m.EventMirrorID, &m.ExternalItemID, &m.DisplayName, &m.IsDeleted, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// InsertItemMirror inserts an item mirror with its preassigned ID.
func (r *Repository) InsertItemMirror(ctx context.Context, m *models.ItemMirror) error {
	const q = `INSERT INTO item_mirrors (id, event_mirror_id, external_item_id, display_name, is_deleted)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, q, m.ID, m.EventMirrorID, m.ExternalItemID, m.DisplayName, m.IsDeleted).
		Scan(&m.CreatedAt, &m.UpdatedAt)
}

// UpdateItemMirror updates the display name and deleted flag.
func (r *Repository) UpdateItemMirror(ctx context.Context, m *models.ItemMirror) error {
	const q = `UPDATE item_mirrors SET display_name = $2, is_deleted = $3, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`
	return r.pool.QueryRow(ctx, q, m.ID, m.DisplayName, m.IsDeleted).Scan(&m.UpdatedAt)
}

// SoftDeleteItemMirror marks an item mirror deleted. Tickets keep referencing it.
func (r *Repository) SoftDeleteItemMirror(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE item_mirrors SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

const ticketColumns = `id, external_position_id, event_config_id, item_mirror_id, email, full_name, secret,
	is_deleted, is_consumed, checker_email, local_checkin_at, registry_checkin_at, created_at, updated_at`

func scanTicket(row pgx.Row, t *models.Ticket) error {
	return row.Scan(&t.ID, &t.ExternalPositionID, &t.EventConfigID, &t.ItemMirrorID, &t.Email, &t.FullName, &t.Secret,
		&t.IsDeleted, &t.IsConsumed, &t.CheckerEmail, &t.LocalCheckinAt, &t.RegistryCheckinAt, &t.CreatedAt, &t.UpdatedAt)
}

// ListTicketsByEvent returns every ticket of an event config, deleted ones included.
func (r *Repository) ListTicketsByEvent(ctx context.Context, eventConfigID uuid.UUID) ([]models.Ticket, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE event_config_id = $1 ORDER BY external_position_id`, eventConfigID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Ticket
	for rows.Next() {
		var t models.Ticket
		if err := scanTicket(rows, &t); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// InsertTicket inserts a ticket with its preassigned ID.
func (r *Repository) InsertTicket(ctx context.Context, t *models.Ticket) error {
	const q = `INSERT INTO tickets (id, external_position_id, event_config_id, item_mirror_id, email, full_name, secret,
			is_deleted, is_consumed, checker_email, local_checkin_at, registry_checkin_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, q, t.ID, t.ExternalPositionID, t.EventConfigID, t.ItemMirrorID, t.Email, t.FullName, t.Secret,
		t.IsDeleted, t.IsConsumed, t.CheckerEmail, t.LocalCheckinAt, t.RegistryCheckinAt).
		Scan(&t.CreatedAt, &t.UpdatedAt)
}

// UpdateTicket overwrites every mutable column of a ticket.
func (r *Repository) UpdateTicket(ctx context.Context, t *models.Ticket) error {
	const q = `UPDATE tickets SET item_mirror_id = $2, email = $3, full_name = $4, secret = $5, is_deleted = $6,
			is_consumed = $7, checker_email = $8, local_checkin_at = $9, registry_checkin_at = $10, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`
	return r.pool.QueryRow(ctx, q, t.ID, t.ItemMirrorID, t.Email, t.FullName, t.Secret, t.IsDeleted,
		t.IsConsumed, t.CheckerEmail, t.LocalCheckinAt, t.RegistryCheckinAt).Scan(&t.UpdatedAt)
}

// SoftDeleteTicket marks a ticket deleted, keeping its check-in history.
func (r *Repository) SoftDeleteTicket(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE tickets SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// ListPendingCheckins returns the locally checked-in tickets of the given event configs
// that the registry has not recorded yet, with the check-in list of their event.
func (r *Repository) ListPendingCheckins(ctx context.Context, eventConfigIDs []uuid.UUID) ([]models.PendingCheckin, error) {
	if len(eventConfigIDs) == 0 {
		return nil, nil
	}
	const q = `SELECT t.id, t.event_config_id, t.external_position_id, t.secret, e.checkin_list_id, t.local_checkin_at
		FROM tickets t
		JOIN event_mirrors e ON e.event_config_id = t.event_config_id
		WHERE t.event_config_id = ANY($1)
			AND t.is_consumed AND t.registry_checkin_at IS NULL AND t.local_checkin_at IS NOT NULL AND NOT t.is_deleted
		ORDER BY t.local_checkin_at`
	rows, err := r.pool.Query(ctx, q, eventConfigIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.PendingCheckin
	for rows.Next() {
		var p models.PendingCheckin
		if err := rows.Scan(&p.TicketID, &p.EventConfigID, &p.PositionID, &p.Secret, &p.CheckinListID, &p.LocalCheckinAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// MarkRegistryCheckin records that the registry has the ticket's check-in.
func (r *Repository) MarkRegistryCheckin(ctx context.Context, ticketID uuid.UUID, at time.Time) error {
	const q = `UPDATE tickets SET registry_checkin_at = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, ticketID, at)
	return err
}

// CheckIn records a local check-in by checker. It returns false if the ticket is
// already consumed, deleted or unknown.
func (r *Repository) CheckIn(ctx context.Context, ticketID uuid.UUID, checker string, at time.Time) (bool, error) {
	const q = `UPDATE tickets SET is_consumed = TRUE, checker_email = $2, local_checkin_at = $3, updated_at = NOW()
		WHERE id = $1 AND NOT is_consumed AND NOT is_deleted`
	tag, err := r.pool.Exec(ctx, q, ticketID, checker, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
