// Package organizers manages the operator-owned registry configuration: which
// organizers are synced and which of their items count as tickets.
package organizers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-events/ticketsync/internal/models"
)

// Repository is the PostgreSQL config store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an organizers repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const organizerColumns = `id, registry_base_url, auth_token, disabled, created_at, updated_at`

const eventConfigColumns = `id, organizer_id, external_event_id, active_item_ids, superuser_item_ids`

// ListOrganizers returns every organizer with its event configs.
func (r *Repository) ListOrganizers(ctx context.Context) ([]models.OrganizerConfig, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+organizerColumns+` FROM organizers ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.OrganizerConfig
	for rows.Next() {
		var o models.OrganizerConfig
		if err := rows.Scan(&o.ID, &o.RegistryBaseURL, &o.AuthToken, &o.Disabled, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return list, nil
	}
	ids := make([]uuid.UUID, len(list))
	for i := range list {
		ids[i] = list[i].ID
	}
	events, err := r.eventConfigs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Events = events[list[i].ID]
	}
	return list, nil
}

// GetOrganizer returns one organizer with its event configs, or nil if it does not exist.
func (r *Repository) GetOrganizer(ctx context.Context, id uuid.UUID) (*models.OrganizerConfig, error) {
	var o models.OrganizerConfig
	err := r.pool.QueryRow(ctx, `SELECT `+organizerColumns+` FROM organizers WHERE id = $1`, id).
		Scan(&o.ID, &o.RegistryBaseURL, &o.AuthToken, &o.Disabled, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	events, err := r.eventConfigs(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	o.Events = events[id]
	return &o, nil
}

func (r *Repository) eventConfigs(ctx context.Context, organizerIDs []uuid.UUID) (map[uuid.UUID][]models.EventConfig, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+eventConfigColumns+` FROM event_configs
		WHERE organizer_id = ANY($1) ORDER BY external_event_id`, organizerIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID][]models.EventConfig)
	for rows.Next() {
		var e models.EventConfig
		if err := rows.Scan(&e.ID, &e.OrganizerID, &e.ExternalEventID, &e.ActiveItemIDs, &e.SuperuserItemIDs); err != nil {
			return nil, err
		}
		out[e.OrganizerID] = append(out[e.OrganizerID], e)
	}
	return out, rows.Err()
}

// Seed upserts organizers (keyed by registry base URL) and their event configs (keyed by
// organizer and external event id) in one transaction. Existing configs not named in
// orgs are left alone. The assigned ids are written back into orgs.
func (r *Repository) Seed(ctx context.Context, orgs []models.OrganizerConfig) error {
	for _, o := range orgs {
		for _, e := range o.Events {
			if err := e.CheckSuperuserSubset(); err != nil {
				return err
			}
		}
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const orgQ = `INSERT INTO organizers (id, registry_base_url, auth_token, disabled)
			VALUES (COALESCE($1, gen_random_uuid()), $2, $3, $4)
			ON CONFLICT (registry_base_url) DO UPDATE SET auth_token = EXCLUDED.auth_token,
				disabled = EXCLUDED.disabled, updated_at = NOW()
			RETURNING id, created_at, updated_at`
		const eventQ = `INSERT INTO event_configs (id, organizer_id, external_event_id, active_item_ids, superuser_item_ids)
			VALUES (COALESCE($1, gen_random_uuid()), $2, $3, $4, $5)
			ON CONFLICT (organizer_id, external_event_id) DO UPDATE SET active_item_ids = EXCLUDED.active_item_ids,
				superuser_item_ids = EXCLUDED.superuser_item_ids, updated_at = NOW()
			RETURNING id`
		for i := range orgs {
			o := &orgs[i]
			if err := tx.QueryRow(ctx, orgQ, nullableID(o.ID), o.RegistryBaseURL, o.AuthToken, o.Disabled).
				Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt); err != nil {
				return fmt.Errorf("upsert organizer %s: %w", o.RegistryBaseURL, err)
			}
			for j := range o.Events {
				e := &o.Events[j]
				e.OrganizerID = o.ID
				if err := tx.QueryRow(ctx, eventQ, nullableID(e.ID), o.ID, e.ExternalEventID,
					nonNil(e.ActiveItemIDs), nonNil(e.SuperuserItemIDs)).Scan(&e.ID); err != nil {
					return fmt.Errorf("upsert event %s: %w", e.ExternalEventID, err)
				}
			}
		}
		return nil
	})
}

// SetDisabled switches syncing of an organizer off or on. It reports whether the organizer exists.
func (r *Repository) SetDisabled(ctx context.Context, id uuid.UUID, disabled bool) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE organizers SET disabled = $2, updated_at = NOW() WHERE id = $1`, id, disabled)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func nullableID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
