// Package redaction keeps hashed-email ticket stubs for attendees who have not accepted
// the current terms, and promotes them to full tickets once they do.
package redaction

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-events/ticketsync/internal/models"
	"github.com/aura-events/ticketsync/pkg/utils"
)

// Repository stores redacted tickets and user consent.
type Repository struct {
	pool         *pgxpool.Pool
	hasher       *utils.EmailHasher
	termsVersion int
}

// NewRepository creates a redaction repository. Users count as consenting once they
// agreed to termsVersion or later.
func NewRepository(pool *pgxpool.Pool, hasher *utils.EmailHasher, termsVersion int) *Repository {
	return &Repository{pool: pool, hasher: hasher, termsVersion: termsVersion}
}

// ConsentedEmails returns the subset of the normalised emails whose users agreed to the
// current terms.
func (r *Repository) ConsentedEmails(ctx context.Context, emails []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(emails) == 0 {
		return out, nil
	}
	const q = `SELECT email FROM users WHERE email = ANY($1) AND terms_agreed >= $2`
	rows, err := r.pool.Query(ctx, q, emails, r.termsVersion)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		out[email] = true
	}
	return out, rows.Err()
}

const redactedColumns = `id, hashed_email, position_id, event_config_id, item_mirror_id, secret,
	is_consumed, checker_email, local_checkin_at, registry_checkin_at, created_at, updated_at`

func scanRedacted(row pgx.Row, t *models.RedactedTicket) error {
	return row.Scan(&t.ID, &t.HashedEmail, &t.PositionID, &t.EventConfigID, &t.ItemMirrorID, &t.Secret,
		&t.IsConsumed, &t.CheckerEmail, &t.LocalCheckinAt, &t.RegistryCheckinAt, &t.CreatedAt, &t.UpdatedAt)
}

func collectRedacted(rows pgx.Rows) ([]models.RedactedTicket, error) {
	defer rows.Close()
	var list []models.RedactedTicket
	for rows.Next() {
		var t models.RedactedTicket
		if err := scanRedacted(rows, &t); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// ListRedactedByEvent returns the redacted tickets of an event config.
func (r *Repository) ListRedactedByEvent(ctx context.Context, eventConfigID uuid.UUID) ([]models.RedactedTicket, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+redactedColumns+` FROM redacted_tickets WHERE event_config_id = $1 ORDER BY position_id`, eventConfigID)
	if err != nil {
		return nil, err
	}
	return collectRedacted(rows)
}

// InsertRedacted inserts a redacted ticket with its preassigned ID.
func (r *Repository) InsertRedacted(ctx context.Context, t *models.RedactedTicket) error {
	const q = `INSERT INTO redacted_tickets (id, hashed_email, position_id, event_config_id, item_mirror_id, secret,
			is_consumed, checker_email, local_checkin_at, registry_checkin_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, q, t.ID, t.HashedEmail, t.PositionID, t.EventConfigID, t.ItemMirrorID, t.Secret,
		t.IsConsumed, t.CheckerEmail, t.LocalCheckinAt, t.RegistryCheckinAt).
		Scan(&t.CreatedAt, &t.UpdatedAt)
}

// UpdateRedacted overwrites every mutable column of a redacted ticket.
func (r *Repository) UpdateRedacted(ctx context.Context, t *models.RedactedTicket) error {
	const q = `UPDATE redacted_tickets SET hashed_email = $2, item_mirror_id = $3, secret = $4, is_consumed = $5,
			checker_email = $6, local_checkin_at = $7, registry_checkin_at = $8, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`
	return r.pool.QueryRow(ctx, q, t.ID, t.HashedEmail, t.ItemMirrorID, t.Secret, t.IsConsumed,
		t.CheckerEmail, t.LocalCheckinAt, t.RegistryCheckinAt).Scan(&t.UpdatedAt)
}

// DeleteRedacted removes a redacted ticket.
func (r *Repository) DeleteRedacted(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM redacted_tickets WHERE id = $1`, id)
	return err
}

// AgreeToTerms records that email accepted terms version and, if that satisfies the
// current terms, moves every redacted ticket of the email into tickets in the same
// transaction. It returns the user and the number of promoted tickets.
func (r *Repository) AgreeToTerms(ctx context.Context, email string, version int) (*models.User, int, error) {
	email = utils.NormalizeEmail(email)
	var (
		user     models.User
		promoted int
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const upsertQ = `INSERT INTO users (email, terms_agreed) VALUES ($1, $2)
			ON CONFLICT (email) DO UPDATE SET terms_agreed = GREATEST(users.terms_agreed, EXCLUDED.terms_agreed), updated_at = NOW()
			RETURNING id, email, terms_agreed, created_at, updated_at`
		if err := tx.QueryRow(ctx, upsertQ, email, version).
			Scan(&user.ID, &user.Email, &user.TermsAgreed, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}
		if !user.HasConsented(r.termsVersion) {
			return nil
		}

		rows, err := tx.Query(ctx, `SELECT `+redactedColumns+` FROM redacted_tickets WHERE hashed_email = $1 FOR UPDATE`, r.hasher.Hash(email))
		if err != nil {
			return fmt.Errorf("select redacted tickets: %w", err)
		}
		stubs, err := collectRedacted(rows)
		if err != nil {
			return fmt.Errorf("select redacted tickets: %w", err)
		}

		const insertQ = `INSERT INTO tickets (id, external_position_id, event_config_id, item_mirror_id, email, full_name, secret,
				is_deleted, is_consumed, checker_email, local_checkin_at, registry_checkin_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8, $9, $10, $11)
			ON CONFLICT (event_config_id, external_position_id) DO UPDATE SET
				item_mirror_id = EXCLUDED.item_mirror_id, email = EXCLUDED.email, secret = EXCLUDED.secret,
				is_deleted = FALSE, is_consumed = EXCLUDED.is_consumed, checker_email = EXCLUDED.checker_email,
				local_checkin_at = EXCLUDED.local_checkin_at, registry_checkin_at = EXCLUDED.registry_checkin_at,
				updated_at = NOW()`
		for _, t := range models.PromoteRedacted(email, stubs) {
			if _, err := tx.Exec(ctx, insertQ, t.ID, t.ExternalPositionID, t.EventConfigID, t.ItemMirrorID, t.Email, t.FullName, t.Secret,
				t.IsConsumed, t.CheckerEmail, t.LocalCheckinAt, t.RegistryCheckinAt); err != nil {
				return fmt.Errorf("promote position %s: %w", t.ExternalPositionID, err)
			}
		}
		for _, s := range stubs {
			if _, err := tx.Exec(ctx, `DELETE FROM redacted_tickets WHERE id = $1`, s.ID); err != nil {
				return fmt.Errorf("delete redacted ticket: %w", err)
			}
		}
		promoted = len(stubs)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return &user, promoted, nil
}
