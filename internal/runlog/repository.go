// Package runlog keeps the history of sync runs per organizer.
package runlog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-events/ticketsync/internal/reconciler"
)

// Run is one row of GET /organizers/:id/runs. FinishedAt is nil while the run is in flight
// (or if the process died during it).
type Run struct {
	ID          uuid.UUID        `json:"id"`
	OrganizerID uuid.UUID        `json:"organizer_id"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty"`
	Phase       reconciler.Phase `json:"phase,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Stats aggregates the finished runs of an organizer.
type Stats struct {
	Finished        int     `json:"finished"`
	Failed          int     `json:"failed"`
	AvgDurationSecs float64 `json:"avg_duration_seconds"`
}

// Repository handles sync_runs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a run log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LogStart inserts an open row for a run that has just started.
func (r *Repository) LogStart(ctx context.Context, organizerID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sync_runs (organizer_id, started_at) VALUES ($1, $2)`,
		organizerID, at)
	return err
}

// LogFinish closes the most recent open run of the organizer.
func (r *Repository) LogFinish(ctx context.Context, organizerID uuid.UUID, finishedAt time.Time, phase reconciler.Phase, errMsg string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sync_runs s SET finished_at = $2, phase = NULLIF($3, ''), error = NULLIF($4, '')
		 FROM (SELECT id FROM sync_runs WHERE organizer_id = $1 AND finished_at IS NULL ORDER BY started_at DESC LIMIT 1) AS sub
		 WHERE s.id = sub.id`,
		organizerID, finishedAt, string(phase), errMsg)
	return err
}

// ListByOrganizer returns the latest runs of an organizer, newest first.
func (r *Repository) ListByOrganizer(ctx context.Context, organizerID uuid.UUID, limit int) ([]Run, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, organizer_id, started_at, finished_at, COALESCE(phase, ''), COALESCE(error, '')
		 FROM sync_runs WHERE organizer_id = $1 ORDER BY started_at DESC LIMIT $2`,
		organizerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []Run{}
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.OrganizerID, &run.StartedAt, &run.FinishedAt, &run.Phase, &run.Error); err != nil {
			return nil, err
		}
		list = append(list, run)
	}
	return list, rows.Err()
}

// GetStats returns counts and average duration over the organizer's finished runs.
func (r *Repository) GetStats(ctx context.Context, organizerID uuid.UUID) (*Stats, error) {
	const q = `SELECT COUNT(*), COUNT(error),
			COALESCE(AVG(EXTRACT(EPOCH FROM (finished_at - started_at))), 0)::FLOAT8
		FROM sync_runs WHERE organizer_id = $1 AND finished_at IS NOT NULL`
	var s Stats
	if err := r.pool.QueryRow(ctx, q, organizerID).Scan(&s.Finished, &s.Failed, &s.AvgDurationSecs); err != nil {
		return nil, err
	}
	return &s, nil
}
