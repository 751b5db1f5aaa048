package reconciler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/ticketsync/internal/models"
)

// checkinTimeLayout matches the millisecond UTC timestamps the registry emits.
const checkinTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// pushCheckins redeems every locally checked-in ticket the registry has not seen.
// The first failed push aborts the phase; pushes already made stay recorded.
func (r *Reconciler) pushCheckins(ctx context.Context, log *zap.Logger, org models.OrganizerConfig) error {
	ids := make([]uuid.UUID, 0, len(org.Events))
	for _, ec := range org.Events {
		ids = append(ids, ec.ID)
	}
	pending, err := r.store.ListPendingCheckins(ctx, ids)
	if err != nil {
		return fmt.Errorf("list pending check-ins: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	ep := endpoint(org)
	pushed := 0
	defer func() { r.metrics.addPushed(pushed) }()
	for _, p := range pending {
		ts := p.LocalCheckinAt.UTC().Format(checkinTimeLayout)
		if err := r.client.PushCheckin(ctx, ep, p.Secret, p.CheckinListID, ts); err != nil {
			return fmt.Errorf("push check-in for position %s: %w", p.PositionID, err)
		}
		if err := r.store.MarkRegistryCheckin(ctx, p.TicketID, p.LocalCheckinAt); err != nil {
			return fmt.Errorf("record check-in for position %s: %w", p.PositionID, err)
		}
		pushed++
	}
	log.Info("pushed check-ins", zap.Int("pushed", pushed))
	return nil
}
