package reconciler

import (
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/ticketsync/internal/models"
	"github.com/aura-events/ticketsync/internal/registry"
	"github.com/aura-events/ticketsync/pkg/utils"
)

// candidateTickets converts the paid order positions of an event into unsaved tickets.
// Positions whose item has no live ItemMirror, or that have no email at all, are dropped.
// Check-in state carries only the registry's view; see MergeCheckin.
func candidateTickets(log *zap.Logger, eventConfigID uuid.UUID, orders []registry.Order, items []models.ItemMirror) []models.Ticket {
	itemByExternal := make(map[string]uuid.UUID, len(items))
	for _, it := range items {
		if !it.IsDeleted {
			itemByExternal[it.ExternalItemID] = it.ID
		}
	}

	var out []models.Ticket
	for _, o := range orders {
		if o.Status != registry.OrderStatusPaid {
			continue
		}
		for _, p := range o.Positions {
			itemID, ok := itemByExternal[strconv.FormatInt(p.Item, 10)]
			if !ok {
				continue
			}
			positionID := strconv.FormatInt(p.ID, 10)

			email := ""
			if p.AttendeeEmail != nil {
				email = utils.NormalizeEmail(*p.AttendeeEmail)
			}
			if email == "" {
				log.Warn("order position without attendee email, falling back to order email",
					zap.String("order", o.Code), zap.String("position_id", positionID))
				email = utils.NormalizeEmail(o.Email)
			}
			if email == "" {
				log.Warn("order position without any email, skipping",
					zap.String("order", o.Code), zap.String("position_id", positionID))
				continue
			}

			var fullName string
			if p.AttendeeName != nil {
				fullName = *p.AttendeeName
			}
			registryAt := p.CheckedInAt()

			out = append(out, models.Ticket{
				ExternalPositionID: positionID,
				EventConfigID:      eventConfigID,
				ItemMirrorID:       itemID,
				Email:              email,
				FullName:           fullName,
				Secret:             p.Secret,
				CheckinState: models.CheckinState{
					IsConsumed:        registryAt != nil,
					RegistryCheckinAt: registryAt,
				},
			})
		}
	}
	return out
}
