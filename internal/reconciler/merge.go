package reconciler

import (
	"github.com/aura-events/ticketsync/internal/models"
)

// MergeCheckin combines the stored check-in state prev (nil for a new ticket) with the
// state derived from the registry. Only IsConsumed and RegistryCheckinAt of incoming
// are read.
//
// A registry check-in is adopted as the local one when nothing was checked in locally.
// A local check-in is never reverted: once consumed, a ticket stays consumed even while
// the registry has not caught up.
func MergeCheckin(prev *models.CheckinState, incoming models.CheckinState) models.CheckinState {
	out := models.CheckinState{
		IsConsumed:        incoming.IsConsumed,
		RegistryCheckinAt: incoming.RegistryCheckinAt,
	}
	if prev == nil {
		if incoming.RegistryCheckinAt != nil {
			stampRegistry(&out)
		}
		return out
	}

	out.CheckerEmail = prev.CheckerEmail
	out.LocalCheckinAt = prev.LocalCheckinAt
	if !prev.IsConsumed {
		if incoming.RegistryCheckinAt != nil {
			stampRegistry(&out)
		}
		return out
	}

	out.IsConsumed = true
	if out.RegistryCheckinAt == nil {
		// Keep the last registry timestamp so an exit scan at the registry does not
		// make an already redeemed ticket look pending again.
		out.RegistryCheckinAt = prev.RegistryCheckinAt
	}
	return out
}

func stampRegistry(s *models.CheckinState) {
	checker := models.RegistryChecker
	at := *s.RegistryCheckinAt
	s.IsConsumed = true
	s.CheckerEmail = &checker
	s.LocalCheckinAt = &at
}
