package reconcilertest

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/aura-events/ticketsync/internal/models"
	"github.com/aura-events/ticketsync/internal/registry"
)

// ValidEvent returns registry data that passes validation: email required, one
// check-in list (id 1) and the given items.
func ValidEvent(slug, name string, items ...registry.Item) *FakeEvent {
	return &FakeEvent{
		Settings:     registry.EventSettings{AttendeeEmailsAsked: true, AttendeeEmailsRequired: true},
		Items:        items,
		Event:        registry.Event{Slug: slug, Name: registry.I18nString{"en": name}},
		CheckinLists: []registry.CheckinList{{ID: 1, Name: "Entrance"}},
	}
}

// AdmissionItem returns a personalised admission product.
func AdmissionItem(id int64, name string) registry.Item {
	return registry.Item{
		ID:           id,
		Admission:    true,
		Personalized: true,
		Name:         registry.I18nString{"en": name},
	}
}

// PaidOrder returns a paid order holding positions.
func PaidOrder(code, email string, positions ...registry.Position) registry.Order {
	return registry.Order{Code: code, Status: registry.OrderStatusPaid, Email: email, Positions: positions}
}

// TicketPosition returns a position for item with an attendee name and email.
func TicketPosition(id, item int64, name, email string) registry.Position {
	return registry.Position{
		ID:            id,
		PositionID:    1,
		Item:          item,
		AttendeeName:  &name,
		AttendeeEmail: &email,
		Secret:        "secret-" + strconv.FormatInt(id, 10),
	}
}

// Organizer returns an enabled organizer config with one event per external id, each
// using activeItems as its active item set.
func Organizer(baseURL string, activeItems []string, eventIDs ...string) models.OrganizerConfig {
	org := models.OrganizerConfig{
		ID:              uuid.New(),
		RegistryBaseURL: baseURL,
		AuthToken:       "token",
	}
	for _, id := range eventIDs {
		org.Events = append(org.Events, models.EventConfig{
			ID:              uuid.New(),
			OrganizerID:     org.ID,
			ExternalEventID: id,
			ActiveItemIDs:   append([]string(nil), activeItems...),
		})
	}
	return org
}
