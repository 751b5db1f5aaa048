package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrganizerConfig is one registry tenant whose events are mirrored locally.
type OrganizerConfig struct {
	ID              uuid.UUID     `json:"id" yaml:"id"`
	RegistryBaseURL string        `json:"registry_base_url" yaml:"registry_base_url"`
	AuthToken       string        `json:"-" yaml:"auth_token"`
	Disabled        bool          `json:"disabled" yaml:"disabled"`
	Events          []EventConfig `json:"events" yaml:"events"`
	CreatedAt       time.Time     `json:"created_at" yaml:"-"`
	UpdatedAt       time.Time     `json:"updated_at" yaml:"-"`
}

// EventConfig selects which registry items of an event count as tickets.
// SuperuserItemIDs must be a subset of ActiveItemIDs.
type EventConfig struct {
	ID               uuid.UUID `json:"id" yaml:"id"`
	OrganizerID      uuid.UUID `json:"organizer_id" yaml:"-"`
	ExternalEventID  string    `json:"external_event_id" yaml:"external_event_id"`
	ActiveItemIDs    []string  `json:"active_item_ids" yaml:"active_item_ids"`
	SuperuserItemIDs []string  `json:"superuser_item_ids" yaml:"superuser_item_ids"`
}

// IsActiveItem reports whether the registry item id is configured as a ticket.
func (e EventConfig) IsActiveItem(itemID string) bool {
	for _, id := range e.ActiveItemIDs {
		if id == itemID {
			return true
		}
	}
	return false
}

// IsSuperuserItem reports whether the registry item id grants check-in privileges.
func (e EventConfig) IsSuperuserItem(itemID string) bool {
	for _, id := range e.SuperuserItemIDs {
		if id == itemID {
			return true
		}
	}
	return false
}

// CheckSuperuserSubset returns an error naming every superuser item that is not active.
func (e EventConfig) CheckSuperuserSubset() error {
	var stray []string
	for _, id := range e.SuperuserItemIDs {
		if !e.IsActiveItem(id) {
			stray = append(stray, id)
		}
	}
	if len(stray) > 0 {
		return fmt.Errorf("event %s: superuser item(s) %q are not active items", e.ExternalEventID, strings.Join(stray, ", "))
	}
	return nil
}
