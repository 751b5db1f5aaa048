package models

import (
	"time"

	"github.com/google/uuid"
)

// EventMirror is the local copy of a registry event, one per EventConfig.
type EventMirror struct {
	ID            uuid.UUID `json:"id"`
	EventConfigID uuid.UUID `json:"event_config_id"`
	DisplayName   string    `json:"display_name"`
	CheckinListID string    `json:"checkin_list_id"`
	IsDeleted     bool      `json:"is_deleted"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ItemMirror is the local copy of an active registry item (product).
// Rows are soft-deleted only since tickets reference them.
type ItemMirror struct {
	ID             uuid.UUID `json:"id"`
	EventMirrorID  uuid.UUID `json:"event_mirror_id"`
	ExternalItemID string    `json:"external_item_id"`
	DisplayName    string    `json:"display_name"`
	IsDeleted      bool      `json:"is_deleted"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
