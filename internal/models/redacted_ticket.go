package models

import (
	"time"

	"github.com/google/uuid"
)

// RedactedTicket stands in for a Ticket until the attendee signs in and accepts the
// current terms. The email is stored only as an irreversible keyed hash.
type RedactedTicket struct {
	ID            uuid.UUID `json:"id"`
	HashedEmail   string    `json:"hashed_email"`
	PositionID    string    `json:"position_id"`
	EventConfigID uuid.UUID `json:"event_config_id"`
	ItemMirrorID  uuid.UUID `json:"item_mirror_id"`
	Secret        string    `json:"-"`
	CheckinState
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RedactedDifferent reports whether writing updated over old would change the row.
func RedactedDifferent(old, updated RedactedTicket) bool {
	return old.HashedEmail != updated.HashedEmail ||
		old.ItemMirrorID != updated.ItemMirrorID ||
		old.Secret != updated.Secret ||
		!old.CheckinState.Equal(updated.CheckinState)
}

// PromoteRedacted turns the redacted rows of a consenting attendee into full tickets,
// carrying every check-in field over. email must already be normalised.
// Full names are not kept while redacted; the next sync fills them in.
func PromoteRedacted(email string, rows []RedactedTicket) []Ticket {
	tickets := make([]Ticket, 0, len(rows))
	for _, r := range rows {
		tickets = append(tickets, Ticket{
			ID:                 uuid.New(),
			ExternalPositionID: r.PositionID,
			EventConfigID:      r.EventConfigID,
			ItemMirrorID:       r.ItemMirrorID,
			Email:              email,
			Secret:             r.Secret,
			CheckinState:       r.CheckinState,
		})
	}
	return tickets
}
