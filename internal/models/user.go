package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an authenticated attendee account. Only the fields the ticket mirror
// needs are kept here; sign-in lives elsewhere.
type User struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	TermsAgreed int       `json:"terms_agreed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasConsented reports whether the user accepted at least the given terms version.
func (u *User) HasConsented(version int) bool {
	return u != nil && u.TermsAgreed >= version
}
