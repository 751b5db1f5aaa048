package registry

import (
	"sort"
	"time"
)

// Order statuses and check-in types used by the registry API.
const (
	OrderStatusPaid  = "p"
	CheckinTypeEntry = "entry"
	CheckinTypeExit  = "exit"
)

// Endpoint addresses one organizer on the registry.
type Endpoint struct {
	BaseURL string
	Token   string
}

// I18nString maps language codes to translations.
type I18nString map[string]string

// String returns the English translation, or the lexically first language if there is none.
func (s I18nString) String() string {
	if v, ok := s["en"]; ok {
		return v
	}
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	return s[keys[0]]
}

// EventSettings are the per-event settings relevant to ticket mirroring.
// Both flags set means "ask for and require an email address per ticket".
type EventSettings struct {
	AttendeeEmailsAsked    bool `json:"attendee_emails_asked"`
	AttendeeEmailsRequired bool `json:"attendee_emails_required"`
}

// Category is a product category; add-on categories exempt their items from ticket checks.
type Category struct {
	ID      int64      `json:"id"`
	Name    I18nString `json:"name"`
	IsAddon bool       `json:"is_addon"`
}

// Item is a product sold for an event.
type Item struct {
	ID              int64      `json:"id"`
	Category        *int64     `json:"category"`
	Admission       bool       `json:"admission"`
	Personalized    bool       `json:"personalized"`
	GenerateTickets *bool      `json:"generate_tickets"`
	Name            I18nString `json:"name"`
}

// Event is the registry's event metadata.
type Event struct {
	Slug string     `json:"slug"`
	Name I18nString `json:"name"`
}

// Checkin is one entry or exit scan of a position.
type Checkin struct {
	Datetime string `json:"datetime"`
	Type     string `json:"type"`
}

// Position is one ticket inside an order.
type Position struct {
	ID            int64     `json:"id"`
	Order         string    `json:"order"`
	PositionID    int64     `json:"positionid"`
	Item          int64     `json:"item"`
	AttendeeName  *string   `json:"attendee_name"`
	AttendeeEmail *string   `json:"attendee_email"`
	Secret        string    `json:"secret"`
	Checkins      []Checkin `json:"checkins"`
	AddonTo       *int64    `json:"addon_to"`
}

// CheckedInAt returns the time of the most recent check-in event if it was an entry.
// An exit after the last entry, or no check-ins at all, yields nil. Unparseable
// datetimes are ignored.
func (p Position) CheckedInAt() *time.Time {
	var (
		latest     time.Time
		latestType string
	)
	for _, c := range p.Checkins {
		at, err := time.Parse(time.RFC3339Nano, c.Datetime)
		if err != nil {
			continue
		}
		if latestType == "" || at.After(latest) {
			latest, latestType = at, c.Type
		}
	}
	if latestType != CheckinTypeEntry {
		return nil
	}
	return &latest
}

// Order is a registry order; only paid orders yield tickets.
type Order struct {
	Code      string     `json:"code"`
	Status    string     `json:"status"`
	Testmode  bool       `json:"testmode"`
	Email     string     `json:"email"`
	Positions []Position `json:"positions"`
}

// CheckinList is a registry check-in list. Mirrored events must have exactly one.
type CheckinList struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type page[T any] struct {
	Results []T     `json:"results"`
	Next    *string `json:"next"`
}

type redeemRequest struct {
	Secret   string `json:"secret"`
	Lists    []any  `json:"lists"`
	Datetime string `json:"datetime"`
}
