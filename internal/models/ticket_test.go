package models

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketFieldsAreClassified(t *testing.T) {
	classified := make(map[string]bool)
	for _, f := range ticketFieldsCompared {
		classified[f] = true
	}
	for _, f := range ticketFieldsNotCompared {
		require.False(t, classified[f], "field %s listed twice", f)
		classified[f] = true
	}

	typ := reflect.TypeOf(Ticket{})
	for i := 0; i < typ.NumField(); i++ {
		name := typ.Field(i).Name
		assert.True(t, classified[name], "Ticket.%s is neither compared by TicketsDifferent nor listed as not compared", name)
		delete(classified, name)
	}
	assert.Empty(t, classified, "classified fields that no longer exist on Ticket")
}

func TestTicketsDifferentComparesExactlyNameAndDeleted(t *testing.T) {
	now := time.Now()
	checker := "door@example.com"
	base := Ticket{
		ID:                 uuid.New(),
		ExternalPositionID: "101",
		EventConfigID:      uuid.New(),
		ItemMirrorID:       uuid.New(),
		Email:              "a@x.com",
		FullName:           "Ada Lovelace",
		Secret:             "s3cr3t",
	}

	rename := base
	rename.FullName = "Ada King"
	assert.True(t, TicketsDifferent(base, rename))

	deleted := base
	deleted.IsDeleted = true
	assert.True(t, TicketsDifferent(base, deleted))

	other := base
	other.Secret = "rotated"
	other.ItemMirrorID = uuid.New()
	other.CheckinState = CheckinState{IsConsumed: true, CheckerEmail: &checker, LocalCheckinAt: &now}
	assert.False(t, TicketsDifferent(base, other))
}

func TestCheckinStateEqual(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sameInstant := at.In(time.FixedZone("CET", 3600))
	a, b := "a@x.com", "a@x.com"

	assert.True(t, CheckinState{}.Equal(CheckinState{}))
	assert.True(t, CheckinState{IsConsumed: true, CheckerEmail: &a, LocalCheckinAt: &at}.
		Equal(CheckinState{IsConsumed: true, CheckerEmail: &b, LocalCheckinAt: &sameInstant}))
	assert.False(t, CheckinState{RegistryCheckinAt: &at}.Equal(CheckinState{}))
	assert.False(t, CheckinState{CheckerEmail: &a}.Equal(CheckinState{}))
	assert.False(t, CheckinState{IsConsumed: true}.Equal(CheckinState{}))
}

func TestPromoteRedactedCarriesCheckinState(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	checker := RegistryChecker
	row := RedactedTicket{
		ID:            uuid.New(),
		HashedEmail:   "abc",
		PositionID:    "77",
		EventConfigID: uuid.New(),
		ItemMirrorID:  uuid.New(),
		Secret:        "sec",
		CheckinState: CheckinState{
			IsConsumed:        true,
			CheckerEmail:      &checker,
			LocalCheckinAt:    &at,
			RegistryCheckinAt: &at,
		},
	}

	tickets := PromoteRedacted("a@x.com", []RedactedTicket{row})
	require.Len(t, tickets, 1)
	got := tickets[0]
	assert.Equal(t, "a@x.com", got.Email)
	assert.Equal(t, row.PositionID, got.ExternalPositionID)
	assert.Equal(t, row.EventConfigID, got.EventConfigID)
	assert.Equal(t, row.ItemMirrorID, got.ItemMirrorID)
	assert.Equal(t, row.Secret, got.Secret)
	assert.False(t, got.IsDeleted)
	assert.True(t, got.CheckinState.Equal(row.CheckinState))
	assert.NotEqual(t, uuid.Nil, got.ID)
}

func TestRedactedDifferent(t *testing.T) {
	base := RedactedTicket{HashedEmail: "h", PositionID: "1", Secret: "s"}
	assert.False(t, RedactedDifferent(base, base))

	moved := base
	moved.HashedEmail = "h2"
	assert.True(t, RedactedDifferent(base, moved))

	consumed := base
	consumed.IsConsumed = true
	assert.True(t, RedactedDifferent(base, consumed))
}

func TestCheckSuperuserSubset(t *testing.T) {
	ok := EventConfig{ExternalEventID: "conf", ActiveItemIDs: []string{"1", "2"}, SuperuserItemIDs: []string{"2"}}
	assert.NoError(t, ok.CheckSuperuserSubset())

	bad := EventConfig{ExternalEventID: "conf", ActiveItemIDs: []string{"1"}, SuperuserItemIDs: []string{"2", "3"}}
	err := bad.CheckSuperuserSubset()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2, 3")
}
