package reconciler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/ticketsync/internal/models"
	"github.com/aura-events/ticketsync/pkg/utils"
)

// Counts tallies the writes made by one sub-sync.
type Counts struct {
	Inserted  int
	Updated   int
	Deleted   int
	Unchanged int
}

func (c Counts) fields() []zap.Field {
	return []zap.Field{
		zap.Int("inserted", c.Inserted),
		zap.Int("updated", c.Updated),
		zap.Int("deleted", c.Deleted),
		zap.Int("unchanged", c.Unchanged),
	}
}

// save writes every event in turn. Writes are individual statements; a failure leaves
// the writes already made in place and the next run converges.
func (r *Reconciler) save(ctx context.Context, log *zap.Logger, events []EventData) error {
	for _, ev := range events {
		evLog := log.With(zap.String("event_id", ev.Config.ExternalEventID))

		mirror, err := r.syncEvent(ctx, ev)
		if err != nil {
			evLog.Error("sync event failed, skipping update", zap.Error(err))
			return fmt.Errorf("sync event %s: %w", ev.Config.ExternalEventID, err)
		}

		items, err := r.syncItems(ctx, evLog, ev, mirror)
		if err != nil {
			evLog.Error("sync items failed, skipping update", zap.Error(err))
			return fmt.Errorf("sync items for event %s: %w", ev.Config.ExternalEventID, err)
		}

		if err := r.syncTickets(ctx, evLog, ev, items); err != nil {
			evLog.Error("sync tickets failed, skipping update", zap.Error(err))
			return fmt.Errorf("sync tickets for event %s: %w", ev.Config.ExternalEventID, err)
		}
	}
	return nil
}

func (r *Reconciler) syncEvent(ctx context.Context, ev EventData) (*models.EventMirror, error) {
	name, _ := eventLabel(ev)
	var listID string
	if len(ev.CheckinLists) > 0 {
		listID = strconv.FormatInt(ev.CheckinLists[0].ID, 10)
	}

	existing, err := r.store.GetEventMirror(ctx, ev.Config.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		m := &models.EventMirror{
			ID:            uuid.New(),
			EventConfigID: ev.Config.ID,
			DisplayName:   name,
			CheckinListID: listID,
		}
		if err := r.store.InsertEventMirror(ctx, m); err != nil {
			return nil, err
		}
		r.metrics.addWrites("event", Counts{Inserted: 1})
		return m, nil
	}
	if existing.DisplayName == name && existing.CheckinListID == listID && !existing.IsDeleted {
		return existing, nil
	}
	updated := *existing
	updated.DisplayName = name
	updated.CheckinListID = listID
	updated.IsDeleted = false
	if err := r.store.UpdateEventMirror(ctx, &updated); err != nil {
		return nil, err
	}
	r.metrics.addWrites("event", Counts{Updated: 1})
	return &updated, nil
}

// syncItems mirrors the active items of the event and returns the resulting item rows.
func (r *Reconciler) syncItems(ctx context.Context, log *zap.Logger, ev EventData, mirror *models.EventMirror) ([]models.ItemMirror, error) {
	existing, err := r.store.ListItemMirrors(ctx, mirror.ID)
	if err != nil {
		return nil, err
	}
	byExternal := make(map[string]int, len(existing))
	for i, it := range existing {
		byExternal[it.ExternalItemID] = i
	}

	var c Counts
	active := make(map[string]bool)
	for _, item := range ev.Items {
		id := strconv.FormatInt(item.ID, 10)
		if !ev.Config.IsActiveItem(id) {
			continue
		}
		active[id] = true
		name := item.Name.String()

		i, ok := byExternal[id]
		if !ok {
			m := models.ItemMirror{
				ID:             uuid.New(),
				EventMirrorID:  mirror.ID,
				ExternalItemID: id,
				DisplayName:    name,
			}
			if err := r.store.InsertItemMirror(ctx, &m); err != nil {
				return nil, err
			}
			existing = append(existing, m)
			byExternal[id] = len(existing) - 1
			c.Inserted++
			continue
		}
		if existing[i].DisplayName == name && !existing[i].IsDeleted {
			c.Unchanged++
			continue
		}
		updated := existing[i]
		updated.DisplayName = name
		updated.IsDeleted = false
		if err := r.store.UpdateItemMirror(ctx, &updated); err != nil {
			return nil, err
		}
		existing[i] = updated
		c.Updated++
	}

	for i, it := range existing {
		if active[it.ExternalItemID] || it.IsDeleted {
			continue
		}
		if err := r.store.SoftDeleteItemMirror(ctx, it.ID); err != nil {
			return nil, err
		}
		existing[i].IsDeleted = true
		c.Deleted++
	}

	r.metrics.addWrites("item", c)
	log.Info("synced items", c.fields()...)
	return existing, nil
}

// syncTickets diffs the paid positions of the event against both ticket tables,
// routing each position to a full or a redacted ticket by the attendee's consent.
func (r *Reconciler) syncTickets(ctx context.Context, log *zap.Logger, ev EventData, items []models.ItemMirror) error {
	candidates := candidateTickets(log, ev.Config.ID, ev.Orders, items)

	existing, err := r.store.ListTicketsByEvent(ctx, ev.Config.ID)
	if err != nil {
		return fmt.Errorf("list tickets: %w", err)
	}
	redacted, err := r.redactions.ListRedactedByEvent(ctx, ev.Config.ID)
	if err != nil {
		return fmt.Errorf("list redacted tickets: %w", err)
	}
	consented, err := r.redactions.ConsentedEmails(ctx, distinctEmails(candidates))
	if err != nil {
		return fmt.Errorf("look up consent: %w", err)
	}

	ticketByPos := make(map[string]*models.Ticket, len(existing))
	for i := range existing {
		ticketByPos[existing[i].ExternalPositionID] = &existing[i]
	}
	redactedByPos := make(map[string]*models.RedactedTicket, len(redacted))
	for i := range redacted {
		redactedByPos[redacted[i].PositionID] = &redacted[i]
	}

	var tickets, stubs Counts
	seen := make(map[string]bool, len(candidates))
	for _, cand := range candidates {
		pos := cand.ExternalPositionID
		if seen[pos] {
			continue
		}
		seen[pos] = true
		old, oldStub := ticketByPos[pos], redactedByPos[pos]

		if consented[cand.Email] {
			if err := r.writeTicket(ctx, cand, old, oldStub, &tickets, &stubs); err != nil {
				return fmt.Errorf("position %s: %w", pos, err)
			}
			continue
		}
		if err := r.writeRedacted(ctx, cand, old, oldStub, &tickets, &stubs); err != nil {
			return fmt.Errorf("position %s: %w", pos, err)
		}
	}

	for _, t := range existing {
		if seen[t.ExternalPositionID] || t.IsDeleted {
			continue
		}
		if err := r.store.SoftDeleteTicket(ctx, t.ID); err != nil {
			return fmt.Errorf("position %s: %w", t.ExternalPositionID, err)
		}
		tickets.Deleted++
	}
	for _, s := range redacted {
		if seen[s.PositionID] {
			continue
		}
		if err := r.redactions.DeleteRedacted(ctx, s.ID); err != nil {
			return fmt.Errorf("position %s: %w", s.PositionID, err)
		}
		stubs.Deleted++
	}

	r.metrics.addWrites("ticket", tickets)
	r.metrics.addWrites("redacted_ticket", stubs)
	log.Info("synced tickets", tickets.fields()...)
	log.Info("synced redacted tickets", stubs.fields()...)
	return nil
}

// writeTicket stores cand as a full ticket, consuming a redacted stub for the same
// position if there is one.
func (r *Reconciler) writeTicket(ctx context.Context, cand models.Ticket, old *models.Ticket, oldStub *models.RedactedTicket, tickets, stubs *Counts) error {
	ticketState, stubState := storedStates(old, oldStub)
	prev := priorCheckin(stubState, ticketState)
	if old != nil && !old.IsDeleted {
		prev = priorCheckin(ticketState, stubState)
	}
	cand.CheckinState = MergeCheckin(prev, cand.CheckinState)

	if old != nil {
		cand.ID = old.ID
		if models.TicketsDifferent(*old, cand) || !old.CheckinState.Equal(cand.CheckinState) || old.Email != cand.Email {
			if err := r.store.UpdateTicket(ctx, &cand); err != nil {
				return err
			}
			tickets.Updated++
		} else {
			tickets.Unchanged++
		}
	} else {
		cand.ID = uuid.New()
		if err := r.store.InsertTicket(ctx, &cand); err != nil {
			return err
		}
		tickets.Inserted++
	}

	if oldStub != nil {
		if err := r.redactions.DeleteRedacted(ctx, oldStub.ID); err != nil {
			return err
		}
		stubs.Deleted++
	}
	return nil
}

// writeRedacted stores cand as a redacted stub. A live full ticket for the same position
// hands its check-in state to the stub and is soft-deleted.
func (r *Reconciler) writeRedacted(ctx context.Context, cand models.Ticket, old *models.Ticket, oldStub *models.RedactedTicket, tickets, stubs *Counts) error {
	ticketState, stubState := storedStates(old, oldStub)
	prev := priorCheckin(stubState, ticketState)

	stub := models.RedactedTicket{
		HashedEmail:   r.hasher.Hash(cand.Email),
		PositionID:    cand.ExternalPositionID,
		EventConfigID: cand.EventConfigID,
		ItemMirrorID:  cand.ItemMirrorID,
		Secret:        cand.Secret,
		CheckinState:  MergeCheckin(prev, cand.CheckinState),
	}
	if oldStub != nil {
		stub.ID = oldStub.ID
		if models.RedactedDifferent(*oldStub, stub) {
			if err := r.redactions.UpdateRedacted(ctx, &stub); err != nil {
				return err
			}
			stubs.Updated++
		} else {
			stubs.Unchanged++
		}
	} else {
		stub.ID = uuid.New()
		if err := r.redactions.InsertRedacted(ctx, &stub); err != nil {
			return err
		}
		stubs.Inserted++
	}

	if old != nil && !old.IsDeleted {
		if err := r.store.SoftDeleteTicket(ctx, old.ID); err != nil {
			return err
		}
		tickets.Deleted++
	}
	return nil
}

func storedStates(old *models.Ticket, oldStub *models.RedactedTicket) (ticket, stub *models.CheckinState) {
	if old != nil {
		ticket = &old.CheckinState
	}
	if oldStub != nil {
		stub = &oldStub.CheckinState
	}
	return ticket, stub
}

// priorCheckin picks the stored state a candidate is merged with: the first consumed
// state, else the first present one. A soft-deleted ticket still counts, so a pending
// local check-in follows its position between the ticket and redacted tables.
func priorCheckin(states ...*models.CheckinState) *models.CheckinState {
	var first *models.CheckinState
	for _, st := range states {
		if st == nil {
			continue
		}
		if st.IsConsumed {
			return st
		}
		if first == nil {
			first = st
		}
	}
	return first
}

func distinctEmails(tickets []models.Ticket) []string {
	seen := make(map[string]bool, len(tickets))
	out := make([]string, 0, len(tickets))
	for _, t := range tickets {
		if !seen[t.Email] {
			seen[t.Email] = true
			out = append(out, t.Email)
		}
	}
	return out
}

type unkeyedHasher struct{}

func (unkeyedHasher) Hash(email string) string {
	sum, _ := utils.HashEmail(nil, email)
	return sum
}
