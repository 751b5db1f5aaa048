package reconciler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/aura-events/ticketsync/internal/models"
	"github.com/aura-events/ticketsync/internal/registry"
)

// EventData is everything fetched from the registry for one configured event.
type EventData struct {
	Config       models.EventConfig      `json:"config"`
	Settings     *registry.EventSettings `json:"settings"`
	Categories   []registry.Category     `json:"categories"`
	Items        []registry.Item         `json:"items"`
	Event        *registry.Event         `json:"event"`
	Orders       []registry.Order        `json:"orders"`
	CheckinLists []registry.CheckinList  `json:"checkin_lists"`
}

func endpoint(org models.OrganizerConfig) registry.Endpoint {
	return registry.Endpoint{BaseURL: org.RegistryBaseURL, Token: org.AuthToken}
}

// fetch loads every configured event of org. Any failure aborts the whole fetch.
func (r *Reconciler) fetch(ctx context.Context, log *zap.Logger, org models.OrganizerConfig) ([]EventData, error) {
	ep := endpoint(org)
	events := make([]EventData, 0, len(org.Events))
	for _, ec := range org.Events {
		data, err := r.fetchEvent(ctx, ep, ec)
		if err != nil {
			return nil, fmt.Errorf("fetch event %s: %w", ec.ExternalEventID, err)
		}
		log.Debug("fetched event",
			zap.String("event_id", ec.ExternalEventID),
			zap.Int("items", len(data.Items)),
			zap.Int("orders", len(data.Orders)),
		)
		events = append(events, data)
	}
	return events, nil
}

func (r *Reconciler) fetchEvent(ctx context.Context, ep registry.Endpoint, ec models.EventConfig) (EventData, error) {
	data := EventData{Config: ec}
	var err error
	if data.Settings, err = r.client.FetchEventSettings(ctx, ep, ec.ExternalEventID); err != nil {
		return data, fmt.Errorf("settings: %w", err)
	}
	if data.Categories, err = r.client.FetchCategories(ctx, ep, ec.ExternalEventID); err != nil {
		return data, fmt.Errorf("categories: %w", err)
	}
	if data.Items, err = r.client.FetchItems(ctx, ep, ec.ExternalEventID); err != nil {
		return data, fmt.Errorf("items: %w", err)
	}
	if data.Event, err = r.client.FetchEvent(ctx, ep, ec.ExternalEventID); err != nil {
		return data, fmt.Errorf("event: %w", err)
	}
	if data.Orders, err = r.client.FetchOrders(ctx, ep, ec.ExternalEventID); err != nil {
		return data, fmt.Errorf("orders: %w", err)
	}
	if data.CheckinLists, err = r.client.FetchEventCheckinLists(ctx, ep, ec.ExternalEventID); err != nil {
		return data, fmt.Errorf("checkin lists: %w", err)
	}
	return data, nil
}

// snapshot returns a copy of events safe to archive: attendee emails are replaced by
// their redaction hash and attendee names and secrets are dropped.
func snapshot(events []EventData, hasher EmailHasher) []EventData {
	out := make([]EventData, len(events))
	for i, ev := range events {
		cp := ev
		cp.Orders = make([]registry.Order, len(ev.Orders))
		for j, o := range ev.Orders {
			o.Email = hasher.Hash(o.Email)
			positions := make([]registry.Position, len(o.Positions))
			for k, p := range o.Positions {
				if p.AttendeeEmail != nil {
					h := hasher.Hash(*p.AttendeeEmail)
					p.AttendeeEmail = &h
				}
				p.AttendeeName = nil
				p.Secret = ""
				positions[k] = p
			}
			o.Positions = positions
			cp.Orders[j] = o
		}
		out[i] = cp
	}
	return out
}
