package reconciler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aura-events/ticketsync/internal/registry"
)

// validate checks every fetched event against its configuration and returns a single
// *ValidationError listing all problems, or nil.
func validate(events []EventData) error {
	var problems []string
	for _, ev := range events {
		problems = append(problems, validateEvent(ev)...)
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func validateEvent(ev EventData) []string {
	var problems []string
	name, slug := eventLabel(ev)

	if ev.Settings == nil || !ev.Settings.AttendeeEmailsAsked || !ev.Settings.AttendeeEmailsRequired {
		problems = append(problems, fmt.Sprintf(
			"event settings for %q (%s) are invalid:\n%q setting should be set to %q",
			name, slug, "Ask for email addresses per ticket", "Ask and require input"))
	}

	addonCategories := make(map[int64]bool)
	for _, c := range ev.Categories {
		if c.IsAddon {
			addonCategories[c.ID] = true
		}
	}

	fetched := make(map[string]bool)
	for _, item := range ev.Items {
		id := strconv.FormatInt(item.ID, 10)
		if !ev.Config.IsActiveItem(id) {
			continue
		}
		fetched[id] = true
		if item.Category != nil && addonCategories[*item.Category] {
			continue
		}
		if itemProblems := validateItem(item); len(itemProblems) > 0 {
			problems = append(problems, fmt.Sprintf("product %q (%d) in event %q is invalid:\n%s",
				item.Name.String(), item.ID, name, strings.Join(itemProblems, "\n")))
		}
	}

	if missing := missingIDs(ev.Config.ActiveItemIDs, fetched); len(missing) > 0 {
		problems = append(problems, fmt.Sprintf(
			"active items with ID(s) %q are present in config but not in registry data for event %s",
			strings.Join(missing, ", "), ev.Config.ExternalEventID))
	}
	if missing := missingIDs(ev.Config.SuperuserItemIDs, fetched); len(missing) > 0 {
		problems = append(problems, fmt.Sprintf(
			"superuser items with ID(s) %q are present in config but not in registry data for event %s",
			strings.Join(missing, ", "), ev.Config.ExternalEventID))
	}

	switch n := len(ev.CheckinLists); {
	case n > 1:
		problems = append(problems, fmt.Sprintf("event %q (%s) has multiple check-in lists", name, slug))
	case n < 1:
		problems = append(problems, fmt.Sprintf("event %q (%s) has no check-in lists", name, slug))
	}
	return problems
}

func validateItem(item registry.Item) []string {
	var problems []string
	if !item.Admission {
		problems = append(problems, `product type is not "Admission"`)
	}
	if !item.Personalized {
		problems = append(problems, `"Personalization" is not set to "Personalized ticket"`)
	}
	if item.GenerateTickets != nil && *item.GenerateTickets {
		problems = append(problems, `"Generate tickets" is not set to "Choose automatically depending on event settings" or "Never"`)
	}
	return problems
}

func eventLabel(ev EventData) (name, slug string) {
	if ev.Event == nil {
		return ev.Config.ExternalEventID, ev.Config.ExternalEventID
	}
	return ev.Event.Name.String(), ev.Event.Slug
}

// missingIDs returns the configured ids not present in fetched, in config order.
func missingIDs(configured []string, fetched map[string]bool) []string {
	var missing []string
	seen := make(map[string]bool)
	for _, id := range configured {
		if !fetched[id] && !seen[id] {
			missing = append(missing, id)
			seen[id] = true
		}
	}
	return missing
}
