package organizers

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aura-events/ticketsync/internal/models"
)

// SeedFile is the YAML layout accepted by LoadSeedFile:
//
//	organizers:
//	  - registry_base_url: https://tickets.example.org/api/v1/organizers/devcon
//	    auth_token: ${DEVCON_REGISTRY_TOKEN}
//	    events:
//	      - external_event_id: devcon-7
//	        active_item_ids: ["42", "43"]
//	        superuser_item_ids: ["43"]
type SeedFile struct {
	Organizers []models.OrganizerConfig `yaml:"organizers"`
}

// LoadSeedFile reads and validates a seed file. Environment references in auth_token
// are expanded so tokens need not be committed.
func LoadSeedFile(path string) ([]models.OrganizerConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(raw)
}

// ParseSeed decodes and validates seed YAML.
func ParseSeed(raw []byte) ([]models.OrganizerConfig, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var f SeedFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for i := range f.Organizers {
		o := &f.Organizers[i]
		o.RegistryBaseURL = strings.TrimRight(strings.TrimSpace(o.RegistryBaseURL), "/")
		o.AuthToken = os.ExpandEnv(o.AuthToken)
	}
	if err := validateSeed(f.Organizers); err != nil {
		return nil, err
	}
	return f.Organizers, nil
}

func validateSeed(orgs []models.OrganizerConfig) error {
	var errs []error
	seen := make(map[string]bool)
	for i, o := range orgs {
		base := o.RegistryBaseURL
		switch {
		case base == "":
			errs = append(errs, fmt.Errorf("organizer %d: registry_base_url is required", i))
		case seen[base]:
			errs = append(errs, fmt.Errorf("organizer %d: duplicate registry_base_url %s", i, base))
		}
		seen[base] = true
		if o.AuthToken == "" {
			errs = append(errs, fmt.Errorf("organizer %s: auth_token is empty", base))
		}
		events := make(map[string]bool)
		for _, e := range o.Events {
			if e.ExternalEventID == "" {
				errs = append(errs, fmt.Errorf("organizer %s: event without external_event_id", base))
				continue
			}
			if events[e.ExternalEventID] {
				errs = append(errs, fmt.Errorf("organizer %s: duplicate event %s", base, e.ExternalEventID))
			}
			events[e.ExternalEventID] = true
			if err := e.CheckSuperuserSubset(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
