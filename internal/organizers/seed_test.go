package organizers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
organizers:
  - registry_base_url: https://registry.test/api/v1/organizers/devcon/
    auth_token: ${DEVCON_REGISTRY_TOKEN}
    events:
      - external_event_id: devcon-7
        active_item_ids: ["42", "43"]
        superuser_item_ids: ["43"]
  - registry_base_url: https://registry.test/api/v1/organizers/ethcc
    auth_token: plain-token
    disabled: true
`

func TestLoadSeedFile(t *testing.T) {
	t.Setenv("DEVCON_REGISTRY_TOKEN", "tok-devcon")
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	orgs, err := LoadSeedFile(path)
	require.NoError(t, err)
	require.Len(t, orgs, 2)

	assert.Equal(t, "https://registry.test/api/v1/organizers/devcon", orgs[0].RegistryBaseURL)
	assert.Equal(t, "tok-devcon", orgs[0].AuthToken)
	require.Len(t, orgs[0].Events, 1)
	assert.Equal(t, []string{"42", "43"}, orgs[0].Events[0].ActiveItemIDs)
	assert.Equal(t, []string{"43"}, orgs[0].Events[0].SuperuserItemIDs)
	assert.True(t, orgs[1].Disabled)
	assert.Empty(t, orgs[1].Events)
}

func TestParseSeedRejects(t *testing.T) {
	tests := map[string]string{
		"unknown field": `
organizers:
  - registry_base_url: https://r.test
    auth_token: t
    colour: blue
`,
		"missing token": `
organizers:
  - registry_base_url: https://r.test
`,
		"duplicate organizer": `
organizers:
  - registry_base_url: https://r.test
    auth_token: t
  - registry_base_url: https://r.test/
    auth_token: t
`,
		"superuser not active": `
organizers:
  - registry_base_url: https://r.test
    auth_token: t
    events:
      - external_event_id: e1
        active_item_ids: ["1"]
        superuser_item_ids: ["2"]
`,
		"duplicate event": `
organizers:
  - registry_base_url: https://r.test
    auth_token: t
    events:
      - external_event_id: e1
      - external_event_id: e1
`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSeed([]byte(raw))
			assert.Error(t, err)
		})
	}
}
