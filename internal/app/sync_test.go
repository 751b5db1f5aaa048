package app

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-events/ticketsync/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Registry: config.RegistryConfig{Timeout: time.Second, RequestsPerMinute: 100},
		Sync: config.SyncConfig{
			Interval:         time.Minute,
			TermsVersion:     1,
			RedactionHashKey: "k",
		},
	}
}

func TestNewSync(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewSync(context.Background(), testConfig(), nil, reg, Hooks{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, s.Manager)
	assert.Empty(t, s.Manager.Status())

	// Collectors are registered once; a second registration on the same registry panics.
	assert.Panics(t, func() { _, _ = NewSync(context.Background(), testConfig(), nil, reg, Hooks{}, nil) })
}

func TestNewSyncWithoutMetrics(t *testing.T) {
	_, err := NewSync(context.Background(), testConfig(), nil, nil, Hooks{}, nil)
	require.NoError(t, err)
}
