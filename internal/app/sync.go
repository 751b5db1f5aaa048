// Package app wires the sync components shared by the server, worker and CLI binaries.
package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/aura-events/ticketsync/config"
	"github.com/aura-events/ticketsync/internal/mirror"
	"github.com/aura-events/ticketsync/internal/organizers"
	"github.com/aura-events/ticketsync/internal/reconciler"
	"github.com/aura-events/ticketsync/internal/redaction"
	"github.com/aura-events/ticketsync/internal/registry"
	"github.com/aura-events/ticketsync/internal/scheduler"
	"github.com/aura-events/ticketsync/pkg/storage"
	"github.com/aura-events/ticketsync/pkg/utils"
)

// Sync holds the repositories and the manager built by NewSync.
type Sync struct {
	Manager    *scheduler.Manager
	Organizers *organizers.Repository
	Mirror     *mirror.Repository
	Redactions *redaction.Repository
}

// Hooks are the optional collaborators the Manager shares with other processes.
type Hooks struct {
	Notifier scheduler.Notifier
	// Locker makes runs single-flight across the server, the worker and syncctl.
	Locker scheduler.Locker
}

// NewSync builds the sync manager. Every organizer gets its own registry client so
// cancelling one organizer never aborts another's requests. reg is optional.
func NewSync(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, reg prometheus.Registerer, hooks Hooks, logger *zap.Logger) (*Sync, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	hasher, err := utils.NewEmailHasher(cfg.Sync.RedactionHashKey)
	if err != nil {
		return nil, fmt.Errorf("redaction hasher: %w", err)
	}

	s := &Sync{
		Organizers: organizers.NewRepository(pool),
		Mirror:     mirror.NewRepository(pool),
		Redactions: redaction.NewRepository(pool, hasher, cfg.Sync.TermsVersion),
	}

	opts := []reconciler.Option{reconciler.WithEmailHasher(hasher)}
	if reg != nil {
		opts = append(opts, reconciler.WithMetrics(reconciler.NewMetrics(reg)))
	}
	if cfg.Sync.SnapshotsEnabled {
		archiver, err := snapshotArchiver(ctx, cfg.AWS, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, reconciler.WithArchiver(archiver))
	}

	clientOpts := registry.Options{
		Timeout:           cfg.Registry.Timeout,
		RequestsPerMinute: cfg.Registry.RequestsPerMinute,
		MaxRetryAfter:     cfg.Registry.MaxRetryAfter,
	}
	factory := func(organizerID uuid.UUID) *reconciler.Reconciler {
		log := logger.With(zap.String("organizer_id", organizerID.String()))
		client := registry.NewHTTPClient(clientOpts, log)
		return reconciler.New(client, s.Mirror, s.Redactions, append([]reconciler.Option{reconciler.WithLogger(log)}, opts...)...)
	}
	s.Manager = scheduler.NewManager(s.Organizers, factory, scheduler.Options{
		Interval:      cfg.Sync.Interval,
		MaxConcurrent: cfg.Sync.MaxConcurrentOrganizers,
		Notifier:      hooks.Notifier,
		Locker:        hooks.Locker,
	}, logger)
	return s, nil
}

func snapshotArchiver(ctx context.Context, cfg config.AWSConfig, logger *zap.Logger) (reconciler.Archiver, error) {
	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:          cfg.Region,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		SnapshotsBucket: cfg.SnapshotsBucket,
		Endpoint:        cfg.Endpoint,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("s3: %w", err)
	}
	return reconciler.ArchiverFunc(func(ctx context.Context, organizerID, runID uuid.UUID, events []reconciler.EventData) error {
		_, err := s3Client.PutSnapshot(ctx, organizerID.String(), runID.String(), events)
		return err
	}), nil
}
