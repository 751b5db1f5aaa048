package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aura-events/ticketsync/internal/app"
	"github.com/aura-events/ticketsync/internal/realtime"
	"github.com/aura-events/ticketsync/internal/reconciler"
	"github.com/aura-events/ticketsync/internal/runlog"
	"github.com/aura-events/ticketsync/internal/scheduler"
	"github.com/aura-events/ticketsync/pkg/redis"
)

func runCommand() *cobra.Command {
	var (
		organizer string
		all       bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sync one organizer (or all) in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (organizer == "") == !all {
				return errors.New("exactly one of --organizer or --all is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := newLogger()
			defer logger.Sync()
			cfg := configFrom(ctx)
			pool, err := openPool(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer pool.Close()
			rdb, err := openRedis(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer rdb.Close()
			// Same lock and events as the server and worker, so a foreground run never
			// overlaps theirs and still shows up on dashboards.
			syncer, err := app.NewSync(ctx, cfg, pool, nil, app.Hooks{
				Notifier: scheduler.Notifiers{
					runlog.NewRecorder(runlog.NewRepository(pool), logger),
					realtime.NewPublisher(rdb.Client, logger),
				},
				Locker: redis.NewRunLock(rdb.Client, cfg.Sync.RunLockTTL, logger),
			}, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if all {
				results, err := syncer.Manager.RunAll(ctx)
				if err != nil {
					return err
				}
				failed := 0
				for _, r := range results {
					fmt.Fprintf(out, "%s\t%s\n", r.OrganizerID, describe(r.Err))
					if r.Err != nil {
						failed++
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d organizers failed", failed, len(results))
				}
				return nil
			}

			id, err := uuid.Parse(organizer)
			if err != nil {
				return fmt.Errorf("invalid organizer id: %w", err)
			}
			err = syncer.Manager.RunOrganizer(ctx, id)
			fmt.Fprintf(out, "%s\t%s\n", id, describe(err))
			return err
		},
	}
	cmd.Flags().StringVarP(&organizer, "organizer", "o", "", "organizer id")
	cmd.Flags().BoolVar(&all, "all", false, "sync every configured organizer")
	return cmd
}

func describe(err error) string {
	var invalid *reconciler.ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		return "already running"
	case errors.As(err, &invalid):
		return "invalid registry configuration:\n" + invalid.Error()
	}
	if phase, ok := reconciler.FailedPhase(err); ok {
		return fmt.Sprintf("failed while %s: %v", phase, err)
	}
	return "failed: " + err.Error()
}
