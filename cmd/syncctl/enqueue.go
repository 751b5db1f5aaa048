package main

import (
	"fmt"
	"os/user"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aura-events/ticketsync/pkg/queue"
)

func enqueueCommand() *cobra.Command {
	var organizer string
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a sync for the worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(organizer)
			if err != nil {
				return fmt.Errorf("invalid organizer id: %w", err)
			}
			cfg := configFrom(cmd.Context())
			logger := newLogger()
			defer logger.Sync()

			rdb, err := openRedis(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer rdb.Close()

			requestedBy := programName
			if u, err := user.Current(); err == nil {
				requestedBy = programName + ":" + u.Username
			}
			jobID, err := queue.NewQueue(rdb.Client, logger).EnqueueSync(cmd.Context(), queue.SyncPayload{
				OrganizerID: id,
				RequestedBy: requestedBy,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), jobID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&organizer, "organizer", "o", "", "organizer id")
	_ = cmd.MarkFlagRequired("organizer")
	return cmd
}
