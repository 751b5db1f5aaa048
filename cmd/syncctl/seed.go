package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aura-events/ticketsync/internal/organizers"
)

func seedCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert organizers and event configs from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgs, err := organizers.LoadSeedFile(file)
			if err != nil {
				return err
			}
			logger := newLogger()
			defer logger.Sync()
			pool, err := openPool(cmd.Context(), configFrom(cmd.Context()), logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := organizers.NewRepository(pool).Seed(cmd.Context(), orgs); err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			for _, o := range orgs {
				logger.Info("organizer seeded",
					zap.String("organizer_id", o.ID.String()),
					zap.String("registry_base_url", o.RegistryBaseURL),
					zap.Int("events", len(o.Events)),
				)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", o.ID, o.RegistryBaseURL)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "seed file (YAML)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
