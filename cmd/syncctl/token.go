package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aura-events/ticketsync/internal/auth"
)

func tokenCommand() *cobra.Command {
	var (
		subject string
		role    string
		hours   int
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an operator token for the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFrom(cmd.Context())
			if hours <= 0 {
				hours = cfg.JWT.ExpireHours
			}
			token, err := auth.NewJWTService(cfg.JWT.Secret, hours).Generate(subject, role)
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "operator email or service name")
	cmd.Flags().StringVarP(&role, "role", "r", auth.RoleOperator, "admin, operator or service")
	cmd.Flags().IntVar(&hours, "expire-hours", 0, "token lifetime (default JWT_EXPIRE_HOURS)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
