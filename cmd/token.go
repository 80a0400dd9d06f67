package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tutorline/server/internal/auth"
	"github.com/tutorline/server/internal/config"
)

func newTokenCmd() *cobra.Command {
	var (
		role    string
		email   string
		subject string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin or realtime token with the configured JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			issuer := auth.NewIssuer(cfg.JWTSecret)

			var (
				token     string
				expiresAt time.Time
			)
			switch role {
			case auth.RoleAdmin:
				if email == "" {
					email = cfg.AdminEmail
				}
				if email == "" {
					return fmt.Errorf("--email is required when ADMIN_EMAIL is unset")
				}
				token, expiresAt, err = issuer.GenerateAdminToken(email)
			case auth.RoleRealtime:
				token, expiresAt, err = issuer.GenerateRealtimeToken(subject)
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", auth.RoleAdmin, "admin or realtime")
	cmd.Flags().StringVar(&email, "email", "", "admin email (defaults to ADMIN_EMAIL)")
	cmd.Flags().StringVar(&subject, "subject", "english", "subject for realtime tokens")
	return cmd
}
