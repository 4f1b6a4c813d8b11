package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/scheduling-api/pkg/auth"
)

func tokenCmd(load configLoader) *cobra.Command {
	var (
		tenant  string
		subject string
		role    string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			tenantID, err := uuid.Parse(tenant)
			if err != nil {
				return fmt.Errorf("invalid tenant id %q: %w", tenant, err)
			}
			if role != auth.RoleAdmin && role != auth.RoleStaff {
				return fmt.Errorf("role must be %q or %q", auth.RoleAdmin, auth.RoleStaff)
			}

			jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
			token, err := jwtSvc.GenerateToken(tenantID, subject, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&subject, "subject", "schedctl", "actor id carried in sub")
	cmd.Flags().StringVar(&role, "role", auth.RoleStaff, "admin or staff")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}
