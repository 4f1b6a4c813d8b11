package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var specialties = []string{
	"General Practice",
	"Dermatology",
	"Cardiology",
	"Pediatrics",
	"Physiotherapy",
	"Dentistry",
}

type seedOptions struct {
	tenant        string
	practitioners int
	patients      int
	timezone      string
	seed          uint64
}

func seedCmd(load configLoader) *cobra.Command {
	var opts seedOptions

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demo practitioners, working hours and patients for one tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			tenantID := uuid.New()
			if opts.tenant != "" {
				if tenantID, err = uuid.Parse(opts.tenant); err != nil {
					return fmt.Errorf("invalid tenant id %q: %w", opts.tenant, err)
				}
			}
			if _, err := time.LoadLocation(opts.timezone); err != nil {
				return fmt.Errorf("invalid timezone %q: %w", opts.timezone, err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			pool, err := pgxpool.New(ctx, cfg.Database.URL())
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()

			faker := gofakeit.New(opts.seed)
			if err := seed(ctx, pool, faker, tenantID, opts); err != nil {
				return err
			}

			log.Info().
				Str("tenant_id", tenantID.String()).
				Int("practitioners", opts.practitioners).
				Int("patients", opts.patients).
				Msg("seed complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.tenant, "tenant", "", "tenant id (random when empty)")
	cmd.Flags().IntVar(&opts.practitioners, "practitioners", 5, "number of practitioners")
	cmd.Flags().IntVar(&opts.patients, "patients", 200, "number of patients")
	cmd.Flags().StringVar(&opts.timezone, "timezone", "UTC", "IANA zone for practitioners")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "faker seed, 0 for random")
	return cmd
}

func seed(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, tenantID uuid.UUID, opts seedOptions) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	practitioners := make([][]interface{}, 0, opts.practitioners)
	hours := make([][]interface{}, 0, opts.practitioners*5)
	for i := 0; i < opts.practitioners; i++ {
		id := uuid.New()
		practitioners = append(practitioners, []interface{}{
			id, tenantID, "Dr. " + faker.Name(), faker.Email(),
			faker.RandomString(specialties), opts.timezone, now, now,
		})
		for day := time.Monday; day <= time.Friday; day++ {
			hours = append(hours, []interface{}{
				uuid.New(), tenantID, id, int16(day), "09:00", "17:00", "12:00", "13:00",
			})
		}
	}

	patients := make([][]interface{}, 0, opts.patients)
	for i := 0; i < opts.patients; i++ {
		patients = append(patients, []interface{}{
			uuid.New(), tenantID, faker.Name(), faker.Email(), faker.Phone(), now, now,
		})
	}

	copies := []struct {
		table   string
		columns []string
		rows    [][]interface{}
	}{
		{"practitioners", []string{"id", "tenant_id", "name", "email", "specialty", "timezone", "created_at", "updated_at"}, practitioners},
		{"working_hours", []string{"id", "tenant_id", "practitioner_id", "weekday", "start_time", "end_time", "break_start", "break_end"}, hours},
		{"patients", []string{"id", "tenant_id", "name", "email", "phone", "created_at", "updated_at"}, patients},
	}
	for _, c := range copies {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{c.table}, c.columns, pgx.CopyFromRows(c.rows))
		if err != nil {
			return fmt.Errorf("copy %s: %w", c.table, err)
		}
		log.Info().Str("table", c.table).Int64("rows", n).Msg("seeded")
	}

	return tx.Commit(ctx)
}
