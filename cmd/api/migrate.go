package main

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver for database/sql
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/pkordes/transit-dispatch/migrations"
)

func newMigrateCommand() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect database migrations",
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection string")

	open := func() (*goose.Provider, *sql.DB, error) {
		if databaseURL == "" {
			return nil, nil, fmt.Errorf("DATABASE_URL or --database-url is required")
		}
		db, err := sql.Open("pgx", databaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		provider, err := migrations.NewProvider(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return provider, db, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			results, err := provider.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s (%s)\n", r.Source.Path, r.Duration)
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no pending migrations")
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			r, err := provider.Down(cmd.Context())
			if err != nil {
				return fmt.Errorf("migrate down: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s (%s)\n", r.Source.Path, r.Duration)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the state of every migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			statuses, err := provider.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("migrate status: %w", err)
			}
			rows := make([][]string, 0, len(statuses))
			for _, s := range statuses {
				applied := "-"
				if !s.AppliedAt.IsZero() {
					applied = s.AppliedAt.UTC().Format("2006-01-02 15:04:05")
				}
				rows = append(rows, []string{strconv.FormatInt(s.Source.Version, 10), s.Source.Path, string(s.State), applied})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Version", "File", "State", "Applied At"},
				rows,
				[]columnAlignment{alignRight},
			))
			return nil
		},
	})

	return cmd
}
