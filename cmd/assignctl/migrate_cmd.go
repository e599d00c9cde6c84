package main

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/iota-uz/autoassign/migrations"
	"github.com/iota-uz/autoassign/pkg/configuration"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect schema migrations",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSQL(func(db *sql.DB) error {
					version, err := migrations.Up(cmd.Context(), db)
					if err != nil {
						return withCode(exitDB, err)
					}
					return writeJSON(map[string]any{"version": version})
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSQL(func(db *sql.DB) error {
					return withCode(exitDB, migrations.Down(cmd.Context(), db))
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and whether they are applied",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSQL(func(db *sql.DB) error {
					statuses, err := migrations.Status(cmd.Context(), db)
					if err != nil {
						return withCode(exitDB, err)
					}
					out := make([]map[string]any, 0, len(statuses))
					for _, s := range statuses {
						out = append(out, map[string]any{
							"version": s.Source.Version,
							"path":    s.Source.Path,
							"state":   s.State,
						})
					}
					return writeJSON(out)
				})
			},
		},
	)
	return cmd
}

func withSQL(fn func(db *sql.DB) error) error {
	conf := configuration.Use()
	db, err := sql.Open("postgres", conf.Database.Opts)
	if err != nil {
		return withCode(exitDB, fmt.Errorf("db open failed: %w", err))
	}
	defer db.Close()
	return fn(db)
}
