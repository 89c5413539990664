package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssrltools/beamcore/internal/infrastructure/config"
	"github.com/ssrltools/beamcore/internal/infrastructure/database"
)

// migrationStatus is the JSON output of "db status".
type migrationStatus struct {
	Applied []string `json:"applied"`
	Pending []string `json:"pending"`
}

func newDBCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the beamline database schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDatabase(cmd, opts, func(ctx context.Context, db *database.DB) error {
					applied, pending, err := db.GetMigrationStatus(ctx)
					if err != nil {
						return err
					}
					st := migrationStatus{Applied: []string{}, Pending: []string{}}
					for _, m := range applied {
						st.Applied = append(st.Applied, m.Version)
					}
					for _, m := range pending {
						st.Pending = append(st.Pending, m.Version+" "+m.Name)
					}

					out := cmd.OutOrStdout()
					if opts.jsonOutput {
						return writeJSON(out, st)
					}
					for _, v := range st.Applied {
						fmt.Fprintf(out, "applied  %s\n", v)
					}
					for _, v := range st.Pending {
						fmt.Fprintf(out, "pending  %s\n", v)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDatabase(cmd, opts, func(ctx context.Context, db *database.DB) error {
					return db.Migrate(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "rollback",
			Short: "Roll back the most recently applied migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDatabase(cmd, opts, func(ctx context.Context, db *database.DB) error {
					return db.MigrateDown(ctx)
				})
			},
		},
	)
	return cmd
}

// withDatabase opens only the configured database, without migrating it.
func withDatabase(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, db *database.DB) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(getConfigPath(opts.configPath))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	return fn(ctx, db)
}
