package cmd

import (
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"
	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/pesaplay/mpesa-sim/db"
	"github.com/pesaplay/mpesa-sim/db/migrations"
)

// DatabaseCommand applies or rolls back the sandbox's schema migrations.
type DatabaseCommand struct{}

func (c *DatabaseCommand) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "db",
		Short: "Manage the sandbox database schema",
	}

	var upCount, downCount int

	up := &cobra.Command{
		Use:   "migrate-up",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			applied, err := db.Migrate(globalOptions.databaseURL, migrate.Up, upCount, migrations.FS)
			if err != nil {
				return fmt.Errorf("applying migrations: %w", err)
			}
			log.Infof("applied %d migrations", applied)
			return nil
		},
	}
	up.Flags().IntVar(&upCount, "count", 0, "maximum migrations to apply, 0 means all pending")

	down := &cobra.Command{
		Use:   "migrate-down",
		Short: "Roll back schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			reverted, err := db.Migrate(globalOptions.databaseURL, migrate.Down, downCount, migrations.FS)
			if err != nil {
				return fmt.Errorf("rolling back migrations: %w", err)
			}
			log.Infof("reverted %d migrations", reverted)
			return nil
		},
	}
	down.Flags().IntVar(&downCount, "count", 1, "maximum migrations to roll back")

	root.AddCommand(up)
	root.AddCommand(down)
	return root
}
