package main

import (
	"fmt"

	"psirt_report_bot/internal/infra/config"
	idb "psirt_report_bot/internal/infra/database"
	"psirt_report_bot/internal/infra/logger"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the report_requests schema",
	}
	for _, sub := range []struct{ name, short string }{
		{idb.MigrateUp, "Apply all pending migrations"},
		{idb.MigrateDown, "Roll back all migrations"},
		{idb.MigrateVersion, "Print the current schema version"},
	} {
		command := sub.name
		cmd.AddCommand(&cobra.Command{
			Use:   command,
			Short: sub.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				url, err := config.DatabaseURL()
				if err != nil {
					return fmt.Errorf("could not load database configuration: %w", err)
				}
				return idb.RunMigrate(logger.Component("migrate"), url, command)
			},
		})
	}
	return cmd
}
