package app

import (
	"github.com/spf13/cobra"

	"mailtriage/pkg/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap(cmd.Context(), "migrate")
		if err != nil {
			return err
		}
		defer rt.close()

		if err := db.Migrate(cmd.Context(), rt.pool); err != nil {
			return err
		}
		rt.logger.Info("Schema is up to date")
		return nil
	},
}
