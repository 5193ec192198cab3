package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"custodian/internal/platform/postgres"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("CUSTODIAN_DATABASE_URL is required")
			}
			db, err := postgres.Open(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			return postgres.Migrate(ctx, db, log)
		},
	}
}
