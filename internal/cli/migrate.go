package cli

import (
	"context"
	"fmt"
	"time"

	mongoMigration "bikeshare/internal/migrations/mongo"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var timeout time.Duration

	c := &cobra.Command{
		Use:   "migrate",
		Short: "Create collections, validators and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			db := e.cfg.Client.Mongo.Database(e.cfg.MongoDatabaseName)
			if err := mongoMigration.RunMigration(ctx, db, e.cfg.Log); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migration completed successfully.")
			return nil
		},
	}

	c.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall migration timeout")
	return c
}
