package cli

import (
	"fmt"

	"bikeshare/internal/reservations/repository"
	"bikeshare/internal/sweeper"

	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one reconciliation pass over overdue bookings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			bookings := repository.NewMongoBookingRepository(e.cfg)
			s := sweeper.New(bookings, e.executor(bookings), e.cfg.SweepInterval, e.cfg.Log)

			result, err := s.SweepOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d completed=%d skipped=%d failed=%d\n",
				result.Scanned, result.Completed, result.Skipped, result.Failed)
			return nil
		},
	}
}
