package cli

import (
	"context"
	"fmt"

	"bikeshare/internal/reservations/repository"
	"bikeshare/internal/scheduler"
	"bikeshare/pkg/model"

	"github.com/spf13/cobra"
)

type bookingFinder interface {
	FindByReference(ctx context.Context, referenceCode string) (*model.Booking, error)
}

type jobManager interface {
	Reschedule(ctx context.Context, job model.TransitionJob) error
	RescheduleBooking(ctx context.Context, b *model.Booking) error
	CancelBooking(ctx context.Context, referenceCode string) error
}

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and repair scheduled transition jobs",
	}
	cmd.AddCommand(newJobsDeregisterCmd())
	cmd.AddCommand(newJobsRescheduleCmd())
	return cmd
}

func newJobsDeregisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deregister <reference-code>",
		Short: "Remove both transition jobs of a booking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			if err := e.scheduler().CancelBooking(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deregistered jobs of %s\n", args[0])
			return nil
		},
	}
}

func newJobsRescheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reschedule <reference-code>",
		Short: "Re-register the pending transition jobs of a booking from its stored window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			msg, err := rescheduleJobs(cmd.Context(), repository.NewMongoBookingRepository(e.cfg), e.scheduler(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

// rescheduleJobs registers the jobs a booking still needs: both for an
// approved booking, only the end job for an active one.
func rescheduleJobs(ctx context.Context, bookings bookingFinder, jobs jobManager, referenceCode string) (string, error) {
	booking, err := bookings.FindByReference(ctx, referenceCode)
	if err != nil {
		return "", fmt.Errorf("failed to load booking %s: %w", referenceCode, err)
	}

	switch booking.Status {
	case model.BookingStatusApproved:
		if err := jobs.RescheduleBooking(ctx, booking); err != nil {
			return "", err
		}
		return fmt.Sprintf("rescheduled start and end jobs of %s", referenceCode), nil
	case model.BookingStatusActive:
		_, end := scheduler.BuildTransitionJobs(booking)
		if err := jobs.Reschedule(ctx, end); err != nil {
			return "", err
		}
		return fmt.Sprintf("rescheduled end job of %s", referenceCode), nil
	default:
		return "", fmt.Errorf("booking %s is %s and has no pending transitions", referenceCode, booking.Status)
	}
}
