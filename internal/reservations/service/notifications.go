package service

import (
	"context"
	"fmt"
	"time"

	"bikeshare/pkg/logger"
	"bikeshare/pkg/model"
)

const windowLayout = "2006-01-02 15:04 MST"

func approvalNotification(b *model.Booking) model.Notification {
	return model.Notification{
		To:      b.UserEmail,
		Subject: "Your bike reservation is confirmed",
		Body: fmt.Sprintf(
			"Reservation %s for unit %s is confirmed from %s to %s.\nYour access code is %s.",
			b.ReferenceCode, b.UnitID, b.StartTime.Format(windowLayout), b.EndTime.Format(windowLayout), b.AccessCode,
		),
	}
}

func rejectionNotification(b *model.Booking) model.Notification {
	return model.Notification{
		To:      b.UserEmail,
		Subject: "Your bike reservation could not be confirmed",
		Body: fmt.Sprintf(
			"Reservation %s for unit %s from %s to %s was rejected: %s.",
			b.ReferenceCode, b.UnitID, b.StartTime.Format(windowLayout), b.EndTime.Format(windowLayout), rejectionText(b.RejectionReason),
		),
	}
}

func cancellationNotification(b *model.Booking) model.Notification {
	return model.Notification{
		To:      b.UserEmail,
		Subject: "Your bike reservation was cancelled",
		Body:    fmt.Sprintf("Reservation %s for unit %s has been cancelled.", b.ReferenceCode, b.UnitID),
	}
}

func modificationNotification(b *model.Booking) model.Notification {
	return model.Notification{
		To:      b.UserEmail,
		Subject: "Your bike reservation was updated",
		Body: fmt.Sprintf(
			"Reservation %s for unit %s now runs from %s to %s.",
			b.ReferenceCode, b.UnitID, b.StartTime.Format(windowLayout), b.EndTime.Format(windowLayout),
		),
	}
}

func rejectionText(reason string) string {
	switch reason {
	case ReasonInvalidTimeRange:
		return "the end time must be after the start time"
	case ReasonStartInPast:
		return "the start time is in the past"
	case ReasonUnitNotFound:
		return "the unit does not exist"
	case ReasonUnitUnavailable:
		return "the unit is not available"
	case ReasonTimeConflict:
		return "the unit is already reserved for part of that window"
	default:
		return reason
	}
}

// notify hands n to the notifier. Failures are logged; they never change
// the outcome of the operation that triggered them.
func notify(ctx context.Context, notifier Notifier, log *logger.Logger, n model.Notification) {
	if n.To == "" {
		log.Debug("Skipping notification without recipient", "subject", n.Subject)
		return
	}
	if err := notifier.Notify(ctx, n); err != nil {
		log.Warn("Failed to queue notification", "subject", n.Subject, "error", err)
	}
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2f hours", d.Hours())
}
