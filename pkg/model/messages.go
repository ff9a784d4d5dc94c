package model

import "time"

// BookingRequest is the request queue payload produced at intake.
type BookingRequest struct {
	ReferenceCode string    `json:"reference_code" validate:"required"`
	UserID        string    `json:"user_id" validate:"required"`
	UserEmail     string    `json:"user_email,omitempty" validate:"omitempty,email"`
	UnitID        string    `json:"unit_id" validate:"required"`
	UnitType      string    `json:"unit_type,omitempty"`
	StartTime     time.Time `json:"start_time" validate:"required"`
	EndTime       time.Time `json:"end_time" validate:"required"`
	CreatedAt     time.Time `json:"created_at"`
	RatePerHour   *float64  `json:"rate_per_hour,omitempty"`
}

type TransitionAction string

const (
	TransitionStartBooking TransitionAction = "start_booking"
	TransitionEndBooking   TransitionAction = "end_booking"
)

// TransitionJob is a self-contained copy of what one scheduled transition
// needs. WindowStart and WindowEnd pin the booking window the job was
// registered for.
type TransitionJob struct {
	ID                  string           `json:"id" validate:"required"`
	UnitID              string           `json:"unit_id" validate:"required"`
	ReferenceCode       string           `json:"reference_code" validate:"required"`
	TargetUnitStatus    UnitStatus       `json:"target_unit_status" validate:"required,unit_status"`
	TargetBookingStatus BookingStatus    `json:"target_booking_status" validate:"required,booking_status"`
	Action              TransitionAction `json:"action" validate:"required,oneof=start_booking end_booking"`
	WindowStart         time.Time        `json:"window_start" validate:"required"`
	WindowEnd           time.Time        `json:"window_end" validate:"required"`
	FireAt              time.Time        `json:"fire_at" validate:"required"`
	CleanupJobIDs       []string         `json:"cleanup_job_ids,omitempty"`
}

// Notification is handed to the notification queue for out-of-band delivery.
type Notification struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
