package model

import (
	"slices"
	"time"
)

type BookingStatus string

const (
	// BookingStatusSubmitted is the implicit state between intake and the
	// processor decision.
	BookingStatusSubmitted BookingStatus = "pending_approval"
	BookingStatusApproved  BookingStatus = "approved"
	BookingStatusRejected  BookingStatus = "rejected"
	BookingStatusActive    BookingStatus = "active"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

var (
	// BlockingBookingStatuses hold a unit for their window.
	BlockingBookingStatuses = []BookingStatus{BookingStatusActive, BookingStatusApproved, BookingStatusSubmitted}

	// OpenBookingStatuses still wait for their end transition.
	OpenBookingStatuses = []BookingStatus{BookingStatusApproved, BookingStatusActive}

	// MutableBookingStatuses may be cancelled or modified by the requester.
	MutableBookingStatuses = []BookingStatus{BookingStatusSubmitted, BookingStatusApproved}

	AllBookingStatuses = []BookingStatus{
		BookingStatusSubmitted,
		BookingStatusApproved,
		BookingStatusRejected,
		BookingStatusActive,
		BookingStatusCompleted,
		BookingStatusCancelled,
	}
)

func (s BookingStatus) In(statuses []BookingStatus) bool {
	return slices.Contains(statuses, s)
}

func (s BookingStatus) Valid() bool {
	return s.In(AllBookingStatuses)
}

// HoldsAccessCode reports whether a booking in this status carries an access code.
func (s BookingStatus) HoldsAccessCode() bool {
	return s == BookingStatusApproved || s == BookingStatusActive
}

type Booking struct {
	ReferenceCode   string        `json:"reference_code" bson:"_id"`
	UserID          string        `json:"user_id" bson:"user_id"`
	UserEmail       string        `json:"user_email,omitempty" bson:"user_email,omitempty"`
	UnitID          string        `json:"unit_id" bson:"unit_id"`
	UnitType        string        `json:"unit_type,omitempty" bson:"unit_type,omitempty"`
	StartTime       time.Time     `json:"start_time" bson:"start_time"`
	EndTime         time.Time     `json:"end_time" bson:"end_time"`
	Status          BookingStatus `json:"status" bson:"status"`
	AccessCode      string        `json:"-" bson:"access_code,omitempty"`
	RatePerHour     *float64      `json:"rate_per_hour,omitempty" bson:"rate_per_hour,omitempty"`
	RejectionReason string        `json:"rejection_reason,omitempty" bson:"rejection_reason,omitempty"`
	CreatedAt       time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt       *time.Time    `json:"updated_at,omitempty" bson:"updated_at,omitempty"`
	ApprovedAt      *time.Time    `json:"approved_at,omitempty" bson:"approved_at,omitempty"`
	RejectedAt      *time.Time    `json:"rejected_at,omitempty" bson:"rejected_at,omitempty"`
	ActivatedAt     *time.Time    `json:"activated_at,omitempty" bson:"activated_at,omitempty"`
	CancelledAt     *time.Time    `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}

// Overlaps reports whether the booking window intersects [start, end).
func (b *Booking) Overlaps(start, end time.Time) bool {
	return Overlaps(b.StartTime, b.EndTime, start, end)
}

// Overlaps compares two half-open intervals.
func Overlaps(start1, end1, start2, end2 time.Time) bool {
	return start1.Before(end2) && end1.After(start2)
}

// NormalizeInstant returns t in UTC truncated to whole seconds, the
// precision every booking window is stored with.
func NormalizeInstant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// ReservationInput is the intake request body plus the requester identity
// taken from the gateway headers.
type ReservationInput struct {
	UnitID    string    `json:"unit_id" validate:"required,max=64"`
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required"`
	UserID    string    `json:"-" validate:"required,max=128"`
	UserEmail string    `json:"-" validate:"omitempty,email"`
}

type ReservationReceipt struct {
	ReferenceCode string        `json:"reference_code"`
	Status        BookingStatus `json:"status"`
	Message       string        `json:"message"`
}

type ModificationInput struct {
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required"`
}

type AccessCodeView struct {
	ReferenceCode string        `json:"reference_code"`
	AccessCode    string        `json:"access_code"`
	Status        BookingStatus `json:"status"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	Duration      string        `json:"duration"`
}

// BookingView is a booking enriched with data of its unit.
type BookingView struct {
	*Booking
	UnitLocation string `json:"unit_location,omitempty"`
}
