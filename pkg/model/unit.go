package model

import (
	"slices"
	"time"
)

type UnitStatus string

const (
	UnitStatusAvailable   UnitStatus = "available"
	UnitStatusPending     UnitStatus = "pending"
	UnitStatusInUse       UnitStatus = "in-use"
	UnitStatusMaintenance UnitStatus = "in-maintenance"
)

var (
	// OccupiableUnitStatuses may move to in-use when a booking starts.
	OccupiableUnitStatuses = []UnitStatus{UnitStatusAvailable, UnitStatusPending, UnitStatusInUse}

	// ReleasableUnitStatuses may move back to available when a booking ends.
	ReleasableUnitStatuses = []UnitStatus{UnitStatusInUse, UnitStatusPending, UnitStatusAvailable}

	// HeldUnitStatuses may be reverted to available by a cancellation. An
	// in-use unit belongs to whichever booking is running.
	HeldUnitStatuses = []UnitStatus{UnitStatusPending, UnitStatusAvailable}
)

var AllUnitStatuses = []UnitStatus{UnitStatusAvailable, UnitStatusPending, UnitStatusInUse, UnitStatusMaintenance}

func (s UnitStatus) In(statuses []UnitStatus) bool {
	return slices.Contains(statuses, s)
}

func (s UnitStatus) Valid() bool {
	return s.In(AllUnitStatuses)
}

// Unit is a rentable bike. Inventory is managed elsewhere; this service only
// moves its status.
type Unit struct {
	ID          string     `json:"id" bson:"_id"`
	Model       string     `json:"model" bson:"model"`
	Status      UnitStatus `json:"status" bson:"status"`
	Location    string     `json:"location" bson:"location"`
	Description string     `json:"description,omitempty" bson:"description,omitempty"`
	RatePerHour *float64   `json:"rate_per_hour,omitempty" bson:"rate_per_hour,omitempty"`
	Version     int64      `json:"version" bson:"version"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty" bson:"updated_at,omitempty"`
}

// UnitLock is an advisory lock that serialises decisions for one unit.
type UnitLock struct {
	ID        string    `bson:"_id" json:"id"`
	Owner     string    `bson:"owner" json:"owner"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
