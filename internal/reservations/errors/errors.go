package errors

import "errors"

var (
	ErrNotFound           = errors.New("booking not found")
	ErrUnitNotFound       = errors.New("unit not found")
	ErrDuplicateReference = errors.New("booking with this reference code already exists")
	ErrStatusConflict     = errors.New("record is not in the expected status")
	ErrLockHeld           = errors.New("unit lock is held by another request")
)
