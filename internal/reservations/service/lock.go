package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	reserrors "bikeshare/internal/reservations/errors"
	"bikeshare/internal/reservations/repository"
	"bikeshare/pkg/logger"
	"bikeshare/pkg/model"
)

// unitLocker serialises decisions that read and then write the booking set
// of one unit.
type unitLocker struct {
	repo repository.UnitLockRepository
	ttl  time.Duration
	now  func() time.Time
	log  *logger.Logger
}

func newUnitLocker(repo repository.UnitLockRepository, ttl time.Duration, now func() time.Time, log *logger.Logger) *unitLocker {
	return &unitLocker{repo: repo, ttl: ttl, now: now, log: log}
}

// acquire takes the lock of unitID for owner. It returns ErrLockHeld when a
// live lock belongs to someone else. The returned release func never fails.
func (l *unitLocker) acquire(ctx context.Context, unitID, owner string) (func(), error) {
	lockID := repository.UnitLockID(unitID)

	err := l.create(ctx, lockID, owner)
	if errors.Is(err, reserrors.ErrLockHeld) {
		removed, derr := l.repo.DeleteExpired(ctx, lockID, l.now())
		if derr != nil {
			return nil, fmt.Errorf("failed to clear expired unit lock: %w", derr)
		}
		if removed {
			l.log.Warn("Removed expired unit lock", "lock_id", lockID)
			err = l.create(ctx, lockID, owner)
		}
	}
	if err != nil {
		return nil, err
	}

	release := func() {
		if err := l.repo.Delete(context.WithoutCancel(ctx), lockID, owner); err != nil {
			l.log.Warn("Failed to release unit lock", "lock_id", lockID, "owner", owner, "error", err)
		}
	}
	return release, nil
}

func (l *unitLocker) create(ctx context.Context, lockID, owner string) error {
	now := l.now()
	return l.repo.Create(ctx, &model.UnitLock{
		ID:        lockID,
		Owner:     owner,
		ExpiresAt: now.Add(l.ttl),
		CreatedAt: now,
	})
}
