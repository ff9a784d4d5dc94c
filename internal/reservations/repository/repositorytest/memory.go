// Package repositorytest provides in-memory stores with the same
// conditional-write semantics as the Mongo repositories.
package repositorytest

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	reserrors "bikeshare/internal/reservations/errors"
	"bikeshare/internal/reservations/repository"
	mongotx "bikeshare/pkg/db/mongo"
	"bikeshare/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

// Store holds bookings, units and unit locks. Each method is atomic; a
// transaction runs its function without isolation or rollback.
type Store struct {
	mu       sync.Mutex
	bookings map[string]*model.Booking
	units    map[string]*model.Unit
	locks    map[string]*model.UnitLock

	// Fail, when set, is consulted before every operation with its name.
	Fail func(op string) error
}

func NewStore() *Store {
	return &Store{
		bookings: make(map[string]*model.Booking),
		units:    make(map[string]*model.Unit),
		locks:    make(map[string]*model.UnitLock),
	}
}

func (s *Store) Bookings() repository.BookingRepository   { return bookingStore{s} }
func (s *Store) Units() repository.UnitRepository         { return unitStore{s} }
func (s *Store) UnitLocks() repository.UnitLockRepository { return lockStore{s} }

func (s *Store) PutUnit(u *model.Unit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.units[u.ID] = &cp
}

func (s *Store) PutBooking(b *model.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ReferenceCode] = copyBooking(b)
}

func (s *Store) Unit(id string) *model.Unit {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (s *Store) Booking(ref string) *model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[ref]
	if !ok {
		return nil
	}
	return copyBooking(b)
}

func (s *Store) AllBookings() []*model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		out = append(out, copyBooking(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReferenceCode < out[j].ReferenceCode })
	return out
}

func (s *Store) HasLock(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.locks[id]
	return ok
}

func (s *Store) fail(op string) error {
	if s.Fail == nil {
		return nil
	}
	return s.Fail(op)
}

func copyBooking(b *model.Booking) *model.Booking {
	cp := *b
	return &cp
}

type bookingStore struct{ s *Store }

func (r bookingStore) Insert(_ context.Context, b *model.Booking) error {
	if err := r.s.fail("bookings.insert"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.bookings[b.ReferenceCode]; ok {
		return reserrors.ErrDuplicateReference
	}
	r.s.bookings[b.ReferenceCode] = copyBooking(b)
	return nil
}

func (r bookingStore) FindByReference(_ context.Context, ref string) (*model.Booking, error) {
	if err := r.s.fail("bookings.find"); err != nil {
		return nil, err
	}
	if b := r.s.Booking(ref); b != nil {
		return b, nil
	}
	return nil, reserrors.ErrNotFound
}

func (r bookingStore) filter(keep func(*model.Booking) bool) []*model.Booking {
	out := make([]*model.Booking, 0)
	for _, b := range r.s.AllBookings() {
		if keep(b) {
			out = append(out, b)
		}
	}
	return out
}

func (r bookingStore) FindOverlapping(_ context.Context, unitID string, start, end time.Time, statuses []model.BookingStatus) ([]*model.Booking, error) {
	if err := r.s.fail("bookings.overlapping"); err != nil {
		return nil, err
	}
	return r.filter(func(b *model.Booking) bool {
		return b.UnitID == unitID && b.Status.In(statuses) && b.Overlaps(start, end)
	}), nil
}

func (r bookingStore) FindByUser(_ context.Context, userID string, status model.BookingStatus) ([]*model.Booking, error) {
	if err := r.s.fail("bookings.by_user"); err != nil {
		return nil, err
	}
	out := r.filter(func(b *model.Booking) bool {
		return b.UserID == userID && (status == "" || b.Status == status)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (r bookingStore) FindExpired(_ context.Context, before time.Time, statuses []model.BookingStatus) ([]*model.Booking, error) {
	if err := r.s.fail("bookings.expired"); err != nil {
		return nil, err
	}
	out := r.filter(func(b *model.Booking) bool {
		return b.Status.In(statuses) && b.EndTime.Before(before)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	return out, nil
}

func (r bookingStore) FindAll(_ context.Context, limit int, offset int64) ([]*model.Booking, error) {
	if err := r.s.fail("bookings.all"); err != nil {
		return nil, err
	}
	out := r.s.AllBookings()
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if offset >= int64(len(out)) {
		return []*model.Booking{}, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r bookingStore) Count(_ context.Context) (int64, error) {
	if err := r.s.fail("bookings.count"); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.s.bookings)), nil
}

func (r bookingStore) TransitionStatus(_ context.Context, change repository.BookingStatusChange) error {
	if err := r.s.fail("bookings.transition"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.bookings[change.ReferenceCode]
	if !ok || !b.Status.In(change.From) {
		return reserrors.ErrStatusConflict
	}
	if change.ExpectedStart != nil && !b.StartTime.Equal(*change.ExpectedStart) {
		return reserrors.ErrStatusConflict
	}
	if change.ExpectedEnd != nil && !b.EndTime.Equal(*change.ExpectedEnd) {
		return reserrors.ErrStatusConflict
	}

	at := change.At
	b.Status = change.To
	b.UpdatedAt = &at
	switch change.To {
	case model.BookingStatusApproved:
		b.ApprovedAt = &at
	case model.BookingStatusRejected:
		b.RejectedAt = &at
	case model.BookingStatusActive:
		b.ActivatedAt = &at
	case model.BookingStatusCancelled:
		b.CancelledAt = &at
	case model.BookingStatusCompleted:
		b.CompletedAt = &at
	}
	if !change.To.HoldsAccessCode() {
		b.AccessCode = ""
	}
	return nil
}

func (r bookingStore) UpdateWindow(_ context.Context, ref string, allowed []model.BookingStatus, start, end time.Time) error {
	if err := r.s.fail("bookings.update_window"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.bookings[ref]
	if !ok || !b.Status.In(allowed) {
		return reserrors.ErrStatusConflict
	}
	now := time.Now().UTC()
	b.StartTime = start
	b.EndTime = end
	b.UpdatedAt = &now
	return nil
}

func (r bookingStore) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	if err := r.s.fail("transaction"); err != nil {
		return err
	}
	return fn(mongo.NewSessionContext(ctx, nil))
}

type unitStore struct{ s *Store }

func (r unitStore) FindByID(_ context.Context, id string) (*model.Unit, error) {
	if err := r.s.fail("units.find"); err != nil {
		return nil, err
	}
	if u := r.s.Unit(id); u != nil {
		return u, nil
	}
	return nil, reserrors.ErrUnitNotFound
}

func (r unitStore) FindByIDs(_ context.Context, ids []string) ([]*model.Unit, error) {
	if err := r.s.fail("units.find_many"); err != nil {
		return nil, err
	}
	out := make([]*model.Unit, 0, len(ids))
	for _, id := range ids {
		if u := r.s.Unit(id); u != nil {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r unitStore) FindAvailable(_ context.Context, location string) ([]*model.Unit, error) {
	if err := r.s.fail("units.available"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*model.Unit, 0)
	for _, u := range r.s.units {
		if u.Status == model.UnitStatusAvailable && (location == "" || u.Location == location) {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r unitStore) TransitionStatus(_ context.Context, id string, from []model.UnitStatus, to model.UnitStatus) error {
	if err := r.s.fail("units.transition"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.units[id]
	if !ok || !slices.Contains(from, u.Status) {
		return reserrors.ErrStatusConflict
	}
	now := time.Now().UTC()
	u.Status = to
	u.Version++
	u.UpdatedAt = &now
	return nil
}

type lockStore struct{ s *Store }

func (r lockStore) Create(_ context.Context, lock *model.UnitLock) error {
	if err := r.s.fail("locks.create"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.locks[lock.ID]; ok {
		return reserrors.ErrLockHeld
	}
	cp := *lock
	r.s.locks[lock.ID] = &cp
	return nil
}

func (r lockStore) Delete(_ context.Context, id, owner string) error {
	if err := r.s.fail("locks.delete"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if l, ok := r.s.locks[id]; ok && l.Owner == owner {
		delete(r.s.locks, id)
	}
	return nil
}

func (r lockStore) DeleteExpired(_ context.Context, id string, at time.Time) (bool, error) {
	if err := r.s.fail("locks.delete_expired"); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if l, ok := r.s.locks[id]; ok && l.ExpiresAt.Before(at) {
		delete(r.s.locks, id)
		return true, nil
	}
	return false, nil
}
