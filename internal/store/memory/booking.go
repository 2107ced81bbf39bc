package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"salonsched/backend/internal/domain"
	"salonsched/backend/internal/store"
)

const (
	technicianLockPrefix  = "technician:"
	appointmentLockPrefix = "appointment:"
	waitlistLockPrefix    = "waitlist:"
)

type bookingTx struct {
	s       *Store
	ctx     context.Context
	staged  map[uuid.UUID]domain.Appointment
	events  []domain.Event
	unlocks []func()
}

func (s *Store) InTechnicianTransaction(ctx context.Context, technicianIDs []uuid.UUID, fn func(ctx context.Context, tx store.BookingTx) error) error {
	unlock, err := s.locks.lockAll(ctx, technicianLockPrefix, technicianIDs)
	if err != nil {
		return err
	}
	defer unlock()
	return s.runBooking(ctx, fn)
}

func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context, tx store.BookingTx) error) error {
	return s.runBooking(ctx, fn)
}

func (s *Store) runBooking(ctx context.Context, fn func(ctx context.Context, tx store.BookingTx) error) error {
	tx := &bookingTx{s: s, ctx: ctx, staged: make(map[uuid.UUID]domain.Appointment)}
	defer tx.releaseRows()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.commit()
}

func (t *bookingTx) releaseRows() {
	for i := len(t.unlocks) - 1; i >= 0; i-- {
		t.unlocks[i]()
	}
}

// commit re-checks the no-overlap rule against committed rows, standing in
// for the exclusion constraint the postgres schema carries.
func (t *bookingTx) commit() error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for id, a := range t.staged {
		if !a.Status.Busy() {
			continue
		}
		for _, other := range busyFrom(t.s.appointments, t.staged, a.TechnicianID, a.StartTime, a.EndTime) {
			if other.ID != id {
				return store.NewConflict(other)
			}
		}
	}

	for id, a := range t.staged {
		t.s.appointments[id] = a
	}
	t.s.appendOutboxLocked(t.ctx, t.events)
	return nil
}

func (t *bookingTx) current(id uuid.UUID) (domain.Appointment, bool) {
	if a, ok := t.staged[id]; ok {
		return a, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	a, ok := t.s.appointments[id]
	return a, ok
}

func (t *bookingTx) AppointmentForUpdate(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	if _, ok := t.staged[appointmentID]; !ok {
		unlock, err := t.s.locks.lock(ctx, appointmentLockPrefix+appointmentID.String())
		if err != nil {
			return domain.Appointment{}, err
		}
		t.unlocks = append(t.unlocks, unlock)
	}
	a, ok := t.current(appointmentID)
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (t *bookingTx) ListBusy(ctx context.Context, technicianID uuid.UUID, start, end time.Time) ([]domain.Appointment, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return busyFrom(t.s.appointments, t.staged, technicianID, start, end), nil
}

func (t *bookingTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if appt.ID != uuid.Nil {
		if existing, ok := t.current(appt.ID); ok {
			if !existing.SameBooking(appt) {
				return domain.Appointment{}, store.ErrIdempotencyConflict
			}
			return existing, nil
		}
	} else {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Appointment{}, err
		}
		appt.ID = id
	}

	now := t.s.now()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	if appt.UpdatedAt.IsZero() {
		appt.UpdatedAt = now
	}
	t.staged[appt.ID] = appt
	return appt, nil
}

func (t *bookingTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if _, ok := t.current(appt.ID); !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	appt.UpdatedAt = t.s.now()
	t.staged[appt.ID] = appt
	return appt, nil
}

func (t *bookingTx) AppendEvents(ctx context.Context, events ...domain.Event) error {
	t.events = append(t.events, events...)
	return nil
}
