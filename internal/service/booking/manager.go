// Package booking commits appointments. Every write re-checks the technician's
// busy intervals inside the same transaction that performs it.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"salonsched/backend/internal/domain"
	"salonsched/backend/internal/metrics"
	"salonsched/backend/internal/service"
	"salonsched/backend/internal/store"
)

const maxIdempotencyKeyLen = 256

type Config struct {
	DefaultLocation    *time.Location
	DefaultMinLeadTime time.Duration
}

type Manager struct {
	repo      store.AppointmentRepository
	directory store.Directory
	schedules store.ScheduleStore
	cfg       Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func NewManager(repo store.AppointmentRepository, directory store.Directory, schedules store.ScheduleStore, cfg Config, opts ...Option) *Manager {
	if cfg.DefaultLocation == nil {
		cfg.DefaultLocation = time.UTC
	}
	m := &Manager{
		repo:      repo,
		directory: directory,
		schedules: schedules,
		cfg:       cfg,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type CreateInput struct {
	SalonID        uuid.UUID
	ClientID       uuid.UUID
	TechnicianID   uuid.UUID
	ServiceID      uuid.UUID
	StartTime      time.Time
	Source         domain.BookingSource
	Notes          string
	IdempotencyKey string
}

// Create books a new appointment. The end time is derived from the service
// duration, which is copied onto the appointment together with the price.
func (m *Manager) Create(ctx context.Context, in CreateInput) (out domain.Appointment, err error) {
	defer func() { m.metrics.Booking("create", outcome(err)) }()

	switch {
	case in.SalonID == uuid.Nil:
		return domain.Appointment{}, service.Invalid("salon_id is required")
	case in.ClientID == uuid.Nil:
		return domain.Appointment{}, service.Invalid("client_id is required")
	case in.TechnicianID == uuid.Nil:
		return domain.Appointment{}, service.Invalid("technician_id is required")
	case in.ServiceID == uuid.Nil:
		return domain.Appointment{}, service.Invalid("service_id is required")
	case in.StartTime.IsZero():
		return domain.Appointment{}, service.Invalid("start_time is required")
	}

	source := in.Source
	if source == "" {
		source = domain.BookingSourceOnline
	}
	if !source.Valid() {
		return domain.Appointment{}, service.Invalidf("unknown source %q", in.Source)
	}

	salon, err := m.directory.Salon(ctx, in.SalonID)
	if err != nil {
		return domain.Appointment{}, err
	}
	tech, err := m.bookableTechnician(ctx, salon.ID, in.TechnicianID)
	if err != nil {
		return domain.Appointment{}, err
	}
	svc, err := m.directory.Service(ctx, in.ServiceID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if svc.SalonID != salon.ID {
		return domain.Appointment{}, store.ErrUnauthorized
	}
	if !svc.Active {
		return domain.Appointment{}, service.Invalid("service is not offered")
	}
	if svc.DurationMinutes <= 0 {
		return domain.Appointment{}, service.Invalid("service duration must be positive")
	}
	client, err := m.directory.Client(ctx, in.ClientID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if client.SalonID != salon.ID {
		return domain.Appointment{}, store.ErrUnauthorized
	}

	start := in.StartTime.UTC()
	appt := domain.Appointment{
		SalonID:         salon.ID,
		ClientID:        client.ID,
		TechnicianID:    tech.ID,
		ServiceID:       svc.ID,
		StartTime:       start,
		EndTime:         start.Add(svc.Duration()),
		DurationMinutes: svc.DurationMinutes,
		PriceCents:      svc.PriceCents,
		Status:          domain.AppointmentStatusBooked,
		Source:          source,
		Notes:           strings.TrimSpace(in.Notes),
	}

	if source == domain.BookingSourceOnline {
		if err := m.checkBookable(ctx, salon, tech.ID, appt.Interval()); err != nil {
			return domain.Appointment{}, err
		}
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > maxIdempotencyKeyLen {
			return domain.Appointment{}, service.Invalid("idempotency_key too long")
		}
		appt.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("salonsched:create_appointment:"+salon.ID.String()+":"+key))
	}

	err = service.RetryTransient(ctx, func(ctx context.Context) error {
		return m.repo.InTechnicianTransaction(ctx, []uuid.UUID{tech.ID}, func(ctx context.Context, tx store.BookingTx) error {
			if appt.ID != uuid.Nil {
				existing, err := tx.AppointmentForUpdate(ctx, appt.ID)
				switch {
				case err == nil:
					if !existing.SameBooking(appt) {
						return store.ErrIdempotencyConflict
					}
					out = existing
					return nil
				case !errors.Is(err, store.ErrNotFound):
					return err
				}
			}

			if err := ensureFree(ctx, tx, tech.ID, appt.Interval(), appt.ID); err != nil {
				return err
			}
			created, err := tx.InsertAppointment(ctx, appt)
			if err != nil {
				return err
			}
			if err := tx.AppendEvents(ctx, domain.AppointmentCreated(created, m.now())); err != nil {
				return err
			}
			out = created
			return nil
		})
	})
	if err != nil {
		m.logger.Info("create appointment rejected",
			"salon_id", salon.ID.String(),
			"technician_id", tech.ID.String(),
			"start_time", start.Format(time.RFC3339),
			"err", err,
		)
		return domain.Appointment{}, err
	}
	return out, nil
}

type RescheduleInput struct {
	SalonID       uuid.UUID
	AppointmentID uuid.UUID
	StartTime     time.Time
	// TechnicianID moves the appointment to another technician when set.
	TechnicianID *uuid.UUID
}

// Reschedule moves an appointment to a new start and optionally a new
// technician, keeping the duration captured at booking time. On any failure
// the stored appointment is left as it was.
func (m *Manager) Reschedule(ctx context.Context, in RescheduleInput) (out domain.Appointment, err error) {
	defer func() { m.metrics.Booking("reschedule", outcome(err)) }()

	switch {
	case in.SalonID == uuid.Nil:
		return domain.Appointment{}, service.Invalid("salon_id is required")
	case in.AppointmentID == uuid.Nil:
		return domain.Appointment{}, service.Invalid("appointment_id is required")
	case in.StartTime.IsZero():
		return domain.Appointment{}, service.Invalid("start_time is required")
	}

	current, err := m.Get(ctx, in.SalonID, in.AppointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if current.Status.Terminal() {
		return domain.Appointment{}, fmt.Errorf("%w: cannot reschedule a %s appointment", store.ErrInvalidTransition, current.Status)
	}

	targetTech := current.TechnicianID
	if in.TechnicianID != nil && *in.TechnicianID != uuid.Nil && *in.TechnicianID != current.TechnicianID {
		tech, err := m.bookableTechnician(ctx, in.SalonID, *in.TechnicianID)
		if err != nil {
			return domain.Appointment{}, err
		}
		targetTech = tech.ID
	}

	duration := current.Duration()
	if duration <= 0 {
		svc, err := m.directory.Service(ctx, current.ServiceID)
		if err != nil {
			return domain.Appointment{}, err
		}
		duration = svc.Duration()
	}
	start := in.StartTime.UTC()
	target := domain.Interval{Start: start, End: start.Add(duration)}

	if current.Source == domain.BookingSourceOnline {
		salon, err := m.directory.Salon(ctx, in.SalonID)
		if err != nil {
			return domain.Appointment{}, err
		}
		if err := m.checkBookable(ctx, salon, targetTech, target); err != nil {
			return domain.Appointment{}, err
		}
	}

	locked := []uuid.UUID{current.TechnicianID, targetTech}
	err = service.RetryTransient(ctx, func(ctx context.Context) error {
		return m.repo.InTechnicianTransaction(ctx, locked, func(ctx context.Context, tx store.BookingTx) error {
			a, err := tx.AppointmentForUpdate(ctx, in.AppointmentID)
			if err != nil {
				return err
			}
			if a.TechnicianID != current.TechnicianID {
				return fmt.Errorf("%w: appointment was reassigned concurrently", store.ErrConflict)
			}
			if a.Status.Terminal() {
				return fmt.Errorf("%w: cannot reschedule a %s appointment", store.ErrInvalidTransition, a.Status)
			}
			if a.TechnicianID == targetTech && a.StartTime.Equal(target.Start) && a.EndTime.Equal(target.End) {
				out = a
				return nil
			}

			if err := ensureFree(ctx, tx, targetTech, target, a.ID); err != nil {
				return err
			}

			moved := a
			moved.TechnicianID = targetTech
			moved.StartTime = target.Start
			moved.EndTime = target.End
			moved.DurationMinutes = int(duration / time.Minute)
			updated, err := tx.UpdateAppointment(ctx, moved)
			if err != nil {
				return err
			}
			if err := tx.AppendEvents(ctx, domain.AppointmentRescheduled(updated, a, m.now())); err != nil {
				return err
			}
			out = updated
			return nil
		})
	})
	if err != nil {
		m.logger.Info("reschedule rejected",
			"appointment_id", in.AppointmentID.String(),
			"technician_id", targetTech.String(),
			"start_time", start.Format(time.RFC3339),
			"err", err,
		)
		return domain.Appointment{}, err
	}
	return out, nil
}

// Cancel moves the appointment to CANCELLED. Its interval stops counting as
// busy as soon as the transaction commits.
func (m *Manager) Cancel(ctx context.Context, salonID, appointmentID uuid.UUID, reason string) (domain.Appointment, error) {
	return m.transition(ctx, salonID, appointmentID, domain.AppointmentStatusCancelled, strings.TrimSpace(reason), false)
}

// UpdateStatus drives any transition the state machine allows.
func (m *Manager) UpdateStatus(ctx context.Context, salonID, appointmentID uuid.UUID, target domain.AppointmentStatus) (domain.Appointment, error) {
	return m.transition(ctx, salonID, appointmentID, target, "", false)
}

// Confirm records arrival. Confirming an already CONFIRMED appointment
// returns it unchanged.
func (m *Manager) Confirm(ctx context.Context, salonID, appointmentID uuid.UUID) (domain.Appointment, error) {
	return m.transition(ctx, salonID, appointmentID, domain.AppointmentStatusConfirmed, "", true)
}

func (m *Manager) Get(ctx context.Context, salonID, appointmentID uuid.UUID) (domain.Appointment, error) {
	if salonID == uuid.Nil {
		return domain.Appointment{}, service.Invalid("salon_id is required")
	}
	if appointmentID == uuid.Nil {
		return domain.Appointment{}, service.Invalid("appointment_id is required")
	}
	a, err := m.repo.Appointment(ctx, appointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if a.SalonID != salonID {
		return domain.Appointment{}, store.ErrUnauthorized
	}
	return a, nil
}

// ListDay returns the salon's appointments starting on date in the salon's
// timezone. An empty statuses slice matches every status.
func (m *Manager) ListDay(ctx context.Context, salonID uuid.UUID, date domain.Date, statuses []domain.AppointmentStatus) ([]domain.Appointment, error) {
	if salonID == uuid.Nil {
		return nil, service.Invalid("salon_id is required")
	}
	if date.IsZero() {
		return nil, service.Invalid("date is required")
	}
	salon, err := m.directory.Salon(ctx, salonID)
	if err != nil {
		return nil, err
	}
	loc, err := salon.Location(m.cfg.DefaultLocation)
	if err != nil {
		return nil, service.Invalidf("salon timezone %q is invalid", salon.Timezone)
	}
	day := date.Bounds(loc)
	return m.repo.ListForSalon(ctx, salonID, day.Start, day.End, statuses)
}

func (m *Manager) transition(ctx context.Context, salonID, appointmentID uuid.UUID, target domain.AppointmentStatus, reason string, idempotent bool) (out domain.Appointment, err error) {
	defer func() { m.metrics.Booking("transition", outcome(err)) }()

	if salonID == uuid.Nil {
		return domain.Appointment{}, service.Invalid("salon_id is required")
	}
	if appointmentID == uuid.Nil {
		return domain.Appointment{}, service.Invalid("appointment_id is required")
	}
	if !target.Valid() {
		return domain.Appointment{}, service.Invalidf("unknown status %q", target)
	}

	var from domain.AppointmentStatus
	changed := false
	err = service.RetryTransient(ctx, func(ctx context.Context) error {
		changed = false
		return m.repo.InTransaction(ctx, func(ctx context.Context, tx store.BookingTx) error {
			a, err := tx.AppointmentForUpdate(ctx, appointmentID)
			if err != nil {
				return err
			}
			if a.SalonID != salonID {
				return store.ErrUnauthorized
			}
			if idempotent && a.Status == target {
				out = a
				return nil
			}
			if err := domain.ValidateTransition(a.Status, target); err != nil {
				return err
			}

			now := m.now().UTC()
			from = a.Status
			next := a
			next.Status = target
			switch target {
			case domain.AppointmentStatusCancelled:
				next.CancelledAt = &now
				next.CancelReason = reason
			case domain.AppointmentStatusConfirmed:
				next.ConfirmedAt = &now
			}

			updated, err := tx.UpdateAppointment(ctx, next)
			if err != nil {
				return err
			}
			if err := tx.AppendEvents(ctx, domain.AppointmentStatusChanged(updated, from, reason, now)); err != nil {
				return err
			}
			out = updated
			changed = true
			return nil
		})
	})
	if err != nil {
		m.logger.Info("status transition rejected",
			"appointment_id", appointmentID.String(),
			"target", string(target),
			"err", err,
		)
		return domain.Appointment{}, err
	}
	if changed {
		m.metrics.Transition(string(from), string(target))
	}
	return out, nil
}

func (m *Manager) bookableTechnician(ctx context.Context, salonID, technicianID uuid.UUID) (domain.Technician, error) {
	tech, err := m.directory.Technician(ctx, technicianID)
	if err != nil {
		return domain.Technician{}, err
	}
	if tech.SalonID != salonID {
		return domain.Technician{}, store.ErrUnauthorized
	}
	if !tech.Active {
		return domain.Technician{}, service.Invalid("technician is not taking bookings")
	}
	return tech, nil
}

// checkBookable applies the rules self-service bookings must follow: the
// whole interval inside the technician's working window and no earlier than
// the salon's lead time.
func (m *Manager) checkBookable(ctx context.Context, salon domain.Salon, technicianID uuid.UUID, iv domain.Interval) error {
	loc, err := salon.Location(m.cfg.DefaultLocation)
	if err != nil {
		return service.Invalidf("salon timezone %q is invalid", salon.Timezone)
	}
	if iv.Start.Before(m.now().Add(salon.MinLeadTime(m.cfg.DefaultMinLeadTime))) {
		return service.Invalid("start_time is earlier than the salon allows online bookings")
	}

	entries, err := m.schedules.WeeklyTemplate(ctx, technicianID)
	if err != nil {
		return err
	}
	schedule, err := domain.NewWeeklySchedule(technicianID, entries)
	if err != nil {
		return err
	}
	window, ok := schedule.WorkingWindow(domain.DateOf(iv.Start.In(loc)), loc)
	if !ok || !window.Contains(iv) {
		return service.Invalid("requested time is outside the technician's working hours")
	}
	return nil
}

// ensureFree fails with a *store.ConflictError when any busy appointment of
// the technician other than self overlaps iv.
func ensureFree(ctx context.Context, tx store.BookingTx, technicianID uuid.UUID, iv domain.Interval, self uuid.UUID) error {
	busy, err := tx.ListBusy(ctx, technicianID, iv.Start, iv.End)
	if err != nil {
		return err
	}
	for _, b := range busy {
		if b.ID == self {
			continue
		}
		if b.Interval().Overlaps(iv) {
			return store.NewConflict(b)
		}
	}
	return nil
}

func outcome(err error) string {
	var vErr *service.ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, store.ErrIdempotencyConflict):
		return "idempotency_conflict"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, store.ErrUnauthorized):
		return "unauthorized"
	case errors.As(err, &vErr):
		return "invalid"
	default:
		return "error"
	}
}
