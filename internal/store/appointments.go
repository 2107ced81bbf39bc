package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"salonsched/backend/internal/domain"
)

// Directory is the read-only view of salons, staff, services and clients.
// Every miss is ErrNotFound.
type Directory interface {
	Salon(ctx context.Context, salonID uuid.UUID) (domain.Salon, error)
	Technician(ctx context.Context, technicianID uuid.UUID) (domain.Technician, error)
	ActiveTechnicians(ctx context.Context, salonID uuid.UUID) ([]domain.Technician, error)
	Service(ctx context.Context, serviceID uuid.UUID) (domain.Service, error)
	Client(ctx context.Context, clientID uuid.UUID) (domain.Client, error)
	ClientByPhone(ctx context.Context, salonID uuid.UUID, phone string) (domain.Client, error)
}

type ScheduleStore interface {
	// WeeklyTemplate returns up to seven entries. An unknown technician is ErrNotFound.
	WeeklyTemplate(ctx context.Context, technicianID uuid.UUID) ([]domain.ScheduleTemplateEntry, error)
}

type AppointmentReader interface {
	Appointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	// ListBusy returns BOOKED/CONFIRMED appointments of the technician that
	// overlap [start, end), ordered by start time.
	ListBusy(ctx context.Context, technicianID uuid.UUID, start, end time.Time) ([]domain.Appointment, error)
	// ListForClient returns the client's appointments starting in [start, end).
	// An empty statuses slice matches every status.
	ListForClient(ctx context.Context, salonID, clientID uuid.UUID, start, end time.Time, statuses []domain.AppointmentStatus) ([]domain.Appointment, error)
	// ListForSalon returns the salon's appointments starting in [start, end),
	// ordered by start time. An empty statuses slice matches every status.
	ListForSalon(ctx context.Context, salonID uuid.UUID, start, end time.Time, statuses []domain.AppointmentStatus) ([]domain.Appointment, error)
}

// AppointmentRepository adds the atomic write path. InTechnicianTransaction
// serializes callers per technician for the lifetime of fn; fn's writes are
// applied only when it returns nil.
type AppointmentRepository interface {
	AppointmentReader
	InTechnicianTransaction(ctx context.Context, technicianIDs []uuid.UUID, fn func(ctx context.Context, tx BookingTx) error) error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx BookingTx) error) error
}

type BookingTx interface {
	AppointmentForUpdate(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	ListBusy(ctx context.Context, technicianID uuid.UUID, start, end time.Time) ([]domain.Appointment, error)
	// InsertAppointment returns the stored row. When the id already exists the
	// stored row is returned if it describes the same booking, else ErrIdempotencyConflict.
	InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	AppendEvents(ctx context.Context, events ...domain.Event) error
}

type WaitlistRepository interface {
	WaitlistEntry(ctx context.Context, entryID uuid.UUID) (domain.WaitlistEntry, error)
	// ListWaitlist returns the salon's entries in the given statuses in queue order.
	ListWaitlist(ctx context.Context, salonID uuid.UUID, statuses []domain.WaitlistStatus) ([]domain.WaitlistEntry, error)
	InWaitlistTransaction(ctx context.Context, fn func(ctx context.Context, tx WaitlistTx) error) error
}

type WaitlistTx interface {
	WaitlistEntryForUpdate(ctx context.Context, entryID uuid.UUID) (domain.WaitlistEntry, error)
	InsertWaitlistEntry(ctx context.Context, e domain.WaitlistEntry) (domain.WaitlistEntry, error)
	UpdateWaitlistEntry(ctx context.Context, e domain.WaitlistEntry) (domain.WaitlistEntry, error)
	AppendEvents(ctx context.Context, events ...domain.Event) error
}

// OutboxRecord is a pending event plus the trace context it was written under.
type OutboxRecord struct {
	Event       domain.Event
	Attempts    int
	TraceParent string
	TraceState  string
}

// Outbox is the relay's view of unpublished events. fn runs with the batch
// claimed; records it reports as published are marked sent. When fn fails,
// the first unreported record is the one that failed and has its attempt
// counter bumped; records after it were never tried and are released as is.
type Outbox interface {
	ClaimBatch(ctx context.Context, limit int, fn func(ctx context.Context, batch []OutboxRecord) (published []uuid.UUID, err error)) (int, error)
}
