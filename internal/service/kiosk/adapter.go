// Package kiosk resolves a phone number typed at the front-desk kiosk to the
// client's appointments today, or routes the visitor to the waitlist.
package kiosk

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"salonsched/backend/internal/domain"
	"salonsched/backend/internal/service"
	"salonsched/backend/internal/service/waitlist"
	"salonsched/backend/internal/store"
)

const minPhoneDigits = 7

type Action string

const (
	ActionRegisterWalkIn    Action = "REGISTER_WALK_IN"
	ActionCheckIn           Action = "CHECK_IN"
	ActionChooseAppointment Action = "CHOOSE_APPOINTMENT"
)

type LookupResult struct {
	// Client is nil when the phone number is unknown to the salon.
	Client       *domain.Client
	Appointments []domain.Appointment
	Action       Action
}

type Confirmer interface {
	Confirm(ctx context.Context, salonID, appointmentID uuid.UUID) (domain.Appointment, error)
}

type WalkIns interface {
	Add(ctx context.Context, in waitlist.AddInput) (domain.WaitlistEntry, error)
}

type Adapter struct {
	directory    store.Directory
	appointments store.AppointmentReader
	confirmer    Confirmer
	walkIns      WalkIns
	defaultLoc   *time.Location
	logger       *slog.Logger
	now          func() time.Time
}

type Option func(*Adapter)

func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

func WithDefaultLocation(loc *time.Location) Option {
	return func(a *Adapter) { a.defaultLoc = loc }
}

func NewAdapter(directory store.Directory, appointments store.AppointmentReader, confirmer Confirmer, walkIns WalkIns, opts ...Option) *Adapter {
	a := &Adapter{
		directory:    directory,
		appointments: appointments,
		confirmer:    confirmer,
		walkIns:      walkIns,
		defaultLoc:   time.UTC,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Lookup finds the client by phone and their BOOKED or CONFIRMED appointments
// starting within the salon's local today.
func (a *Adapter) Lookup(ctx context.Context, salonID uuid.UUID, phone string) (LookupResult, error) {
	if salonID == uuid.Nil {
		return LookupResult{}, service.Invalid("salon_id is required")
	}
	digits := domain.NormalizePhone(phone)
	if len(digits) < minPhoneDigits {
		return LookupResult{}, service.Invalid("phone number is too short")
	}

	salon, err := a.directory.Salon(ctx, salonID)
	if err != nil {
		return LookupResult{}, err
	}
	loc, err := salon.Location(a.defaultLoc)
	if err != nil {
		return LookupResult{}, service.Invalidf("salon timezone %q is invalid", salon.Timezone)
	}

	client, err := a.directory.ClientByPhone(ctx, salon.ID, digits)
	if errors.Is(err, store.ErrNotFound) {
		return LookupResult{Action: ActionRegisterWalkIn}, nil
	}
	if err != nil {
		return LookupResult{}, err
	}

	today := domain.DateOf(a.now().In(loc)).Bounds(loc)
	appts, err := a.appointments.ListForClient(ctx, salon.ID, client.ID, today.Start, today.End, domain.BusyStatuses())
	if err != nil {
		return LookupResult{}, err
	}

	res := LookupResult{Client: &client, Appointments: appts}
	switch len(appts) {
	case 0:
		res.Action = ActionRegisterWalkIn
	case 1:
		res.Action = ActionCheckIn
	default:
		res.Action = ActionChooseAppointment
	}
	a.logger.Debug("kiosk lookup", "salon_id", salon.ID.String(), "client_id", client.ID.String(), "matches", len(appts))
	return res, nil
}

// CheckIn records the client's arrival. Repeating it is a no-op.
func (a *Adapter) CheckIn(ctx context.Context, salonID, appointmentID uuid.UUID) (domain.Appointment, error) {
	return a.confirmer.Confirm(ctx, salonID, appointmentID)
}

// RegisterWalkIn queues a visitor with no appointment today. A phone number
// that matches a known client links the entry to that client.
func (a *Adapter) RegisterWalkIn(ctx context.Context, in waitlist.AddInput) (domain.WaitlistEntry, error) {
	if in.Source == "" {
		in.Source = domain.BookingSourceKiosk
	}
	if in.ClientID == nil && in.Phone != "" && in.SalonID != uuid.Nil {
		client, err := a.directory.ClientByPhone(ctx, in.SalonID, in.Phone)
		switch {
		case err == nil:
			id := client.ID
			in.ClientID = &id
		case !errors.Is(err, store.ErrNotFound):
			return domain.WaitlistEntry{}, err
		}
	}
	return a.walkIns.Add(ctx, in)
}
