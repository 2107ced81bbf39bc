package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"salonsched/backend/internal/availability"
	"salonsched/backend/internal/domain"
	"salonsched/backend/internal/service"
	"salonsched/backend/internal/service/booking"
	"salonsched/backend/internal/service/kiosk"
	"salonsched/backend/internal/service/waitlist"
	"salonsched/backend/internal/store"
)

type Server struct {
	slots    slotsService
	bookings bookingService
	queue    waitlistService
	kiosk    kioskService
	log      *slog.Logger
}

type slotsService interface {
	ComputeSlots(ctx context.Context, q availability.Query) ([]availability.Slot, error)
}

type bookingService interface {
	Create(ctx context.Context, in booking.CreateInput) (domain.Appointment, error)
	Reschedule(ctx context.Context, in booking.RescheduleInput) (domain.Appointment, error)
	Cancel(ctx context.Context, salonID, appointmentID uuid.UUID, reason string) (domain.Appointment, error)
	UpdateStatus(ctx context.Context, salonID, appointmentID uuid.UUID, target domain.AppointmentStatus) (domain.Appointment, error)
	Get(ctx context.Context, salonID, appointmentID uuid.UUID) (domain.Appointment, error)
	ListDay(ctx context.Context, salonID uuid.UUID, date domain.Date, statuses []domain.AppointmentStatus) ([]domain.Appointment, error)
}

type waitlistService interface {
	Add(ctx context.Context, in waitlist.AddInput) (domain.WaitlistEntry, error)
	List(ctx context.Context, salonID uuid.UUID) ([]domain.WaitlistEntry, error)
	Transition(ctx context.Context, salonID, entryID uuid.UUID, target domain.WaitlistStatus) (domain.WaitlistEntry, error)
}

type kioskService interface {
	Lookup(ctx context.Context, salonID uuid.UUID, phone string) (kiosk.LookupResult, error)
	CheckIn(ctx context.Context, salonID, appointmentID uuid.UUID) (domain.Appointment, error)
	RegisterWalkIn(ctx context.Context, in waitlist.AddInput) (domain.WaitlistEntry, error)
}

func NewServer(slots slotsService, bookings bookingService, queue waitlistService, kiosk kioskService, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		slots:    slots,
		bookings: bookings,
		queue:    queue,
		kiosk:    kiosk,
		log:      log.With(slog.String("component", "grpc.scheduler")),
	}
}

var _ SchedulerServer = (*Server)(nil)

func (s *Server) AvailableSlots(ctx context.Context, req *AvailableSlotsRequest) (*AvailableSlotsResponse, error) {
	log := s.log.With(slog.String("rpc", "AvailableSlots"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	log = log.With(slog.String("salon_id", req.SalonID))

	salonID, err := parseID("salon_id", req.SalonID)
	if err != nil {
		return nil, s.fail(log, "slots query failed", err)
	}
	serviceID, err := parseID("service_id", req.ServiceID)
	if err != nil {
		return nil, s.fail(log, "slots query failed", err)
	}
	date, err := domain.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		return nil, s.fail(log, "slots query failed", service.Invalid("date must be YYYY-MM-DD"))
	}
	technicianID, err := parseOptionalID("technician_id", req.TechnicianID)
	if err != nil {
		return nil, s.fail(log, "slots query failed", err)
	}

	slots, err := s.slots.ComputeSlots(ctx, availability.Query{
		SalonID:      salonID,
		ServiceID:    serviceID,
		Date:         date,
		TechnicianID: technicianID,
	})
	if err != nil {
		return nil, s.fail(log, "slots query failed", err)
	}

	out := make([]Slot, 0, len(slots))
	for _, sl := range slots {
		out = append(out, toSlot(sl))
	}
	log.Debug("slots listed", slog.String("date", date.String()), slog.Int("count", len(out)))
	return &AvailableSlotsResponse{Slots: out}, nil
}

func (s *Server) CreateAppointment(ctx context.Context, req *CreateAppointmentRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "CreateAppointment"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if req.StartTime == nil {
		log.Warn("invalid request", slog.String("reason", "missing_start_time"), slog.String("salon_id", req.SalonID))
		return nil, status.Error(codes.InvalidArgument, "start_time is required")
	}
	log = log.With(slog.String("salon_id", req.SalonID))

	var in booking.CreateInput
	var err error
	if in.SalonID, err = parseID("salon_id", req.SalonID); err != nil {
		return nil, s.fail(log, "appointment create failed", err)
	}
	if in.ClientID, err = parseID("client_id", req.ClientID); err != nil {
		return nil, s.fail(log, "appointment create failed", err)
	}
	if in.TechnicianID, err = parseID("technician_id", req.TechnicianID); err != nil {
		return nil, s.fail(log, "appointment create failed", err)
	}
	if in.ServiceID, err = parseID("service_id", req.ServiceID); err != nil {
		return nil, s.fail(log, "appointment create failed", err)
	}
	if in.Source, err = parseSource(req.Source, domain.BookingSourceOnline); err != nil {
		return nil, s.fail(log, "appointment create failed", err)
	}
	in.StartTime = *req.StartTime
	in.Notes = req.Notes
	in.IdempotencyKey = idempotencyKey(ctx)

	appt, err := s.bookings.Create(ctx, in)
	if err != nil {
		return nil, s.fail(log, "appointment create failed", err,
			slog.String("technician_id", req.TechnicianID),
			slog.Time("start_time", in.StartTime),
		)
	}

	log.Info(
		"appointment created",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("technician_id", appt.TechnicianID.String()),
		slog.Time("start_time", appt.StartTime),
		slog.Time("end_time", appt.EndTime),
		slog.String("source", string(appt.Source)),
	)
	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

// UpdateAppointment reschedules when start_time or technician_id is set,
// otherwise applies the status change. CANCELLED carries the optional reason.
func (s *Server) UpdateAppointment(ctx context.Context, req *UpdateAppointmentRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "UpdateAppointment"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	log = log.With(slog.String("salon_id", req.SalonID), slog.String("appointment_id", req.AppointmentID))

	salonID, err := parseID("salon_id", req.SalonID)
	if err != nil {
		return nil, s.fail(log, "appointment update failed", err)
	}
	apptID, err := parseID("appointment_id", req.AppointmentID)
	if err != nil {
		return nil, s.fail(log, "appointment update failed", err)
	}
	technicianID, err := parseOptionalID("technician_id", req.TechnicianID)
	if err != nil {
		return nil, s.fail(log, "appointment update failed", err)
	}

	move := req.StartTime != nil || technicianID != nil
	statusSet := strings.TrimSpace(req.Status) != ""
	switch {
	case move && statusSet:
		return nil, s.fail(log, "appointment update failed", service.Invalid("status cannot be combined with start_time or technician_id"))
	case !move && !statusSet:
		return nil, s.fail(log, "appointment update failed", service.Invalid("one of status, start_time or technician_id is required"))
	}

	var appt domain.Appointment
	if move {
		in := booking.RescheduleInput{SalonID: salonID, AppointmentID: apptID, TechnicianID: technicianID}
		if req.StartTime != nil {
			in.StartTime = *req.StartTime
		} else {
			current, err := s.bookings.Get(ctx, salonID, apptID)
			if err != nil {
				return nil, s.fail(log, "appointment update failed", err)
			}
			in.StartTime = current.StartTime
		}
		appt, err = s.bookings.Reschedule(ctx, in)
		if err != nil {
			return nil, s.fail(log, "appointment reschedule failed", err, slog.Time("start_time", in.StartTime))
		}
		log.Info(
			"appointment rescheduled",
			slog.String("technician_id", appt.TechnicianID.String()),
			slog.Time("start_time", appt.StartTime),
			slog.Time("end_time", appt.EndTime),
		)
		return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
	}

	target, err := domain.ParseAppointmentStatus(req.Status)
	if err != nil {
		return nil, s.fail(log, "appointment update failed", service.Invalid(err.Error()))
	}
	if target == domain.AppointmentStatusCancelled {
		appt, err = s.bookings.Cancel(ctx, salonID, apptID, strings.TrimSpace(req.Reason))
	} else {
		appt, err = s.bookings.UpdateStatus(ctx, salonID, apptID, target)
	}
	if err != nil {
		return nil, s.fail(log, "appointment status update failed", err, slog.String("target", string(target)))
	}

	log.Info("appointment status updated", slog.String("status", string(appt.Status)))
	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

func (s *Server) GetAppointment(ctx context.Context, req *GetAppointmentRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "GetAppointment"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	log = log.With(slog.String("salon_id", req.SalonID), slog.String("appointment_id", req.AppointmentID))

	salonID, err := parseID("salon_id", req.SalonID)
	if err != nil {
		return nil, s.fail(log, "appointment get failed", err)
	}
	apptID, err := parseID("appointment_id", req.AppointmentID)
	if err != nil {
		return nil, s.fail(log, "appointment get failed", err)
	}

	appt, err := s.bookings.Get(ctx, salonID, apptID)
	if err != nil {
		return nil, s.fail(log, "appointment get failed", err)
	}
	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

func (s *Server) ListAppointments(ctx context.Context, req *ListAppointmentsRequest) (*ListAppointmentsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListAppointments"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	log = log.With(slog.String("salon_id", req.SalonID))

	salonID, err := parseID("salon_id", req.SalonID)
	if err != nil {
		return nil, s.fail(log, "appointment list failed", err)
	}
	date, err := domain.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		return nil, s.fail(log, "appointment list failed", service.Invalid("date must be YYYY-MM-DD"))
	}
	statuses := make([]domain.AppointmentStatus, 0, len(req.Statuses))
	for _, raw := range req.Statuses {
		st, err := domain.ParseAppointmentStatus(raw)
		if err != nil {
			return nil, s.fail(log, "appointment list failed", service.Invalid(err.Error()))
		}
		statuses = append(statuses, st)
	}

	appts, err := s.bookings.ListDay(ctx, salonID, date, statuses)
	if err != nil {
		return nil, s.fail(log, "appointment list failed", err)
	}

	out := make([]*Appointment, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointment(a))
	}
	log.Debug("appointments listed", slog.String("date", date.String()), slog.Int("count", len(out)))
	return &ListAppointmentsResponse{Appointments: out}, nil
}

func (s *Server) AddWaitlistEntry(ctx context.Context, req *AddWaitlistEntryRequest) (*WaitlistEntryResponse, error) {
	log := s.log.With(slog.String("rpc", "AddWaitlistEntry"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	log = log.With(slog.String("salon_id", req.SalonID))

	in, err := addInput(req, domain.BookingSourceWalkIn)
	if err != nil {
		return nil, s.fail(log, "waitlist add failed", err)
	}
	entry, err := s.queue.Add(ctx, in)
	if err != nil {
		return nil, s.fail(log, "waitlist add failed", err)
	}

	log.Info(
		"waitlist entry added",
		slog.String("entry_id", entry.ID.String()),
		slog.Int("position", entry.Position),
		slog.Int("estimated_wait_minutes", entry.EstimatedWaitMinutes),
	)
	return &WaitlistEntryResponse{Entry: toWaitlistEntry(entry)}, nil
}

func (s *Server) UpdateWaitlistEntry(ctx context.Context, req *UpdateWaitlistEntryRequest) (*WaitlistEntryResponse, error) {
	log := s.log.With(slog.String("rpc", "UpdateWaitlistEntry"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	log = log.With(slog.String("salon_id", req.SalonID), slog.String("entry_id", req.EntryID))

	salonID, err := parseID("salon_id", req.SalonID)
	if err != nil {
		return nil, s.fail(log, "waitlist update failed", err)
	}
	entryID, err := parseID("entry_id", req.EntryID)
	if err != nil {
		return nil, s.fail(log, "waitlist update failed", err)
	}
	target, err := domain.ParseWaitlistStatus(req.Status)
	if err != nil {
		return nil, s.fail(log, "waitlist update failed", service.Invalid(err.Error()))
	}

	entry, err := s.queue.Transition(ctx, salonID, entryID, target)
	if err != nil {
		return nil, s.fail(log, "waitlist update failed", err, slog.String("target", string(target)))
	}

	log.Info("waitlist entry updated", slog.String("status", string(entry.Status)))
	return &WaitlistEntryResponse{Entry: toWaitlistEntry(entry)}, nil
}

func (s *Server) ListWaitlist(ctx context.Context, req *ListWaitlistRequest) (*ListWaitlistResponse, error) {
	log := s.log.With(slog.String("rpc", "ListWaitlist"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	log = log.With(slog.String("salon_id", req.SalonID))

	salonID, err := parseID("salon_id", req.SalonID)
	if err != nil {
		return nil, s.fail(log, "waitlist list failed", err)
	}
	entries, err := s.queue.List(ctx, salonID)
	if err != nil {
		return nil, s.fail(log, "waitlist list failed", err)
	}

	out := make([]*WaitlistEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, toWaitlistEntry(e))
	}
	log.Debug("waitlist listed", slog.Int("count", len(out)))
	return &ListWaitlistResponse{Entries: out}, nil
}

func (s *Server) KioskLookup(ctx context.Context, req *KioskLookupRequest) (*KioskLookupResponse, error) {
	log := s.log.With(slog.String("rpc", "KioskLookup"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	log = log.With(slog.String("salon_id", req.SalonID))

	salonID, err := parseID("salon_id", req.SalonID)
	if err != nil {
		return nil, s.fail(log, "kiosk lookup failed", err)
	}
	res, err := s.kiosk.Lookup(ctx, salonID, req.Phone)
	if err != nil {
		return nil, s.fail(log, "kiosk lookup failed", err)
	}

	log.Debug("kiosk lookup", slog.String("action", string(res.Action)), slog.Int("appointments", len(res.Appointments)))
	return toLookupResponse(res), nil
}

func (s *Server) KioskCheckIn(ctx context.Context, req *KioskCheckInRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "KioskCheckIn"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	log = log.With(slog.String("salon_id", req.SalonID), slog.String("appointment_id", req.AppointmentID))

	salonID, err := parseID("salon_id", req.SalonID)
	if err != nil {
		return nil, s.fail(log, "kiosk check-in failed", err)
	}
	apptID, err := parseID("appointment_id", req.AppointmentID)
	if err != nil {
		return nil, s.fail(log, "kiosk check-in failed", err)
	}

	appt, err := s.kiosk.CheckIn(ctx, salonID, apptID)
	if err != nil {
		return nil, s.fail(log, "kiosk check-in failed", err)
	}

	log.Info("client checked in", slog.String("status", string(appt.Status)))
	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

func (s *Server) RegisterWalkIn(ctx context.Context, req *AddWaitlistEntryRequest) (*WaitlistEntryResponse, error) {
	log := s.log.With(slog.String("rpc", "RegisterWalkIn"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	log = log.With(slog.String("salon_id", req.SalonID))

	in, err := addInput(req, domain.BookingSourceKiosk)
	if err != nil {
		return nil, s.fail(log, "walk-in registration failed", err)
	}
	entry, err := s.kiosk.RegisterWalkIn(ctx, in)
	if err != nil {
		return nil, s.fail(log, "walk-in registration failed", err)
	}

	log.Info(
		"walk-in registered",
		slog.String("entry_id", entry.ID.String()),
		slog.Int("position", entry.Position),
		slog.Int("estimated_wait_minutes", entry.EstimatedWaitMinutes),
	)
	return &WaitlistEntryResponse{Entry: toWaitlistEntry(entry)}, nil
}

// fail logs err at a level matching its kind and converts it to a status.
// Internal failures never leak their message to the caller.
func (s *Server) fail(log *slog.Logger, msg string, err error, attrs ...any) error {
	attrs = append(attrs, slog.Any("err", err))

	var (
		vErr *service.ValidationError
		cErr *store.ConflictError
	)
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", attrs...)
		return status.Error(codes.InvalidArgument, vErr.Error())
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info(msg, attrs...)
		return status.Error(codes.Aborted, "This request key was already used for a different request. Try again with a new key.")
	case errors.As(err, &cErr):
		log.Info(msg, attrs...)
		return status.Error(codes.FailedPrecondition, "That time is no longer available: "+cErr.Error())
	case errors.Is(err, store.ErrConflict):
		log.Info(msg, attrs...)
		if err == store.ErrConflict {
			return status.Error(codes.FailedPrecondition, "That time is no longer available. Pick a different slot.")
		}
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, store.ErrInvalidTransition):
		log.Info(msg, attrs...)
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, store.ErrNotFound):
		log.Info(msg, attrs...)
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, store.ErrUnauthorized):
		log.Warn(msg, attrs...)
		return status.Error(codes.PermissionDenied, "permission denied")
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn(msg, attrs...)
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	case errors.Is(err, context.Canceled):
		log.Info(msg, attrs...)
		return status.Error(codes.Canceled, "request cancelled")
	}
	log.Error(msg, attrs...)
	return status.Error(codes.Internal, "internal error")
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, service.Invalidf("%s must be a UUID", field)
	}
	return id, nil
}

func parseOptionalID(field, raw string) (*uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	id, err := parseID(field, raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseSource(raw string, fallback domain.BookingSource) (domain.BookingSource, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	src, err := domain.ParseBookingSource(raw)
	if err != nil {
		return "", service.Invalid(err.Error())
	}
	return src, nil
}

func addInput(req *AddWaitlistEntryRequest, fallback domain.BookingSource) (waitlist.AddInput, error) {
	in := waitlist.AddInput{
		ClientName: strings.TrimSpace(req.ClientName),
		Phone:      strings.TrimSpace(req.Phone),
		PartySize:  req.PartySize,
	}
	var err error
	if in.SalonID, err = parseID("salon_id", req.SalonID); err != nil {
		return in, err
	}
	if in.ClientID, err = parseOptionalID("client_id", req.ClientID); err != nil {
		return in, err
	}
	if in.ServiceID, err = parseOptionalID("service_id", req.ServiceID); err != nil {
		return in, err
	}
	if in.PreferredTechnicianID, err = parseOptionalID("preferred_technician_id", req.PreferredTechnicianID); err != nil {
		return in, err
	}
	if in.Source, err = parseSource(req.Source, fallback); err != nil {
		return in, err
	}
	return in, nil
}
