// Package availability derives bookable slots from technicians' weekly
// templates minus their busy appointments.
package availability

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"salonsched/backend/internal/domain"
	"salonsched/backend/internal/metrics"
	"salonsched/backend/internal/service"
	"salonsched/backend/internal/store"
	"salonsched/backend/internal/telemetry"
)

type Config struct {
	DefaultLocation    *time.Location
	DefaultGranularity time.Duration
	DefaultMinLeadTime time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultLocation == nil {
		c.DefaultLocation = time.UTC
	}
	if c.DefaultGranularity <= 0 {
		c.DefaultGranularity = 30 * time.Minute
	}
	if c.DefaultMinLeadTime < 0 {
		c.DefaultMinLeadTime = 0
	}
	return c
}

type Query struct {
	SalonID      uuid.UUID
	ServiceID    uuid.UUID
	Date         domain.Date
	TechnicianID *uuid.UUID
}

// Slot is a bookable [Start, End) for one technician, expressed in the salon's timezone.
type Slot struct {
	Start          time.Time
	End            time.Time
	TechnicianID   uuid.UUID
	TechnicianName string
}

type Calculator struct {
	directory    store.Directory
	schedules    store.ScheduleStore
	appointments store.AppointmentReader
	cfg          Config
	logger       *slog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

type Option func(*Calculator)

func WithClock(now func() time.Time) Option {
	return func(c *Calculator) { c.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Calculator) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Calculator) { c.metrics = m }
}

func NewCalculator(directory store.Directory, schedules store.ScheduleStore, appointments store.AppointmentReader, cfg Config, opts ...Option) *Calculator {
	c := &Calculator{
		directory:    directory,
		schedules:    schedules,
		appointments: appointments,
		cfg:          cfg.withDefaults(),
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ComputeSlots returns every slot on q.Date where the service fits inside a
// technician's working window without touching a busy appointment. Results
// are ordered by start, then technician name, then technician id.
func (c *Calculator) ComputeSlots(ctx context.Context, q Query) (slots []Slot, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "availability.ComputeSlots")
	started := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("slots", len(slots)))
		span.End()
		c.metrics.SlotQuery(outcome, time.Since(started), len(slots))
	}()

	if q.SalonID == uuid.Nil {
		return nil, service.Invalid("salon_id is required")
	}
	if q.ServiceID == uuid.Nil {
		return nil, service.Invalid("service_id is required")
	}
	if q.Date.IsZero() {
		return nil, service.Invalid("date is required")
	}

	salon, err := c.directory.Salon(ctx, q.SalonID)
	if err != nil {
		return nil, err
	}
	loc, err := salon.Location(c.cfg.DefaultLocation)
	if err != nil {
		return nil, service.Invalidf("salon timezone %q is invalid", salon.Timezone)
	}

	svc, err := c.directory.Service(ctx, q.ServiceID)
	if err != nil {
		return nil, err
	}
	if svc.SalonID != salon.ID {
		return nil, store.ErrUnauthorized
	}
	if !svc.Active {
		return nil, service.Invalid("service is not offered")
	}
	duration := svc.Duration()
	if duration <= 0 {
		return nil, service.Invalid("service duration must be positive")
	}

	technicians, err := c.candidates(ctx, salon.ID, q.TechnicianID)
	if err != nil {
		return nil, err
	}

	step := salon.SlotGranularity(c.cfg.DefaultGranularity)
	cutoff := c.now().Add(salon.MinLeadTime(c.cfg.DefaultMinLeadTime))

	for _, tech := range technicians {
		techSlots, err := c.technicianSlots(ctx, tech, q.Date, loc, duration, step, cutoff)
		if err != nil {
			return nil, err
		}
		slots = append(slots, techSlots...)
	}

	sort.SliceStable(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if a.TechnicianName != b.TechnicianName {
			return a.TechnicianName < b.TechnicianName
		}
		return a.TechnicianID.String() < b.TechnicianID.String()
	})

	c.logger.Debug("slots computed",
		"salon_id", salon.ID.String(),
		"service_id", svc.ID.String(),
		"date", q.Date.String(),
		"technicians", len(technicians),
		"slots", len(slots),
	)
	return slots, nil
}

func (c *Calculator) candidates(ctx context.Context, salonID uuid.UUID, technicianID *uuid.UUID) ([]domain.Technician, error) {
	if technicianID == nil || *technicianID == uuid.Nil {
		return c.directory.ActiveTechnicians(ctx, salonID)
	}
	tech, err := c.directory.Technician(ctx, *technicianID)
	if err != nil {
		return nil, err
	}
	if tech.SalonID != salonID {
		return nil, store.ErrUnauthorized
	}
	if !tech.Active {
		return nil, nil
	}
	return []domain.Technician{tech}, nil
}

func (c *Calculator) technicianSlots(ctx context.Context, tech domain.Technician, date domain.Date, loc *time.Location, duration, step time.Duration, cutoff time.Time) ([]Slot, error) {
	entries, err := c.schedules.WeeklyTemplate(ctx, tech.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	schedule, err := domain.NewWeeklySchedule(tech.ID, entries)
	if err != nil {
		c.logger.Warn("skipping technician with invalid schedule", "technician_id", tech.ID.String(), "err", err)
		return nil, nil
	}
	window, ok := schedule.WorkingWindow(date, loc)
	if !ok || window.Duration() < duration {
		return nil, nil
	}

	appts, err := c.appointments.ListBusy(ctx, tech.ID, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	busy := make([]domain.Interval, 0, len(appts))
	for _, a := range appts {
		busy = append(busy, a.Interval())
	}

	var out []Slot
	for _, free := range domain.Subtract(window, busy) {
		for _, start := range enumerate(free, duration, step, cutoff) {
			out = append(out, Slot{
				Start:          start.In(loc),
				End:            start.Add(duration).In(loc),
				TechnicianID:   tech.ID,
				TechnicianName: tech.Name,
			})
		}
	}
	return out, nil
}

// enumerate steps through free from its start and keeps every start whose
// booking fits before free.End and is not earlier than cutoff.
func enumerate(free domain.Interval, duration, step time.Duration, cutoff time.Time) []time.Time {
	if duration <= 0 || step <= 0 || free.Duration() < duration {
		return nil
	}
	var starts []time.Time
	for t := free.Start; !t.Add(duration).After(free.End); t = t.Add(step) {
		if t.Before(cutoff) {
			continue
		}
		starts = append(starts, t)
	}
	return starts
}
