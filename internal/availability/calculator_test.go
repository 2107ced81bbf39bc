package availability

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonsched/backend/internal/domain"
	"salonsched/backend/internal/service"
	"salonsched/backend/internal/store"
	"salonsched/backend/internal/store/memory"
)

var (
	salonID   = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	anaID     = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	beaID     = uuid.MustParse("33333333-3333-3333-3333-333333333333")
	trimID    = uuid.MustParse("44444444-4444-4444-4444-444444444444")
	colourID  = uuid.MustParse("55555555-5555-5555-5555-555555555555")
	marathon  = uuid.MustParse("66666666-6666-6666-6666-666666666666")
	monday    = domain.Date{Year: 2026, Month: time.March, Day: 2}
	sundayDay = domain.Date{Year: 2026, Month: time.March, Day: 1}
)

type fixture struct {
	store *memory.Store
	calc  *Calculator
}

func newFixture(t *testing.T, tz string, now time.Time) *fixture {
	t.Helper()
	s := memory.New()
	s.PutSalon(domain.Salon{ID: salonID, Name: "Downtown", Timezone: tz, SlotGranularityMinutes: 30})
	s.PutService(domain.Service{ID: trimID, SalonID: salonID, Name: "Trim", DurationMinutes: 30, Active: true})
	s.PutService(domain.Service{ID: colourID, SalonID: salonID, Name: "Colour", DurationMinutes: 45, Active: true})
	s.PutService(domain.Service{ID: marathon, SalonID: salonID, Name: "Full day", DurationMinutes: 11 * 60, Active: true})
	addTechnician(t, s, anaID, "Ana")

	calc := NewCalculator(s, s, s, Config{}, WithClock(func() time.Time { return now }))
	return &fixture{store: s, calc: calc}
}

func addTechnician(t *testing.T, s *memory.Store, id uuid.UUID, name string) {
	t.Helper()
	s.PutTechnician(domain.Technician{ID: id, SalonID: salonID, Name: name, Active: true})
	require.NoError(t, s.PutSchedule(id, []domain.ScheduleTemplateEntry{
		{TechnicianID: id, DayOfWeek: time.Monday, StartMinute: 9 * 60, EndMinute: 19 * 60, IsWorking: true},
		{TechnicianID: id, DayOfWeek: time.Sunday, IsWorking: false},
	}))
}

func busyAppointment(tech uuid.UUID, start time.Time, minutes int, status domain.AppointmentStatus) domain.Appointment {
	return domain.Appointment{
		ID:              uuid.New(),
		SalonID:         salonID,
		ClientID:        uuid.New(),
		TechnicianID:    tech,
		ServiceID:       colourID,
		StartTime:       start,
		EndTime:         start.Add(time.Duration(minutes) * time.Minute),
		DurationMinutes: minutes,
		Status:          status,
		Source:          domain.BookingSourcePhone,
	}
}

func utc(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
}

func starts(slots []Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Start.Format("15:04"))
	}
	return out
}

func TestComputeSlots_BusyIntervalScenario(t *testing.T) {
	f := newFixture(t, "UTC", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	f.store.PutAppointment(busyAppointment(anaID, utc(10, 0), 45, domain.AppointmentStatusBooked))

	slots, err := f.calc.ComputeSlots(context.Background(), Query{SalonID: salonID, ServiceID: trimID, Date: monday})
	require.NoError(t, err)

	got := starts(slots)
	assert.Subset(t, got, []string{"09:00", "09:30", "10:45", "11:15"})
	assert.NotContains(t, got, "10:00")
	assert.NotContains(t, got, "10:15")
	assert.NotContains(t, got, "10:30")
	assert.Equal(t, []string{"09:00", "09:30", "10:45", "11:15"}, got[:4])
	assert.Equal(t, "18:15", got[len(got)-1])
	assert.Len(t, got, 18)

	for _, s := range slots {
		assert.Equal(t, 30*time.Minute, s.End.Sub(s.Start))
		assert.Equal(t, "Ana", s.TechnicianName)
	}
}

func TestComputeSlots_TerminalAppointmentsDoNotBlock(t *testing.T) {
	f := newFixture(t, "UTC", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	for _, st := range []domain.AppointmentStatus{domain.AppointmentStatusCancelled, domain.AppointmentStatusNoShow, domain.AppointmentStatusCompleted} {
		f.store.PutAppointment(busyAppointment(anaID, utc(10, 0), 45, st))
	}

	slots, err := f.calc.ComputeSlots(context.Background(), Query{SalonID: salonID, ServiceID: trimID, Date: monday})
	require.NoError(t, err)
	assert.Contains(t, starts(slots), "10:00")
	assert.Len(t, slots, 20)
}

func TestComputeSlots_ServiceLongerThanWindowIsEmpty(t *testing.T) {
	f := newFixture(t, "UTC", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	slots, err := f.calc.ComputeSlots(context.Background(), Query{SalonID: salonID, ServiceID: marathon, Date: monday})
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestComputeSlots_DayOffAndMissingEntry(t *testing.T) {
	f := newFixture(t, "UTC", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))

	slots, err := f.calc.ComputeSlots(context.Background(), Query{SalonID: salonID, ServiceID: trimID, Date: sundayDay})
	require.NoError(t, err)
	assert.Empty(t, slots)

	tuesday := domain.Date{Year: 2026, Month: time.March, Day: 3}
	slots, err = f.calc.ComputeSlots(context.Background(), Query{SalonID: salonID, ServiceID: trimID, Date: tuesday})
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestComputeSlots_TieBreakByTechnicianName(t *testing.T) {
	f := newFixture(t, "UTC", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	addTechnician(t, f.store, beaID, "Bea")
	f.store.PutTechnician(domain.Technician{ID: uuid.New(), SalonID: salonID, Name: "Inactive", Active: false})

	slots, err := f.calc.ComputeSlots(context.Background(), Query{SalonID: salonID, ServiceID: trimID, Date: monday})
	require.NoError(t, err)
	require.Len(t, slots, 40)
	for i := 0; i < len(slots); i += 2 {
		assert.True(t, slots[i].Start.Equal(slots[i+1].Start))
		assert.Equal(t, "Ana", slots[i].TechnicianName)
		assert.Equal(t, "Bea", slots[i+1].TechnicianName)
	}

	again, err := f.calc.ComputeSlots(context.Background(), Query{SalonID: salonID, ServiceID: trimID, Date: monday})
	require.NoError(t, err)
	assert.Equal(t, slots, again)
}

func TestComputeSlots_SingleTechnician(t *testing.T) {
	f := newFixture(t, "UTC", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	addTechnician(t, f.store, beaID, "Bea")

	id := beaID
	slots, err := f.calc.ComputeSlots(context.Background(), Query{SalonID: salonID, ServiceID: trimID, Date: monday, TechnicianID: &id})
	require.NoError(t, err)
	require.Len(t, slots, 20)
	for _, s := range slots {
		assert.Equal(t, beaID, s.TechnicianID)
	}
}

func TestComputeSlots_MinimumLeadTime(t *testing.T) {
	s := memory.New()
	s.PutSalon(domain.Salon{ID: salonID, Timezone: "UTC", SlotGranularityMinutes: 30, MinLeadTimeMinutes: 30})
	s.PutService(domain.Service{ID: trimID, SalonID: salonID, DurationMinutes: 30, Active: true})
	addTechnician(t, s, anaID, "Ana")
	s.PutAppointment(busyAppointment(anaID, utc(10, 0), 45, domain.AppointmentStatusBooked))

	calc := NewCalculator(s, s, s, Config{}, WithClock(func() time.Time { return utc(12, 10) }))
	slots, err := calc.ComputeSlots(context.Background(), Query{SalonID: salonID, ServiceID: trimID, Date: monday})
	require.NoError(t, err)
	require.NotEmpty(t, slots)
	assert.Equal(t, "12:45", starts(slots)[0])

	past := domain.Date{Year: 2026, Month: time.February, Day: 23}
	slots, err = calc.ComputeSlots(context.Background(), Query{SalonID: salonID, ServiceID: trimID, Date: past})
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestComputeSlots_SalonTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	s := memory.New()
	s.PutSalon(domain.Salon{ID: salonID, Timezone: "America/Los_Angeles", SlotGranularityMinutes: 30})
	s.PutService(domain.Service{ID: trimID, SalonID: salonID, DurationMinutes: 30, Active: true})
	s.PutTechnician(domain.Technician{ID: anaID, SalonID: salonID, Name: "Ana", Active: true})
	require.NoError(t, s.PutSchedule(anaID, []domain.ScheduleTemplateEntry{
		{TechnicianID: anaID, DayOfWeek: time.Monday, StartMinute: 9 * 60, EndMinute: 10 * 60, IsWorking: true},
	}))

	calc := NewCalculator(s, s, s, Config{}, WithClock(func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }))
	slots, err := calc.ComputeSlots(context.Background(), Query{SalonID: salonID, ServiceID: trimID, Date: monday})
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.True(t, slots[0].Start.Equal(time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC)))
	assert.Equal(t, loc.String(), slots[0].Start.Location().String())
	assert.Equal(t, "09:30", slots[1].Start.Format("15:04"))
}

func TestComputeSlots_NeverIntersectsBusy(t *testing.T) {
	f := newFixture(t, "UTC", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	addTechnician(t, f.store, beaID, "Bea")

	rng := rand.New(rand.NewSource(7))
	var busy []domain.Appointment
	for i := 0; i < 12; i++ {
		tech := anaID
		if i%2 == 1 {
			tech = beaID
		}
		start := utc(8, 0).Add(time.Duration(rng.Intn(11*60/5)) * 5 * time.Minute)
		a := busyAppointment(tech, start, 15+rng.Intn(6)*15, domain.AppointmentStatusConfirmed)
		f.store.PutAppointment(a)
		busy = append(busy, a)
	}

	for _, svc := range []uuid.UUID{trimID, colourID} {
		slots, err := f.calc.ComputeSlots(context.Background(), Query{SalonID: salonID, ServiceID: svc, Date: monday})
		require.NoError(t, err)
		for _, s := range slots {
			si := domain.Interval{Start: s.Start, End: s.End}
			for _, b := range busy {
				if b.TechnicianID == s.TechnicianID && si.Overlaps(b.Interval()) {
					t.Fatalf("slot %v-%v for %s intersects busy %v-%v", s.Start, s.End, s.TechnicianName, b.StartTime, b.EndTime)
				}
			}
			assert.False(t, s.Start.Before(utc(9, 0)))
			assert.False(t, s.End.After(utc(19, 0)))
		}
	}
}

func TestComputeSlots_Errors(t *testing.T) {
	f := newFixture(t, "UTC", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	otherSalon := uuid.New()
	foreignService := uuid.New()
	f.store.PutSalon(domain.Salon{ID: otherSalon, Timezone: "UTC"})
	f.store.PutService(domain.Service{ID: foreignService, SalonID: otherSalon, DurationMinutes: 30, Active: true})

	ctx := context.Background()

	_, err := f.calc.ComputeSlots(ctx, Query{SalonID: salonID, ServiceID: trimID})
	var vErr *service.ValidationError
	assert.True(t, errors.As(err, &vErr))

	_, err = f.calc.ComputeSlots(ctx, Query{SalonID: uuid.New(), ServiceID: trimID, Date: monday})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.calc.ComputeSlots(ctx, Query{SalonID: salonID, ServiceID: foreignService, Date: monday})
	assert.ErrorIs(t, err, store.ErrUnauthorized)

	_, err = f.calc.ComputeSlots(ctx, Query{SalonID: salonID, ServiceID: uuid.New(), Date: monday})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEnumerate(t *testing.T) {
	free := domain.Interval{Start: utc(10, 45), End: utc(12, 0)}
	got := enumerate(free, 30*time.Minute, 30*time.Minute, time.Time{})
	require.Len(t, got, 2)
	assert.True(t, got[0].Equal(utc(10, 45)))
	assert.True(t, got[1].Equal(utc(11, 15)))

	assert.Empty(t, enumerate(free, 2*time.Hour, 30*time.Minute, time.Time{}))
	assert.Empty(t, enumerate(free, 30*time.Minute, 0, time.Time{}))
}
