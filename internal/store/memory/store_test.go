package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonsched/backend/internal/domain"
	"salonsched/backend/internal/store"
)

var (
	salonID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	techID  = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	s.PutSalon(domain.Salon{ID: salonID, Name: "Downtown", Timezone: "UTC"})
	s.PutTechnician(domain.Technician{ID: techID, SalonID: salonID, Name: "Ana", Active: true})
	return s
}

func booking(start time.Time, minutes int) domain.Appointment {
	return domain.Appointment{
		SalonID:         salonID,
		ClientID:        uuid.New(),
		TechnicianID:    techID,
		ServiceID:       uuid.New(),
		StartTime:       start,
		EndTime:         start.Add(time.Duration(minutes) * time.Minute),
		DurationMinutes: minutes,
		Status:          domain.AppointmentStatusBooked,
		Source:          domain.BookingSourceOnline,
	}
}

func insert(ctx context.Context, s *Store, appt domain.Appointment) (domain.Appointment, error) {
	var out domain.Appointment
	err := s.InTechnicianTransaction(ctx, []uuid.UUID{appt.TechnicianID}, func(ctx context.Context, tx store.BookingTx) error {
		busy, err := tx.ListBusy(ctx, appt.TechnicianID, appt.StartTime, appt.EndTime)
		if err != nil {
			return err
		}
		if len(busy) > 0 {
			return store.NewConflict(busy[0])
		}
		out, err = tx.InsertAppointment(ctx, appt)
		return err
	})
	return out, err
}

func TestInTechnicianTransaction_SerializesCheckThenInsert(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	const racers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := insert(ctx, s, booking(start, 30))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, store.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, racers-1, conflicts)

	busy, err := s.ListBusy(ctx, techID, start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, busy, 1)
}

func TestCommitRejectsOverlapWithoutServiceCheck(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	_, err := insert(ctx, s, booking(start, 45))
	require.NoError(t, err)

	err = s.InTransaction(ctx, func(ctx context.Context, tx store.BookingTx) error {
		_, err := tx.InsertAppointment(ctx, booking(start.Add(15*time.Minute), 30))
		return err
	})
	var cErr *store.ConflictError
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, techID, cErr.TechnicianID)
}

func TestFailedTransactionLeavesNoTrace(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	boom := errors.New("boom")
	err := s.InTechnicianTransaction(ctx, []uuid.UUID{techID}, func(ctx context.Context, tx store.BookingTx) error {
		a, err := tx.InsertAppointment(ctx, booking(start, 30))
		if err != nil {
			return err
		}
		if err := tx.AppendEvents(ctx, domain.AppointmentCreated(a, start)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	busy, err := s.ListBusy(ctx, techID, start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, busy)
	assert.Empty(t, s.PendingEvents())
}

func TestInsertAppointment_IdempotentReplay(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	appt := booking(start, 30)
	appt.ID = uuid.New()
	first, err := insert(ctx, s, appt)
	require.NoError(t, err)

	err = s.InTransaction(ctx, func(ctx context.Context, tx store.BookingTx) error {
		again, err := tx.InsertAppointment(ctx, appt)
		if err != nil {
			return err
		}
		assert.Equal(t, first.ID, again.ID)
		return nil
	})
	require.NoError(t, err)

	changed := appt
	changed.StartTime = start.Add(time.Hour)
	err = s.InTransaction(ctx, func(ctx context.Context, tx store.BookingTx) error {
		_, err := tx.InsertAppointment(ctx, changed)
		return err
	})
	require.ErrorIs(t, err, store.ErrIdempotencyConflict)
}

func TestAppointmentForUpdate_NotFound(t *testing.T) {
	s := seeded(t)
	err := s.InTransaction(context.Background(), func(ctx context.Context, tx store.BookingTx) error {
		_, err := tx.AppointmentForUpdate(ctx, uuid.New())
		return err
	})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestTechnicianLockHonoursContext(t *testing.T) {
	s := seeded(t)
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.InTechnicianTransaction(context.Background(), []uuid.UUID{techID}, func(ctx context.Context, tx store.BookingTx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.InTechnicianTransaction(ctx, []uuid.UUID{techID}, func(ctx context.Context, tx store.BookingTx) error {
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWeeklyTemplate(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	_, err := s.WeeklyTemplate(ctx, uuid.New())
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.PutSchedule(techID, []domain.ScheduleTemplateEntry{
		{TechnicianID: techID, DayOfWeek: time.Tuesday, StartMinute: 600, EndMinute: 1080, IsWorking: true},
		{TechnicianID: techID, DayOfWeek: time.Monday, StartMinute: 540, EndMinute: 1140, IsWorking: true},
	}))
	entries, err := s.WeeklyTemplate(ctx, techID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, time.Monday, entries[0].DayOfWeek)
}

func TestClientByPhoneNormalizes(t *testing.T) {
	s := seeded(t)
	clientID := uuid.New()
	s.PutClient(domain.Client{ID: clientID, SalonID: salonID, Name: "Dana", Phone: "(408) 555-1234"})

	c, err := s.ClientByPhone(context.Background(), salonID, "408.555.1234")
	require.NoError(t, err)
	assert.Equal(t, clientID, c.ID)

	_, err = s.ClientByPhone(context.Background(), uuid.New(), "4085551234")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListForSalon(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	late, err := insert(ctx, s, booking(start.Add(3*time.Hour), 60))
	require.NoError(t, err)
	early, err := insert(ctx, s, booking(start, 60))
	require.NoError(t, err)
	cancelled := booking(start.Add(time.Hour), 60)
	cancelled.Status = domain.AppointmentStatusCancelled
	_, err = insert(ctx, s, cancelled)
	require.NoError(t, err)
	_, err = insert(ctx, s, booking(start.Add(24*time.Hour), 60))
	require.NoError(t, err)

	day, err := s.ListForSalon(ctx, salonID, start.Add(-9*time.Hour), start.Add(15*time.Hour), nil)
	require.NoError(t, err)
	require.Len(t, day, 3)
	assert.Equal(t, early.ID, day[0].ID)
	assert.Equal(t, late.ID, day[2].ID)

	busy, err := s.ListForSalon(ctx, salonID, start.Add(-9*time.Hour), start.Add(15*time.Hour), domain.BusyStatuses())
	require.NoError(t, err)
	assert.Len(t, busy, 2)

	none, err := s.ListForSalon(ctx, uuid.New(), start.Add(-9*time.Hour), start.Add(15*time.Hour), nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOutboxClaimBatch(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		err := s.InTechnicianTransaction(ctx, []uuid.UUID{techID}, func(ctx context.Context, tx store.BookingTx) error {
			a, err := tx.InsertAppointment(ctx, booking(start.Add(time.Duration(i)*time.Hour), 30))
			if err != nil {
				return err
			}
			return tx.AppendEvents(ctx, domain.AppointmentCreated(a, start))
		})
		require.NoError(t, err)
	}
	require.Len(t, s.PendingEvents(), 3)

	n, err := s.ClaimBatch(ctx, 2, func(ctx context.Context, batch []store.OutboxRecord) ([]uuid.UUID, error) {
		require.Len(t, batch, 2)
		return []uuid.UUID{batch[0].Event.ID}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, s.PendingEvents(), 2)
}

func TestOutboxClaimBatch_BumpsOnlyTheFailedRecord(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		err := s.InTechnicianTransaction(ctx, []uuid.UUID{techID}, func(ctx context.Context, tx store.BookingTx) error {
			a, err := tx.InsertAppointment(ctx, booking(start.Add(time.Duration(i)*time.Hour), 30))
			if err != nil {
				return err
			}
			return tx.AppendEvents(ctx, domain.AppointmentCreated(a, start))
		})
		require.NoError(t, err)
	}

	n, err := s.ClaimBatch(ctx, 10, func(ctx context.Context, batch []store.OutboxRecord) ([]uuid.UUID, error) {
		require.Len(t, batch, 3)
		return []uuid.UUID{batch[0].Event.ID}, errors.New("broker down")
	})
	require.Error(t, err)
	assert.Equal(t, 1, n)

	var attempts []int
	_, err = s.ClaimBatch(ctx, 10, func(ctx context.Context, batch []store.OutboxRecord) ([]uuid.UUID, error) {
		for _, rec := range batch {
			attempts = append(attempts, rec.Attempts)
		}
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, attempts)
}

func TestDecodeSeedAndApply(t *testing.T) {
	doc := `
salons:
  - id: 11111111-1111-1111-1111-111111111111
    name: Downtown
    timezone: America/Los_Angeles
    slot_granularity_minutes: 15
    technicians:
      - id: 22222222-2222-2222-2222-222222222222
        name: Ana
        hours:
          monday: "09:00-19:00"
          sunday: "off"
    services:
      - id: 33333333-3333-3333-3333-333333333333
        name: Gel manicure
        duration_minutes: 45
        price_cents: 4500
    clients:
      - id: 44444444-4444-4444-4444-444444444444
        name: Dana
        phone: "(408) 555-1234"
`
	seed, err := DecodeSeed(strings.NewReader(doc))
	require.NoError(t, err)

	s := New()
	require.NoError(t, s.Apply(seed))

	ctx := context.Background()
	salon, err := s.Salon(ctx, salonID)
	require.NoError(t, err)
	assert.Equal(t, 15, salon.SlotGranularityMinutes)

	entries, err := s.WeeklyTemplate(ctx, techID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.False(t, entries[0].IsWorking)
	assert.Equal(t, 540, entries[1].StartMinute)

	c, err := s.ClientByPhone(ctx, salonID, "4085551234")
	require.NoError(t, err)
	assert.Equal(t, "Dana", c.Name)
}

func TestDecodeSeed_RejectsUnknownFields(t *testing.T) {
	_, err := DecodeSeed(strings.NewReader("salonz: []\n"))
	require.Error(t, err)
}
