// Package memory is an in-process implementation of the store interfaces.
// Writers are serialized per technician the same way the postgres store does
// it with advisory locks, and transaction writes are staged and applied only
// when the callback succeeds.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"salonsched/backend/internal/domain"
	"salonsched/backend/internal/store"
)

type Store struct {
	mu           sync.RWMutex
	salons       map[uuid.UUID]domain.Salon
	technicians  map[uuid.UUID]domain.Technician
	services     map[uuid.UUID]domain.Service
	clients      map[uuid.UUID]domain.Client
	schedules    map[uuid.UUID][]domain.ScheduleTemplateEntry
	appointments map[uuid.UUID]domain.Appointment
	waitlist     map[uuid.UUID]domain.WaitlistEntry
	outbox       []outboxRow

	locks *keyedLocks
	now   func() time.Time
}

var (
	_ store.Directory             = (*Store)(nil)
	_ store.ScheduleStore         = (*Store)(nil)
	_ store.AppointmentRepository = (*Store)(nil)
	_ store.WaitlistRepository    = (*Store)(nil)
	_ store.Outbox                = (*Store)(nil)
)

func New() *Store {
	return &Store{
		salons:       make(map[uuid.UUID]domain.Salon),
		technicians:  make(map[uuid.UUID]domain.Technician),
		services:     make(map[uuid.UUID]domain.Service),
		clients:      make(map[uuid.UUID]domain.Client),
		schedules:    make(map[uuid.UUID][]domain.ScheduleTemplateEntry),
		appointments: make(map[uuid.UUID]domain.Appointment),
		waitlist:     make(map[uuid.UUID]domain.WaitlistEntry),
		locks:        newKeyedLocks(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) PutSalon(salon domain.Salon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.salons[salon.ID] = salon
}

func (s *Store) PutTechnician(t domain.Technician) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.technicians[t.ID] = t
	if _, ok := s.schedules[t.ID]; !ok {
		s.schedules[t.ID] = nil
	}
}

func (s *Store) PutService(svc domain.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
}

func (s *Store) PutClient(c domain.Client) {
	c.Phone = domain.NormalizePhone(c.Phone)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ID] = c
}

// PutSchedule replaces the technician's weekly template.
func (s *Store) PutSchedule(technicianID uuid.UUID, entries []domain.ScheduleTemplateEntry) error {
	if _, err := domain.NewWeeklySchedule(technicianID, entries); err != nil {
		return err
	}
	cp := append([]domain.ScheduleTemplateEntry(nil), entries...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[technicianID] = cp
	return nil
}

// PutAppointment stores a row as-is, bypassing overlap checks. Used for seeding.
func (s *Store) PutAppointment(a domain.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointments[a.ID] = a
}

func (s *Store) Salon(ctx context.Context, salonID uuid.UUID) (domain.Salon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	salon, ok := s.salons[salonID]
	if !ok {
		return domain.Salon{}, store.ErrNotFound
	}
	return salon, nil
}

func (s *Store) Technician(ctx context.Context, technicianID uuid.UUID) (domain.Technician, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.technicians[technicianID]
	if !ok {
		return domain.Technician{}, store.ErrNotFound
	}
	return t, nil
}

func (s *Store) ActiveTechnicians(ctx context.Context, salonID uuid.UUID) ([]domain.Technician, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Technician
	for _, t := range s.technicians {
		if t.SalonID == salonID && t.Active {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) Service(ctx context.Context, serviceID uuid.UUID) (domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[serviceID]
	if !ok {
		return domain.Service{}, store.ErrNotFound
	}
	return svc, nil
}

func (s *Store) Client(ctx context.Context, clientID uuid.UUID) (domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[clientID]
	if !ok {
		return domain.Client{}, store.ErrNotFound
	}
	return c, nil
}

func (s *Store) ClientByPhone(ctx context.Context, salonID uuid.UUID, phone string) (domain.Client, error) {
	phone = domain.NormalizePhone(phone)
	if phone == "" {
		return domain.Client{}, store.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		if c.SalonID == salonID && c.Phone == phone {
			return c, nil
		}
	}
	return domain.Client{}, store.ErrNotFound
}

func (s *Store) WeeklyTemplate(ctx context.Context, technicianID uuid.UUID) ([]domain.ScheduleTemplateEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.technicians[technicianID]; !ok {
		return nil, store.ErrNotFound
	}
	entries := s.schedules[technicianID]
	out := append([]domain.ScheduleTemplateEntry(nil), entries...)
	sort.Slice(out, func(i, j int) bool { return out[i].DayOfWeek < out[j].DayOfWeek })
	return out, nil
}

func (s *Store) Appointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appointments[appointmentID]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (s *Store) ListBusy(ctx context.Context, technicianID uuid.UUID, start, end time.Time) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return busyFrom(s.appointments, nil, technicianID, start, end), nil
}

func (s *Store) ListForClient(ctx context.Context, salonID, clientID uuid.UUID, start, end time.Time, statuses []domain.AppointmentStatus) ([]domain.Appointment, error) {
	want := make(map[domain.AppointmentStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Appointment
	for _, a := range s.appointments {
		if a.SalonID != salonID || a.ClientID != clientID {
			continue
		}
		if a.StartTime.Before(start) || !a.StartTime.Before(end) {
			continue
		}
		if len(want) > 0 && !want[a.Status] {
			continue
		}
		out = append(out, a)
	}
	sortAppointments(out)
	return out, nil
}

func (s *Store) ListForSalon(ctx context.Context, salonID uuid.UUID, start, end time.Time, statuses []domain.AppointmentStatus) ([]domain.Appointment, error) {
	want := make(map[domain.AppointmentStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Appointment
	for _, a := range s.appointments {
		if a.SalonID != salonID {
			continue
		}
		if a.StartTime.Before(start) || !a.StartTime.Before(end) {
			continue
		}
		if len(want) > 0 && !want[a.Status] {
			continue
		}
		out = append(out, a)
	}
	sortAppointments(out)
	return out, nil
}

// busyFrom merges committed rows with staged overrides and returns the busy
// appointments of technicianID overlapping [start, end).
func busyFrom(committed, staged map[uuid.UUID]domain.Appointment, technicianID uuid.UUID, start, end time.Time) []domain.Appointment {
	window := domain.Interval{Start: start, End: end}
	var out []domain.Appointment
	consider := func(a domain.Appointment) {
		if a.TechnicianID == technicianID && a.Status.Busy() && a.Interval().Overlaps(window) {
			out = append(out, a)
		}
	}
	for id, a := range committed {
		if _, overridden := staged[id]; overridden {
			continue
		}
		consider(a)
	}
	for _, a := range staged {
		consider(a)
	}
	sortAppointments(out)
	return out
}

func sortAppointments(out []domain.Appointment) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
}
