package memory

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"salonsched/backend/internal/domain"
)

// Seed is the yaml document accepted by `serve --memory --seed`.
//
//	salons:
//	  - id: 0190...
//	    name: Downtown
//	    timezone: America/Los_Angeles
//	    technicians:
//	      - id: 0190...
//	        name: Ana
//	        hours:
//	          monday: "09:00-19:00"
//	    services:
//	      - id: 0190...
//	        name: Gel manicure
//	        duration_minutes: 45
//	        price_cents: 4500
//	    clients:
//	      - id: 0190...
//	        name: Dana
//	        phone: "(408) 555-1234"
type Seed struct {
	Salons []SeedSalon `yaml:"salons"`
}

type SeedSalon struct {
	ID                     uuid.UUID        `yaml:"id"`
	Name                   string           `yaml:"name"`
	Timezone               string           `yaml:"timezone"`
	SlotGranularityMinutes int              `yaml:"slot_granularity_minutes"`
	MinLeadTimeMinutes     int              `yaml:"min_lead_time_minutes"`
	Technicians            []SeedTechnician `yaml:"technicians"`
	Services               []SeedService    `yaml:"services"`
	Clients                []SeedClient     `yaml:"clients"`
}

type SeedTechnician struct {
	ID       uuid.UUID         `yaml:"id"`
	Name     string            `yaml:"name"`
	Inactive bool              `yaml:"inactive"`
	Hours    map[string]string `yaml:"hours"`
}

type SeedService struct {
	ID              uuid.UUID `yaml:"id"`
	Name            string    `yaml:"name"`
	DurationMinutes int       `yaml:"duration_minutes"`
	PriceCents      int64     `yaml:"price_cents"`
}

type SeedClient struct {
	ID    uuid.UUID `yaml:"id"`
	Name  string    `yaml:"name"`
	Phone string    `yaml:"phone"`
}

func LoadSeedFile(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeSeed(f)
}

func DecodeSeed(r io.Reader) (*Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	return &seed, nil
}

// Apply loads every record of seed into s.
func (s *Store) Apply(seed *Seed) error {
	if seed == nil {
		return nil
	}
	for _, salon := range seed.Salons {
		if salon.ID == uuid.Nil {
			return fmt.Errorf("seed salon %q has no id", salon.Name)
		}
		if salon.Timezone != "" {
			if _, err := time.LoadLocation(salon.Timezone); err != nil {
				return fmt.Errorf("seed salon %q: %w", salon.Name, err)
			}
		}
		s.PutSalon(domain.Salon{
			ID:                     salon.ID,
			Name:                   salon.Name,
			Timezone:               salon.Timezone,
			SlotGranularityMinutes: salon.SlotGranularityMinutes,
			MinLeadTimeMinutes:     salon.MinLeadTimeMinutes,
		})

		for _, t := range salon.Technicians {
			s.PutTechnician(domain.Technician{ID: t.ID, SalonID: salon.ID, Name: t.Name, Active: !t.Inactive})
			entries, err := parseHours(t.ID, t.Hours)
			if err != nil {
				return fmt.Errorf("seed technician %q: %w", t.Name, err)
			}
			if err := s.PutSchedule(t.ID, entries); err != nil {
				return fmt.Errorf("seed technician %q: %w", t.Name, err)
			}
		}
		for _, svc := range salon.Services {
			if svc.DurationMinutes <= 0 {
				return fmt.Errorf("seed service %q: duration must be positive", svc.Name)
			}
			s.PutService(domain.Service{
				ID:              svc.ID,
				SalonID:         salon.ID,
				Name:            svc.Name,
				DurationMinutes: svc.DurationMinutes,
				PriceCents:      svc.PriceCents,
				Active:          true,
			})
		}
		for _, c := range salon.Clients {
			s.PutClient(domain.Client{ID: c.ID, SalonID: salon.ID, Name: c.Name, Phone: c.Phone})
		}
	}
	return nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// parseHours turns {"monday": "09:00-19:00", "sunday": "off"} into template entries.
func parseHours(technicianID uuid.UUID, hours map[string]string) ([]domain.ScheduleTemplateEntry, error) {
	entries := make([]domain.ScheduleTemplateEntry, 0, len(hours))
	for day, span := range hours {
		wd, ok := weekdays[strings.ToLower(strings.TrimSpace(day))]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", day)
		}
		span = strings.TrimSpace(span)
		if strings.EqualFold(span, "off") || span == "" {
			entries = append(entries, domain.ScheduleTemplateEntry{TechnicianID: technicianID, DayOfWeek: wd})
			continue
		}
		from, to, found := strings.Cut(span, "-")
		if !found {
			return nil, fmt.Errorf("hours for %s: want HH:MM-HH:MM, got %q", day, span)
		}
		start, err := domain.ParseClock(from)
		if err != nil {
			return nil, err
		}
		end, err := domain.ParseClock(to)
		if err != nil {
			return nil, err
		}
		entries = append(entries, domain.ScheduleTemplateEntry{
			TechnicianID: technicianID,
			DayOfWeek:    wd,
			StartMinute:  start,
			EndMinute:    end,
			IsWorking:    true,
		})
	}
	return entries, nil
}
