package domain

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Salon holds the per-salon scheduling settings. Zero values fall back to
// process defaults.
type Salon struct {
	bun.BaseModel `bun:"table:salons"`

	ID                     uuid.UUID `bun:"id,pk,type:uuid"`
	Name                   string    `bun:"name,notnull"`
	Timezone               string    `bun:"timezone,notnull"`
	SlotGranularityMinutes int       `bun:"slot_granularity_minutes,notnull"`
	MinLeadTimeMinutes     int       `bun:"min_lead_time_minutes,notnull"`
	CreatedAt              time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt              time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Location resolves the salon timezone, falling back to def when unset.
func (s Salon) Location(def *time.Location) (*time.Location, error) {
	tz := strings.TrimSpace(s.Timezone)
	if tz == "" {
		if def == nil {
			return time.UTC, nil
		}
		return def, nil
	}
	return time.LoadLocation(tz)
}

func (s Salon) SlotGranularity(def time.Duration) time.Duration {
	if s.SlotGranularityMinutes > 0 {
		return time.Duration(s.SlotGranularityMinutes) * time.Minute
	}
	return def
}

func (s Salon) MinLeadTime(def time.Duration) time.Duration {
	if s.MinLeadTimeMinutes > 0 {
		return time.Duration(s.MinLeadTimeMinutes) * time.Minute
	}
	return def
}

type Technician struct {
	bun.BaseModel `bun:"table:technicians"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	SalonID   uuid.UUID `bun:"salon_id,notnull,type:uuid"`
	Name      string    `bun:"name,notnull"`
	Active    bool      `bun:"active,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

type Service struct {
	bun.BaseModel `bun:"table:services"`

	ID              uuid.UUID `bun:"id,pk,type:uuid"`
	SalonID         uuid.UUID `bun:"salon_id,notnull,type:uuid"`
	Name            string    `bun:"name,notnull"`
	DurationMinutes int       `bun:"duration_minutes,notnull"`
	PriceCents      int64     `bun:"price_cents,notnull"`
	Active          bool      `bun:"active,notnull"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt       time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

type Client struct {
	bun.BaseModel `bun:"table:clients"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	SalonID   uuid.UUID `bun:"salon_id,notnull,type:uuid"`
	Name      string    `bun:"name,notnull"`
	Phone     string    `bun:"phone,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func (c *Client) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery, *bun.UpdateQuery:
		c.Phone = NormalizePhone(c.Phone)
	}
	return nil
}

// NormalizePhone keeps only digits so "(408) 555-1234" and "4085551234" match.
func NormalizePhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
