package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// WaitlistEntry is a walk-in party waiting to be seated. Position and
// EstimatedWaitMinutes are derived on every read and never persisted.
type WaitlistEntry struct {
	bun.BaseModel `bun:"table:waitlist_entries"`

	ID                    uuid.UUID      `bun:"id,pk,type:uuid"`
	SalonID               uuid.UUID      `bun:"salon_id,notnull,type:uuid"`
	ClientID              *uuid.UUID     `bun:"client_id,type:uuid"`
	ClientName            string         `bun:"client_name,notnull"`
	Phone                 string         `bun:"phone,notnull"`
	PartySize             int            `bun:"party_size,notnull"`
	ServiceID             *uuid.UUID     `bun:"service_id,type:uuid"`
	PreferredTechnicianID *uuid.UUID     `bun:"preferred_technician_id,type:uuid"`
	Status                WaitlistStatus `bun:"status,notnull"`
	Source                BookingSource  `bun:"source,notnull"`
	CreatedAt             time.Time      `bun:"created_at,notnull"`
	NotifiedAt            *time.Time     `bun:"notified_at"`
	SeatedAt              *time.Time     `bun:"seated_at"`
	ClosedAt              *time.Time     `bun:"closed_at"`
	UpdatedAt             time.Time      `bun:"updated_at,notnull"`

	Position             int `bun:"-"`
	EstimatedWaitMinutes int `bun:"-"`
}

func (e *WaitlistEntry) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if e.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			e.ID = id
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if e.UpdatedAt.IsZero() {
			e.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		e.UpdatedAt = now
	}
	return nil
}

// Ahead reports whether e was queued before o. Ties on CreatedAt fall back to
// the id so ordering is total.
func (e WaitlistEntry) Ahead(o WaitlistEntry) bool {
	if !e.CreatedAt.Equal(o.CreatedAt) {
		return e.CreatedAt.Before(o.CreatedAt)
	}
	return e.ID.String() < o.ID.String()
}
