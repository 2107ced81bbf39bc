package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Appointment is a booked service for one client with one technician.
// DurationMinutes and PriceCents are copied from the service at booking time
// so later catalogue edits never rewrite history.
type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID              uuid.UUID         `bun:"id,pk,type:uuid"`
	SalonID         uuid.UUID         `bun:"salon_id,notnull,type:uuid"`
	ClientID        uuid.UUID         `bun:"client_id,notnull,type:uuid"`
	TechnicianID    uuid.UUID         `bun:"technician_id,notnull,type:uuid"`
	ServiceID       uuid.UUID         `bun:"service_id,notnull,type:uuid"`
	StartTime       time.Time         `bun:"start_time,notnull"`
	EndTime         time.Time         `bun:"end_time,notnull"`
	DurationMinutes int               `bun:"duration_minutes,notnull"`
	PriceCents      int64             `bun:"price_cents,notnull"`
	Status          AppointmentStatus `bun:"status,notnull"`
	Source          BookingSource     `bun:"source,notnull"`
	Notes           string            `bun:"notes"`
	CancelReason    string            `bun:"cancel_reason"`
	CancelledAt     *time.Time        `bun:"cancelled_at"`
	ConfirmedAt     *time.Time        `bun:"confirmed_at"`
	CreatedAt       time.Time         `bun:"created_at,notnull"`
	UpdatedAt       time.Time         `bun:"updated_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

func (a Appointment) Interval() Interval {
	return Interval{Start: a.StartTime, End: a.EndTime}
}

func (a Appointment) Duration() time.Duration {
	return time.Duration(a.DurationMinutes) * time.Minute
}

// SameBooking reports whether two appointments describe the same request,
// ignoring server-assigned fields. Used for idempotent replays.
func (a Appointment) SameBooking(o Appointment) bool {
	return a.SalonID == o.SalonID &&
		a.ClientID == o.ClientID &&
		a.TechnicianID == o.TechnicianID &&
		a.ServiceID == o.ServiceID &&
		a.StartTime.Equal(o.StartTime) &&
		a.Source == o.Source
}
