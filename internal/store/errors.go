package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"salonsched/backend/internal/domain"
)

var (
	ErrConflict            = errors.New("conflict")
	ErrNotFound            = errors.New("not found")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidTransition   = domain.ErrInvalidTransition

	// ErrTransient marks failures worth one retry (serialization, deadlock, lost connection).
	ErrTransient = errors.New("transient storage failure")
	ErrInternal  = errors.New("internal error")
)

// ConflictError names the booking that blocks the requested interval.
type ConflictError struct {
	TechnicianID  uuid.UUID
	AppointmentID uuid.UUID
	Start         time.Time
	End           time.Time
}

func (e *ConflictError) Error() string {
	if e.AppointmentID == uuid.Nil {
		return fmt.Sprintf("technician %s is already booked in the requested interval", e.TechnicianID)
	}
	return fmt.Sprintf("technician %s is booked from %s to %s (appointment %s)",
		e.TechnicianID,
		e.Start.UTC().Format(time.RFC3339),
		e.End.UTC().Format(time.RFC3339),
		e.AppointmentID,
	)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// NewConflict builds a ConflictError from the blocking appointment.
func NewConflict(blocking domain.Appointment) *ConflictError {
	return &ConflictError{
		TechnicianID:  blocking.TechnicianID,
		AppointmentID: blocking.ID,
		Start:         blocking.StartTime,
		End:           blocking.EndTime,
	}
}
