package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventAppointmentCreated       EventType = "salonsched.appointment.created.v1"
	EventAppointmentStatusChanged EventType = "salonsched.appointment.status_changed.v1"
	EventAppointmentRescheduled   EventType = "salonsched.appointment.rescheduled.v1"
	EventWaitlistEntryAdded       EventType = "salonsched.waitlist.added.v1"
	EventWaitlistEntryNotified    EventType = "salonsched.waitlist.notified.v1"
	EventWaitlistEntrySeated      EventType = "salonsched.waitlist.seated.v1"
	EventWaitlistStatusChanged    EventType = "salonsched.waitlist.status_changed.v1"
)

const (
	AggregateAppointment   = "appointment"
	AggregateWaitlistEntry = "waitlist_entry"
)

// Event is a fact emitted by the engine. Consumers (notifications, payments,
// loyalty) decide what to do with it.
type Event struct {
	ID            uuid.UUID
	Type          EventType
	AggregateType string
	AggregateID   uuid.UUID
	SalonID       uuid.UUID
	OccurredAt    time.Time
	Payload       json.RawMessage
}

type appointmentPayload struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	SalonID       uuid.UUID `json:"salon_id"`
	ClientID      uuid.UUID `json:"client_id"`
	TechnicianID  uuid.UUID `json:"technician_id"`
	ServiceID     uuid.UUID `json:"service_id"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	Status        string    `json:"status"`
	Source        string    `json:"source"`
	OldStatus     string    `json:"old_status,omitempty"`
	NewStatus     string    `json:"new_status,omitempty"`
	OldStartTime  string    `json:"old_start_time,omitempty"`
	OldTechnician string    `json:"old_technician_id,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}

func appointmentBody(a Appointment) appointmentPayload {
	return appointmentPayload{
		AppointmentID: a.ID,
		SalonID:       a.SalonID,
		ClientID:      a.ClientID,
		TechnicianID:  a.TechnicianID,
		ServiceID:     a.ServiceID,
		StartTime:     a.StartTime.UTC().Format(time.RFC3339),
		EndTime:       a.EndTime.UTC().Format(time.RFC3339),
		Status:        string(a.Status),
		Source:        string(a.Source),
	}
}

func AppointmentCreated(a Appointment, at time.Time) Event {
	return newEvent(EventAppointmentCreated, AggregateAppointment, a.ID, a.SalonID, at, appointmentBody(a))
}

func AppointmentStatusChanged(a Appointment, old AppointmentStatus, reason string, at time.Time) Event {
	body := appointmentBody(a)
	body.OldStatus = string(old)
	body.NewStatus = string(a.Status)
	body.Reason = reason
	return newEvent(EventAppointmentStatusChanged, AggregateAppointment, a.ID, a.SalonID, at, body)
}

func AppointmentRescheduled(a Appointment, previous Appointment, at time.Time) Event {
	body := appointmentBody(a)
	body.OldStartTime = previous.StartTime.UTC().Format(time.RFC3339)
	if previous.TechnicianID != a.TechnicianID {
		body.OldTechnician = previous.TechnicianID.String()
	}
	return newEvent(EventAppointmentRescheduled, AggregateAppointment, a.ID, a.SalonID, at, body)
}

type waitlistPayload struct {
	EntryID    uuid.UUID  `json:"entry_id"`
	SalonID    uuid.UUID  `json:"salon_id"`
	ClientID   *uuid.UUID `json:"client_id,omitempty"`
	ClientName string     `json:"client_name,omitempty"`
	Phone      string     `json:"phone,omitempty"`
	PartySize  int        `json:"party_size"`
	Status     string     `json:"status"`
	OldStatus  string     `json:"old_status,omitempty"`
}

func waitlistBody(e WaitlistEntry) waitlistPayload {
	return waitlistPayload{
		EntryID:    e.ID,
		SalonID:    e.SalonID,
		ClientID:   e.ClientID,
		ClientName: e.ClientName,
		Phone:      e.Phone,
		PartySize:  e.PartySize,
		Status:     string(e.Status),
	}
}

func WaitlistEntryAdded(e WaitlistEntry, at time.Time) Event {
	return newEvent(EventWaitlistEntryAdded, AggregateWaitlistEntry, e.ID, e.SalonID, at, waitlistBody(e))
}

// WaitlistEntryTransitioned picks the most specific event type for the new status.
func WaitlistEntryTransitioned(e WaitlistEntry, old WaitlistStatus, at time.Time) Event {
	body := waitlistBody(e)
	body.OldStatus = string(old)
	typ := EventWaitlistStatusChanged
	switch e.Status {
	case WaitlistStatusNotified:
		typ = EventWaitlistEntryNotified
	case WaitlistStatusSeated:
		typ = EventWaitlistEntrySeated
	}
	return newEvent(typ, AggregateWaitlistEntry, e.ID, e.SalonID, at, body)
}

func newEvent(typ EventType, aggregateType string, aggregateID, salonID uuid.UUID, at time.Time, body any) Event {
	payload, err := json.Marshal(body)
	if err != nil {
		payload = json.RawMessage(`{}`)
	}
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return Event{
		ID:            id,
		Type:          typ,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		SalonID:       salonID,
		OccurredAt:    at.UTC(),
		Payload:       payload,
	}
}
