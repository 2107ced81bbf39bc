package grpc

import (
	"time"

	"salonsched/backend/internal/availability"
	"salonsched/backend/internal/domain"
	"salonsched/backend/internal/service/kiosk"
)

// Wire messages. Ids are UUID strings, dates are YYYY-MM-DD in the salon's
// timezone, instants are RFC 3339.

type AvailableSlotsRequest struct {
	SalonID      string `json:"salon_id"`
	ServiceID    string `json:"service_id"`
	Date         string `json:"date"`
	TechnicianID string `json:"technician_id,omitempty"`
}

func (r *AvailableSlotsRequest) GetSalonID() string { return r.SalonID }

type Slot struct {
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	TechnicianID   string    `json:"technician_id"`
	TechnicianName string    `json:"technician_name"`
}

type AvailableSlotsResponse struct {
	Slots []Slot `json:"slots"`
}

type Appointment struct {
	ID              string     `json:"id"`
	SalonID         string     `json:"salon_id"`
	ClientID        string     `json:"client_id"`
	TechnicianID    string     `json:"technician_id"`
	ServiceID       string     `json:"service_id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	DurationMinutes int        `json:"duration_minutes"`
	PriceCents      int64      `json:"price_cents"`
	Status          string     `json:"status"`
	Source          string     `json:"source"`
	Notes           string     `json:"notes,omitempty"`
	CancelReason    string     `json:"cancel_reason,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	ConfirmedAt     *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type CreateAppointmentRequest struct {
	SalonID      string     `json:"salon_id"`
	ClientID     string     `json:"client_id"`
	TechnicianID string     `json:"technician_id"`
	ServiceID    string     `json:"service_id"`
	StartTime    *time.Time `json:"start_time"`
	Source       string     `json:"source,omitempty"`
	Notes        string     `json:"notes,omitempty"`
}

func (r *CreateAppointmentRequest) GetSalonID() string { return r.SalonID }

// UpdateAppointmentRequest either moves the appointment (start_time and/or
// technician_id) or changes its status, never both.
type UpdateAppointmentRequest struct {
	SalonID       string     `json:"salon_id"`
	AppointmentID string     `json:"appointment_id"`
	Status        string     `json:"status,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	TechnicianID  string     `json:"technician_id,omitempty"`
}

func (r *UpdateAppointmentRequest) GetSalonID() string { return r.SalonID }

type GetAppointmentRequest struct {
	SalonID       string `json:"salon_id"`
	AppointmentID string `json:"appointment_id"`
}

func (r *GetAppointmentRequest) GetSalonID() string { return r.SalonID }

// ListAppointmentsRequest asks for the salon's agenda on one local date.
// Statuses narrows the result; empty returns every status.
type ListAppointmentsRequest struct {
	SalonID  string   `json:"salon_id"`
	Date     string   `json:"date"`
	Statuses []string `json:"statuses,omitempty"`
}

func (r *ListAppointmentsRequest) GetSalonID() string { return r.SalonID }

type ListAppointmentsResponse struct {
	Appointments []*Appointment `json:"appointments"`
}

type AppointmentResponse struct {
	Appointment *Appointment `json:"appointment"`
}

type WaitlistEntry struct {
	ID                    string     `json:"id"`
	SalonID               string     `json:"salon_id"`
	ClientID              string     `json:"client_id,omitempty"`
	ClientName            string     `json:"client_name,omitempty"`
	Phone                 string     `json:"phone,omitempty"`
	PartySize             int        `json:"party_size"`
	ServiceID             string     `json:"service_id,omitempty"`
	PreferredTechnicianID string     `json:"preferred_technician_id,omitempty"`
	Status                string     `json:"status"`
	Source                string     `json:"source"`
	Position              int        `json:"position"`
	EstimatedWaitMinutes  int        `json:"estimated_wait_minutes"`
	CreatedAt             time.Time  `json:"created_at"`
	NotifiedAt            *time.Time `json:"notified_at,omitempty"`
	SeatedAt              *time.Time `json:"seated_at,omitempty"`
	ClosedAt              *time.Time `json:"closed_at,omitempty"`
}

type AddWaitlistEntryRequest struct {
	SalonID               string `json:"salon_id"`
	ClientID              string `json:"client_id,omitempty"`
	ClientName            string `json:"client_name,omitempty"`
	Phone                 string `json:"phone,omitempty"`
	PartySize             int    `json:"party_size,omitempty"`
	ServiceID             string `json:"service_id,omitempty"`
	PreferredTechnicianID string `json:"preferred_technician_id,omitempty"`
	Source                string `json:"source,omitempty"`
}

func (r *AddWaitlistEntryRequest) GetSalonID() string { return r.SalonID }

type UpdateWaitlistEntryRequest struct {
	SalonID string `json:"salon_id"`
	EntryID string `json:"entry_id"`
	Status  string `json:"status"`
}

func (r *UpdateWaitlistEntryRequest) GetSalonID() string { return r.SalonID }

type WaitlistEntryResponse struct {
	Entry *WaitlistEntry `json:"entry"`
}

type ListWaitlistRequest struct {
	SalonID string `json:"salon_id"`
}

func (r *ListWaitlistRequest) GetSalonID() string { return r.SalonID }

type ListWaitlistResponse struct {
	Entries []*WaitlistEntry `json:"entries"`
}

type Client struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type KioskLookupRequest struct {
	SalonID string `json:"salon_id"`
	Phone   string `json:"phone"`
}

func (r *KioskLookupRequest) GetSalonID() string { return r.SalonID }

type KioskLookupResponse struct {
	Client       *Client        `json:"client,omitempty"`
	Appointments []*Appointment `json:"appointments"`
	Action       string         `json:"action"`
}

type KioskCheckInRequest struct {
	SalonID       string `json:"salon_id"`
	AppointmentID string `json:"appointment_id"`
}

func (r *KioskCheckInRequest) GetSalonID() string { return r.SalonID }

func toSlot(s availability.Slot) Slot {
	return Slot{
		StartTime:      s.Start,
		EndTime:        s.End,
		TechnicianID:   s.TechnicianID.String(),
		TechnicianName: s.TechnicianName,
	}
}

func toAppointment(a domain.Appointment) *Appointment {
	return &Appointment{
		ID:              a.ID.String(),
		SalonID:         a.SalonID.String(),
		ClientID:        a.ClientID.String(),
		TechnicianID:    a.TechnicianID.String(),
		ServiceID:       a.ServiceID.String(),
		StartTime:       a.StartTime,
		EndTime:         a.EndTime,
		DurationMinutes: a.DurationMinutes,
		PriceCents:      a.PriceCents,
		Status:          string(a.Status),
		Source:          string(a.Source),
		Notes:           a.Notes,
		CancelReason:    a.CancelReason,
		CancelledAt:     a.CancelledAt,
		ConfirmedAt:     a.ConfirmedAt,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func toWaitlistEntry(e domain.WaitlistEntry) *WaitlistEntry {
	out := &WaitlistEntry{
		ID:                   e.ID.String(),
		SalonID:              e.SalonID.String(),
		ClientName:           e.ClientName,
		Phone:                e.Phone,
		PartySize:            e.PartySize,
		Status:               string(e.Status),
		Source:               string(e.Source),
		Position:             e.Position,
		EstimatedWaitMinutes: e.EstimatedWaitMinutes,
		CreatedAt:            e.CreatedAt,
		NotifiedAt:           e.NotifiedAt,
		SeatedAt:             e.SeatedAt,
		ClosedAt:             e.ClosedAt,
	}
	if e.ClientID != nil {
		out.ClientID = e.ClientID.String()
	}
	if e.ServiceID != nil {
		out.ServiceID = e.ServiceID.String()
	}
	if e.PreferredTechnicianID != nil {
		out.PreferredTechnicianID = e.PreferredTechnicianID.String()
	}
	return out
}

func toLookupResponse(res kiosk.LookupResult) *KioskLookupResponse {
	out := &KioskLookupResponse{
		Action:       string(res.Action),
		Appointments: make([]*Appointment, 0, len(res.Appointments)),
	}
	if res.Client != nil {
		out.Client = &Client{ID: res.Client.ID.String(), Name: res.Client.Name, Phone: res.Client.Phone}
	}
	for _, a := range res.Appointments {
		out.Appointments = append(out.Appointments, toAppointment(a))
	}
	return out
}
