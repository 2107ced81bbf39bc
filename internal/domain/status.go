package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidTransition is returned for any move the transition tables do not allow.
var ErrInvalidTransition = errors.New("invalid transition")

// TransitionError carries the attempted move and unwraps to ErrInvalidTransition.
type TransitionError struct {
	Kind string
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot move from %s to %s", e.Kind, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

type AppointmentStatus string

const (
	AppointmentStatusBooked    AppointmentStatus = "BOOKED"
	AppointmentStatusConfirmed AppointmentStatus = "CONFIRMED"
	AppointmentStatusCompleted AppointmentStatus = "COMPLETED"
	AppointmentStatusNoShow    AppointmentStatus = "NO_SHOW"
	AppointmentStatusCancelled AppointmentStatus = "CANCELLED"
)

var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentStatusBooked: {
		AppointmentStatusConfirmed,
		AppointmentStatusCancelled,
		AppointmentStatusNoShow,
	},
	AppointmentStatusConfirmed: {
		AppointmentStatusCompleted,
		AppointmentStatusNoShow,
		AppointmentStatusCancelled,
	},
	AppointmentStatusCompleted: nil,
	AppointmentStatusNoShow:    nil,
	AppointmentStatusCancelled: nil,
}

// AppointmentStatuses lists every status in declaration order.
func AppointmentStatuses() []AppointmentStatus {
	return []AppointmentStatus{
		AppointmentStatusBooked,
		AppointmentStatusConfirmed,
		AppointmentStatusCompleted,
		AppointmentStatusNoShow,
		AppointmentStatusCancelled,
	}
}

// BusyStatuses are the statuses that occupy a technician's time.
func BusyStatuses() []AppointmentStatus {
	return []AppointmentStatus{AppointmentStatusBooked, AppointmentStatusConfirmed}
}

func ParseAppointmentStatus(s string) (AppointmentStatus, error) {
	st := AppointmentStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown appointment status %q", s)
	}
	return st, nil
}

func (s AppointmentStatus) Valid() bool {
	_, ok := appointmentTransitions[s]
	return ok
}

func (s AppointmentStatus) Terminal() bool {
	return s.Valid() && len(appointmentTransitions[s]) == 0
}

func (s AppointmentStatus) Busy() bool {
	return s == AppointmentStatusBooked || s == AppointmentStatusConfirmed
}

func (s AppointmentStatus) CanTransitionTo(to AppointmentStatus) bool {
	for _, allowed := range appointmentTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

func ValidateTransition(from, to AppointmentStatus) error {
	if from.CanTransitionTo(to) {
		return nil
	}
	return &TransitionError{Kind: "appointment", From: string(from), To: string(to)}
}

type WaitlistStatus string

const (
	WaitlistStatusWaiting   WaitlistStatus = "WAITING"
	WaitlistStatusNotified  WaitlistStatus = "NOTIFIED"
	WaitlistStatusSeated    WaitlistStatus = "SEATED"
	WaitlistStatusLeft      WaitlistStatus = "LEFT"
	WaitlistStatusCancelled WaitlistStatus = "CANCELLED"
)

var waitlistTransitions = map[WaitlistStatus][]WaitlistStatus{
	WaitlistStatusWaiting: {
		WaitlistStatusNotified,
		WaitlistStatusSeated,
		WaitlistStatusLeft,
		WaitlistStatusCancelled,
	},
	WaitlistStatusNotified: {
		WaitlistStatusSeated,
		WaitlistStatusLeft,
		WaitlistStatusCancelled,
	},
	WaitlistStatusSeated:    nil,
	WaitlistStatusLeft:      nil,
	WaitlistStatusCancelled: nil,
}

func WaitlistStatuses() []WaitlistStatus {
	return []WaitlistStatus{
		WaitlistStatusWaiting,
		WaitlistStatusNotified,
		WaitlistStatusSeated,
		WaitlistStatusLeft,
		WaitlistStatusCancelled,
	}
}

// ActiveWaitlistStatuses are the statuses of parties still physically waiting.
func ActiveWaitlistStatuses() []WaitlistStatus {
	return []WaitlistStatus{WaitlistStatusWaiting, WaitlistStatusNotified}
}

func ParseWaitlistStatus(s string) (WaitlistStatus, error) {
	st := WaitlistStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown waitlist status %q", s)
	}
	return st, nil
}

func (s WaitlistStatus) Valid() bool {
	_, ok := waitlistTransitions[s]
	return ok
}

func (s WaitlistStatus) Terminal() bool {
	return s.Valid() && len(waitlistTransitions[s]) == 0
}

func (s WaitlistStatus) CanTransitionTo(to WaitlistStatus) bool {
	for _, allowed := range waitlistTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

func ValidateWaitlistTransition(from, to WaitlistStatus) error {
	if from.CanTransitionTo(to) {
		return nil
	}
	return &TransitionError{Kind: "waitlist entry", From: string(from), To: string(to)}
}

type BookingSource string

const (
	BookingSourceOnline BookingSource = "ONLINE"
	BookingSourcePhone  BookingSource = "PHONE"
	BookingSourceWalkIn BookingSource = "WALKIN"
	BookingSourceKiosk  BookingSource = "KIOSK"
)

func ParseBookingSource(s string) (BookingSource, error) {
	src := BookingSource(strings.ToUpper(strings.TrimSpace(s)))
	if !src.Valid() {
		return "", fmt.Errorf("unknown booking source %q", s)
	}
	return src, nil
}

func (s BookingSource) Valid() bool {
	switch s {
	case BookingSourceOnline, BookingSourcePhone, BookingSourceWalkIn, BookingSourceKiosk:
		return true
	}
	return false
}
