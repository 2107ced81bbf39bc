package domain

import (
	"errors"
	"testing"
)

func TestValidateTransition_AllowedMoves(t *testing.T) {
	allowed := []struct {
		from AppointmentStatus
		to   AppointmentStatus
	}{
		{AppointmentStatusBooked, AppointmentStatusConfirmed},
		{AppointmentStatusBooked, AppointmentStatusCancelled},
		{AppointmentStatusBooked, AppointmentStatusNoShow},
		{AppointmentStatusConfirmed, AppointmentStatusCompleted},
		{AppointmentStatusConfirmed, AppointmentStatusNoShow},
		{AppointmentStatusConfirmed, AppointmentStatusCancelled},
	}
	for _, tc := range allowed {
		if err := ValidateTransition(tc.from, tc.to); err != nil {
			t.Fatalf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
		}
	}
}

func TestValidateTransition_RejectsEverythingElse(t *testing.T) {
	allowed := map[[2]AppointmentStatus]bool{
		{AppointmentStatusBooked, AppointmentStatusConfirmed}:    true,
		{AppointmentStatusBooked, AppointmentStatusCancelled}:    true,
		{AppointmentStatusBooked, AppointmentStatusNoShow}:       true,
		{AppointmentStatusConfirmed, AppointmentStatusCompleted}: true,
		{AppointmentStatusConfirmed, AppointmentStatusNoShow}:    true,
		{AppointmentStatusConfirmed, AppointmentStatusCancelled}: true,
	}

	for _, from := range AppointmentStatuses() {
		for _, to := range AppointmentStatuses() {
			if allowed[[2]AppointmentStatus{from, to}] {
				continue
			}
			err := ValidateTransition(from, to)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("%s -> %s: err = %v, want ErrInvalidTransition", from, to, err)
			}
		}
	}
}

func TestValidateTransition_TerminalStatesAreClosed(t *testing.T) {
	terminal := []AppointmentStatus{AppointmentStatusCompleted, AppointmentStatusNoShow, AppointmentStatusCancelled}
	for _, from := range terminal {
		if !from.Terminal() {
			t.Fatalf("%s should be terminal", from)
		}
		if from.Busy() {
			t.Fatalf("%s must not count as busy", from)
		}
		for _, to := range AppointmentStatuses() {
			err := ValidateTransition(from, to)
			var tErr *TransitionError
			if !errors.As(err, &tErr) {
				t.Fatalf("%s -> %s: error type = %T, want *TransitionError", from, to, err)
			}
			if tErr.From != string(from) || tErr.To != string(to) {
				t.Fatalf("transition error = %+v", tErr)
			}
		}
	}
}

func TestValidateTransition_UnknownStatus(t *testing.T) {
	if err := ValidateTransition("ARCHIVED", AppointmentStatusBooked); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	if err := ValidateTransition(AppointmentStatusBooked, "ARCHIVED"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestParseAppointmentStatus(t *testing.T) {
	got, err := ParseAppointmentStatus(" confirmed ")
	if err != nil {
		t.Fatalf("ParseAppointmentStatus error: %v", err)
	}
	if got != AppointmentStatusConfirmed {
		t.Fatalf("status = %q, want %q", got, AppointmentStatusConfirmed)
	}
	if _, err := ParseAppointmentStatus("pending"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestValidateWaitlistTransition(t *testing.T) {
	tests := []struct {
		from WaitlistStatus
		to   WaitlistStatus
		ok   bool
	}{
		{WaitlistStatusWaiting, WaitlistStatusNotified, true},
		{WaitlistStatusWaiting, WaitlistStatusSeated, true},
		{WaitlistStatusNotified, WaitlistStatusSeated, true},
		{WaitlistStatusWaiting, WaitlistStatusLeft, true},
		{WaitlistStatusNotified, WaitlistStatusCancelled, true},
		{WaitlistStatusNotified, WaitlistStatusNotified, false},
		{WaitlistStatusNotified, WaitlistStatusWaiting, false},
		{WaitlistStatusSeated, WaitlistStatusSeated, false},
		{WaitlistStatusSeated, WaitlistStatusLeft, false},
		{WaitlistStatusLeft, WaitlistStatusCancelled, false},
		{WaitlistStatusCancelled, WaitlistStatusWaiting, false},
	}
	for _, tc := range tests {
		err := ValidateWaitlistTransition(tc.from, tc.to)
		if tc.ok && err != nil {
			t.Fatalf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s -> %s: err = %v, want ErrInvalidTransition", tc.from, tc.to, err)
		}
	}
}

func TestParseBookingSource(t *testing.T) {
	for _, s := range []string{"online", "PHONE", "walkin", "Kiosk"} {
		if _, err := ParseBookingSource(s); err != nil {
			t.Fatalf("ParseBookingSource(%q) error: %v", s, err)
		}
	}
	if _, err := ParseBookingSource("fax"); err == nil {
		t.Fatalf("expected error for unknown source")
	}
}
