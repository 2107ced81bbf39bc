package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

var techA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")

func TestNewWeeklySchedule_RejectsDuplicateDay(t *testing.T) {
	_, err := NewWeeklySchedule(techA, []ScheduleTemplateEntry{
		{TechnicianID: techA, DayOfWeek: time.Monday, StartMinute: 540, EndMinute: 1140, IsWorking: true},
		{TechnicianID: techA, DayOfWeek: time.Monday, StartMinute: 600, EndMinute: 1000, IsWorking: true},
	})
	if err == nil {
		t.Fatalf("expected duplicate error")
	}
}

func TestNewWeeklySchedule_IgnoresHoursWhenNotWorking(t *testing.T) {
	ws, err := NewWeeklySchedule(techA, []ScheduleTemplateEntry{
		{TechnicianID: techA, DayOfWeek: time.Sunday, StartMinute: 900, EndMinute: 100, IsWorking: false},
	})
	if err != nil {
		t.Fatalf("NewWeeklySchedule error: %v", err)
	}
	sunday := Date{Year: 2026, Month: time.March, Day: 1}
	if _, ok := ws.WorkingWindow(sunday, time.UTC); ok {
		t.Fatalf("expected no working window on a day off")
	}
}

func TestWeeklySchedule_WorkingWindowUsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatalf("LoadLocation error: %v", err)
	}
	ws, err := NewWeeklySchedule(techA, []ScheduleTemplateEntry{
		{TechnicianID: techA, DayOfWeek: time.Monday, StartMinute: 9 * 60, EndMinute: 19 * 60, IsWorking: true},
	})
	if err != nil {
		t.Fatalf("NewWeeklySchedule error: %v", err)
	}

	monday := Date{Year: 2026, Month: time.March, Day: 2}
	w, ok := ws.WorkingWindow(monday, loc)
	if !ok {
		t.Fatalf("expected a working window")
	}
	if got := w.Start.UTC(); !got.Equal(time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC)) {
		t.Fatalf("start = %v, want 17:00 UTC", got)
	}
	if w.Duration() != 10*time.Hour {
		t.Fatalf("duration = %v, want 10h", w.Duration())
	}

	tuesday := Date{Year: 2026, Month: time.March, Day: 3}
	if _, ok := ws.WorkingWindow(tuesday, loc); ok {
		t.Fatalf("expected no window for a day without an entry")
	}
}

func TestWeeklySchedule_DSTKeepsWallClock(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation error: %v", err)
	}
	ws, err := NewWeeklySchedule(techA, []ScheduleTemplateEntry{
		{TechnicianID: techA, DayOfWeek: time.Sunday, StartMinute: 0, EndMinute: 6 * 60, IsWorking: true},
	})
	if err != nil {
		t.Fatalf("NewWeeklySchedule error: %v", err)
	}

	// 2026-03-08 is the spring-forward Sunday in the US.
	w, ok := ws.WorkingWindow(Date{Year: 2026, Month: time.March, Day: 8}, loc)
	if !ok {
		t.Fatalf("expected a working window")
	}
	if w.Duration() != 5*time.Hour {
		t.Fatalf("duration = %v, want 5h across spring-forward", w.Duration())
	}
}

func TestDateBoundsAndParse(t *testing.T) {
	d, err := ParseDate("2026-03-02")
	if err != nil {
		t.Fatalf("ParseDate error: %v", err)
	}
	if d.Weekday() != time.Monday {
		t.Fatalf("weekday = %v, want Monday", d.Weekday())
	}
	b := d.Bounds(time.UTC)
	if b.Duration() != 24*time.Hour {
		t.Fatalf("bounds duration = %v", b.Duration())
	}
	if d.String() != "2026-03-02" {
		t.Fatalf("String = %q", d.String())
	}
	if _, err := ParseDate("03/02/2026"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"09:00", 540, true},
		{"19:30", 1170, true},
		{"24:00", 1440, true},
		{"9am", 0, false},
	}
	for _, tc := range tests {
		got, err := ParseClock(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("ParseClock(%q) = %d, %v; want %d", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Fatalf("ParseClock(%q) expected error", tc.in)
		}
	}
	if FormatClock(545) != "09:05" {
		t.Fatalf("FormatClock(545) = %q", FormatClock(545))
	}
}

func TestNormalizePhone(t *testing.T) {
	if got := NormalizePhone("(408) 555-1234"); got != "4085551234" {
		t.Fatalf("NormalizePhone = %q", got)
	}
}
