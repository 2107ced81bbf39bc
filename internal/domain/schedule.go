package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ScheduleTemplateEntry is one technician's recurring working hours for one
// weekday. StartMinute/EndMinute are minutes after local midnight and are
// ignored when IsWorking is false.
type ScheduleTemplateEntry struct {
	bun.BaseModel `bun:"table:technician_schedules"`

	TechnicianID uuid.UUID    `bun:"technician_id,pk,type:uuid"`
	DayOfWeek    time.Weekday `bun:"day_of_week,pk"`
	StartMinute  int          `bun:"start_minute,notnull"`
	EndMinute    int          `bun:"end_minute,notnull"`
	IsWorking    bool         `bun:"is_working,notnull"`
}

func (e ScheduleTemplateEntry) Validate() error {
	if e.DayOfWeek < time.Sunday || e.DayOfWeek > time.Saturday {
		return fmt.Errorf("day_of_week %d out of range", e.DayOfWeek)
	}
	if !e.IsWorking {
		return nil
	}
	if e.StartMinute < 0 || e.EndMinute > 24*60 {
		return errors.New("working hours must fall within the day")
	}
	if e.EndMinute <= e.StartMinute {
		return errors.New("end must be after start")
	}
	return nil
}

// Window returns the working window on date in loc. Wall-clock hours are
// resolved per date, so DST changes shift the UTC instants, not the local hours.
func (e ScheduleTemplateEntry) Window(date Date, loc *time.Location) (Interval, bool) {
	if !e.IsWorking || date.Weekday() != e.DayOfWeek {
		return Interval{}, false
	}
	start := time.Date(date.Year, date.Month, date.Day, e.StartMinute/60, e.StartMinute%60, 0, 0, loc)
	end := time.Date(date.Year, date.Month, date.Day, e.EndMinute/60, e.EndMinute%60, 0, 0, loc)
	w := Interval{Start: start, End: end}
	return w, w.Valid()
}

// WeeklySchedule is a technician's template keyed by weekday.
type WeeklySchedule struct {
	TechnicianID uuid.UUID
	days         map[time.Weekday]ScheduleTemplateEntry
}

func NewWeeklySchedule(technicianID uuid.UUID, entries []ScheduleTemplateEntry) (WeeklySchedule, error) {
	ws := WeeklySchedule{
		TechnicianID: technicianID,
		days:         make(map[time.Weekday]ScheduleTemplateEntry, len(entries)),
	}
	for _, e := range entries {
		if e.TechnicianID != technicianID {
			return WeeklySchedule{}, fmt.Errorf("entry for technician %s in schedule of %s", e.TechnicianID, technicianID)
		}
		if err := e.Validate(); err != nil {
			return WeeklySchedule{}, err
		}
		if _, dup := ws.days[e.DayOfWeek]; dup {
			return WeeklySchedule{}, fmt.Errorf("duplicate schedule entry for %s", e.DayOfWeek)
		}
		ws.days[e.DayOfWeek] = e
	}
	return ws, nil
}

func (ws WeeklySchedule) Entry(day time.Weekday) (ScheduleTemplateEntry, bool) {
	e, ok := ws.days[day]
	return e, ok
}

// WorkingWindow returns the working window on date, or false when the
// technician has no entry or is off that day.
func (ws WeeklySchedule) WorkingWindow(date Date, loc *time.Location) (Interval, bool) {
	e, ok := ws.days[date.Weekday()]
	if !ok {
		return Interval{}, false
	}
	return e.Window(date, loc)
}

// Date is a calendar day with no location attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).Weekday()
}

// Bounds returns local midnight-to-midnight for d in loc.
func (d Date) Bounds(loc *time.Location) Interval {
	start := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
	end := time.Date(d.Year, d.Month, d.Day+1, 0, 0, 0, 0, loc)
	return Interval{Start: start, End: end}
}

func (d Date) String() string {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Format(dateLayout)
}

// ParseClock parses "HH:MM" into minutes after midnight. "24:00" is allowed
// as an end-of-day marker.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "24:00" {
		return 24 * 60, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: want HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
