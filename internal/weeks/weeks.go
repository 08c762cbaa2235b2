package weeks

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// WeekStart names the weekday on which a tracked week begins.
type WeekStart string

const (
	// Monday starts weeks on Monday (ISO convention).
	Monday WeekStart = "MONDAY"
	// Sunday starts weeks on Sunday.
	Sunday WeekStart = "SUNDAY"
)

// Evaluation runs at this local wall-clock time on the start weekday.
const (
	EvaluationHour   = 0
	EvaluationMinute = 5
)

var (
	// ErrInvalidWeekStart indicates an unrecognized week start value.
	ErrInvalidWeekStart = errors.New("weeks: invalid week start")
	// ErrInvalidTimezone indicates an empty or unknown IANA timezone identifier.
	ErrInvalidTimezone = errors.New("weeks: invalid timezone")
)

// ParseWeekStart normalizes raw input into a WeekStart. MON/MONDAY and SUN/SUNDAY are
// accepted in any case; everything else is rejected.
func ParseWeekStart(raw string) (WeekStart, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "MON", string(Monday):
		return Monday, nil
	case "SUN", string(Sunday):
		return Sunday, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidWeekStart, raw)
	}
}

// Weekday returns the time.Weekday the week begins on.
func (w WeekStart) Weekday() time.Weekday {
	if w == Sunday {
		return time.Sunday
	}
	return time.Monday
}

func (w WeekStart) String() string {
	return string(w)
}

// LoadLocation resolves an IANA zone name. Unlike time.LoadLocation it refuses the empty
// string and "Local", both of which would silently bind to a process-dependent zone.
func LoadLocation(name string) (*time.Location, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || trimmed == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}
	loc, err := time.LoadLocation(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTimezone, name, err)
	}
	return loc, nil
}

// CurrentWeekStart returns the local date of the most recent start weekday at or before now,
// observed in loc.
func CurrentWeekStart(loc *time.Location, ws WeekStart, now time.Time) Date {
	local := now.In(loc)
	offset := (int(local.Weekday()) - int(ws.Weekday()) + 7) % 7
	return DateOf(local).AddDays(-offset)
}

// PreviousWeekStart returns the start date of the week before the current one.
func PreviousWeekStart(loc *time.Location, ws WeekStart, now time.Time) Date {
	return CurrentWeekStart(loc, ws, now).AddDays(-7)
}

// NextEvaluation returns the next 00:05 local time on the start weekday. An instant exactly on
// the boundary is returned unchanged. When 00:05 does not exist on that date because the clocks
// jump forward across it, the first instant of the date after the jump is used instead.
func NextEvaluation(loc *time.Location, ws WeekStart, now time.Time) time.Time {
	today := DateOf(now.In(loc))
	for i := 0; i <= 7; i++ {
		candidate := today.AddDays(i)
		if candidate.Weekday() != ws.Weekday() {
			continue
		}
		at := evaluationInstant(loc, candidate)
		if !at.Before(now) {
			return at
		}
	}
	// unreachable: the start weekday recurs within 8 consecutive dates.
	return evaluationInstant(loc, today.AddDays(7))
}

func evaluationInstant(loc *time.Location, date Date) time.Time {
	at := time.Date(date.Year, date.Month, date.Day, EvaluationHour, EvaluationMinute, 0, 0, loc)
	local := at.In(loc)
	if DateOf(local) == date && local.Hour() == EvaluationHour && local.Minute() == EvaluationMinute {
		return at
	}
	// The wall time fell into a gap and was normalized to the other side of it. The zone
	// boundary next to at is the gap itself.
	start, end := at.ZoneBounds()
	if DateOf(local) != date && !end.IsZero() {
		return end
	}
	if !start.IsZero() {
		return start
	}
	return at
}
