package alerts

import (
	"fmt"
	"time"
)

// QuietHours is a daily window during which low-priority alerts are held back.
// The window may wrap midnight (22:00–07:00).
type QuietHours struct {
	Enabled  bool
	Start    time.Duration // offset from midnight
	End      time.Duration
	Location *time.Location
}

// ParseQuietHours builds a window from "HH:MM" bounds. Equal bounds disable it.
func ParseQuietHours(start, end string, loc *time.Location) (QuietHours, error) {
	s, err := parseClock(start)
	if err != nil {
		return QuietHours{}, fmt.Errorf("quiet hours start: %w", err)
	}
	e, err := parseClock(end)
	if err != nil {
		return QuietHours{}, fmt.Errorf("quiet hours end: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	return QuietHours{Enabled: s != e, Start: s, End: e, Location: loc}, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q, want HH:MM", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Contains reports whether t falls inside the window. Start is inclusive, end exclusive.
func (q QuietHours) Contains(t time.Time) bool {
	if !q.Enabled {
		return false
	}
	if q.Location != nil {
		t = t.In(q.Location)
	}
	offset := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second

	if q.Start < q.End {
		return offset >= q.Start && offset < q.End
	}
	// wraps midnight
	return offset >= q.Start || offset < q.End
}

// String renders the window as HH:MM-HH:MM
func (q QuietHours) String() string {
	if !q.Enabled {
		return "disabled"
	}
	return fmt.Sprintf("%s-%s", clock(q.Start), clock(q.End))
}

func clock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}
