package engine

import (
	"sort"
	"strings"
	"time"
)

// Schedule is an optional weekly slot as received from callers. All three
// fields absent means unscheduled; a partial schedule is rejected.
type Schedule struct {
	Days  []string `json:"days,omitempty"`
	Start string   `json:"start_time,omitempty"`
	End   string   `json:"end_time,omitempty"`
}

// IsZero reports whether no schedule field is present.
func (s Schedule) IsZero() bool {
	return len(s.Days) == 0 && strings.TrimSpace(s.Start) == "" && strings.TrimSpace(s.End) == ""
}

// TimeSlot is a parsed schedule: a weekday set and a half-open [Start, End) minute range.
type TimeSlot struct {
	Days  map[time.Weekday]struct{}
	Start int
	End   int
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

var clockLayouts = []string{"15:04", "15:04:05", "3:04 PM", "3:04PM", "3:04 pm", "3:04pm"}

// ParseSchedule validates s. It returns nil, nil for an absent schedule.
func ParseSchedule(s Schedule) (*TimeSlot, error) {
	if s.IsZero() {
		return nil, nil
	}
	if len(s.Days) == 0 || strings.TrimSpace(s.Start) == "" || strings.TrimSpace(s.End) == "" {
		return nil, validationError("incomplete schedule")
	}

	slot := &TimeSlot{Days: make(map[time.Weekday]struct{}, len(s.Days))}
	for _, raw := range s.Days {
		day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(raw))]
		if !ok {
			return nil, validationError("invalid day %q", raw)
		}
		slot.Days[day] = struct{}{}
	}

	var err error
	if slot.Start, err = parseClock(s.Start); err != nil {
		return nil, err
	}
	if slot.End, err = parseClock(s.End); err != nil {
		return nil, err
	}
	if slot.Start >= slot.End {
		return nil, validationError("start time must be before end time")
	}
	return slot, nil
}

func parseClock(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Hour()*60 + t.Minute(), nil
		}
	}
	return 0, validationError("invalid time format")
}

// Overlaps reports whether both slots share a day and their intervals intersect.
// Touching endpoints do not overlap.
func (t *TimeSlot) Overlaps(other *TimeSlot) bool {
	if t == nil || other == nil {
		return false
	}
	shared := false
	for d := range t.Days {
		if _, ok := other.Days[d]; ok {
			shared = true
			break
		}
	}
	if !shared {
		return false
	}
	return t.Start < other.End && t.End > other.Start
}

// Normalized renders the slot back to canonical form: full lower-case day names
// in week order and 24-hour HH:MM clocks.
func (t *TimeSlot) Normalized() Schedule {
	if t == nil {
		return Schedule{}
	}
	days := make([]time.Weekday, 0, len(t.Days))
	for d := range t.Days {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = strings.ToLower(d.String())
	}
	return Schedule{Days: names, Start: formatClock(t.Start), End: formatClock(t.End)}
}

func formatClock(minutes int) string {
	return time.Date(0, 1, 1, minutes/60, minutes%60, 0, 0, time.UTC).Format("15:04")
}

// Conflicts reports whether candidate overlaps any of existing. Unscheduled
// entries never conflict; malformed entries on either side are an error.
func Conflicts(existing []Schedule, candidate Schedule) (bool, error) {
	idx, err := FirstConflict(existing, candidate)
	return idx >= 0, err
}

// FirstConflict returns the index of the first existing schedule that overlaps
// candidate, or -1.
func FirstConflict(existing []Schedule, candidate Schedule) (int, error) {
	slot, err := ParseSchedule(candidate)
	if err != nil {
		return -1, err
	}
	if slot == nil {
		return -1, nil
	}
	for i, e := range existing {
		other, err := ParseSchedule(e)
		if err != nil {
			return -1, err
		}
		if slot.Overlaps(other) {
			return i, nil
		}
	}
	return -1, nil
}
