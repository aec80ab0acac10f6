package scheduling

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SlotMinutes is the grid granularity of a practitioner's day.
const SlotMinutes = 30

// DateLayout is the wire format for appointment dates.
const DateLayout = "2006-01-02"

// Slot is a time of day expressed as minutes since midnight, always aligned
// to the booking grid. The wire format is "HH:MM".
type Slot int

// ParseSlot parses "HH:MM" into a Slot.
func ParseSlot(s string) (Slot, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid slot %q", s)
	}

	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid slot hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid slot minute in %q", s)
	}

	slot := Slot(h*60 + m)
	if int(slot)%SlotMinutes != 0 {
		return 0, fmt.Errorf("slot %q is not on a %d-minute boundary", s, SlotMinutes)
	}
	return slot, nil
}

func (s Slot) String() string {
	return fmt.Sprintf("%02d:%02d", int(s)/60, int(s)%60)
}

func (s Slot) Minutes() int {
	return int(s)
}

// ParseDate parses a wire date into a midnight time in the given location.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// DayOf truncates t to midnight in its own location.
func DayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
