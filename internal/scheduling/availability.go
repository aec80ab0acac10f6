package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BookedSlotSource answers which slots of a practitioner's day are held by a
// live appointment.
type BookedSlotSource interface {
	BookedSlots(ctx context.Context, practitionerID uuid.UUID, date time.Time) ([]Slot, error)
}

// Availability is the answer to "what can I book for this doctor on this
// date". Degraded means the store could not be asked and the fallback grid
// is being served; a stale pick then bounces at commit time instead.
type Availability struct {
	Date     time.Time
	Slots    []Slot
	Degraded bool
}

type AvailabilityCalculator struct {
	src   BookedSlotSource
	hours WorkingHours
	log   *zap.Logger
	now   func() time.Time
}

func NewAvailabilityCalculator(src BookedSlotSource, hours WorkingHours, log *zap.Logger) *AvailabilityCalculator {
	return &AvailabilityCalculator{
		src:   src,
		hours: hours,
		now:   time.Now,
		log:   log,
	}
}

// AvailableSlots returns the bookable slots for a practitioner on a date.
// Past dates and closed weekdays yield an empty set, not an error: they are
// simply non-bookable days. Repeated calls are idempotent modulo concurrent
// bookings elsewhere.
func (c *AvailabilityCalculator) AvailableSlots(ctx context.Context, practitionerID uuid.UUID, date time.Time) Availability {
	day := DayOf(date)
	avail := Availability{Date: day}

	if day.Before(DayOf(c.now())) {
		return avail
	}
	if c.hours.ClosedOn(day.Weekday()) {
		return avail
	}

	booked, err := c.src.BookedSlots(ctx, practitionerID, day)
	if err != nil {
		c.log.Warn("availability query failed, serving degraded grid",
			zap.String("practitioner_id", practitionerID.String()),
			zap.String("date", day.Format(DateLayout)),
			zap.Error(err),
		)
		avail.Slots = DegradedGrid()
		avail.Degraded = true
		return avail
	}

	taken := make(map[Slot]struct{}, len(booked))
	for _, s := range booked {
		taken[s] = struct{}{}
	}

	for _, s := range c.hours.Grid() {
		if _, ok := taken[s]; !ok {
			avail.Slots = append(avail.Slots, s)
		}
	}
	return avail
}
