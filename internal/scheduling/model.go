package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// Status values are the product's wire vocabulary.
type Status string

const (
	StatusNone      Status = ""
	StatusRequested Status = "demande"
	StatusConfirmed Status = "confirme"
	StatusRefused   Status = "refuse"
	StatusCancelled Status = "annule"
	StatusCompleted Status = "termine"
)

// Terminal reports whether no further transition may leave the status.
func (s Status) Terminal() bool {
	switch s {
	case StatusRefused, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Live reports whether the appointment still occupies its slot.
func (s Status) Live() bool {
	return s == StatusRequested || s == StatusConfirmed
}

type Role string

const (
	RolePatient      Role = "patient"
	RolePractitioner Role = "medecin"
	RoleSecretary    Role = "secretaire"
	RoleAdmin        Role = "admin"
	RoleSystem       Role = "system"
)

// Event types written to the evenements audit trail, one per lifecycle
// commit.
const (
	EventAppointmentRequested = "APPOINTMENT_REQUESTED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentRefused   = "APPOINTMENT_REFUSED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
)

// Event is one audit-trail entry. The payload carries whatever context the
// commit had (actor role, from/to statuses) as JSON.
type Event struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// eventTypeFor maps a committed target status to its audit event.
var eventTypeFor = map[Status]string{
	StatusRequested: EventAppointmentRequested,
	StatusConfirmed: EventAppointmentConfirmed,
	StatusRefused:   EventAppointmentRefused,
	StatusCancelled: EventAppointmentCancelled,
	StatusCompleted: EventAppointmentCompleted,
}

// DefaultRefusalReason is written when a practitioner refuses without one.
const DefaultRefusalReason = "practitioner unavailable"

// DefaultReason is written when a booking carries no motif.
const DefaultReason = "Consultation"

type Practitioner struct {
	ID        uuid.UUID
	LastName  string
	FirstName string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID             uuid.UUID
	PractitionerID uuid.UUID
	PatientID      uuid.UUID
	Date           time.Time
	Slot           Slot
	Reason         string
	Status         Status
	RefusalReason  *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WorkingHours is a practitioner's bookable-day policy.
type WorkingHours struct {
	Open       Slot
	Close      Slot
	ClosedDays []time.Weekday
}

// DefaultWorkingHours is the clinic default: Monday to Saturday,
// 08:00 to 18:00, closed Sunday.
func DefaultWorkingHours() WorkingHours {
	return WorkingHours{
		Open:       Slot(8 * 60),
		Close:      Slot(18 * 60),
		ClosedDays: []time.Weekday{time.Sunday},
	}
}

func (w WorkingHours) ClosedOn(day time.Weekday) bool {
	for _, d := range w.ClosedDays {
		if d == day {
			return true
		}
	}
	return false
}

// Grid returns every bookable slot of an open day, in order.
func (w WorkingHours) Grid() []Slot {
	var slots []Slot
	for s := w.Open; s < w.Close; s += SlotMinutes {
		slots = append(slots, s)
	}
	return slots
}

// Contains reports whether the slot is on the policy's grid.
func (w WorkingHours) Contains(slot Slot) bool {
	return slot >= w.Open && slot < w.Close && slot.Minutes()%SlotMinutes == 0
}

// DegradedGrid is served when the availability query fails: the morning and
// afternoon blocks around the lunch break, 08:00-11:30 and 14:00-17:30.
func DegradedGrid() []Slot {
	var slots []Slot
	for s := Slot(8 * 60); s <= Slot(11*60+30); s += SlotMinutes {
		slots = append(slots, s)
	}
	for s := Slot(14 * 60); s <= Slot(17*60+30); s += SlotMinutes {
		slots = append(slots, s)
	}
	return slots
}
