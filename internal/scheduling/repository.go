package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPractitionerNotFound = errors.New("practitioner not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")

	// ErrSlotTaken means another live appointment already holds the
	// (practitioner, date, slot) tuple. The store is the arbiter: the
	// unique index rejects the second writer, it never overwrites.
	ErrSlotTaken = errors.New("slot already has a live appointment")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetPractitionerByID(ctx context.Context, id uuid.UUID) (*Practitioner, error)
	ListPractitioners(ctx context.Context) ([]Practitioner, error)

	// BookedSlots lists slots held by a demande or confirme appointment.
	BookedSlots(ctx context.Context, practitionerID uuid.UUID, date time.Time) ([]Slot, error)

	// CreateAppointment performs the atomic check-and-insert against the
	// uniqueness invariant and returns ErrSlotTaken when it loses.
	CreateAppointment(ctx context.Context, appt *Appointment) (*Appointment, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// UpdateAppointmentStatus is a conditional write: it only succeeds when
	// the record is still in the from status, otherwise ErrAppointmentNotFound.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status, refusalReason *string) (*Appointment, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error)
	ListByPractitioner(ctx context.Context, practitionerID uuid.UUID) ([]Appointment, error)
	ListAll(ctx context.Context) ([]Appointment, error)

	// FindConfirmedBefore feeds the completion sweep.
	FindConfirmedBefore(ctx context.Context, day time.Time) ([]Appointment, error)

	// InsertEvent appends to the evenements audit trail. Best-effort from the
	// service's point of view; a failed insert never rolls back the commit it
	// describes.
	InsertEvent(ctx context.Context, ev Event) error
}
