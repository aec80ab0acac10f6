package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-scheduling/internal/account"
	"github.com/clinicore/clinic-scheduling/internal/auth"
	"github.com/clinicore/clinic-scheduling/internal/scheduling"
)

// Phase is where an intent sits in the orchestrator's own lifecycle.
type Phase string

const (
	PhaseComposing        Phase = "composing"
	PhaseAwaitingIdentity Phase = "awaitingIdentity"
	PhaseSubmitting       Phase = "submitting"
	PhaseCommitted        Phase = "committed"
	PhaseFailed           Phase = "failed"
)

// Intent is the not-yet-committed description of a desired appointment. It
// lives until the request is either committed or abandoned; only its
// intent-id -> appointment-id binding is ever stored server-side.
type Intent struct {
	ID             uuid.UUID
	PractitionerID uuid.UUID             `validate:"required"`
	Date           time.Time             `validate:"required"`
	Slot           scheduling.Slot       `validate:"min=0"`
	Reason         string                // optional, defaulted downstream
	Registration   *account.Registration // present when the requester has no account yet

	phase     Phase
	resolved  *auth.Identity
	committed *scheduling.Appointment
	lastErr   error
}

// NewIntent builds a composing intent with a fresh idempotency ID.
func NewIntent(practitionerID uuid.UUID, date time.Time, slot scheduling.Slot, reason string) *Intent {
	return &Intent{
		ID:             uuid.New(),
		PractitionerID: practitionerID,
		Date:           date,
		Slot:           slot,
		Reason:         reason,
		phase:          PhaseComposing,
	}
}

func (i *Intent) Phase() Phase {
	if i.phase == "" {
		return PhaseComposing
	}
	return i.phase
}

// Resolve attaches the identity minted for this intent. The account outlives
// any one submit attempt: a retry after a slot conflict books with it instead
// of registering the same email twice.
func (i *Intent) Resolve(identity *auth.Identity) {
	i.resolved = identity
}

// ResolvedIdentity returns the identity created for this intent, if any.
func (i *Intent) ResolvedIdentity() *auth.Identity {
	return i.resolved
}

// Committed returns the appointment this intent produced, if any.
func (i *Intent) Committed() *scheduling.Appointment {
	return i.committed
}

// LastErr is the error attached for display after a recoverable failure.
func (i *Intent) LastErr() error {
	return i.lastErr
}

func (i *Intent) fail(err error, recoverTo Phase) error {
	i.phase = recoverTo
	i.lastErr = err
	return err
}

func (i *Intent) commit(appt *scheduling.Appointment) {
	i.committed = appt
	i.phase = PhaseCommitted
	i.lastErr = nil
}
