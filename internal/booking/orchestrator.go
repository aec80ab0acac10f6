package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicore/clinic-scheduling/internal/account"
	"github.com/clinicore/clinic-scheduling/internal/auth"
	"github.com/clinicore/clinic-scheduling/internal/redisclient"
	"github.com/clinicore/clinic-scheduling/internal/scheduling"
)

var (
	// ErrValidation means required intent fields are missing; the intent
	// never reaches the store.
	ErrValidation = errors.New("booking intent is incomplete")

	// ErrIdentityRequired means there is neither a session identity nor a
	// registration payload to mint one from.
	ErrIdentityRequired = errors.New("no identity and no registration payload")

	// ErrIdentityResolution wraps a failed registration; the intent is
	// preserved so the user can fix the fields and retry.
	ErrIdentityResolution = errors.New("could not create an account for this booking")

	// ErrSubmitInFlight rejects a second Submit of an intent that is still
	// being processed (a UI double-click racing itself).
	ErrSubmitInFlight = errors.New("this booking is already being submitted")
)

// Submitter is the slice of the scheduling service the orchestrator needs.
type Submitter interface {
	Request(ctx context.Context, actor scheduling.Actor, req scheduling.CreateRequest) (*scheduling.Appointment, error)
	Find(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error)
}

// Registrar creates accounts for anonymous requesters.
type Registrar interface {
	Register(ctx context.Context, reg account.Registration) (*account.Account, error)
}

// Orchestrator drives a BookingIntent from user selection to a committed
// appointment, creating an account first when the requester has none.
// Submission is exactly-once per intent: replays return the appointment the
// intent already produced.
type Orchestrator struct {
	appointments Submitter
	accounts     Registrar
	ledger       redisclient.IntentLedger
	validate     *validator.Validate
	log          *zap.Logger

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
}

func NewOrchestrator(appointments Submitter, accounts Registrar, ledger redisclient.IntentLedger, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		appointments: appointments,
		accounts:     accounts,
		ledger:       ledger,
		validate:     validator.New(),
		log:          log,
		inFlight:     make(map[uuid.UUID]struct{}),
	}
}

// Submit runs the intent through composing -> awaitingIdentity -> submitting
// -> committed. Registration, when needed, completes and is reflected in the
// identity before the appointment call is issued; the ordering holds under
// retry. A committed intent is a no-op returning the existing appointment.
func (o *Orchestrator) Submit(ctx context.Context, intent *Intent, identity *auth.Identity) (*scheduling.Appointment, error) {
	if intent.ID == uuid.Nil {
		intent.ID = uuid.New()
	}

	if !o.begin(intent.ID) {
		return nil, ErrSubmitInFlight
	}
	defer o.end(intent.ID)

	// Replay of an intent this process already committed.
	if appt := intent.Committed(); appt != nil {
		return appt, nil
	}

	// Replay of an intent committed elsewhere (the resolved-identity signal
	// racing the user-visible submit, or another node).
	if appt, ok := o.replay(ctx, intent); ok {
		return appt, nil
	}

	if err := o.validate.Struct(intent); err != nil {
		return nil, intent.fail(fmt.Errorf("%w: %s", ErrValidation, err), PhaseComposing)
	}

	// A previous attempt may have minted the account already; a conflict or
	// transient failure after that point must not register the email twice.
	if identity == nil {
		identity = intent.resolved
	}

	if identity == nil {
		intent.phase = PhaseAwaitingIdentity

		if intent.Registration == nil {
			return nil, intent.fail(ErrIdentityRequired, PhaseComposing)
		}

		acct, err := o.accounts.Register(ctx, *intent.Registration)
		if err != nil {
			if errors.Is(err, account.ErrEmailTaken) || errors.Is(err, account.ErrInvalidRegistration) {
				// Recoverable: intent fields are kept as-is for the retry.
				return nil, intent.fail(fmt.Errorf("%w: %s", ErrIdentityResolution, err), PhaseComposing)
			}
			// Transient: stay in awaitingIdentity, safe to retry the step.
			intent.lastErr = err
			return nil, fmt.Errorf("register account: %w", err)
		}

		identity = &auth.Identity{UserID: acct.ID, Role: scheduling.RolePatient}
		intent.resolved = identity
		o.log.Info("identity resolved for booking intent",
			zap.String("intent_id", intent.ID.String()),
			zap.String("account_id", acct.ID.String()),
		)
	}

	intent.phase = PhaseSubmitting

	appt, err := o.appointments.Request(ctx, scheduling.Actor{ID: identity.UserID, Role: identity.Role}, scheduling.CreateRequest{
		PractitionerID: intent.PractitionerID,
		PatientID:      identity.UserID,
		Date:           intent.Date,
		Slot:           intent.Slot,
		Reason:         intent.Reason,
	})
	if err != nil {
		if errors.Is(err, scheduling.ErrSlotTaken) {
			// The conflict may be this very intent, committed by a racing
			// submit that won the slot first.
			if existing, ok := o.replay(ctx, intent); ok {
				return existing, nil
			}
			return nil, intent.fail(err, PhaseComposing)
		}
		// Transient or contention: remain in submitting, retry is safe
		// because the store enforces the uniqueness invariant.
		intent.lastErr = err
		return nil, err
	}

	o.record(ctx, intent, appt)
	intent.commit(appt)

	o.log.Info("booking intent committed",
		zap.String("intent_id", intent.ID.String()),
		zap.String("appointment_id", appt.ID.String()),
	)
	return appt, nil
}

// replay looks the intent up in the ledger and returns the already-committed
// appointment if there is one.
func (o *Orchestrator) replay(ctx context.Context, intent *Intent) (*scheduling.Appointment, bool) {
	apptID, found, err := o.ledger.Lookup(ctx, intent.ID)
	if err != nil {
		// Ledger trouble must not block a first submission; the uniqueness
		// invariant still holds in the store.
		o.log.Warn("intent ledger lookup failed", zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}

	appt, err := o.appointments.Find(ctx, apptID)
	if err != nil {
		o.log.Warn("committed appointment not loadable",
			zap.String("intent_id", intent.ID.String()),
			zap.String("appointment_id", apptID.String()),
			zap.Error(err),
		)
		return nil, false
	}

	intent.commit(appt)
	return appt, true
}

func (o *Orchestrator) record(ctx context.Context, intent *Intent, appt *scheduling.Appointment) {
	if _, err := o.ledger.Record(ctx, intent.ID, appt.ID); err != nil {
		o.log.Warn("intent ledger record failed",
			zap.String("intent_id", intent.ID.String()),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) begin(id uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[id]; busy {
		return false
	}
	o.inFlight[id] = struct{}{}
	return true
}

func (o *Orchestrator) end(id uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, id)
}
