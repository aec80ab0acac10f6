package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicore/clinic-scheduling/internal/redisclient"
)

var (
	ErrSlotContended   = errors.New("slot is currently being booked, please retry")
	ErrSlotNotBookable = errors.New("slot is not bookable on that date")
	ErrForbidden       = errors.New("not allowed for this appointment")
	ErrCompletionEarly = errors.New("appointment date has not passed yet")
)

// Actor is the identity a core call runs as. It is passed explicitly into
// every operation; there is no ambient current-user state.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// CreateRequest carries everything needed to open a demande appointment.
type CreateRequest struct {
	PractitionerID uuid.UUID
	PatientID      uuid.UUID
	Date           time.Time
	Slot           Slot
	Reason         string
}

type Service struct {
	repo   Repository
	locker redisclient.Locker
	sm     *StateMachine
	calc   *AvailabilityCalculator
	hours  WorkingHours
	log    *zap.Logger
	now    func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, hours WorkingHours, log *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		sm:     NewStateMachine(),
		calc:   NewAvailabilityCalculator(repo, hours, log),
		hours:  hours,
		log:    log,
		now:    time.Now,
	}
}

func (s *Service) ListPractitioners(ctx context.Context) ([]Practitioner, error) {
	pracs, err := s.repo.ListPractitioners(ctx)
	if err != nil {
		return nil, fmt.Errorf("list practitioners: %w", err)
	}
	return pracs, nil
}

// Availability computes the open slots for a practitioner on a date. A store
// failure degrades to the fallback grid rather than blocking the read: only
// a confirmed unknown practitioner is an error.
func (s *Service) Availability(ctx context.Context, practitionerID uuid.UUID, date time.Time) (Availability, error) {
	if _, err := s.repo.GetPractitionerByID(ctx, practitionerID); err != nil {
		if errors.Is(err, ErrPractitionerNotFound) {
			return Availability{}, err
		}

		s.log.Warn("practitioner lookup failed, serving degraded grid",
			zap.String("practitioner_id", practitionerID.String()),
			zap.String("date", DayOf(date).Format(DateLayout)),
			zap.Error(err),
		)

		day := DayOf(date)
		avail := Availability{Date: day}
		if day.Before(DayOf(s.now())) || s.hours.ClosedOn(day.Weekday()) {
			return avail, nil
		}
		avail.Slots = DegradedGrid()
		avail.Degraded = true
		return avail, nil
	}
	return s.calc.AvailableSlots(ctx, practitionerID, date), nil
}

// Request opens a demande appointment. The per-tuple lock narrows the window
// between the availability re-check and the insert; the unique index in the
// store settles whatever race remains, so two concurrent bookers resolve
// deterministically: one wins, one gets ErrSlotTaken.
func (s *Service) Request(ctx context.Context, actor Actor, req CreateRequest) (*Appointment, error) {
	if err := s.sm.Authorize(actor.Role, StatusNone, StatusRequested); err != nil {
		return nil, err
	}
	if actor.Role == RolePatient && req.PatientID != actor.ID {
		return nil, ErrForbidden
	}

	day := DayOf(req.Date)
	if day.Before(DayOf(s.now())) || s.hours.ClosedOn(day.Weekday()) || !s.hours.Contains(req.Slot) {
		return nil, ErrSlotNotBookable
	}

	if _, err := s.repo.GetPractitionerByID(ctx, req.PractitionerID); err != nil {
		if errors.Is(err, ErrPractitionerNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load practitioner: %w", err)
	}

	reason := req.Reason
	if reason == "" {
		reason = DefaultReason
	}

	var created *Appointment

	key := fmt.Sprintf("rdv:%s:%s:%s", req.PractitionerID, day.Format(DateLayout), req.Slot)
	err := s.locker.WithLock(ctx, key, func(lockCtx context.Context) error {
		booked, err := s.repo.BookedSlots(lockCtx, req.PractitionerID, day)
		if err != nil {
			return fmt.Errorf("re-check availability: %w", err)
		}
		for _, b := range booked {
			if b == req.Slot {
				return ErrSlotTaken
			}
		}

		appt, err := s.repo.CreateAppointment(lockCtx, &Appointment{
			PractitionerID: req.PractitionerID,
			PatientID:      req.PatientID,
			Date:           day,
			Slot:           req.Slot,
			Reason:         reason,
			Status:         StatusRequested,
		})
		if err != nil {
			return err
		}

		created = appt
		s.logEvent(lockCtx, appt.ID, EventAppointmentRequested, map[string]any{
			"actor_role":      string(actor.Role),
			"practitioner_id": appt.PractitionerID.String(),
			"date":            day.Format(DateLayout),
			"slot":            appt.Slot.String(),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotContended
		}
		return nil, err
	}

	s.log.Info("appointment requested",
		zap.String("appointment_id", created.ID.String()),
		zap.String("practitioner_id", created.PractitionerID.String()),
		zap.String("date", day.Format(DateLayout)),
		zap.String("slot", created.Slot.String()),
		zap.String("actor_role", string(actor.Role)),
	)
	return created, nil
}

// CreateConfirmed is the secretary-initiated flow: the appointment is opened
// as demande and immediately confirmed by the creating role.
func (s *Service) CreateConfirmed(ctx context.Context, actor Actor, req CreateRequest) (*Appointment, error) {
	if err := s.sm.Authorize(actor.Role, StatusRequested, StatusConfirmed); err != nil {
		return nil, err
	}

	appt, err := s.Request(ctx, actor, req)
	if err != nil {
		return nil, err
	}

	confirmed, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusRequested, StatusConfirmed, nil)
	if err != nil {
		return nil, fmt.Errorf("confirm created appointment: %w", err)
	}

	s.logEvent(ctx, confirmed.ID, EventAppointmentConfirmed, map[string]any{
		"actor_role": string(actor.Role),
		"direct":     true,
	})
	return confirmed, nil
}

// Accept moves demande to confirme on behalf of the practitioner.
func (s *Service) Accept(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, StatusConfirmed, nil)
}

// Refuse moves demande to refuse. An omitted reason gets the default.
func (s *Service) Refuse(ctx context.Context, actor Actor, id uuid.UUID, reason string) (*Appointment, error) {
	if reason == "" {
		reason = DefaultRefusalReason
	}
	return s.transition(ctx, actor, id, StatusRefused, &reason)
}

// Cancel moves a live appointment to annule. Patients may only cancel their
// own; the slot becomes bookable again immediately.
func (s *Service) Cancel(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, StatusCancelled, nil)
}

// Complete moves confirme to termine. Practitioners may close out their own
// past appointments without waiting for the sweep; the date gate rejects a
// completion before the appointment day has passed.
func (s *Service) Complete(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, StatusCompleted, nil)
}

func (s *Service) transition(ctx context.Context, actor Actor, id uuid.UUID, to Status, refusalReason *string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if err := s.sm.Authorize(actor.Role, appt.Status, to); err != nil {
		return nil, err
	}
	if err := s.checkOwnership(actor, appt); err != nil {
		return nil, err
	}
	if to == StatusCompleted && actor.Role != RoleSystem && !DayOf(appt.Date).Before(DayOf(s.now())) {
		return nil, ErrCompletionEarly
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, appt.Status, to, refusalReason)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost a race with another transition; the record moved on.
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.logEvent(ctx, id, eventTypeFor[to], map[string]any{
		"actor_role": string(actor.Role),
		"from":       string(appt.Status),
		"to":         string(to),
	})

	s.log.Info("appointment transitioned",
		zap.String("appointment_id", id.String()),
		zap.String("from", string(appt.Status)),
		zap.String("to", string(to)),
		zap.String("actor_role", string(actor.Role)),
	)
	return updated, nil
}

// logEvent writes one audit-trail entry for a committed lifecycle change.
// Best-effort: the commit it describes already happened, so a failed insert
// is logged and swallowed.
func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal event payload",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		data = nil
	}

	apptID := appointmentID
	ev := Event{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn("failed to insert event",
			zap.String("event_type", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) checkOwnership(actor Actor, appt *Appointment) error {
	switch actor.Role {
	case RolePatient:
		if appt.PatientID != actor.ID {
			return ErrForbidden
		}
	case RolePractitioner:
		if appt.PractitionerID != actor.ID {
			return ErrForbidden
		}
	}
	return nil
}

// Get returns the appointment if the actor may view it.
func (s *Service) Get(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.sm.Guard().CanView(actor.Role, actor.ID, appt) {
		return nil, ErrForbidden
	}
	return appt, nil
}

// Find loads an appointment with no visibility check. It backs the booking
// orchestrator's replay path, where the caller proved ownership of the
// intent that created the record.
func (s *Service) Find(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

// ListForActor returns the appointments the actor may see.
func (s *Service) ListForActor(ctx context.Context, actor Actor) ([]Appointment, error) {
	switch actor.Role {
	case RolePatient:
		return s.repo.ListByPatient(ctx, actor.ID)
	case RolePractitioner:
		return s.repo.ListByPractitioner(ctx, actor.ID)
	case RoleSecretary, RoleAdmin:
		return s.repo.ListAll(ctx)
	}
	return nil, ErrForbidden
}

// CompletePastConfirmed moves every confirmed appointment whose date has
// passed to termine. Called by the sweep worker, never by users.
func (s *Service) CompletePastConfirmed(ctx context.Context) (int, error) {
	today := DayOf(s.now())

	candidates, err := s.repo.FindConfirmedBefore(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("find past confirmed appointments: %w", err)
	}

	completed := 0
	for _, appt := range candidates {
		_, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusConfirmed, StatusCompleted, nil)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				continue
			}
			s.log.Error("failed to complete appointment",
				zap.String("appointment_id", appt.ID.String()),
				zap.Error(err),
			)
			continue
		}
		s.logEvent(ctx, appt.ID, EventAppointmentCompleted, map[string]any{
			"actor_role": string(RoleSystem),
			"reason":     "sweep",
		})
		completed++
	}

	return completed, nil
}
