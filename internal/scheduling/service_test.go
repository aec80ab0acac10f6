package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memRepo is an in-memory Repository that enforces the same contracts as the
// Postgres implementation: the live-slot uniqueness invariant on insert and
// the compare-and-swap semantics on status updates.
type memRepo struct {
	mu            sync.Mutex
	practitioners map[uuid.UUID]*Practitioner
	appointments  map[uuid.UUID]*Appointment
	failLookup    error
	failBooked    error
	events        []Event
}

func newMemRepo() *memRepo {
	return &memRepo{
		practitioners: make(map[uuid.UUID]*Practitioner),
		appointments:  make(map[uuid.UUID]*Appointment),
	}
}

func (r *memRepo) addPractitioner() uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.practitioners[id] = &Practitioner{ID: id, LastName: "Martin", FirstName: "Claire"}
	return id
}

func (r *memRepo) GetPractitionerByID(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	if r.failLookup != nil {
		return nil, r.failLookup
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.practitioners[id]
	if !ok {
		return nil, ErrPractitionerNotFound
	}
	return p, nil
}

func (r *memRepo) ListPractitioners(ctx context.Context) ([]Practitioner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Practitioner
	for _, p := range r.practitioners {
		out = append(out, *p)
	}
	return out, nil
}

func (r *memRepo) BookedSlots(ctx context.Context, practitionerID uuid.UUID, date time.Time) ([]Slot, error) {
	if r.failBooked != nil {
		return nil, r.failBooked
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Slot
	for _, a := range r.appointments {
		if a.PractitionerID == practitionerID && SameDay(a.Date, date) && a.Status.Live() {
			out = append(out, a.Slot)
		}
	}
	return out, nil
}

func (r *memRepo) CreateAppointment(ctx context.Context, appt *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appointments {
		if a.PractitionerID == appt.PractitionerID && SameDay(a.Date, appt.Date) && a.Slot == appt.Slot && a.Status.Live() {
			return nil, ErrSlotTaken
		}
	}
	stored := *appt
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	r.appointments[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (r *memRepo) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := *a
	return &out, nil
}

func (r *memRepo) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status, refusalReason *string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	if refusalReason != nil {
		a.RefusalReason = refusalReason
	}
	a.UpdatedAt = time.Now()
	out := *a
	return &out, nil
}

func (r *memRepo) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		if a.PatientID == patientID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memRepo) ListByPractitioner(ctx context.Context, practitionerID uuid.UUID) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		if a.PractitionerID == practitionerID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memRepo) ListAll(ctx context.Context) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		out = append(out, *a)
	}
	return out, nil
}

func (r *memRepo) FindConfirmedBefore(ctx context.Context, day time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		if a.Status == StatusConfirmed && DayOf(a.Date).Before(day) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memRepo) InsertEvent(ctx context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *memRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.EventType)
	}
	return out
}

// passLocker runs the critical section directly.
type passLocker struct{}

func (passLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestService(repo *memRepo) *Service {
	svc := NewService(repo, passLocker{}, DefaultWorkingHours(), zap.NewNop())
	svc.now = func() time.Time { return fixedNow }
	svc.calc.now = svc.now
	return svc
}

func bookingDay() time.Time {
	return fixedNow.AddDate(0, 0, 1) // Tuesday
}

func TestRequest_CreatesRequestedAppointment(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	medecin := repo.addPractitioner()
	patient := uuid.New()

	appt, err := svc.Request(context.Background(), Actor{ID: patient, Role: RolePatient}, CreateRequest{
		PractitionerID: medecin,
		PatientID:      patient,
		Date:           bookingDay(),
		Slot:           mustSlot(t, "09:00"),
	})
	require.NoError(t, err)

	assert.Equal(t, StatusRequested, appt.Status)
	assert.Equal(t, medecin, appt.PractitionerID)
	assert.Equal(t, patient, appt.PatientID)
	assert.Equal(t, DefaultReason, appt.Reason, "empty motif gets the default")
}

func TestRequest_SecondBookerGetsSlotTaken(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	medecin := repo.addPractitioner()

	req := CreateRequest{
		PractitionerID: medecin,
		Date:           bookingDay(),
		Slot:           mustSlot(t, "10:00"),
	}

	first := uuid.New()
	req.PatientID = first
	_, err := svc.Request(context.Background(), Actor{ID: first, Role: RolePatient}, req)
	require.NoError(t, err)

	second := uuid.New()
	req.PatientID = second
	_, err = svc.Request(context.Background(), Actor{ID: second, Role: RolePatient}, req)
	assert.ErrorIs(t, err, ErrSlotTaken)

	// The loser re-queries availability and no longer sees the slot.
	avail, err := svc.Availability(context.Background(), medecin, bookingDay())
	require.NoError(t, err)
	assert.NotContains(t, avail.Slots, mustSlot(t, "10:00"))
}

func TestRequest_UniquenessHoldsAcrossLiveStatuses(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	medecin := repo.addPractitioner()
	patient := uuid.New()
	actor := Actor{ID: patient, Role: RolePatient}

	req := CreateRequest{PractitionerID: medecin, PatientID: patient, Date: bookingDay(), Slot: mustSlot(t, "11:00")}
	appt, err := svc.Request(context.Background(), actor, req)
	require.NoError(t, err)

	// Confirmed still occupies the slot.
	_, err = svc.Accept(context.Background(), Actor{ID: medecin, Role: RolePractitioner}, appt.ID)
	require.NoError(t, err)
	_, err = svc.Request(context.Background(), actor, req)
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestRequest_RejectsSundayPastAndOffGrid(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	medecin := repo.addPractitioner()
	patient := uuid.New()
	actor := Actor{ID: patient, Role: RolePatient}

	base := CreateRequest{PractitionerID: medecin, PatientID: patient, Slot: mustSlot(t, "09:00")}

	past := base
	past.Date = fixedNow.AddDate(0, 0, -3)
	_, err := svc.Request(context.Background(), actor, past)
	assert.ErrorIs(t, err, ErrSlotNotBookable)

	sunday := base
	sunday.Date = time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	_, err = svc.Request(context.Background(), actor, sunday)
	assert.ErrorIs(t, err, ErrSlotNotBookable)

	night := base
	night.Date = bookingDay()
	night.Slot = mustSlot(t, "22:00")
	_, err = svc.Request(context.Background(), actor, night)
	assert.ErrorIs(t, err, ErrSlotNotBookable)
}

func TestRequest_PatientCannotBookForSomeoneElse(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	medecin := repo.addPractitioner()

	_, err := svc.Request(context.Background(), Actor{ID: uuid.New(), Role: RolePatient}, CreateRequest{
		PractitionerID: medecin,
		PatientID:      uuid.New(),
		Date:           bookingDay(),
		Slot:           mustSlot(t, "09:00"),
	})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAvailability_StoreOutageServesDegradedGrid(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	medecin := repo.addPractitioner()

	outage := errors.New("dial tcp: connection refused")
	repo.failLookup = outage
	repo.failBooked = outage

	avail, err := svc.Availability(context.Background(), medecin, bookingDay())
	require.NoError(t, err, "an outage degrades the read, it does not fail it")
	assert.True(t, avail.Degraded)
	assert.Len(t, avail.Slots, 16)
	assert.Contains(t, avail.Slots, mustSlot(t, "08:00"))
	assert.Contains(t, avail.Slots, mustSlot(t, "14:00"))
	assert.NotContains(t, avail.Slots, mustSlot(t, "12:00"))

	// Non-bookable days stay empty even in degraded mode.
	past, err := svc.Availability(context.Background(), medecin, fixedNow.AddDate(0, 0, -3))
	require.NoError(t, err)
	assert.False(t, past.Degraded)
	assert.Empty(t, past.Slots)

	sunday, err := svc.Availability(context.Background(), medecin, time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, sunday.Slots)
}

func TestAvailability_UnknownPractitionerStillErrs(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)

	_, err := svc.Availability(context.Background(), uuid.New(), bookingDay())
	assert.ErrorIs(t, err, ErrPractitionerNotFound)
}

func TestCreateConfirmed_SecretaryDirectFlow(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	medecin := repo.addPractitioner()

	appt, err := svc.CreateConfirmed(context.Background(), Actor{ID: uuid.New(), Role: RoleSecretary}, CreateRequest{
		PractitionerID: medecin,
		PatientID:      uuid.New(),
		Date:           bookingDay(),
		Slot:           mustSlot(t, "15:00"),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)
}

func TestCreateConfirmed_PatientMayNot(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	medecin := repo.addPractitioner()
	patient := uuid.New()

	_, err := svc.CreateConfirmed(context.Background(), Actor{ID: patient, Role: RolePatient}, CreateRequest{
		PractitionerID: medecin,
		PatientID:      patient,
		Date:           bookingDay(),
		Slot:           mustSlot(t, "15:00"),
	})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRefuse_DefaultsReason(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	medecin := repo.addPractitioner()
	patient := uuid.New()

	appt, err := svc.Request(context.Background(), Actor{ID: patient, Role: RolePatient}, CreateRequest{
		PractitionerID: medecin, PatientID: patient, Date: bookingDay(), Slot: mustSlot(t, "09:30"),
	})
	require.NoError(t, err)

	refused, err := svc.Refuse(context.Background(), Actor{ID: medecin, Role: RolePractitioner}, appt.ID, "")
	require.NoError(t, err)

	assert.Equal(t, StatusRefused, refused.Status)
	require.NotNil(t, refused.RefusalReason)
	assert.Equal(t, DefaultRefusalReason, *refused.RefusalReason)
}

func TestRefuse_CancelledAppointmentIsInvalid(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	medecin := repo.addPractitioner()
	patient := uuid.New()

	appt, err := svc.Request(context.Background(), Actor{ID: patient, Role: RolePatient}, CreateRequest{
		PractitionerID: medecin, PatientID: patient, Date: bookingDay(), Slot: mustSlot(t, "09:30"),
	})
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), Actor{ID: patient, Role: RolePatient}, appt.ID)
	require.NoError(t, err)

	_, err = svc.Refuse(context.Background(), Actor{ID: medecin, Role: RolePractitioner}, appt.ID, "too late")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := repo.GetAppointmentByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status, "failed transition leaves the record untouched")
	assert.Nil(t, got.RefusalReason)
}

func TestCancel_ReopensSlot(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	medecin := repo.addPractitioner()
	patient := uuid.New()
	slot := mustSlot(t, "10:00")

	appt, err := svc.Request(context.Background(), Actor{ID: patient, Role: RolePatient}, CreateRequest{
		PractitionerID: medecin, PatientID: patient, Date: bookingDay(), Slot: slot,
	})
	require.NoError(t, err)

	_, err = svc.Accept(context.Background(), Actor{ID: medecin, Role: RolePractitioner}, appt.ID)
	require.NoError(t, err)

	avail, err := svc.Availability(context.Background(), medecin, bookingDay())
	require.NoError(t, err)
	assert.NotContains(t, avail.Slots, slot)

	cancelled, err := svc.Cancel(context.Background(), Actor{ID: patient, Role: RolePatient}, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	avail, err = svc.Availability(context.Background(), medecin, bookingDay())
	require.NoError(t, err)
	assert.Contains(t, avail.Slots, slot, "cancelling frees the slot")
}

func TestCancel_PatientMayOnlyCancelOwn(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	medecin := repo.addPractitioner()
	owner := uuid.New()

	appt, err := svc.Request(context.Background(), Actor{ID: owner, Role: RolePatient}, CreateRequest{
		PractitionerID: medecin, PatientID: owner, Date: bookingDay(), Slot: mustSlot(t, "16:00"),
	})
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), Actor{ID: uuid.New(), Role: RolePatient}, appt.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAccept_OnlyOwnAppointments(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	medecin := repo.addPractitioner()
	other := repo.addPractitioner()
	patient := uuid.New()

	appt, err := svc.Request(context.Background(), Actor{ID: patient, Role: RolePatient}, CreateRequest{
		PractitionerID: medecin, PatientID: patient, Date: bookingDay(), Slot: mustSlot(t, "09:00"),
	})
	require.NoError(t, err)

	_, err = svc.Accept(context.Background(), Actor{ID: other, Role: RolePractitioner}, appt.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestComplete_DateGate(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	medecin := repo.addPractitioner()
	patient := uuid.New()

	appt, err := svc.CreateConfirmed(context.Background(), Actor{ID: uuid.New(), Role: RoleSecretary}, CreateRequest{
		PractitionerID: medecin, PatientID: patient, Date: bookingDay(), Slot: mustSlot(t, "09:00"),
	})
	require.NoError(t, err)

	doctor := Actor{ID: medecin, Role: RolePractitioner}
	_, err = svc.Complete(context.Background(), doctor, appt.ID)
	assert.ErrorIs(t, err, ErrCompletionEarly)

	// The day after the appointment, the practitioner may close it out.
	svc.now = func() time.Time { return fixedNow.AddDate(0, 0, 2) }
	done, err := svc.Complete(context.Background(), doctor, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)

	// Patients never complete.
	_, err = svc.Complete(context.Background(), Actor{ID: patient, Role: RolePatient}, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCompletePastConfirmed(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	medecin := repo.addPractitioner()
	patient := uuid.New()

	// A confirmed appointment last week, inserted directly: the service
	// would rightly refuse to create one in the past.
	stale := &Appointment{
		ID:             uuid.New(),
		PractitionerID: medecin,
		PatientID:      patient,
		Date:           fixedNow.AddDate(0, 0, -7),
		Slot:           mustSlot(t, "09:00"),
		Status:         StatusConfirmed,
	}
	repo.appointments[stale.ID] = stale

	// A future confirmed appointment must be left alone.
	fresh, err := svc.CreateConfirmed(context.Background(), Actor{ID: uuid.New(), Role: RoleSecretary}, CreateRequest{
		PractitionerID: medecin, PatientID: patient, Date: bookingDay(), Slot: mustSlot(t, "10:00"),
	})
	require.NoError(t, err)

	n, err := svc.CompletePastConfirmed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repo.GetAppointmentByID(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	got, err = repo.GetAppointmentByID(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)

	assert.Contains(t, repo.eventTypes(), EventAppointmentCompleted)
}

func TestLifecycleWritesAuditTrail(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	medecin := repo.addPractitioner()
	patient := uuid.New()

	appt, err := svc.Request(context.Background(), Actor{ID: patient, Role: RolePatient}, CreateRequest{
		PractitionerID: medecin, PatientID: patient, Date: bookingDay(), Slot: mustSlot(t, "09:00"),
	})
	require.NoError(t, err)

	_, err = svc.Accept(context.Background(), Actor{ID: medecin, Role: RolePractitioner}, appt.ID)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), Actor{ID: patient, Role: RolePatient}, appt.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{
		EventAppointmentRequested,
		EventAppointmentConfirmed,
		EventAppointmentCancelled,
	}, repo.eventTypes())

	for _, ev := range repo.events {
		require.NotNil(t, ev.AppointmentID)
		assert.Equal(t, appt.ID, *ev.AppointmentID)
		assert.NotEmpty(t, ev.Payload)
	}
}

func TestFailedTransitionWritesNoEvent(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	medecin := repo.addPractitioner()
	patient := uuid.New()

	appt, err := svc.Request(context.Background(), Actor{ID: patient, Role: RolePatient}, CreateRequest{
		PractitionerID: medecin, PatientID: patient, Date: bookingDay(), Slot: mustSlot(t, "09:00"),
	})
	require.NoError(t, err)

	_, err = svc.Refuse(context.Background(), Actor{ID: patient, Role: RolePatient}, appt.ID, "")
	require.ErrorIs(t, err, ErrInvalidTransition)

	assert.Equal(t, []string{EventAppointmentRequested}, repo.eventTypes())
}

func TestGet_Visibility(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	medecin := repo.addPractitioner()
	owner := uuid.New()

	appt, err := svc.Request(context.Background(), Actor{ID: owner, Role: RolePatient}, CreateRequest{
		PractitionerID: medecin, PatientID: owner, Date: bookingDay(), Slot: mustSlot(t, "09:00"),
	})
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), Actor{ID: owner, Role: RolePatient}, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appt.ID, got.ID)

	_, err = svc.Get(context.Background(), Actor{ID: uuid.New(), Role: RolePatient}, appt.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Get(context.Background(), Actor{ID: uuid.New(), Role: RoleSecretary}, appt.ID)
	assert.NoError(t, err)
}

func TestListForActor_Visibility(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	medecin := repo.addPractitioner()
	alice := uuid.New()
	bob := uuid.New()

	_, err := svc.Request(context.Background(), Actor{ID: alice, Role: RolePatient}, CreateRequest{
		PractitionerID: medecin, PatientID: alice, Date: bookingDay(), Slot: mustSlot(t, "09:00"),
	})
	require.NoError(t, err)
	_, err = svc.Request(context.Background(), Actor{ID: bob, Role: RolePatient}, CreateRequest{
		PractitionerID: medecin, PatientID: bob, Date: bookingDay(), Slot: mustSlot(t, "09:30"),
	})
	require.NoError(t, err)

	own, err := svc.ListForActor(context.Background(), Actor{ID: alice, Role: RolePatient})
	require.NoError(t, err)
	assert.Len(t, own, 1)

	all, err := svc.ListForActor(context.Background(), Actor{ID: uuid.New(), Role: RoleSecretary})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	calendar, err := svc.ListForActor(context.Background(), Actor{ID: medecin, Role: RolePractitioner})
	require.NoError(t, err)
	assert.Len(t, calendar, 2)
}
