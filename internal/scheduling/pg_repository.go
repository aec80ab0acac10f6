package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPractitioner(row pgx.Row) (*Practitioner, error) {
	var p Practitioner
	var specialty *string

	err := row.Scan(
		&p.ID,
		&p.LastName,
		&p.FirstName,
		&specialty,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPractitionerNotFound
		}
		return nil, err
	}

	p.Specialty = specialty
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var slotMinutes int
	var refusalReason *string

	err := row.Scan(
		&a.ID,
		&a.PractitionerID,
		&a.PatientID,
		&a.Date,
		&slotMinutes,
		&a.Reason,
		&a.Status,
		&refusalReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Slot = Slot(slotMinutes)
	a.RefusalReason = refusalReason
	return &a, nil
}

const appointmentColumns = `id, medecin_id, patient_id, date_rdv, heure_rdv, motif, statut, motif_refus, created_at, updated_at`

// Interface methods

func (r *PgRepository) GetPractitionerByID(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, nom, prenom, specialite, created_at, updated_at
		FROM medecins
		WHERE id = $1
	`, id)
	return scanPractitioner(row)
}

func (r *PgRepository) ListPractitioners(ctx context.Context) ([]Practitioner, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, nom, prenom, specialite, created_at, updated_at
		FROM medecins
		ORDER BY nom, prenom
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Practitioner
	for rows.Next() {
		p, err := scanPractitioner(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) BookedSlots(ctx context.Context, practitionerID uuid.UUID, date time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT heure_rdv
		FROM rendezvous
		WHERE medecin_id = $1
		  AND date_rdv = $2
		  AND statut IN ('demande', 'confirme')
		ORDER BY heure_rdv
	`, practitionerID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []Slot
	for rows.Next() {
		var minutes int
		if err := rows.Scan(&minutes); err != nil {
			return nil, err
		}
		slots = append(slots, Slot(minutes))
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return slots, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, appt *Appointment) (*Appointment, error) {
	id := appt.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO rendezvous (id, medecin_id, patient_id, date_rdv, heure_rdv, motif, statut, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, appt.PractitionerID, appt.PatientID, appt.Date, appt.Slot.Minutes(), appt.Reason, appt.Status)

	created, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM rendezvous
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status, refusalReason *string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE rendezvous
		SET statut = $2,
		    motif_refus = COALESCE($3, motif_refus),
		    updated_at = now()
		WHERE id = $1
		  AND statut = $4
		RETURNING `+appointmentColumns+`
	`, id, to, refusalReason, from)

	return scanAppointment(row)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM rendezvous
		WHERE patient_id = $1
		ORDER BY date_rdv, heure_rdv
	`, patientID)
}

func (r *PgRepository) ListByPractitioner(ctx context.Context, practitionerID uuid.UUID) ([]Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM rendezvous
		WHERE medecin_id = $1
		ORDER BY date_rdv, heure_rdv
	`, practitionerID)
}

func (r *PgRepository) ListAll(ctx context.Context) ([]Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM rendezvous
		ORDER BY date_rdv, heure_rdv
	`)
}

func (r *PgRepository) FindConfirmedBefore(ctx context.Context, day time.Time) ([]Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM rendezvous
		WHERE statut = 'confirme'
		  AND date_rdv < $1
		ORDER BY date_rdv, heure_rdv
	`, day)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev Event) error {
	createdAt := ev.CreatedAt
	var created *time.Time
	if !createdAt.IsZero() {
		created = &createdAt
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO evenements (event_type, rendezvous_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, created)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	return nil
}

func (r *PgRepository) list(ctx context.Context, sql string, args ...any) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
