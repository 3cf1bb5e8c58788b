package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medicarehq/booking-engine/internal/schedule"
)

// PgRepository persists the ledger in Postgres. A partial unique index on
// (doctor_id, clinic_id, date, start_time) over active statuses backs the
// conflict-freedom invariant; violations surface as ErrSlotTaken.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Specialty, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanClinic(row pgx.Row) (*Clinic, error) {
	var c Clinic
	err := row.Scan(&c.ID, &c.Name, &c.Address, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicNotFound
		}
		return nil, err
	}
	return &c, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.ClinicID,
		&a.PatientID,
		&a.Date,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

const apptColumns = `id, doctor_id, clinic_id, patient_id, date, start_time, end_time, status, notes, created_at, updated_at`

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func statusStrings(statuses []AppointmentStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, address, created_at, updated_at
		FROM clinics
		WHERE id = $1
	`, id)
	return scanClinic(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetHours(ctx context.Context, doctorID, clinicID uuid.UUID) (*schedule.HoursConfig, error) {
	var cfg schedule.HoursConfig
	err := r.pool.QueryRow(ctx, `
		SELECT start_minute, end_minute, slot_duration, buffer_minutes
		FROM doctor_hours
		WHERE doctor_id = $1 AND clinic_id = $2
	`, doctorID, clinicID).Scan(&cfg.StartMinute, &cfg.EndMinute, &cfg.SlotDuration, &cfg.Buffer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHoursNotConfigured
		}
		return nil, err
	}
	return &cfg, nil
}

func (r *PgRepository) UpsertHours(ctx context.Context, doctorID, clinicID uuid.UUID, cfg schedule.HoursConfig) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO doctor_hours (doctor_id, clinic_id, start_minute, end_minute, slot_duration, buffer_minutes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (doctor_id, clinic_id) DO UPDATE
		SET start_minute = EXCLUDED.start_minute,
		    end_minute = EXCLUDED.end_minute,
		    slot_duration = EXCLUDED.slot_duration,
		    buffer_minutes = EXCLUDED.buffer_minutes,
		    updated_at = now()
	`, doctorID, clinicID, cfg.StartMinute, cfg.EndMinute, cfg.SlotDuration, cfg.Buffer)
	if err != nil {
		return fmt.Errorf("upsert doctor hours: %w", err)
	}
	return nil
}

func (r *PgRepository) GetActiveAppointmentForSlot(ctx context.Context, slot SlotRef) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND clinic_id = $2 AND date = $3 AND start_time = $4
		  AND status IN ('booked', 'rescheduled')
	`, slot.DoctorID, slot.ClinicID, slot.Date, slot.Start)
	return scanAppointment(row)
}

func (r *PgRepository) InsertAppointment(ctx context.Context, appt *Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, clinic_id, patient_id, date, start_time, end_time, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+apptColumns+`
	`, appt.ID, appt.DoctorID, appt.ClinicID, appt.PatientID, appt.Date, appt.StartTime, appt.EndTime, appt.Status, appt.Notes)

	created, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) UpdateAppointmentSlot(ctx context.Context, id uuid.UUID, slot SlotRef, end string, status AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET date = $2,
		    start_time = $3,
		    end_time = $4,
		    status = $5,
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('booked', 'rescheduled')
		RETURNING `+apptColumns+`
	`, id, slot.Date, slot.Start, end, status)

	updated, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING `+apptColumns+`
	`, id, to, statusStrings(from))
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListActiveForDay(ctx context.Context, doctorID, clinicID uuid.UUID, date string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND clinic_id = $2 AND date = $3
		  AND status IN ('booked', 'rescheduled')
		ORDER BY start_time
	`, doctorID, clinicID, date)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListForDoctor(ctx context.Context, doctorID uuid.UUID, clinicID *uuid.UUID) ([]Appointment, error) {
	query := `
		SELECT ` + apptColumns + `
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY date, start_time`
	args := []any{doctorID}

	if clinicID != nil {
		query = `
		SELECT ` + apptColumns + `
		FROM appointments
		WHERE doctor_id = $1 AND clinic_id = $2
		ORDER BY date, start_time`
		args = append(args, *clinicID)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY date, start_time
	`, patientID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) FindActivePast(ctx context.Context, date, now string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE status IN ('booked', 'rescheduled')
		  AND (date < $1 OR (date = $1 AND end_time <= $2))
	`, date, now)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
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
