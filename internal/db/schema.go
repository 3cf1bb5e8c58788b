package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema holds the ledger DDL. The partial unique index on active
// appointments is what makes two concurrent inserts for the same slot
// impossible even if the distributed lock is lost mid-flight.
const schema = `
CREATE TABLE IF NOT EXISTS doctors (
	id         UUID PRIMARY KEY,
	name       TEXT NOT NULL,
	specialty  TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS clinics (
	id         UUID PRIMARY KEY,
	name       TEXT NOT NULL,
	address    TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS patients (
	id         UUID PRIMARY KEY,
	name       TEXT NOT NULL,
	email      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS doctor_hours (
	doctor_id      UUID NOT NULL REFERENCES doctors(id) ON DELETE CASCADE,
	clinic_id      UUID NOT NULL REFERENCES clinics(id) ON DELETE CASCADE,
	start_minute   INT NOT NULL CHECK (start_minute >= 0 AND start_minute < 1440),
	end_minute     INT NOT NULL CHECK (end_minute > start_minute AND end_minute <= 1440),
	slot_duration  INT NOT NULL CHECK (slot_duration > 0),
	buffer_minutes INT NOT NULL CHECK (buffer_minutes >= 0),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (doctor_id, clinic_id)
);

CREATE TABLE IF NOT EXISTS appointments (
	id         UUID PRIMARY KEY,
	doctor_id  UUID NOT NULL REFERENCES doctors(id),
	clinic_id  UUID NOT NULL REFERENCES clinics(id),
	patient_id UUID NOT NULL REFERENCES patients(id),
	date       TEXT NOT NULL,
	start_time TEXT NOT NULL,
	end_time   TEXT NOT NULL,
	status     TEXT NOT NULL,
	notes      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS appointments_active_slot
	ON appointments (doctor_id, clinic_id, date, start_time)
	WHERE status IN ('booked', 'rescheduled');

CREATE INDEX IF NOT EXISTS appointments_doctor_day
	ON appointments (doctor_id, clinic_id, date);

CREATE INDEX IF NOT EXISTS appointments_patient
	ON appointments (patient_id);
`

// EnsureSchema creates the ledger tables and indexes if missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
