package booking

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/medicarehq/booking-engine/internal/schedule"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrClinicNotFound      = errors.New("clinic not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrHoursNotConfigured  = errors.New("no hours configured for doctor at clinic")
	ErrSlotTaken           = errors.New("slot is no longer available")
)

// Repository contains all store interactions needed by the service.
// Implementations must make InsertAppointment fail with ErrSlotTaken when
// another active appointment already holds the same slot, independently of
// any locking done above it.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	GetHours(ctx context.Context, doctorID, clinicID uuid.UUID) (*schedule.HoursConfig, error)
	UpsertHours(ctx context.Context, doctorID, clinicID uuid.UUID, cfg schedule.HoursConfig) error

	// Conflict checks and writes
	GetActiveAppointmentForSlot(ctx context.Context, slot SlotRef) (*Appointment, error)
	InsertAppointment(ctx context.Context, appt *Appointment) (*Appointment, error)
	UpdateAppointmentSlot(ctx context.Context, id uuid.UUID, slot SlotRef, end string, status AppointmentStatus) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus) (*Appointment, error)

	// Reads
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListActiveForDay(ctx context.Context, doctorID, clinicID uuid.UUID, date string) ([]Appointment, error)
	ListForDoctor(ctx context.Context, doctorID uuid.UUID, clinicID *uuid.UUID) ([]Appointment, error)
	ListForPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error)

	// Completion worker
	FindActivePast(ctx context.Context, date, now string) ([]Appointment, error)
}

var ErrLockNotAcquired = errors.New("slot lock not acquired")

// Locker guards the check-then-insert critical section per slot. The
// redis implementation backs multi-process deployments; the in-process
// one pairs with the memory store.
type Locker interface {
	WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}
