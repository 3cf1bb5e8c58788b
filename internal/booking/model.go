package booking

import (
	"time"

	"github.com/google/uuid"
)

// AppointmentStatus lifecycle:
//
//	booked ⇄ rescheduled
//	booked|rescheduled → cancelled   (terminal)
//	booked|rescheduled → completed   (terminal, driven by the worker)
type AppointmentStatus string

const (
	StatusBooked      AppointmentStatus = "booked"
	StatusRescheduled AppointmentStatus = "rescheduled"
	StatusCancelled   AppointmentStatus = "cancelled"
	StatusCompleted   AppointmentStatus = "completed"
)

var allowedTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusBooked:      {StatusRescheduled, StatusCancelled, StatusCompleted},
	StatusRescheduled: {StatusRescheduled, StatusCancelled, StatusCompleted},
	StatusCancelled:   {},
	StatusCompleted:   {},
}

// CanTransitionTo reports whether from→to is a legal status change.
func (from AppointmentStatus) CanTransitionTo(to AppointmentStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Active reports whether the status counts against slot availability.
func (s AppointmentStatus) Active() bool {
	return s == StatusBooked || s == StatusRescheduled
}

// Terminal reports whether no further mutation is permitted.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Clinic struct {
	ID        uuid.UUID
	Name      string
	Address   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment is the persisted booking record. Date is a clinic-local
// "2006-01-02" string, StartTime/EndTime are "HH:MM" slot boundaries.
// The JSON shape is the event payload published to subscribers.
type Appointment struct {
	ID        uuid.UUID         `json:"id"`
	DoctorID  uuid.UUID         `json:"doctor_id"`
	ClinicID  uuid.UUID         `json:"clinic_id"`
	PatientID uuid.UUID         `json:"patient_id"`
	Date      string            `json:"date"`
	StartTime string            `json:"start_time"`
	EndTime   string            `json:"end_time"`
	Status    AppointmentStatus `json:"status"`
	Notes     string            `json:"notes,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// SlotRef identifies one bookable slot. It is the unit of conflict
// detection: at most one active appointment may hold a given SlotRef.
type SlotRef struct {
	DoctorID uuid.UUID
	ClinicID uuid.UUID
	Date     string
	Start    string
}

// LockKey is the redis lock key guarding this slot's critical section.
func (s SlotRef) LockKey() string {
	return "lock:slot:" + s.DoctorID.String() + ":" + s.ClinicID.String() + ":" + s.Date + ":" + s.Start
}

// Actor is the resolved identity of the caller, supplied by the upstream
// auth layer. The engine trusts it and only performs ownership checks.
type Actor struct {
	ID   uuid.UUID
	Role string
}

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
)
