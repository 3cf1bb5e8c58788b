package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medicarehq/booking-engine/internal/booking"
)

type SetHoursRequest struct {
	ClinicID     string `json:"clinic_id"`
	Start        string `json:"start"`         // "HH:MM"
	End          string `json:"end"`           // "HH:MM"
	SlotDuration int    `json:"slot_duration"` // minutes
	Buffer       int    `json:"buffer"`        // minutes
}

type BookAppointmentRequest struct {
	DoctorID  string `json:"doctor_id"`
	ClinicID  string `json:"clinic_id"`
	PatientID string `json:"patient_id"`
	Date      string `json:"date"`  // "2006-01-02"
	Start     string `json:"start"` // "HH:MM"
	Notes     string `json:"notes,omitempty"`
}

type RescheduleAppointmentRequest struct {
	Date  string `json:"date"`
	Start string `json:"start"`
}

type AppointmentResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	ClinicID  uuid.UUID `json:"clinic_id"`
	PatientID uuid.UUID `json:"patient_id"`
	Date      string    `json:"date"`
	Start     string    `json:"start"`
	End       string    `json:"end"`
	Status    string    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		DoctorID:  a.DoctorID,
		ClinicID:  a.ClinicID,
		PatientID: a.PatientID,
		Date:      a.Date,
		Start:     a.StartTime,
		End:       a.EndTime,
		Status:    string(a.Status),
		Notes:     a.Notes,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
