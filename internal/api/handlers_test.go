package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicarehq/booking-engine/internal/booking"
	"github.com/medicarehq/booking-engine/internal/schedule"
)

type testServer struct {
	srv *httptest.Server

	doctorID  uuid.UUID
	clinicID  uuid.UUID
	patientID uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	repo := booking.NewMemoryRepository()
	ts := &testServer{
		doctorID:  uuid.New(),
		clinicID:  uuid.New(),
		patientID: uuid.New(),
	}

	repo.AddDoctor(booking.Doctor{ID: ts.doctorID, Name: "Dr. Ayesha Khan"})
	repo.AddClinic(booking.Clinic{ID: ts.clinicID, Name: "Downtown Clinic"})
	repo.AddPatient(booking.Patient{ID: ts.patientID, Name: "Pat One"})

	svc := booking.NewService(repo, booking.NewLocalLocker(), nil, time.Minute, zerolog.Nop())

	handler := NewRouter(RouterConfig{
		Service: svc,
		Env:     "test",
		Version: "test",
		Logger:  zerolog.Nop(),
	})
	ts.srv = httptest.NewServer(handler)
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, actor *booking.Actor) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req.Header.Set("X-User-ID", actor.ID.String())
		req.Header.Set("X-User-Role", actor.Role)
	}

	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (ts *testServer) setHours(t *testing.T, start, end string, duration, buffer int) {
	t.Helper()
	actor := booking.Actor{ID: ts.doctorID, Role: booking.RoleDoctor}
	resp := ts.do(t, http.MethodPut, fmt.Sprintf("/doctors/%s/hours", ts.doctorID), SetHoursRequest{
		ClinicID:     ts.clinicID.String(),
		Start:        start,
		End:          end,
		SlotDuration: duration,
		Buffer:       buffer,
	}, &actor)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func (ts *testServer) bookRequest(start string) BookAppointmentRequest {
	return BookAppointmentRequest{
		DoctorID:  ts.doctorID.String(),
		ClinicID:  ts.clinicID.String(),
		PatientID: ts.patientID.String(),
		Date:      "2025-06-01",
		Start:     start,
	}
}

type availabilityResponse struct {
	Date  string          `json:"date"`
	Slots []schedule.Slot `json:"slots"`
}

func (ts *testServer) availability(t *testing.T, date string) availabilityResponse {
	t.Helper()
	resp := ts.do(t, http.MethodGet,
		fmt.Sprintf("/doctors/%s/availability?clinic_id=%s&date=%s", ts.doctorID, ts.clinicID, date), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[availabilityResponse](t, resp)
}

func TestAvailabilityEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.setHours(t, "09:00", "17:00", 30, 10)

	got := ts.availability(t, "2025-06-01")
	assert.Equal(t, "2025-06-01", got.Date)
	require.Len(t, got.Slots, 12)
	assert.Equal(t, schedule.Slot{Start: "09:00", End: "09:30"}, got.Slots[0])
}

func TestAvailabilityErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.setHours(t, "09:00", "17:00", 30, 10)

	resp := ts.do(t, http.MethodGet,
		fmt.Sprintf("/doctors/not-a-uuid/availability?clinic_id=%s&date=2025-06-01", ts.clinicID), nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = ts.do(t, http.MethodGet,
		fmt.Sprintf("/doctors/%s/availability?clinic_id=%s&date=June+1st", ts.doctorID, ts.clinicID), nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = ts.do(t, http.MethodGet,
		fmt.Sprintf("/doctors/%s/availability?clinic_id=%s&date=2025-06-01", uuid.New(), ts.clinicID), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decode[ErrorResponse](t, resp)
	assert.Equal(t, "doctor_not_found", body.Error)

	// A known doctor with no hours at this clinic.
	resp = ts.do(t, http.MethodGet,
		fmt.Sprintf("/doctors/%s/availability?clinic_id=%s&date=2025-06-01", ts.doctorID, uuid.New()), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body = decode[ErrorResponse](t, resp)
	assert.Equal(t, "hours_not_configured", body.Error)
}

func TestSetHoursAuthorization(t *testing.T) {
	ts := newTestServer(t)
	req := SetHoursRequest{ClinicID: ts.clinicID.String(), Start: "09:00", End: "17:00", SlotDuration: 30}

	path := fmt.Sprintf("/doctors/%s/hours", ts.doctorID)

	resp := ts.do(t, http.MethodPut, path, req, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	patient := booking.Actor{ID: ts.patientID, Role: booking.RolePatient}
	resp = ts.do(t, http.MethodPut, path, req, &patient)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	otherDoctor := booking.Actor{ID: uuid.New(), Role: booking.RoleDoctor}
	resp = ts.do(t, http.MethodPut, path, req, &otherDoctor)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestSetHoursRejectsBadWindow(t *testing.T) {
	ts := newTestServer(t)
	actor := booking.Actor{ID: ts.doctorID, Role: booking.RoleDoctor}

	resp := ts.do(t, http.MethodPut, fmt.Sprintf("/doctors/%s/hours", ts.doctorID), SetHoursRequest{
		ClinicID:     ts.clinicID.String(),
		Start:        "17:00",
		End:          "09:00",
		SlotDuration: 30,
	}, &actor)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestBookAndDoubleBook(t *testing.T) {
	ts := newTestServer(t)
	ts.setHours(t, "09:00", "17:00", 30, 10)

	resp := ts.do(t, http.MethodPost, "/appointments", ts.bookRequest("09:00"), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	appt := decode[AppointmentResponse](t, resp)
	assert.Equal(t, "09:00", appt.Start)
	assert.Equal(t, "09:30", appt.End)
	assert.Equal(t, "booked", appt.Status)

	// The booked slot disappears from availability.
	got := ts.availability(t, "2025-06-01")
	require.Len(t, got.Slots, 11)
	assert.Equal(t, "09:40", got.Slots[0].Start)

	// Same slot again conflicts.
	resp = ts.do(t, http.MethodPost, "/appointments", ts.bookRequest("09:00"), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decode[ErrorResponse](t, resp)
	assert.Equal(t, "slot_unavailable", body.Error)
}

func TestBookValidationErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.setHours(t, "09:00", "17:00", 30, 10)

	bad := ts.bookRequest("09:00")
	bad.PatientID = "nope"
	resp := ts.do(t, http.MethodPost, "/appointments", bad, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	offGrid := ts.bookRequest("09:10")
	resp = ts.do(t, http.MethodPost, "/appointments", offGrid, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[ErrorResponse](t, resp)
	assert.Equal(t, "invalid_input", body.Error)

	unknown := ts.bookRequest("09:00")
	unknown.PatientID = uuid.New().String()
	resp = ts.do(t, http.MethodPost, "/appointments", unknown, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestBookAsOtherPatientForbidden(t *testing.T) {
	ts := newTestServer(t)
	ts.setHours(t, "09:00", "17:00", 30, 10)

	other := booking.Actor{ID: uuid.New(), Role: booking.RolePatient}
	resp := ts.do(t, http.MethodPost, "/appointments", ts.bookRequest("09:00"), &other)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestRescheduleEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.setHours(t, "09:00", "17:00", 30, 10)

	resp := ts.do(t, http.MethodPost, "/appointments", ts.bookRequest("09:00"), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	appt := decode[AppointmentResponse](t, resp)

	patient := booking.Actor{ID: ts.patientID, Role: booking.RolePatient}
	resp = ts.do(t, http.MethodPatch, "/appointments/"+appt.ID.String(),
		RescheduleAppointmentRequest{Date: "2025-06-01", Start: "10:20"}, &patient)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	moved := decode[AppointmentResponse](t, resp)
	assert.Equal(t, appt.ID, moved.ID)
	assert.Equal(t, "10:20", moved.Start)
	assert.Equal(t, "rescheduled", moved.Status)

	// Without identity headers the mutation is refused.
	resp = ts.do(t, http.MethodPatch, "/appointments/"+appt.ID.String(),
		RescheduleAppointmentRequest{Date: "2025-06-01", Start: "11:00"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// A stranger is refused.
	stranger := booking.Actor{ID: uuid.New(), Role: booking.RolePatient}
	resp = ts.do(t, http.MethodPatch, "/appointments/"+appt.ID.String(),
		RescheduleAppointmentRequest{Date: "2025-06-01", Start: "11:00"}, &stranger)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestCancelEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.setHours(t, "09:00", "17:00", 30, 10)

	resp := ts.do(t, http.MethodPost, "/appointments", ts.bookRequest("09:00"), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	appt := decode[AppointmentResponse](t, resp)

	resp = ts.do(t, http.MethodDelete, "/appointments/"+appt.ID.String(), nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	patient := booking.Actor{ID: ts.patientID, Role: booking.RolePatient}
	resp = ts.do(t, http.MethodDelete, "/appointments/"+appt.ID.String(), nil, &patient)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Idempotent: a second delete also succeeds.
	resp = ts.do(t, http.MethodDelete, "/appointments/"+appt.ID.String(), nil, &patient)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	got := ts.availability(t, "2025-06-01")
	assert.Equal(t, "09:00", got.Slots[0].Start, "cancelled slot is free again")
}

func TestListAndGetEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.setHours(t, "09:00", "17:00", 30, 10)

	resp := ts.do(t, http.MethodPost, "/appointments", ts.bookRequest("09:00"), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	appt := decode[AppointmentResponse](t, resp)

	resp = ts.do(t, http.MethodGet, "/appointments?doctor_id="+ts.doctorID.String(), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	byDoctor := decode[[]AppointmentResponse](t, resp)
	require.Len(t, byDoctor, 1)
	assert.Equal(t, appt.ID, byDoctor[0].ID)

	resp = ts.do(t, http.MethodGet, "/appointments?patient_id="+ts.patientID.String(), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	byPatient := decode[[]AppointmentResponse](t, resp)
	require.Len(t, byPatient, 1)

	resp = ts.do(t, http.MethodGet, "/appointments", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = ts.do(t, http.MethodGet, "/appointments/"+appt.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	single := decode[AppointmentResponse](t, resp)
	assert.Equal(t, appt.ID, single.ID)

	resp = ts.do(t, http.MethodGet, "/appointments/"+uuid.New().String(), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestIdentityHeaderValidation(t *testing.T) {
	ts := newTestServer(t)
	ts.setHours(t, "09:00", "17:00", 30, 10)

	req, err := http.NewRequest(http.MethodGet,
		ts.srv.URL+fmt.Sprintf("/doctors/%s/availability?clinic_id=%s&date=2025-06-01", ts.doctorID, ts.clinicID), nil)
	require.NoError(t, err)
	req.Header.Set("X-User-ID", "not-a-uuid")

	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[ErrorResponse](t, resp)
	assert.Equal(t, "invalid_user_id", body.Error)
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.do(t, http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
