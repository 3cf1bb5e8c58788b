package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicarehq/booking-engine/internal/booking"
)

type stubEmitter struct {
	calls int
	err   error
}

func (s *stubEmitter) Emit(context.Context, booking.Event) error {
	s.calls++
	return s.err
}

func sampleEvent() booking.Event {
	return booking.Event{
		Kind: booking.EventBooked,
		Appointment: booking.Appointment{
			ID:        uuid.New(),
			DoctorID:  uuid.New(),
			ClinicID:  uuid.New(),
			PatientID: uuid.New(),
			Date:      "2025-06-01",
			StartTime: "09:00",
			EndTime:   "09:30",
			Status:    booking.StatusBooked,
		},
		OccurredAt: time.Now().UTC(),
	}
}

func TestLogEmitter(t *testing.T) {
	e := NewLogEmitter(zerolog.Nop())
	assert.NoError(t, e.Emit(context.Background(), sampleEvent()))
}

func TestFanoutAttemptsAll(t *testing.T) {
	errBroker := errors.New("broker unreachable")
	a := &stubEmitter{err: errBroker}
	b := &stubEmitter{}
	c := &stubEmitter{err: errors.New("later failure")}

	err := Fanout{a, b, c}.Emit(context.Background(), sampleEvent())

	assert.ErrorIs(t, err, errBroker, "first error wins")
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls, "a failing emitter does not stop the rest")
	assert.Equal(t, 1, c.calls)
}

func TestFanoutEmpty(t *testing.T) {
	assert.NoError(t, Fanout{}.Emit(context.Background(), sampleEvent()))
}

// The published payload is consumed by external subscribers; its field
// names are part of the contract.
func TestEventPayloadShape(t *testing.T) {
	ev := sampleEvent()
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))

	assert.Equal(t, "appointment_booked", payload["kind"])
	assert.Contains(t, payload, "occurred_at")

	appt, ok := payload["appointment"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, ev.Appointment.ID.String(), appt["id"])
	assert.Equal(t, "2025-06-01", appt["date"])
	assert.Equal(t, "09:00", appt["start_time"])
	assert.Equal(t, "booked", appt["status"])
}
