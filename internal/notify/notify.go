// Package notify carries committed booking events to the outside world.
// Delivery here is best effort: the ledger has already durably committed
// by the time an emitter runs, so failures are reported but never undo a
// booking.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medicarehq/booking-engine/internal/booking"
)

// LogEmitter writes each event to the structured log. It is the default
// emitter in dev and the last resort when no broker is configured.
type LogEmitter struct {
	log zerolog.Logger
}

func NewLogEmitter(log zerolog.Logger) *LogEmitter {
	return &LogEmitter{log: log}
}

func (e *LogEmitter) Emit(_ context.Context, ev booking.Event) error {
	e.log.Info().
		Str("event", string(ev.Kind)).
		Str("appointment_id", ev.Appointment.ID.String()).
		Str("doctor_id", ev.Appointment.DoctorID.String()).
		Str("patient_id", ev.Appointment.PatientID.String()).
		Str("date", ev.Appointment.Date).
		Str("start", ev.Appointment.StartTime).
		Str("status", string(ev.Appointment.Status)).
		Msg("appointment event")
	return nil
}

// RedisEmitter publishes events as JSON on a Redis channel. Downstream
// consumers (mailer, in-app notification feed) subscribe there.
type RedisEmitter struct {
	client  *redis.Client
	channel string
}

func NewRedisEmitter(client *redis.Client, channel string) *RedisEmitter {
	return &RedisEmitter{client: client, channel: channel}
}

func (e *RedisEmitter) Emit(ctx context.Context, ev booking.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := e.client.Publish(ctx, e.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Fanout emits to every underlying emitter, attempting all of them even
// when one fails, and reports the first error.
type Fanout []booking.Emitter

func (f Fanout) Emit(ctx context.Context, ev booking.Event) error {
	var first error
	for _, e := range f {
		if err := e.Emit(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
