package booking

import (
	"context"
	"time"
)

type EventKind string

const (
	EventBooked      EventKind = "appointment_booked"
	EventRescheduled EventKind = "appointment_rescheduled"
	EventCancelled   EventKind = "appointment_cancelled"
	EventCompleted   EventKind = "appointment_completed"
)

// Event is the payload handed to the notification emitter after a state
// change has committed. Both the patient and the doctor are recipients.
type Event struct {
	Kind        EventKind   `json:"kind"`
	Appointment Appointment `json:"appointment"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

// Emitter delivers domain events to the notification layer. Calls are
// fire-and-forget from the ledger's perspective: a delivery failure is
// logged and never rolls back the committed state change.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// NopEmitter discards events. Useful default for tests and tooling.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, Event) error { return nil }
