package schedule

import (
	"errors"
	"fmt"
)

var ErrInvalidHours = errors.New("invalid hours configuration")

// HoursConfig describes a doctor's working window at one clinic, in
// clinic-local minutes of day.
type HoursConfig struct {
	StartMinute  int // 0..1439, inclusive lower bound of the window
	EndMinute    int // 0..1439, exclusive upper bound, > StartMinute
	SlotDuration int // minutes per bookable slot, > 0
	Buffer       int // idle minutes between consecutive slots, >= 0
}

// Validate checks the invariants that keep slot generation finite and
// meaningful. SlotDuration larger than the window is legal and simply
// yields zero slots, so it is not rejected here.
func (c HoursConfig) Validate() error {
	if c.StartMinute < 0 || c.StartMinute >= MinutesPerDay {
		return fmt.Errorf("%w: start_minute %d", ErrInvalidHours, c.StartMinute)
	}
	if c.EndMinute <= c.StartMinute || c.EndMinute > MinutesPerDay {
		return fmt.Errorf("%w: end_minute %d", ErrInvalidHours, c.EndMinute)
	}
	if c.SlotDuration <= 0 {
		return fmt.Errorf("%w: slot_duration %d", ErrInvalidHours, c.SlotDuration)
	}
	if c.Buffer < 0 {
		return fmt.Errorf("%w: buffer %d", ErrInvalidHours, c.Buffer)
	}
	return nil
}

// Slot is a candidate bookable interval. Slots are derived on demand and
// never stored; only appointments are persisted.
type Slot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Generate emits the ordered candidate slots for one day under cfg.
// The cursor advances by SlotDuration+Buffer per slot and a trailing
// remainder shorter than SlotDuration is dropped. The result is fully
// determined by cfg; an empty window yields an empty (non-nil) list.
func Generate(cfg HoursConfig) []Slot {
	slots := []Slot{}
	if cfg.SlotDuration <= 0 {
		// Validate rejects this; guarding again keeps the loop finite.
		return slots
	}
	for cur := cfg.StartMinute; cur+cfg.SlotDuration <= cfg.EndMinute; cur += cfg.SlotDuration + cfg.Buffer {
		start, _ := ToTimeString(cur)
		end, _ := ToTimeString(cur + cfg.SlotDuration)
		slots = append(slots, Slot{Start: start, End: end})
	}
	return slots
}
