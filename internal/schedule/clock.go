package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidFormat = errors.New("time must be in HH:MM format")
	ErrInvalidRange  = errors.New("minutes out of range")
)

// MinutesPerDay bounds every wall-clock value the engine handles.
const MinutesPerDay = 24 * 60

// ToMinutes parses a "HH:MM" wall-clock string into a minute-of-day offset.
func ToMinutes(hhmm string) (int, error) {
	parts := strings.Split(hhmm, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, hhmm)
	}
	if len(parts[0]) < 1 || len(parts[0]) > 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, hhmm)
	}
	if !digits(parts[0]) || !digits(parts[1]) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, hhmm)
	}

	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, hhmm)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, hhmm)
	}

	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, hhmm)
	}

	return h*60 + m, nil
}

// ToTimeString is the inverse of ToMinutes, always zero-padded to "HH:MM".
func ToTimeString(minutes int) (string, error) {
	if minutes < 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidRange, minutes)
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60), nil
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
