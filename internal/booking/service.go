package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/medicarehq/booking-engine/internal/schedule"
)

const DateLayout = "2006-01-02"

var (
	ErrInvalidDate     = errors.New("date must be in YYYY-MM-DD format")
	ErrInvalidSlot     = errors.New("start does not match a bookable slot")
	ErrSlotBeingBooked = errors.New("slot is currently being booked, please retry")
	ErrTerminalStatus  = errors.New("appointment is in a terminal status")
	ErrNotAllowed      = errors.New("caller may not modify this appointment")
)

// Service is the booking ledger and availability resolver. It is the
// single arbiter of the one-active-appointment-per-slot invariant: every
// write re-checks slot freedom inside the per-slot lock, and the store
// enforces the same invariant underneath as a last line of defense.
type Service struct {
	repo    Repository
	locker  Locker
	emitter Emitter
	hours   *gocache.Cache
	log     zerolog.Logger
}

func NewService(repo Repository, locker Locker, emitter Emitter, hoursTTL time.Duration, log zerolog.Logger) *Service {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	return &Service{
		repo:    repo,
		locker:  locker,
		emitter: emitter,
		hours:   gocache.New(hoursTTL, 2*hoursTTL),
		log:     log,
	}
}

func hoursCacheKey(doctorID, clinicID uuid.UUID) string {
	return doctorID.String() + "|" + clinicID.String()
}

func (s *Service) hoursFor(ctx context.Context, doctorID, clinicID uuid.UUID) (schedule.HoursConfig, error) {
	key := hoursCacheKey(doctorID, clinicID)
	if v, ok := s.hours.Get(key); ok {
		return v.(schedule.HoursConfig), nil
	}

	cfg, err := s.repo.GetHours(ctx, doctorID, clinicID)
	if err != nil {
		return schedule.HoursConfig{}, err
	}

	s.hours.SetDefault(key, *cfg)
	return *cfg, nil
}

// SetHours validates and stores the working-hours configuration for a
// doctor at a clinic, replacing any previous one.
func (s *Service) SetHours(ctx context.Context, doctorID, clinicID uuid.UUID, cfg schedule.HoursConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return err
	}
	if err := s.repo.UpsertHours(ctx, doctorID, clinicID, cfg); err != nil {
		return fmt.Errorf("upsert hours: %w", err)
	}
	s.hours.Delete(hoursCacheKey(doctorID, clinicID))
	return nil
}

// ResolveAvailability returns the free slots for a doctor+clinic+date in
// chronological order. Read-only and safe to call concurrently.
//
// An active appointment hides a candidate only when its start matches the
// candidate's start exactly. Bookings made under an older hours
// configuration may therefore not line up with current candidates; that
// matches the observed upstream behavior.
func (s *Service) ResolveAvailability(ctx context.Context, doctorID, clinicID uuid.UUID, date string) ([]schedule.Slot, error) {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}

	cfg, err := s.hoursFor(ctx, doctorID, clinicID)
	if err != nil {
		return nil, err
	}

	candidates := schedule.Generate(cfg)
	if len(candidates) == 0 {
		return candidates, nil
	}

	active, err := s.repo.ListActiveForDay(ctx, doctorID, clinicID, date)
	if err != nil {
		return nil, fmt.Errorf("list active appointments: %w", err)
	}

	taken := make(map[string]struct{}, len(active))
	for _, a := range active {
		taken[a.StartTime] = struct{}{}
	}

	free := make([]schedule.Slot, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := taken[c.Start]; !ok {
			free = append(free, c)
		}
	}
	return free, nil
}

// slotFor validates that (date, start) names a bookable slot under the
// doctor's current configuration and returns its end boundary.
func (s *Service) slotFor(ctx context.Context, doctorID, clinicID uuid.UUID, date, start string) (SlotRef, string, error) {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return SlotRef{}, "", fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	if _, err := schedule.ToMinutes(start); err != nil {
		return SlotRef{}, "", err
	}

	cfg, err := s.hoursFor(ctx, doctorID, clinicID)
	if err != nil {
		return SlotRef{}, "", err
	}

	for _, c := range schedule.Generate(cfg) {
		if c.Start == start {
			ref := SlotRef{DoctorID: doctorID, ClinicID: clinicID, Date: date, Start: start}
			return ref, c.End, nil
		}
	}
	return SlotRef{}, "", fmt.Errorf("%w: %s %s", ErrInvalidSlot, date, start)
}

// Book reserves a slot for a patient. The freedom check and the insert run
// inside a per-slot lock, and the store's uniqueness guarantee catches any
// race the lock misses, so two concurrent calls for the same slot can
// never both succeed.
func (s *Service) Book(ctx context.Context, doctorID, clinicID, patientID uuid.UUID, date, start, notes string) (*Appointment, error) {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		return nil, err
	}

	ref, end, err := s.slotFor(ctx, doctorID, clinicID, date, start)
	if err != nil {
		return nil, err
	}

	var created *Appointment

	err = s.locker.WithSlotLock(ctx, ref.LockKey(), func(lockCtx context.Context) error {
		existing, err := s.repo.GetActiveAppointmentForSlot(lockCtx, ref)
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return fmt.Errorf("check active appointment: %w", err)
		}
		if existing != nil {
			return ErrSlotTaken
		}

		appt := &Appointment{
			ID:        uuid.New(),
			DoctorID:  doctorID,
			ClinicID:  clinicID,
			PatientID: patientID,
			Date:      date,
			StartTime: start,
			EndTime:   end,
			Status:    StatusBooked,
			Notes:     notes,
		}
		created, err = s.repo.InsertAppointment(lockCtx, appt)
		if err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.emit(ctx, EventBooked, *created)
	return created, nil
}

// Reschedule moves an active appointment to a new slot in place. The
// appointment keeps its identity; only date, times and status change.
func (s *Service) Reschedule(ctx context.Context, apptID uuid.UUID, actor Actor, newDate, newStart string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, apptID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(appt, actor); err != nil {
		return nil, err
	}
	if !appt.Status.CanTransitionTo(StatusRescheduled) {
		return nil, fmt.Errorf("%w: %s", ErrTerminalStatus, appt.Status)
	}

	ref, end, err := s.slotFor(ctx, appt.DoctorID, appt.ClinicID, newDate, newStart)
	if err != nil {
		return nil, err
	}

	var updated *Appointment

	err = s.locker.WithSlotLock(ctx, ref.LockKey(), func(lockCtx context.Context) error {
		existing, err := s.repo.GetActiveAppointmentForSlot(lockCtx, ref)
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return fmt.Errorf("check active appointment: %w", err)
		}
		if existing != nil && existing.ID != appt.ID {
			return ErrSlotTaken
		}

		updated, err = s.repo.UpdateAppointmentSlot(lockCtx, appt.ID, ref, end, StatusRescheduled)
		if err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.emit(ctx, EventRescheduled, *updated)
	return updated, nil
}

// Cancel marks an appointment cancelled. Cancelling an already-cancelled
// appointment is a no-op success so duplicate client requests are
// harmless. Completed appointments cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, apptID uuid.UUID, actor Actor) error {
	appt, err := s.repo.GetAppointmentByID(ctx, apptID)
	if err != nil {
		return err
	}
	if err := s.authorize(appt, actor); err != nil {
		return err
	}
	if appt.Status == StatusCancelled {
		return nil
	}
	if !appt.Status.CanTransitionTo(StatusCancelled) {
		return fmt.Errorf("%w: %s", ErrTerminalStatus, appt.Status)
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, []AppointmentStatus{StatusBooked, StatusRescheduled}, StatusCancelled)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost the race to another canceller; same outcome.
			return nil
		}
		return fmt.Errorf("cancel appointment: %w", err)
	}

	s.emit(ctx, EventCancelled, *updated)
	return nil
}

// Complete transitions an active appointment to completed. Exposed for
// the completion worker; not reachable through the public API.
func (s *Service) Complete(ctx context.Context, apptID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, apptID)
	if err != nil {
		return nil, err
	}
	if !appt.Status.CanTransitionTo(StatusCompleted) {
		return nil, fmt.Errorf("%w: %s", ErrTerminalStatus, appt.Status)
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, []AppointmentStatus{StatusBooked, StatusRescheduled}, StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("complete appointment: %w", err)
	}

	s.emit(ctx, EventCompleted, *updated)
	return updated, nil
}

// CompletePast sweeps active appointments whose end has passed and marks
// them completed. Called periodically by the completion worker.
func (s *Service) CompletePast(ctx context.Context, now time.Time) error {
	date := now.Format(DateLayout)
	clock := now.Format("15:04")

	past, err := s.repo.FindActivePast(ctx, date, clock)
	if err != nil {
		return fmt.Errorf("find past appointments: %w", err)
	}

	for _, appt := range past {
		if _, err := s.Complete(ctx, appt.ID); err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to complete past appointment")
		}
	}
	return nil
}

func (s *Service) ListForDoctor(ctx context.Context, doctorID uuid.UUID, clinicID *uuid.UUID) ([]Appointment, error) {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.repo.ListForDoctor(ctx, doctorID, clinicID)
}

func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		return nil, err
	}
	return s.repo.ListForPatient(ctx, patientID)
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

// authorize enforces the ownership rule: only the booking patient or the
// appointment's doctor may mutate it.
func (s *Service) authorize(appt *Appointment, actor Actor) error {
	if actor.ID == appt.PatientID || actor.ID == appt.DoctorID {
		return nil
	}
	return ErrNotAllowed
}

func (s *Service) emit(ctx context.Context, kind EventKind, appt Appointment) {
	ev := Event{
		Kind:        kind,
		Appointment: appt,
		OccurredAt:  time.Now().UTC(),
	}
	if err := s.emitter.Emit(ctx, ev); err != nil {
		s.log.Warn().Err(err).
			Str("event", string(kind)).
			Str("appointment_id", appt.ID.String()).
			Msg("notification emit failed")
	}
}
