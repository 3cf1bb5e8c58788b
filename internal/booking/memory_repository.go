package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medicarehq/booking-engine/internal/schedule"
)

// MemoryRepository is a mutex-guarded in-memory ledger store. It is the
// configured backend for local development and tests, never a silent
// fallback for an unreachable database.
type MemoryRepository struct {
	mu       sync.RWMutex
	doctors  map[uuid.UUID]Doctor
	clinics  map[uuid.UUID]Clinic
	patients map[uuid.UUID]Patient
	hours    map[string]schedule.HoursConfig
	appts    map[uuid.UUID]Appointment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		doctors:  make(map[uuid.UUID]Doctor),
		clinics:  make(map[uuid.UUID]Clinic),
		patients: make(map[uuid.UUID]Patient),
		hours:    make(map[string]schedule.HoursConfig),
		appts:    make(map[uuid.UUID]Appointment),
	}
}

func hoursKey(doctorID, clinicID uuid.UUID) string {
	return doctorID.String() + "|" + clinicID.String()
}

// AddDoctor, AddClinic and AddPatient register reference entities. Used
// by local seeding and tests; there is no API surface for them.

func (r *MemoryRepository) AddDoctor(d Doctor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	r.doctors[d.ID] = d
}

func (r *MemoryRepository) AddClinic(c Clinic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	r.clinics[c.ID] = c
}

func (r *MemoryRepository) AddPatient(p Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	r.patients[p.ID] = p
}

func (r *MemoryRepository) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (r *MemoryRepository) GetClinicByID(_ context.Context, id uuid.UUID) (*Clinic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clinics[id]
	if !ok {
		return nil, ErrClinicNotFound
	}
	return &c, nil
}

func (r *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) GetHours(_ context.Context, doctorID, clinicID uuid.UUID) (*schedule.HoursConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.hours[hoursKey(doctorID, clinicID)]
	if !ok {
		return nil, ErrHoursNotConfigured
	}
	return &cfg, nil
}

func (r *MemoryRepository) UpsertHours(_ context.Context, doctorID, clinicID uuid.UUID, cfg schedule.HoursConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hours[hoursKey(doctorID, clinicID)] = cfg
	return nil
}

func (r *MemoryRepository) GetActiveAppointmentForSlot(_ context.Context, slot SlotRef) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.findActiveLocked(slot); ok {
		return &a, nil
	}
	return nil, ErrAppointmentNotFound
}

func (r *MemoryRepository) findActiveLocked(slot SlotRef) (Appointment, bool) {
	for _, a := range r.appts {
		if a.DoctorID == slot.DoctorID && a.ClinicID == slot.ClinicID &&
			a.Date == slot.Date && a.StartTime == slot.Start && a.Status.Active() {
			return a, true
		}
	}
	return Appointment{}, false
}

func (r *MemoryRepository) InsertAppointment(_ context.Context, appt *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot := SlotRef{DoctorID: appt.DoctorID, ClinicID: appt.ClinicID, Date: appt.Date, Start: appt.StartTime}
	if _, taken := r.findActiveLocked(slot); taken {
		return nil, ErrSlotTaken
	}

	now := time.Now()
	stored := *appt
	stored.CreatedAt, stored.UpdatedAt = now, now
	r.appts[stored.ID] = stored
	return &stored, nil
}

func (r *MemoryRepository) UpdateAppointmentSlot(_ context.Context, id uuid.UUID, slot SlotRef, end string, status AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appts[id]
	if !ok || !a.Status.Active() {
		return nil, ErrAppointmentNotFound
	}
	if other, taken := r.findActiveLocked(slot); taken && other.ID != id {
		return nil, ErrSlotTaken
	}

	a.Date = slot.Date
	a.StartTime = slot.Start
	a.EndTime = end
	a.Status = status
	a.UpdatedAt = time.Now()
	r.appts[id] = a
	return &a, nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	matched := false
	for _, s := range from {
		if a.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return nil, ErrAppointmentNotFound
	}

	a.Status = to
	a.UpdatedAt = time.Now()
	r.appts[id] = a
	return &a, nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) ListActiveForDay(_ context.Context, doctorID, clinicID uuid.UUID, date string) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Appointment
	for _, a := range r.appts {
		if a.DoctorID == doctorID && a.ClinicID == clinicID && a.Date == date && a.Status.Active() {
			result = append(result, a)
		}
	}
	sortAppointments(result)
	return result, nil
}

func (r *MemoryRepository) ListForDoctor(_ context.Context, doctorID uuid.UUID, clinicID *uuid.UUID) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Appointment
	for _, a := range r.appts {
		if a.DoctorID != doctorID {
			continue
		}
		if clinicID != nil && a.ClinicID != *clinicID {
			continue
		}
		result = append(result, a)
	}
	sortAppointments(result)
	return result, nil
}

func (r *MemoryRepository) ListForPatient(_ context.Context, patientID uuid.UUID) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Appointment
	for _, a := range r.appts {
		if a.PatientID == patientID {
			result = append(result, a)
		}
	}
	sortAppointments(result)
	return result, nil
}

func (r *MemoryRepository) FindActivePast(_ context.Context, date, now string) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Appointment
	for _, a := range r.appts {
		if !a.Status.Active() {
			continue
		}
		if a.Date < date || (a.Date == date && a.EndTime <= now) {
			result = append(result, a)
		}
	}
	return result, nil
}

// Lexicographic order on (date, start) is chronological because both are
// fixed-width zero-padded strings.
func sortAppointments(appts []Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if appts[i].Date != appts[j].Date {
			return appts[i].Date < appts[j].Date
		}
		return appts[i].StartTime < appts[j].StartTime
	})
}

// LocalLocker serializes slot critical sections within one process. It
// pairs with MemoryRepository; multi-process deployments use the redis
// locker instead.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *LocalLocker) WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}
