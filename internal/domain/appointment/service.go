package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/queue"
)

// QueueEngine is the slice of the queue service the synchronizer needs.
type QueueEngine interface {
	AddPatient(ctx context.Context, room string, p queue.AdmitParams) (*queue.Entry, error)
	UpdateStateByAppointment(ctx context.Context, room string, appointmentID uuid.UUID, state queue.EntryState) error
	CompleteByAppointment(ctx context.Context, room string, appointmentID uuid.UUID) error
	RemoveByAppointment(ctx context.Context, room string, appointmentID uuid.UUID) error
}

// PatientInfo is the denormalized patient label carried into the queue.
type PatientInfo struct {
	Name   string
	Number string
}

type PatientDirectory interface {
	PatientInfo(ctx context.Context, id uuid.UUID) (*PatientInfo, error)
}

// StaffInfo labels the doctor a room queue is assigned to.
type StaffInfo struct {
	Name       string
	Department string
}

type StaffDirectory interface {
	StaffInfo(ctx context.Context, id uuid.UUID) (*StaffInfo, error)
}

// Biller raises the OPD fee invoice when a booking is admitted to a queue.
type Biller interface {
	CreateConsultationInvoice(ctx context.Context, patientID, appointmentID uuid.UUID) error
}

// Notifier announces appointment lifecycle events. Implementations must not
// block the caller.
type Notifier interface {
	AppointmentBooked(ctx context.Context, a *Appointment)
	AppointmentStatusChanged(ctx context.Context, a *Appointment, status string)
}

// Service owns appointment state and keeps the room queues in step with it.
// Queue, billing and notification side effects are strictly best-effort: a
// failure there is logged and never fails the appointment mutation itself.
type Service struct {
	repo   Repository
	logger zerolog.Logger

	queue    QueueEngine
	patients PatientDirectory
	staff    StaffDirectory
	billing  Biller
	notifier Notifier
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) SetQueueEngine(q QueueEngine)          { s.queue = q }
func (s *Service) SetPatientDirectory(p PatientDirectory) { s.patients = p }
func (s *Service) SetStaffDirectory(d StaffDirectory)    { s.staff = d }
func (s *Service) SetBiller(b Biller)                    { s.billing = b }
func (s *Service) SetNotifier(n Notifier)                { s.notifier = n }

// Create books an appointment and queues the patient into the room. A
// successful admission raises the OPD fee invoice for the visit. The
// appointment is created even when queue placement or billing fails.
func (s *Service) Create(ctx context.Context, a *Appointment) error {
	if a.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required: %w", ErrValidation)
	}
	if a.DoctorID == uuid.Nil {
		return fmt.Errorf("doctor_id is required: %w", ErrValidation)
	}
	if a.Room == "" {
		return fmt.Errorf("room is required: %w", ErrValidation)
	}
	if a.ScheduledAt.IsZero() {
		return fmt.Errorf("scheduled_at is required: %w", ErrValidation)
	}
	a.Status = StatusBooked

	if err := s.repo.Create(ctx, a); err != nil {
		return err
	}

	s.placeInQueue(ctx, a)

	// Queue admission implies a billable OPD fee. Billing is tied to the
	// token assignment so a failed admission does not invoice the patient.
	if a.QueueToken != "" && s.billing != nil {
		if err := s.billing.CreateConsultationInvoice(ctx, a.PatientID, a.ID); err != nil {
			s.logger.Warn().Err(err).Stringer("appointment_id", a.ID).
				Msg("opd fee invoice failed")
		}
	}

	if s.notifier != nil {
		s.notifier.AppointmentBooked(ctx, a)
	}
	return nil
}

// placeInQueue admits the appointment's patient into the room queue and
// writes the assigned token back onto the appointment row.
func (s *Service) placeInQueue(ctx context.Context, a *Appointment) {
	if s.queue == nil {
		return
	}
	params := queue.AdmitParams{
		AppointmentID: &a.ID,
		PatientID:     a.PatientID,
		Department:    a.Department,
	}
	if s.patients != nil {
		if info, err := s.patients.PatientInfo(ctx, a.PatientID); err == nil {
			params.PatientName = info.Name
			params.PatientNo = info.Number
		} else {
			s.logger.Warn().Err(err).Stringer("patient_id", a.PatientID).
				Msg("patient lookup failed, queueing without label")
		}
	}
	if s.staff != nil {
		if info, err := s.staff.StaffInfo(ctx, a.DoctorID); err == nil {
			params.AssignedStaffID = &a.DoctorID
			params.AssignedStaffName = info.Name
			if params.Department == "" {
				params.Department = info.Department
			}
		}
	}

	entry, err := s.queue.AddPatient(ctx, a.Room, params)
	if err != nil {
		s.logger.Warn().Err(err).Stringer("appointment_id", a.ID).Str("room", a.Room).
			Msg("queue placement failed")
		return
	}
	a.QueueToken = entry.Token
	if err := s.repo.SetQueueToken(ctx, a.ID, entry.Token); err != nil {
		s.logger.Warn().Err(err).Stringer("appointment_id", a.ID).
			Msg("queue token writeback failed")
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

// Update reschedules an appointment. A room change moves the patient's queue
// entry to the new room.
func (s *Service) Update(ctx context.Context, a *Appointment) error {
	if a.Room == "" {
		return fmt.Errorf("room is required: %w", ErrValidation)
	}
	current, err := s.repo.GetByID(ctx, a.ID)
	if err != nil {
		return err
	}
	if current.Status == StatusCompleted || current.Status == StatusCancelled || current.Status == StatusNoShow {
		return fmt.Errorf("appointment %s is %s: %w", a.ID, current.Status, ErrConflict)
	}

	if err := s.repo.Update(ctx, a); err != nil {
		return err
	}

	if s.queue != nil && current.Room != a.Room {
		if err := s.queue.RemoveByAppointment(ctx, current.Room, a.ID); err != nil {
			s.logger.Warn().Err(err).Stringer("appointment_id", a.ID).Str("room", current.Room).
				Msg("queue removal on room change failed")
		}
		a.PatientID = current.PatientID
		s.placeInQueue(ctx, a)
	}
	return nil
}

// UpdateStatus moves an appointment through its lifecycle and mirrors the
// change into the room queue.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*Appointment, error) {
	if _, ok := validTransitions[status]; !ok {
		return nil, fmt.Errorf("invalid status %q: %w", status, ErrValidation)
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(a.Status, status) {
		return nil, fmt.Errorf("cannot move appointment from %s to %s: %w", a.Status, status, ErrConflict)
	}

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	a.Status = status

	s.syncQueue(ctx, a, status)

	if s.notifier != nil {
		s.notifier.AppointmentStatusChanged(ctx, a, status)
	}
	return a, nil
}

func (s *Service) syncQueue(ctx context.Context, a *Appointment, status string) {
	if s.queue == nil {
		return
	}
	var err error
	switch status {
	case StatusVitalsRecorded:
		err = s.queue.UpdateStateByAppointment(ctx, a.Room, a.ID, queue.StateVitalsRecorded)
	case StatusCompleted:
		err = s.queue.CompleteByAppointment(ctx, a.Room, a.ID)
	case StatusCancelled, StatusNoShow:
		// The entry stays in the queue as skipped so the day's token
		// numbering and the display history keep the slot visible.
		err = s.queue.UpdateStateByAppointment(ctx, a.Room, a.ID, queue.StateSkipped)
	default:
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Stringer("appointment_id", a.ID).Str("room", a.Room).
			Str("status", status).Msg("queue sync failed")
	}
}

// Delete removes an appointment. The queue entry goes first so a half-failed
// delete cannot leave a queue entry pointing at a missing appointment.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if s.queue != nil {
		if err := s.queue.RemoveByAppointment(ctx, a.Room, id); err != nil {
			s.logger.Warn().Err(err).Stringer("appointment_id", id).Str("room", a.Room).
				Msg("queue removal on delete failed")
		}
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, day time.Time, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.ListByDoctor(ctx, doctorID, day, limit, offset)
}

func (s *Service) ListByDay(ctx context.Context, day time.Time, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.ListByDay(ctx, day, limit, offset)
}
