package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FeeSchedule holds the OPD consultation fees per patient class.
type FeeSchedule struct {
	ConsultationNew       float64
	ConsultationReturning float64
}

// PatientRegistry is the slice of the identity service billing needs: the
// fee class of a patient, and the flip to returning after the first visit.
type PatientRegistry interface {
	PatientType(ctx context.Context, id uuid.UUID) (string, error)
	MarkReturning(ctx context.Context, id uuid.UUID) error
}

type Service struct {
	repo     Repository
	fees     FeeSchedule
	registry PatientRegistry
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, fees FeeSchedule, logger zerolog.Logger) *Service {
	return &Service{repo: repo, fees: fees, logger: logger, now: time.Now}
}

func (s *Service) SetPatientRegistry(r PatientRegistry) { s.registry = r }

func (s *Service) CreateInvoice(ctx context.Context, inv *Invoice) error {
	if inv.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required: %w", ErrValidation)
	}
	if len(inv.Items) == 0 {
		return fmt.Errorf("at least one line item is required: %w", ErrValidation)
	}
	if inv.Discount < 0 {
		return fmt.Errorf("discount cannot be negative: %w", ErrValidation)
	}
	inv.Status = StatusPending
	inv.Recalculate()
	return s.repo.Create(ctx, inv)
}

// CreateConsultationInvoice raises the standard OPD charge for a completed
// visit. Returning patients get the follow-up rate, and a new patient is
// flipped to returning once the charge exists.
func (s *Service) CreateConsultationInvoice(ctx context.Context, patientID, appointmentID uuid.UUID) error {
	fee := s.fees.ConsultationNew
	description := "OPD consultation"
	if s.registry != nil {
		if class, err := s.registry.PatientType(ctx, patientID); err == nil && class == "returning" {
			fee = s.fees.ConsultationReturning
			description = "OPD follow-up consultation"
		}
	}

	inv := &Invoice{
		PatientID:     patientID,
		AppointmentID: &appointmentID,
		Items:         []LineItem{{Description: description, Quantity: 1, UnitPrice: fee}},
		Status:        StatusPending,
	}
	inv.Recalculate()
	if err := s.repo.Create(ctx, inv); err != nil {
		return err
	}

	if s.registry != nil {
		if err := s.registry.MarkReturning(ctx, patientID); err != nil {
			s.logger.Warn().Err(err).Stringer("patient_id", patientID).
				Msg("mark returning failed")
		}
	}
	return nil
}

func (s *Service) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return s.repo.GetByID(ctx, id)
}

// RecordPayment settles a pending invoice.
func (s *Service) RecordPayment(ctx context.Context, id uuid.UUID, mode string) (*Invoice, error) {
	if !validPaymentModes[mode] {
		return nil, fmt.Errorf("invalid payment mode %q: %w", mode, ErrValidation)
	}
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != StatusPending {
		return nil, fmt.Errorf("invoice %s is %s: %w", id, inv.Status, ErrConflict)
	}
	now := s.now()
	inv.Status = StatusPaid
	inv.PaymentMode = &mode
	inv.PaidAt = &now
	if err := s.repo.Update(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) CancelInvoice(ctx context.Context, id uuid.UUID) error {
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if inv.Status == StatusPaid {
		return fmt.Errorf("paid invoice %s cannot be cancelled: %w", id, ErrConflict)
	}
	inv.Status = StatusCancelled
	return s.repo.Update(ctx, inv)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Invoice, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*Invoice, int, error) {
	return s.repo.ListByStatus(ctx, status, limit, offset)
}
