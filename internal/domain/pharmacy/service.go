package pharmacy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StockKeeper is the slice of the inventory service the pharmacy needs when
// dispensing. Implementations return ErrUnknownSKU for untracked drugs; any
// other error means the stock could not be issued.
type StockKeeper interface {
	DeductBySKU(ctx context.Context, sku string, qty int) error
}

// ErrUnknownSKU marks a prescription line whose SKU has no inventory item.
var ErrUnknownSKU = errors.New("unknown sku")

// ErrOutOfStock wraps the inventory shortage so dispensing can surface it as
// a conflict without importing the inventory package.
var ErrOutOfStock = fmt.Errorf("out of stock: %w", ErrConflict)

type Service struct {
	repo   Repository
	stock  StockKeeper
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

func (s *Service) SetStockKeeper(k StockKeeper) { s.stock = k }

func (s *Service) CreatePrescription(ctx context.Context, p *Prescription) error {
	if p.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required: %w", ErrValidation)
	}
	if p.DoctorID == uuid.Nil {
		return fmt.Errorf("doctor_id is required: %w", ErrValidation)
	}
	if len(p.Medications) == 0 {
		return fmt.Errorf("at least one medication is required: %w", ErrValidation)
	}
	for i := range p.Medications {
		if p.Medications[i].Drug == "" {
			return fmt.Errorf("medication %d: drug is required: %w", i, ErrValidation)
		}
		if p.Medications[i].Quantity <= 0 {
			p.Medications[i].Quantity = 1
		}
	}
	p.Status = StatusIssued
	return s.repo.Create(ctx, p)
}

func (s *Service) GetPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.repo.GetByID(ctx, id)
}

// Dispense hands the medications over and issues tracked lines from
// inventory. A shortage on any tracked line aborts the dispense; untracked
// drugs and unknown SKUs are handed out regardless.
func (s *Service) Dispense(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusIssued {
		return nil, fmt.Errorf("prescription %s is %s: %w", id, p.Status, ErrConflict)
	}

	if s.stock != nil {
		for _, line := range p.Medications {
			if line.SKU == "" {
				continue
			}
			if err := s.stock.DeductBySKU(ctx, line.SKU, line.Quantity); err != nil {
				if errors.Is(err, ErrUnknownSKU) {
					s.logger.Warn().Str("sku", line.SKU).Str("drug", line.Drug).
						Msg("dispensing untracked sku")
					continue
				}
				return nil, fmt.Errorf("%s: %w", line.Drug, ErrOutOfStock)
			}
		}
	}

	now := s.now()
	p.Status = StatusDispensed
	p.DispensedAt = &now
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) CancelPrescription(ctx context.Context, id uuid.UUID) error {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p.Status == StatusDispensed {
		return fmt.Errorf("dispensed prescription %s cannot be cancelled: %w", id, ErrConflict)
	}
	p.Status = StatusCancelled
	return s.repo.Update(ctx, p)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListPending(ctx context.Context, limit, offset int) ([]*Prescription, int, error) {
	return s.repo.ListByStatus(ctx, StatusIssued, limit, offset)
}
