package diagnostics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) CreateOrder(ctx context.Context, o *Order) error {
	if o.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required: %w", ErrValidation)
	}
	if o.DoctorID == uuid.Nil {
		return fmt.Errorf("doctor_id is required: %w", ErrValidation)
	}
	if !validKinds[o.Kind] {
		return fmt.Errorf("invalid kind %q: %w", o.Kind, ErrValidation)
	}
	if o.TestName == "" {
		return fmt.Errorf("test_name is required: %w", ErrValidation)
	}
	if o.Priority == "" {
		o.Priority = "routine"
	}
	if !validPriorities[o.Priority] {
		return fmt.Errorf("invalid priority %q: %w", o.Priority, ErrValidation)
	}
	o.Status = StatusOrdered
	return s.repo.Create(ctx, o)
}

func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.repo.GetByID(ctx, id)
}

// Start moves an order onto the worklist.
func (s *Service) Start(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusOrdered {
		return nil, fmt.Errorf("order %s is %s: %w", id, o.Status, ErrConflict)
	}
	o.Status = StatusInProgress
	if err := s.repo.Update(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// RecordResult attaches the report and completes the order.
func (s *Service) RecordResult(ctx context.Context, id uuid.UUID, result string) (*Order, error) {
	if result == "" {
		return nil, fmt.Errorf("result is required: %w", ErrValidation)
	}
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status == StatusCompleted || o.Status == StatusCancelled {
		return nil, fmt.Errorf("order %s is %s: %w", id, o.Status, ErrConflict)
	}
	now := s.now()
	o.Status = StatusCompleted
	o.Result = &result
	o.ResultAt = &now
	if err := s.repo.Update(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) CancelOrder(ctx context.Context, id uuid.UUID) error {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if o.Status == StatusCompleted {
		return fmt.Errorf("completed order %s cannot be cancelled: %w", id, ErrConflict)
	}
	o.Status = StatusCancelled
	return s.repo.Update(ctx, o)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Order, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListPending(ctx context.Context, kind string, limit, offset int) ([]*Order, int, error) {
	if !validKinds[kind] {
		return nil, 0, fmt.Errorf("invalid kind %q: %w", kind, ErrValidation)
	}
	return s.repo.ListPending(ctx, kind, limit, offset)
}
