package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	patients PatientRepository
	staff    StaffRepository
}

func NewService(patients PatientRepository, staff StaffRepository) *Service {
	return &Service{patients: patients, staff: staff}
}

// -- Patient --

func (s *Service) RegisterPatient(ctx context.Context, p *Patient) error {
	if p.FirstName == "" {
		return fmt.Errorf("first_name is required: %w", ErrValidation)
	}
	if p.PatientType == "" {
		p.PatientType = PatientTypeNew
	}
	if p.PatientType != PatientTypeNew && p.PatientType != PatientTypeReturning {
		return fmt.Errorf("invalid patient_type %q: %w", p.PatientType, ErrValidation)
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) GetPatientByMRN(ctx context.Context, mrn string) (*Patient, error) {
	return s.patients.GetByMRN(ctx, mrn)
}

// UpdatePatient saves patient edits. A second visit flips the patient to
// returning via this path too.
func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if p.FirstName == "" {
		return fmt.Errorf("first_name is required: %w", ErrValidation)
	}
	if p.PatientType != PatientTypeNew && p.PatientType != PatientTypeReturning {
		return fmt.Errorf("invalid patient_type %q: %w", p.PatientType, ErrValidation)
	}
	return s.patients.Update(ctx, p)
}

// MarkReturning flips a patient to the returning fee class after their first
// completed visit. Already-returning patients are left alone.
func (s *Service) MarkReturning(ctx context.Context, id uuid.UUID) error {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p.PatientType == PatientTypeReturning {
		return nil
	}
	p.PatientType = PatientTypeReturning
	return s.patients.Update(ctx, p)
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.patients.Delete(ctx, id)
}

func (s *Service) SearchPatients(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error) {
	return s.patients.Search(ctx, query, limit, offset)
}

// -- Staff --

func (s *Service) CreateStaff(ctx context.Context, st *Staff) error {
	if st.Name == "" {
		return fmt.Errorf("name is required: %w", ErrValidation)
	}
	if !validStaffRoles[st.Role] {
		return fmt.Errorf("invalid role %q: %w", st.Role, ErrValidation)
	}
	st.Active = true
	return s.staff.Create(ctx, st)
}

func (s *Service) GetStaff(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return s.staff.GetByID(ctx, id)
}

func (s *Service) UpdateStaff(ctx context.Context, st *Staff) error {
	if st.Role != "" && !validStaffRoles[st.Role] {
		return fmt.Errorf("invalid role %q: %w", st.Role, ErrValidation)
	}
	return s.staff.Update(ctx, st)
}

func (s *Service) DeleteStaff(ctx context.Context, id uuid.UUID) error {
	return s.staff.Delete(ctx, id)
}

func (s *Service) ListStaff(ctx context.Context, role string, limit, offset int) ([]*Staff, int, error) {
	if role != "" {
		return s.staff.ListByRole(ctx, role, limit, offset)
	}
	return s.staff.List(ctx, limit, offset)
}
