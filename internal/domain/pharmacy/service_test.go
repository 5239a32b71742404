package pharmacy

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type mockRepo struct {
	items map[uuid.UUID]*Prescription
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*Prescription)}
}

func (m *mockRepo) Create(_ context.Context, p *Prescription) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	m.items[p.ID] = p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Prescription, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("prescription: %w", ErrNotFound)
	}
	return p, nil
}

func (m *mockRepo) Update(_ context.Context, p *Prescription) error {
	if _, ok := m.items[p.ID]; !ok {
		return fmt.Errorf("prescription: %w", ErrNotFound)
	}
	m.items[p.ID] = p
	return nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, _, _ int) ([]*Prescription, int, error) {
	var out []*Prescription
	for _, p := range m.items {
		if p.PatientID == patientID {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListByStatus(_ context.Context, status string, _, _ int) ([]*Prescription, int, error) {
	var out []*Prescription
	for _, p := range m.items {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

type mockStock struct {
	deducted map[string]int
	short    map[string]bool
	unknown  map[string]bool
}

func newMockStock() *mockStock {
	return &mockStock{
		deducted: make(map[string]int),
		short:    make(map[string]bool),
		unknown:  make(map[string]bool),
	}
}

func (m *mockStock) DeductBySKU(_ context.Context, sku string, qty int) error {
	if m.unknown[sku] {
		return ErrUnknownSKU
	}
	if m.short[sku] {
		return fmt.Errorf("insufficient stock")
	}
	m.deducted[sku] += qty
	return nil
}

func newTestService() (*Service, *mockRepo, *mockStock) {
	repo := newMockRepo()
	stock := newMockStock()
	svc := NewService(repo, zerolog.Nop())
	svc.SetStockKeeper(stock)
	return svc, repo, stock
}

func issued(t *testing.T, svc *Service, lines ...MedicationLine) *Prescription {
	t.Helper()
	if len(lines) == 0 {
		lines = []MedicationLine{{Drug: "Paracetamol", SKU: "PARA-500", Quantity: 10}}
	}
	p := &Prescription{PatientID: uuid.New(), DoctorID: uuid.New(), Medications: lines}
	if err := svc.CreatePrescription(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return p
}

func TestCreatePrescription(t *testing.T) {
	svc, _, _ := newTestService()

	p := issued(t, svc,
		MedicationLine{Drug: "Paracetamol", Dosage: "500mg", Frequency: "1-0-1", DurationDays: 5},
	)
	if p.Status != StatusIssued {
		t.Errorf("status: %s", p.Status)
	}
	if p.Medications[0].Quantity != 1 {
		t.Errorf("zero quantity not defaulted: %d", p.Medications[0].Quantity)
	}
}

func TestCreatePrescriptionValidation(t *testing.T) {
	svc, _, _ := newTestService()

	err := svc.CreatePrescription(context.Background(), &Prescription{
		PatientID: uuid.New(), DoctorID: uuid.New(),
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for no medications, got %v", err)
	}
	err = svc.CreatePrescription(context.Background(), &Prescription{
		PatientID:   uuid.New(),
		DoctorID:    uuid.New(),
		Medications: []MedicationLine{{Dosage: "500mg"}},
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for unnamed drug, got %v", err)
	}
}

func TestDispenseDeductsStock(t *testing.T) {
	svc, _, stock := newTestService()

	p := issued(t, svc)
	dispensed, err := svc.Dispense(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dispensed.Status != StatusDispensed || dispensed.DispensedAt == nil {
		t.Errorf("dispense: %+v", dispensed)
	}
	if stock.deducted["PARA-500"] != 10 {
		t.Errorf("deducted: %v", stock.deducted)
	}
}

func TestDispenseShortageAborts(t *testing.T) {
	svc, repo, stock := newTestService()
	stock.short["PARA-500"] = true

	p := issued(t, svc)
	_, err := svc.Dispense(context.Background(), p.ID)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
	if repo.items[p.ID].Status != StatusIssued {
		t.Errorf("status changed despite shortage: %s", repo.items[p.ID].Status)
	}
}

func TestDispenseSkipsUnknownSKU(t *testing.T) {
	svc, _, stock := newTestService()
	stock.unknown["HERB-1"] = true

	p := issued(t, svc,
		MedicationLine{Drug: "Paracetamol", SKU: "PARA-500", Quantity: 5},
		MedicationLine{Drug: "Herbal mix", SKU: "HERB-1", Quantity: 1},
		MedicationLine{Drug: "Rest", Quantity: 1},
	)
	if _, err := svc.Dispense(context.Background(), p.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stock.deducted["PARA-500"] != 5 {
		t.Errorf("deducted: %v", stock.deducted)
	}
}

func TestDispenseTwiceConflicts(t *testing.T) {
	svc, _, _ := newTestService()

	p := issued(t, svc)
	if _, err := svc.Dispense(context.Background(), p.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Dispense(context.Background(), p.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestCancelDispensedConflicts(t *testing.T) {
	svc, _, _ := newTestService()

	p := issued(t, svc)
	if _, err := svc.Dispense(context.Background(), p.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.CancelPrescription(context.Background(), p.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}
