package pharmacy

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusIssued    = "issued"
	StatusDispensed = "dispensed"
	StatusCancelled = "cancelled"
)

// MedicationLine is one drug on a prescription. SKU links the line to an
// inventory item; untracked drugs leave it empty.
type MedicationLine struct {
	Drug         string `json:"drug"`
	SKU          string `json:"sku,omitempty"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	DurationDays int    `json:"duration_days"`
	Quantity     int    `json:"quantity"`
	Instructions string `json:"instructions,omitempty"`
}

// Prescription maps to the prescription table. Medications are stored as a
// JSONB column.
type Prescription struct {
	ID            uuid.UUID        `db:"id" json:"id"`
	PatientID     uuid.UUID        `db:"patient_id" json:"patient_id"`
	DoctorID      uuid.UUID        `db:"doctor_id" json:"doctor_id"`
	AppointmentID *uuid.UUID       `db:"appointment_id" json:"appointment_id,omitempty"`
	Medications   []MedicationLine `db:"medications" json:"medications"`
	Notes         *string          `db:"notes" json:"notes,omitempty"`
	Status        string           `db:"status" json:"status"`
	DispensedAt   *time.Time       `db:"dispensed_at" json:"dispensed_at,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}
