package diagnostics

import (
	"time"

	"github.com/google/uuid"
)

// Order kinds.
const (
	KindLab       = "lab"
	KindRadiology = "radiology"
)

// Order statuses.
const (
	StatusOrdered    = "ordered"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

var validKinds = map[string]bool{KindLab: true, KindRadiology: true}

var validPriorities = map[string]bool{"routine": true, "urgent": true}

// Order maps to the service_order table: one lab test or imaging study
// ordered for a patient.
type Order struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID      uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	AppointmentID *uuid.UUID `db:"appointment_id" json:"appointment_id,omitempty"`
	Kind          string     `db:"kind" json:"kind"`
	TestName      string     `db:"test_name" json:"test_name"`
	Priority      string     `db:"priority" json:"priority"`
	Status        string     `db:"status" json:"status"`
	Result        *string    `db:"result" json:"result,omitempty"`
	ResultAt      *time.Time `db:"result_at" json:"result_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}
