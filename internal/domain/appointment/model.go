package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Appointment statuses. vitals_recorded and completed are driven by the
// clinical flow; cancelled and no_show by the front desk.
const (
	StatusBooked         = "booked"
	StatusVitalsRecorded = "vitals_recorded"
	StatusCompleted      = "completed"
	StatusCancelled      = "cancelled"
	StatusNoShow         = "no_show"
)

// validTransitions guards status updates. Terminal statuses have no exits.
var validTransitions = map[string][]string{
	StatusBooked:         {StatusVitalsRecorded, StatusCompleted, StatusCancelled, StatusNoShow},
	StatusVitalsRecorded: {StatusCompleted, StatusCancelled, StatusNoShow},
	StatusCompleted:      {},
	StatusCancelled:      {},
	StatusNoShow:         {},
}

func canTransition(from, to string) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Appointment maps to the appointment table. QueueToken is filled in once
// the patient has been placed in the room's queue.
type Appointment struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID    uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	Room        string     `db:"room" json:"room"`
	Department  string     `db:"department" json:"department"`
	ScheduledAt time.Time  `db:"scheduled_at" json:"scheduled_at"`
	Reason      *string    `db:"reason" json:"reason,omitempty"`
	Status      string     `db:"status" json:"status"`
	QueueToken  string     `db:"queue_token" json:"queue_token"`
	Notes       *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}
