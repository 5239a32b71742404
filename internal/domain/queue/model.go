package queue

import (
	"time"

	"github.com/google/uuid"
)

// EntryState tracks a patient's progress through an outpatient visit.
type EntryState string

const (
	StateWaiting        EntryState = "waiting"
	StateVitalsRecorded EntryState = "vitals_recorded"
	StateServing        EntryState = "serving"
	StateCompleted      EntryState = "completed"
	StateSkipped        EntryState = "skipped"
)

// Terminal reports whether the state admits no further transitions.
func (s EntryState) Terminal() bool {
	return s == StateCompleted || s == StateSkipped
}

// QueueStatus is the operational status of a consultation room queue.
type QueueStatus string

const (
	StatusActive   QueueStatus = "active"
	StatusInactive QueueStatus = "inactive"
	StatusClosed   QueueStatus = "closed"
)

// Entry is one queued patient. Entries are embedded in the Queue record in
// insertion order and are not independently addressable.
type Entry struct {
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	Token         string     `json:"token"`
	PatientID     uuid.UUID  `json:"patient_id"`
	PatientName   string     `json:"patient_name"`
	PatientNo     string     `json:"patient_no,omitempty"`
	State         EntryState `json:"state"`
	InsertedAt    time.Time  `json:"inserted_at"`
	// Position is derived (list index + 1) and recomputed on every read;
	// it is never authoritative.
	Position int `json:"position,omitempty"`
}

// Queue is the per-room queue record. One record exists per room; the record
// itself is never deleted, only its entries and cursor are cleared.
type Queue struct {
	Room              string      `json:"room"`
	AssignedStaffID   *uuid.UUID  `json:"assigned_staff_id,omitempty"`
	AssignedStaffName string      `json:"assigned_staff_name,omitempty"`
	Department        string      `json:"department,omitempty"`
	CurrentToken      string      `json:"current_token,omitempty"`
	CurrentIndex      int         `json:"current_index"`
	Entries           []Entry     `json:"entries"`
	Status            QueueStatus `json:"status"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// Renumber recomputes each entry's derived position from its list index.
func (q *Queue) Renumber() {
	for i := range q.Entries {
		q.Entries[i].Position = i + 1
	}
}

// EntryByAppointment returns the index of the entry referencing the given
// appointment, or -1.
func (q *Queue) EntryByAppointment(appointmentID uuid.UUID) int {
	for i := range q.Entries {
		if q.Entries[i].AppointmentID != nil && *q.Entries[i].AppointmentID == appointmentID {
			return i
		}
	}
	return -1
}

// EntryByToken returns the index of the entry carrying the given token, or -1.
func (q *Queue) EntryByToken(token string) int {
	for i := range q.Entries {
		if q.Entries[i].Token == token {
			return i
		}
	}
	return -1
}

// QueueView is the read-only projection consumed by staff UIs and display
// boards. Positions are recomputed per read.
type QueueView struct {
	Room         string  `json:"room"`
	CurrentToken string  `json:"current_token,omitempty"`
	CurrentEntry *Entry  `json:"current_entry,omitempty"`
	WaitingCount int     `json:"waiting_count"`
	TotalCount   int     `json:"total_count"`
	Entries      []Entry `json:"entries"`
}

// ActiveQueue is one row of the all-rooms overview.
type ActiveQueue struct {
	Room         string `json:"room"`
	StaffName    string `json:"staff_name,omitempty"`
	Department   string `json:"department,omitempty"`
	CurrentToken string `json:"current_token,omitempty"`
	WaitingCount int    `json:"waiting_count"`
}
