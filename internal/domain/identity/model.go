package identity

import (
	"time"

	"github.com/google/uuid"
)

// Patient types drive the consultation fee: a returning patient pays the
// follow-up rate.
const (
	PatientTypeNew       = "new"
	PatientTypeReturning = "returning"
)

// Patient maps to the patient table. MRN is the hospital-issued medical
// record number, assigned on registration and never reused.
type Patient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	MRN         string     `db:"mrn" json:"mrn"`
	FirstName   string     `db:"first_name" json:"first_name"`
	LastName    string     `db:"last_name" json:"last_name"`
	BirthDate   *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Gender      *string    `db:"gender" json:"gender,omitempty"`
	Phone       *string    `db:"phone" json:"phone,omitempty"`
	Email       *string    `db:"email" json:"email,omitempty"`
	Address     *string    `db:"address" json:"address,omitempty"`
	PatientType string     `db:"patient_type" json:"patient_type"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

func (p *Patient) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// Staff maps to the staff table. Role matches the route guards: admin,
// doctor, nurse or receptionist.
type Staff struct {
	ID         uuid.UUID `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Role       string    `db:"role" json:"role"`
	Department string    `db:"department" json:"department"`
	Room       *string   `db:"room" json:"room,omitempty"`
	Email      *string   `db:"email" json:"email,omitempty"`
	Phone      *string   `db:"phone" json:"phone,omitempty"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

var validStaffRoles = map[string]bool{
	"admin": true, "doctor": true, "nurse": true, "receptionist": true,
}
