package billing

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusCancelled = "cancelled"
)

var validPaymentModes = map[string]bool{
	"cash": true, "card": true, "upi": true, "insurance": true,
}

// LineItem is one charge on an invoice. Amount is quantity times unit price,
// computed server-side.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Amount      float64 `json:"amount"`
}

// Invoice maps to the invoice table. Items are stored as a JSONB column.
type Invoice struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	InvoiceNo     string     `db:"invoice_no" json:"invoice_no"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	AppointmentID *uuid.UUID `db:"appointment_id" json:"appointment_id,omitempty"`
	Items         []LineItem `db:"items" json:"items"`
	Subtotal      float64    `db:"subtotal" json:"subtotal"`
	Discount      float64    `db:"discount" json:"discount"`
	Total         float64    `db:"total" json:"total"`
	Status        string     `db:"status" json:"status"`
	PaymentMode   *string    `db:"payment_mode" json:"payment_mode,omitempty"`
	PaidAt        *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Recalculate fills the computed amounts from the line items.
func (inv *Invoice) Recalculate() {
	inv.Subtotal = 0
	for i := range inv.Items {
		if inv.Items[i].Quantity == 0 {
			inv.Items[i].Quantity = 1
		}
		inv.Items[i].Amount = float64(inv.Items[i].Quantity) * inv.Items[i].UnitPrice
		inv.Subtotal += inv.Items[i].Amount
	}
	inv.Total = inv.Subtotal - inv.Discount
	if inv.Total < 0 {
		inv.Total = 0
	}
}
