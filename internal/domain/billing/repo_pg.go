package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const invoiceCols = `id, invoice_no, patient_id, appointment_id, items,
	subtotal, discount, total, status, payment_mode, paid_at, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var items []byte
	err := row.Scan(&inv.ID, &inv.InvoiceNo, &inv.PatientID, &inv.AppointmentID, &items,
		&inv.Subtotal, &inv.Discount, &inv.Total, &inv.Status, &inv.PaymentMode,
		&inv.PaidAt, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("invoice: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &inv.Items); err != nil {
		return nil, fmt.Errorf("decode invoice items: %w", err)
	}
	return &inv, nil
}

func (r *repoPG) Create(ctx context.Context, inv *Invoice) error {
	inv.ID = uuid.New()
	items, err := json.Marshal(inv.Items)
	if err != nil {
		return fmt.Errorf("encode invoice items: %w", err)
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO invoice (id, invoice_no, patient_id, appointment_id, items,
			subtotal, discount, total, status, payment_mode)
		VALUES ($1, 'INV-' || to_char(NOW(), 'YYYY') || '-' || nextval('invoice_no_seq'),
			$2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING invoice_no, created_at, updated_at`,
		inv.ID, inv.PatientID, inv.AppointmentID, items,
		inv.Subtotal, inv.Discount, inv.Total, inv.Status, inv.PaymentMode).
		Scan(&inv.InvoiceNo, &inv.CreatedAt, &inv.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceCols+` FROM invoice WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, inv *Invoice) error {
	items, err := json.Marshal(inv.Items)
	if err != nil {
		return fmt.Errorf("encode invoice items: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE invoice SET items=$2, subtotal=$3, discount=$4, total=$5,
			status=$6, payment_mode=$7, paid_at=$8, updated_at=NOW()
		WHERE id = $1`,
		inv.ID, items, inv.Subtotal, inv.Discount, inv.Total,
		inv.Status, inv.PaymentMode, inv.PaidAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("invoice %s: %w", inv.ID, ErrNotFound)
	}
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Invoice, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM invoice WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+invoiceCols+` FROM invoice
		WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectInvoices(rows, total)
}

func (r *repoPG) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*Invoice, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM invoice WHERE status = $1`, status).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+invoiceCols+` FROM invoice
		WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectInvoices(rows, total)
}

func collectInvoices(rows pgx.Rows, total int) ([]*Invoice, int, error) {
	var items []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, inv)
	}
	return items, total, rows.Err()
}
