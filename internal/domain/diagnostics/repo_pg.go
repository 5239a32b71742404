package diagnostics

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const orderCols = `id, patient_id, doctor_id, appointment_id, kind, test_name,
	priority, status, result, result_at, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.PatientID, &o.DoctorID, &o.AppointmentID, &o.Kind, &o.TestName,
		&o.Priority, &o.Status, &o.Result, &o.ResultAt, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *repoPG) Create(ctx context.Context, o *Order) error {
	o.ID = uuid.New()
	return r.pool.QueryRow(ctx, `
		INSERT INTO service_order (id, patient_id, doctor_id, appointment_id, kind, test_name, priority, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		o.ID, o.PatientID, o.DoctorID, o.AppointmentID, o.Kind, o.TestName, o.Priority, o.Status).
		Scan(&o.CreatedAt, &o.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderCols+` FROM service_order WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, o *Order) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE service_order SET status=$2, result=$3, result_at=$4, updated_at=NOW()
		WHERE id = $1`,
		o.ID, o.Status, o.Result, o.ResultAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", o.ID, ErrNotFound)
	}
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Order, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM service_order WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderCols+` FROM service_order
		WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectOrders(rows, total)
}

func (r *repoPG) ListPending(ctx context.Context, kind string, limit, offset int) ([]*Order, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM service_order
		WHERE kind = $1 AND status IN ('ordered', 'in_progress')`, kind).Scan(&total); err != nil {
		return nil, 0, err
	}
	// Urgent orders jump the worklist.
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderCols+` FROM service_order
		WHERE kind = $1 AND status IN ('ordered', 'in_progress')
		ORDER BY priority = 'urgent' DESC, created_at LIMIT $2 OFFSET $3`,
		kind, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectOrders(rows, total)
}

func collectOrders(rows pgx.Rows, total int) ([]*Order, int, error) {
	var items []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	return items, total, rows.Err()
}
