package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns the Postgres-backed queue store. The entries list is kept
// in a JSONB column so the record reads and writes as a single document.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const queueCols = `room, assigned_staff_id, assigned_staff_name, department,
	current_token, current_index, status, entries, updated_at`

func (r *repoPG) scanQueue(row pgx.Row) (*Queue, error) {
	var q Queue
	var entries []byte
	err := row.Scan(&q.Room, &q.AssignedStaffID, &q.AssignedStaffName, &q.Department,
		&q.CurrentToken, &q.CurrentIndex, &q.Status, &entries, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		if err := json.Unmarshal(entries, &q.Entries); err != nil {
			return nil, fmt.Errorf("decode queue entries for room %s: %w", q.Room, err)
		}
	}
	return &q, nil
}

func (r *repoPG) GetByRoom(ctx context.Context, room string) (*Queue, error) {
	q, err := r.scanQueue(r.pool.QueryRow(ctx,
		`SELECT `+queueCols+` FROM room_queue WHERE room = $1`, room))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("queue for room %s: %w", room, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (r *repoPG) Save(ctx context.Context, q *Queue) error {
	entries := q.Entries
	if entries == nil {
		entries = []Entry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode queue entries for room %s: %w", q.Room, err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO room_queue (room, assigned_staff_id, assigned_staff_name, department,
			current_token, current_index, status, entries, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
		ON CONFLICT (room) DO UPDATE SET
			assigned_staff_id = EXCLUDED.assigned_staff_id,
			assigned_staff_name = EXCLUDED.assigned_staff_name,
			department = EXCLUDED.department,
			current_token = EXCLUDED.current_token,
			current_index = EXCLUDED.current_index,
			status = EXCLUDED.status,
			entries = EXCLUDED.entries,
			updated_at = NOW()`,
		q.Room, q.AssignedStaffID, q.AssignedStaffName, q.Department,
		q.CurrentToken, q.CurrentIndex, q.Status, raw)
	return err
}

func (r *repoPG) ListActive(ctx context.Context) ([]*Queue, error) {
	return r.list(ctx, `SELECT `+queueCols+` FROM room_queue WHERE status = 'active' ORDER BY room`)
}

func (r *repoPG) ListAll(ctx context.Context) ([]*Queue, error) {
	return r.list(ctx, `SELECT `+queueCols+` FROM room_queue ORDER BY room`)
}

func (r *repoPG) list(ctx context.Context, query string) ([]*Queue, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Queue
	for rows.Next() {
		q, err := r.scanQueue(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, q)
	}
	return items, rows.Err()
}
