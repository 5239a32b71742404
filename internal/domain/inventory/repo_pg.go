package inventory

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

const itemCols = `id, sku, name, category, unit, quantity, reorder_level, unit_price, created_at, updated_at`

func scanItem(row pgx.Row) (*Item, error) {
	var i Item
	err := row.Scan(&i.ID, &i.SKU, &i.Name, &i.Category, &i.Unit,
		&i.Quantity, &i.ReorderLevel, &i.UnitPrice, &i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("inventory item: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *repoPG) Create(ctx context.Context, item *Item) error {
	item.ID = uuid.New()
	return r.pool.QueryRow(ctx, `
		INSERT INTO inventory_item (id, sku, name, category, unit, quantity, reorder_level, unit_price)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		item.ID, item.SKU, item.Name, item.Category, item.Unit,
		item.Quantity, item.ReorderLevel, item.UnitPrice).
		Scan(&item.CreatedAt, &item.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	return scanItem(r.pool.QueryRow(ctx, `SELECT `+itemCols+` FROM inventory_item WHERE id = $1`, id))
}

func (r *repoPG) GetBySKU(ctx context.Context, sku string) (*Item, error) {
	return scanItem(r.pool.QueryRow(ctx, `SELECT `+itemCols+` FROM inventory_item WHERE sku = $1`, sku))
}

func (r *repoPG) Update(ctx context.Context, item *Item) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE inventory_item SET sku=$2, name=$3, category=$4, unit=$5,
			reorder_level=$6, unit_price=$7, updated_at=NOW()
		WHERE id = $1`,
		item.ID, item.SKU, item.Name, item.Category, item.Unit,
		item.ReorderLevel, item.UnitPrice)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("inventory item %s: %w", item.ID, ErrNotFound)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM inventory_item WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("inventory item %s: %w", id, ErrNotFound)
	}
	return nil
}

// Adjust relies on the quantity check constraint: a deduction below zero
// fails the UPDATE and surfaces as insufficient stock.
func (r *repoPG) Adjust(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	var qty int
	err := r.pool.QueryRow(ctx, `
		UPDATE inventory_item SET quantity = quantity + $2, updated_at = NOW()
		WHERE id = $1 AND quantity + $2 >= 0
		RETURNING quantity`, id, delta).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return 0, getErr
		}
		return 0, fmt.Errorf("item %s: %w", id, ErrInsufficientStock)
	}
	return qty, err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Item, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_item`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+itemCols+` FROM inventory_item ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectItems(rows, total)
}

func (r *repoPG) ListLowStock(ctx context.Context, limit, offset int) ([]*Item, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM inventory_item WHERE quantity <= reorder_level`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+itemCols+` FROM inventory_item
		WHERE quantity <= reorder_level ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectItems(rows, total)
}

func collectItems(rows pgx.Rows, total int) ([]*Item, int, error) {
	var items []*Item
	for rows.Next() {
		i, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, i)
	}
	return items, total, rows.Err()
}
