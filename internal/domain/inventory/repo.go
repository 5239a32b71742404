package inventory

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, item *Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*Item, error)
	GetBySKU(ctx context.Context, sku string) (*Item, error)
	Update(ctx context.Context, item *Item) error
	Delete(ctx context.Context, id uuid.UUID) error
	// Adjust atomically changes the quantity by delta and returns the new
	// quantity. A negative result must be rejected by the implementation.
	Adjust(ctx context.Context, id uuid.UUID, delta int) (int, error)
	List(ctx context.Context, limit, offset int) ([]*Item, int, error)
	ListLowStock(ctx context.Context, limit, offset int) ([]*Item, int, error)
}
