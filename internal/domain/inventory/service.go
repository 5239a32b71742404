package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) CreateItem(ctx context.Context, item *Item) error {
	if item.SKU == "" {
		return fmt.Errorf("sku is required: %w", ErrValidation)
	}
	if item.Name == "" {
		return fmt.Errorf("name is required: %w", ErrValidation)
	}
	if item.Quantity < 0 {
		return fmt.Errorf("quantity cannot be negative: %w", ErrValidation)
	}
	return s.repo.Create(ctx, item)
}

func (s *Service) GetItem(ctx context.Context, id uuid.UUID) (*Item, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetItemBySKU(ctx context.Context, sku string) (*Item, error) {
	return s.repo.GetBySKU(ctx, sku)
}

func (s *Service) UpdateItem(ctx context.Context, item *Item) error {
	if item.SKU == "" {
		return fmt.Errorf("sku is required: %w", ErrValidation)
	}
	return s.repo.Update(ctx, item)
}

func (s *Service) DeleteItem(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// AdjustStock changes on-hand stock by delta: positive for receipts,
// negative for issue. The low-stock warning fires after a deduction crosses
// the reorder level.
func (s *Service) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*Item, error) {
	if delta == 0 {
		return nil, fmt.Errorf("delta cannot be zero: %w", ErrValidation)
	}
	if _, err := s.repo.Adjust(ctx, id, delta); err != nil {
		return nil, err
	}
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if delta < 0 && item.LowStock() {
		s.logger.Warn().Str("sku", item.SKU).Int("quantity", item.Quantity).
			Int("reorder_level", item.ReorderLevel).Msg("item at or below reorder level")
	}
	return item, nil
}

// DeductBySKU issues stock for a dispensed prescription line.
func (s *Service) DeductBySKU(ctx context.Context, sku string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("quantity must be positive: %w", ErrValidation)
	}
	item, err := s.repo.GetBySKU(ctx, sku)
	if err != nil {
		return err
	}
	_, err = s.AdjustStock(ctx, item.ID, -qty)
	return err
}

func (s *Service) ListItems(ctx context.Context, limit, offset int) ([]*Item, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) ListLowStock(ctx context.Context, limit, offset int) ([]*Item, int, error) {
	return s.repo.ListLowStock(ctx, limit, offset)
}
