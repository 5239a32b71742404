package inventory

import (
	"time"

	"github.com/google/uuid"
)

// Item maps to the inventory_item table. Quantity is the on-hand stock;
// ReorderLevel marks where the pharmacy should restock.
type Item struct {
	ID           uuid.UUID `db:"id" json:"id"`
	SKU          string    `db:"sku" json:"sku"`
	Name         string    `db:"name" json:"name"`
	Category     string    `db:"category" json:"category"`
	Unit         string    `db:"unit" json:"unit"`
	Quantity     int       `db:"quantity" json:"quantity"`
	ReorderLevel int       `db:"reorder_level" json:"reorder_level"`
	UnitPrice    float64   `db:"unit_price" json:"unit_price"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// LowStock reports whether the item has fallen to its reorder level.
func (i *Item) LowStock() bool { return i.Quantity <= i.ReorderLevel }
