package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ingredient is a raw material held in stock. Stock and UnitCost are
// expressed in the ingredient's own canonical unit, fixed at creation.
type Ingredient struct {
	ID           string
	Name         string
	Category     string
	Unit         Unit
	Stock        decimal.Decimal
	MinThreshold decimal.Decimal
	UnitCost     decimal.Decimal
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BelowThreshold reports whether current stock is at or under the
// configured minimum.
func (i *Ingredient) BelowThreshold() bool {
	return i.Stock.Cmp(i.MinThreshold) <= 0
}

// FinishedProduct is a sellable good credited by production runs.
type FinishedProduct struct {
	ID        string
	Name      string
	Unit      Unit
	Stock     decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}
