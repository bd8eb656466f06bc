package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConsumptionLine records what one recipe line actually consumed.
// QuantityConsumed is in the ingredient's native unit.
type ConsumptionLine struct {
	IngredientID      string
	PercentageApplied decimal.Decimal
	QuantityConsumed  decimal.Decimal
	Unit              Unit
	CostContribution  decimal.Decimal
}

// ProductionRecord is the immutable audit trail of one batch. Exactly one
// is appended per successful run; records are never mutated.
type ProductionRecord struct {
	ID             string
	RecipeID       string
	ProductID      string
	LotCode        string
	OutputQuantity decimal.Decimal // kilograms
	TotalCost      decimal.Decimal
	CostPerKg      decimal.Decimal
	Lines          []ConsumptionLine
	Operator       string
	ProducedAt     time.Time
}
