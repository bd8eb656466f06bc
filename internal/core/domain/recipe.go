package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecipeLine binds an ingredient to its share of the batch. Percentage is
// kept to three decimal places.
type RecipeLine struct {
	IngredientID string
	Percentage   decimal.Decimal
}

// Recipe is a formulation: an ordered list of ingredient percentages for
// one target product. Lines classified as protein must sum to 100%.
type Recipe struct {
	ID        string
	Name      string
	ProductID string
	Lines     []RecipeLine
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClassificationRule marks ingredients as protein by name fragment.
// Rules are plain data, editable by administrators between runs.
type ClassificationRule struct {
	ID        string
	Pattern   string
	Active    bool
	UpdatedAt time.Time
}
