package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mrodas/batchworks/internal/core/domain"
)

// planLine is one entry of the consumption plan: how much of an
// ingredient, in its own unit, a batch will take.
type planLine struct {
	ingredient     *domain.Ingredient
	percentage     decimal.Decimal
	requiredNative decimal.Decimal
}

// buildPlan computes per-line raw-material consumption for the requested
// output. Percentage arithmetic happens in kilograms first and is then
// converted into each ingredient's canonical unit.
func buildPlan(recipe *domain.Recipe, catalog map[string]*domain.Ingredient, outputKg decimal.Decimal) ([]planLine, error) {
	plan := make([]planLine, 0, len(recipe.Lines))

	for _, line := range recipe.Lines {
		ing := catalog[line.IngredientID]
		requiredKg := line.Percentage.Div(hundred).Mul(outputKg)

		native, err := domain.Convert(requiredKg, domain.UnitKilogram, ing.Unit)
		if err != nil {
			return nil, fmt.Errorf("planning ingredient %s: %w", ing.ID, err)
		}

		plan = append(plan, planLine{
			ingredient:     ing,
			percentage:     line.Percentage,
			requiredNative: native,
		})
	}

	return plan, nil
}
