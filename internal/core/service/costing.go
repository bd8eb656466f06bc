package service

import (
	"github.com/shopspring/decimal"

	"github.com/mrodas/batchworks/internal/core/domain"
)

// costPlan turns a committed consumption plan into the per-line breakdown
// and batch totals. Each contribution is native quantity times the
// ingredient's unit cost; per-kilogram cost divides by the output, which
// input validation already guarantees to be positive.
func costPlan(plan []planLine, outputKg decimal.Decimal) ([]domain.ConsumptionLine, decimal.Decimal, decimal.Decimal) {
	lines := make([]domain.ConsumptionLine, 0, len(plan))
	total := decimal.Zero

	for _, pl := range plan {
		contribution := pl.requiredNative.Mul(pl.ingredient.UnitCost)
		total = total.Add(contribution)

		lines = append(lines, domain.ConsumptionLine{
			IngredientID:      pl.ingredient.ID,
			PercentageApplied: pl.percentage,
			QuantityConsumed:  pl.requiredNative,
			Unit:              pl.ingredient.Unit,
			CostContribution:  contribution,
		})
	}

	perKg := total.DivRound(outputKg, 6)

	return lines, total, perKg
}
