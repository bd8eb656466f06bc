package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mrodas/batchworks/internal/core/domain"
)

// compositionEpsilon is the tolerance on the protein-percentage sum.
// Percentages are stored to three decimal places.
var (
	compositionEpsilon = decimal.New(1, -3)
	hundred            = decimal.NewFromInt(100)
)

// validateRecipe checks the compositional rules of a formulation against
// the ingredient catalog and a classifier built from current rules. Every
// line must carry a percentage in (0, 100]; lines whose ingredient is
// classified as protein must additionally sum to 100% within tolerance.
func validateRecipe(recipe *domain.Recipe, catalog map[string]*domain.Ingredient, classifier *proteinClassifier) error {
	proteinTotal := decimal.Zero

	for _, line := range recipe.Lines {
		ing, ok := catalog[line.IngredientID]
		if !ok || ing == nil {
			return fmt.Errorf("recipe %s references ingredient %s: %w",
				recipe.ID, line.IngredientID, domain.ErrUnknownIngredient)
		}

		if line.Percentage.Sign() <= 0 || line.Percentage.Cmp(hundred) > 0 {
			return fmt.Errorf("recipe %s, ingredient %s, percentage %s: %w",
				recipe.ID, line.IngredientID, line.Percentage, domain.ErrLinePercentage)
		}

		if classifier.IsProtein(ing.Name) {
			proteinTotal = proteinTotal.Add(line.Percentage)
		}
	}

	if proteinTotal.Sub(hundred).Abs().Cmp(compositionEpsilon) > 0 {
		return &domain.CompositionError{RecipeID: recipe.ID, ActualTotal: proteinTotal}
	}

	return nil
}
