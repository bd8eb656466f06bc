package port

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/mrodas/batchworks/internal/core/domain"
)

// IngredientRepository reads the ingredient catalog. Returns (nil, nil)
// when the ingredient does not exist.
type IngredientRepository interface {
	GetIngredient(ctx context.Context, id string) (*domain.Ingredient, error)
}

// RecipeRepository reads formulations. Returns (nil, nil) when the recipe
// does not exist.
type RecipeRepository interface {
	GetRecipe(ctx context.Context, id string) (*domain.Recipe, error)
}

// StockLedger mutates ingredient stock. Debit is conditional: it applies
// only if the full quantity is available and reports false otherwise, with
// no state change. Credit restores stock during compensation.
type StockLedger interface {
	Debit(ctx context.Context, ingredientID string, quantity decimal.Decimal) (bool, error)
	Credit(ctx context.Context, ingredientID string, quantity decimal.Decimal) error
}

// ProductRepository mutates finished-product stock. DebitProduct exists
// only so a failed run can take back a credit it already applied.
type ProductRepository interface {
	GetProduct(ctx context.Context, id string) (*domain.FinishedProduct, error)
	CreditProduct(ctx context.Context, id string, quantity decimal.Decimal) error
	DebitProduct(ctx context.Context, id string, quantity decimal.Decimal) (bool, error)
}

// ClassificationConfig is the validator's read-only view of the protein
// rules. Implementations must return current data on every call; the
// validator never caches rules across runs.
type ClassificationConfig interface {
	ActiveRules(ctx context.Context) ([]domain.ClassificationRule, error)
}

// ClassificationAdmin is the administrative surface over the same rule
// set: create/update, toggle, delete, list.
type ClassificationAdmin interface {
	SaveRule(ctx context.Context, rule domain.ClassificationRule) error
	SetRuleActive(ctx context.Context, id string, active bool) error
	DeleteRule(ctx context.Context, id string) error
	ListRules(ctx context.Context) ([]domain.ClassificationRule, error)
}

// ProductionHistoryStore persists the append-only batch audit trail and
// owns the monotonic lot sequence.
type ProductionHistoryStore interface {
	// NextLot returns the next value of the persisted lot counter. Values
	// are unique and strictly increasing for the lifetime of the system.
	NextLot(ctx context.Context) (uint64, error)

	AppendRecord(ctx context.Context, record *domain.ProductionRecord) error

	// ListByRecipe returns records for a recipe, newest first.
	ListByRecipe(ctx context.Context, recipeID string) ([]*domain.ProductionRecord, error)
}
