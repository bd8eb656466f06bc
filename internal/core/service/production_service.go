package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mrodas/batchworks/internal/core/domain"
	"github.com/mrodas/batchworks/internal/port"
)

// defaultMaxAttempts bounds how often a run re-runs pre-check plus commit
// after losing a stock race to a concurrent run.
const defaultMaxAttempts = 3

// ProductionService orchestrates one batch: validation, sufficiency
// pre-check, atomic commit with compensation, product credit, costing and
// the audit record. All calls are synchronous; there is no queuing.
type ProductionService struct {
	ingredients port.IngredientRepository
	recipes     port.RecipeRepository
	products    port.ProductRepository
	ledger      port.StockLedger
	rules       port.ClassificationConfig
	history     port.ProductionHistoryStore
	lots        *LotAllocator
	log         *zap.Logger
	maxAttempts int
}

// ProductionDeps bundles the collaborators of a ProductionService.
type ProductionDeps struct {
	Ingredients port.IngredientRepository
	Recipes     port.RecipeRepository
	Products    port.ProductRepository
	Ledger      port.StockLedger
	Rules       port.ClassificationConfig
	History     port.ProductionHistoryStore
	Lots        *LotAllocator
	Logger      *zap.Logger
}

func NewProductionService(deps ProductionDeps) *ProductionService {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &ProductionService{
		ingredients: deps.Ingredients,
		recipes:     deps.Recipes,
		products:    deps.Products,
		ledger:      deps.Ledger,
		rules:       deps.Rules,
		history:     deps.History,
		lots:        deps.Lots,
		log:         log,
		maxAttempts: defaultMaxAttempts,
	}
}

// Produce runs one batch of the given recipe and returns its audit record.
// Failures before the commit phase leave no state behind and are freely
// retryable. Once the commit phase starts, any failure reverses every
// already-applied debit before returning; no partial consumption remains
// observable.
func (s *ProductionService) Produce(ctx context.Context, recipeID string, outputKg decimal.Decimal, operator string) (record *domain.ProductionRecord, err error) {
	defer func() { productionRunsTotal.WithLabelValues(outcomeLabel(err)).Inc() }()

	if outputKg.Sign() <= 0 {
		return nil, fmt.Errorf("output %s kg: %w", outputKg, domain.ErrInvalidBatchSize)
	}

	recipe, err := s.recipes.GetRecipe(ctx, recipeID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "loading recipe", Err: err}
	}
	if recipe == nil {
		return nil, fmt.Errorf("recipe %s: %w", recipeID, domain.ErrUnknownRecipe)
	}

	catalog, err := s.loadCatalog(ctx, recipe)
	if err != nil {
		return nil, err
	}

	// Classification rules are read fresh on every run; administrators may
	// have changed them since the last batch.
	rules, err := s.rules.ActiveRules(ctx)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "loading classification rules", Err: err}
	}

	if err := validateRecipe(recipe, catalog, newProteinClassifier(rules)); err != nil {
		return nil, err
	}

	plan, err := buildPlan(recipe, catalog, outputKg)
	if err != nil {
		return nil, err
	}

	applied, err := s.commitPlan(ctx, plan)
	if err != nil {
		return nil, err
	}

	if err := s.products.CreditProduct(ctx, recipe.ProductID, outputKg); err != nil {
		if cerr := s.reverseDebits(ctx, applied); cerr != nil {
			return nil, cerr
		}
		return nil, &domain.PersistenceError{Op: "crediting product", Err: err}
	}

	lines, totalCost, costPerKg := costPlan(plan, outputKg)

	record, err = s.lots.Allocate(ctx, recipe, outputKg, lines, totalCost, costPerKg, operator)
	if err != nil {
		return nil, s.unwind(ctx, recipe.ProductID, outputKg, applied,
			&domain.PersistenceError{Op: "allocating lot", Err: err})
	}

	if err := s.history.AppendRecord(ctx, record); err != nil {
		return nil, s.unwind(ctx, recipe.ProductID, outputKg, applied,
			&domain.PersistenceError{Op: "appending production record", Err: err})
	}

	s.log.Info("batch produced",
		zap.String("recipe_id", recipe.ID),
		zap.String("product_id", recipe.ProductID),
		zap.String("lot_code", record.LotCode),
		zap.String("output_kg", outputKg.String()),
		zap.String("total_cost", totalCost.String()),
		zap.String("operator", record.Operator),
	)

	s.warnLowStock(ctx, plan)

	return record, nil
}

// loadCatalog resolves every ingredient a recipe references.
func (s *ProductionService) loadCatalog(ctx context.Context, recipe *domain.Recipe) (map[string]*domain.Ingredient, error) {
	catalog := make(map[string]*domain.Ingredient, len(recipe.Lines))
	for _, line := range recipe.Lines {
		if _, seen := catalog[line.IngredientID]; seen {
			continue
		}
		ing, err := s.ingredients.GetIngredient(ctx, line.IngredientID)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "loading ingredient", Err: err}
		}
		if ing == nil {
			return nil, fmt.Errorf("ingredient %s: %w", line.IngredientID, domain.ErrUnknownIngredient)
		}
		catalog[line.IngredientID] = ing
	}
	return catalog, nil
}

// commitPlan runs the sufficiency pre-check and debits every plan line.
// The pre-check and the debits are not covered by one store transaction,
// so a concurrent run can consume stock in between; losing that race rolls
// back the debits already applied and retries the whole pair a bounded
// number of times before surfacing ErrStockConflict.
func (s *ProductionService) commitPlan(ctx context.Context, plan []planLine) ([]domain.AppliedDebit, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		shortfalls, err := s.precheck(ctx, plan)
		if err != nil {
			return nil, err
		}
		if len(shortfalls) > 0 {
			return nil, &domain.InsufficientStockError{Shortfalls: shortfalls}
		}

		applied := make([]domain.AppliedDebit, 0, len(plan))
		raceLost := false

		for _, pl := range plan {
			ok, err := s.ledger.Debit(ctx, pl.ingredient.ID, pl.requiredNative)
			if err != nil {
				if cerr := s.reverseDebits(ctx, applied); cerr != nil {
					return nil, cerr
				}
				return nil, &domain.PersistenceError{Op: "debiting stock", Err: err}
			}
			if !ok {
				// Stock moved since the pre-check.
				if cerr := s.reverseDebits(ctx, applied); cerr != nil {
					return nil, cerr
				}
				raceLost = true
				break
			}
			applied = append(applied, domain.AppliedDebit{IngredientID: pl.ingredient.ID, Quantity: pl.requiredNative})
		}

		if raceLost {
			stockConflictRetries.Inc()
			s.log.Debug("lost stock race, retrying commit", zap.Int("attempt", attempt))
			continue
		}

		return applied, nil
	}

	return nil, fmt.Errorf("commit retries exhausted: %w", domain.ErrStockConflict)
}

// precheck compares required quantities against current stock and returns
// the complete list of shortfalls, not just the first. Requirements are
// summed per ingredient first: a recipe may list the same ingredient in
// several lines, and each line alone fitting into stock does not mean the
// combined requirement does.
func (s *ProductionService) precheck(ctx context.Context, plan []planLine) ([]domain.Shortfall, error) {
	required := make(map[string]decimal.Decimal, len(plan))
	order := make([]string, 0, len(plan))
	for _, pl := range plan {
		if _, seen := required[pl.ingredient.ID]; !seen {
			order = append(order, pl.ingredient.ID)
		}
		required[pl.ingredient.ID] = required[pl.ingredient.ID].Add(pl.requiredNative)
	}

	var shortfalls []domain.Shortfall
	for _, id := range order {
		ing, err := s.ingredients.GetIngredient(ctx, id)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "checking stock", Err: err}
		}
		if ing == nil {
			return nil, fmt.Errorf("ingredient %s: %w", id, domain.ErrUnknownIngredient)
		}
		if ing.Stock.Cmp(required[id]) < 0 {
			shortfalls = append(shortfalls, domain.Shortfall{
				IngredientID: ing.ID,
				Required:     required[id],
				Available:    ing.Stock,
				Unit:         ing.Unit,
			})
		}
	}
	return shortfalls, nil
}

// reverseDebits credits back every applied debit, newest first. A failure
// here is the critical case: stock was consumed with no batch to show for
// it, and someone has to reconcile by hand.
func (s *ProductionService) reverseDebits(ctx context.Context, applied []domain.AppliedDebit) error {
	for i := len(applied) - 1; i >= 0; i-- {
		d := applied[i]
		if err := s.ledger.Credit(ctx, d.IngredientID, d.Quantity); err != nil {
			unreversed := make([]domain.AppliedDebit, 0, i+1)
			unreversed = append(unreversed, applied[:i+1]...)

			cerr := &domain.CompensationError{Unreversed: unreversed, Cause: err}
			s.logCompensationFailure(cerr)
			return cerr
		}
	}
	return nil
}

// unwind reverses a fully committed consumption, including the product
// credit, when the run fails after the commit phase.
func (s *ProductionService) unwind(ctx context.Context, productID string, outputKg decimal.Decimal,
	applied []domain.AppliedDebit, cause error) error {

	ok, err := s.products.DebitProduct(ctx, productID, outputKg)
	if err != nil || !ok {
		if err == nil {
			err = fmt.Errorf("product %s stock no longer covers the credited %s kg", productID, outputKg)
		}
		cerr := &domain.CompensationError{Unreversed: applied, Cause: errors.Join(cause, err)}
		s.logCompensationFailure(cerr)
		return cerr
	}

	if cerr := s.reverseDebits(ctx, applied); cerr != nil {
		return cerr
	}

	return cause
}

func (s *ProductionService) logCompensationFailure(cerr *domain.CompensationError) {
	fields := []zap.Field{zap.Error(cerr.Cause)}
	for _, d := range cerr.Unreversed {
		fields = append(fields, zap.String("unreversed_"+d.IngredientID, d.Quantity.String()))
	}
	s.log.Error("CRITICAL: compensation failed, manual reconciliation required", fields...)
}

// warnLowStock flags every ingredient the run left at or below its
// minimum threshold. Failures here never affect the run's outcome.
func (s *ProductionService) warnLowStock(ctx context.Context, plan []planLine) {
	for _, pl := range plan {
		ing, err := s.ingredients.GetIngredient(ctx, pl.ingredient.ID)
		if err != nil || ing == nil {
			continue
		}
		if ing.BelowThreshold() {
			lowStockWarnings.Inc()
			s.log.Warn("ingredient at or below minimum threshold",
				zap.String("ingredient_id", ing.ID),
				zap.String("stock", ing.Stock.String()),
				zap.String("min_threshold", ing.MinThreshold.String()),
			)
		}
	}
}

// History returns the production records of a recipe, newest first.
func (s *ProductionService) History(ctx context.Context, recipeID string) ([]*domain.ProductionRecord, error) {
	records, err := s.history.ListByRecipe(ctx, recipeID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "listing production records", Err: err}
	}
	return records, nil
}

func outcomeLabel(err error) string {
	var (
		composition  *domain.CompositionError
		conversion   *domain.ConversionError
		insufficient *domain.InsufficientStockError
	)
	switch {
	case err == nil:
		return resultProduced
	case errors.Is(err, domain.ErrInvalidBatchSize),
		errors.Is(err, domain.ErrUnknownRecipe),
		errors.Is(err, domain.ErrUnknownIngredient),
		errors.Is(err, domain.ErrLinePercentage),
		errors.As(err, &composition),
		errors.As(err, &conversion):
		return resultInvalid
	case errors.As(err, &insufficient):
		return resultInsufficient
	case errors.Is(err, domain.ErrStockConflict):
		return resultConflict
	default:
		return resultFailed
	}
}
