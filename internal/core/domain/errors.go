package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidBatchSize  = fmt.Errorf("batch size must be greater than zero")
	ErrUnknownRecipe     = fmt.Errorf("unknown recipe")
	ErrUnknownIngredient = fmt.Errorf("unknown ingredient")
	ErrUnknownProduct    = fmt.Errorf("unknown product")
	ErrLinePercentage    = fmt.Errorf("line percentage must be in (0, 100]")

	// ErrStockConflict is returned only after internal retries of the
	// commit phase are exhausted; single losses are retried silently.
	ErrStockConflict = fmt.Errorf("concurrent stock conflict")
)

// ConversionError reports an impossible unit conversion, either across
// dimensions or between distinct count units.
type ConversionError struct {
	From Unit
	To   Unit
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert %s to %s", e.From, e.To)
}

// CompositionError reports a recipe whose protein lines do not sum to 100%.
type CompositionError struct {
	RecipeID    string
	ActualTotal decimal.Decimal
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("recipe %s: protein lines sum to %s%%, expected 100%%", e.RecipeID, e.ActualTotal)
}

// Shortfall describes one ingredient that cannot cover its planned
// consumption. Quantities are in the ingredient's native unit.
type Shortfall struct {
	IngredientID string
	Required     decimal.Decimal
	Available    decimal.Decimal
	Unit         Unit
}

// InsufficientStockError carries every shortfall found by the sufficiency
// pre-check so the caller sees the complete picture in one response.
type InsufficientStockError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("%s (required %s %s, available %s %s)",
			s.IngredientID, s.Required, s.Unit, s.Available, s.Unit))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

// PersistenceError wraps a fatal storage failure; it is surfaced verbatim.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// AppliedDebit is one already-applied stock debit inside a run, kept in
// the compensation log so it can be reversed.
type AppliedDebit struct {
	IngredientID string
	Quantity     decimal.Decimal
}

// CompensationError is the critical case: rolling back a partially applied
// run itself failed, leaving debits that require manual reconciliation.
type CompensationError struct {
	Unreversed []AppliedDebit
	Cause      error
}

func (e *CompensationError) Error() string {
	ids := make([]string, 0, len(e.Unreversed))
	for _, d := range e.Unreversed {
		ids = append(ids, d.IngredientID)
	}
	return fmt.Sprintf("compensation failed, manual reconciliation required for %s: %v",
		strings.Join(ids, ", "), e.Cause)
}

func (e *CompensationError) Unwrap() error { return e.Cause }
