package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mrodas/batchworks/internal/core/domain"
	"github.com/mrodas/batchworks/internal/port"
)

// LotAllocator assembles the immutable audit record for a committed batch,
// stamping it with a lot code drawn from the history store's persisted
// counter. Codes are a fixed prefix plus a zero-padded sequence number,
// unique for the lifetime of the system.
type LotAllocator struct {
	history         port.ProductionHistoryStore
	prefix          string
	defaultOperator string
	now             func() time.Time
}

func NewLotAllocator(history port.ProductionHistoryStore, prefix, defaultOperator string) *LotAllocator {
	return &LotAllocator{
		history:         history,
		prefix:          prefix,
		defaultOperator: defaultOperator,
		now:             time.Now,
	}
}

// Allocate builds the ProductionRecord for one finished run. The operator
// falls back to the configured sentinel when none was supplied.
func (a *LotAllocator) Allocate(ctx context.Context, recipe *domain.Recipe, outputKg decimal.Decimal,
	lines []domain.ConsumptionLine, totalCost, costPerKg decimal.Decimal, operator string) (*domain.ProductionRecord, error) {

	seq, err := a.history.NextLot(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocating lot number: %w", err)
	}

	if operator == "" {
		operator = a.defaultOperator
	}

	return &domain.ProductionRecord{
		ID:             uuid.NewString(),
		RecipeID:       recipe.ID,
		ProductID:      recipe.ProductID,
		LotCode:        fmt.Sprintf("%s%06d", a.prefix, seq),
		OutputQuantity: outputKg,
		TotalCost:      totalCost,
		CostPerKg:      costPerKg,
		Lines:          lines,
		Operator:       operator,
		ProducedAt:     a.now().UTC(),
	}, nil
}
