package storage

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mrodas/batchworks/internal/port"
)

// WriteThroughLedger gates debits through the Redis counters and then
// applies them to the primary store, so the fast atomic check stays in
// Redis while the catalog's stock column remains accurate. A primary
// failure returns the Redis counter to its prior value.
type WriteThroughLedger struct {
	gate    *RedisLedger
	primary port.StockLedger
}

var _ port.StockLedger = (*WriteThroughLedger)(nil)

func NewWriteThroughLedger(gate *RedisLedger, primary port.StockLedger) *WriteThroughLedger {
	return &WriteThroughLedger{gate: gate, primary: primary}
}

func (l *WriteThroughLedger) Debit(ctx context.Context, ingredientID string, quantity decimal.Decimal) (bool, error) {
	ok, err := l.gate.Debit(ctx, ingredientID, quantity)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	ok, err = l.primary.Debit(ctx, ingredientID, quantity)
	if err != nil || !ok {
		if rbErr := l.gate.Credit(ctx, ingredientID, quantity); rbErr != nil {
			return false, fmt.Errorf("primary debit failed and redis rollback failed: %w", rbErr)
		}
		if err != nil {
			return false, err
		}
		// Counters disagreed; the primary is authoritative.
		return false, nil
	}

	return true, nil
}

func (l *WriteThroughLedger) Credit(ctx context.Context, ingredientID string, quantity decimal.Decimal) error {
	if err := l.primary.Credit(ctx, ingredientID, quantity); err != nil {
		return err
	}
	return l.gate.Credit(ctx, ingredientID, quantity)
}
