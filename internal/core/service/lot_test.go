package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mrodas/batchworks/internal/adapter/storage"
	"github.com/mrodas/batchworks/internal/core/domain"
)

func TestLotAllocator_CodesAndOperator(t *testing.T) {
	mem := storage.NewMemoryStore()
	alloc := NewLotAllocator(mem, "LOT-", "system")
	alloc.now = func() time.Time { return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC) }

	recipe := &domain.Recipe{ID: "rec-1", ProductID: "prod-1"}
	outputKg := decimal.NewFromInt(2)

	first, err := alloc.Allocate(context.Background(), recipe, outputKg, nil,
		decimal.Zero, decimal.Zero, "")
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}

	if first.LotCode != "LOT-000001" {
		t.Errorf("expected LOT-000001, got %s", first.LotCode)
	}
	if first.Operator != "system" {
		t.Errorf("expected sentinel operator, got %q", first.Operator)
	}
	if first.ID == "" {
		t.Error("expected a record ID")
	}
	if !first.ProducedAt.Equal(time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected timestamp %s", first.ProducedAt)
	}

	second, err := alloc.Allocate(context.Background(), recipe, outputKg, nil,
		decimal.Zero, decimal.Zero, "maria")
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}

	if second.LotCode != "LOT-000002" {
		t.Errorf("expected monotonic LOT-000002, got %s", second.LotCode)
	}
	if second.Operator != "maria" {
		t.Errorf("expected supplied operator, got %q", second.Operator)
	}
	if second.ID == first.ID {
		t.Error("record IDs must be unique")
	}
}
