package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mrodas/batchworks/internal/adapter/storage"
	"github.com/mrodas/batchworks/internal/core/domain"
	"github.com/mrodas/batchworks/internal/port"
)

func qty(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// seedFixture loads a catalog where ing-carne and ing-frango classify as
// protein under the default patterns and ing-agua does not.
func seedFixture(mem *storage.MemoryStore) {
	mem.AddIngredient(domain.Ingredient{
		ID: "ing-carne", Name: "Carne bovina", Unit: domain.UnitKilogram,
		Stock: qty("100"), MinThreshold: qty("5"), UnitCost: qty("12.50"),
	})
	mem.AddIngredient(domain.Ingredient{
		ID: "ing-frango", Name: "Peito de frango", Unit: domain.UnitGram,
		Stock: qty("50000"), MinThreshold: qty("2000"), UnitCost: qty("0.02"),
	})
	mem.AddIngredient(domain.Ingredient{
		ID: "ing-agua", Name: "Agua gelada", Unit: domain.UnitLiter,
		Stock: qty("300"), MinThreshold: qty("10"), UnitCost: qty("0.002"),
	})
	mem.AddProduct(domain.FinishedProduct{ID: "prod-1", Name: "Linguica", Unit: domain.UnitKilogram})
	mem.AddRecipe(domain.Recipe{
		ID: "rec-1", Name: "Linguica", ProductID: "prod-1",
		Lines: []domain.RecipeLine{
			{IngredientID: "ing-carne", Percentage: qty("70.000")},
			{IngredientID: "ing-frango", Percentage: qty("30.000")},
			{IngredientID: "ing-agua", Percentage: qty("10.000")},
		},
	})
}

func newService(mem *storage.MemoryStore) *ProductionService {
	return newServiceWith(mem, mem, mem)
}

func newServiceWith(mem *storage.MemoryStore, ledger port.StockLedger, history port.ProductionHistoryStore) *ProductionService {
	return NewProductionService(ProductionDeps{
		Ingredients: mem,
		Recipes:     mem,
		Products:    mem,
		Ledger:      ledger,
		Rules:       mem,
		History:     history,
		Lots:        NewLotAllocator(history, "LOT-", "system"),
	})
}

func ingredientStock(t *testing.T, mem *storage.MemoryStore, id string) decimal.Decimal {
	t.Helper()
	ing, err := mem.GetIngredient(context.Background(), id)
	if err != nil || ing == nil {
		t.Fatalf("ingredient %s not found: %v", id, err)
	}
	return ing.Stock
}

func productStock(t *testing.T, mem *storage.MemoryStore, id string) decimal.Decimal {
	t.Helper()
	p, err := mem.GetProduct(context.Background(), id)
	if err != nil || p == nil {
		t.Fatalf("product %s not found: %v", id, err)
	}
	return p.Stock
}

func TestProduce_Success(t *testing.T) {
	mem := storage.NewMemoryStore()
	seedFixture(mem)
	svc := newService(mem)

	record, err := svc.Produce(context.Background(), "rec-1", qty("2"), "maria")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	// 70% of 2 kg = 1.4 kg carne (native kg), 30% = 600 g frango,
	// 10% = 0.2 L agua.
	if got := ingredientStock(t, mem, "ing-carne"); !got.Equal(qty("98.6")) {
		t.Errorf("carne stock: expected 98.6, got %s", got)
	}
	if got := ingredientStock(t, mem, "ing-frango"); !got.Equal(qty("49400")) {
		t.Errorf("frango stock: expected 49400, got %s", got)
	}
	if got := ingredientStock(t, mem, "ing-agua"); !got.Equal(qty("299.8")) {
		t.Errorf("agua stock: expected 299.8, got %s", got)
	}
	if got := productStock(t, mem, "prod-1"); !got.Equal(qty("2")) {
		t.Errorf("product stock: expected 2, got %s", got)
	}

	// Total cost: 1.4*12.50 + 600*0.02 + 0.2*0.002 = 17.5 + 12 + 0.0004
	if !record.TotalCost.Equal(qty("29.5004")) {
		t.Errorf("total cost: expected 29.5004, got %s", record.TotalCost)
	}

	sum := decimal.Zero
	for _, line := range record.Lines {
		sum = sum.Add(line.CostContribution)
	}
	if !record.TotalCost.Equal(sum) {
		t.Errorf("total cost %s != sum of line contributions %s", record.TotalCost, sum)
	}

	if record.LotCode != "LOT-000001" {
		t.Errorf("expected LOT-000001, got %s", record.LotCode)
	}
	if record.Operator != "maria" {
		t.Errorf("expected operator maria, got %q", record.Operator)
	}

	history, err := svc.History(context.Background(), "rec-1")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 1 || history[0].ID != record.ID {
		t.Errorf("expected the produced record in history, got %d records", len(history))
	}
}

func TestProduce_InvalidBatchSize(t *testing.T) {
	mem := storage.NewMemoryStore()
	seedFixture(mem)
	svc := newService(mem)

	for _, bad := range []string{"0", "-1"} {
		_, err := svc.Produce(context.Background(), "rec-1", qty(bad), "")
		if !errors.Is(err, domain.ErrInvalidBatchSize) {
			t.Errorf("output %s: expected ErrInvalidBatchSize, got %v", bad, err)
		}
	}
}

func TestProduce_UnknownRecipe(t *testing.T) {
	mem := storage.NewMemoryStore()
	seedFixture(mem)
	svc := newService(mem)

	_, err := svc.Produce(context.Background(), "rec-missing", qty("1"), "")
	if !errors.Is(err, domain.ErrUnknownRecipe) {
		t.Fatalf("expected ErrUnknownRecipe, got %v", err)
	}
}

func TestProduce_UnknownIngredient(t *testing.T) {
	mem := storage.NewMemoryStore()
	seedFixture(mem)
	mem.AddRecipe(domain.Recipe{
		ID: "rec-broken", ProductID: "prod-1",
		Lines: []domain.RecipeLine{
			{IngredientID: "ing-ghost", Percentage: qty("100.000")},
		},
	})
	svc := newService(mem)

	_, err := svc.Produce(context.Background(), "rec-broken", qty("1"), "")
	if !errors.Is(err, domain.ErrUnknownIngredient) {
		t.Fatalf("expected ErrUnknownIngredient, got %v", err)
	}
}

func TestProduce_CompositionFailureIsSideEffectFree(t *testing.T) {
	mem := storage.NewMemoryStore()
	seedFixture(mem)
	mem.AddRecipe(domain.Recipe{
		ID: "rec-short", ProductID: "prod-1",
		Lines: []domain.RecipeLine{
			{IngredientID: "ing-carne", Percentage: qty("90.000")},
		},
	})
	svc := newService(mem)

	_, err := svc.Produce(context.Background(), "rec-short", qty("1"), "")

	var compErr *domain.CompositionError
	if !errors.As(err, &compErr) {
		t.Fatalf("expected CompositionError, got %v", err)
	}
	if !compErr.ActualTotal.Equal(qty("90.000")) {
		t.Errorf("expected actual total 90.000, got %s", compErr.ActualTotal)
	}

	if got := ingredientStock(t, mem, "ing-carne"); !got.Equal(qty("100")) {
		t.Errorf("stock must be untouched, got %s", got)
	}
	if history, _ := svc.History(context.Background(), "rec-short"); len(history) != 0 {
		t.Errorf("expected no history, got %d records", len(history))
	}
}

func TestProduce_InsufficientStockReportsEveryShortfall(t *testing.T) {
	mem := storage.NewMemoryStore()
	seedFixture(mem)
	// 500 g of frango: a 1 kg batch at 60% needs 600 g.
	mem.AddIngredient(domain.Ingredient{
		ID: "ing-frango", Name: "Peito de frango", Unit: domain.UnitGram,
		Stock: qty("500"), UnitCost: qty("0.02"),
	})
	// Carne short as well, so both shortfalls must be listed.
	mem.AddIngredient(domain.Ingredient{
		ID: "ing-carne", Name: "Carne bovina", Unit: domain.UnitKilogram,
		Stock: qty("0.1"), UnitCost: qty("12.50"),
	})
	mem.AddRecipe(domain.Recipe{
		ID: "rec-scarce", ProductID: "prod-1",
		Lines: []domain.RecipeLine{
			{IngredientID: "ing-frango", Percentage: qty("60.000")},
			{IngredientID: "ing-carne", Percentage: qty("40.000")},
		},
	})
	svc := newService(mem)

	_, err := svc.Produce(context.Background(), "rec-scarce", qty("1"), "")

	var insErr *domain.InsufficientStockError
	if !errors.As(err, &insErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if len(insErr.Shortfalls) != 2 {
		t.Fatalf("expected 2 shortfalls, got %d", len(insErr.Shortfalls))
	}

	byID := map[string]domain.Shortfall{}
	for _, s := range insErr.Shortfalls {
		byID[s.IngredientID] = s
	}
	frango := byID["ing-frango"]
	if !frango.Required.Equal(qty("600")) || !frango.Available.Equal(qty("500")) {
		t.Errorf("frango shortfall: required %s available %s", frango.Required, frango.Available)
	}
	carne := byID["ing-carne"]
	if !carne.Required.Equal(qty("0.4")) || !carne.Available.Equal(qty("0.1")) {
		t.Errorf("carne shortfall: required %s available %s", carne.Required, carne.Available)
	}

	// No state change on failure.
	if got := ingredientStock(t, mem, "ing-frango"); !got.Equal(qty("500")) {
		t.Errorf("frango stock must remain 500, got %s", got)
	}
	if got := ingredientStock(t, mem, "ing-carne"); !got.Equal(qty("0.1")) {
		t.Errorf("carne stock must remain 0.1, got %s", got)
	}
}

func TestProduce_RepeatedIngredientLinesAreSummedForSufficiency(t *testing.T) {
	mem := storage.NewMemoryStore()
	seedFixture(mem)
	// 0.9 kg of carne: each line alone fits, the 0.6 + 0.4 sum does not.
	mem.AddIngredient(domain.Ingredient{
		ID: "ing-carne", Name: "Carne bovina", Unit: domain.UnitKilogram,
		Stock: qty("0.9"), UnitCost: qty("12.50"),
	})
	mem.AddRecipe(domain.Recipe{
		ID: "rec-split", ProductID: "prod-1",
		Lines: []domain.RecipeLine{
			{IngredientID: "ing-carne", Percentage: qty("60.000")},
			{IngredientID: "ing-carne", Percentage: qty("40.000")},
		},
	})
	svc := newService(mem)

	_, err := svc.Produce(context.Background(), "rec-split", qty("1"), "")

	var insErr *domain.InsufficientStockError
	if !errors.As(err, &insErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if len(insErr.Shortfalls) != 1 {
		t.Fatalf("expected 1 shortfall, got %d", len(insErr.Shortfalls))
	}
	s := insErr.Shortfalls[0]
	if s.IngredientID != "ing-carne" || !s.Required.Equal(qty("1")) || !s.Available.Equal(qty("0.9")) {
		t.Errorf("carne shortfall: required %s available %s", s.Required, s.Available)
	}

	if got := ingredientStock(t, mem, "ing-carne"); !got.Equal(qty("0.9")) {
		t.Errorf("carne stock must remain 0.9, got %s", got)
	}
}

func TestProduce_RepeatedIngredientLinesCommitWhenStockCovers(t *testing.T) {
	mem := storage.NewMemoryStore()
	seedFixture(mem)
	mem.AddRecipe(domain.Recipe{
		ID: "rec-split", ProductID: "prod-1",
		Lines: []domain.RecipeLine{
			{IngredientID: "ing-carne", Percentage: qty("60.000")},
			{IngredientID: "ing-carne", Percentage: qty("40.000")},
		},
	})
	svc := newService(mem)

	if _, err := svc.Produce(context.Background(), "rec-split", qty("1"), ""); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if got := ingredientStock(t, mem, "ing-carne"); !got.Equal(qty("99")) {
		t.Errorf("carne stock: expected 99, got %s", got)
	}
}

func TestProduce_NotIdempotent(t *testing.T) {
	mem := storage.NewMemoryStore()
	seedFixture(mem)
	svc := newService(mem)

	first, err := svc.Produce(context.Background(), "rec-1", qty("1"), "op")
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := svc.Produce(context.Background(), "rec-1", qty("1"), "op")
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if first.ID == second.ID || first.LotCode == second.LotCode {
		t.Error("identical calls must create distinct records and lots")
	}

	// Debited twice: 2 * 0.7 kg.
	if got := ingredientStock(t, mem, "ing-carne"); !got.Equal(qty("98.6")) {
		t.Errorf("expected carne stock 98.6 after two runs, got %s", got)
	}
	if history, _ := svc.History(context.Background(), "rec-1"); len(history) != 2 {
		t.Errorf("expected 2 history records, got %d", len(history))
	}
}

func TestProduce_ConcurrentDisjointIngredients(t *testing.T) {
	mem := storage.NewMemoryStore()
	seedFixture(mem)
	mem.AddIngredient(domain.Ingredient{
		ID: "ing-pernil", Name: "Pernil suino", Unit: domain.UnitKilogram,
		Stock: qty("50"), UnitCost: qty("9.90"),
	})
	mem.AddProduct(domain.FinishedProduct{ID: "prod-2", Unit: domain.UnitKilogram})
	mem.AddRecipe(domain.Recipe{
		ID: "rec-2", ProductID: "prod-2",
		Lines: []domain.RecipeLine{
			{IngredientID: "ing-pernil", Percentage: qty("100.000")},
		},
	})
	svc := newService(mem)

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = svc.Produce(context.Background(), "rec-1", qty("1"), "")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = svc.Produce(context.Background(), "rec-2", qty("1"), "")
	}()
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("run %d on disjoint ingredients failed: %v", i, err)
		}
	}
}

func TestProduce_ConcurrentScarceIngredientNeverOversells(t *testing.T) {
	mem := storage.NewMemoryStore()
	seedFixture(mem)
	// 1 kg of carne; each 1 kg batch needs 0.7 kg, so at most one of two
	// concurrent runs can win.
	mem.AddIngredient(domain.Ingredient{
		ID: "ing-carne", Name: "Carne bovina", Unit: domain.UnitKilogram,
		Stock: qty("1"), UnitCost: qty("12.50"),
	})
	svc := newService(mem)

	var success, failed atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Produce(context.Background(), "rec-1", qty("1"), ""); err == nil {
				success.Add(1)
			} else {
				failed.Add(1)
			}
		}()
	}
	wg.Wait()

	if success.Load() != 1 || failed.Load() != 1 {
		t.Errorf("expected exactly one winner, got %d successes and %d failures",
			success.Load(), failed.Load())
	}

	if got := ingredientStock(t, mem, "ing-carne"); !got.Equal(qty("0.3")) {
		t.Errorf("expected carne stock 0.3, got %s", got)
	}
}

// flakyLedger rejects the first debit of one ingredient, simulating a
// concurrent run consuming stock between pre-check and commit.
type flakyLedger struct {
	port.StockLedger
	target   string
	rejected atomic.Bool
}

func (f *flakyLedger) Debit(ctx context.Context, ingredientID string, quantity decimal.Decimal) (bool, error) {
	if ingredientID == f.target && f.rejected.CompareAndSwap(false, true) {
		return false, nil
	}
	return f.StockLedger.Debit(ctx, ingredientID, quantity)
}

func TestProduce_RetriesAfterLostRace(t *testing.T) {
	mem := storage.NewMemoryStore()
	seedFixture(mem)
	ledger := &flakyLedger{StockLedger: mem, target: "ing-frango"}
	svc := newServiceWith(mem, ledger, mem)

	record, err := svc.Produce(context.Background(), "rec-1", qty("1"), "")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if record == nil {
		t.Fatal("expected a record")
	}

	// The rejected first attempt must have been fully reversed before the
	// retry, so totals come out exactly once.
	if got := ingredientStock(t, mem, "ing-carne"); !got.Equal(qty("99.3")) {
		t.Errorf("expected carne stock 99.3, got %s", got)
	}
	if got := ingredientStock(t, mem, "ing-frango"); !got.Equal(qty("49700")) {
		t.Errorf("expected frango stock 49700, got %s", got)
	}
}

// stonewallLedger always rejects debits of one ingredient while stock
// reads keep passing the pre-check.
type stonewallLedger struct {
	port.StockLedger
	target string
}

func (s *stonewallLedger) Debit(ctx context.Context, ingredientID string, quantity decimal.Decimal) (bool, error) {
	if ingredientID == s.target {
		return false, nil
	}
	return s.StockLedger.Debit(ctx, ingredientID, quantity)
}

func TestProduce_StockConflictAfterExhaustedRetries(t *testing.T) {
	mem := storage.NewMemoryStore()
	seedFixture(mem)
	svc := newServiceWith(mem, &stonewallLedger{StockLedger: mem, target: "ing-agua"}, mem)

	_, err := svc.Produce(context.Background(), "rec-1", qty("1"), "")
	if !errors.Is(err, domain.ErrStockConflict) {
		t.Fatalf("expected ErrStockConflict, got %v", err)
	}

	// Every applied debit of every attempt was reversed.
	if got := ingredientStock(t, mem, "ing-carne"); !got.Equal(qty("100")) {
		t.Errorf("expected carne stock restored to 100, got %s", got)
	}
	if got := ingredientStock(t, mem, "ing-frango"); !got.Equal(qty("50000")) {
		t.Errorf("expected frango stock restored to 50000, got %s", got)
	}
}

// failingHistory accepts lot allocation but rejects the record append.
type failingHistory struct {
	port.ProductionHistoryStore
}

func (f *failingHistory) AppendRecord(ctx context.Context, record *domain.ProductionRecord) error {
	return fmt.Errorf("disk full")
}

func TestProduce_AppendFailureRollsEverythingBack(t *testing.T) {
	mem := storage.NewMemoryStore()
	seedFixture(mem)
	svc := newServiceWith(mem, mem, &failingHistory{ProductionHistoryStore: mem})

	_, err := svc.Produce(context.Background(), "rec-1", qty("2"), "")

	var perErr *domain.PersistenceError
	if !errors.As(err, &perErr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}

	if got := ingredientStock(t, mem, "ing-carne"); !got.Equal(qty("100")) {
		t.Errorf("expected carne stock restored to 100, got %s", got)
	}
	if got := ingredientStock(t, mem, "ing-frango"); !got.Equal(qty("50000")) {
		t.Errorf("expected frango stock restored to 50000, got %s", got)
	}
	if got := productStock(t, mem, "prod-1"); !got.Equal(qty("0")) {
		t.Errorf("expected product credit reversed, got %s", got)
	}
}

// brokenCreditLedger fails credits, so compensation cannot complete.
type brokenCreditLedger struct {
	port.StockLedger
}

func (b *brokenCreditLedger) Credit(ctx context.Context, ingredientID string, quantity decimal.Decimal) error {
	return fmt.Errorf("ledger unreachable")
}

func TestProduce_CompensationFailureIsEscalated(t *testing.T) {
	mem := storage.NewMemoryStore()
	seedFixture(mem)
	svc := newServiceWith(mem, &brokenCreditLedger{StockLedger: mem}, &failingHistory{ProductionHistoryStore: mem})

	_, err := svc.Produce(context.Background(), "rec-1", qty("1"), "")

	var compErr *domain.CompensationError
	if !errors.As(err, &compErr) {
		t.Fatalf("expected CompensationError, got %v", err)
	}
	if len(compErr.Unreversed) == 0 {
		t.Error("expected the unreversed debits to be listed for reconciliation")
	}
}
