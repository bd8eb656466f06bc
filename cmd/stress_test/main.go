package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mrodas/batchworks/internal/adapter/storage"
	"github.com/mrodas/batchworks/internal/core/domain"
	"github.com/mrodas/batchworks/internal/core/service"
)

// Contention harness: many concurrent production runs compete for one
// scarce ingredient. With 20 kg of carne and 1 kg needed per run, exactly
// 20 of the 50 runs may win and the ledger must end at zero.
const (
	initialStockKg = 20
	totalRuns      = 50
)

func main() {
	ctx := context.Background()

	mem := storage.NewMemoryStore()
	mem.AddIngredient(domain.Ingredient{
		ID: "ing-carne", Name: "Carne bovina", Unit: domain.UnitKilogram,
		Stock:    decimal.NewFromInt(initialStockKg),
		UnitCost: decimal.RequireFromString("12.50"),
	})
	mem.AddProduct(domain.FinishedProduct{ID: "prod-1", Unit: domain.UnitKilogram})
	mem.AddRecipe(domain.Recipe{
		ID: "rec-1", ProductID: "prod-1",
		Lines: []domain.RecipeLine{
			{IngredientID: "ing-carne", Percentage: decimal.RequireFromString("100.000")},
		},
	})

	production := service.NewProductionService(service.ProductionDeps{
		Ingredients: mem,
		Recipes:     mem,
		Products:    mem,
		Ledger:      mem,
		Rules:       mem,
		History:     mem,
		Lots:        service.NewLotAllocator(mem, "LOT-", "system"),
	})

	var successCount atomic.Int32
	var failCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRuns; i++ {
		wg.Add(1)
		go func(operator int) {
			defer wg.Done()

			_, err := production.Produce(ctx, "rec-1", decimal.NewFromInt(1), fmt.Sprintf("op-%d", operator))
			if err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d kg\n", initialStockKg)
	fmt.Printf("Total Runs:       %d\n", totalRuns)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == int32(initialStockKg) && fail == int32(totalRuns-initialStockKg) {
		fmt.Printf("PASS: Exactly %d runs succeeded, %d failed\n", initialStockKg, totalRuns-initialStockKg)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			initialStockKg, totalRuns-initialStockKg, success, fail)
	}

	ing, _ := mem.GetIngredient(ctx, "ing-carne")
	fmt.Printf("Final Stock:      %s kg\n", ing.Stock)
	if ing.Stock.IsZero() {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %s\n", ing.Stock)
	}

	records, _ := mem.ListByRecipe(ctx, "rec-1")
	fmt.Printf("Audit Records:    %d\n", len(records))
	if len(records) == int(success) {
		fmt.Println("PASS: One audit record per successful run")
	} else {
		fmt.Printf("FAIL: Expected %d records, got %d\n", success, len(records))
	}
}
