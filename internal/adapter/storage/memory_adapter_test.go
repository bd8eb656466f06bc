package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrodas/batchworks/internal/core/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestMemoryStore_DebitCredit(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	mem.AddIngredient(domain.Ingredient{ID: "ing-1", Unit: domain.UnitGram, Stock: d("500")})

	ok, err := mem.Debit(ctx, "ing-1", d("200"))
	require.NoError(t, err)
	require.True(t, ok)

	ing, err := mem.GetIngredient(ctx, "ing-1")
	require.NoError(t, err)
	assert.True(t, ing.Stock.Equal(d("300")), "stock after debit: %s", ing.Stock)

	// Insufficient: no state change, ok=false, no error.
	ok, err = mem.Debit(ctx, "ing-1", d("301"))
	require.NoError(t, err)
	assert.False(t, ok)

	ing, _ = mem.GetIngredient(ctx, "ing-1")
	assert.True(t, ing.Stock.Equal(d("300")), "stock after failed debit: %s", ing.Stock)

	require.NoError(t, mem.Credit(ctx, "ing-1", d("50")))
	ing, _ = mem.GetIngredient(ctx, "ing-1")
	assert.True(t, ing.Stock.Equal(d("350")))
}

func TestMemoryStore_DebitRejectsNonPositive(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	mem.AddIngredient(domain.Ingredient{ID: "ing-1", Stock: d("10")})

	_, err := mem.Debit(ctx, "ing-1", d("0"))
	assert.Error(t, err)
	_, err = mem.Debit(ctx, "ing-1", d("-1"))
	assert.Error(t, err)
	err = mem.Credit(ctx, "ing-1", d("0"))
	assert.Error(t, err)
}

func TestMemoryStore_ConcurrentDebitsNeverOversell(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	mem.AddIngredient(domain.Ingredient{ID: "ing-1", Stock: d("20")})

	var wg sync.WaitGroup
	successes := make(chan struct{}, 50)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := mem.Debit(ctx, "ing-1", d("1")); err == nil && ok {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	count := 0
	for range successes {
		count++
	}
	assert.Equal(t, 20, count)

	ing, _ := mem.GetIngredient(ctx, "ing-1")
	assert.True(t, ing.Stock.IsZero(), "stock should be exactly zero, got %s", ing.Stock)
}

func TestMemoryStore_ProductCredit(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	mem.AddProduct(domain.FinishedProduct{ID: "prod-1", Unit: domain.UnitKilogram})

	require.NoError(t, mem.CreditProduct(ctx, "prod-1", d("2")))
	p, err := mem.GetProduct(ctx, "prod-1")
	require.NoError(t, err)
	assert.True(t, p.Stock.Equal(d("2")))

	ok, err := mem.DebitProduct(ctx, "prod-1", d("3"))
	require.NoError(t, err)
	assert.False(t, ok, "cannot debit below zero")

	ok, err = mem.DebitProduct(ctx, "prod-1", d("2"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_RuleAdmin(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()

	require.NoError(t, mem.SaveRule(ctx, domain.ClassificationRule{ID: "r1", Pattern: "carne", Active: true}))
	require.NoError(t, mem.SaveRule(ctx, domain.ClassificationRule{ID: "r2", Pattern: "sal", Active: false}))

	active, err := mem.ActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "r1", active[0].ID)

	all, err := mem.ListRules(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, mem.SetRuleActive(ctx, "r2", true))
	active, _ = mem.ActiveRules(ctx)
	assert.Len(t, active, 2)

	require.NoError(t, mem.DeleteRule(ctx, "r1"))
	all, _ = mem.ListRules(ctx)
	require.Len(t, all, 1)
	assert.Equal(t, "r2", all[0].ID)

	assert.Error(t, mem.SetRuleActive(ctx, "r-missing", true))
}

func TestMemoryStore_HistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, mem.AppendRecord(ctx, &domain.ProductionRecord{ID: id, RecipeID: "rec-1"}))
	}
	require.NoError(t, mem.AppendRecord(ctx, &domain.ProductionRecord{ID: "other", RecipeID: "rec-2"}))

	records, err := mem.ListByRecipe(ctx, "rec-1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "c", records[0].ID)
	assert.Equal(t, "a", records[2].ID)
}

func TestMemoryStore_NextLotMonotonic(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()

	prev := uint64(0)
	for i := 0; i < 5; i++ {
		n, err := mem.NextLot(ctx)
		require.NoError(t, err)
		assert.Greater(t, n, prev)
		prev = n
	}
}

func TestMemoryStore_GetReturnsCopies(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	mem.AddIngredient(domain.Ingredient{ID: "ing-1", Stock: d("10")})

	ing, _ := mem.GetIngredient(ctx, "ing-1")
	ing.Stock = d("9999")

	again, _ := mem.GetIngredient(ctx, "ing-1")
	assert.True(t, again.Stock.Equal(d("10")), "mutating a returned ingredient must not affect the store")
}
