package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mrodas/batchworks/internal/core/domain"
	"github.com/mrodas/batchworks/internal/port"
)

// MemoryStore is an in-process implementation of every port, used by tests
// and by the memory storage driver. All access goes through one mutex, so
// a conditional debit is atomic with respect to concurrent runs.
type MemoryStore struct {
	mu          sync.RWMutex
	ingredients map[string]*domain.Ingredient
	products    map[string]*domain.FinishedProduct
	recipes     map[string]*domain.Recipe
	rules       map[string]domain.ClassificationRule
	records     []*domain.ProductionRecord
	lotCounter  uint64
}

// Interface compliance.
var (
	_ port.IngredientRepository   = (*MemoryStore)(nil)
	_ port.RecipeRepository       = (*MemoryStore)(nil)
	_ port.ProductRepository      = (*MemoryStore)(nil)
	_ port.StockLedger            = (*MemoryStore)(nil)
	_ port.ClassificationConfig   = (*MemoryStore)(nil)
	_ port.ClassificationAdmin    = (*MemoryStore)(nil)
	_ port.ProductionHistoryStore = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ingredients: make(map[string]*domain.Ingredient),
		products:    make(map[string]*domain.FinishedProduct),
		recipes:     make(map[string]*domain.Recipe),
		rules:       make(map[string]domain.ClassificationRule),
	}
}

// AddIngredient seeds or replaces an ingredient.
func (m *MemoryStore) AddIngredient(ing domain.Ingredient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingredients[ing.ID] = &ing
}

// AddProduct seeds or replaces a finished product.
func (m *MemoryStore) AddProduct(p domain.FinishedProduct) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = &p
}

// AddRecipe seeds or replaces a recipe.
func (m *MemoryStore) AddRecipe(r domain.Recipe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recipes[r.ID] = &r
}

func (m *MemoryStore) GetIngredient(ctx context.Context, id string) (*domain.Ingredient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ing, ok := m.ingredients[id]
	if !ok {
		return nil, nil
	}
	copied := *ing
	return &copied, nil
}

func (m *MemoryStore) GetRecipe(ctx context.Context, id string) (*domain.Recipe, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.recipes[id]
	if !ok {
		return nil, nil
	}
	copied := *r
	copied.Lines = append([]domain.RecipeLine(nil), r.Lines...)
	return &copied, nil
}

func (m *MemoryStore) GetProduct(ctx context.Context, id string) (*domain.FinishedProduct, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

func (m *MemoryStore) Debit(ctx context.Context, ingredientID string, quantity decimal.Decimal) (bool, error) {
	if quantity.Sign() <= 0 {
		return false, fmt.Errorf("debit quantity must be positive, got %s", quantity)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ing, ok := m.ingredients[ingredientID]
	if !ok {
		return false, fmt.Errorf("ingredient %s not found", ingredientID)
	}
	if ing.Stock.Cmp(quantity) < 0 {
		return false, nil
	}

	ing.Stock = ing.Stock.Sub(quantity)
	ing.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) Credit(ctx context.Context, ingredientID string, quantity decimal.Decimal) error {
	if quantity.Sign() <= 0 {
		return fmt.Errorf("credit quantity must be positive, got %s", quantity)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ing, ok := m.ingredients[ingredientID]
	if !ok {
		return fmt.Errorf("ingredient %s not found", ingredientID)
	}

	ing.Stock = ing.Stock.Add(quantity)
	ing.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) CreditProduct(ctx context.Context, id string, quantity decimal.Decimal) error {
	if quantity.Sign() <= 0 {
		return fmt.Errorf("credit quantity must be positive, got %s", quantity)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return fmt.Errorf("product %s not found", id)
	}

	p.Stock = p.Stock.Add(quantity)
	p.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) DebitProduct(ctx context.Context, id string, quantity decimal.Decimal) (bool, error) {
	if quantity.Sign() <= 0 {
		return false, fmt.Errorf("debit quantity must be positive, got %s", quantity)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return false, fmt.Errorf("product %s not found", id)
	}
	if p.Stock.Cmp(quantity) < 0 {
		return false, nil
	}

	p.Stock = p.Stock.Sub(quantity)
	p.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) ActiveRules(ctx context.Context) ([]domain.ClassificationRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var active []domain.ClassificationRule
	for _, r := range m.rules {
		if r.Active {
			active = append(active, r)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return active, nil
}

func (m *MemoryStore) SaveRule(ctx context.Context, rule domain.ClassificationRule) error {
	if rule.ID == "" {
		return fmt.Errorf("rule ID must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rule.UpdatedAt = time.Now()
	m.rules[rule.ID] = rule
	return nil
}

func (m *MemoryStore) SetRuleActive(ctx context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rules[id]
	if !ok {
		return fmt.Errorf("rule %s not found", id)
	}
	r.Active = active
	r.UpdatedAt = time.Now()
	m.rules[id] = r
	return nil
}

func (m *MemoryStore) DeleteRule(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.rules, id)
	return nil
}

func (m *MemoryStore) ListRules(ctx context.Context) ([]domain.ClassificationRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rules := make([]domain.ClassificationRule, 0, len(m.rules))
	for _, r := range m.rules {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}

func (m *MemoryStore) NextLot(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lotCounter++
	return m.lotCounter, nil
}

func (m *MemoryStore) AppendRecord(ctx context.Context, record *domain.ProductionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *record
	copied.Lines = append([]domain.ConsumptionLine(nil), record.Lines...)
	m.records = append(m.records, &copied)
	return nil
}

func (m *MemoryStore) ListByRecipe(ctx context.Context, recipeID string) ([]*domain.ProductionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.ProductionRecord
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].RecipeID == recipeID {
			copied := *m.records[i]
			copied.Lines = append([]domain.ConsumptionLine(nil), m.records[i].Lines...)
			out = append(out, &copied)
		}
	}
	return out, nil
}
