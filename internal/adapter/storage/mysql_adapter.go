package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mrodas/batchworks/internal/core/domain"
	"github.com/mrodas/batchworks/internal/port"
)

// MySQLAdapter implements the persistence ports on MySQL. Stock debits use
// a conditional UPDATE (WHERE stock >= ?) so sufficiency is enforced by
// the row update itself rather than a read-then-write.
type MySQLAdapter struct {
	db *sql.DB
}

var (
	_ port.IngredientRepository   = (*MySQLAdapter)(nil)
	_ port.RecipeRepository       = (*MySQLAdapter)(nil)
	_ port.ProductRepository      = (*MySQLAdapter)(nil)
	_ port.StockLedger            = (*MySQLAdapter)(nil)
	_ port.ClassificationConfig   = (*MySQLAdapter)(nil)
	_ port.ClassificationAdmin    = (*MySQLAdapter)(nil)
	_ port.ProductionHistoryStore = (*MySQLAdapter)(nil)
)

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) GetIngredient(ctx context.Context, id string) (*domain.Ingredient, error) {
	var (
		ing                       domain.Ingredient
		stock, minThreshold, cost string
		unit                      string
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, category, unit, stock, min_threshold, unit_cost, created_at, updated_at
		FROM ingredients WHERE id = ?`, id,
	).Scan(&ing.ID, &ing.Name, &ing.Category, &unit, &stock, &minThreshold, &cost,
		&ing.CreatedAt, &ing.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query ingredient: %w", err)
	}

	ing.Unit = domain.Unit(unit)
	if !domain.KnownUnit(ing.Unit) {
		return nil, fmt.Errorf("ingredient %s: unknown unit %q in storage", ing.ID, unit)
	}
	if ing.Stock, err = decimal.NewFromString(stock); err != nil {
		return nil, fmt.Errorf("parse stock: %w", err)
	}
	if ing.MinThreshold, err = decimal.NewFromString(minThreshold); err != nil {
		return nil, fmt.Errorf("parse min_threshold: %w", err)
	}
	if ing.UnitCost, err = decimal.NewFromString(cost); err != nil {
		return nil, fmt.Errorf("parse unit_cost: %w", err)
	}

	return &ing, nil
}

// ListIngredients returns the whole catalog, used to mirror stock
// counters into an external ledger at startup.
func (m *MySQLAdapter) ListIngredients(ctx context.Context) ([]*domain.Ingredient, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT id FROM ingredients ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list ingredients: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan ingredient id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ingredient ids: %w", err)
	}

	ingredients := make([]*domain.Ingredient, 0, len(ids))
	for _, id := range ids {
		ing, err := m.GetIngredient(ctx, id)
		if err != nil {
			return nil, err
		}
		if ing != nil {
			ingredients = append(ingredients, ing)
		}
	}
	return ingredients, nil
}

func (m *MySQLAdapter) GetRecipe(ctx context.Context, id string) (*domain.Recipe, error) {
	var r domain.Recipe
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, product_id, created_at, updated_at
		FROM recipes WHERE id = ?`, id,
	).Scan(&r.ID, &r.Name, &r.ProductID, &r.CreatedAt, &r.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query recipe: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT ingredient_id, percentage
		FROM recipe_lines WHERE recipe_id = ? ORDER BY position`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("query recipe lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			line domain.RecipeLine
			pct  string
		)
		if err := rows.Scan(&line.IngredientID, &pct); err != nil {
			return nil, fmt.Errorf("scan recipe line: %w", err)
		}
		if line.Percentage, err = decimal.NewFromString(pct); err != nil {
			return nil, fmt.Errorf("parse percentage: %w", err)
		}
		r.Lines = append(r.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipe lines: %w", err)
	}

	return &r, nil
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, id string) (*domain.FinishedProduct, error) {
	var (
		p     domain.FinishedProduct
		stock string
		unit  string
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, unit, stock, created_at, updated_at
		FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &unit, &stock, &p.CreatedAt, &p.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}

	p.Unit = domain.Unit(unit)
	if !domain.KnownUnit(p.Unit) {
		return nil, fmt.Errorf("product %s: unknown unit %q in storage", p.ID, unit)
	}
	if p.Stock, err = decimal.NewFromString(stock); err != nil {
		return nil, fmt.Errorf("parse stock: %w", err)
	}

	return &p, nil
}

func (m *MySQLAdapter) Debit(ctx context.Context, ingredientID string, quantity decimal.Decimal) (bool, error) {
	if quantity.Sign() <= 0 {
		return false, fmt.Errorf("debit quantity must be positive, got %s", quantity)
	}

	result, err := m.db.ExecContext(ctx, `
		UPDATE ingredients
		SET stock = stock - ?, updated_at = NOW()
		WHERE id = ? AND stock >= ?`,
		quantity.String(), ingredientID, quantity.String(),
	)
	if err != nil {
		return false, fmt.Errorf("debit ingredient: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (m *MySQLAdapter) Credit(ctx context.Context, ingredientID string, quantity decimal.Decimal) error {
	if quantity.Sign() <= 0 {
		return fmt.Errorf("credit quantity must be positive, got %s", quantity)
	}

	result, err := m.db.ExecContext(ctx, `
		UPDATE ingredients
		SET stock = stock + ?, updated_at = NOW()
		WHERE id = ?`,
		quantity.String(), ingredientID,
	)
	if err != nil {
		return fmt.Errorf("credit ingredient: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("ingredient %s not found", ingredientID)
	}
	return nil
}

func (m *MySQLAdapter) CreditProduct(ctx context.Context, id string, quantity decimal.Decimal) error {
	if quantity.Sign() <= 0 {
		return fmt.Errorf("credit quantity must be positive, got %s", quantity)
	}

	result, err := m.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + ?, updated_at = NOW()
		WHERE id = ?`,
		quantity.String(), id,
	)
	if err != nil {
		return fmt.Errorf("credit product: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("product %s not found", id)
	}
	return nil
}

func (m *MySQLAdapter) DebitProduct(ctx context.Context, id string, quantity decimal.Decimal) (bool, error) {
	if quantity.Sign() <= 0 {
		return false, fmt.Errorf("debit quantity must be positive, got %s", quantity)
	}

	result, err := m.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - ?, updated_at = NOW()
		WHERE id = ? AND stock >= ?`,
		quantity.String(), id, quantity.String(),
	)
	if err != nil {
		return false, fmt.Errorf("debit product: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (m *MySQLAdapter) ActiveRules(ctx context.Context) ([]domain.ClassificationRule, error) {
	return m.queryRules(ctx, `
		SELECT id, pattern, active, updated_at
		FROM classification_rules WHERE active = 1 ORDER BY id`)
}

func (m *MySQLAdapter) ListRules(ctx context.Context) ([]domain.ClassificationRule, error) {
	return m.queryRules(ctx, `
		SELECT id, pattern, active, updated_at
		FROM classification_rules ORDER BY id`)
}

func (m *MySQLAdapter) queryRules(ctx context.Context, query string) ([]domain.ClassificationRule, error) {
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query classification rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.ClassificationRule
	for rows.Next() {
		var r domain.ClassificationRule
		if err := rows.Scan(&r.ID, &r.Pattern, &r.Active, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan classification rule: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate classification rules: %w", err)
	}
	return rules, nil
}

func (m *MySQLAdapter) SaveRule(ctx context.Context, rule domain.ClassificationRule) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO classification_rules (id, pattern, active, updated_at)
		VALUES (?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE pattern = VALUES(pattern), active = VALUES(active), updated_at = NOW()`,
		rule.ID, rule.Pattern, rule.Active,
	)
	if err != nil {
		return fmt.Errorf("save classification rule: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) SetRuleActive(ctx context.Context, id string, active bool) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE classification_rules SET active = ?, updated_at = NOW() WHERE id = ?`,
		active, id,
	)
	if err != nil {
		return fmt.Errorf("toggle classification rule: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("rule %s not found", id)
	}
	return nil
}

func (m *MySQLAdapter) DeleteRule(ctx context.Context, id string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM classification_rules WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete classification rule: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) NextLot(ctx context.Context) (uint64, error) {
	result, err := m.db.ExecContext(ctx, `INSERT INTO lot_sequence () VALUES ()`)
	if err != nil {
		return 0, fmt.Errorf("advance lot sequence: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read lot sequence: %w", err)
	}
	return uint64(id), nil
}

func (m *MySQLAdapter) AppendRecord(ctx context.Context, record *domain.ProductionRecord) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO production_records
		(id, recipe_id, product_id, lot_code, output_qty, total_cost, cost_per_kg, operator, produced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.RecipeID, record.ProductID, record.LotCode,
		record.OutputQuantity.String(), record.TotalCost.String(), record.CostPerKg.String(),
		record.Operator, record.ProducedAt,
	)
	if err != nil {
		return fmt.Errorf("insert production record: %w", err)
	}

	for i, line := range record.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO production_record_lines
			(record_id, position, ingredient_id, percentage_applied, quantity_consumed, unit, cost_contribution)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			record.ID, i, line.IngredientID, line.PercentageApplied.String(),
			line.QuantityConsumed.String(), string(line.Unit), line.CostContribution.String(),
		)
		if err != nil {
			return fmt.Errorf("insert production record line: %w", err)
		}
	}

	return tx.Commit()
}

func (m *MySQLAdapter) ListByRecipe(ctx context.Context, recipeID string) ([]*domain.ProductionRecord, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, recipe_id, product_id, lot_code, output_qty, total_cost, cost_per_kg, operator, produced_at
		FROM production_records WHERE recipe_id = ? ORDER BY produced_at DESC, lot_code DESC`, recipeID,
	)
	if err != nil {
		return nil, fmt.Errorf("query production records: %w", err)
	}
	defer rows.Close()

	var records []*domain.ProductionRecord
	for rows.Next() {
		var (
			r                       domain.ProductionRecord
			outputQty, total, perKg string
		)
		if err := rows.Scan(&r.ID, &r.RecipeID, &r.ProductID, &r.LotCode,
			&outputQty, &total, &perKg, &r.Operator, &r.ProducedAt); err != nil {
			return nil, fmt.Errorf("scan production record: %w", err)
		}
		if r.OutputQuantity, err = decimal.NewFromString(outputQty); err != nil {
			return nil, fmt.Errorf("parse output_qty: %w", err)
		}
		if r.TotalCost, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("parse total_cost: %w", err)
		}
		if r.CostPerKg, err = decimal.NewFromString(perKg); err != nil {
			return nil, fmt.Errorf("parse cost_per_kg: %w", err)
		}
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate production records: %w", err)
	}

	for _, r := range records {
		if r.Lines, err = m.recordLines(ctx, r.ID); err != nil {
			return nil, err
		}
	}

	return records, nil
}

func (m *MySQLAdapter) recordLines(ctx context.Context, recordID string) ([]domain.ConsumptionLine, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT ingredient_id, percentage_applied, quantity_consumed, unit, cost_contribution
		FROM production_record_lines WHERE record_id = ? ORDER BY position`, recordID,
	)
	if err != nil {
		return nil, fmt.Errorf("query record lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.ConsumptionLine
	for rows.Next() {
		var (
			line           domain.ConsumptionLine
			pct, qty, cost string
			unit           string
		)
		if err := rows.Scan(&line.IngredientID, &pct, &qty, &unit, &cost); err != nil {
			return nil, fmt.Errorf("scan record line: %w", err)
		}
		line.Unit = domain.Unit(unit)
		if line.PercentageApplied, err = decimal.NewFromString(pct); err != nil {
			return nil, fmt.Errorf("parse percentage_applied: %w", err)
		}
		if line.QuantityConsumed, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("parse quantity_consumed: %w", err)
		}
		if line.CostContribution, err = decimal.NewFromString(cost); err != nil {
			return nil, fmt.Errorf("parse cost_contribution: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record lines: %w", err)
	}
	return lines, nil
}
