package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/mrodas/batchworks/internal/port"
)

const stockKeyPrefix = "ingredient:stock:"

// quantityScale converts decimal quantities to integer micro-units so the
// Lua script can compare and decrement without floating point.
const quantityScale = 6

var debitStockScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

local current = redis.call('GET', key)
if not current then
	return 0
end

current = tonumber(current)
if current >= quantity then
	redis.call('DECRBY', key, quantity)
	return 1
end

return 0
`)

// RedisLedger keeps authoritative ingredient stock counters in Redis with
// an atomic check-and-debit script. Ingredient metadata still lives in the
// primary store; SyncStock seeds the counters from it.
type RedisLedger struct {
	client *redis.Client
}

var _ port.StockLedger = (*RedisLedger)(nil)

func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

func (r *RedisLedger) Debit(ctx context.Context, ingredientID string, quantity decimal.Decimal) (bool, error) {
	if quantity.Sign() <= 0 {
		return false, fmt.Errorf("debit quantity must be positive, got %s", quantity)
	}
	micro, err := toMicroUnits(quantity)
	if err != nil {
		return false, err
	}

	result, err := debitStockScript.Run(ctx, r.client, []string{stockKeyPrefix + ingredientID}, micro).Int()
	if err != nil {
		return false, fmt.Errorf("debit script: %w", err)
	}

	return result == 1, nil
}

func (r *RedisLedger) Credit(ctx context.Context, ingredientID string, quantity decimal.Decimal) error {
	if quantity.Sign() <= 0 {
		return fmt.Errorf("credit quantity must be positive, got %s", quantity)
	}
	micro, err := toMicroUnits(quantity)
	if err != nil {
		return err
	}
	return r.client.IncrBy(ctx, stockKeyPrefix+ingredientID, micro).Err()
}

// SyncStock overwrites the counter for one ingredient, used at startup to
// mirror the primary store into Redis.
func (r *RedisLedger) SyncStock(ctx context.Context, ingredientID string, stock decimal.Decimal) error {
	micro, err := toMicroUnits(stock)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, stockKeyPrefix+ingredientID, micro, 0).Err()
}

func toMicroUnits(quantity decimal.Decimal) (int64, error) {
	if quantity.Sign() < 0 {
		return 0, fmt.Errorf("quantity must not be negative, got %s", quantity)
	}

	micro := quantity.Shift(quantityScale)
	if !micro.IsInteger() {
		return 0, fmt.Errorf("quantity %s exceeds %d decimal places", quantity, quantityScale)
	}

	return micro.IntPart(), nil
}
