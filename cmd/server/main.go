package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mrodas/batchworks/internal/adapter/handler"
	"github.com/mrodas/batchworks/internal/adapter/storage"
	"github.com/mrodas/batchworks/internal/config"
	"github.com/mrodas/batchworks/internal/core/domain"
	"github.com/mrodas/batchworks/internal/core/service"
	"github.com/mrodas/batchworks/pkg/logger"
)

func main() {
	log := logger.Must(logger.New())
	defer log.Sync()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := service.ProductionDeps{
		Logger: logger.Named(log, "production"),
	}

	var closers []func()

	switch cfg.Storage.Driver {
	case config.DriverMySQL:
		db, err := sql.Open("mysql", cfg.Storage.MySQLDSN)
		if err != nil {
			log.Fatal("failed to open mysql", zap.Error(err))
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			log.Fatal("failed to ping mysql", zap.Error(err))
		}
		log.Info("connected to mysql")
		closers = append(closers, func() { db.Close() })

		adapter := storage.NewMySQLAdapter(db)
		deps.Ingredients = adapter
		deps.Recipes = adapter
		deps.Products = adapter
		deps.Ledger = adapter
		deps.Rules = adapter
		deps.History = adapter

		if cfg.Storage.RedisAddr != "" {
			rdb := redis.NewClient(&redis.Options{Addr: cfg.Storage.RedisAddr, PoolSize: 100})
			if err := rdb.Ping(ctx).Err(); err != nil {
				log.Fatal("failed to connect redis", zap.Error(err))
			}
			closers = append(closers, func() { rdb.Close() })

			ledger := storage.NewRedisLedger(rdb)
			ingredients, err := adapter.ListIngredients(ctx)
			if err != nil {
				log.Fatal("failed to list ingredients for redis sync", zap.Error(err))
			}
			for _, ing := range ingredients {
				if err := ledger.SyncStock(ctx, ing.ID, ing.Stock); err != nil {
					log.Fatal("failed to sync stock to redis", zap.Error(err))
				}
			}
			log.Info("connected to redis, stock counters mirrored", zap.Int("ingredients", len(ingredients)))
			deps.Ledger = storage.NewWriteThroughLedger(ledger, adapter)
		}

	case config.DriverMemory:
		mem := storage.NewMemoryStore()
		seedDemoData(mem)
		log.Warn("memory storage driver selected, data is volatile")

		deps.Ingredients = mem
		deps.Recipes = mem
		deps.Products = mem
		deps.Ledger = mem
		deps.Rules = mem
		deps.History = mem
	}

	deps.Lots = service.NewLotAllocator(deps.History, cfg.Production.LotPrefix, cfg.Production.DefaultOperator)

	production := service.NewProductionService(deps)
	httpHandler := handler.NewHTTPHandler(production, logger.Named(log, "http"))
	router := handler.NewRouter(httpHandler, logger.Named(log, "http"))

	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	log.Info("stopped")
}

// seedDemoData loads a small catalog so the memory driver answers real
// requests out of the box.
func seedDemoData(mem *storage.MemoryStore) {
	now := time.Now()

	mem.AddIngredient(domain.Ingredient{
		ID: "ing-frango", Name: "Peito de frango", Category: "raw",
		Unit:  domain.UnitKilogram,
		Stock: decimal.NewFromInt(250), MinThreshold: decimal.NewFromInt(20),
		UnitCost: decimal.RequireFromString("12.50"), CreatedAt: now, UpdatedAt: now,
	})
	mem.AddIngredient(domain.Ingredient{
		ID: "ing-toucinho", Name: "Toucinho", Category: "raw",
		Unit:  domain.UnitGram,
		Stock: decimal.NewFromInt(80000), MinThreshold: decimal.NewFromInt(5000),
		UnitCost: decimal.RequireFromString("0.018"), CreatedAt: now, UpdatedAt: now,
	})
	mem.AddIngredient(domain.Ingredient{
		ID: "ing-agua", Name: "Agua gelada", Category: "additive",
		Unit:  domain.UnitLiter,
		Stock: decimal.NewFromInt(500), MinThreshold: decimal.NewFromInt(50),
		UnitCost: decimal.RequireFromString("0.002"), CreatedAt: now, UpdatedAt: now,
	})
	mem.AddProduct(domain.FinishedProduct{
		ID: "prod-linguica", Name: "Linguica toscana", Unit: domain.UnitKilogram,
		CreatedAt: now, UpdatedAt: now,
	})
	mem.AddRecipe(domain.Recipe{
		ID: "rec-linguica", Name: "Linguica toscana", ProductID: "prod-linguica",
		Lines: []domain.RecipeLine{
			{IngredientID: "ing-frango", Percentage: decimal.RequireFromString("70.000")},
			{IngredientID: "ing-toucinho", Percentage: decimal.RequireFromString("30.000")},
			{IngredientID: "ing-agua", Percentage: decimal.RequireFromString("10.000")},
		},
		CreatedAt: now, UpdatedAt: now,
	})
}
