package main

import (
	"context"
	"log"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/rl1809/mini-oms/internal/adapter/storage"
	"github.com/rl1809/mini-oms/internal/config"
	"github.com/rl1809/mini-oms/internal/core/service"
	"github.com/rl1809/mini-oms/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.StorageDriver != config.DriverMySQL {
		log.Fatalf("seed requires STORAGE_DRIVER=%s, the memory driver seeds itself", config.DriverMySQL)
	}

	logger, err := observability.NewLogger(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "mysql", cfg.MySQLDSN)
	if err != nil {
		logger.Fatal("failed to connect mysql", zap.Error(err))
	}
	defer db.Close()

	adapter := storage.NewMySQLAdapter(db)
	if err := adapter.Migrate(ctx); err != nil {
		logger.Fatal("failed to migrate schema", zap.Error(err))
	}

	units, err := service.NewUnitService(adapter).SeedDefaults(ctx)
	if err != nil {
		logger.Fatal("failed to seed units", zap.Error(err))
	}
	for symbol, u := range units {
		logger.Info("unit ready", zap.String("symbol", symbol), zap.String("id", u.ID), zap.Bool("base", u.IsBase))
	}
}
