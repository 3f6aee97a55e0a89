package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/mini-oms/internal/adapter/auth"
	"github.com/rl1809/mini-oms/internal/adapter/handler"
	"github.com/rl1809/mini-oms/internal/adapter/notify"
	"github.com/rl1809/mini-oms/internal/adapter/storage"
	"github.com/rl1809/mini-oms/internal/config"
	"github.com/rl1809/mini-oms/internal/core/service"
	"github.com/rl1809/mini-oms/internal/observability"
	"github.com/rl1809/mini-oms/internal/port"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OtelEndpoint, config.ServiceName, config.ServiceVersion)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}

	// Storage
	var (
		db      port.DatabaseRepository
		closeDB = func() error { return nil }
	)
	switch cfg.StorageDriver {
	case config.DriverMySQL:
		sqlDB, err := sqlx.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return fmt.Errorf("open mysql: %w", err)
		}
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetMaxIdleConns(25)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("ping mysql: %w", err)
		}
		logger.Info("connected to mysql")

		mysqlAdapter := storage.NewMySQLAdapter(sqlDB)
		if cfg.AutoMigrate {
			if err := mysqlAdapter.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("schema migrated")
		}
		db, closeDB = mysqlAdapter, sqlDB.Close
	case config.DriverMemory:
		db = storage.NewMemoryAdapter()
		logger.Warn("using in-memory storage, data is lost on exit")
	}

	units := service.NewUnitService(db)
	if cfg.StorageDriver == config.DriverMemory {
		if _, err := units.SeedDefaults(ctx); err != nil {
			return fmt.Errorf("seed units: %w", err)
		}
	}

	// Realtime fan-out
	hub := notify.NewHub(logger, cfg.AllowedOrigins...)
	go hub.Run()

	var (
		cache     port.CacheRepository = storage.NewMemoryCache()
		notifiers notify.Fanout
		rdb       *redis.Client
		publisher *notify.RedisPublisher
	)
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, PoolSize: 100})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		logger.Info("connected to redis")

		cache = storage.NewRedisAdapter(rdb)
		publisher = notify.NewRedisPublisher(rdb, logger)
		notifiers = append(notifiers, publisher)

		relay := notify.NewRedisRelay(rdb, hub, logger)
		go func() {
			if err := relay.Run(ctx); err != nil {
				logger.Error("redis relay stopped", zap.Error(err))
			}
		}()
	} else {
		notifiers = append(notifiers, hub)
	}

	var kafkaPublisher *notify.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher = notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		notifiers = append(notifiers, kafkaPublisher)
		logger.Info("publishing status events to kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	// Services
	authService := service.NewAuthService(db, auth.NewBcryptHasher(auth.DefaultBcryptCost), auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL))
	catalogService := service.NewCatalogService(db)
	orderService := service.NewOrderService(db, notifiers, cache)

	// gRPC server
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(handler.LoggingInterceptor(logger)))
	handler.RegisterAdminServer(grpcServer, handler.NewGRPCHandler(authService, orderService))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// HTTP server
	httpHandler := handler.NewHTTPHandler(handler.Services{
		Auth:    authService,
		Catalog: catalogService,
		Orders:  orderService,
		Units:   units,
	}, hub, logger, cfg.Production(), cfg.AllowedOrigins)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	cancel()
	hub.Stop()
	if publisher != nil {
		publisher.Close()
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			logger.Warn("kafka close", zap.Error(err))
		}
	}
	if rdb != nil {
		rdb.Close()
	}
	if err := closeDB(); err != nil {
		logger.Warn("database close", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
	logger.Info("connections closed")

	return nil
}
