package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/checkout-engine/internal/adapter/handler"
	"github.com/rl1809/checkout-engine/internal/adapter/messaging"
	"github.com/rl1809/checkout-engine/internal/adapter/metrics"
	"github.com/rl1809/checkout-engine/internal/adapter/storage"
	"github.com/rl1809/checkout-engine/internal/config"
	"github.com/rl1809/checkout-engine/internal/core/service"
	"github.com/rl1809/checkout-engine/internal/port"
)

type eventPublisher interface {
	port.EventPublisher
	io.Closer
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.MySQLMaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQLMaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQLConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		return err
	}
	if err := storage.EnsureSchema(ctx, db); err != nil {
		return err
	}
	logger.Info("connected to mysql")

	mysqlAdapter := storage.NewMySQLAdapter(db)

	// Optional Redis stock gate
	var cache port.CacheRepository
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: cfg.RedisPoolSize,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}

		redisAdapter := storage.NewRedisAdapter(rdb)
		products, err := mysqlAdapter.ListProducts(ctx)
		if err != nil {
			return err
		}
		if err := redisAdapter.SyncStock(ctx, products); err != nil {
			return err
		}
		cache = redisAdapter
		logger.Info("connected to redis", "addr", cfg.RedisAddr, "synced_products", len(products))
	} else {
		logger.Info("redis not configured, stock gate disabled")
	}

	// Event publisher
	var publisher eventPublisher
	if brokers := messaging.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		publisher = messaging.NewKafkaPublisher(brokers, cfg.KafkaTopic)
		logger.Info("publishing order events to kafka", "brokers", brokers, "topic", cfg.KafkaTopic)
	} else {
		publisher = messaging.NewLogPublisher(logger)
	}
	defer publisher.Close()

	m := metrics.New()
	orderService := service.NewOrderService(service.Deps{
		Ledger:    mysqlAdapter,
		Baskets:   mysqlAdapter,
		Orders:    mysqlAdapter,
		Addresses: mysqlAdapter,
		Customers: mysqlAdapter,
		Tx:        mysqlAdapter,
		Cache:     cache,
		Metrics:   m,
		Logger:    logger,
	}, cfg.QueueSize)
	basketService := service.NewBasketService(mysqlAdapter, mysqlAdapter, mysqlAdapter)

	// Start event workers
	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			service.DispatchEvents(id, orderService.GetEventQueue(), publisher, logger)
		}(i)
	}
	logger.Info("started event workers", "count", cfg.WorkerCount)

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterCheckoutServer(grpcServer, handler.NewGRPCHandler(orderService))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(handler.CheckoutServiceDesc.ServiceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	go func() {
		logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", "error", err)
		}
	}()

	// Initialize HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), m.Middleware())
	handler.NewHTTPHandler(orderService, basketService, logger).Register(router)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", "error", err)
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	// Close event queue and wait for workers to drain it
	orderService.Close()
	wg.Wait()
	logger.Info("event workers stopped")

	return nil
}
