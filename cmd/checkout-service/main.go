package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fjod/go_cart/internal/cart"
	"github.com/fjod/go_cart/internal/catalog"
	"github.com/fjod/go_cart/internal/checkout"
	"github.com/fjod/go_cart/internal/config"
	"github.com/fjod/go_cart/internal/coupon"
	"github.com/fjod/go_cart/internal/database"
	cartgrpc "github.com/fjod/go_cart/internal/grpc"
	carthttp "github.com/fjod/go_cart/internal/http"
	"github.com/fjod/go_cart/internal/inventory"
	"github.com/fjod/go_cart/internal/logger"
	"github.com/fjod/go_cart/internal/metrics"
	"github.com/fjod/go_cart/internal/orders"
	"github.com/fjod/go_cart/internal/payment"
	"github.com/fjod/go_cart/internal/publisher"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("checkout-service failed", zap.Error(err))
	}
	log.Info("checkout-service stopped")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	log.Info("checkout-service starting...")

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	// Database setup
	db, err := database.Open(cfg.Credentials())
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db, cfg.Database.Driver); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database migrations completed", zap.String("driver", cfg.Database.Driver))

	cartRepo, mongoDB, err := openCartRepository(ctx, cfg, log)
	if err != nil {
		return err
	}
	if mongoDB != nil {
		defer func() { _ = mongoDB.Client().Disconnect(context.Background()) }()
	}

	cache, redisClient, err := openCartCache(ctx, cfg, log)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	m := metrics.New()

	validator := coupon.NewValidator(coupon.NewSQLRepository(db), log)
	carts := cart.NewService(cartRepo, validator, cfg.Currency, log,
		cart.WithCache(cache),
		cart.WithClampHook(m.Clamped))
	stock := inventory.NewSQLStore(db)
	orderRepo := orders.NewSQLRepository(db)

	resilience := payment.DefaultResilienceConfig()
	resilience.Timeout = cfg.Payment.Timeout
	resilience.RatePerSecond = cfg.Payment.RateLimit
	gateway := payment.NewResilient(
		payment.NewSandbox(payment.RandomPolicy{ApprovalPercent: cfg.Payment.ApprovalPercent}, log),
		resilience, log)

	checkoutService := checkout.NewService(checkout.NewSQLRepository(db), carts, stock, gateway, orderRepo, log,
		checkout.WithRecorder(m),
		checkout.WithReservationTimeout(cfg.Checkout.ReservationTimeout),
		checkout.WithAuthorizationTTL(cfg.Checkout.AuthorizationTTL))

	var writer publisher.MessageWriter
	if len(cfg.Kafka.Brokers) > 0 {
		kw := publisher.NewKafkaWriter(cfg.Kafka.Topic, cfg.Kafka.Brokers...)
		defer kw.Close()
		writer = kw
		log.Info("publishing outbox events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	} else {
		log.Warn("KAFKA_BROKERS not set, outbox events will not be published")
	}
	poller := publisher.NewOutboxPoller(orderRepo, checkoutService, writer, log,
		publisher.WithEventTick(cfg.Checkout.OutboxInterval),
		publisher.WithRecoveryTick(cfg.Checkout.SweepInterval))

	router := carthttp.NewRouter(carthttp.Deps{
		Carts:          carts,
		Catalog:        catalog.NewRepository(db),
		Checkout:       checkoutService,
		Orders:         orders.NewService(orderRepo, log),
		Coupons:        validator,
		Stock:          stock,
		Metrics:        m,
		Log:            log,
		Health:         healthCheck(db, redisClient),
		JWTSecret:      []byte(cfg.Auth.JWTSecret),
		WebhookSecret:  cfg.Auth.WebhookSecret,
		RequestTimeout: cfg.RequestTimeout,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	})
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	grpcServer := cartgrpc.NewServer(log)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen on grpc port: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		poller.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	grpcServer.MarkServing()

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")
		grpcServer.MarkNotServing()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		grpcServer.Stop()
		if err != nil {
			return fmt.Errorf("http server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func openCartRepository(ctx context.Context, cfg *config.Config, log *zap.Logger) (cart.Repository, *mongo.Database, error) {
	if cfg.Mongo.URI == "" {
		log.Warn("MONGO_URI not set, carts are kept in memory")
		return cart.NewMemoryRepository(), nil, nil
	}

	mongoDB, err := cart.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.DBName)
	if err != nil {
		return nil, nil, err
	}
	repo := cart.NewMongoRepository(mongoDB)
	if err := repo.CreateIndexes(ctx); err != nil {
		_ = mongoDB.Client().Disconnect(context.Background())
		return nil, nil, fmt.Errorf("create cart indexes: %w", err)
	}
	log.Info("connected to MongoDB", zap.String("db", cfg.Mongo.DBName))
	return repo, mongoDB, nil
}

func openCartCache(ctx context.Context, cfg *config.Config, log *zap.Logger) (cart.Cache, *redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return cart.NoopCache{}, nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis connection failed: %w", err)
	}
	log.Info("redis ping succeeded", zap.String("addr", cfg.Redis.Addr))
	return cart.NewRedisCache(client), client, nil
}

func healthCheck(db *sql.DB, redisClient *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}
}
