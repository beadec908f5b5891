package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_storefront/internal/alert"
	"github.com/fjod/go_storefront/internal/cache"
	"github.com/fjod/go_storefront/internal/cart"
	"github.com/fjod/go_storefront/internal/catalog"
	"github.com/fjod/go_storefront/internal/checkout"
	"github.com/fjod/go_storefront/internal/config"
	h "github.com/fjod/go_storefront/internal/http"
	"github.com/fjod/go_storefront/internal/logger"
	"github.com/fjod/go_storefront/internal/order"
	"github.com/fjod/go_storefront/internal/payment"
	"github.com/fjod/go_storefront/internal/publisher"
	"github.com/fjod/go_storefront/internal/repository"
	"github.com/fjod/go_storefront/internal/session"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	zap.ReplaceGlobals(log)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	os.Exit(exitCode(log, run(cfg, log)))
}

// exitCode logs a fatal run error and flushes the logger before the process
// exits.
func exitCode(log *zap.Logger, err error) int {
	code := 0
	if err != nil {
		log.Error("storefront stopped with error", zap.Error(err))
		code = 1
	}
	_ = log.Sync()
	return code
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	creds := cfg.Credentials()
	repo, err := repository.NewRepository(creds)
	if err != nil {
		return err
	}
	defer repo.Close()
	if err := repo.RunMigrations(creds); err != nil {
		return err
	}
	log.Info("connected to postgres", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))

	catalogRepo, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		return err
	}
	defer catalogRepo.Close()
	if err := catalogRepo.RunMigrations(cfg.CatalogMigrationsPath); err != nil {
		return err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	log.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))

	alerter := alert.NewKafkaAlerter(cfg.KafkaBrokers...)
	defer alerter.Close()

	carts := cart.NewService(repo, catalogRepo, cache.NewRedisCache(redisClient, cfg.CartCacheTTL), log)
	sessions := session.NewStore(redisClient, cfg.CheckoutSessionTTL, cfg.CheckoutGrace, log)
	bridge := payment.NewBridge(newProcessor(cfg, log), payment.BridgeConfig{
		BaseURL:         cfg.PublicBaseURL,
		StoreName:       cfg.StoreName,
		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown,
	}, log)
	materializer := order.NewMaterializer(repo, alerter, carts, log)
	checkoutSvc := checkout.NewService(sessions, carts, bridge, materializer, repo, alerter,
		checkout.Config{Currency: cfg.Currency}, log)

	pollCtx, stopPoller := context.WithCancel(ctx)
	defer stopPoller()
	poller := publisher.NewOutboxPoller(repo, log, cfg.KafkaBrokers...)
	defer poller.Close()
	go poller.Run(pollCtx)

	router := h.NewRouter(h.RouterConfig{
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	}, h.Services{
		Catalog:  catalogRepo,
		Cart:     carts,
		Checkout: checkoutSvc,
		Orders:   order.NewQuery(repo),
		Ready: func(ctx context.Context) error {
			if err := repo.Ping(ctx); err != nil {
				return errors.New("database unavailable")
			}
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return errors.New("redis unavailable")
			}
			return nil
		},
	}, log)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+cfg.GRPCHealthPort)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	errCh := make(chan error, 2)
	go func() {
		log.Info("grpc health listening", zap.String("port", cfg.GRPCHealthPort))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		log.Info("storefront starting", zap.String("port", cfg.HTTPPort), zap.String("payment_provider", cfg.PaymentProvider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("server failed, shutting down", zap.Error(err))
	}

	healthServer.Shutdown()
	stopPoller()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server forced to shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()

	log.Info("storefront stopped")
	return nil
}

func newProcessor(cfg *config.Config, log *zap.Logger) payment.Processor {
	if cfg.PaymentProvider == "stripe" {
		return payment.NewStripeProcessor(cfg.StripeSecretKey, cfg.StripeAPIURL, &http.Client{Timeout: cfg.PaymentTimeout})
	}
	log.Warn("using the simulated payment processor")
	return payment.NewSimulatedProcessor(payment.RandomDecider{})
}
