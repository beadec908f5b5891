package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_storefront/internal/config"
	"github.com/fjod/go_storefront/internal/incident"
	"github.com/fjod/go_storefront/internal/logger"
	"go.uber.org/zap"
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

	code := 0
	if err := run(cfg, log); err != nil {
		log.Error("incident recorder stopped with error", zap.Error(err))
		code = 1
	}
	_ = log.Sync()
	os.Exit(code)
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	db, err := incident.ConnectMongoDB(connectCtx, cfg.MongoURI, cfg.MongoDBName)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	defer db.Client().Disconnect(context.Background())

	store := incident.NewMongoStore(db)
	if err := store.CreateIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create incident indexes: %w", err)
	}
	log.Info("connected to mongodb", zap.String("db", cfg.MongoDBName))

	consumer := incident.NewConsumer(store, log, cfg.KafkaBrokers...)
	defer consumer.Close()

	log.Info("incident recorder started", zap.Strings("brokers", cfg.KafkaBrokers))
	consumer.Run(ctx)
	log.Info("incident recorder stopped")
	return nil
}
