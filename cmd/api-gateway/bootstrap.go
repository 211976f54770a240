package main

import (
	"context"
	"errors"

	config "github.com/NordCoder/Passage/internal/config/api-gateway"
	domainauth "github.com/NordCoder/Passage/internal/domain/auth"
	"github.com/NordCoder/Passage/internal/obs"
	"github.com/NordCoder/Passage/internal/obs/retry"
	"github.com/NordCoder/Passage/internal/outbox"
	"github.com/NordCoder/Passage/internal/repository/kafka"
	pg "github.com/NordCoder/Passage/internal/repository/postgres"
	redisx "github.com/NordCoder/Passage/internal/repository/redis"
	"go.uber.org/zap"
)

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	return obs.NewLogger(cfg.AsLoggerConfig())
}

func initOTel(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	o, err := obs.SetupOTel(ctx, cfg.AsOTELConfig())
	if err != nil {
		return nil, err
	}
	return o.Shutdown, nil
}

func initDB(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pg.DB, error) {
	db, err := pg.New(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	logger.Info("db connected")
	return db, nil
}

// initLimiter returns nil when no Redis address is configured.
func initLimiter(ctx context.Context, cfg *config.Config, logger *zap.Logger) (domainauth.LoginLimiter, func() error) {
	if !cfg.Limiter.Enabled() {
		logger.Info("login limiter disabled")
		return nil, func() error { return nil }
	}
	rc := cfg.Limiter.AsRedisConfig()
	rdb := redisx.NewClient(rc)
	if err := rdb.Ping(ctx).Err(); err != nil {
		// requests still pass while redis is unreachable
		logger.Warn("redis ping", zap.String("addr", rc.Addr), zap.Error(err))
	}
	logger.Info("login limiter enabled", zap.String("addr", rc.Addr), zap.Int("max_attempts", rc.MaxAttempts))
	return redisx.NewLoginLimiter(rdb, rc), rdb.Close
}

// initOutbox starts the relay that publishes committed account events to Kafka.
func initOutbox(ctx context.Context, cfg *config.Config, db *pg.DB, logger *zap.Logger) (*outbox.Runner, func() error, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil, errors.New("kafka: no brokers configured")
	}
	prod := kafka.BootstrapProducer(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	dispatch := outbox.MakeGlobalOutboxHandler(kafka.NewAccountEventsKafka(prod), retry.DefaultKafkaPolicy(logger))
	runner := outbox.NewOutboxRunner(logger, pg.NewOutboxRepo(db), dispatch, cfg.Outbox.AsRunnerConfig())
	runner.Start(ctx)
	return runner, prod.Close, nil
}
