package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-gateway/internal/api/http"
	"github.com/spec-kit/ticket-gateway/internal/api/http/handlers"
	"github.com/spec-kit/ticket-gateway/internal/auth"
	"github.com/spec-kit/ticket-gateway/internal/config"
	"github.com/spec-kit/ticket-gateway/internal/events"
	"github.com/spec-kit/ticket-gateway/internal/identifier"
	"github.com/spec-kit/ticket-gateway/internal/messaging"
	"github.com/spec-kit/ticket-gateway/internal/observability"
	"github.com/spec-kit/ticket-gateway/internal/persistence"
	"github.com/spec-kit/ticket-gateway/internal/repository"
	"github.com/spec-kit/ticket-gateway/internal/service"
	"github.com/spec-kit/ticket-gateway/internal/worker"
)

const sessionSweepInterval = 15 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, cfg.App.Name, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	validator, err := credentialValidator(cfg.Auth)
	if err != nil {
		logger.Fatal("failed to build credential validator", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	store := repository.NewPostgresStore(pg.PoolHandle(), cfg.Gateway.StorageTimeout())
	ids := identifier.NewGenerator(cfg.Gateway.TicketNumberPrefix)
	audit := service.NewAuditLog(store, dispatcher, logger)

	sessions := service.NewSessionService(service.SessionDependencies{
		Store:     store,
		Validator: validator,
		Tokens:    auth.NewTokenManager(cfg.Auth.TokenSecret, cfg.App.Name),
		Cache:     persistence.NewSessionCache(redis, cfg.Redis.SessionCacheTTL),
		IDs:       ids,
		Audit:     audit,
		TTL:       cfg.Auth.SessionTTL(),
		Logger:    logger,
	})
	gateway := service.NewGateway(service.GatewayDependencies{
		Sessions: sessions,
		Tickets: service.NewTicketService(service.TicketDependencies{
			Store:         store,
			IDs:           ids,
			Audit:         audit,
			IDMaxAttempts: cfg.Gateway.IDMaxAttempts,
		}),
		Articles:  service.NewArticleService(store, ids, audit),
		Validator: validator,
		Policy:    auth.SessionPolicy{CreateTicketRequiresSession: cfg.Gateway.CreateTicketRequiresSession},
		Metrics:   metrics,
	})

	stopForwarding := startAuditForwarding(ctx, cfg, dispatcher, logger, metrics)
	go worker.NewSessionReaper(sessions, sessionSweepInterval, logger).Run(ctx)

	app := httptransport.NewServer(httptransport.ServerConfig{
		AppName:        cfg.App.Name,
		BasePath:       cfg.Gateway.BasePath,
		SessionName:    cfg.Auth.SessionName,
		RequestTimeout: cfg.App.RequestTimeout(),
		Gateway:        gateway,
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Logger:         logger,
		Metrics:        metrics,
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()), zap.String("base_path", cfg.Gateway.BasePath))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.ShutdownWithTimeout(10 * time.Second)
	cancel()
	stopForwarding()
}

func credentialValidator(cfg config.AuthConfig) (auth.CredentialValidator, error) {
	if cfg.PasswordHash != "" {
		return auth.NewStaticValidator(cfg.User, cfg.PasswordHash), nil
	}
	return auth.NewStaticValidatorFromPassword(cfg.User, cfg.Password, cfg.BcryptCost)
}

// startAuditForwarding connects to RabbitMQ when AMQP_URL is set. Without a
// broker the audit table remains the only record. The returned func waits for
// the forwarder to drain after ctx is cancelled and closes the connection.
func startAuditForwarding(ctx context.Context, cfg *config.Config, dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) func() {
	noop := func() {}
	if cfg.AMQP.URL == "" {
		logger.Info("AMQP_URL not set; audit events are not forwarded")
		return noop
	}
	conn, err := messaging.DialWithRetry(ctx, messaging.ConnectionOptions{
		URL:           cfg.AMQP.URL,
		RetryAttempts: cfg.AMQP.RetryAttempts,
		Delay:         time.Second,
		Logger:        logger,
	})
	if err != nil {
		logger.Error("audit forwarding disabled", zap.Error(err))
		return noop
	}
	publisher, err := messaging.NewPublisher(conn, cfg.AMQP.Exchange, logger)
	if err != nil {
		_ = conn.Close()
		logger.Error("audit forwarding disabled", zap.Error(err))
		return noop
	}

	forwarder := worker.NewAuditForwarder(publisher, cfg.App.Name, 0, logger, metrics)
	forwarder.Register(dispatcher)
	done := make(chan struct{})
	go func() {
		defer close(done)
		forwarder.Run(ctx)
	}()
	return func() {
		<-done
		if err := publisher.Close(); err != nil {
			logger.Warn("closing amqp publisher", zap.Error(err))
		}
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
